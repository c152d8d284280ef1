package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ADF (Atlassian Document Format) のノード
type ADFNode struct {
	Type    string                 `json:"type"`
	Text    string                 `json:"text,omitempty"`
	Content []ADFNode              `json:"content,omitempty"`
	Marks   []ADFMark              `json:"marks,omitempty"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
}

type ADFMark struct {
	Type  string                 `json:"type"`
	Attrs map[string]interface{} `json:"attrs,omitempty"`
}

func (n ADFNode) attrString(key string) string {
	if n.Attrs == nil {
		return ""
	}
	if value, ok := n.Attrs[key].(string); ok {
		return value
	}
	return ""
}

// ADF ノードを Discord の Markdown に変換する関数
// メンションノードはユーザーマッピング経由で Discord メンションに解決する
func ADFToMarkdown(db *gorm.DB, node ADFNode, listDepth int) string {
	// テキストノードは marks を適用して返す
	if node.Type == "text" {
		text := node.Text
		for _, mark := range node.Marks {
			switch mark.Type {
			case "strong":
				text = fmt.Sprintf("**%s**", text)
			case "em":
				text = fmt.Sprintf("*%s*", text)
			case "code":
				text = fmt.Sprintf("`%s`", text)
			case "strike":
				text = fmt.Sprintf("~~%s~~", text)
			case "link":
				if href, ok := mark.Attrs["href"].(string); ok && href != "" {
					text = fmt.Sprintf("[%s](%s)", text, href)
				}
			}
		}
		return text
	}

	children := func(sep string) string {
		parts := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			parts = append(parts, ADFToMarkdown(db, child, listDepth))
		}
		return strings.Join(parts, sep)
	}

	switch node.Type {
	case "doc":
		return children("\n\n")

	case "paragraph":
		return children("")

	case "heading":
		level := 1
		if l, ok := node.Attrs["level"].(float64); ok {
			level = int(l)
		}
		// Discord は ### までしか対応していない
		if level > 3 {
			level = 3
		}
		return strings.Repeat("#", level) + " " + children("")

	case "bulletList":
		return children("\n")

	case "orderedList":
		items := make([]string, 0, len(node.Content))
		for i, child := range node.Content {
			item := ADFToMarkdown(db, child, listDepth)
			items = append(items, strings.Replace(item, "- ", fmt.Sprintf("%d. ", i+1), 1))
		}
		return strings.Join(items, "\n")

	case "listItem":
		indent := strings.Repeat("  ", listDepth)
		parts := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			parts = append(parts, ADFToMarkdown(db, child, listDepth+1))
		}
		return indent + "- " + strings.Join(parts, "")

	case "codeBlock":
		language := node.attrString("language")
		return fmt.Sprintf("```%s\n%s\n```", language, children(""))

	case "blockquote":
		lines := strings.Split(children(""), "\n")
		for i, line := range lines {
			lines[i] = "> " + line
		}
		return strings.Join(lines, "\n")

	case "rule":
		return "---"

	case "hardBreak":
		return "\n"

	case "mention":
		accountID := mentionAccountID(node)
		displayName := strings.TrimPrefix(node.attrString("text"), "@")
		return ResolveMentionNode(db, accountID, displayName)

	case "emoji":
		return node.attrString("shortName")

	default:
		return children("")
	}
}

// メンションノードの attrs.id（アカウントID）を取り出す
func mentionAccountID(node ADFNode) string {
	return node.attrString("id")
}

// ノードからプレーンテキストだけを取り出す関数（プレビュー用）
func ExtractText(node ADFNode) string {
	if node.Type == "text" {
		return node.Text
	}

	var builder strings.Builder
	for _, child := range node.Content {
		builder.WriteString(ExtractText(child))
	}
	return builder.String()
}

// Jira コメントの本文を Discord Markdown として取り出す関数
// body は文字列（旧形式）のことも ADF オブジェクトのこともある
func ExtractCommentText(db *gorm.DB, comment *JiraComment) string {
	if comment == nil || len(comment.Body) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(comment.Body, &plain); err == nil {
		return plain
	}

	var node ADFNode
	if err := json.Unmarshal(comment.Body, &node); err != nil {
		return ""
	}
	if node.Type == "" {
		node.Type = "doc"
	}

	return ADFToMarkdown(db, node, 0)
}

// チケット説明を Discord Markdown として取り出す関数
func ExtractDescriptionMarkdown(db *gorm.DB, description json.RawMessage) string {
	if len(description) == 0 {
		return ""
	}

	var node ADFNode
	if err := json.Unmarshal(description, &node); err != nil {
		return ""
	}
	if node.Type == "" {
		node.Type = "doc"
	}

	return ADFToMarkdown(db, node, 0)
}
