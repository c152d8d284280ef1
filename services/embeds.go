package services

import (
	"fmt"
)

// Discord embed のペイロード
type Embed struct {
	Title       string       `json:"title,omitempty"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// 優先度ごとの embed の色
var priorityColors = map[string]int{
	"Highest": 0xff0000,
	"High":    0xff6b6b,
	"Medium":  0xffa500,
	"Low":     0x4dabf7,
	"Lowest":  0x69db7c,
}

// チケットタイプごとの絵文字
var issueTypeEmoji = map[string]string{
	"Bug":      "🐛",
	"Task":     "📋",
	"Story":    "📖",
	"Epic":     "🎯",
	"Sub-task": "📎",
}

// チケット情報から通知用の embed を組み立てる関数
func BuildTicketEmbed(ticket TicketInfo) Embed {
	emoji, ok := issueTypeEmoji[ticket.Type]
	if !ok {
		emoji = "🎫"
	}

	color, ok := priorityColors[ticket.Priority]
	if !ok {
		color = 0x0052cc
	}

	assignee := ticket.Assignee
	if assignee == "" {
		assignee = "未割り当て"
	}

	embed := Embed{
		Title: fmt.Sprintf("%s [%s] %s", emoji, ticket.Key, ticket.Summary),
		URL:   ticket.URL,
		Color: color,
		Fields: []EmbedField{
			{Name: "タイプ", Value: ticket.Type, Inline: true},
			{Name: "担当者", Value: assignee, Inline: true},
			{Name: "優先度", Value: ticket.Priority, Inline: true},
		},
		Footer: &EmbedFooter{
			Text: "💬 このスレッドに返信すると Jira チケットにコメントが追加されます。",
		},
	}

	// 説明があればフィールドに追加（1024文字制限）
	if ticket.Description != "" {
		description := ticket.Description
		if runes := []rune(description); len(runes) > 1024 {
			description = string(runes[:1021]) + "..."
		}
		embed.Fields = append(embed.Fields, EmbedField{Name: "説明", Value: description})
	}

	return embed
}
