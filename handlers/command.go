package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jira-discord-relay/services"
)

// Discord のスラッシュコマンド (interaction) を処理するハンドラ
// /link add|remove|list で Jira アカウントと Discord ユーザーの紐づけを管理する

type DiscordInteractionOption struct {
	Name    string                     `json:"name"`
	Value   string                     `json:"value,omitempty"`
	Options []DiscordInteractionOption `json:"options,omitempty"`
}

type DiscordInteraction struct {
	Type int `json:"type"` // 1: PING, 2: APPLICATION_COMMAND
	Data struct {
		Name    string                     `json:"name"`
		Options []DiscordInteractionOption `json:"options,omitempty"`
	} `json:"data"`
	Member *struct {
		User services.DiscordUser `json:"user"`
	} `json:"member,omitempty"`
	User *services.DiscordUser `json:"user,omitempty"`
}

func HandleDiscordCommand(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var interaction DiscordInteraction
		if err := c.ShouldBindJSON(&interaction); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}

		// PING には PONG を返す（エンドポイント検証用）
		if interaction.Type == 1 {
			c.JSON(http.StatusOK, gin.H{"type": 1})
			return
		}

		if interaction.Type != 2 || interaction.Data.Name != "link" {
			c.JSON(http.StatusOK, gin.H{"ignored": true})
			return
		}

		discordUserID := interactionUserID(&interaction)
		if discordUserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no user in interaction"})
			return
		}

		if len(interaction.Data.Options) == 0 {
			respondEphemeral(c, linkHelpText())
			return
		}

		sub := interaction.Data.Options[0]
		log.Printf("link command received: sub=%s, user=%s", sub.Name, discordUserID)

		switch sub.Name {
		case "add":
			jiraID := optionValue(sub.Options, "jira_id")
			jiraName := optionValue(sub.Options, "jira_name")
			if jiraID == "" || jiraName == "" {
				respondEphemeral(c, "jira_id と jira_name を指定してください。")
				return
			}

			if err := services.SaveUserMapping(db, jiraID, jiraName, discordUserID); err != nil {
				log.Printf("user mapping save error (account: %s): %v", jiraID, err)
				respondEphemeral(c, "❌ 連携の保存に失敗しました。")
				return
			}

			log.Printf("✅ user linked: jira=%s, discord=%s", jiraID, discordUserID)
			respondEphemeral(c, fmt.Sprintf(
				"✅ 連携しました！\n\n**Jira ID:** %s\n**Jira 名:** %s\n**Discord:** <@%s>",
				jiraID, jiraName, discordUserID))

		case "remove":
			jiraID := optionValue(sub.Options, "jira_id")
			if jiraID == "" {
				respondEphemeral(c, "jira_id を指定してください。")
				return
			}

			if err := services.DeleteUserMapping(db, jiraID); err != nil {
				log.Printf("user mapping delete error (account: %s): %v", jiraID, err)
				respondEphemeral(c, "❌ 連携の解除に失敗しました。")
				return
			}

			respondEphemeral(c, "✅ 連携を解除しました: "+jiraID)

		case "list":
			mappings, err := services.ListUserMappings(db)
			if err != nil {
				log.Printf("user mapping list error: %v", err)
				respondEphemeral(c, "❌ 一覧の取得に失敗しました。")
				return
			}

			if len(mappings) == 0 {
				respondEphemeral(c, "連携されたアカウントはありません。")
				return
			}

			var lines []string
			for _, m := range mappings {
				lines = append(lines, fmt.Sprintf("• **%s** (%s) → <@%s>",
					m.JiraDisplayName, m.JiraAccountID, m.DiscordUserID))
			}
			respondEphemeral(c, "📋 **連携アカウント一覧**\n\n"+strings.Join(lines, "\n"))

		default:
			respondEphemeral(c, linkHelpText())
		}
	}
}

func interactionUserID(interaction *DiscordInteraction) string {
	if interaction.Member != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func optionValue(options []DiscordInteractionOption, name string) string {
	for _, option := range options {
		if option.Name == name {
			return option.Value
		}
	}
	return ""
}

// 本人にだけ見える形で応答する（CHANNEL_MESSAGE_WITH_SOURCE + EPHEMERAL フラグ）
func respondEphemeral(c *gin.Context, content string) {
	c.JSON(http.StatusOK, gin.H{
		"type": 4,
		"data": gin.H{
			"content": content,
			"flags":   64,
		},
	})
}

func linkHelpText() string {
	return strings.Join([]string{
		"**/link コマンドの使い方**",
		"",
		"`/link add jira_id:<アカウントID> jira_name:<表示名>` - Jira アカウントを連携",
		"`/link remove jira_id:<アカウントID>` - 連携を解除",
		"`/link list` - 連携済みアカウントの一覧",
	}, "\n")
}
