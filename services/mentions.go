package services

import (
	"fmt"
	"log"
	"regexp"

	"gorm.io/gorm"
)

// Discord のメンション形式 <@123> または <@!123>
var discordMentionRegex = regexp.MustCompile(`<@!?(\d+)>`)

// Discord メッセージ内のメンションを Jira のメンション形式に変換する関数
// マッピングがないユーザーのメンションはそのまま残す
func TranslateMentions(db *gorm.DB, text string) string {
	return discordMentionRegex.ReplaceAllStringFunc(text, func(token string) string {
		discordUserID := discordMentionRegex.FindStringSubmatch(token)[1]

		mapping, err := GetUserMappingByDiscordUserID(db, discordUserID)
		if err != nil {
			log.Printf("user mapping lookup error (discord user: %s): %v", discordUserID, err)
			return token
		}
		if mapping == nil {
			return token
		}

		return fmt.Sprintf("[~accountid:%s]", mapping.JiraAccountID)
	})
}

// Jira のメンションノードを Discord のメンションに解決する関数
// アカウントID → 表示名 → リテラルの @名前 の順でフォールバックし、エラーにはしない
func ResolveMentionNode(db *gorm.DB, accountID, displayName string) string {
	if accountID != "" {
		mapping, err := GetUserMappingByAccountID(db, accountID)
		if err != nil {
			log.Printf("user mapping lookup error (account: %s): %v", accountID, err)
		} else if mapping != nil {
			return fmt.Sprintf("<@%s>", mapping.DiscordUserID)
		}
	}

	if displayName != "" {
		mapping, err := GetUserMappingByDisplayName(db, displayName)
		if err != nil {
			log.Printf("user mapping lookup error (name: %s): %v", displayName, err)
		} else if mapping != nil {
			return fmt.Sprintf("<@%s>", mapping.DiscordUserID)
		}
	}

	if displayName == "" {
		displayName = "user"
	}
	return "@" + displayName
}
