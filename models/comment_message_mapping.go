package models

import (
	"time"
)

// CommentMessageMapping は Jira コメントと Discord メッセージのマッピングを保持する
// Source はどちらのシステムで書かれたコメントかを記録し、編集/削除の同期方向の判定に使う
type CommentMessageMapping struct {
	ID               string  `gorm:"primaryKey"`
	DiscordMessageID string  `gorm:"uniqueIndex"` // Discord のメッセージID
	JiraCommentID    *string `gorm:"uniqueIndex"` // Jira のコメントID（Jira 側の登録が終わるまで NULL）
	ThreadID         string  `gorm:"index"`
	TicketKey        string  `gorm:"index"`
	Source           string  // "discord" または "jira"
	CreatedAt        time.Time
}
