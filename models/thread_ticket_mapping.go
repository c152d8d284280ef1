package models

import (
	"time"
)

// ThreadTicketMapping は Jira チケットと Discord の通知メッセージ+スレッドのマッピングを保持する
// 1チケットにつき通知メッセージは1つ。message_id / channel_id は作成後に変更しない
type ThreadTicketMapping struct {
	ID        string `gorm:"primaryKey"`
	ThreadID  string `gorm:"uniqueIndex"` // Discord のスレッドID
	TicketKey string `gorm:"index"`       // Jira のチケットキー（例: PROJ-1）
	MessageID string // 通知メッセージのID
	ChannelID string // 通知メッセージを送ったチャンネルのID
	CreatedAt time.Time
}
