package models

import (
	"time"
)

// UserMapping は Jira アカウントと Discord ユーザーのマッピングを保持する
// /link コマンドでのみ作成・更新される（同期処理が勝手に作ることはない）
type UserMapping struct {
	ID              string `gorm:"primaryKey"`
	JiraAccountID   string `gorm:"uniqueIndex"` // Jira のアカウントID（例: 712020:xxxxxxxx）
	JiraDisplayName string `gorm:"index"`       // Jira の表示名（メンションノードにアカウントIDがない場合のフォールバック用）
	DiscordUserID   string `gorm:"index"`       // Discord のユーザーID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
