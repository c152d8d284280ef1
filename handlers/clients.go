package handlers

import (
	"jira-discord-relay/services"
)

// ハンドラが使う Discord クライアントの操作
// テストではフェイクに差し替える
type DiscordAPI interface {
	SendMessage(channelID, content string) (string, error)
	SendEmbed(channelID string, embed services.Embed) (string, error)
	StartThread(channelID, messageID, name string) (string, error)
	EditMessage(channelID, messageID, content string) error
	EditMessageEmbed(channelID, messageID string, embed services.Embed) error
	DeleteMessage(channelID, messageID string) error
	FetchMessage(channelID, messageID string) (*services.DiscordMessage, error)
	DeleteChannel(channelID string) error
	UnarchiveThread(threadID string) error
}

// ハンドラが使う Jira クライアントの操作
type JiraAPI interface {
	AddComment(issueKey, text string) (string, error)
	UpdateComment(issueKey, commentID, text string) error
	DeleteComment(issueKey, commentID string) error
}
