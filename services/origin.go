package services

import (
	"fmt"
	"strings"
)

// Discord 発のコメントにつけるプレフィックス（二重ミラー防止用）
// Jira の webhook ペイロードではボットが書いたコメントを区別できないため、
// 本文の先頭マーカーで判定する。判定方法を変えるときはこの2つの関数だけを直す
const discordCommentPrefix = "[Discord -"

// Discord 発のコメント本文に発信元マーカーをつける関数
func MarkDiscordOriginated(authorName, content string) string {
	return fmt.Sprintf("[Discord - %s]\n \n%s", authorName, content)
}

// Jira から来たコメント本文が Discord 発かどうか判定する関数
func IsDiscordOriginated(text string) bool {
	return strings.HasPrefix(text, discordCommentPrefix)
}

// Jira 発のコメントを Discord スレッドに流すときの本文フォーマット
func FormatJiraComment(authorName, content string) string {
	return fmt.Sprintf("**[Jira - %s]**\n%s", authorName, content)
}

// Discord ユーザーの発言をボットが再投稿するときの本文フォーマット
func FormatDiscordComment(authorName, content string) string {
	return fmt.Sprintf("**%s:** %s", authorName, content)
}
