package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jira-discord-relay/services"
)

// Jira の webhook を受けて Discord 側を同期するハンドラ
type JiraWebhookHandler struct {
	DB        *gorm.DB
	Discord   DiscordAPI
	ChannelID string // 通知先チャンネル
	JiraHost  string // チケットURL生成用
}

func NewJiraWebhookHandler(db *gorm.DB, discord DiscordAPI, channelID, jiraHost string) *JiraWebhookHandler {
	return &JiraWebhookHandler{
		DB:        db,
		Discord:   discord,
		ChannelID: channelID,
		JiraHost:  jiraHost,
	}
}

func (h *JiraWebhookHandler) HandleWebhook(c *gin.Context) {
	var payload services.JiraWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	log.Printf("jira webhook received: event=%s", payload.WebhookEvent)

	switch payload.WebhookEvent {
	case "jira:issue_created":
		h.handleIssueCreated(c, &payload)
	case "jira:issue_updated":
		h.handleIssueUpdated(c, &payload)
	case "jira:issue_deleted":
		h.handleIssueDeleted(c, &payload)
	case "comment_created":
		h.handleCommentCreated(c, &payload)
	case "comment_updated":
		h.handleCommentUpdated(c, &payload)
	case "comment_deleted":
		h.handleCommentDeleted(c, &payload)
	default:
		// 知らないイベントはエラーにせず受け取ったことだけ返す
		log.Printf("ignoring event: %s", payload.WebhookEvent)
		c.JSON(http.StatusOK, gin.H{"ignored": true, "event": payload.WebhookEvent})
	}
}

// チケット作成: 通知メッセージ送信 + スレッド作成 + マッピング保存
func (h *JiraWebhookHandler) handleIssueCreated(c *gin.Context, payload *services.JiraWebhookPayload) {
	if payload.Issue == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no issue in payload"})
		return
	}

	ticket := services.ParseJiraIssue(h.DB, h.JiraHost, payload.Issue)
	embed := services.BuildTicketEmbed(ticket)

	messageID, err := h.Discord.SendEmbed(h.ChannelID, embed)
	if err != nil {
		log.Printf("notification send error (ticket: %s): %v", ticket.Key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send notification", "message": err.Error()})
		return
	}

	threadName := fmt.Sprintf("[%s] %s", ticket.Key, ticket.Summary)
	threadID, err := h.Discord.StartThread(h.ChannelID, messageID, threadName)
	if err != nil {
		log.Printf("thread create error (ticket: %s): %v", ticket.Key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create thread", "message": err.Error()})
		return
	}

	if err := services.SaveThreadMapping(h.DB, threadID, ticket.Key, messageID, h.ChannelID); err != nil {
		log.Printf("thread mapping save error (ticket: %s): %v", ticket.Key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save mapping", "message": err.Error()})
		return
	}

	log.Printf("✅ ticket mirrored: %s (thread: %s)", ticket.Key, threadID)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"ticketKey": ticket.Key,
		"threadId":  threadID,
		"messageId": messageID,
	})
}

// チケット更新: 既存の通知メッセージを編集（マッピングがなければ無視）
func (h *JiraWebhookHandler) handleIssueUpdated(c *gin.Context, payload *services.JiraWebhookPayload) {
	if payload.Issue == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no issue in payload"})
		return
	}

	ticketKey := payload.Issue.Key

	mapping, err := services.GetMappingByTicketKey(h.DB, ticketKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mapping lookup failed", "message": err.Error()})
		return
	}
	if mapping == nil {
		log.Printf("no mapping found for ticket %s (issue updated)", ticketKey)
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "no-mapping"})
		return
	}

	ticket := services.ParseJiraIssue(h.DB, h.JiraHost, payload.Issue)
	embed := services.BuildTicketEmbed(ticket)

	if err := h.Discord.EditMessageEmbed(mapping.ChannelID, mapping.MessageID, embed); err != nil {
		log.Printf("notification update error (ticket: %s): %v", ticketKey, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification", "message": err.Error()})
		return
	}

	log.Printf("✅ notification updated: %s (message: %s)", ticketKey, mapping.MessageID)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"ticketKey": ticketKey,
		"messageId": mapping.MessageID,
		"action":    "updated",
	})
}

// チケット削除: Discord 側の掃除はベストエフォート、ローカルのカスケードは必須
func (h *JiraWebhookHandler) handleIssueDeleted(c *gin.Context, payload *services.JiraWebhookPayload) {
	if payload.Issue == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no issue in payload"})
		return
	}

	ticketKey := payload.Issue.Key

	mapping, err := services.GetMappingByTicketKey(h.DB, ticketKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mapping lookup failed", "message": err.Error()})
		return
	}
	if mapping == nil {
		log.Printf("no mapping found for ticket %s (issue deleted)", ticketKey)
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "no-mapping"})
		return
	}

	// すでに消えているものがあっても他の掃除は続ける
	if err := h.Discord.DeleteChannel(mapping.ThreadID); err != nil {
		log.Printf("thread delete skipped (ticket: %s): %v", ticketKey, err)
	}
	if err := h.Discord.DeleteMessage(mapping.ChannelID, mapping.MessageID); err != nil {
		log.Printf("notification delete skipped (ticket: %s): %v", ticketKey, err)
	}

	// コメントマッピング → スレッドマッピングの順で消す。ここの失敗はエラーとして返す
	if err := services.DeleteCommentMappingsByTicketKey(h.DB, ticketKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete comment mappings", "message": err.Error()})
		return
	}
	if err := services.DeleteMappingByThreadID(h.DB, mapping.ThreadID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete thread mapping", "message": err.Error()})
		return
	}

	log.Printf("✅ ticket mirror removed: %s", ticketKey)
	c.JSON(http.StatusOK, gin.H{"success": true, "ticketKey": ticketKey, "action": "deleted"})
}

// コメント作成: Discord 発のコメントでなければスレッドに転送してマッピング保存
func (h *JiraWebhookHandler) handleCommentCreated(c *gin.Context, payload *services.JiraWebhookPayload) {
	if payload.Issue == nil || payload.Comment == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no issue or comment in payload"})
		return
	}

	ticketKey := payload.Issue.Key
	commentText := services.ExtractCommentText(h.DB, payload.Comment)
	authorName := commentAuthorName(payload.Comment)

	// 自分が書いたコメントは二重ミラーになるので無視
	if services.IsDiscordOriginated(commentText) {
		log.Printf("ignoring discord-originated comment (ticket: %s)", ticketKey)
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "discord-originated"})
		return
	}

	mapping, err := services.GetMappingByTicketKey(h.DB, ticketKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mapping lookup failed", "message": err.Error()})
		return
	}
	if mapping == nil {
		log.Printf("no mapping found for ticket %s (comment created)", ticketKey)
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "no-mapping"})
		return
	}

	// アーカイブ済みスレッドは戻してから書き込む
	if err := h.Discord.UnarchiveThread(mapping.ThreadID); err != nil {
		log.Printf("thread unarchive skipped (thread: %s): %v", mapping.ThreadID, err)
	}

	messageID, err := h.Discord.SendMessage(mapping.ThreadID, services.FormatJiraComment(authorName, commentText))
	if err != nil {
		log.Printf("comment forward error (ticket: %s): %v", ticketKey, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send comment", "message": err.Error()})
		return
	}

	if err := services.SaveCommentMapping(h.DB, messageID, payload.Comment.ID, mapping.ThreadID, ticketKey, "jira"); err != nil {
		log.Printf("comment mapping save error (ticket: %s): %v", ticketKey, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save comment mapping", "message": err.Error()})
		return
	}

	log.Printf("✅ comment mirrored to discord: ticket=%s, message=%s", ticketKey, messageID)
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"ticketKey":        ticketKey,
		"threadId":         mapping.ThreadID,
		"discordMessageId": messageID,
	})
}

// コメント更新: 対応する Discord メッセージを編集
func (h *JiraWebhookHandler) handleCommentUpdated(c *gin.Context, payload *services.JiraWebhookPayload) {
	if payload.Issue == nil || payload.Comment == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no issue or comment in payload"})
		return
	}

	ticketKey := payload.Issue.Key
	jiraCommentID := payload.Comment.ID
	commentText := services.ExtractCommentText(h.DB, payload.Comment)
	authorName := commentAuthorName(payload.Comment)

	if services.IsDiscordOriginated(commentText) {
		log.Printf("ignoring discord-originated comment update (ticket: %s)", ticketKey)
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "discord-originated"})
		return
	}

	commentMapping, err := services.GetCommentMappingByJiraCommentID(h.DB, jiraCommentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mapping lookup failed", "message": err.Error()})
		return
	}
	if commentMapping == nil {
		log.Printf("no mapping found for comment %s (ticket: %s)", jiraCommentID, ticketKey)
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "no-mapping"})
		return
	}

	if err := h.Discord.EditMessage(commentMapping.ThreadID, commentMapping.DiscordMessageID,
		services.FormatJiraComment(authorName, commentText)); err != nil {
		log.Printf("comment edit error (ticket: %s, comment: %s): %v", ticketKey, jiraCommentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update message", "message": err.Error()})
		return
	}

	log.Printf("✅ comment update mirrored: ticket=%s, comment=%s", ticketKey, jiraCommentID)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"ticketKey":     ticketKey,
		"jiraCommentId": jiraCommentID,
		"action":        "updated",
	})
}

// コメント削除: 対応する Discord メッセージとマッピングを消す
func (h *JiraWebhookHandler) handleCommentDeleted(c *gin.Context, payload *services.JiraWebhookPayload) {
	if payload.Issue == nil || payload.Comment == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no issue or comment in payload"})
		return
	}

	ticketKey := payload.Issue.Key
	jiraCommentID := payload.Comment.ID

	commentMapping, err := services.GetCommentMappingByJiraCommentID(h.DB, jiraCommentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mapping lookup failed", "message": err.Error()})
		return
	}
	if commentMapping == nil {
		log.Printf("no mapping found for comment %s (ticket: %s)", jiraCommentID, ticketKey)
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "no-mapping"})
		return
	}

	if err := h.Discord.DeleteMessage(commentMapping.ThreadID, commentMapping.DiscordMessageID); err != nil {
		// メッセージがすでに消えている場合はマッピングの掃除だけ続ける
		if !services.IsNotFoundError(err) {
			log.Printf("comment delete error (ticket: %s, comment: %s): %v", ticketKey, jiraCommentID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message", "message": err.Error()})
			return
		}
		log.Printf("message already gone (comment: %s)", jiraCommentID)
	}

	if err := services.DeleteCommentMappingByJiraCommentID(h.DB, jiraCommentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete comment mapping", "message": err.Error()})
		return
	}

	log.Printf("✅ comment delete mirrored: ticket=%s, comment=%s", ticketKey, jiraCommentID)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"ticketKey":     ticketKey,
		"jiraCommentId": jiraCommentID,
		"action":        "deleted",
	})
}

// コメント作成者の表示名を取り出す関数
func commentAuthorName(comment *services.JiraComment) string {
	if comment.Author != nil && comment.Author.DisplayName != "" {
		return comment.Author.DisplayName
	}
	return "Unknown"
}
