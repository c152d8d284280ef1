package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jira-discord-relay/services"
)

// Discord のメッセージイベントを受けて Jira 側を同期するハンドラ
type DiscordEventHandler struct {
	DB        *gorm.DB
	Discord   DiscordAPI
	Jira      JiraAPI
	BotUserID string
}

func NewDiscordEventHandler(db *gorm.DB, discord DiscordAPI, jira JiraAPI, botUserID string) *DiscordEventHandler {
	return &DiscordEventHandler{
		DB:        db,
		Discord:   discord,
		Jira:      jira,
		BotUserID: botUserID,
	}
}

type DiscordEventMessage struct {
	ID         string                `json:"id"`
	ChannelID  string                `json:"channel_id"`
	Content    string                `json:"content"`
	Partial    bool                  `json:"partial,omitempty"`     // ゲートウェイがキャッシュ外のメッセージを部分データで届けた場合
	OldContent *string               `json:"old_content,omitempty"` // 更新イベントで旧本文が取れた場合のみ
	Author     *services.DiscordUser `json:"author,omitempty"`
	Member     *struct {
		Nick string `json:"nick"`
	} `json:"member,omitempty"`
}

type DiscordEventPayload struct {
	Type    string              `json:"type"` // MESSAGE_CREATE / MESSAGE_UPDATE / MESSAGE_DELETE / THREAD_DELETE
	Message DiscordEventMessage `json:"message"`
	Thread  *struct {
		ID string `json:"id"`
	} `json:"thread,omitempty"`
}

func (h *DiscordEventHandler) HandleEvent(c *gin.Context) {
	var payload DiscordEventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	log.Printf("discord event received: type=%s, message=%s, channel=%s",
		payload.Type, payload.Message.ID, payload.Message.ChannelID)

	switch payload.Type {
	case "MESSAGE_CREATE":
		h.handleMessageCreate(c, payload.Message)
	case "MESSAGE_UPDATE":
		h.handleMessageUpdate(c, payload.Message)
	case "MESSAGE_DELETE":
		h.handleMessageDelete(c, payload.Message)
	case "THREAD_DELETE":
		h.handleThreadDelete(c, payload)
	default:
		c.JSON(http.StatusOK, gin.H{"ignored": true, "event": payload.Type})
	}
}

// スレッド内の発言を Jira コメントとして転送する
// ユーザーのメッセージは消してボット名義で再投稿し、以降の編集/削除の追跡を
// ボット所有のメッセージIDで安定させる
func (h *DiscordEventHandler) handleMessageCreate(c *gin.Context, msg DiscordEventMessage) {
	if h.isBotMessage(msg) {
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "bot-message"})
		return
	}

	threadID := msg.ChannelID

	ticketKey, err := services.GetTicketKeyByThreadID(h.DB, threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mapping lookup failed", "message": err.Error()})
		return
	}
	if ticketKey == "" {
		// 自分が作ったスレッドではない
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "no-mapping"})
		return
	}

	authorName := authorDisplayName(msg)
	content := msg.Content

	if err := h.Discord.DeleteMessage(threadID, msg.ID); err != nil {
		log.Printf("original message delete error (thread: %s): %v", threadID, err)
		h.postFailureNotice(threadID, authorName)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "failed to delete original message"})
		return
	}

	repostID, err := h.Discord.SendMessage(threadID, services.FormatDiscordComment(authorName, content))
	if err != nil {
		log.Printf("repost error (thread: %s): %v", threadID, err)
		h.postFailureNotice(threadID, authorName)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "failed to repost message"})
		return
	}

	// Jira 側の登録前にマッピングを作っておき、コメントIDはあとから紐づける
	if err := services.SaveCommentMapping(h.DB, repostID, "", threadID, ticketKey, "discord"); err != nil {
		log.Printf("comment mapping save error (ticket: %s): %v", ticketKey, err)
		h.postFailureNotice(threadID, authorName)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "failed to save mapping"})
		return
	}

	body := services.MarkDiscordOriginated(authorName, services.TranslateMentions(h.DB, content))

	jiraCommentID, err := h.Jira.AddComment(ticketKey, body)
	if err != nil {
		log.Printf("jira comment add error (ticket: %s): %v", ticketKey, err)
		h.postFailureNotice(threadID, authorName)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "failed to add jira comment"})
		return
	}

	if err := services.SetJiraCommentID(h.DB, repostID, jiraCommentID); err != nil {
		log.Printf("comment id bind error (ticket: %s, comment: %s): %v", ticketKey, jiraCommentID, err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "failed to bind comment id"})
		return
	}

	log.Printf("✅ discord comment mirrored to jira: ticket=%s, comment=%s, author=%s",
		ticketKey, jiraCommentID, authorName)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"ticketKey":     ticketKey,
		"jiraCommentId": jiraCommentID,
	})
}

// スレッド内の編集を Jira コメントに反映する（Discord 発のコメントのみ）
func (h *DiscordEventHandler) handleMessageUpdate(c *gin.Context, msg DiscordEventMessage) {
	// 部分データならメッセージ全体を取り直す
	if msg.Partial {
		fetched, err := h.Discord.FetchMessage(msg.ChannelID, msg.ID)
		if err != nil {
			log.Printf("message fetch error (message: %s): %v", msg.ID, err)
			c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "fetch-failed"})
			return
		}
		msg.Content = fetched.Content
		msg.Author = &fetched.Author
	}

	// 本文が変わっていない編集（embed 展開など）は無視
	if msg.OldContent != nil && *msg.OldContent == msg.Content {
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "unchanged"})
		return
	}

	if h.isBotMessage(msg) {
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "bot-message"})
		return
	}

	mapping, err := services.GetCommentMappingByDiscordMessageID(h.DB, msg.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mapping lookup failed", "message": err.Error()})
		return
	}
	if mapping == nil || mapping.JiraCommentID == nil {
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "no-mapping"})
		return
	}

	// Jira 発のコメントの編集コピーを Jira に書き戻さない
	if mapping.Source != "discord" {
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "jira-originated"})
		return
	}

	authorName := authorDisplayName(msg)
	body := services.MarkDiscordOriginated(authorName, services.TranslateMentions(h.DB, msg.Content))

	if err := h.Jira.UpdateComment(mapping.TicketKey, *mapping.JiraCommentID, body); err != nil {
		log.Printf("jira comment update error (ticket: %s, comment: %s): %v",
			mapping.TicketKey, *mapping.JiraCommentID, err)
		h.postFailureNotice(mapping.ThreadID, authorName)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "failed to update jira comment"})
		return
	}

	log.Printf("✅ discord edit mirrored to jira: ticket=%s, comment=%s", mapping.TicketKey, *mapping.JiraCommentID)
	c.JSON(http.StatusOK, gin.H{"success": true, "jiraCommentId": *mapping.JiraCommentID})
}

// スレッド内の削除を Jira コメントに反映する
// 消えたメッセージは取得できないのでIDだけで処理する
func (h *DiscordEventHandler) handleMessageDelete(c *gin.Context, msg DiscordEventMessage) {
	mapping, err := services.GetCommentMappingByDiscordMessageID(h.DB, msg.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mapping lookup failed", "message": err.Error()})
		return
	}
	if mapping == nil || mapping.JiraCommentID == nil {
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "no-mapping"})
		return
	}

	// Jira 発のメッセージが消されたときは Jira 側には触らずマッピングだけ落とす
	if mapping.Source != "discord" {
		if err := services.DeleteCommentMappingByDiscordMessageID(h.DB, msg.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete mapping", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "action": "mapping-dropped"})
		return
	}

	// リモート削除が失敗してもローカルのマッピングは残さない
	if err := h.Jira.DeleteComment(mapping.TicketKey, *mapping.JiraCommentID); err != nil {
		log.Printf("jira comment delete error (ticket: %s, comment: %s): %v",
			mapping.TicketKey, *mapping.JiraCommentID, err)
	}

	if err := services.DeleteCommentMappingByDiscordMessageID(h.DB, msg.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete mapping", "message": err.Error()})
		return
	}

	log.Printf("✅ discord delete mirrored to jira: ticket=%s, comment=%s", mapping.TicketKey, *mapping.JiraCommentID)
	c.JSON(http.StatusOK, gin.H{"success": true, "action": "deleted"})
}

// スレッド自体が消されたらマッピングを掃除する
func (h *DiscordEventHandler) handleThreadDelete(c *gin.Context, payload DiscordEventPayload) {
	if payload.Thread == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no thread in payload"})
		return
	}

	threadID := payload.Thread.ID

	mapping, err := services.GetMappingByThreadID(h.DB, threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mapping lookup failed", "message": err.Error()})
		return
	}
	if mapping == nil {
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": "no-mapping"})
		return
	}

	if err := services.DeleteCommentMappingsByTicketKey(h.DB, mapping.TicketKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete comment mappings", "message": err.Error()})
		return
	}
	if err := services.DeleteMappingByThreadID(h.DB, threadID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete thread mapping", "message": err.Error()})
		return
	}

	log.Printf("✅ thread mapping removed: thread=%s, ticket=%s", threadID, mapping.TicketKey)
	c.JSON(http.StatusOK, gin.H{"success": true, "ticketKey": mapping.TicketKey})
}

func (h *DiscordEventHandler) isBotMessage(msg DiscordEventMessage) bool {
	if msg.Author == nil {
		return false
	}
	return msg.Author.Bot || msg.Author.ID == h.BotUserID
}

// 同期に失敗したことをスレッドに知らせる（ベストエフォート）
func (h *DiscordEventHandler) postFailureNotice(threadID, authorName string) {
	notice := "⚠️ " + authorName + " さんのメッセージを Jira に同期できませんでした。"
	if _, err := h.Discord.SendMessage(threadID, notice); err != nil {
		log.Printf("failure notice post error (thread: %s): %v", threadID, err)
	}
}

// メッセージの作者の表示名を取り出す関数
// サーバーのニックネーム → グローバル表示名 → ユーザー名の順
func authorDisplayName(msg DiscordEventMessage) string {
	if msg.Member != nil && msg.Member.Nick != "" {
		return msg.Member.Nick
	}
	if msg.Author == nil {
		return "Unknown"
	}
	if msg.Author.GlobalName != "" {
		return msg.Author.GlobalName
	}
	return msg.Author.Username
}
