package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"jira-discord-relay/models"
	"jira-discord-relay/services"
)

func setupWebhookRouter(db *gorm.DB, discord DiscordAPI) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewJiraWebhookHandler(db, discord, "C1", "https://example.atlassian.net")
	router := gin.New()
	router.POST("/webhook/jira", handler.HandleWebhook)
	return router
}

func postWebhook(router *gin.Engine, payload map[string]interface{}) *httptest.ResponseRecorder {
	jsonPayload, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", "/webhook/jira", bytes.NewBuffer(jsonPayload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func issuePayload(event, key, summary string) map[string]interface{} {
	return map[string]interface{}{
		"webhookEvent": event,
		"issue": map[string]interface{}{
			"key": key,
			"fields": map[string]interface{}{
				"summary":   summary,
				"issuetype": map[string]interface{}{"name": "Bug"},
				"priority":  map[string]interface{}{"name": "High"},
				"status":    map[string]interface{}{"name": "To Do"},
			},
		},
	}
}

func commentPayload(event, key, commentID, text, author string) map[string]interface{} {
	payload := issuePayload(event, key, "Fix bug")
	payload["comment"] = map[string]interface{}{
		"id": commentID,
		"body": map[string]interface{}{
			"type":    "doc",
			"version": 1,
			"content": []map[string]interface{}{
				{
					"type": "paragraph",
					"content": []map[string]interface{}{
						{"type": "text", "text": text},
					},
				},
			},
		},
		"author": map[string]interface{}{"accountId": "712020:abc", "displayName": author},
	}
	return payload
}

func TestIssueCreated(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	w := postWebhook(router, issuePayload("jira:issue_created", "PROJ-1", "Fix bug"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, discord.callCount("SendEmbed"))
	assert.Equal(t, 1, discord.callCount("StartThread"))

	// スレッド名にチケットキーと要約が入る
	assert.Equal(t, "[PROJ-1] Fix bug", discord.lastCall("StartThread").Content)

	// マッピングが保存されている
	mapping, err := services.GetMappingByTicketKey(db, "PROJ-1")
	assert.NoError(t, err)
	assert.NotNil(t, mapping)
	assert.Equal(t, "C1", mapping.ChannelID)
	assert.Equal(t, "MSG-1", mapping.MessageID)
	assert.Equal(t, "THREAD-MSG-1", mapping.ThreadID)
}

func TestIssueUpdated_SingleMessagePerTicket(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	postWebhook(router, issuePayload("jira:issue_created", "PROJ-1", "Fix bug"))

	// N 回更新しても通知メッセージは1つで、編集だけされる
	for i := 1; i <= 3; i++ {
		w := postWebhook(router, issuePayload("jira:issue_updated", "PROJ-1", fmt.Sprintf("Fix bug v%d", i)))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 1, discord.callCount("SendEmbed"))
	assert.Equal(t, 3, discord.callCount("EditMessageEmbed"))

	// 最新の内容が反映されている
	last := discord.lastCall("EditMessageEmbed")
	assert.Equal(t, "MSG-1", last.MessageID)
	assert.Contains(t, last.Content, "Fix bug v3")

	var count int64
	db.Model(&models.ThreadTicketMapping{}).Where("ticket_key = ?", "PROJ-1").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestIssueUpdated_NoMapping(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	w := postWebhook(router, issuePayload("jira:issue_updated", "PROJ-99", "Unknown"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no-mapping")
	assert.Len(t, discord.calls, 0)
}

func TestCommentCreated(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	assert.NoError(t, services.SaveThreadMapping(db, "T1", "PROJ-1", "M1", "C1"))

	w := postWebhook(router, commentPayload("comment_created", "PROJ-1", "10001", "looks good", "Hanako"))

	assert.Equal(t, http.StatusOK, w.Code)

	// スレッドに Jira 発のフォーマットで転送される
	sent := discord.lastCall("SendMessage")
	assert.NotNil(t, sent)
	assert.Equal(t, "T1", sent.ChannelID)
	assert.Equal(t, "**[Jira - Hanako]**\nlooks good", sent.Content)

	// source=jira のマッピングが残る
	mapping, err := services.GetCommentMappingByJiraCommentID(db, "10001")
	assert.NoError(t, err)
	assert.NotNil(t, mapping)
	assert.Equal(t, "jira", mapping.Source)
	assert.Equal(t, sent.MessageID, mapping.DiscordMessageID)
}

func TestCommentCreated_SelfOriginatedIsDropped(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	assert.NoError(t, services.SaveThreadMapping(db, "T1", "PROJ-1", "M1", "C1"))

	// 自分が Jira に書いたコメントがそのまま webhook で返ってきたケース
	marked := services.MarkDiscordOriginated("Taro", "looks good")
	w := postWebhook(router, commentPayload("comment_created", "PROJ-1", "10001", marked, "Bot"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "discord-originated")

	// Discord には何も送らないし、マッピングも作らない
	assert.Len(t, discord.calls, 0)
	mapping, err := services.GetCommentMappingByJiraCommentID(db, "10001")
	assert.NoError(t, err)
	assert.Nil(t, mapping)
}

func TestCommentCreated_NoMapping(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	w := postWebhook(router, commentPayload("comment_created", "PROJ-99", "10001", "hello", "Hanako"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no-mapping")
	assert.Len(t, discord.calls, 0)
}

func TestCommentUpdated(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	assert.NoError(t, services.SaveThreadMapping(db, "T1", "PROJ-1", "M1", "C1"))
	assert.NoError(t, services.SaveCommentMapping(db, "D1", "10001", "T1", "PROJ-1", "jira"))

	w := postWebhook(router, commentPayload("comment_updated", "PROJ-1", "10001", "updated text", "Hanako"))

	assert.Equal(t, http.StatusOK, w.Code)

	edited := discord.lastCall("EditMessage")
	assert.NotNil(t, edited)
	assert.Equal(t, "D1", edited.MessageID)
	assert.Equal(t, "**[Jira - Hanako]**\nupdated text", edited.Content)
}

func TestCommentUpdated_NoMapping(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	w := postWebhook(router, commentPayload("comment_updated", "PROJ-1", "10404", "updated", "Hanako"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no-mapping")
	assert.Len(t, discord.calls, 0)
}

func TestCommentDeleted(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	assert.NoError(t, services.SaveThreadMapping(db, "T1", "PROJ-1", "M1", "C1"))
	assert.NoError(t, services.SaveCommentMapping(db, "D1", "10001", "T1", "PROJ-1", "jira"))

	w := postWebhook(router, commentPayload("comment_deleted", "PROJ-1", "10001", "", "Hanako"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, discord.callCount("DeleteMessage"))
	assert.Equal(t, "D1", discord.lastCall("DeleteMessage").MessageID)

	mapping, err := services.GetCommentMappingByJiraCommentID(db, "10001")
	assert.NoError(t, err)
	assert.Nil(t, mapping)
}

func TestCommentDeleted_NoMapping_MakesNoRemoteCalls(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	w := postWebhook(router, commentPayload("comment_deleted", "PROJ-1", "10404", "", "Hanako"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no-mapping")
	assert.Len(t, discord.calls, 0)
}

func TestIssueDeleted_CascadeSurvivesRemoteFailures(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	assert.NoError(t, services.SaveThreadMapping(db, "T1", "PROJ-1", "M1", "C1"))
	assert.NoError(t, services.SaveCommentMapping(db, "D1", "10001", "T1", "PROJ-1", "jira"))
	assert.NoError(t, services.SaveCommentMapping(db, "D2", "10002", "T1", "PROJ-1", "discord"))
	assert.NoError(t, services.SaveCommentMapping(db, "D3", "", "T1", "PROJ-1", "discord"))

	// リモートの削除が両方失敗してもローカルのカスケードは完了する
	discord.errOn["DeleteChannel"] = fmt.Errorf("discord api error (404): Unknown Channel")
	discord.errOn["DeleteMessage"] = fmt.Errorf("discord api error (404): Unknown Message")

	w := postWebhook(router, issuePayload("jira:issue_deleted", "PROJ-1", "Fix bug"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "success")

	var commentCount int64
	db.Model(&models.CommentMessageMapping{}).Where("ticket_key = ?", "PROJ-1").Count(&commentCount)
	assert.Equal(t, int64(0), commentCount)

	var threadCount int64
	db.Model(&models.ThreadTicketMapping{}).Where("ticket_key = ?", "PROJ-1").Count(&threadCount)
	assert.Equal(t, int64(0), threadCount)
}

func TestIssueDeleted_NoMapping(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	w := postWebhook(router, issuePayload("jira:issue_deleted", "PROJ-99", "Unknown"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no-mapping")
	assert.Len(t, discord.calls, 0)
}

func TestUnknownEventIsAcknowledged(t *testing.T) {
	db := setupTestDB(t)
	discord := newFakeDiscord()
	router := setupWebhookRouter(db, discord)

	w := postWebhook(router, map[string]interface{}{"webhookEvent": "worklog_created"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Len(t, discord.calls, 0)
}
