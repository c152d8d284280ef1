package handlers

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"jira-discord-relay/models"
	"jira-discord-relay/services"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("fail to open test db: %v", err)
	}

	if err := db.AutoMigrate(&models.ThreadTicketMapping{}, &models.CommentMessageMapping{}, &models.UserMapping{}); err != nil {
		t.Fatalf("fail to migrate test db: %v", err)
	}

	return db
}

// Discord クライアントのフェイク。呼び出しを記録し、メソッド単位でエラーを注入できる
type discordCall struct {
	Method    string
	ChannelID string
	MessageID string
	Content   string
}

type fakeDiscord struct {
	calls   []discordCall
	nextID  int
	fetched *services.DiscordMessage
	errOn   map[string]error
}

func newFakeDiscord() *fakeDiscord {
	return &fakeDiscord{errOn: map[string]error{}}
}

func (f *fakeDiscord) newMessageID() string {
	f.nextID++
	return fmt.Sprintf("MSG-%d", f.nextID)
}

func (f *fakeDiscord) record(method, channelID, messageID, content string) {
	f.calls = append(f.calls, discordCall{Method: method, ChannelID: channelID, MessageID: messageID, Content: content})
}

func (f *fakeDiscord) callCount(method string) int {
	count := 0
	for _, call := range f.calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

func (f *fakeDiscord) lastCall(method string) *discordCall {
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return &f.calls[i]
		}
	}
	return nil
}

func (f *fakeDiscord) SendMessage(channelID, content string) (string, error) {
	if err := f.errOn["SendMessage"]; err != nil {
		return "", err
	}
	id := f.newMessageID()
	f.record("SendMessage", channelID, id, content)
	return id, nil
}

func (f *fakeDiscord) SendEmbed(channelID string, embed services.Embed) (string, error) {
	if err := f.errOn["SendEmbed"]; err != nil {
		return "", err
	}
	id := f.newMessageID()
	f.record("SendEmbed", channelID, id, embed.Title)
	return id, nil
}

func (f *fakeDiscord) StartThread(channelID, messageID, name string) (string, error) {
	if err := f.errOn["StartThread"]; err != nil {
		return "", err
	}
	threadID := fmt.Sprintf("THREAD-%s", messageID)
	f.record("StartThread", channelID, messageID, name)
	return threadID, nil
}

func (f *fakeDiscord) EditMessage(channelID, messageID, content string) error {
	if err := f.errOn["EditMessage"]; err != nil {
		return err
	}
	f.record("EditMessage", channelID, messageID, content)
	return nil
}

func (f *fakeDiscord) EditMessageEmbed(channelID, messageID string, embed services.Embed) error {
	if err := f.errOn["EditMessageEmbed"]; err != nil {
		return err
	}
	f.record("EditMessageEmbed", channelID, messageID, embed.Title)
	return nil
}

func (f *fakeDiscord) DeleteMessage(channelID, messageID string) error {
	if err := f.errOn["DeleteMessage"]; err != nil {
		return err
	}
	f.record("DeleteMessage", channelID, messageID, "")
	return nil
}

func (f *fakeDiscord) FetchMessage(channelID, messageID string) (*services.DiscordMessage, error) {
	if err := f.errOn["FetchMessage"]; err != nil {
		return nil, err
	}
	f.record("FetchMessage", channelID, messageID, "")
	if f.fetched != nil {
		return f.fetched, nil
	}
	return &services.DiscordMessage{ID: messageID, ChannelID: channelID}, nil
}

func (f *fakeDiscord) DeleteChannel(channelID string) error {
	if err := f.errOn["DeleteChannel"]; err != nil {
		return err
	}
	f.record("DeleteChannel", channelID, "", "")
	return nil
}

func (f *fakeDiscord) UnarchiveThread(threadID string) error {
	if err := f.errOn["UnarchiveThread"]; err != nil {
		return err
	}
	f.record("UnarchiveThread", threadID, "", "")
	return nil
}

// Jira クライアントのフェイク
type jiraCall struct {
	Method    string
	IssueKey  string
	CommentID string
	Text      string
}

type fakeJira struct {
	calls         []jiraCall
	nextCommentID int
	errOn         map[string]error
}

func newFakeJira() *fakeJira {
	return &fakeJira{errOn: map[string]error{}}
}

func (f *fakeJira) callCount(method string) int {
	count := 0
	for _, call := range f.calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

func (f *fakeJira) lastCall(method string) *jiraCall {
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return &f.calls[i]
		}
	}
	return nil
}

func (f *fakeJira) AddComment(issueKey, text string) (string, error) {
	if err := f.errOn["AddComment"]; err != nil {
		return "", err
	}
	f.nextCommentID++
	commentID := fmt.Sprintf("1000%d", f.nextCommentID)
	f.calls = append(f.calls, jiraCall{Method: "AddComment", IssueKey: issueKey, CommentID: commentID, Text: text})
	return commentID, nil
}

func (f *fakeJira) UpdateComment(issueKey, commentID, text string) error {
	if err := f.errOn["UpdateComment"]; err != nil {
		return err
	}
	f.calls = append(f.calls, jiraCall{Method: "UpdateComment", IssueKey: issueKey, CommentID: commentID, Text: text})
	return nil
}

func (f *fakeJira) DeleteComment(issueKey, commentID string) error {
	if err := f.errOn["DeleteComment"]; err != nil {
		return err
	}
	f.calls = append(f.calls, jiraCall{Method: "DeleteComment", IssueKey: issueKey, CommentID: commentID})
	return nil
}
