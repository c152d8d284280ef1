package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"gorm.io/gorm"
)

// Jira REST API (v3) のクライアント
type JiraClient struct {
	BaseURL    string
	Email      string
	APIToken   string
	HTTPClient *http.Client
}

func NewJiraClient(host, email, apiToken string) *JiraClient {
	return &JiraClient{
		BaseURL:    host,
		Email:      email,
		APIToken:   apiToken,
		HTTPClient: http.DefaultClient,
	}
}

// Jira API が 2xx 以外を返したときのエラー（ステータスとボディを呼び出し側に渡す）
type JiraAPIError struct {
	Status int
	Body   string
}

func (e *JiraAPIError) Error() string {
	return fmt.Sprintf("jira api error (%d): %s", e.Status, e.Body)
}

type JiraUser struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

type JiraIssueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description,omitempty"`
	Issuetype   *struct {
		Name string `json:"name"`
	} `json:"issuetype,omitempty"`
	Assignee *JiraUser `json:"assignee,omitempty"`
	Priority *struct {
		Name string `json:"name"`
	} `json:"priority,omitempty"`
	Status *struct {
		Name string `json:"name"`
	} `json:"status,omitempty"`
}

type JiraIssue struct {
	Key    string          `json:"key"`
	Fields JiraIssueFields `json:"fields"`
}

// Jira コメント。Body は文字列のことも ADF オブジェクトのこともあるので RawMessage で受ける
type JiraComment struct {
	ID     string          `json:"id"`
	Body   json.RawMessage `json:"body,omitempty"`
	Author *JiraUser       `json:"author,omitempty"`
}

// Jira Webhook のペイロード。webhookEvent の値でイベント種別を判別する
type JiraWebhookPayload struct {
	WebhookEvent string       `json:"webhookEvent"`
	Issue        *JiraIssue   `json:"issue,omitempty"`
	Comment      *JiraComment `json:"comment,omitempty"`
	User         *JiraUser    `json:"user,omitempty"`
}

func (c *JiraClient) doRequest(method, endpoint string, payload interface{}) ([]byte, error) {
	url := c.BaseURL + "/rest/api/3" + endpoint

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(c.Email, c.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &JiraAPIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// プレーンテキストを ADF（doc > paragraph > text）に包む関数
func adfTextBody(text string) map[string]interface{} {
	return map[string]interface{}{
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
	}
}

// チケットにコメントを追加する関数（Jira が採番したコメントIDを返す）
func (c *JiraClient) AddComment(issueKey, text string) (string, error) {
	respBody, err := c.doRequest("POST", fmt.Sprintf("/issue/%s/comment", issueKey), adfTextBody(text))
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", err
	}

	return created.ID, nil
}

// コメントを更新する関数
func (c *JiraClient) UpdateComment(issueKey, commentID, text string) error {
	_, err := c.doRequest("PUT", fmt.Sprintf("/issue/%s/comment/%s", issueKey, commentID), adfTextBody(text))
	return err
}

// コメントを削除する関数
func (c *JiraClient) DeleteComment(issueKey, commentID string) error {
	_, err := c.doRequest("DELETE", fmt.Sprintf("/issue/%s/comment/%s", issueKey, commentID), nil)
	return err
}

// チケット情報を取得する関数
func (c *JiraClient) GetIssue(issueKey string) (*JiraIssue, error) {
	respBody, err := c.doRequest("GET", fmt.Sprintf("/issue/%s", issueKey), nil)
	if err != nil {
		return nil, err
	}

	var issue JiraIssue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, err
	}

	return &issue, nil
}

// Discord への通知に使うチケット情報
type TicketInfo struct {
	Key         string
	Summary     string
	Type        string
	Assignee    string
	Priority    string
	Description string
	URL         string
	Status      string
}

// JiraIssue を TicketInfo に変換する関数
func ParseJiraIssue(db *gorm.DB, jiraHost string, issue *JiraIssue) TicketInfo {
	ticket := TicketInfo{
		Key:      issue.Key,
		Summary:  issue.Fields.Summary,
		Type:     "Task",
		Priority: "Medium",
		Status:   "To Do",
		URL:      fmt.Sprintf("%s/browse/%s", jiraHost, issue.Key),
	}

	if issue.Fields.Issuetype != nil {
		ticket.Type = issue.Fields.Issuetype.Name
	}
	if issue.Fields.Assignee != nil {
		ticket.Assignee = issue.Fields.Assignee.DisplayName
	}
	if issue.Fields.Priority != nil {
		ticket.Priority = issue.Fields.Priority.Name
	}
	if issue.Fields.Status != nil {
		ticket.Status = issue.Fields.Status.Name
	}

	// embed の文字数制限があるので説明は1000文字で切る
	description := ExtractDescriptionMarkdown(db, issue.Fields.Description)
	if runes := []rune(description); len(runes) > 1000 {
		description = string(runes[:1000])
	}
	ticket.Description = description

	return ticket
}
