package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Discord REST API (v10) のクライアント
type DiscordClient struct {
	BaseURL    string
	BotToken   string
	HTTPClient *http.Client
}

func NewDiscordClient(botToken string) *DiscordClient {
	return &DiscordClient{
		BaseURL:    "https://discord.com/api/v10",
		BotToken:   botToken,
		HTTPClient: http.DefaultClient,
	}
}

// Discord API が 2xx 以外を返したときのエラー
type DiscordAPIError struct {
	Status int
	Body   string
}

func (e *DiscordAPIError) Error() string {
	return fmt.Sprintf("discord api error (%d): %s", e.Status, e.Body)
}

// 対象がすでに存在しない（404）エラーかどうか判定する関数
// 削除系のベストエフォート処理で使う
func IsNotFoundError(err error) bool {
	var apiErr *DiscordAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusNotFound
	}
	return false
}

type DiscordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Bot        bool   `json:"bot,omitempty"`
}

type DiscordMessage struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	Content   string      `json:"content"`
	Author    DiscordUser `json:"author"`
}

func (c *DiscordClient) doRequest(method, endpoint string, payload interface{}) ([]byte, error) {
	url := c.BaseURL + endpoint

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

	req.Header.Set("Authorization", "Bot "+c.BotToken)
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
		return nil, &DiscordAPIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// チャンネルにメッセージを送る関数（メッセージIDを返す）
func (c *DiscordClient) SendMessage(channelID, content string) (string, error) {
	respBody, err := c.doRequest("POST", fmt.Sprintf("/channels/%s/messages", channelID), map[string]interface{}{
		"content": content,
		"allowed_mentions": map[string]interface{}{
			"parse": []string{"users"},
		},
	})
	if err != nil {
		return "", err
	}

	var message DiscordMessage
	if err := json.Unmarshal(respBody, &message); err != nil {
		return "", err
	}

	return message.ID, nil
}

// チャンネルに embed 付きメッセージを送る関数（メッセージIDを返す）
func (c *DiscordClient) SendEmbed(channelID string, embed Embed) (string, error) {
	respBody, err := c.doRequest("POST", fmt.Sprintf("/channels/%s/messages", channelID), map[string]interface{}{
		"embeds": []Embed{embed},
	})
	if err != nil {
		return "", err
	}

	var message DiscordMessage
	if err := json.Unmarshal(respBody, &message); err != nil {
		return "", err
	}

	return message.ID, nil
}

// メッセージからスレッドを開始する関数（スレッドIDを返す）
// スレッド名は100文字まで。7日で自動アーカイブ
func (c *DiscordClient) StartThread(channelID, messageID, name string) (string, error) {
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	respBody, err := c.doRequest("POST", fmt.Sprintf("/channels/%s/messages/%s/threads", channelID, messageID), map[string]interface{}{
		"name":                  name,
		"auto_archive_duration": 10080,
	})
	if err != nil {
		return "", err
	}

	var thread struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &thread); err != nil {
		return "", err
	}

	return thread.ID, nil
}

// メッセージの本文を書き換える関数
func (c *DiscordClient) EditMessage(channelID, messageID, content string) error {
	_, err := c.doRequest("PATCH", fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), map[string]interface{}{
		"content": content,
		"allowed_mentions": map[string]interface{}{
			"parse": []string{"users"},
		},
	})
	return err
}

// メッセージの embed を書き換える関数（チケット更新の反映用）
func (c *DiscordClient) EditMessageEmbed(channelID, messageID string, embed Embed) error {
	_, err := c.doRequest("PATCH", fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), map[string]interface{}{
		"embeds": []Embed{embed},
	})
	return err
}

// メッセージを削除する関数
func (c *DiscordClient) DeleteMessage(channelID, messageID string) error {
	_, err := c.doRequest("DELETE", fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), nil)
	return err
}

// メッセージを取得する関数（messageUpdate イベントが部分データだったときの補完用）
func (c *DiscordClient) FetchMessage(channelID, messageID string) (*DiscordMessage, error) {
	respBody, err := c.doRequest("GET", fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), nil)
	if err != nil {
		return nil, err
	}

	var message DiscordMessage
	if err := json.Unmarshal(respBody, &message); err != nil {
		return nil, err
	}

	return &message, nil
}

// チャンネル（スレッド）を削除する関数
func (c *DiscordClient) DeleteChannel(channelID string) error {
	_, err := c.doRequest("DELETE", fmt.Sprintf("/channels/%s", channelID), nil)
	return err
}

// アーカイブされたスレッドを戻す関数（アーカイブ後のスレッドに書き込む前に呼ぶ）
func (c *DiscordClient) UnarchiveThread(threadID string) error {
	_, err := c.doRequest("PATCH", fmt.Sprintf("/channels/%s", threadID), map[string]interface{}{
		"archived": false,
	})
	return err
}
