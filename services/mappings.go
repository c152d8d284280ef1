package services

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"jira-discord-relay/models"
)

// スレッド↔チケットのマッピングを保存する関数
// 同じチケットキーのマッピングがすでにある場合は古い行を消して置き換える
// （再オープンされたチケットなどで二重に作られても、参照されるのは常に1行だけにする）
func SaveThreadMapping(db *gorm.DB, threadID, ticketKey, messageID, channelID string) error {
	var existing models.ThreadTicketMapping
	err := db.Where("ticket_key = ?", ticketKey).First(&existing).Error
	if err == nil {
		log.Printf("thread mapping already exists for ticket %s (thread: %s). replacing", ticketKey, existing.ThreadID)
		if err := db.Delete(&existing).Error; err != nil {
			return err
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	mapping := models.ThreadTicketMapping{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		TicketKey: ticketKey,
		MessageID: messageID,
		ChannelID: channelID,
		CreatedAt: time.Now(),
	}

	return db.Create(&mapping).Error
}

// チケットキーでマッピングを取得する関数（見つからない場合は nil, nil）
func GetMappingByTicketKey(db *gorm.DB, ticketKey string) (*models.ThreadTicketMapping, error) {
	var mapping models.ThreadTicketMapping
	err := db.Where("ticket_key = ?", ticketKey).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// スレッドIDでマッピングを取得する関数（見つからない場合は nil, nil）
func GetMappingByThreadID(db *gorm.DB, threadID string) (*models.ThreadTicketMapping, error) {
	var mapping models.ThreadTicketMapping
	err := db.Where("thread_id = ?", threadID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// スレッドIDからチケットキーだけを取得する関数（マッピングがなければ空文字）
func GetTicketKeyByThreadID(db *gorm.DB, threadID string) (string, error) {
	mapping, err := GetMappingByThreadID(db, threadID)
	if err != nil {
		return "", err
	}
	if mapping == nil {
		return "", nil
	}
	return mapping.TicketKey, nil
}

// スレッドIDでマッピングを削除する関数（存在しなくてもエラーにしない）
func DeleteMappingByThreadID(db *gorm.DB, threadID string) error {
	return db.Where("thread_id = ?", threadID).Delete(&models.ThreadTicketMapping{}).Error
}

// すべてのスレッドマッピングを取得する関数（デバッグ用）
func ListThreadMappings(db *gorm.DB) ([]models.ThreadTicketMapping, error) {
	var mappings []models.ThreadTicketMapping
	err := db.Order("created_at desc").Find(&mappings).Error
	return mappings, err
}

// コメント↔メッセージのマッピングを保存する関数
// Discord 発のコメントは Jira 側の登録が終わるまで jiraCommentID が空のことがある
func SaveCommentMapping(db *gorm.DB, discordMessageID, jiraCommentID, threadID, ticketKey, source string) error {
	mapping := models.CommentMessageMapping{
		ID:               uuid.NewString(),
		DiscordMessageID: discordMessageID,
		ThreadID:         threadID,
		TicketKey:        ticketKey,
		Source:           source,
		CreatedAt:        time.Now(),
	}
	if jiraCommentID != "" {
		mapping.JiraCommentID = &jiraCommentID
	}

	return db.Create(&mapping).Error
}

// Discord メッセージIDにあとから Jira コメントIDを紐づける関数
// （ローカルのメッセージを先に作り、Jira の応答が返ってから呼ぶ）
func SetJiraCommentID(db *gorm.DB, discordMessageID, jiraCommentID string) error {
	return db.Model(&models.CommentMessageMapping{}).
		Where("discord_message_id = ?", discordMessageID).
		Update("jira_comment_id", jiraCommentID).Error
}

// Jira コメントIDでマッピングを取得する関数（見つからない場合は nil, nil）
func GetCommentMappingByJiraCommentID(db *gorm.DB, jiraCommentID string) (*models.CommentMessageMapping, error) {
	var mapping models.CommentMessageMapping
	err := db.Where("jira_comment_id = ?", jiraCommentID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// Discord メッセージIDでマッピングを取得する関数（見つからない場合は nil, nil）
func GetCommentMappingByDiscordMessageID(db *gorm.DB, discordMessageID string) (*models.CommentMessageMapping, error) {
	var mapping models.CommentMessageMapping
	err := db.Where("discord_message_id = ?", discordMessageID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// Jira コメントIDでマッピングを削除する関数（存在しなくてもエラーにしない）
func DeleteCommentMappingByJiraCommentID(db *gorm.DB, jiraCommentID string) error {
	return db.Where("jira_comment_id = ?", jiraCommentID).Delete(&models.CommentMessageMapping{}).Error
}

// Discord メッセージIDでマッピングを削除する関数（存在しなくてもエラーにしない）
func DeleteCommentMappingByDiscordMessageID(db *gorm.DB, discordMessageID string) error {
	return db.Where("discord_message_id = ?", discordMessageID).Delete(&models.CommentMessageMapping{}).Error
}

// チケットキーに紐づくコメントマッピングをすべて削除する関数
// チケット削除時のカスケード。DeleteMappingByThreadID より先に呼ぶこと
func DeleteCommentMappingsByTicketKey(db *gorm.DB, ticketKey string) error {
	return db.Where("ticket_key = ?", ticketKey).Delete(&models.CommentMessageMapping{}).Error
}

// ユーザーマッピングを保存する関数（jira_account_id キーの upsert）
// 同じアカウントIDで再リンクすると表示名と Discord ユーザーIDを上書きする
func SaveUserMapping(db *gorm.DB, jiraAccountID, jiraDisplayName, discordUserID string) error {
	var existing models.UserMapping
	err := db.Where("jira_account_id = ?", jiraAccountID).First(&existing).Error
	if err == nil {
		existing.JiraDisplayName = jiraDisplayName
		existing.DiscordUserID = discordUserID
		existing.UpdatedAt = time.Now()
		return db.Save(&existing).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	mapping := models.UserMapping{
		ID:              uuid.NewString(),
		JiraAccountID:   jiraAccountID,
		JiraDisplayName: jiraDisplayName,
		DiscordUserID:   discordUserID,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	return db.Create(&mapping).Error
}

// Jira アカウントIDでユーザーマッピングを取得する関数（見つからない場合は nil, nil）
func GetUserMappingByAccountID(db *gorm.DB, jiraAccountID string) (*models.UserMapping, error) {
	var mapping models.UserMapping
	err := db.Where("jira_account_id = ?", jiraAccountID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// Jira 表示名でユーザーマッピングを取得する関数
// メンションノードにアカウントIDがない場合のフォールバック
func GetUserMappingByDisplayName(db *gorm.DB, jiraDisplayName string) (*models.UserMapping, error) {
	var mapping models.UserMapping
	err := db.Where("jira_display_name = ?", jiraDisplayName).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// Discord ユーザーIDでユーザーマッピングを取得する関数（Discord→Jira のメンション変換用）
func GetUserMappingByDiscordUserID(db *gorm.DB, discordUserID string) (*models.UserMapping, error) {
	var mapping models.UserMapping
	err := db.Where("discord_user_id = ?", discordUserID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// ユーザーマッピングを削除する関数（存在しなくてもエラーにしない）
func DeleteUserMapping(db *gorm.DB, jiraAccountID string) error {
	return db.Where("jira_account_id = ?", jiraAccountID).Delete(&models.UserMapping{}).Error
}

// すべてのユーザーマッピングを取得する関数（/link list 用）
func ListUserMappings(db *gorm.DB) ([]models.UserMapping, error) {
	var mappings []models.UserMapping
	err := db.Order("created_at asc").Find(&mappings).Error
	return mappings, err
}
