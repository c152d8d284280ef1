package services

import (
	"log"

	"gorm.io/gorm"

	"jira-discord-relay/models"
)

// 親スレッドのマッピングが消えているコメントマッピングを掃除する関数
// チケット削除のカスケード（コメント削除 → スレッドマッピング削除）の途中で
// 落ちた場合に残る孤児行を回収する
func CleanupOrphanedCommentMappings(db *gorm.DB) {
	var mappings []models.CommentMessageMapping

	result := db.Find(&mappings)
	if result.Error != nil {
		log.Printf("orphaned mapping check error: %v", result.Error)
		return
	}

	for _, mapping := range mappings {
		parent, err := GetMappingByThreadID(db, mapping.ThreadID)
		if err != nil {
			log.Printf("thread mapping lookup error (thread: %s): %v", mapping.ThreadID, err)
			continue
		}
		if parent != nil {
			continue
		}

		if err := db.Delete(&mapping).Error; err != nil {
			log.Printf("orphaned mapping delete error (message: %s): %v", mapping.DiscordMessageID, err)
			continue
		}

		log.Printf("✅ orphaned comment mapping removed: message=%s, ticket=%s",
			mapping.DiscordMessageID, mapping.TicketKey)
	}
}
