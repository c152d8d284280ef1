package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"jira-discord-relay/handlers"
	"jira-discord-relay/models"
	"jira-discord-relay/services"
)

func main() {
	// .env があれば読む（なくてもよい）
	godotenv.Load()

	discordToken := requiredEnv("DISCORD_BOT_TOKEN")
	discordChannelID := requiredEnv("DISCORD_CHANNEL_ID")
	jiraHost := requiredEnv("JIRA_HOST")
	jiraEmail := requiredEnv("JIRA_EMAIL")
	jiraAPIToken := requiredEnv("JIRA_API_TOKEN")
	botUserID := os.Getenv("DISCORD_BOT_USER_ID")

	if err := os.MkdirAll("data", 0755); err != nil {
		log.Fatal(err)
	}
	db, err := gorm.Open(sqlite.Open("data/mappings.db"), &gorm.Config{})
	if err != nil {
		log.Fatal(err)
	}
	db.AutoMigrate(&models.ThreadTicketMapping{}, &models.CommentMessageMapping{}, &models.UserMapping{})

	discord := services.NewDiscordClient(discordToken)
	jira := services.NewJiraClient(jiraHost, jiraEmail, jiraAPIToken)

	webhookHandler := handlers.NewJiraWebhookHandler(db, discord, discordChannelID, jiraHost)
	eventHandler := handlers.NewDiscordEventHandler(db, discord, jira, botUserID)

	startedAt := time.Now()

	r := gin.Default()
	r.POST("/webhook/jira", webhookHandler.HandleWebhook)
	r.POST("/discord/events", eventHandler.HandleEvent)
	r.POST("/discord/commands", handlers.HandleDiscordCommand(db))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"uptime":    time.Since(startedAt).Seconds(),
		})
	})

	// カスケード途中で落ちた場合の孤児マッピングを定期的に掃除する
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			services.CleanupOrphanedCommentMappings(db)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}

func requiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("missing required environment variable: %s", key)
	}
	return value
}
