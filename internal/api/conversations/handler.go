package conversations

import (
	"net/http"

	"promptforge-backend/database"
	"promptforge-backend/internal/domain/conversations"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ConversationSummary struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

type MessageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func ListConversations(c *gin.Context) {
	accountID := c.GetString("account_id")

	var convs []conversations.Conversation
	if err := database.DB.
		Where("account_id = ?", accountID).
		Order("updated_at DESC").
		Find(&convs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversations"})
		return
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		out = append(out, ConversationSummary{
			ID:        conv.ID,
			Kind:      conv.Kind,
			Title:     conv.Title,
			UpdatedAt: conv.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	c.JSON(http.StatusOK, out)
}

func GetConversation(c *gin.Context) {
	accountID := c.GetString("account_id")
	id := c.Param("id")

	var conv conversations.Conversation
	if err := database.DB.
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("messages.id ASC") }).
		Where("id = ? AND account_id = ?", id, accountID).
		First(&conv).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	msgs := make([]MessageDTO, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		msgs = append(msgs, MessageDTO{Role: m.Role, Content: m.Content})
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       conv.ID,
		"kind":     conv.Kind,
		"title":    conv.Title,
		"messages": msgs,
	})
}

func DeleteConversation(c *gin.Context) {
	accountID := c.GetString("account_id")
	id := c.Param("id")

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND account_id = ?", id, accountID).
			Delete(&conversations.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("conversation_id = ?", id).Delete(&conversations.Message{}).Error
	})
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted"})
}
