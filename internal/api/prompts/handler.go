package prompts

import (
	"errors"
	"net/http"
	"time"

	"promptforge-backend/internal/domain/conversations"
	"promptforge-backend/internal/domain/entitlement"
	aiclient "promptforge-backend/internal/infra/openai"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const maxTitleLen = 60

// Handler serves the entitlement-gated AI endpoints. Flow is always:
// evaluate, call the provider, persist, then consume one unit. Consumption
// happens after the provider call succeeds so a failed generation costs
// nothing; the engine re-checks entitlement again at that point.
type Handler struct {
	db     *gorm.DB
	engine *entitlement.Engine
	ai     aiclient.Client
}

func NewHandler(db *gorm.DB, engine *entitlement.Engine, ai aiclient.Client) *Handler {
	return &Handler{db: db, engine: engine, ai: ai}
}

// Chat runs one completion turn, optionally continuing a conversation.
func (h *Handler) Chat(c *gin.Context) {
	var body struct {
		ConversationID string `json:"conversation_id"`
		Message        string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid message"})
		return
	}

	accountID := c.GetString("account_id")
	ctx := c.Request.Context()

	dec, err := h.engine.Evaluate(ctx, accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate entitlement"})
		return
	}
	if !dec.HasAccess {
		c.JSON(http.StatusForbidden, gin.H{"error": dec.Message})
		return
	}

	conv, history, err := h.loadOrCreateConversation(accountID, body.ConversationID, conversations.KindChat, body.Message)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	messages := append(history, aiclient.ChatMessage{Role: "user", Content: body.Message})
	reply, err := h.ai.ChatCompletion(ctx, messages)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("chat completion failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "The assistant is unavailable right now. Please try again."})
		return
	}

	if err := h.appendTurn(conv, body.Message, reply); err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Msg("failed to persist chat turn")
	}

	dec, err = h.engine.Consume(ctx, accountID, entitlement.KindChat)
	if err != nil && !errors.Is(err, entitlement.ErrInsufficientEntitlement) {
		log.Error().Err(err).Str("account_id", accountID).Msg("failed to record consumption")
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id":   conv.ID,
		"reply":             reply,
		"prompts_remaining": dec.PromptsRemaining,
	})
}

// GenerateImage produces one image for a prompt. Each image lives in its
// own conversation so history shows the prompt next to the result URL.
func (h *Handler) GenerateImage(c *gin.Context) {
	var body struct {
		Prompt string `json:"prompt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid prompt"})
		return
	}

	accountID := c.GetString("account_id")
	ctx := c.Request.Context()

	dec, err := h.engine.Evaluate(ctx, accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate entitlement"})
		return
	}
	if !dec.HasAccess {
		c.JSON(http.StatusForbidden, gin.H{"error": dec.Message})
		return
	}

	url, err := h.ai.GenerateImage(ctx, body.Prompt)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("image generation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Image generation is unavailable right now. Please try again."})
		return
	}

	conv := &conversations.Conversation{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Kind:      conversations.KindImage,
		Title:     title(body.Prompt),
	}
	if err := h.db.Create(conv).Error; err == nil {
		_ = h.appendTurn(conv, body.Prompt, url)
	} else {
		log.Error().Err(err).Str("account_id", accountID).Msg("failed to persist image conversation")
	}

	dec, err = h.engine.Consume(ctx, accountID, entitlement.KindImage)
	if err != nil && !errors.Is(err, entitlement.ErrInsufficientEntitlement) {
		log.Error().Err(err).Str("account_id", accountID).Msg("failed to record consumption")
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id":   conv.ID,
		"image_url":         url,
		"prompts_remaining": dec.PromptsRemaining,
	})
}

func (h *Handler) loadOrCreateConversation(accountID, conversationID, kind, firstMessage string) (*conversations.Conversation, []aiclient.ChatMessage, error) {
	if conversationID == "" {
		conv := &conversations.Conversation{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Kind:      kind,
			Title:     title(firstMessage),
		}
		if err := h.db.Create(conv).Error; err != nil {
			return nil, nil, err
		}
		return conv, nil, nil
	}

	var conv conversations.Conversation
	if err := h.db.
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("messages.id ASC") }).
		Where("id = ? AND account_id = ?", conversationID, accountID).
		First(&conv).Error; err != nil {
		return nil, nil, err
	}

	history := make([]aiclient.ChatMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		history = append(history, aiclient.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return &conv, history, nil
}

func (h *Handler) appendTurn(conv *conversations.Conversation, userContent, assistantContent string) error {
	now := time.Now()
	msgs := []conversations.Message{
		{ConversationID: conv.ID, Role: "user", Content: userContent, CreatedAt: now},
		{ConversationID: conv.ID, Role: "assistant", Content: assistantContent, CreatedAt: now},
	}
	if err := h.db.Create(&msgs).Error; err != nil {
		return err
	}
	return h.db.Model(conv).Update("updated_at", now).Error
}

func title(s string) string {
	if len(s) <= maxTitleLen {
		return s
	}
	return s[:maxTitleLen]
}
