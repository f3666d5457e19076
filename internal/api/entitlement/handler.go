package entitlement

import (
	"errors"
	"io"
	"net/http"

	"promptforge-backend/internal/domain/entitlement"

	"github.com/gin-gonic/gin"
)

// Handler exposes the engine's query/consume pair to the UI.
type Handler struct {
	engine *entitlement.Engine
}

func NewHandler(engine *entitlement.Engine) *Handler {
	return &Handler{engine: engine}
}

// GetEntitlement answers "can this account use a paid feature right now".
func (h *Handler) GetEntitlement(c *gin.Context) {
	accountID := c.GetString("account_id")
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account not identified"})
		return
	}

	dec, err := h.engine.Evaluate(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, entitlement.ErrUnknownAccount) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate entitlement"})
		return
	}

	c.JSON(http.StatusOK, dec)
}

// Consume reports one successful unit of usage. The engine re-checks
// entitlement itself; a stale client snapshot cannot overdraw.
func (h *Handler) Consume(c *gin.Context) {
	accountID := c.GetString("account_id")
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account not identified"})
		return
	}

	// Body is optional; an empty one means a chat prompt. Anything present
	// must decode and name a known kind.
	var body struct {
		Kind string `json:"kind"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid request body"})
		return
	}

	var kind entitlement.PromptKind
	switch body.Kind {
	case "", string(entitlement.KindChat):
		kind = entitlement.KindChat
	case string(entitlement.KindImage):
		kind = entitlement.KindImage
	default:
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Unknown prompt kind"})
		return
	}

	dec, err := h.engine.Consume(c.Request.Context(), accountID, kind)
	if err != nil {
		if errors.Is(err, entitlement.ErrInsufficientEntitlement) {
			c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": dec.Message, "decision": dec})
			return
		}
		if errors.Is(err, entitlement.ErrUnknownAccount) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to record usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "decision": dec})
}
