package middleware

import (
	"errors"
	"net/http"

	"promptforge-backend/internal/domain/entitlement"

	"github.com/gin-gonic/gin"
)

// RequireEntitlement gates a route on the engine's decision. Handlers
// behind it still re-check at consumption time; this just rejects early
// with the decision's own message.
func RequireEntitlement(engine *entitlement.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("account_id")
		if accountID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Account not identified"})
			return
		}

		dec, err := engine.Evaluate(c.Request.Context(), accountID)
		if err != nil {
			if errors.Is(err, entitlement.ErrUnknownAccount) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Account not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate entitlement"})
			return
		}

		if !dec.HasAccess {
			status := http.StatusForbidden
			if dec.Status == entitlement.StatusPastDue || dec.Status == entitlement.StatusExpired {
				status = http.StatusPaymentRequired
			}
			c.AbortWithStatusJSON(status, gin.H{"error": dec.Message})
			return
		}

		c.Next()
	}
}
