package httpapi

import (
	"context"
	"errors"
	"net/http"

	"comms-platform/internal/auth"
	"comms-platform/internal/ledger"

	"github.com/gin-gonic/gin"
)

// StateReader is the minimal ledger interface needed by middleware.
type StateReader interface {
	GetState(ctx context.Context, userID string) (ledger.BillingState, error)
}

// RequireIntlNotBlocked rejects requests from accounts with an international block
// before recipients are resolved. The send gate repeats the check under the user lock.
func RequireIntlNotBlocked(states StateReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}

		st, err := states.GetState(c.Request.Context(), userID)
		if errors.Is(err, ledger.ErrUserNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing state lookup failed"})
			return
		}
		if st.Blocked() {
			// 402 Payment Required is semantically appropriate.
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "intl_blocked", "reason": st.BlockedReason})
			return
		}

		c.Next()
	}
}
