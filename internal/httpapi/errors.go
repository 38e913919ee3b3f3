package httpapi

import (
	"errors"
	"net/http"

	"comms-platform/internal/charge"
	"comms-platform/internal/ledger"
	"comms-platform/internal/phonecountry"
	"comms-platform/internal/pricing"
	"comms-platform/internal/recipients"
	"comms-platform/internal/sendgate"
	"comms-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// writeError maps service errors onto the public error contract.
// Anything unrecognised is logged and returned as a bare 500.
func writeError(c *gin.Context, err error) {
	var (
		invalidPhone *phonecountry.InvalidPhoneError
		blocked      *sendgate.BlockedError
		stale        *sendgate.StaleQuoteError
	)
	switch {
	case errors.As(err, &invalidPhone):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_phone", "number": invalidPhone.Number})
	case errors.As(err, &blocked):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "intl_blocked", "reason": blocked.Reason})
	case errors.As(err, &stale):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "quote_stale", "quote": stale.Fresh})
	case errors.Is(err, charge.ErrChargeFailed):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "payment_failed"})
	case errors.Is(err, sendgate.ErrLockBusy):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "send_in_progress"})
	case errors.Is(err, sendgate.ErrInvalidQuote):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_quote"})
	case errors.Is(err, sendgate.ErrNoRecipients):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no_recipients"})
	case errors.Is(err, pricing.ErrPricingUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "pricing_unavailable"})
	case errors.Is(err, ledger.ErrUserNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
	case errors.Is(err, ledger.ErrInvalidArgument), errors.Is(err, recipients.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	default:
		logger.FromGin(c).Error("request failed", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
