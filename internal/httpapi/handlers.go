package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"comms-platform/internal/auth"
	"comms-platform/internal/billing"
	"comms-platform/internal/ledger"
	"comms-platform/internal/quote"
	"comms-platform/internal/rbac"
	"comms-platform/internal/recipients"
	"comms-platform/internal/reporting"
	"comms-platform/internal/sendgate"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth       *auth.Manager
	Quotes     *quote.Engine
	Gate       *sendgate.Gate
	Recipients recipients.Resolver
	Ledger     *ledger.Service
	Reports    *reporting.Service
	Policy     billing.Policy

	// DevLogin enables the credential-less login endpoint outside production.
	DevLogin bool
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: development only. Production deployments receive tokens from the identity service.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || !h.DevLogin {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || !rbac.Valid(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and a valid role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Blasts ---

type quoteRequest struct {
	GroupIDs   []string `json:"groupIds"`
	ContactIDs []string `json:"contactIds"`
	Channels   []string `json:"channels"`
}

type sendRequest struct {
	GroupIDs   []string     `json:"groupIds"`
	ContactIDs []string     `json:"contactIds"`
	Channels   []string     `json:"channels"`
	Body       string       `json:"body"`
	Quote      *quote.Quote `json:"quote"`
}

func normaliseChannels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ch := range recipients.Dedupe(in) {
		out = append(out, strings.ToLower(ch))
	}
	return out
}

// Quote prices an SMS blast for the caller.
func (h Handlers) Quote(c *gin.Context) {
	if h.Quotes == nil || h.Recipients == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "quotes not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	channels := normaliseChannels(req.Channels)
	if len(channels) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "channels required"})
		return
	}

	set, err := h.Recipients.Resolve(c.Request.Context(), userID, req.GroupIDs, req.ContactIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	if quote.HasSMS(channels) && len(set.SMS) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no_sms_recipients"})
		return
	}

	q, err := h.Quotes.Quote(c.Request.Context(), userID, set.SMS, channels)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// Send authorises and enqueues a blast. The client re-submits the quote it confirmed.
func (h Handlers) Send(c *gin.Context) {
	if h.Gate == nil || h.Recipients == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sending not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	channels := normaliseChannels(req.Channels)
	body := strings.TrimSpace(req.Body)
	switch {
	case len(req.GroupIDs) == 0 && len(req.ContactIDs) == 0:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "groupIds or contactIds required"})
		return
	case len(channels) == 0:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "channels required"})
		return
	case body == "":
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "body_required"})
		return
	}

	set, err := h.Recipients.Resolve(c.Request.Context(), userID, req.GroupIDs, req.ContactIDs)
	if err != nil {
		writeError(c, err)
		return
	}

	var q quote.Quote
	if req.Quote != nil {
		q = *req.Quote
	}
	res, err := h.Gate.AuthorizeSend(c.Request.Context(), sendgate.Request{
		UserID:     userID,
		Channels:   channels,
		Recipients: set,
		Body:       body,
		Quote:      q,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Billing ---

type intlBillingResponse struct {
	ledger.BillingState
	Blocked bool                   `json:"blocked"`
	Caps    *billing.CapThresholds `json:"caps,omitempty"`
}

func (h Handlers) stateResponse(st ledger.BillingState) intlBillingResponse {
	out := intlBillingResponse{BillingState: st, Blocked: st.Blocked()}
	if caps, err := h.Policy.CapsFor(st.PlanTier); err == nil {
		out.Caps = &caps
	}
	return out
}

// GetIntlBilling returns the caller's international spend state and caps.
func (h Handlers) GetIntlBilling(c *gin.Context) {
	if h.Ledger == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	st, err := h.Ledger.GetState(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.stateResponse(st))
}

// defaultReportWindow applies when the caller omits from.
const defaultReportWindow = 30 * 24 * time.Hour

// GetIntlCharges summarises the caller's immediate charges.
// Query: from, to (RFC3339). Defaults to the last 30 days.
func (h Handlers) GetIntlCharges(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}

	to := time.Now().UTC()
	if v := strings.TrimSpace(c.Query("to")); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
	}
	from := to.Add(-defaultReportWindow)
	if v := strings.TrimSpace(c.Query("from")); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
	}

	out, err := h.Reports.ChargeSummary(c.Request.Context(), reporting.ChargeSummaryRequest{
		UserID: userID,
		Range:  reporting.TimeRange{From: from, To: to},
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// AdminGetIntlBilling returns any user's state.
// RBAC: support or admin.
func (h Handlers) AdminGetIntlBilling(c *gin.Context) {
	if h.Ledger == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	st, err := h.Ledger.GetState(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.stateResponse(st))
}

// AdminUnblock clears a user's international block.
// RBAC: support or admin.
func (h Handlers) AdminUnblock(c *gin.Context) {
	if h.Ledger == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	h.adminMutation(c, h.Ledger.Unblock)
}

// AdminResetCycle zeroes the user's cycle spend at billing rollover.
// RBAC: admin.
func (h Handlers) AdminResetCycle(c *gin.Context) {
	if h.Ledger == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	h.adminMutation(c, h.Ledger.ResetCycle)
}

type adminOp func(ctx context.Context, userID, actorUserID, actorRole string) (ledger.BillingState, error)

func (h Handlers) adminMutation(c *gin.Context, op adminOp) {
	ctx := c.Request.Context()
	actorID, err := auth.UserID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	actorRole, _ := auth.Role(ctx)

	target := strings.TrimSpace(c.Param("user_id"))
	if target == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	st, err := op(ctx, target, actorID, actorRole)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.stateResponse(st))
}
