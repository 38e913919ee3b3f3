package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"comms-platform/internal/ledger"
	"comms-platform/internal/metrics"
	"comms-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const bodyLimit = 1024 * 1024 // 1 MiB

// Reconciler applies invoice notifications to the spend ledger.
type Reconciler interface {
	ApplyInvoiceEvent(ctx context.Context, ev ledger.InvoiceEvent) (ledger.Outcome, error)
}

// StripeHandler verifies and dispatches Stripe webhook deliveries.
type StripeHandler struct {
	secret     string
	reconciler Reconciler
}

func NewStripeHandler(secret string, r Reconciler) *StripeHandler {
	return &StripeHandler{secret: secret, reconciler: r}
}

// invoiceObject is the part of a Stripe invoice the reconciler needs.
type invoiceObject struct {
	ID       string          `json:"id"`
	Customer json.RawMessage `json:"customer"`
	Lines    struct {
		Data []struct {
			Description string `json:"description"`
		} `json:"data"`
	} `json:"lines"`
}

// customerID accepts both an id string and an expanded customer object.
func (o invoiceObject) customerID() string {
	if len(o.Customer) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(o.Customer, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(o.Customer, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func (h *StripeHandler) Handle(c *gin.Context) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()
	log := logger.FromGin(c)

	if strings.TrimSpace(h.secret) == "" {
		status = http.StatusServiceUnavailable
		c.JSON(status, gin.H{"error": "webhook secret not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		status = http.StatusBadRequest
		c.JSON(status, gin.H{"error": "failed to read request body"})
		return
	}

	sig := c.GetHeader("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		status = http.StatusBadRequest
		c.JSON(status, gin.H{"error": "missing Stripe signature"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		status = http.StatusBadRequest
		c.JSON(status, gin.H{"error": "invalid Stripe signature"})
		return
	}
	eventType = string(event.Type)

	if err := h.handleEvent(c.Request.Context(), &event); err != nil {
		log.Error("stripe webhook processing failed", "event_id", event.ID, "type", eventType, "err", err)
		status = http.StatusInternalServerError
		c.JSON(status, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

var errMissingInvoiceID = errors.New("invoice id missing")

func (h *StripeHandler) handleEvent(ctx context.Context, event *stripe.Event) error {
	var typ ledger.InvoiceEventType
	switch string(event.Type) {
	case string(ledger.InvoicePaid):
		typ = ledger.InvoicePaid
	case string(ledger.InvoicePaymentFailed):
		typ = ledger.InvoicePaymentFailed
	default:
		logger.From(ctx).Info("stripe webhook ignored (unhandled type)", "event_id", event.ID, "type", event.Type)
		return nil
	}
	if event.Data == nil {
		return fmt.Errorf("decode invoice: empty data")
	}

	var inv invoiceObject
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	if inv.ID == "" {
		return errMissingInvoiceID
	}

	ev := ledger.InvoiceEvent{
		EventID:     event.ID,
		Type:        typ,
		InvoiceID:   inv.ID,
		CustomerRef: inv.customerID(),
	}
	for _, l := range inv.Lines.Data {
		ev.LineItemDescriptions = append(ev.LineItemDescriptions, l.Description)
	}

	_, err := h.reconciler.ApplyInvoiceEvent(ctx, ev)
	return err
}
