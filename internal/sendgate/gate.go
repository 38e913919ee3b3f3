package sendgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"comms-platform/internal/billing"
	"comms-platform/internal/charge"
	"comms-platform/internal/dispatch"
	"comms-platform/internal/ledger"
	"comms-platform/internal/metrics"
	"comms-platform/internal/quote"
	"comms-platform/internal/recipients"
	"comms-platform/pkg/logger"

	"github.com/google/uuid"
)

var (
	// ErrIntlBlocked matches every *BlockedError.
	ErrIntlBlocked = errors.New("sendgate: international sending blocked")
	// ErrQuoteStale matches every *StaleQuoteError.
	ErrQuoteStale   = errors.New("sendgate: quote no longer matches current pricing")
	ErrInvalidQuote = errors.New("sendgate: submitted quote is inconsistent")
	ErrNoRecipients = errors.New("sendgate: no recipients for requested channels")
	ErrStorage      = errors.New("sendgate: billing state update failed")
	ErrEnqueue      = errors.New("sendgate: enqueue failed")
)

// BlockedError carries the account or quote block reason.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string { return "sendgate: intl blocked: " + e.Reason }

func (e *BlockedError) Is(target error) bool { return target == ErrIntlBlocked }

// StaleQuoteError carries the server-side quote the client must confirm instead.
type StaleQuoteError struct {
	Fresh quote.Quote
}

func (e *StaleQuoteError) Error() string {
	return fmt.Sprintf("sendgate: quote stale: current estimate %d cents", e.Fresh.EstimatedIntlCents)
}

func (e *StaleQuoteError) Is(target error) bool { return target == ErrQuoteStale }

// Ledger is the subset of the spend ledger used at send time.
type Ledger interface {
	GetState(ctx context.Context, userID string) (ledger.BillingState, error)
	RecordCharge(ctx context.Context, r ledger.ChargeReceipt) (ledger.BillingState, error)
	RecordSpend(ctx context.Context, userID string, cents int64) (ledger.BillingState, error)
	MarkPaymentFailed(ctx context.Context, f ledger.FailedCharge) error
}

type Charger interface {
	ChargeNow(ctx context.Context, userID string, amountCents int64, reason billing.ChargeReason) (string, error)
}

type Quoter interface {
	Quote(ctx context.Context, userID string, recipients []string, channels []string) (quote.Quote, error)
}

type Options struct {
	// Requote recomputes the quote under the user lock and rejects a submitted quote that differs.
	Requote bool
	LockTTL time.Duration
}

// Gate authorises blasts: it enforces blocks, collects required pre-charges and
// only then hands the blast to the queue.
type Gate struct {
	ledger  Ledger
	charger Charger
	quoter  Quoter
	queue   dispatch.Enqueuer
	locker  Locker
	opts    Options

	newID func() string
	clock func() time.Time
}

func New(l Ledger, c Charger, q Quoter, queue dispatch.Enqueuer, locker Locker, opts Options) *Gate {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &Gate{
		ledger:  l,
		charger: c,
		quoter:  q,
		queue:   queue,
		locker:  locker,
		opts:    opts,
		newID:   uuid.NewString,
		clock:   time.Now,
	}
}

type Request struct {
	UserID     string
	Channels   []string
	Recipients recipients.Set
	Body       string
	Quote      quote.Quote
}

type Result struct {
	OK          bool   `json:"ok"`
	BlastID     string `json:"blastId"`
	Queued      int    `json:"queued"`
	SMSQueued   int    `json:"smsQueued"`
	EmailQueued int    `json:"emailQueued"`

	InvoiceID    string `json:"-"`
	ChargedCents int64  `json:"-"`
}

// AuthorizeSend runs the send-time checks for one blast.
//
// Block check, re-quote, charge and ledger update happen under a per-user lock so two
// concurrent sends cannot both pass the caps. A successful charge is always recorded
// (or the account blocked) before the blast is enqueued.
func (g *Gate) AuthorizeSend(ctx context.Context, req Request) (Result, error) {
	log := logger.From(ctx).With("user_id", req.UserID)

	wantsSMS := quote.HasSMS(req.Channels)
	wantsEmail := hasChannel(req.Channels, "email")
	var smsTo, emailTo []string
	if wantsSMS {
		smsTo = req.Recipients.SMS
	}
	if wantsEmail {
		emailTo = req.Recipients.Email
	}

	release, err := g.locker.Acquire(ctx, lockKey(req.UserID), g.opts.LockTTL)
	if err != nil {
		g.outcome("lock_busy")
		return Result{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("send lock release failed", "err", err)
		}
	}()

	st, err := g.ledger.GetState(ctx, req.UserID)
	if err != nil {
		g.outcome("error")
		return Result{}, err
	}
	if st.Blocked() {
		g.outcome("blocked")
		return Result{}, &BlockedError{Reason: st.BlockedReason}
	}
	if len(smsTo) == 0 && len(emailTo) == 0 {
		g.outcome("no_recipients")
		return Result{}, ErrNoRecipients
	}

	res := Result{SMSQueued: len(smsTo), EmailQueued: len(emailTo)}
	res.Queued = res.SMSQueued + res.EmailQueued

	if len(smsTo) > 0 {
		q, err := g.effectiveQuote(ctx, req, smsTo)
		if err != nil {
			return Result{}, err
		}
		if err := g.settle(ctx, req.UserID, q, &res); err != nil {
			return Result{}, err
		}
	}

	res.BlastID = g.newID()
	job := dispatch.Job{
		BlastID:    res.BlastID,
		UserID:     req.UserID,
		Channels:   req.Channels,
		SMS:        smsTo,
		Email:      emailTo,
		Body:       req.Body,
		EnqueuedAt: g.clock().UTC(),
	}
	if err := g.queue.Enqueue(ctx, job); err != nil {
		g.outcome("error")
		log.Error("blast enqueue failed", "blast_id", res.BlastID, "invoice_id", res.InvoiceID, "err", err)
		return Result{}, fmt.Errorf("%w: %v", ErrEnqueue, err)
	}

	res.OK = true
	g.outcome("authorized")
	log.Info("blast authorized",
		"blast_id", res.BlastID,
		"sms", res.SMSQueued,
		"email", res.EmailQueued,
		"charged_cents", res.ChargedCents,
	)
	return res, nil
}

func (g *Gate) effectiveQuote(ctx context.Context, req Request, smsTo []string) (quote.Quote, error) {
	if !g.opts.Requote {
		q := req.Quote
		if q.Blocked {
			g.outcome("blocked")
			return quote.Quote{}, &BlockedError{Reason: q.BlockedReason}
		}
		if q.RequiresImmediateCharge && q.EstimatedIntlCents > 0 && !q.Reason.Valid() {
			g.outcome("invalid_quote")
			return quote.Quote{}, ErrInvalidQuote
		}
		return q, nil
	}

	fresh, err := g.quoter.Quote(ctx, req.UserID, smsTo, req.Channels)
	if err != nil {
		g.outcome("error")
		return quote.Quote{}, err
	}
	if fresh.Blocked {
		g.outcome("blocked")
		return quote.Quote{}, &BlockedError{Reason: fresh.BlockedReason}
	}
	if !fresh.SameDecision(req.Quote) {
		g.outcome("stale")
		logger.From(ctx).Info("submitted quote is stale",
			"user_id", req.UserID,
			"submitted_cents", req.Quote.EstimatedIntlCents,
			"current_cents", fresh.EstimatedIntlCents,
		)
		return quote.Quote{}, &StaleQuoteError{Fresh: fresh}
	}
	return fresh, nil
}

// settle charges or accumulates the international cost of q.
func (g *Gate) settle(ctx context.Context, userID string, q quote.Quote, res *Result) error {
	log := logger.From(ctx).With("user_id", userID)

	if !(q.RequiresImmediateCharge && q.EstimatedIntlCents > 0) {
		if q.EstimatedIntlCents <= 0 {
			return nil
		}
		if _, err := g.ledger.RecordSpend(ctx, userID, q.EstimatedIntlCents); err != nil {
			g.outcome("error")
			log.Error("intl spend update failed", "cents", q.EstimatedIntlCents, "err", err)
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return nil
	}

	invoiceID, err := g.charger.ChargeNow(ctx, userID, q.EstimatedIntlCents, q.Reason)
	if err != nil {
		g.outcome("payment_failed")
		if merr := g.ledger.MarkPaymentFailed(ctx, ledger.FailedCharge{
			UserID:      userID,
			InvoiceID:   invoiceID,
			AmountCents: q.EstimatedIntlCents,
			Reason:      q.Reason,
		}); merr != nil {
			log.Error("could not block account after failed charge", "invoice_id", invoiceID, "err", merr)
		}
		if errors.Is(err, charge.ErrChargeFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", charge.ErrChargeFailed, err)
	}

	if _, err := g.ledger.RecordCharge(ctx, ledger.ChargeReceipt{
		UserID:      userID,
		InvoiceID:   invoiceID,
		AmountCents: q.EstimatedIntlCents,
		Reason:      q.Reason,
	}); err != nil {
		// The charge is missing from the ledger. Block until an operator reconciles it.
		g.outcome("error")
		log.Error("charge succeeded but ledger update failed", "invoice_id", invoiceID, "err", err)
		if merr := g.ledger.MarkPaymentFailed(ctx, ledger.FailedCharge{
			UserID:      userID,
			AmountCents: q.EstimatedIntlCents,
			Reason:      q.Reason,
		}); merr != nil {
			log.Error("could not block account after ledger failure", "invoice_id", invoiceID, "err", merr)
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	res.InvoiceID = invoiceID
	res.ChargedCents = q.EstimatedIntlCents
	return nil
}

func (g *Gate) outcome(o string) {
	metrics.SendAuthorizationsTotal.WithLabelValues(o).Inc()
}

func hasChannel(channels []string, want string) bool {
	for _, c := range channels {
		if strings.EqualFold(strings.TrimSpace(c), want) {
			return true
		}
	}
	return false
}
