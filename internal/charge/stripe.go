package charge

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/invoiceitem"
)

// StripeProvider implements PaymentProvider with Stripe invoices.
// The SDK entry points are fields so tests can substitute them.
type StripeProvider struct {
	newInvoiceItem  func(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error)
	newInvoice      func(params *stripe.InvoiceParams) (*stripe.Invoice, error)
	finalizeInvoice func(id string, params *stripe.InvoiceFinalizeInvoiceParams) (*stripe.Invoice, error)
	payInvoice      func(id string, params *stripe.InvoicePayParams) (*stripe.Invoice, error)
}

var errStripeNotConfigured = errors.New("charge: stripe secret key not configured")

// NewStripeProvider configures the global Stripe key and binds the SDK calls.
func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = strings.TrimSpace(secretKey)
	return &StripeProvider{
		newInvoiceItem:  invoiceitem.New,
		newInvoice:      invoice.New,
		finalizeInvoice: invoice.FinalizeInvoice,
		payInvoice:      invoice.Pay,
	}
}

func (p *StripeProvider) configured() error {
	if strings.TrimSpace(stripe.Key) == "" {
		return errStripeNotConfigured
	}
	return nil
}

func (p *StripeProvider) CreateInvoiceItem(ctx context.Context, in InvoiceItemParams) (string, error) {
	if err := p.configured(); err != nil {
		return "", err
	}
	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(in.CustomerRef),
		Amount:      stripe.Int64(in.AmountCents),
		Currency:    stripe.String(in.Currency),
		Description: stripe.String(in.Description),
	}
	if in.InvoiceID != "" {
		params.Invoice = stripe.String(in.InvoiceID)
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	item, err := p.newInvoiceItem(params)
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

func (p *StripeProvider) CreateInvoice(ctx context.Context, in InvoiceParams) (string, error) {
	if err := p.configured(); err != nil {
		return "", err
	}
	params := &stripe.InvoiceParams{
		Customer:                    stripe.String(in.CustomerRef),
		CollectionMethod:            stripe.String(string(stripe.InvoiceCollectionMethodChargeAutomatically)),
		AutoAdvance:                 stripe.Bool(false),
		Description:                 stripe.String(in.Description),
		PendingInvoiceItemsBehavior: stripe.String("exclude"),
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	inv, err := p.newInvoice(params)
	if err != nil {
		return "", err
	}
	return inv.ID, nil
}

func (p *StripeProvider) FinalizeInvoice(ctx context.Context, invoiceID string) error {
	if err := p.configured(); err != nil {
		return err
	}
	params := &stripe.InvoiceFinalizeInvoiceParams{}
	params.Context = ctx
	_, err := p.finalizeInvoice(invoiceID, params)
	return err
}

func (p *StripeProvider) PayInvoice(ctx context.Context, invoiceID string) (string, error) {
	if err := p.configured(); err != nil {
		return "", err
	}
	params := &stripe.InvoicePayParams{}
	params.Context = ctx
	inv, err := p.payInvoice(invoiceID, params)
	if err != nil {
		return "", err
	}
	return string(inv.Status), nil
}
