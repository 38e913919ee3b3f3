package charge

import "context"

// PaymentProvider is the invoice-based payment API used for immediate pre-charges.
type PaymentProvider interface {
	// CreateInvoice opens a draft invoice that does not collect the customer's pending items.
	CreateInvoice(ctx context.Context, p InvoiceParams) (string, error)
	CreateInvoiceItem(ctx context.Context, p InvoiceItemParams) (string, error)
	FinalizeInvoice(ctx context.Context, invoiceID string) error
	// PayInvoice attempts collection and returns the provider's invoice status.
	PayInvoice(ctx context.Context, invoiceID string) (string, error)
}

// StatusPaid is the only invoice status treated as a successful charge.
const StatusPaid = "paid"

type InvoiceItemParams struct {
	CustomerRef    string
	// InvoiceID binds the item to one draft invoice so it never lingers as a pending item.
	InvoiceID      string
	AmountCents    int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type InvoiceParams struct {
	CustomerRef    string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}
