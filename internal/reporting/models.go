package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ChargeSummaryRequest requests aggregated pre-charge metrics for one user.
// User isolation: UserID is required.
type ChargeSummaryRequest struct {
	UserID string    `json:"userId"`
	Range  TimeRange `json:"range"`
}

// ChargeSummary aggregates intl_charge_records over a time range.
// Charged cents count invoices that were paid or returned paid synchronously.
type ChargeSummary struct {
	UserID string    `json:"userId"`
	Range  TimeRange `json:"range"`

	TotalCharges   int `json:"totalCharges"`
	PaidCharges    int `json:"paidCharges"`
	PendingCharges int `json:"pendingCharges"`
	FailedCharges  int `json:"failedCharges"`

	ChargedCents int64 `json:"chargedCents"`
	FailedCents  int64 `json:"failedCents"`

	SoftCapCents  int64 `json:"softCapCents"`
	HardCapCents  int64 `json:"hardCapCents"`
	HardCapResets int   `json:"hardCapResets"`
}
