// Package providerrepo abstracts the external payment rail. Exactly one
// implementation is selected at startup from configuration; nothing inside
// the wallet service ever branches on the rail name.
package providerrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type IntentStatus string

const (
	StatusPending   IntentStatus = "pending"
	StatusSucceeded IntentStatus = "succeeded"
	StatusFailed    IntentStatus = "failed"
)

// Terminal reports whether the rail will not change this status anymore.
func (s IntentStatus) Terminal() bool { return s == StatusSucceeded || s == StatusFailed }

type CreateIntentReq struct {
	Reference        string // our tx_ref, unique per transaction
	Amount           decimal.Decimal
	Currency         string
	PaymentMethodRef string // rail-specific payment method token
	CustomerEmail    string
	Description      string
}

type PaymentIntent struct {
	ID            string // rail's id for the charge
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	Status        IntentStatus
	CustomerEmail string
}

type PayoutReq struct {
	Reference             string
	Amount                decimal.Decimal
	Currency              string
	DestinationAccountRef string // e.g. "044:0690000040" bank:account
	Narration             string
}

type Payout struct {
	ID        string
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Status    IntentStatus
}

// ProviderTx is one row of the rail's authoritative transaction listing,
// consumed by the reconciliation sweep.
type ProviderTx struct {
	ExternalID    string
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	Status        IntentStatus
	CustomerEmail string
	CreatedAt     time.Time
}

type Gateway interface {
	Name() string
	CreatePaymentIntent(ctx context.Context, req CreateIntentReq) (*PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	GetPaymentIntentStatus(ctx context.Context, reference string) (*PaymentIntent, error)
	RefundPayment(ctx context.Context, externalPaymentID string, amount decimal.Decimal) error
	CreatePayout(ctx context.Context, req PayoutReq) (*Payout, error)
	GetPayoutStatus(ctx context.Context, payoutID string) (*Payout, error)
	ListTransactions(ctx context.Context, since time.Time) ([]ProviderTx, error)
}

// APIError is a definitive error response from the rail (4xx/5xx with a
// parsed body), as opposed to transport failures.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error (%d): %s", e.StatusCode, e.Message)
}

// Rails speak integer minor units; everything inside the service speaks
// scale-2 decimals. The conversion happens here and nowhere else.

func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-2)
}
