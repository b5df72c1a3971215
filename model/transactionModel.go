// model/transaction.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxDeposit        TransactionType = "DEPOSIT"
	TxWithdrawal     TransactionType = "WITHDRAWAL"
	TxBookingPayment TransactionType = "BOOKING_PAYMENT"
	TxBookingRefund  TransactionType = "BOOKING_REFUND"
	TxEscrowHold     TransactionType = "ESCROW_HOLD"
	TxEscrowRelease  TransactionType = "ESCROW_RELEASE"
	TxHostPayout     TransactionType = "HOST_PAYOUT"
	TxAdminAdjust    TransactionType = "ADMIN_ADJUSTMENT"
	TxPlatformFee    TransactionType = "PLATFORM_FEE"
)

type TransactionStatus string

const (
	TxPending    TransactionStatus = "PENDING"
	TxProcessing TransactionStatus = "PROCESSING"
	TxCompleted  TransactionStatus = "COMPLETED"
	TxFailed     TransactionStatus = "FAILED"
	TxCancelled  TransactionStatus = "CANCELLED"
	TxRefunded   TransactionStatus = "REFUNDED"
)

// Transaction is one append-only ledger row. Amount is always positive;
// direction comes from the type (see SignedAmount). Rows are never rewritten
// after reaching a terminal status; compensation happens via new rows.
type Transaction struct {
	ID                int64             `json:"id"`
	WalletID          *int64            `json:"wallet_id,omitempty"`
	UserID            int64             `json:"user_id"`
	BookingID         *int64            `json:"booking_id,omitempty"`
	Type              TransactionType   `json:"type"`
	Status            TransactionStatus `json:"status"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Description       string            `json:"description"`
	Reference         string            `json:"reference"`
	ExternalPaymentID *string           `json:"external_payment_id,omitempty"`
	ExternalPayoutID  *string           `json:"external_payout_id,omitempty"`
	Provider          string            `json:"provider,omitempty"`
	Metadata          *string           `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	ProcessedAt       *time.Time        `json:"processed_at,omitempty"`
}

// IsTerminal reports whether the status can no longer change on this row.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TxCompleted, TxFailed, TxCancelled, TxRefunded:
		return true
	}
	return false
}

// SignedAmount is the contribution of this row to its wallet's balance:
// credits positive, debits negative. ADMIN_ADJUSTMENT rows are reconciliation
// audit markers and contribute zero.
func (t *Transaction) SignedAmount() decimal.Decimal {
	switch t.Type {
	case TxDeposit, TxBookingRefund, TxEscrowRelease:
		return t.Amount
	case TxWithdrawal, TxBookingPayment, TxEscrowHold, TxHostPayout, TxPlatformFee:
		return t.Amount.Neg()
	}
	return decimal.Zero
}
