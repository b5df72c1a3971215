// model/wallet.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletStatus string

const (
	WalletActive    WalletStatus = "ACTIVE"
	WalletSuspended WalletStatus = "SUSPENDED"
	WalletClosed    WalletStatus = "CLOSED"
)

// Wallet holds a user's spendable balance. One wallet per user; the balance
// is only ever changed by the wallet service under a row lock.
type Wallet struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Status    WalletStatus    `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CanMutate reports whether balance changes are allowed. CLOSED is terminal.
func (w *Wallet) CanMutate() bool { return w.Status == WalletActive }
