package ledgerrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"staypay/model"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	// ErrLockTimeout means the wallet row lock could not be acquired in time.
	// Callers must retry the whole operation, not just the lock.
	ErrLockTimeout = errors.New("wallet row lock timeout")
)

// Store is the ledger persistence contract. WithTx opens a unit of work and
// hands back a Store bound to it; every balance mutation must go through
// FindWalletForUpdate inside such a unit of work.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error

	GetOrCreateWallet(ctx context.Context, userID int64, currency string) (*model.Wallet, error)
	FindWalletByUserID(ctx context.Context, userID int64) (*model.Wallet, error)
	FindWalletForUpdate(ctx context.Context, userID int64) (*model.Wallet, error)
	UpdateWalletBalance(ctx context.Context, walletID int64, balance decimal.Decimal) error

	SaveTransaction(ctx context.Context, t *model.Transaction) error
	UpdateTransactionStatus(ctx context.Context, id int64, status model.TransactionStatus) error
	SetTransactionExternalRefs(ctx context.Context, id int64, paymentID, payoutID *string) error
	AttachTransactionWallet(ctx context.Context, id, walletID int64) error
	FindTransactionByBookingAndType(ctx context.Context, bookingID int64, typ model.TransactionType) (*model.Transaction, error)
	FindTransactionByReference(ctx context.Context, ref string) (*model.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error)
	ListUnsettledPayouts(ctx context.Context) ([]model.Transaction, error)
	SumSignedAmounts(ctx context.Context, walletID int64) (decimal.Decimal, error)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type store struct {
	db *sql.DB // nil once bound to a transaction
	q  queryer
}

func New(db *sql.DB) Store { return &store{db: db, q: db} }

func (s *store) WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) (err error) {
	if s.db == nil {
		// already inside a unit of work; join it
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// bound lock waits surface as ErrLockTimeout instead of stalling the pool
	if _, err = tx.ExecContext(ctx, `SET LOCAL lock_timeout = '5s'`); err != nil {
		return err
	}

	if err = fn(ctx, &store{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

const walletCols = `id, user_id, balance, currency, status, created_at, updated_at`

func scanWallet(row *sql.Row) (*model.Wallet, error) {
	var w model.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &w, nil
}

func (s *store) FindWalletByUserID(ctx context.Context, userID int64) (*model.Wallet, error) {
	return scanWallet(s.q.QueryRowContext(ctx,
		`SELECT `+walletCols+` FROM wallets WHERE user_id=$1`, userID))
}

func (s *store) FindWalletForUpdate(ctx context.Context, userID int64) (*model.Wallet, error) {
	return scanWallet(s.q.QueryRowContext(ctx,
		`SELECT `+walletCols+` FROM wallets WHERE user_id=$1 FOR UPDATE`, userID))
}

// GetOrCreateWallet returns the user's wallet, creating a zero-balance ACTIVE
// one on first access. ON CONFLICT DO NOTHING keeps a losing racer from
// aborting an enclosing transaction; it simply falls through to the read.
func (s *store) GetOrCreateWallet(ctx context.Context, userID int64, currency string) (*model.Wallet, error) {
	w, err := s.FindWalletByUserID(ctx, userID)
	if err != nil || w != nil {
		return w, err
	}

	row := s.q.QueryRowContext(ctx, `
INSERT INTO wallets (user_id, balance, currency, status)
VALUES ($1, 0, $2, 'ACTIVE')
ON CONFLICT (user_id) DO NOTHING
RETURNING `+walletCols, userID, currency)

	w, err = scanWallet(row)
	if err != nil {
		return nil, err
	}
	if w == nil {
		// lost the insert race; the winner's row is committed or visible
		return s.FindWalletByUserID(ctx, userID)
	}
	return w, nil
}

func (s *store) UpdateWalletBalance(ctx context.Context, walletID int64, balance decimal.Decimal) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE wallets SET balance=$2, updated_at=NOW() WHERE id=$1`, walletID, balance)
	return classify(err)
}

const txCols = `id, wallet_id, user_id, booking_id, type, status, amount, currency,
	description, reference, external_payment_id, external_payout_id, provider,
	metadata, created_at, processed_at`

func scanTransaction(sc interface{ Scan(...any) error }) (*model.Transaction, error) {
	var t model.Transaction
	err := sc.Scan(&t.ID, &t.WalletID, &t.UserID, &t.BookingID, &t.Type, &t.Status,
		&t.Amount, &t.Currency, &t.Description, &t.Reference,
		&t.ExternalPaymentID, &t.ExternalPayoutID, &t.Provider,
		&t.Metadata, &t.CreatedAt, &t.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &t, nil
}

func (s *store) SaveTransaction(ctx context.Context, t *model.Transaction) error {
	row := s.q.QueryRowContext(ctx, `
INSERT INTO wallet_transactions
	(wallet_id, user_id, booking_id, type, status, amount, currency,
	 description, reference, external_payment_id, external_payout_id, provider,
	 metadata, processed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING id, created_at`,
		t.WalletID, t.UserID, t.BookingID, t.Type, t.Status, t.Amount, t.Currency,
		t.Description, t.Reference, t.ExternalPaymentID, t.ExternalPayoutID,
		t.Provider, t.Metadata, t.ProcessedAt)
	return classify(row.Scan(&t.ID, &t.CreatedAt))
}

// UpdateTransactionStatus moves a row along PENDING -> PROCESSING ->
// terminal. Terminal rows are immutable: the WHERE clause refuses to touch
// them, keeping the ledger append-only.
func (s *store) UpdateTransactionStatus(ctx context.Context, id int64, status model.TransactionStatus) error {
	var processedAt any
	if status.IsTerminal() {
		processedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx, `
UPDATE wallet_transactions
SET status=$2, processed_at=COALESCE($3, processed_at)
WHERE id=$1 AND status IN ('PENDING','PROCESSING')`, id, status, processedAt)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("transaction not updatable (already terminal or missing)")
	}
	return nil
}

func (s *store) SetTransactionExternalRefs(ctx context.Context, id int64, paymentID, payoutID *string) error {
	_, err := s.q.ExecContext(ctx, `
UPDATE wallet_transactions
SET external_payment_id=COALESCE($2, external_payment_id),
    external_payout_id=COALESCE($3, external_payout_id)
WHERE id=$1`, id, paymentID, payoutID)
	return classify(err)
}

// AttachTransactionWallet ties a webhook-created row to the wallet resolved
// for it; only fills, never re-points.
func (s *store) AttachTransactionWallet(ctx context.Context, id, walletID int64) error {
	_, err := s.q.ExecContext(ctx, `
UPDATE wallet_transactions SET wallet_id=$2 WHERE id=$1 AND wallet_id IS NULL`, id, walletID)
	return classify(err)
}

func (s *store) FindTransactionByBookingAndType(ctx context.Context, bookingID int64, typ model.TransactionType) (*model.Transaction, error) {
	return scanTransaction(s.q.QueryRowContext(ctx, `
SELECT `+txCols+` FROM wallet_transactions
WHERE booking_id=$1 AND type=$2
ORDER BY id LIMIT 1`, bookingID, typ))
}

func (s *store) FindTransactionByReference(ctx context.Context, ref string) (*model.Transaction, error) {
	return scanTransaction(s.q.QueryRowContext(ctx, `
SELECT `+txCols+` FROM wallet_transactions WHERE reference=$1`, ref))
}

func (s *store) ListTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT `+txCols+` FROM wallet_transactions
WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ListUnsettledPayouts returns withdrawal and host-payout rows still waiting
// on a terminal rail status, for the payout reconciliation poll.
func (s *store) ListUnsettledPayouts(ctx context.Context) ([]model.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT `+txCols+` FROM wallet_transactions
WHERE type IN ('WITHDRAWAL','HOST_PAYOUT')
  AND status = 'PROCESSING'
  AND external_payout_id IS NOT NULL
ORDER BY id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// SumSignedAmounts replays the ledger for one wallet: credits positive,
// debits negative, ADMIN_ADJUSTMENT audit markers excluded. Credits only
// count once COMPLETED; WITHDRAWAL/HOST_PAYOUT rows debited the balance the
// moment they were committed, so they count in every status (a failed payout
// never re-touches the balance, it is compensated by a new row). The result
// must equal the stored balance for a consistent wallet.
func (s *store) SumSignedAmounts(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.q.QueryRowContext(ctx, `
SELECT COALESCE(SUM(CASE
	WHEN type IN ('DEPOSIT','BOOKING_REFUND','ESCROW_RELEASE') AND status='COMPLETED' THEN amount
	WHEN type IN ('WITHDRAWAL','HOST_PAYOUT') THEN -amount
	WHEN type IN ('BOOKING_PAYMENT','ESCROW_HOLD','PLATFORM_FEE') AND status='COMPLETED' THEN -amount
	ELSE 0 END), 0)
FROM wallet_transactions
WHERE wallet_id=$1`, walletID).Scan(&sum)
	return sum, classify(err)
}

// classify maps driver errors onto the store's error vocabulary.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.LockNotAvailable {
		return ErrLockTimeout
	}
	return err
}
