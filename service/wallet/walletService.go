package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"staypay/model"
	ledgerrepo "staypay/repository/ledger"
	providerrepo "staypay/repository/provider"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service owns every wallet balance mutation. All writes happen inside a
// single unit of work holding the wallet row lock; external rail calls that
// the mutation depends on are made before that unit of work commits.
type Service interface {
	Balance(ctx context.Context, userID int64) (*model.Wallet, error)
	Ledger(ctx context.Context, userID int64) ([]model.Transaction, error)

	Deposit(ctx context.Context, userID int64, amount decimal.Decimal, paymentMethodRef, email string) (*model.Transaction, error)
	Withdraw(ctx context.Context, userID int64, amount decimal.Decimal, destinationRef string) (*model.Transaction, error)
	RequestPayout(ctx context.Context, hostID int64, amount decimal.Decimal, destinationRef string) (*model.Transaction, error)

	ProcessEscrowHold(ctx context.Context, bookingID, guestID int64, amount decimal.Decimal) (*model.Transaction, error)
	ProcessEscrowRelease(ctx context.Context, bookingID, hostID int64) (*Release, error)
	ProcessRefund(ctx context.Context, bookingID int64, reason string) (*model.Transaction, error)

	// ApplyDepositOutcome is the exactly-once settle path shared by the
	// webhook handler and the pull-based verify endpoint. It reports
	// applied=false when the row was already terminal (at-least-once
	// delivery makes that a routine no-op, not an error).
	ApplyDepositOutcome(ctx context.Context, reference string, succeeded bool) (bool, error)

	// ApplyPayoutOutcome settles a PROCESSING withdrawal or host payout from
	// polled rail status. Success only marks the row COMPLETED; failure marks
	// it FAILED and compensates the already-debited amount with a new credit
	// row, never by rewriting the original.
	ApplyPayoutOutcome(ctx context.Context, reference string, succeeded bool) (bool, error)

	SyncBalance(ctx context.Context, userID int64) (*model.Wallet, error)
}

// Release reports where the held amount went.
type Release struct {
	HostCredit  *model.Transaction
	PlatformFee *model.Transaction
}

type service struct {
	store      ledgerrepo.Store
	gw         providerrepo.Gateway
	currency   string
	feePercent decimal.Decimal // e.g. 10 for 10%
	log        *slog.Logger
}

func New(store ledgerrepo.Store, gw providerrepo.Gateway, currency string, feePercent decimal.Decimal, log *slog.Logger) Service {
	return &service{store: store, gw: gw, currency: currency, feePercent: feePercent, log: log}
}

func newRef(prefix string) string { return prefix + "-" + uuid.NewString() }

func (s *service) Balance(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.store.GetOrCreateWallet(ctx, userID, s.currency)
}

func (s *service) Ledger(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.store.ListTransactionsByUser(ctx, userID)
}

// Deposit charges the rail and credits the wallet once the charge succeeds.
// The PENDING row is committed before the rail is called so a crash or a
// dropped response still leaves something for reconciliation to find.
func (s *service) Deposit(ctx context.Context, userID int64, amount decimal.Decimal, paymentMethodRef, email string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, makeErr(ErrBadInput, "deposit amount must be positive")
	}
	w, err := s.store.GetOrCreateWallet(ctx, userID, s.currency)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !w.CanMutate() {
		return nil, makeErr(ErrWalletClosed, "wallet is not active")
	}

	tx := &model.Transaction{
		WalletID:    &w.ID,
		UserID:      userID,
		Type:        model.TxDeposit,
		Status:      model.TxPending,
		Amount:      amount,
		Currency:    w.Currency,
		Description: "Wallet deposit",
		Reference:   newRef("dep"),
		Provider:    s.gw.Name(),
	}
	if err := s.store.SaveTransaction(ctx, tx); err != nil {
		return nil, mapStoreErr(err)
	}

	intent, err := s.gw.CreatePaymentIntent(ctx, providerrepo.CreateIntentReq{
		Reference:        tx.Reference,
		Amount:           amount,
		Currency:         w.Currency,
		PaymentMethodRef: paymentMethodRef,
		CustomerEmail:    email,
		Description:      tx.Description,
	})
	if err != nil {
		// row stays PENDING for the reconciliation sweep
		return nil, wrapErr(ErrProvider, err)
	}
	if err := s.store.SetTransactionExternalRefs(ctx, tx.ID, &intent.ID, nil); err != nil {
		// without the external id a later rail refund has nothing to target
		s.log.Error("record external payment id", "ref", tx.Reference, "intent", intent.ID, "err", err)
	}
	tx.ExternalPaymentID = &intent.ID

	confirmed, err := s.gw.ConfirmPaymentIntent(ctx, intent.ID)
	if err != nil {
		return nil, wrapErr(ErrProvider, err)
	}

	switch confirmed.Status {
	case providerrepo.StatusSucceeded:
		if _, err := s.ApplyDepositOutcome(ctx, tx.Reference, true); err != nil {
			return nil, err
		}
		tx.Status = model.TxCompleted
		return tx, nil
	case providerrepo.StatusFailed:
		if _, err := s.ApplyDepositOutcome(ctx, tx.Reference, false); err != nil {
			s.log.Error("mark deposit failed", "ref", tx.Reference, "err", err)
		}
		return nil, makeErr(ErrProvider, "charge declined by payment rail")
	default:
		// still pending on the rail; webhook or verify completes it
		tx.Status = model.TxPending
		return tx, nil
	}
}

// ApplyDepositOutcome re-reads the row inside the unit of work, after taking
// the wallet row lock, so the status check holds across concurrent webhook
// and verify deliveries on any number of instances.
func (s *service) ApplyDepositOutcome(ctx context.Context, reference string, succeeded bool) (bool, error) {
	applied := false
	err := s.store.WithTx(ctx, func(ctx context.Context, st ledgerrepo.Store) error {
		row, err := st.FindTransactionByReference(ctx, reference)
		if err != nil {
			return err
		}
		if row == nil {
			return makeErr(ErrNotFound, "transaction not found: "+reference)
		}
		if row.Type != model.TxDeposit {
			// debits were settled at creation; a stray rail notification
			// must never credit them back
			return makeErr(ErrNotFound, "not a deposit: "+reference)
		}
		if row.Status.IsTerminal() {
			return makeErr(ErrDuplicate, "outcome already applied: "+reference)
		}
		if !succeeded {
			if err := st.UpdateTransactionStatus(ctx, row.ID, model.TxFailed); err != nil {
				return err
			}
			applied = true
			return nil
		}
		if row.UserID == 0 {
			// recovered row with no resolved owner; stays PENDING until an
			// operator ties it to a user
			return makeErr(ErrNotFound, "transaction has no resolved owner: "+reference)
		}
		if _, err := st.GetOrCreateWallet(ctx, row.UserID, row.Currency); err != nil {
			return err
		}
		w, err := st.FindWalletForUpdate(ctx, row.UserID)
		if err != nil {
			return err
		}
		if !w.CanMutate() {
			return makeErr(ErrWalletClosed, "wallet is not active")
		}
		if row.WalletID == nil {
			if err := st.AttachTransactionWallet(ctx, row.ID, w.ID); err != nil {
				return err
			}
		}
		if err := st.UpdateWalletBalance(ctx, w.ID, w.Balance.Add(row.Amount)); err != nil {
			return err
		}
		if err := st.UpdateTransactionStatus(ctx, row.ID, model.TxCompleted); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil && Code(err) == ErrDuplicate {
		return false, nil
	}
	return applied, mapStoreErr(err)
}

func (s *service) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal, destinationRef string) (*model.Transaction, error) {
	return s.payoutDebit(ctx, userID, amount, destinationRef, model.TxWithdrawal, "wdr", "Wallet withdrawal")
}

// RequestPayout is the host-earnings variant of Withdraw; same discipline,
// HOST_PAYOUT row type.
func (s *service) RequestPayout(ctx context.Context, hostID int64, amount decimal.Decimal, destinationRef string) (*model.Transaction, error) {
	return s.payoutDebit(ctx, hostID, amount, destinationRef, model.TxHostPayout, "pay", "Host payout")
}

// payoutDebit debits first, then asks the rail for a payout while still
// holding the wallet lock. A payout failure rolls the whole unit of work
// back; a later payout status change never re-touches the balance.
func (s *service) payoutDebit(ctx context.Context, userID int64, amount decimal.Decimal, destinationRef string, typ model.TransactionType, prefix, desc string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, makeErr(ErrBadInput, "amount must be positive")
	}
	var out *model.Transaction
	err := s.store.WithTx(ctx, func(ctx context.Context, st ledgerrepo.Store) error {
		w, err := st.FindWalletForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if w == nil {
			return makeErr(ErrNotFound, "wallet not found")
		}
		if !w.CanMutate() {
			return makeErr(ErrWalletClosed, "wallet is not active")
		}
		if amount.GreaterThan(w.Balance) {
			return makeErr(ErrInsufficientBalance,
				fmt.Sprintf("balance %s short of %s", w.Balance, amount))
		}

		if err := st.UpdateWalletBalance(ctx, w.ID, w.Balance.Sub(amount)); err != nil {
			return err
		}
		tx := &model.Transaction{
			WalletID:    &w.ID,
			UserID:      userID,
			Type:        typ,
			Status:      model.TxPending,
			Amount:      amount,
			Currency:    w.Currency,
			Description: desc,
			Reference:   newRef(prefix),
			Provider:    s.gw.Name(),
		}
		if err := st.SaveTransaction(ctx, tx); err != nil {
			return err
		}

		payout, err := s.gw.CreatePayout(ctx, providerrepo.PayoutReq{
			Reference:             tx.Reference,
			Amount:                amount,
			Currency:              w.Currency,
			DestinationAccountRef: destinationRef,
			Narration:             desc,
		})
		if err != nil {
			return wrapErr(ErrProvider, err) // rolls back the debit
		}
		if err := st.SetTransactionExternalRefs(ctx, tx.ID, nil, &payout.ID); err != nil {
			return err
		}
		tx.ExternalPayoutID = &payout.ID

		status := model.TxProcessing
		if payout.Status == providerrepo.StatusSucceeded {
			status = model.TxCompleted
		}
		if err := st.UpdateTransactionStatus(ctx, tx.ID, status); err != nil {
			return err
		}
		tx.Status = status
		out = tx
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

func (s *service) ApplyPayoutOutcome(ctx context.Context, reference string, succeeded bool) (bool, error) {
	applied := false
	err := s.store.WithTx(ctx, func(ctx context.Context, st ledgerrepo.Store) error {
		row, err := st.FindTransactionByReference(ctx, reference)
		if err != nil {
			return err
		}
		if row == nil {
			return makeErr(ErrNotFound, "transaction not found: "+reference)
		}
		if row.Type != model.TxWithdrawal && row.Type != model.TxHostPayout {
			return makeErr(ErrNotFound, "not a payout: "+reference)
		}
		if row.Status.IsTerminal() {
			return makeErr(ErrDuplicate, "outcome already applied: "+reference)
		}
		w, err := st.FindWalletForUpdate(ctx, row.UserID)
		if err != nil {
			return err
		}
		if w == nil {
			return makeErr(ErrNotFound, "wallet not found")
		}
		if succeeded {
			if err := st.UpdateTransactionStatus(ctx, row.ID, model.TxCompleted); err != nil {
				return err
			}
			applied = true
			return nil
		}
		// the debit happened at request time and is never rewritten; a
		// failed payout is compensated by a fresh credit row
		if err := st.UpdateTransactionStatus(ctx, row.ID, model.TxFailed); err != nil {
			return err
		}
		if err := st.UpdateWalletBalance(ctx, w.ID, w.Balance.Add(row.Amount)); err != nil {
			return err
		}
		now := time.Now().UTC()
		reversal := &model.Transaction{
			WalletID:         &w.ID,
			UserID:           row.UserID,
			Type:             model.TxDeposit,
			Status:           model.TxCompleted,
			Amount:           row.Amount,
			Currency:         row.Currency,
			Description:      "Payout reversal for " + reference,
			Reference:        newRef("rev"),
			ExternalPayoutID: row.ExternalPayoutID,
			ProcessedAt:      &now,
		}
		if err := st.SaveTransaction(ctx, reversal); err != nil {
			return err
		}
		s.log.Warn("payout failed on rail, debit reversed",
			"ref", reference, "user_id", row.UserID, "amount", row.Amount)
		applied = true
		return nil
	})
	if err != nil && Code(err) == ErrDuplicate {
		return false, nil
	}
	return applied, mapStoreErr(err)
}

// ProcessEscrowHold reserves booking funds out of the guest wallet. At most
// one hold exists per booking; a duplicate call is rejected with
// DUPLICATE_OPERATION, which callers treat as a successful no-op.
func (s *service) ProcessEscrowHold(ctx context.Context, bookingID, guestID int64, amount decimal.Decimal) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, makeErr(ErrBadInput, "hold amount must be positive")
	}
	var out *model.Transaction
	err := s.store.WithTx(ctx, func(ctx context.Context, st ledgerrepo.Store) error {
		existing, err := st.FindTransactionByBookingAndType(ctx, bookingID, model.TxEscrowHold)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return makeErr(ErrDuplicate, fmt.Sprintf("escrow hold already exists for booking %d", bookingID))
		}
		if _, err := st.GetOrCreateWallet(ctx, guestID, s.currency); err != nil {
			return err
		}
		w, err := st.FindWalletForUpdate(ctx, guestID)
		if err != nil {
			return err
		}
		if !w.CanMutate() {
			return makeErr(ErrWalletClosed, "wallet is not active")
		}
		// re-check under the lock: a concurrent request may have committed
		// its hold between the first read and lock acquisition
		existing, err = st.FindTransactionByBookingAndType(ctx, bookingID, model.TxEscrowHold)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return makeErr(ErrDuplicate, fmt.Sprintf("escrow hold already exists for booking %d", bookingID))
		}
		if amount.GreaterThan(w.Balance) {
			return makeErr(ErrInsufficientBalance,
				fmt.Sprintf("balance %s short of %s", w.Balance, amount))
		}
		if err := st.UpdateWalletBalance(ctx, w.ID, w.Balance.Sub(amount)); err != nil {
			return err
		}
		now := time.Now().UTC()
		tx := &model.Transaction{
			WalletID:    &w.ID,
			UserID:      guestID,
			BookingID:   &bookingID,
			Type:        model.TxEscrowHold,
			Status:      model.TxCompleted,
			Amount:      amount,
			Currency:    w.Currency,
			Description: fmt.Sprintf("Escrow hold for booking %d", bookingID),
			Reference:   newRef("esc"),
			ProcessedAt: &now,
		}
		if err := st.SaveTransaction(ctx, tx); err != nil {
			return err
		}
		out = tx
		return nil
	})
	if err != nil {
		return out, mapStoreErr(err)
	}
	return out, nil
}

// ProcessEscrowRelease moves held funds to the host minus the platform fee.
// Conservation: fee is rounded to 2 places and the host credit is the exact
// remainder, so held == credited + fee always.
func (s *service) ProcessEscrowRelease(ctx context.Context, bookingID, hostID int64) (*Release, error) {
	var out Release
	err := s.store.WithTx(ctx, func(ctx context.Context, st ledgerrepo.Store) error {
		hold, err := st.FindTransactionByBookingAndType(ctx, bookingID, model.TxEscrowHold)
		if err != nil {
			return err
		}
		if hold == nil {
			return makeErr(ErrNotFound, fmt.Sprintf("no escrow hold for booking %d", bookingID))
		}
		// lock the guest wallet first: refunds and releases both serialize
		// on it, so the exists-checks below cannot go stale (guest before
		// host is the one lock ordering for multi-wallet moves)
		if _, err := st.FindWalletForUpdate(ctx, hold.UserID); err != nil {
			return err
		}
		if refund, err := st.FindTransactionByBookingAndType(ctx, bookingID, model.TxBookingRefund); err != nil {
			return err
		} else if refund != nil {
			return makeErr(ErrDuplicate, fmt.Sprintf("escrow for booking %d was refunded", bookingID))
		}
		if released, err := st.FindTransactionByBookingAndType(ctx, bookingID, model.TxEscrowRelease); err != nil {
			return err
		} else if released != nil {
			return makeErr(ErrDuplicate, fmt.Sprintf("escrow for booking %d already released", bookingID))
		}

		fee := hold.Amount.Mul(s.feePercent).Div(decimal.NewFromInt(100)).Round(2)
		hostNet := hold.Amount.Sub(fee)

		if _, err := st.GetOrCreateWallet(ctx, hostID, s.currency); err != nil {
			return err
		}
		w, err := st.FindWalletForUpdate(ctx, hostID)
		if err != nil {
			return err
		}
		if !w.CanMutate() {
			return makeErr(ErrWalletClosed, "host wallet is not active")
		}
		if err := st.UpdateWalletBalance(ctx, w.ID, w.Balance.Add(hostNet)); err != nil {
			return err
		}

		now := time.Now().UTC()
		credit := &model.Transaction{
			WalletID:    &w.ID,
			UserID:      hostID,
			BookingID:   &bookingID,
			Type:        model.TxEscrowRelease,
			Status:      model.TxCompleted,
			Amount:      hostNet,
			Currency:    w.Currency,
			Description: fmt.Sprintf("Escrow release for booking %d", bookingID),
			Reference:   newRef("rel"),
			ProcessedAt: &now,
		}
		if err := st.SaveTransaction(ctx, credit); err != nil {
			return err
		}
		feeTx := &model.Transaction{
			UserID:      hostID,
			BookingID:   &bookingID,
			Type:        model.TxPlatformFee,
			Status:      model.TxCompleted,
			Amount:      fee,
			Currency:    w.Currency,
			Description: fmt.Sprintf("Platform fee (%s%%) for booking %d", s.feePercent, bookingID),
			Reference:   newRef("fee"),
			ProcessedAt: &now,
		}
		if err := st.SaveTransaction(ctx, feeTx); err != nil {
			return err
		}
		out.HostCredit = credit
		out.PlatformFee = feeTx
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &out, nil
}

// ProcessRefund compensates a booking payment back to the payer. Wallet-held
// escrow is credited back under the guest's wallet lock; provider-settled
// payments are refunded on the rail using the stored external payment id.
// Idempotent per booking.
func (s *service) ProcessRefund(ctx context.Context, bookingID int64, reason string) (*model.Transaction, error) {
	var out *model.Transaction
	err := s.store.WithTx(ctx, func(ctx context.Context, st ledgerrepo.Store) error {
		if prev, err := st.FindTransactionByBookingAndType(ctx, bookingID, model.TxBookingRefund); err != nil {
			return err
		} else if prev != nil {
			out = prev
			return makeErr(ErrDuplicate, fmt.Sprintf("booking %d already refunded", bookingID))
		}
		if released, err := st.FindTransactionByBookingAndType(ctx, bookingID, model.TxEscrowRelease); err != nil {
			return err
		} else if released != nil {
			return makeErr(ErrEscrowReleased,
				fmt.Sprintf("booking %d funds were already released to the host", bookingID))
		}

		hold, err := st.FindTransactionByBookingAndType(ctx, bookingID, model.TxEscrowHold)
		if err != nil {
			return err
		}
		if hold != nil {
			return s.refundHold(ctx, st, hold, reason, &out)
		}

		// no wallet hold: look for a provider-funded direct payment
		payment, err := st.FindTransactionByBookingAndType(ctx, bookingID, model.TxBookingPayment)
		if err != nil {
			return err
		}
		if payment == nil {
			return makeErr(ErrNotFound, fmt.Sprintf("nothing held or paid for booking %d", bookingID))
		}
		if payment.ExternalPaymentID == nil {
			return makeErr(ErrNotFound, fmt.Sprintf("booking %d payment has no external reference", bookingID))
		}
		// no balance moves here, but the payer's wallet row still serializes
		// concurrent refund deliveries for the same booking
		if _, err := st.GetOrCreateWallet(ctx, payment.UserID, s.currency); err != nil {
			return err
		}
		if _, err := st.FindWalletForUpdate(ctx, payment.UserID); err != nil {
			return err
		}
		if err := s.checkRefundableLocked(ctx, st, bookingID, &out); err != nil {
			return err
		}
		if err := s.gw.RefundPayment(ctx, *payment.ExternalPaymentID, payment.Amount); err != nil {
			return wrapErr(ErrProvider, err)
		}
		now := time.Now().UTC()
		refund := &model.Transaction{
			UserID:            payment.UserID,
			BookingID:         &bookingID,
			Type:              model.TxBookingRefund,
			Status:            model.TxCompleted,
			Amount:            payment.Amount,
			Currency:          payment.Currency,
			Description:       "Refund: " + reason,
			Reference:         newRef("rfd"),
			ExternalPaymentID: payment.ExternalPaymentID,
			Provider:          s.gw.Name(),
			ProcessedAt:       &now,
		}
		if err := st.SaveTransaction(ctx, refund); err != nil {
			return err
		}
		out = refund
		return nil
	})
	if err != nil {
		return out, mapStoreErr(err)
	}
	return out, nil
}

// checkRefundableLocked re-runs the refund guards once the serializing wallet
// lock is held; the pre-lock checks in ProcessRefund are only a fast path.
func (s *service) checkRefundableLocked(ctx context.Context, st ledgerrepo.Store, bookingID int64, out **model.Transaction) error {
	if prev, err := st.FindTransactionByBookingAndType(ctx, bookingID, model.TxBookingRefund); err != nil {
		return err
	} else if prev != nil {
		*out = prev
		return makeErr(ErrDuplicate, fmt.Sprintf("booking %d already refunded", bookingID))
	}
	if released, err := st.FindTransactionByBookingAndType(ctx, bookingID, model.TxEscrowRelease); err != nil {
		return err
	} else if released != nil {
		return makeErr(ErrEscrowReleased,
			fmt.Sprintf("booking %d funds were already released to the host", bookingID))
	}
	return nil
}

func (s *service) refundHold(ctx context.Context, st ledgerrepo.Store, hold *model.Transaction, reason string, out **model.Transaction) error {
	w, err := st.FindWalletForUpdate(ctx, hold.UserID)
	if err != nil {
		return err
	}
	if w == nil {
		return makeErr(ErrNotFound, "guest wallet not found")
	}
	if !w.CanMutate() {
		// the money stays in escrow until an operator reactivates or
		// re-routes; crediting a frozen wallet would hide funds there
		return makeErr(ErrWalletClosed, "guest wallet is not active")
	}
	if err := s.checkRefundableLocked(ctx, st, *hold.BookingID, out); err != nil {
		return err
	}
	if err := st.UpdateWalletBalance(ctx, w.ID, w.Balance.Add(hold.Amount)); err != nil {
		return err
	}
	// a hold that was settled externally also reverses on the rail
	if hold.ExternalPaymentID != nil {
		if err := s.gw.RefundPayment(ctx, *hold.ExternalPaymentID, hold.Amount); err != nil {
			return wrapErr(ErrProvider, err)
		}
	}
	now := time.Now().UTC()
	refund := &model.Transaction{
		WalletID:    &w.ID,
		UserID:      hold.UserID,
		BookingID:   hold.BookingID,
		Type:        model.TxBookingRefund,
		Status:      model.TxCompleted,
		Amount:      hold.Amount,
		Currency:    hold.Currency,
		Description: "Refund: " + reason,
		Reference:   newRef("rfd"),
		ProcessedAt: &now,
	}
	if err := st.SaveTransaction(ctx, refund); err != nil {
		return err
	}
	*out = refund
	return nil
}

// SyncBalance repairs a wallet whose stored balance drifted from the replay
// sum of its ledger. The ledger is authoritative. Any correction leaves an
// ADMIN_ADJUSTMENT audit marker (zero signed contribution).
func (s *service) SyncBalance(ctx context.Context, userID int64) (*model.Wallet, error) {
	var out *model.Wallet
	err := s.store.WithTx(ctx, func(ctx context.Context, st ledgerrepo.Store) error {
		w, err := st.FindWalletForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if w == nil {
			return makeErr(ErrNotFound, "wallet not found")
		}
		sum, err := st.SumSignedAmounts(ctx, w.ID)
		if err != nil {
			return err
		}
		if sum.Equal(w.Balance) {
			out = w
			return nil
		}
		drift := sum.Sub(w.Balance)
		s.log.Warn("wallet balance drift", "user_id", userID, "stored", w.Balance, "replayed", sum)
		if err := st.UpdateWalletBalance(ctx, w.ID, sum); err != nil {
			return err
		}
		now := time.Now().UTC()
		marker := &model.Transaction{
			WalletID:    &w.ID,
			UserID:      userID,
			Type:        model.TxAdminAdjust,
			Status:      model.TxCompleted,
			Amount:      drift.Abs(),
			Currency:    w.Currency,
			Description: fmt.Sprintf("Balance sync: drift %s corrected from ledger replay", drift),
			Reference:   newRef("adj"),
			ProcessedAt: &now,
		}
		if err := st.SaveTransaction(ctx, marker); err != nil {
			return err
		}
		w.Balance = sum
		out = w
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

// mapStoreErr turns store-level failures into coded errors; coded errors
// pass through untouched.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if Code(err) != "" {
		return err
	}
	if errors.Is(err, ledgerrepo.ErrLockTimeout) {
		return wrapErr(ErrConflict, err)
	}
	return err
}
