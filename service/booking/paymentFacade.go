package bookingsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"staypay/model"
	bookingrepo "staypay/repository/booking"
	ledgerrepo "staypay/repository/ledger"
	providerrepo "staypay/repository/provider"
	userrepo "staypay/repository/user"
	"staypay/service/wallet"

	"github.com/google/uuid"
)

// errors used by controllers

type ErrCode string

const (
	ErrBookingNotFound ErrCode = "BOOKING_NOT_FOUND"
	ErrNotOwner        ErrCode = "NOT_OWNER"
	ErrNotPayable      ErrCode = "NOT_PAYABLE"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// Code extracts the error code, "" for uncoded errors.
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// PaymentResult is what the booking collaborator gets back from any money
// movement. AlreadyDone marks an idempotent repeat (at-least-once callers).
type PaymentResult struct {
	BookingID   int64              `json:"booking_id"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
	AlreadyDone bool               `json:"already_done"`
}

// Service is the thin adapter the booking flow calls into. It owns the
// caller-authorization checks; all balance movement is delegated to the
// wallet service.
type Service interface {
	ProcessBookingPayment(ctx context.Context, bookingID int64, useWallet bool, paymentMethodRef string, userID int64) (*PaymentResult, error)
	RefundBooking(ctx context.Context, bookingID int64, reason string, userID int64) (*PaymentResult, error)
	ReleaseBooking(ctx context.Context, bookingID, userID int64) (*wallet.Release, error)
}

type service struct {
	bookings bookingrepo.Repo
	users    userrepo.Repo
	store    ledgerrepo.Store
	wallets  wallet.Service
	gw       providerrepo.Gateway
	log      *slog.Logger
}

func New(bookings bookingrepo.Repo, users userrepo.Repo, store ledgerrepo.Store, wallets wallet.Service, gw providerrepo.Gateway, log *slog.Logger) Service {
	return &service{bookings: bookings, users: users, store: store, wallets: wallets, gw: gw, log: log}
}

// ProcessBookingPayment dispatches to wallet-funded escrow or a direct rail
// charge. Only the guest who owns the booking may pay for it; repeats are
// reported as AlreadyDone, never double-charged.
func (s *service) ProcessBookingPayment(ctx context.Context, bookingID int64, useWallet bool, paymentMethodRef string, userID int64) (*PaymentResult, error) {
	b, err := s.bookings.ByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, makeErr(ErrBookingNotFound)
	}
	if b.GuestID != userID {
		return nil, makeErr(ErrNotOwner)
	}
	if b.Status == model.BookingCancelled {
		return nil, makeErr(ErrNotPayable)
	}

	if useWallet {
		tx, err := s.wallets.ProcessEscrowHold(ctx, bookingID, userID, b.TotalAmount)
		if wallet.Code(err) == wallet.ErrDuplicate {
			return &PaymentResult{BookingID: bookingID, Transaction: tx, AlreadyDone: true}, nil
		}
		if err != nil {
			return nil, err
		}
		return &PaymentResult{BookingID: bookingID, Transaction: tx}, nil
	}

	return s.directCharge(ctx, b, paymentMethodRef)
}

// directCharge settles a booking on the rail without touching any wallet:
// one BOOKING_PAYMENT row, no balance movement.
func (s *service) directCharge(ctx context.Context, b *model.Booking, paymentMethodRef string) (*PaymentResult, error) {
	if prev, err := s.store.FindTransactionByBookingAndType(ctx, b.ID, model.TxBookingPayment); err != nil {
		return nil, err
	} else if prev != nil && prev.Status != model.TxFailed {
		return &PaymentResult{BookingID: b.ID, Transaction: prev, AlreadyDone: true}, nil
	}
	if hold, err := s.store.FindTransactionByBookingAndType(ctx, b.ID, model.TxEscrowHold); err != nil {
		return nil, err
	} else if hold != nil {
		return &PaymentResult{BookingID: b.ID, Transaction: hold, AlreadyDone: true}, nil
	}

	u, err := s.users.ByID(ctx, b.GuestID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, makeErr(ErrBookingNotFound)
	}

	tx := &model.Transaction{
		UserID:      b.GuestID,
		BookingID:   &b.ID,
		Type:        model.TxBookingPayment,
		Status:      model.TxPending,
		Amount:      b.TotalAmount,
		Currency:    b.Currency,
		Description: fmt.Sprintf("Payment for booking %d", b.ID),
		Reference:   "bkg-" + uuid.NewString(),
		Provider:    s.gw.Name(),
	}
	if err := s.store.SaveTransaction(ctx, tx); err != nil {
		return nil, err
	}

	intent, err := s.gw.CreatePaymentIntent(ctx, providerrepo.CreateIntentReq{
		Reference:        tx.Reference,
		Amount:           b.TotalAmount,
		Currency:         b.Currency,
		PaymentMethodRef: paymentMethodRef,
		CustomerEmail:    u.Email,
		Description:      tx.Description,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.SetTransactionExternalRefs(ctx, tx.ID, &intent.ID, nil); err != nil {
		// a refund later needs this id; surface the write failure
		s.log.Error("record external payment id", "ref", tx.Reference, "intent", intent.ID, "err", err)
	}
	tx.ExternalPaymentID = &intent.ID

	confirmed, err := s.gw.ConfirmPaymentIntent(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	switch confirmed.Status {
	case providerrepo.StatusSucceeded:
		if err := s.store.UpdateTransactionStatus(ctx, tx.ID, model.TxCompleted); err != nil {
			return nil, err
		}
		tx.Status = model.TxCompleted
	case providerrepo.StatusFailed:
		if err := s.store.UpdateTransactionStatus(ctx, tx.ID, model.TxFailed); err != nil {
			s.log.Error("mark booking payment failed", "ref", tx.Reference, "err", err)
		}
		return nil, fmt.Errorf("charge declined for booking %d", b.ID)
	}
	return &PaymentResult{BookingID: b.ID, Transaction: tx}, nil
}

// RefundBooking may be triggered by the guest or the listing host. An
// already-refunded booking reports AlreadyDone instead of double-crediting.
func (s *service) RefundBooking(ctx context.Context, bookingID int64, reason string, userID int64) (*PaymentResult, error) {
	b, err := s.bookings.ByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, makeErr(ErrBookingNotFound)
	}
	if userID != b.GuestID && userID != b.HostID {
		return nil, makeErr(ErrNotOwner)
	}

	tx, err := s.wallets.ProcessRefund(ctx, bookingID, reason)
	if wallet.Code(err) == wallet.ErrDuplicate {
		return &PaymentResult{BookingID: bookingID, Transaction: tx, AlreadyDone: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &PaymentResult{BookingID: bookingID, Transaction: tx}, nil
}

// ReleaseBooking exposes the escrow release primitive. The triggering policy
// (check-in reached, completion marked) lives with the booking collaborator;
// here we only require that the caller is the listing host.
func (s *service) ReleaseBooking(ctx context.Context, bookingID, userID int64) (*wallet.Release, error) {
	b, err := s.bookings.ByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, makeErr(ErrBookingNotFound)
	}
	if b.HostID != userID {
		return nil, makeErr(ErrNotOwner)
	}
	return s.wallets.ProcessEscrowRelease(ctx, bookingID, b.HostID)
}
