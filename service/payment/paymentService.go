package paymentsvc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"staypay/model"
	ledgerrepo "staypay/repository/ledger"
	providerrepo "staypay/repository/provider"
	userrepo "staypay/repository/user"
	"staypay/service/wallet"

	"github.com/shopspring/decimal"
)

// errors used by controllers

type ErrCode string

const (
	ErrBadSignature ErrCode = "BAD_SIGNATURE"
	ErrBadPayload   ErrCode = "BAD_PAYLOAD"
	ErrNotFound     ErrCode = "NOT_FOUND"
	ErrUnauthorized ErrCode = "UNAUTHORIZED"
	ErrProvider     ErrCode = "PAYMENT_PROVIDER"
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

// Service is the reconciliation entry point for the payment rail: webhook
// push, client-initiated verify pull, and the catch-up sweep for dropped
// webhooks. Delivery is at-least-once everywhere, so every path funnels
// through the wallet service's exactly-once apply.
type Service interface {
	HandleFlutterwave(ctx context.Context, sigHeader string, raw []byte) error
	VerifyAndProcess(ctx context.Context, txRef string, userID int64) (*model.Transaction, error)
	SyncAllTransactions(ctx context.Context, since time.Time) (*SyncReport, error)
	SyncPayouts(ctx context.Context) (*PayoutSyncReport, error)
}

type SyncReport struct {
	Seen    int `json:"seen"`
	Created int `json:"created"`
	Applied int `json:"applied"`
}

type PayoutSyncReport struct {
	Seen    int `json:"seen"`
	Settled int `json:"settled"`
}

type service struct {
	store         ledgerrepo.Store
	gw            providerrepo.Gateway
	users         userrepo.Repo
	wallets       wallet.Service
	webhookSecret string
	log           *slog.Logger
}

func New(store ledgerrepo.Store, gw providerrepo.Gateway, users userrepo.Repo, wallets wallet.Service, webhookSecret string, log *slog.Logger) Service {
	return &service{store: store, gw: gw, users: users, wallets: wallets, webhookSecret: webhookSecret, log: log}
}

// flwEvent is the rail's webhook envelope. Amount arrives in minor units.
type flwEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID       int64  `json:"id"`
		TxRef    string `json:"tx_ref"`
		FlwRef   string `json:"flw_ref"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

func (s *service) HandleFlutterwave(ctx context.Context, sigHeader string, raw []byte) error {
	if subtle.ConstantTimeCompare([]byte(sigHeader), []byte(s.webhookSecret)) != 1 {
		return makeErr(ErrBadSignature)
	}
	var ev flwEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("bad webhook json: %w", err)
	}
	if ev.Data.TxRef == "" || ev.Data.Status == "" {
		return makeErr(ErrBadPayload)
	}
	externalID := fmt.Sprintf("%d", ev.Data.ID)
	return s.processWebhook(ctx, ev.Event, ev.Data.TxRef, externalID,
		providerrepo.FromMinorUnits(ev.Data.Amount), ev.Data.Currency,
		ev.Data.Status, ev.Data.Customer.Email)
}

// processWebhook applies one rail notification. A transaction the client
// initiated but never confirmed locally is created from the payload rather
// than dropped; a repeat delivery of an already-settled one is a logged
// no-op.
func (s *service) processWebhook(ctx context.Context, event, txRef, externalRef string, amount decimal.Decimal, currency, status, email string) error {
	local, err := s.store.FindTransactionByReference(ctx, txRef)
	if err != nil {
		return err
	}
	if local == nil {
		local, err = s.createFromProvider(ctx, txRef, externalRef, amount, currency, email)
		if err != nil {
			return err
		}
		s.log.Info("webhook created missing transaction", "event", event, "ref", txRef)
	}
	if local.Type != model.TxDeposit {
		// charge notifications only ever settle deposits; a reference
		// pointing at a debit row must never reach the credit path
		s.log.Error("webhook references non-deposit transaction", "ref", txRef, "type", local.Type)
		return makeErr(ErrBadPayload)
	}

	if !local.Status.IsTerminal() && !local.Amount.Equal(amount) {
		// never credit an amount the rail disagrees with
		s.log.Error("webhook amount mismatch", "ref", txRef,
			"local", local.Amount, "provider", amount)
		if _, err := s.wallets.ApplyDepositOutcome(ctx, txRef, false); err != nil {
			return err
		}
		return fmt.Errorf("amount mismatch for %s", txRef)
	}

	switch {
	case succeededStatus(status):
		applied, err := s.wallets.ApplyDepositOutcome(ctx, txRef, true)
		if err != nil {
			return err
		}
		if !applied {
			s.log.Info("duplicate webhook delivery ignored",
				"code", wallet.ErrDuplicate, "ref", txRef, "event", event)
		}
		return nil
	case failedStatus(status):
		_, err := s.wallets.ApplyDepositOutcome(ctx, txRef, false)
		return err
	default:
		return nil
	}
}

// VerifyAndProcess is the pull-based twin of the webhook, called by the
// client after it returns from the rail's payment page. Same exactly-once
// guard, same apply path.
func (s *service) VerifyAndProcess(ctx context.Context, txRef string, userID int64) (*model.Transaction, error) {
	local, err := s.store.FindTransactionByReference(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if local == nil {
		return nil, makeErr(ErrNotFound)
	}
	if local.UserID != userID {
		return nil, makeErr(ErrUnauthorized)
	}
	if local.Type != model.TxDeposit {
		return nil, makeErr(ErrNotFound)
	}

	intent, err := s.gw.GetPaymentIntentStatus(ctx, txRef)
	if err != nil {
		s.log.Error("verify lookup failed", "ref", txRef, "err", err)
		return nil, makeErr(ErrProvider)
	}

	switch intent.Status {
	case providerrepo.StatusSucceeded:
		if _, err := s.wallets.ApplyDepositOutcome(ctx, txRef, true); err != nil {
			return nil, err
		}
	case providerrepo.StatusFailed:
		if _, err := s.wallets.ApplyDepositOutcome(ctx, txRef, false); err != nil {
			return nil, err
		}
	}
	return s.store.FindTransactionByReference(ctx, txRef)
}

// SyncAllTransactions walks the rail's authoritative listing and repairs
// local state: creates rows that were lost entirely and settles rows whose
// webhook never arrived.
func (s *service) SyncAllTransactions(ctx context.Context, since time.Time) (*SyncReport, error) {
	listing, err := s.gw.ListTransactions(ctx, since)
	if err != nil {
		return nil, makeErr(ErrProvider)
	}
	report := &SyncReport{Seen: len(listing)}
	for _, ptx := range listing {
		if ptx.Reference == "" {
			continue
		}
		local, err := s.store.FindTransactionByReference(ctx, ptx.Reference)
		if err != nil {
			return report, err
		}
		if local == nil {
			if !ptx.Status.Terminal() {
				// still open on the rail and unknown locally; a later
				// sweep or webhook picks it up once it settles
				continue
			}
			if _, err := s.createFromProvider(ctx, ptx.Reference, ptx.ExternalID,
				ptx.Amount, ptx.Currency, ptx.CustomerEmail); err != nil {
				return report, err
			}
			report.Created++
		} else if local.Status.IsTerminal() {
			continue
		}
		switch ptx.Status {
		case providerrepo.StatusSucceeded:
			applied, err := s.wallets.ApplyDepositOutcome(ctx, ptx.Reference, true)
			if err != nil {
				s.log.Error("sync apply failed", "ref", ptx.Reference, "err", err)
				continue
			}
			if applied {
				report.Applied++
			}
		case providerrepo.StatusFailed:
			if _, err := s.wallets.ApplyDepositOutcome(ctx, ptx.Reference, false); err != nil {
				s.log.Error("sync fail-mark failed", "ref", ptx.Reference, "err", err)
			}
		}
	}
	return report, nil
}

// SyncPayouts polls the rail for every withdrawal and host payout still in
// PROCESSING and settles the terminal ones. Balances are only touched on
// failure, via the compensating credit inside ApplyPayoutOutcome.
func (s *service) SyncPayouts(ctx context.Context) (*PayoutSyncReport, error) {
	rows, err := s.store.ListUnsettledPayouts(ctx)
	if err != nil {
		return nil, err
	}
	report := &PayoutSyncReport{Seen: len(rows)}
	for i := range rows {
		row := &rows[i]
		if row.ExternalPayoutID == nil {
			continue
		}
		p, err := s.gw.GetPayoutStatus(ctx, *row.ExternalPayoutID)
		if err != nil {
			s.log.Error("payout status lookup failed", "ref", row.Reference, "err", err)
			continue
		}
		if !p.Status.Terminal() {
			continue
		}
		applied, err := s.wallets.ApplyPayoutOutcome(ctx, row.Reference, p.Status == providerrepo.StatusSucceeded)
		if err != nil {
			s.log.Error("payout settle failed", "ref", row.Reference, "err", err)
			continue
		}
		if applied {
			report.Settled++
		}
	}
	return report, nil
}

// createFromProvider records a deposit we only learned about from the rail.
// Unknown customer emails still get a row (user id 0, no wallet) so the
// money trail is never dropped; attaching happens once the user is known.
func (s *service) createFromProvider(ctx context.Context, txRef, externalRef string, amount decimal.Decimal, currency, email string) (*model.Transaction, error) {
	var userID int64
	if email != "" {
		u, err := s.users.ByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if u != nil {
			userID = u.ID
		}
	}
	if userID == 0 {
		s.log.Warn("webhook for unknown customer", "ref", txRef, "email", email)
	}
	meta := fmt.Sprintf(`{"source":"reconciliation","customer_email":%q}`, email)
	tx := &model.Transaction{
		UserID:            userID,
		Type:              model.TxDeposit,
		Status:            model.TxPending,
		Amount:            amount,
		Currency:          currency,
		Description:       "Wallet deposit (recovered from provider)",
		Reference:         txRef,
		ExternalPaymentID: &externalRef,
		Provider:          s.gw.Name(),
		Metadata:          &meta,
	}
	if err := s.store.SaveTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func succeededStatus(s string) bool { return s == "successful" || s == "succeeded" }
func failedStatus(s string) bool    { return s == "failed" || s == "error" }
