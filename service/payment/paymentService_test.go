// service/payment/payment_service_test.go
package paymentsvc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"staypay/model"
	ledgerrepo "staypay/repository/ledger"
	providerrepo "staypay/repository/provider"
	userrepo "staypay/repository/user"
	"staypay/service/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type storeMock struct {
	ledgerrepo.Store // panics on anything not overridden below

	findByRefFn     func(ctx context.Context, ref string) (*model.Transaction, error)
	saveFn          func(ctx context.Context, t *model.Transaction) error
	listUnsettledFn func(ctx context.Context) ([]model.Transaction, error)
}

func (m *storeMock) FindTransactionByReference(ctx context.Context, ref string) (*model.Transaction, error) {
	return m.findByRefFn(ctx, ref)
}
func (m *storeMock) SaveTransaction(ctx context.Context, t *model.Transaction) error {
	if m.saveFn == nil {
		return nil
	}
	return m.saveFn(ctx, t)
}
func (m *storeMock) ListUnsettledPayouts(ctx context.Context) ([]model.Transaction, error) {
	if m.listUnsettledFn == nil {
		return nil, nil
	}
	return m.listUnsettledFn(ctx)
}

type walletMock struct {
	wallet.Service

	applyFn       func(ctx context.Context, reference string, succeeded bool) (bool, error)
	applyPayoutFn func(ctx context.Context, reference string, succeeded bool) (bool, error)
}

func (m *walletMock) ApplyDepositOutcome(ctx context.Context, reference string, succeeded bool) (bool, error) {
	return m.applyFn(ctx, reference, succeeded)
}
func (m *walletMock) ApplyPayoutOutcome(ctx context.Context, reference string, succeeded bool) (bool, error) {
	return m.applyPayoutFn(ctx, reference, succeeded)
}

type usersMock struct {
	userrepo.Repo

	byEmailFn func(ctx context.Context, email string) (*model.User, error)
}

func (m *usersMock) ByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.byEmailFn == nil {
		return nil, nil
	}
	return m.byEmailFn(ctx, email)
}

type gwMock struct {
	providerrepo.Gateway

	getStatusFn func(ctx context.Context, reference string) (*providerrepo.PaymentIntent, error)
	listFn      func(ctx context.Context, since time.Time) ([]providerrepo.ProviderTx, error)
	getPayoutFn func(ctx context.Context, payoutID string) (*providerrepo.Payout, error)
}

func (m *gwMock) Name() string { return "mock" }
func (m *gwMock) GetPaymentIntentStatus(ctx context.Context, reference string) (*providerrepo.PaymentIntent, error) {
	return m.getStatusFn(ctx, reference)
}
func (m *gwMock) ListTransactions(ctx context.Context, since time.Time) ([]providerrepo.ProviderTx, error) {
	return m.listFn(ctx, since)
}
func (m *gwMock) GetPayoutStatus(ctx context.Context, payoutID string) (*providerrepo.Payout, error) {
	return m.getPayoutFn(ctx, payoutID)
}

const secret = "whsec-test"

func newSvc(st *storeMock, gw *gwMock, users *usersMock, w *walletMock) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, gw, users, w, secret, log)
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func webhookBody(t *testing.T, txRef, status string, minorAmount int64, email string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": "charge.completed",
		"data": map[string]any{
			"id":       int64(4242),
			"tx_ref":   txRef,
			"amount":   minorAmount,
			"currency": "NGN",
			"status":   status,
			"customer": map[string]any{"email": email},
		},
	})
	require.NoError(t, err)
	return body
}

func TestHandleFlutterwave_RejectsBadSignature(t *testing.T) {
	svc := newSvc(&storeMock{}, &gwMock{}, &usersMock{}, &walletMock{})
	err := svc.HandleFlutterwave(context.Background(), "wrong", webhookBody(t, "dep-1", "successful", 10000, "g@x.com"))
	require.Equal(t, ErrBadSignature, Code(err))
}

func TestWebhook_SettlesKnownDeposit(t *testing.T) {
	existing := &model.Transaction{
		ID: 1, UserID: 7, Type: model.TxDeposit, Status: model.TxPending,
		Amount: dec("100.00"), Currency: "NGN", Reference: "dep-1",
	}
	var appliedRef string
	var appliedOK bool
	st := &storeMock{findByRefFn: func(_ context.Context, ref string) (*model.Transaction, error) {
		return existing, nil
	}}
	w := &walletMock{applyFn: func(_ context.Context, ref string, ok bool) (bool, error) {
		appliedRef, appliedOK = ref, ok
		return true, nil
	}}
	svc := newSvc(st, &gwMock{}, &usersMock{}, w)

	err := svc.HandleFlutterwave(context.Background(), secret, webhookBody(t, "dep-1", "successful", 10000, "g@x.com"))
	require.NoError(t, err)
	require.Equal(t, "dep-1", appliedRef)
	require.True(t, appliedOK)
}

func TestWebhook_DuplicateDeliveryIsNoOp(t *testing.T) {
	settled := &model.Transaction{
		ID: 1, UserID: 7, Type: model.TxDeposit, Status: model.TxCompleted,
		Amount: dec("100.00"), Currency: "NGN", Reference: "dep-1",
	}
	calls := 0
	st := &storeMock{findByRefFn: func(_ context.Context, ref string) (*model.Transaction, error) {
		return settled, nil
	}}
	w := &walletMock{applyFn: func(_ context.Context, ref string, ok bool) (bool, error) {
		calls++
		return false, nil // already terminal
	}}
	svc := newSvc(st, &gwMock{}, &usersMock{}, w)

	err := svc.HandleFlutterwave(context.Background(), secret, webhookBody(t, "dep-1", "successful", 10000, "g@x.com"))
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestWebhook_CreatesMissingTransaction(t *testing.T) {
	var saved *model.Transaction
	st := &storeMock{
		findByRefFn: func(_ context.Context, ref string) (*model.Transaction, error) { return nil, nil },
		saveFn: func(_ context.Context, tx *model.Transaction) error {
			tx.ID = 9
			saved = tx
			return nil
		},
	}
	users := &usersMock{byEmailFn: func(_ context.Context, email string) (*model.User, error) {
		return &model.User{ID: 7, Email: email}, nil
	}}
	w := &walletMock{applyFn: func(_ context.Context, ref string, ok bool) (bool, error) { return true, nil }}
	svc := newSvc(st, &gwMock{}, users, w)

	err := svc.HandleFlutterwave(context.Background(), secret, webhookBody(t, "dep-lost", "successful", 10000, "g@x.com"))
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Equal(t, int64(7), saved.UserID)
	require.Equal(t, model.TxDeposit, saved.Type)
	require.True(t, saved.Amount.Equal(dec("100.00")), "amount %s", saved.Amount)
	require.NotNil(t, saved.Metadata)
}

func TestWebhook_AmountMismatchNeverCredits(t *testing.T) {
	local := &model.Transaction{
		ID: 1, UserID: 7, Type: model.TxDeposit, Status: model.TxPending,
		Amount: dec("50.00"), Currency: "NGN", Reference: "dep-1",
	}
	var appliedOK *bool
	st := &storeMock{findByRefFn: func(_ context.Context, ref string) (*model.Transaction, error) {
		return local, nil
	}}
	w := &walletMock{applyFn: func(_ context.Context, ref string, ok bool) (bool, error) {
		appliedOK = &ok
		return true, nil
	}}
	svc := newSvc(st, &gwMock{}, &usersMock{}, w)

	// rail says 100.00, we recorded 50.00
	err := svc.HandleFlutterwave(context.Background(), secret, webhookBody(t, "dep-1", "successful", 10000, "g@x.com"))
	require.Error(t, err)
	require.NotNil(t, appliedOK)
	require.False(t, *appliedOK)
}

func TestWebhook_RejectsNonDepositReference(t *testing.T) {
	payout := &model.Transaction{
		ID: 1, UserID: 7, Type: model.TxWithdrawal, Status: model.TxProcessing,
		Amount: dec("100.00"), Currency: "NGN", Reference: "wdr-1",
	}
	st := &storeMock{findByRefFn: func(_ context.Context, ref string) (*model.Transaction, error) {
		return payout, nil
	}}
	applies := 0
	w := &walletMock{applyFn: func(_ context.Context, ref string, ok bool) (bool, error) {
		applies++
		return true, nil
	}}
	svc := newSvc(st, &gwMock{}, &usersMock{}, w)

	err := svc.HandleFlutterwave(context.Background(), secret, webhookBody(t, "wdr-1", "successful", 10000, "g@x.com"))
	require.Equal(t, ErrBadPayload, Code(err))
	require.Zero(t, applies)
}

func TestVerify_EnforcesOwnership(t *testing.T) {
	local := &model.Transaction{ID: 1, UserID: 2, Reference: "dep-1", Status: model.TxPending}
	st := &storeMock{findByRefFn: func(_ context.Context, ref string) (*model.Transaction, error) {
		return local, nil
	}}
	svc := newSvc(st, &gwMock{}, &usersMock{}, &walletMock{})

	_, err := svc.VerifyAndProcess(context.Background(), "dep-1", 1)
	require.Equal(t, ErrUnauthorized, Code(err))
}

func TestVerify_AppliesProviderOutcome(t *testing.T) {
	local := &model.Transaction{ID: 1, UserID: 1, Type: model.TxDeposit, Reference: "dep-1", Status: model.TxPending}
	st := &storeMock{findByRefFn: func(_ context.Context, ref string) (*model.Transaction, error) {
		return local, nil
	}}
	gw := &gwMock{getStatusFn: func(_ context.Context, ref string) (*providerrepo.PaymentIntent, error) {
		return &providerrepo.PaymentIntent{Reference: ref, Status: providerrepo.StatusSucceeded}, nil
	}}
	var appliedOK bool
	w := &walletMock{applyFn: func(_ context.Context, ref string, ok bool) (bool, error) {
		appliedOK = ok
		return true, nil
	}}
	svc := newSvc(st, gw, &usersMock{}, w)

	_, err := svc.VerifyAndProcess(context.Background(), "dep-1", 1)
	require.NoError(t, err)
	require.True(t, appliedOK)
}

func TestSyncAll_RepairsMissingAndUnsettled(t *testing.T) {
	known := &model.Transaction{ID: 1, UserID: 1, Reference: "dep-known", Status: model.TxPending}
	var saved []*model.Transaction
	st := &storeMock{
		findByRefFn: func(_ context.Context, ref string) (*model.Transaction, error) {
			if ref == "dep-known" {
				return known, nil
			}
			return nil, nil
		},
		saveFn: func(_ context.Context, tx *model.Transaction) error {
			saved = append(saved, tx)
			return nil
		},
	}
	gw := &gwMock{listFn: func(_ context.Context, since time.Time) ([]providerrepo.ProviderTx, error) {
		return []providerrepo.ProviderTx{
			{Reference: "dep-known", ExternalID: "x1", Amount: dec("10.00"), Currency: "NGN", Status: providerrepo.StatusSucceeded},
			{Reference: "dep-lost", ExternalID: "x2", Amount: dec("20.00"), Currency: "NGN", Status: providerrepo.StatusSucceeded, CustomerEmail: "g@x.com"},
			{Reference: "dep-open", ExternalID: "x3", Amount: dec("30.00"), Currency: "NGN", Status: providerrepo.StatusPending},
		}, nil
	}}
	users := &usersMock{byEmailFn: func(_ context.Context, email string) (*model.User, error) {
		return &model.User{ID: 7, Email: email}, nil
	}}
	applies := 0
	w := &walletMock{applyFn: func(_ context.Context, ref string, ok bool) (bool, error) {
		applies++
		return true, nil
	}}
	svc := newSvc(st, gw, users, w)

	report, err := svc.SyncAllTransactions(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, report.Seen)
	require.Equal(t, 1, report.Created)
	require.Equal(t, 2, report.Applied)
	require.Len(t, saved, 1)
	require.Equal(t, "dep-lost", saved[0].Reference)
}

func TestSyncPayouts_SettlesTerminalOnly(t *testing.T) {
	po := func(ref, ext string) model.Transaction {
		return model.Transaction{
			UserID: 1, Type: model.TxWithdrawal, Status: model.TxProcessing,
			Amount: dec("40.00"), Currency: "NGN", Reference: ref, ExternalPayoutID: &ext,
		}
	}
	st := &storeMock{listUnsettledFn: func(_ context.Context) ([]model.Transaction, error) {
		return []model.Transaction{po("wdr-done", "po-1"), po("wdr-dead", "po-2"), po("wdr-open", "po-3")}, nil
	}}
	gw := &gwMock{getPayoutFn: func(_ context.Context, id string) (*providerrepo.Payout, error) {
		switch id {
		case "po-1":
			return &providerrepo.Payout{ID: id, Status: providerrepo.StatusSucceeded}, nil
		case "po-2":
			return &providerrepo.Payout{ID: id, Status: providerrepo.StatusFailed}, nil
		}
		return &providerrepo.Payout{ID: id, Status: providerrepo.StatusPending}, nil
	}}
	var outcomes = map[string]bool{}
	w := &walletMock{applyPayoutFn: func(_ context.Context, ref string, ok bool) (bool, error) {
		outcomes[ref] = ok
		return true, nil
	}}
	svc := newSvc(st, gw, &usersMock{}, w)

	report, err := svc.SyncPayouts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Seen)
	require.Equal(t, 2, report.Settled)
	require.Equal(t, map[string]bool{"wdr-done": true, "wdr-dead": false}, outcomes)
}
