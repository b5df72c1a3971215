package providerrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"staypay/util/httpx"

	"github.com/shopspring/decimal"
)

const flwBaseURL = "https://api.flutterwave.com/v3"

type flutterwave struct {
	secretKey string
	baseURL   string
	client    *http.Client
	timeout   time.Duration
}

// NewFlutterwave builds the card/bank-transfer rail client. timeout bounds
// every call so a held wallet lock cannot stall on the network.
func NewFlutterwave(secretKey string, timeout time.Duration) Gateway {
	return &flutterwave{
		secretKey: secretKey,
		baseURL:   flwBaseURL,
		client:    httpx.Client(),
		timeout:   timeout,
	}
}

func (f *flutterwave) Name() string { return "flutterwave" }

// flwEnvelope is the standard response wrapper of the rail.
type flwEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type flwCharge struct {
	ID            int64   `json:"id"`
	TxRef         string  `json:"tx_ref"`
	FlwRef        string  `json:"flw_ref"`
	AmountMinor   int64   `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	Customer      flwCust `json:"customer"`
	PaymentMethod string  `json:"payment_type"`
}

type flwCust struct {
	Email string `json:"email"`
}

type flwTransfer struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

func (f *flutterwave) CreatePaymentIntent(ctx context.Context, req CreateIntentReq) (*PaymentIntent, error) {
	body := map[string]any{
		"tx_ref":    req.Reference,
		"amount":    ToMinorUnits(req.Amount),
		"currency":  req.Currency,
		"email":     req.CustomerEmail,
		"token":     req.PaymentMethodRef,
		"narration": req.Description,
	}
	var ch flwCharge
	if err := f.do(ctx, http.MethodPost, "/charges?type=card", body, &ch); err != nil {
		return nil, err
	}
	return chargeToIntent(&ch), nil
}

func (f *flutterwave) ConfirmPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	var ch flwCharge
	path := fmt.Sprintf("/transactions/%s/verify", url.PathEscape(intentID))
	if err := f.do(ctx, http.MethodGet, path, nil, &ch); err != nil {
		return nil, err
	}
	return chargeToIntent(&ch), nil
}

func (f *flutterwave) GetPaymentIntentStatus(ctx context.Context, reference string) (*PaymentIntent, error) {
	var ch flwCharge
	path := "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)
	if err := f.do(ctx, http.MethodGet, path, nil, &ch); err != nil {
		return nil, err
	}
	return chargeToIntent(&ch), nil
}

func (f *flutterwave) RefundPayment(ctx context.Context, externalPaymentID string, amount decimal.Decimal) error {
	body := map[string]any{"amount": ToMinorUnits(amount)}
	path := fmt.Sprintf("/transactions/%s/refund", url.PathEscape(externalPaymentID))
	return f.do(ctx, http.MethodPost, path, body, nil)
}

func (f *flutterwave) CreatePayout(ctx context.Context, req PayoutReq) (*Payout, error) {
	bank, account, ok := strings.Cut(req.DestinationAccountRef, ":")
	if !ok {
		return nil, fmt.Errorf("bad destination account ref %q, want bank:account", req.DestinationAccountRef)
	}
	body := map[string]any{
		"account_bank":   bank,
		"account_number": account,
		"amount":         ToMinorUnits(req.Amount),
		"currency":       req.Currency,
		"reference":      req.Reference,
		"narration":      req.Narration,
	}
	var tr flwTransfer
	if err := f.do(ctx, http.MethodPost, "/transfers", body, &tr); err != nil {
		return nil, err
	}
	return transferToPayout(&tr), nil
}

func (f *flutterwave) GetPayoutStatus(ctx context.Context, payoutID string) (*Payout, error) {
	var tr flwTransfer
	path := fmt.Sprintf("/transfers/%s", url.PathEscape(payoutID))
	if err := f.do(ctx, http.MethodGet, path, nil, &tr); err != nil {
		return nil, err
	}
	return transferToPayout(&tr), nil
}

func (f *flutterwave) ListTransactions(ctx context.Context, since time.Time) ([]ProviderTx, error) {
	var charges []flwCharge
	path := "/transactions?from=" + since.UTC().Format("2006-01-02")
	if err := f.do(ctx, http.MethodGet, path, nil, &charges); err != nil {
		return nil, err
	}
	out := make([]ProviderTx, 0, len(charges))
	for i := range charges {
		ch := &charges[i]
		created, _ := time.Parse(time.RFC3339, ch.CreatedAt)
		out = append(out, ProviderTx{
			ExternalID:    fmt.Sprintf("%d", ch.ID),
			Reference:     ch.TxRef,
			Amount:        FromMinorUnits(ch.AmountMinor),
			Currency:      ch.Currency,
			Status:        mapStatus(ch.Status),
			CustomerEmail: ch.Customer.Email,
			CreatedAt:     created,
		})
	}
	return out, nil
}

func (f *flutterwave) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env flwEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	if resp.StatusCode >= 300 || env.Status == "error" {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func chargeToIntent(ch *flwCharge) *PaymentIntent {
	return &PaymentIntent{
		ID:            fmt.Sprintf("%d", ch.ID),
		Reference:     ch.TxRef,
		Amount:        FromMinorUnits(ch.AmountMinor),
		Currency:      ch.Currency,
		Status:        mapStatus(ch.Status),
		CustomerEmail: ch.Customer.Email,
	}
}

func transferToPayout(tr *flwTransfer) *Payout {
	return &Payout{
		ID:        fmt.Sprintf("%d", tr.ID),
		Reference: tr.Reference,
		Amount:    FromMinorUnits(tr.Amount),
		Currency:  tr.Currency,
		Status:    mapStatus(tr.Status),
	}
}

func mapStatus(s string) IntentStatus {
	switch strings.ToLower(s) {
	case "successful", "succeeded", "success":
		return StatusSucceeded
	case "failed", "error", "cancelled":
		return StatusFailed
	}
	return StatusPending
}
