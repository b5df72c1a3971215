package providerrepo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Stub is the local rail: every charge and payout settles in memory. It is
// the provider selected when PAYMENT_PROVIDER=stub (dev and tests).
type Stub struct {
	mu      sync.Mutex
	seq     int64
	intents map[string]*PaymentIntent // keyed by reference
	payouts map[string]*Payout        // keyed by id

	// FailNext makes the next call return an APIError, for exercising
	// rollback paths.
	FailNext bool
}

func NewStub() *Stub {
	return &Stub{
		intents: make(map[string]*PaymentIntent),
		payouts: make(map[string]*Payout),
	}
}

func (s *Stub) Name() string { return "stub" }

func (s *Stub) fail() error {
	if s.FailNext {
		s.FailNext = false
		return &APIError{StatusCode: 502, Message: "stub: forced failure"}
	}
	return nil
}

func (s *Stub) CreatePaymentIntent(_ context.Context, req CreateIntentReq) (*PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	s.seq++
	in := &PaymentIntent{
		ID:            fmt.Sprintf("stub-pi-%d", s.seq),
		Reference:     req.Reference,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        StatusPending,
		CustomerEmail: req.CustomerEmail,
	}
	s.intents[req.Reference] = in
	cp := *in
	return &cp, nil
}

func (s *Stub) ConfirmPaymentIntent(_ context.Context, intentID string) (*PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	for _, in := range s.intents {
		if in.ID == intentID {
			in.Status = StatusSucceeded
			cp := *in
			return &cp, nil
		}
	}
	return nil, &APIError{StatusCode: 404, Message: "stub: unknown intent " + intentID}
}

func (s *Stub) GetPaymentIntentStatus(_ context.Context, reference string) (*PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[reference]
	if !ok {
		return nil, &APIError{StatusCode: 404, Message: "stub: unknown reference " + reference}
	}
	cp := *in
	return &cp, nil
}

func (s *Stub) RefundPayment(_ context.Context, externalPaymentID string, _ decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	for _, in := range s.intents {
		if in.ID == externalPaymentID {
			return nil
		}
	}
	return &APIError{StatusCode: 404, Message: "stub: unknown payment " + externalPaymentID}
}

func (s *Stub) CreatePayout(_ context.Context, req PayoutReq) (*Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	s.seq++
	p := &Payout{
		ID:        fmt.Sprintf("stub-po-%d", s.seq),
		Reference: req.Reference,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    StatusPending,
	}
	s.payouts[p.ID] = p
	cp := *p
	return &cp, nil
}

func (s *Stub) GetPayoutStatus(_ context.Context, payoutID string) (*Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[payoutID]
	if !ok {
		return nil, &APIError{StatusCode: 404, Message: "stub: unknown payout " + payoutID}
	}
	p.Status = StatusSucceeded
	cp := *p
	return &cp, nil
}

func (s *Stub) ListTransactions(_ context.Context, since time.Time) ([]ProviderTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProviderTx, 0, len(s.intents))
	for _, in := range s.intents {
		out = append(out, ProviderTx{
			ExternalID:    in.ID,
			Reference:     in.Reference,
			Amount:        in.Amount,
			Currency:      in.Currency,
			Status:        in.Status,
			CustomerEmail: in.CustomerEmail,
			CreatedAt:     since,
		})
	}
	return out, nil
}

var _ Gateway = (*Stub)(nil)
