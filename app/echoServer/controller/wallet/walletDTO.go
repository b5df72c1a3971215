package wallet

import "github.com/shopspring/decimal"

type DepositReq struct {
	Amount           decimal.Decimal `json:"amount"`
	PaymentMethodRef string          `json:"payment_method_ref" validate:"required"`
	Email            string          `json:"email" validate:"required,email"`
}

type WithdrawReq struct {
	Amount         decimal.Decimal `json:"amount"`
	DestinationRef string          `json:"destination_ref" validate:"required"`
}

type PayoutReq struct {
	Amount         decimal.Decimal `json:"amount"`
	DestinationRef string          `json:"destination_ref" validate:"required"`
}
