package wallet

import "errors"

// errors used by controllers and the booking facade

type ErrCode string

const (
	ErrBadInput            ErrCode = "BAD_INPUT"
	ErrInsufficientBalance ErrCode = "INSUFFICIENT_BALANCE"
	ErrNotFound            ErrCode = "NOT_FOUND"
	ErrUnauthorized        ErrCode = "UNAUTHORIZED"
	ErrConflict            ErrCode = "CONCURRENCY_CONFLICT"
	ErrProvider            ErrCode = "PAYMENT_PROVIDER"
	ErrDuplicate           ErrCode = "DUPLICATE_OPERATION"
	ErrWalletClosed        ErrCode = "WALLET_CLOSED"
	ErrEscrowReleased      ErrCode = "ESCROW_RELEASED"
)

type codedError struct {
	code ErrCode
	msg  string
	err  error
}

func (e codedError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return string(e.code)
}
func (e codedError) Code() ErrCode { return e.code }
func (e codedError) Unwrap() error { return e.err }

func makeErr(c ErrCode, msg string) error { return codedError{code: c, msg: msg} }
func wrapErr(c ErrCode, err error) error  { return codedError{code: c, err: err, msg: err.Error()} }

// Code extracts the error code, "" for uncoded errors.
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}
