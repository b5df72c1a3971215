package wallet

import (
	"log/slog"
	"net/http"

	walletsvc "staypay/service/wallet"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc walletsvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

// status maps service error codes onto HTTP statuses.
func status(code walletsvc.ErrCode) int {
	switch code {
	case walletsvc.ErrBadInput:
		return http.StatusBadRequest
	case walletsvc.ErrInsufficientBalance, walletsvc.ErrWalletClosed, walletsvc.ErrEscrowReleased:
		return http.StatusUnprocessableEntity
	case walletsvc.ErrNotFound:
		return http.StatusNotFound
	case walletsvc.ErrUnauthorized:
		return http.StatusForbidden
	case walletsvc.ErrConflict, walletsvc.ErrDuplicate:
		return http.StatusConflict
	case walletsvc.ErrProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Controller) fail(c echo.Context, op string, err error) error {
	code := walletsvc.Code(err)
	if code == "" {
		h.Log.Error(op+" failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(status(code), echo.Map{"code": code, "message": err.Error()})
}

// GET /v1/wallet
func (h *Controller) Balance(c echo.Context) error {
	userID := c.Get("user_id").(int64)
	w, err := h.Svc.Balance(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, "Balance", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": w})
}

// GET /v1/wallet/transactions
func (h *Controller) Ledger(c echo.Context) error {
	userID := c.Get("user_id").(int64)
	rows, err := h.Svc.Ledger(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, "Ledger", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// POST /v1/wallet/deposits
// @Summary Charge the payment rail and credit the wallet
// @Success 201 {object} map[string]any
// @Failure 400,401,422,502
func (h *Controller) Deposit(c echo.Context) error {
	var req DepositReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid json"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "err": err.Error()})
	}
	userID := c.Get("user_id").(int64)
	tx, err := h.Svc.Deposit(c.Request().Context(), userID, req.Amount, req.PaymentMethodRef, req.Email)
	if err != nil {
		return h.fail(c, "Deposit", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"data": tx})
}

// POST /v1/wallet/withdrawals
func (h *Controller) Withdraw(c echo.Context) error {
	var req WithdrawReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid json"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "err": err.Error()})
	}
	userID := c.Get("user_id").(int64)
	tx, err := h.Svc.Withdraw(c.Request().Context(), userID, req.Amount, req.DestinationRef)
	if err != nil {
		return h.fail(c, "Withdraw", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"data": tx})
}

// POST /v1/wallet/payouts
func (h *Controller) Payout(c echo.Context) error {
	var req PayoutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid json"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "err": err.Error()})
	}
	userID := c.Get("user_id").(int64)
	tx, err := h.Svc.RequestPayout(c.Request().Context(), userID, req.Amount, req.DestinationRef)
	if err != nil {
		return h.fail(c, "Payout", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"data": tx})
}

// POST /v1/wallet/sync
func (h *Controller) Sync(c echo.Context) error {
	userID := c.Get("user_id").(int64)
	w, err := h.Svc.SyncBalance(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, "Sync", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": w})
}
