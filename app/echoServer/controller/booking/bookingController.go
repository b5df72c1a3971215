package booking

import (
	"log/slog"
	"net/http"
	"strconv"

	bookingsvc "staypay/service/booking"
	walletsvc "staypay/service/wallet"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc bookingsvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

type PayReq struct {
	UseWallet        bool   `json:"use_wallet"`
	PaymentMethodRef string `json:"payment_method_ref"`
}

type RefundReq struct {
	Reason string `json:"reason" validate:"required"`
}

func bookingID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func (h *Controller) fail(c echo.Context, op string, err error) error {
	switch bookingsvc.Code(err) {
	case bookingsvc.ErrBookingNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "booking not found"})
	case bookingsvc.ErrNotOwner:
		return c.JSON(http.StatusForbidden, echo.Map{"message": "not allowed"})
	case bookingsvc.ErrNotPayable:
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": "booking not payable"})
	}
	switch walletsvc.Code(err) {
	case walletsvc.ErrInsufficientBalance:
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": "insufficient balance"})
	case walletsvc.ErrEscrowReleased:
		return c.JSON(http.StatusConflict, echo.Map{"message": "escrow already released"})
	case walletsvc.ErrConflict:
		return c.JSON(http.StatusConflict, echo.Map{"message": "try again"})
	case walletsvc.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "no funds movement for booking"})
	case walletsvc.ErrProvider:
		return c.JSON(http.StatusBadGateway, echo.Map{"message": "provider unavailable"})
	case walletsvc.ErrWalletClosed:
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": "wallet is not active"})
	}
	h.Log.Error(op+" failed", "err", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
}

// POST /v1/bookings/:id/pay
func (h *Controller) Pay(c echo.Context) error {
	id, err := bookingID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "bad booking id"})
	}
	var req PayReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid json"})
	}
	if !req.UseWallet && req.PaymentMethodRef == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "payment_method_ref required for card payment"})
	}
	userID := c.Get("user_id").(int64)

	res, err := h.Svc.ProcessBookingPayment(c.Request().Context(), id, req.UseWallet, req.PaymentMethodRef, userID)
	if err != nil {
		return h.fail(c, "Pay", err)
	}
	code := http.StatusCreated
	if res.AlreadyDone {
		code = http.StatusOK
	}
	return c.JSON(code, echo.Map{"data": res})
}

// POST /v1/bookings/:id/refund
func (h *Controller) Refund(c echo.Context) error {
	id, err := bookingID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "bad booking id"})
	}
	var req RefundReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid json"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error"})
	}
	userID := c.Get("user_id").(int64)

	res, err := h.Svc.RefundBooking(c.Request().Context(), id, req.Reason, userID)
	if err != nil {
		return h.fail(c, "Refund", err)
	}
	code := http.StatusCreated
	if res.AlreadyDone {
		code = http.StatusOK
	}
	return c.JSON(code, echo.Map{"data": res})
}

// POST /v1/bookings/:id/release
func (h *Controller) Release(c echo.Context) error {
	id, err := bookingID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "bad booking id"})
	}
	userID := c.Get("user_id").(int64)

	rel, err := h.Svc.ReleaseBooking(c.Request().Context(), id, userID)
	if err != nil {
		if walletsvc.Code(err) == walletsvc.ErrDuplicate {
			return c.JSON(http.StatusOK, echo.Map{"message": "already released"})
		}
		return h.fail(c, "Release", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"host_credit":  rel.HostCredit,
		"platform_fee": rel.PlatformFee,
	})
}
