package payment

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	paymentsvc "staypay/service/payment"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc paymentsvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

// POST /v1/payment/flutterwave
// The rail retries on any non-2xx, so a signature failure is the only case
// worth rejecting loudly; processing errors are logged and retried.
func (h *Controller) HandleFlutterwave(c echo.Context) error {
	sig := c.Request().Header.Get("verif-hash")
	raw, _ := io.ReadAll(c.Request().Body)

	if err := h.Svc.HandleFlutterwave(c.Request().Context(), sig, raw); err != nil {
		if paymentsvc.Code(err) == paymentsvc.ErrBadSignature {
			h.Log.Warn("webhook signature rejected", "ip", c.RealIP())
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": "rejected"})
		}
		h.Log.Error("webhook processing error", "err", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "payment rejected"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "ok"})
}

type verifyReq struct {
	Reference string `json:"reference" validate:"required"`
}

// POST /v1/wallet/deposits/verify
// Pull-based settle for clients returning from the rail's payment page.
func (h *Controller) Verify(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid json"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error"})
	}
	userID := c.Get("user_id").(int64)

	tx, err := h.Svc.VerifyAndProcess(c.Request().Context(), req.Reference, userID)
	if err != nil {
		switch paymentsvc.Code(err) {
		case paymentsvc.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "unknown reference"})
		case paymentsvc.ErrUnauthorized:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "not your transaction"})
		case paymentsvc.ErrProvider:
			return c.JSON(http.StatusBadGateway, echo.Map{"message": "provider unavailable"})
		}
		h.Log.Error("Verify failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": tx})
}

// POST /v1/payment/sync?hours=24
// Reconciliation sweep against the rail's authoritative listing.
func (h *Controller) Sync(c echo.Context) error {
	hours := 24
	if v := c.QueryParam("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "bad hours"})
		}
		hours = n
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	report, err := h.Svc.SyncAllTransactions(c.Request().Context(), since)
	if err != nil {
		h.Log.Error("Sync failed", "err", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"message": "provider unavailable"})
	}
	payouts, err := h.Svc.SyncPayouts(c.Request().Context())
	if err != nil {
		h.Log.Error("payout sync failed", "err", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"message": "provider unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"deposits": report, "payouts": payouts})
}
