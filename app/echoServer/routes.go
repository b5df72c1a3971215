package echoServer

import (
	"net/http"

	bookingctrl "staypay/app/echoServer/controller/booking"
	paymentctrl "staypay/app/echoServer/controller/payment"
	walletctrl "staypay/app/echoServer/controller/wallet"
	"staypay/app/echoServer/jwtx"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

type C struct {
	Wallet    *walletctrl.Controller
	Payment   *paymentctrl.Controller
	Booking   *bookingctrl.Controller
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public: rail callbacks, rate limited per source IP
	pub := e.Group("/v1", WebhookRateLimiter())
	pub.POST("/payment/flutterwave", c.Payment.HandleFlutterwave)

	// Auth
	auth := e.Group("/v1")
	auth.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(c.JWTSecret),

		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
		TokenLookup:   "header:Authorization",
	}))
	// user_id extraction
	auth.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			uid, err := jwtx.UserIDFromContext(ctx)
			if err != nil {
				reqID := ctx.Response().Header().Get(echo.HeaderXRequestID)
				ctx.Logger().Warnf("[AUTH] %v req_id=%s ip=%s", err, reqID, ctx.RealIP())
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}
			ctx.Set("user_id", uid)
			return next(ctx)
		}
	})

	// Wallet
	auth.GET("/wallet", c.Wallet.Balance)
	auth.GET("/wallet/transactions", c.Wallet.Ledger)
	auth.POST("/wallet/deposits", c.Wallet.Deposit)
	auth.POST("/wallet/deposits/verify", c.Payment.Verify)
	auth.POST("/wallet/withdrawals", c.Wallet.Withdraw)
	auth.POST("/wallet/payouts", c.Wallet.Payout)
	auth.POST("/wallet/sync", c.Wallet.Sync)

	// Reconciliation sweep
	auth.POST("/payment/sync", c.Payment.Sync)

	// Bookings: money movement only, lifecycle lives elsewhere
	auth.POST("/bookings/:id/pay", c.Booking.Pay)
	auth.POST("/bookings/:id/refund", c.Booking.Refund)
	auth.POST("/bookings/:id/release", c.Booking.Release)
}
