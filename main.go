// Package main StayPay API.
//
// @title           StayPay Wallet API
// @version         1.0
// @description     wallet and escrow subsystem (deposits, withdrawals, booking escrow, payouts).
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"staypay/app/echoServer"
	bookingctrl "staypay/app/echoServer/controller/booking"
	paymentctrl "staypay/app/echoServer/controller/payment"
	walletctrl "staypay/app/echoServer/controller/wallet"
	"staypay/app/echoServer/validation"
	"staypay/config"
	bookingrepo "staypay/repository/booking"
	ledgerrepo "staypay/repository/ledger"
	providerrepo "staypay/repository/provider"
	userrepo "staypay/repository/user"
	bookingsvc "staypay/service/booking"
	paymentsvc "staypay/service/payment"
	walletsvc "staypay/service/wallet"
	"staypay/util/database"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// DB: *sql.DB
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	store := ledgerrepo.New(db)
	br := bookingrepo.New(db)
	ur := userrepo.New(db)

	var gw providerrepo.Gateway
	switch cfg.PaymentProvider {
	case "flutterwave":
		gw = providerrepo.NewFlutterwave(cfg.FlwSecretKey, time.Duration(cfg.ProviderTimeout)*time.Second)
	default:
		log.Warn("using stub payment gateway", "provider", cfg.PaymentProvider)
		gw = providerrepo.NewStub()
	}

	// services
	ws := walletsvc.New(store, gw, cfg.DefaultCurrency, cfg.PlatformFeePercent, log)
	ps := paymentsvc.New(store, gw, ur, ws, cfg.FlwWebhookHash, log)
	bs := bookingsvc.New(br, ur, store, ws, gw, log)

	// controllers
	v := validator.New()
	walletC := &walletctrl.Controller{Svc: ws, V: v, Log: log}
	paymentC := &paymentctrl.Controller{Svc: ps, V: v, Log: log}
	bookingC := &bookingctrl.Controller{Svc: bs, V: v, Log: log}

	// echo
	e := echo.New()
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Wallet:  walletC,
		Payment: paymentC,
		Booking: bookingC,

		JWTSecret: cfg.JWTSecret,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}
	if port == "" {
		port = "8080"
	}

	slog.Info("starting server", "PORT_env", os.Getenv("PORT"), "chosen_port", port)

	e.Logger.Fatal(e.Start(":" + port))
}
