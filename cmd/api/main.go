package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"comms-platform/internal/audit"
	"comms-platform/internal/auth"
	"comms-platform/internal/billing"
	"comms-platform/internal/charge"
	"comms-platform/internal/config"
	"comms-platform/internal/dispatch"
	"comms-platform/internal/httpapi"
	"comms-platform/internal/ledger"
	"comms-platform/internal/pricing"
	"comms-platform/internal/quote"
	"comms-platform/internal/recipients"
	"comms-platform/internal/reporting"
	"comms-platform/internal/sendgate"
	"comms-platform/internal/webhooks"
	"comms-platform/pkg/logger"
	"comms-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real deployments inject env directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := ledger.Migrate(rootCtx, db); err != nil {
		log.Error("schema migration failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Services
	var priceSource pricing.Provider
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" {
		priceSource = pricing.NewTwilioProvider(pricing.TwilioOptions{
			BaseURL:    cfg.Twilio.PricingBaseURL,
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			RPS:        cfg.Twilio.PricingRPS,
		})
	} else {
		log.Warn("twilio credentials missing; international quotes will fail with pricing_unavailable")
	}
	prices := pricing.NewService(priceSource, pricing.NewRedisCache(rdb), cfg.Billing.PriceCacheTTL)

	policy := billing.PolicyFromConfig(cfg.Billing)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	ledgerStore := ledger.NewPostgresStore(db)
	ledgerSvc := ledger.NewService(ledgerStore, auditSvc)
	quotes := quote.NewEngine(ledgerSvc, prices, policy)
	charger := charge.NewOrchestrator(charge.NewStripeProvider(cfg.Stripe.SecretKey), ledgerSvc)
	gate := sendgate.New(
		ledgerSvc,
		charger,
		quotes,
		dispatch.NewRedisQueue(rdb, dispatch.DefaultQueueKey),
		sendgate.NewRedisLocker(rdb),
		sendgate.Options{Requote: cfg.Billing.SendRequote, LockTTL: cfg.Billing.SendLockTTL},
	)

	h := httpapi.Handlers{
		Auth:       authManager,
		Quotes:     quotes,
		Gate:       gate,
		Recipients: recipients.NewPostgresResolver(db),
		Ledger:     ledgerSvc,
		Reports:    reporting.NewService(ledgerStore),
		Policy:     policy,
		DevLogin:   cfg.App.Env == "local" || cfg.App.Env == "dev",
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		authMW:    auth.RequireAccessToken(authManager),
		handlers:  h,
		stripe:    webhooks.NewStripeHandler(cfg.Stripe.WebhookSecret, ledgerSvc),
		readiness: func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) },
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
