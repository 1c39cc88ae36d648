// Command api runs the CVForge HTTP API: auth, CV operations, plan
// entitlements, orders, and the payment webhook, backed by PostgreSQL
// and Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"

	"cvforge/internal/api/handlers"
	"cvforge/internal/auth"
	"cvforge/internal/billing"
	"cvforge/internal/cache"
	"cvforge/internal/config"
	"cvforge/internal/core"
	"cvforge/internal/cvs"
	"cvforge/internal/db"
	"cvforge/internal/docstore"
	"cvforge/internal/external"
	"cvforge/internal/notify"
	"cvforge/internal/orders"
)

const (
	paymentHTTPTimeout = 30 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel).With("service", cfg.Service, "env", cfg.Environment)
	slog.SetDefault(logger)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.Database.URL.Unmask(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		AcquireTimeout:  cfg.Database.AcquireTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password.Unmask(),
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	docs, err := docstore.NewStore(cfg.Storage.DocumentDir, logger)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	defer docs.Close()

	userRepo := db.NewUserRepository(pool)
	sessionRepo := db.NewSessionRepository(pool)
	cvRepo := db.NewCVRepository(pool)
	orderRepo := db.NewOrderRepository(pool)
	usageRepo := db.NewUsageRepository(pool)
	auditRepo := db.NewAuditRepository(pool)

	catalog := billing.NewStaticCatalog()
	clock := billing.SystemClock{}
	entitlements := billing.NewEntitlements(catalog, userRepo, usageRepo, clock, logger)
	meter := billing.NewMeter(catalog, userRepo, usageRepo, clock, logger)
	planSvc := billing.NewPlanService(userRepo, usageRepo, catalog, clock, auditRepo, logger)

	authSvc := auth.NewService(auth.Config{
		Users:           userRepo,
		Sessions:        sessionRepo,
		SessionDuration: cfg.Auth.SessionTTL,
		Logger:          logger,
	})

	paymentClient := external.NewPaymentClient(&http.Client{Timeout: paymentHTTPTimeout}, external.PaymentClientConfig{
		SecretKey: cfg.Payment.SecretKey.Unmask(),
		BaseURL:   cfg.Payment.BaseURL,
		Logger:    logger,
	})
	aiClient := external.NewAIClient(&http.Client{Timeout: cfg.AI.Timeout}, external.AIClientConfig{
		APIKey:  cfg.AI.APIKey.Unmask(),
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Logger:  logger,
	})
	rendererClient := external.NewRendererClient(&http.Client{Timeout: cfg.Renderer.Timeout}, external.RendererClientConfig{
		BaseURL: cfg.Renderer.BaseURL,
		Logger:  logger,
	})
	webhookVerifier := external.NewStripeWebhookVerifier(cfg.Payment.WebhookSecret.Unmask())

	checkoutCfg := orders.CheckoutConfig{
		SuccessURL: cfg.Server.AppURL + "/orders/{ORDER_ID}/success",
		CancelURL:  cfg.Server.AppURL + "/orders/{ORDER_ID}/cancel",
	}

	// The mailer is optional; a disabled mailer means receipts and
	// upgrade confirmations are skipped, never a startup failure.
	var upgradeMailer handlers.UpgradeMailer
	var orderSvc *orders.Service
	if cfg.Email.Enabled {
		mailer := notify.NewMailer(notify.MailerConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUser,
			Password: cfg.Email.SMTPPass.Unmask(),
			From:     fmt.Sprintf("%s <%s>", cfg.Email.FromName, cfg.Email.FromAddress),
		}, logger)
		upgradeMailer = mailer
		orderSvc = orders.NewService(orderRepo, catalog, userRepo, paymentClient, mailer, auditRepo, checkoutCfg, logger)
	} else {
		orderSvc = orders.NewService(orderRepo, catalog, userRepo, paymentClient, nil, auditRepo, checkoutCfg, logger)
	}

	cvSvc := cvs.NewService(cvRepo, entitlements, meter, aiClient, rendererClient, docs, orderSvc, auditRepo, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	srv.Authenticator = authSvc
	srv.RateLimit = cache.NewRateLimiter(redisClient, logger)
	srv.HealthProbes = []core.HealthProbe{
		core.ProbeFunc{ProbeName: "postgres", Fn: pool.Ping},
		core.ProbeFunc{ProbeName: "redis", Fn: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	}

	authHandler := handlers.NewAuthHandler(authSvc, srv.Validator, logger)
	cvHandler := handlers.NewCVHandler(cvSvc, docs, srv.Validator, logger)
	orderHandler := handlers.NewOrderHandler(orderSvc, srv.Validator, logger)
	planHandler := handlers.NewPlanHandler(catalog, planSvc, entitlements, upgradeMailer, srv.Validator, logger)
	adminHandler := handlers.NewAdminHandler(planSvc, usageRepo, entitlements, srv.Validator, logger)
	webhookHandler := handlers.NewPaymentWebhookHandler(webhookVerifier, orderSvc, logger)

	srv.PublicV1Registrars = []func(chi.Router){
		authHandler.RegisterPublicRoutes,
	}
	srv.V1RouteRegistrars = []func(chi.Router){
		authHandler.RegisterRoutes,
		cvHandler.RegisterRoutes,
		orderHandler.RegisterRoutes,
		planHandler.RegisterRoutes,
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(srv.RequireAdmin)
				adminHandler.RegisterRoutes(r)
			})
		},
	}
	srv.WebhookRegistrars = []func(chi.Router){
		webhookHandler.RegisterRoutes,
	}
	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer serves until SIGINT/SIGTERM or a listener error, then
// drains in-flight requests within the shutdown deadline.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		serverErr <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return srv.Shutdown(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
