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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/01moynul/netriver-marketplace/internal/auth"
	"github.com/01moynul/netriver-marketplace/internal/cart"
	"github.com/01moynul/netriver-marketplace/internal/checkout"
	"github.com/01moynul/netriver-marketplace/internal/commission"
	"github.com/01moynul/netriver-marketplace/internal/config"
	"github.com/01moynul/netriver-marketplace/internal/database"
	"github.com/01moynul/netriver-marketplace/internal/handlers"
	"github.com/01moynul/netriver-marketplace/internal/logger"
	"github.com/01moynul/netriver-marketplace/internal/metrics"
	"github.com/01moynul/netriver-marketplace/internal/notify"
	"github.com/01moynul/netriver-marketplace/internal/orders"
	"github.com/01moynul/netriver-marketplace/internal/payment"
	"github.com/01moynul/netriver-marketplace/internal/routes"
	"github.com/01moynul/netriver-marketplace/internal/store"
	"github.com/01moynul/netriver-marketplace/internal/store/memstore"
	"github.com/01moynul/netriver-marketplace/internal/store/mysqlstore"
)

const (
	shutdownTimeout = 10 * time.Second
	webhookEventTTL = 72 * time.Hour
	notifyBuffer    = 256
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 0. --- Configuration & Logging ---
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.Setup(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. --- Store ---
	st, err := openStore(cfg.Database, log)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. --- Supporting Services ---
	m := metrics.New()
	policy, err := commission.NewPolicy(cfg.CommissionRate)
	if err != nil {
		return err
	}

	sinks := notify.Multi{notify.NewEmailNotifier(log, "orders@netriver.ng")}
	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer kn.Close()
		sinks = append(sinks, kn)
		log.Info("kafka notifications enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	dispatcher := notify.NewDispatcher(sinks, notifyBuffer, log, notify.WithHooks(
		m.NotificationsDropped.Inc,
		func(event string) { m.NotificationsFailed.WithLabelValues(event).Inc() },
	))

	var events payment.EventLog = payment.NopEventLog{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, webhook dedupe falls back to the database", "addr", cfg.RedisAddr, "error", err)
		}
		events = payment.NewRedisEventLog(rdb, webhookEventTTL)
	}

	if cfg.Payment.SecretKey == "" {
		log.Warn("PAYSTACK_SECRET_KEY is not set; payment calls and webhooks will be rejected")
	}
	gateway := payment.NewPaystack(payment.PaystackConfig{
		BaseURL:   cfg.Payment.BaseURL,
		SecretKey: cfg.Payment.SecretKey,
		Timeout:   cfg.Payment.GatewayTimeout,
	}, log)
	reconciler := payment.NewReconciler(payment.Config{
		Currency:       cfg.Payment.Currency,
		CallbackURL:    cfg.Payment.CallbackURL,
		ToleranceMinor: cfg.Payment.ToleranceMinor,
		WebhookSecret:  cfg.Payment.SecretKey,
	}, payment.Deps{
		Store:    st,
		Gateway:  gateway,
		Events:   events,
		Notifier: dispatcher,
		Metrics:  m,
		Logger:   log,
	})
	sweeper := payment.NewSweeper(reconciler, cfg.Payment.ReconcileEvery, cfg.Payment.ReconcileAfter, log)

	// --- Application Setup ---
	app := &handlers.Handlers{
		Store: st,
		Cart:  cart.NewService(st),
		Orchestrator: checkout.New(checkout.Deps{
			Store:    st,
			Policy:   policy,
			Rules:    checkout.Rules{Regions: cfg.Regions, Phone: cfg.PhonePattern},
			Notifier: dispatcher,
			Metrics:  m,
			Logger:   log,
		}),
		Orders:   orders.NewService(st, policy, dispatcher, log),
		Payments: reconciler,
		Currency: cfg.Payment.Currency,
		Log:      log,
	}

	// --- Router Setup ---
	router := routes.SetupRouter(app, routes.Options{
		Issuer:       auth.NewIssuer(cfg.JWTSecret),
		Metrics:      m,
		Logger:       log,
		CORSOrigin:   cfg.CORSOrigin,
		RateLimitRPS: cfg.RateLimit.RPS,
		RateBurst:    cfg.RateLimit.Burst,
		SecureCookie: cfg.CookieSecure,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- Start Server & Background Workers ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting marketplace API server", "port", cfg.Port, "store", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })

	err = g.Wait()
	log.Info("server exited")
	return err
}

func openStore(cfg config.Database, log *slog.Logger) (store.Store, error) {
	if cfg.Driver == "memory" {
		ms := memstore.New()
		if cfg.SeedFile != "" {
			n, err := ms.SeedFile(cfg.SeedFile)
			if err != nil {
				return nil, fmt.Errorf("seed memory store: %w", err)
			}
			log.Info("memory store seeded", "products", n, "file", cfg.SeedFile)
		}
		log.Warn("using in-memory store; data is lost on restart")
		return ms, nil
	}

	if cfg.RunMigrations {
		if err := database.RunMigrations(cfg.DSN); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	db, err := database.OpenDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to primary database: %w", err)
	}
	return mysqlstore.New(db), nil
}
