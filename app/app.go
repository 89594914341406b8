package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefrontapp/storefront/internal/auth"
	"github.com/storefrontapp/storefront/internal/cache"
	"github.com/storefrontapp/storefront/internal/catalog"
	"github.com/storefrontapp/storefront/internal/config"
	"github.com/storefrontapp/storefront/internal/crypto"
	"github.com/storefrontapp/storefront/internal/db"
	"github.com/storefrontapp/storefront/internal/email"
	"github.com/storefrontapp/storefront/internal/handlers"
	"github.com/storefrontapp/storefront/internal/logging"
	"github.com/storefrontapp/storefront/internal/notify"
	"github.com/storefrontapp/storefront/internal/payment"
	"github.com/storefrontapp/storefront/internal/services"
	"github.com/storefrontapp/storefront/internal/session"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Config         *config.Config
	Logger         *slog.Logger
	DB             *pgxpool.Pool
	CacheProvider  cache.Provider
	SessionManager *session.Manager
	Hub            *notify.Hub
	Dispatcher     *notify.Dispatcher
	Handlers       *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled := strings.TrimSpace(cfg.SentryDSN) != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			EnableLogs:       true,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	logger := logging.New(os.Stdout, logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Sentry: sentryEnabled,
	})

	a := &App{Config: cfg, Logger: logger}
	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// init builds every collaborator. On error the fields set so far are released
// by Close.
func (a *App) init() error {
	cfg := a.Config
	logger := a.Logger

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.DB = database

	if err := db.Migrate(startupCtx, database); err != nil {
		return err
	}

	productStore := db.NewProductStore(database)
	if cfg.CatalogSeedPath != "" {
		seeder := catalog.NewSeeder(productStore, logger.With("component", "catalog_seeder"))
		if _, err := seeder.SeedFile(startupCtx, cfg.CatalogSeedPath); err != nil {
			return fmt.Errorf("failed to seed catalog: %w", err)
		}
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache provider: %w", err)
	}
	a.CacheProvider = cacheProvider

	sessionStore, err := session.NewStore(startupCtx, session.Config{
		Provider:              cfg.SessionStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	a.SessionManager = session.NewManager(sessionStore, handlers.SecureCookiesFromConfig(cfg))

	sealer, err := crypto.NewSealer(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize sealer: %w", err)
	}

	orderStore := db.NewOrderStore(database)
	subscriptionStore := db.NewPushSubscriptionStore(database, sealer)

	gateway := payment.NewStripeGateway(payment.Config{
		SecretKey:          cfg.StripeSecretKey,
		VerificationSecret: cfg.PaymentVerificationSecret,
		Currency:           cfg.PaymentCurrency,
		Timeout:            cfg.GatewayTimeout,
	})

	mailer, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize email provider: %w", err)
	}

	a.Hub = notify.NewHub(logger)
	registry := notify.NewRegistry(subscriptionStore, a.Hub)

	dispatcherCfg := notify.DispatcherConfig{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
		StoreName: cfg.StoreName,
		StoreURL:  cfg.BaseURL,
	}
	if cfg.PushEnabled() {
		sender := notify.NewPushSender(notify.VAPIDConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
		}, registry)
		a.Dispatcher, err = notify.NewDispatcher(dispatcherCfg, registry, sender, mailer, logger)
	} else {
		logger.Info("push notifications disabled: VAPID keys not configured")
		a.Dispatcher, err = notify.NewDispatcher(dispatcherCfg, registry, nil, mailer, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to start notification dispatcher: %w", err)
	}

	pricer := catalog.NewPricer(catalog.PricerConfig{
		ShippingFlatRate:      cfg.ShippingFlatRate,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		TaxRateBasisPoints:    cfg.TaxRateBasisPoints,
	})
	orderService := services.NewOrderService(
		orderStore,
		productStore,
		gateway,
		pricer,
		a.Dispatcher,
		services.OrderServiceConfig{
			Currency:    cfg.PaymentCurrency,
			MaxPageSize: cfg.MaxPageSize,
		},
		logger.With("component", "order_service"),
	)
	stripeRouter := handlers.NewStripeEventRouter(orderService, logger.With("component", "stripe_router"))

	h, err := handlers.New(handlers.Dependencies{
		Config:         cfg,
		DB:             database,
		Orders:         orderService,
		Registry:       registry,
		Hub:            a.Hub,
		Verifier:       auth.NewVerifier(cfg.JWTSecret),
		SessionManager: a.SessionManager,
		CacheProvider:  cacheProvider,
		StripeRouter:   stripeRouter,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}
	a.Handlers = h

	return nil
}

// Close drains pending notifications and then releases sockets, stores and
// the database pool.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.Dispatcher.Close(ctx); err != nil {
			a.Logger.Warn("notification dispatcher did not drain", "error", err)
		}
		cancel()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.SessionManager != nil {
		closeSessionManager(a.Logger, a.SessionManager)
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	sentry.Flush(2 * time.Second)
}

func closeSessionManager(logger *slog.Logger, manager *session.Manager) {
	if manager == nil {
		return
	}
	if err := manager.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session manager", "error", err)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
