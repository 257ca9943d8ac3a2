package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"personalos/internal/billing"
	"personalos/internal/cache"
	"personalos/internal/cli"
	"personalos/internal/config"
	"personalos/internal/content"
	apphttp "personalos/internal/http"
	"personalos/internal/journal"
	"personalos/internal/log"
	"personalos/internal/media"
	"personalos/internal/metrics"
	"personalos/internal/ports"
	"personalos/internal/services"
)

func main() {
	envErr := cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	if envErr != nil {
		logger.Warn("Failed to load .env file", log.FieldError, envErr)
	}

	cfg := cli.LoadAndValidateConfig(logger)
	m := metrics.New()
	ctx := context.Background()

	entries, err := journal.Open(cfg.EntriesFile)
	if err != nil {
		logger.Error("Failed to load journal", log.FieldError, err, "path", cfg.EntriesFile)
		os.Exit(1)
	}

	history := cli.InitBackend(ctx, logger, cfg, func() { m.SnapshotStored("direct") })

	mediaSvc, err := media.NewService(ctx, media.Config{
		Timeout:    cfg.MediaTimeout,
		CacheTTL:   cfg.MediaCacheTTL,
		CacheSize:  cfg.MediaCacheSize,
		HTTPClient: &http.Client{Timeout: 2 * cfg.MediaTimeout},
		Endpoints:  media.DefaultEndpoints(),
		Observer:   m,
	})
	if err != nil {
		logger.Error("Failed to initialize media lookups", log.FieldError, err)
		os.Exit(1)
	}
	caches := cache.NewManager()
	for name, c := range mediaSvc.Caches() {
		caches.Register(name, c)
	}
	caches.StartCleanup(10 * time.Minute)

	deps := apphttp.Dependencies{
		History: history.Store,
		Media:   mediaSvc,
		Journal: entries,
		Metrics: m,
		Logger:  logger,
	}

	// The processor keeps history growing when no separate worker is
	// attached through the broker.
	var processor *services.SnapshotProcessor
	if business := newBusinessService(logger, cfg, m, history.Publisher); business != nil {
		deps.Business = business
		if history.Broker == nil {
			pcfg := services.DefaultSnapshotProcessorConfig()
			pcfg.RefreshInterval = cfg.SnapshotInterval
			processor = services.NewSnapshotProcessor(business, history.Store, pcfg)
		}
	} else {
		logger.Info("Stripe disabled - no STRIPE_SECRET_KEY provided")
	}

	if cfg.NotionConfigured() {
		notion, err := content.NewClient(content.Config{
			Token:      cfg.NotionToken,
			DatabaseID: cfg.NotionDatabaseID,
		})
		if err != nil {
			logger.Error("Failed to initialize Notion client", log.FieldError, err)
			os.Exit(1)
		}
		deps.Content = notion
	} else {
		logger.Info("Notion disabled - no NOTION_TOKEN provided")
	}

	opts := apphttp.DefaultOptions()
	opts.RateLimitPerMinute = cfg.RateLimitPerMinute
	srv := apphttp.NewServer(":"+cfg.Port, deps, opts)
	srv.MaxHeaderBytes = 1 << 16

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Warn("Snapshot processor did not stop cleanly", log.FieldError, err)
			}
		}
		caches.Stop()
		if err := history.Cleanup(); err != nil {
			logger.Error("History backend cleanup failed", log.FieldError, err)
		}
	})

	cli.OnReload(runCtx, logger, entries.Reload)

	if processor != nil {
		if err := processor.Start(runCtx); err != nil {
			logger.Error("Failed to start snapshot processor", log.FieldError, err)
		}
	}

	logger.Info("Starting personalos server",
		"port", cfg.Port,
		"history_backend", cfg.HistoryBackend,
		"amqp", history.Broker != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Server stopped gracefully")
}

// newBusinessService returns nil when Stripe is not configured, so the
// API answers 503 instead of calling Stripe without a key.
func newBusinessService(logger *log.Logger, cfg *config.Config, m *metrics.Metrics, publisher ports.SnapshotPublisher) *services.BusinessService {
	if !cfg.StripeConfigured() {
		return nil
	}

	stripeClient, err := billing.NewStripeClient(billing.Config{
		SecretKey:  cfg.StripeSecretKey,
		APIURL:     cfg.StripeAPIURL,
		HTTPClient: &http.Client{Timeout: cfg.StripeTimeout},
		Logger:     logger.With(log.FieldComponent, log.ComponentStripe).Logger,
	})
	if err != nil {
		logger.Error("Failed to initialize Stripe client", log.FieldError, err)
		os.Exit(1)
	}

	return services.NewBusinessService(stripeClient, services.BusinessConfig{
		Timeout:           cfg.StripeTimeout,
		SubscriptionLimit: cfg.StripeSubscriptionLimit,
		ChargeLimit:       cfg.StripeChargeLimit,
	},
		services.WithSnapshotPublisher(publisher),
		services.WithRecorder(m),
	)
}
