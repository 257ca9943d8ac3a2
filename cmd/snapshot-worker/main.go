package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"personalos/internal/billing"
	"personalos/internal/cli"
	"personalos/internal/log"
	"personalos/internal/metrics"
	"personalos/internal/services"
	"personalos/internal/worker"
)

func main() {
	envErr := cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	if envErr != nil {
		logger.Warn("Failed to load .env file", log.FieldError, envErr)
	}

	logger.Info("Starting snapshot-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the snapshot worker")
		os.Exit(1)
	}

	m := metrics.New()
	history := cli.InitBackend(context.Background(), logger, cfg, func() { m.SnapshotStored("direct") })
	if history.Broker == nil {
		logger.Error("AMQP broker unreachable, nothing to consume")
		_ = history.Cleanup()
		os.Exit(1)
	}

	snapshotWorker := worker.NewSnapshotWorker(history.Store, func() { m.SnapshotStored("amqp") })

	// Refreshing from the worker keeps history growing while nobody has
	// the dashboard open. Without Stripe it only consumes.
	var processor *services.SnapshotProcessor
	if cfg.StripeConfigured() {
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
		business := services.NewBusinessService(stripeClient, services.BusinessConfig{
			Timeout:           cfg.StripeTimeout,
			SubscriptionLimit: cfg.StripeSubscriptionLimit,
			ChargeLimit:       cfg.StripeChargeLimit,
		},
			services.WithSnapshotPublisher(history.Publisher),
			services.WithRecorder(m),
		)

		pcfg := services.DefaultSnapshotProcessorConfig()
		pcfg.RefreshInterval = cfg.SnapshotInterval
		processor = services.NewSnapshotProcessor(business, history.Store, pcfg)
	} else {
		logger.Info("Scheduled refresh disabled - no STRIPE_SECRET_KEY provided")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Warn("Snapshot processor did not stop cleanly", log.FieldError, err)
			}
		}
		if err := history.Cleanup(); err != nil {
			logger.Error("History backend cleanup failed", log.FieldError, err)
		}
	})

	logger.Info("Performing startup check...")
	if err := snapshotWorker.StartupCheck(ctx); err != nil {
		logger.Error("Startup check failed", log.FieldError, err)
		// Don't exit - the store may come back
	}

	if processor != nil {
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start snapshot processor", log.FieldError, err)
		}
	}

	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics listener failed", log.FieldError, err, "addr", cfg.WorkerMetricsAddr)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = metricsSrv.Close()
		}()
	}

	go func() {
		err := history.Broker.ConsumeWithRetry(ctx, snapshotWorker.HandleSnapshot)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
