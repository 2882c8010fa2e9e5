package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/api"
	"github.com/akylbek/payment-system/payment-verifier/internal/config"
	"github.com/akylbek/payment-system/payment-verifier/internal/events"
	"github.com/akylbek/payment-system/payment-verifier/internal/handlers"
	"github.com/akylbek/payment-system/payment-verifier/internal/interfaces"
	"github.com/akylbek/payment-system/payment-verifier/internal/ledger"
	"github.com/akylbek/payment-system/payment-verifier/internal/notify"
	"github.com/akylbek/payment-system/payment-verifier/internal/repository"
	"github.com/akylbek/payment-system/payment-verifier/internal/service"
	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

func serveCmd() *cobra.Command {
	var consume bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the payment verification API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(config.Load(), consume)
		},
	}

	cmd.Flags().BoolVar(&consume, "consume", false, "also consume verification requests from Kafka")

	return cmd
}

func runServe(cfg *config.Config, consume bool) error {
	if err := telemetry.InitTelemetry("payment-verifier", cfg.JaegerEndpoint); err != nil {
		return err
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Verifier")

	// Connect to PostgreSQL
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	paymentRepo := repository.NewPaymentRepository(db)
	if err := paymentRepo.InitDB(); err != nil {
		return err
	}
	merchantRepo := repository.NewMerchantRepository(db)
	productRepo := repository.NewProductRepository(db)

	// Ledger client, cached in Redis when configured
	var ledgerClient interfaces.Ledger = ledger.NewClient(&ledger.ClientConfig{
		URL:     cfg.SuiRPCURL,
		Timeout: cfg.LedgerTimeout,
	})
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		ledgerClient = ledger.NewCachedClient(ledgerClient, redisClient, cfg.LedgerCacheTTL)
	}

	// State change events
	var publisher interfaces.StatePublisher
	if cfg.KafkaBrokers != "" {
		kafkaWriter := events.NewKafkaWriter(cfg.KafkaBrokers)
		defer kafkaWriter.Close()
		publisher = events.NewKafkaPublisher(kafkaWriter)
	}

	// Webhook delivery
	dispatcher := notify.NewDispatcher(&notify.DispatcherConfig{
		Secret:  cfg.WebhookSecret,
		Timeout: cfg.WebhookTimeout,
	})
	notifications, closeQueue, err := newNotificationQueue(cfg, dispatcher)
	if err != nil {
		return err
	}
	defer closeQueue()

	verifier := service.NewVerifier(paymentRepo, merchantRepo, ledgerClient, publisher, notifications, cfg.LedgerTimeout)
	checkout := service.NewCheckout(paymentRepo, merchantRepo, productRepo, cfg.FrontendBaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumerDone := make(chan struct{})
	if consume {
		if cfg.KafkaBrokers == "" {
			return errors.New("--consume requires KAFKA_BROKERS")
		}
		reader := events.NewKafkaReader(cfg.KafkaBrokers, events.DefaultVerificationConsumerID)
		defer reader.Close()

		consumer := service.NewVerificationConsumer(reader, verifier, cfg.FinalityDelay)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil {
				telemetry.Logger.Error("Verification consumer stopped", zap.Error(err))
			}
		}()
	} else {
		close(consumerDone)
	}

	router := api.NewRouter(
		handlers.NewPaymentHandler(verifier, checkout, productRepo, cfg.FinalityDelay),
		handlers.NewPaymentStateHandler(paymentRepo),
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		telemetry.Logger.Info("Payment Verifier starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		telemetry.Logger.Error("Failed to start server", zap.Error(runErr))
		stop()
	}

	telemetry.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second+cfg.FinalityDelay)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}
	<-consumerDone

	telemetry.Logger.Info("Server exited")
	return runErr
}

func newRedisClient(redisURL string) (*redis.Client, error) {
	if strings.Contains(redisURL, "://") {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// newNotificationQueue returns the configured webhook queue and a function
// that drains and closes it.
func newNotificationQueue(cfg *config.Config, dispatcher *notify.Dispatcher) (interfaces.NotificationQueue, func(), error) {
	switch cfg.NotifyBackend {
	case "nats":
		if cfg.NatsURL == "" {
			return nil, nil, errors.New("NOTIFY_BACKEND=nats requires NATS_URL")
		}
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			return nil, nil, err
		}
		queue := notify.NewNATSQueue(nc, notify.DefaultSubject)
		sub, err := queue.Subscribe(dispatcher, notify.DefaultQueueGroup)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return queue, func() {
			_ = sub.Drain()
			_ = nc.Drain()
		}, nil

	default:
		if cfg.NotifyBackend != "memory" && cfg.NotifyBackend != "" {
			telemetry.Logger.Warn("Unknown notify backend, using memory", zap.String("backend", cfg.NotifyBackend))
		}
		queue := notify.NewChannelQueue(dispatcher, cfg.NotifyWorkers, cfg.NotifyBuffer)
		queue.Start()
		return queue, queue.Close, nil
	}
}
