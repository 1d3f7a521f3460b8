package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	common "github.com/telhawk-systems/cloudguard/common/config"
	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/messaging/kafka"
	"github.com/telhawk-systems/cloudguard/common/messaging/memory"
	"github.com/telhawk-systems/cloudguard/common/messaging/sns"
	"github.com/telhawk-systems/cloudguard/common/models"
	"github.com/telhawk-systems/cloudguard/signin/internal/activity"
	"github.com/telhawk-systems/cloudguard/signin/internal/classifier"
	"github.com/telhawk-systems/cloudguard/signin/internal/config"
	"github.com/telhawk-systems/cloudguard/signin/internal/consumer"
	"github.com/telhawk-systems/cloudguard/signin/internal/counter"
	"github.com/telhawk-systems/cloudguard/signin/internal/dlq"
	"github.com/telhawk-systems/cloudguard/signin/internal/handlers"
	"github.com/telhawk-systems/cloudguard/signin/internal/router"
	"github.com/telhawk-systems/cloudguard/signin/internal/server"
	"github.com/telhawk-systems/cloudguard/signin/internal/service"
	"github.com/telhawk-systems/cloudguard/signin/internal/store"

	natsclient "github.com/telhawk-systems/cloudguard/common/messaging/nats"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	flag.Parse()

	if err := common.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("signin"))
	logging.SetDefault(logger)

	slog.Info("Starting signin service",
		slog.Int("port", cfg.Server.Port),
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("router_transport", cfg.Router.Transport),
		slog.String("identity_mode", string(cfg.Activity.IdentityMode)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Activity store
	openCtx, openCancel := context.WithTimeout(ctx, 60*time.Second)
	activityStore, err := store.Open(openCtx, cfg.StoreOptions())
	openCancel()
	if err != nil {
		fatal("Failed to open activity store", err)
	}
	defer activityStore.Close()
	logger.Info("Activity store ready", logging.Backend(cfg.Store.Backend))

	if p, ok := activityStore.(store.Purger); ok && cfg.Store.PurgeInterval > 0 {
		go store.RunPurger(ctx, p, cfg.Store.PurgeInterval, logger)
	}

	// NATS is needed by the nats transport, the DLQ and both NATS intake paths.
	var js *natsclient.JetStreamClient
	if needsNATS(cfg) {
		js, err = natsclient.NewJetStreamClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Timeout:       5 * time.Second,
			Logger:        logger,
		})
		if err != nil {
			fatal("Failed to connect to NATS", err)
		}
		defer js.Drain()
		slog.Info("Connected to NATS", slog.String("url", cfg.NATS.URL))
	}

	// Alert publisher
	var (
		publisher router.Publisher
		broker    messaging.Connectivity
	)
	switch cfg.Router.Transport {
	case config.TransportMemory:
		bus := memory.NewBus()
		publisher, broker = bus, bus
		slog.Warn("Alerts are published to an in-process bus and will not leave this service")
	case config.TransportNATS:
		publisher, broker = js.Client, js.Client
	case config.TransportSNS:
		p, err := sns.New(ctx, sns.Config{
			Region:          cfg.AWS.Region,
			Endpoint:        cfg.AWS.Endpoint,
			TopicARN:        cfg.Router.SNS.TopicARN,
			ArrayAttributes: []string{models.AttrTargets},
		})
		if err != nil {
			fatal("Failed to create SNS publisher", err)
		}
		publisher = p
	case config.TransportKafka:
		p, err := kafka.NewPublisher(kafka.Config{Brokers: cfg.Kafka.Brokers})
		if err != nil {
			fatal("Failed to create Kafka publisher", err)
		}
		defer p.Close()
		publisher = p
	}
	if broker == nil && js != nil {
		broker = js.Client
	}

	var deadLetters dlq.Writer = dlq.Discard{}
	if cfg.Router.DeadLetter && js != nil {
		if _, err := js.CreateOrUpdateStream(ctx, natsclient.SigninDLQStream); err != nil {
			fatal("Failed to create dead-letter stream", err)
		}
		deadLetters = dlq.NewJetStreamWriter(js)
		slog.Info("Dead-letter queue enabled", slog.String("subject", messaging.DLQSubject(dlq.KindRouting)))
	}

	// Classification pipeline
	normalizer := activity.NewNormalizer(cfg.Activity)
	failures := counter.New(activityStore, cfg.Counter.Retry, logger)
	cls := classifier.New(failures, cfg.Rules)
	alertRouter := router.New(publisher, deadLetters, router.Config{
		Subject: cfg.Router.Subject,
		Retry:   cfg.Router.Retry,
	}, logger)
	processor := service.NewProcessor(normalizer, activityStore, cls, alertRouter, cfg.Counter.Retry, logger)

	// Broker intake
	if cfg.Ingest.Subscribe {
		sub, err := consumer.Subscribe(js, processor, logger)
		if err != nil {
			fatal("Failed to subscribe to raw events", err)
		}
		defer sub.Unsubscribe()
		slog.Info("Subscribed to raw events",
			slog.String("subject", messaging.SubjectSigninEventsRaw),
			slog.String("queue", messaging.QueueSigninWorkers))
	}
	if cfg.Ingest.JetStream {
		consumerCfg := natsclient.DefaultConsumerConfig(cfg.Ingest.Consumer, messaging.SubjectSigninEventsRaw)
		consumerCfg.MaxDeliver = cfg.Ingest.MaxDeliver
		consumerCfg.AckWait = cfg.Ingest.AckWait
		consumerCfg.NakDelay = cfg.Ingest.NakDelay
		stopConsumer, err := consumer.StartJetStream(ctx, js, consumerCfg, processor, logger)
		if err != nil {
			fatal("Failed to start JetStream consumer", err)
		}
		defer stopConsumer()
		slog.Info("JetStream consumer started", slog.String("consumer", cfg.Ingest.Consumer))
	}
	if cfg.Ingest.Kafka {
		kc, err := kafka.NewConsumer(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, cfg.Counter.Retry, logger)
		if err != nil {
			fatal("Failed to create Kafka consumer", err)
		}
		defer kc.Close()
		go func() {
			if err := consumer.RunKafka(ctx, kc, processor, logger); err != nil {
				logger.Error("Kafka consumer stopped; shutting down for redelivery", logging.Error(err))
				stop()
			}
		}()
		slog.Info("Kafka consumer started", slog.String("topic", cfg.Kafka.Topic))
	}

	// HTTP
	handler := handlers.NewHandler(processor, activityStore, broker, cfg.Ingest.MaxBodyBytes, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.NewRouter(handler, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Signin service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("Server error", err)
		}
	}()

	<-ctx.Done()

	slog.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}

	slog.Info("Server stopped")
}

func needsNATS(cfg *config.Config) bool {
	return cfg.Router.Transport == config.TransportNATS ||
		cfg.Router.DeadLetter ||
		cfg.Ingest.Subscribe ||
		cfg.Ingest.JetStream
}

func fatal(msg string, err error) {
	slog.Error(msg, logging.Error(err))
	os.Exit(1)
}
