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
	"github.com/telhawk-systems/cloudguard/common/messaging/sns"
	"github.com/telhawk-systems/cloudguard/notifier/internal/channels"
	"github.com/telhawk-systems/cloudguard/notifier/internal/config"
	"github.com/telhawk-systems/cloudguard/notifier/internal/handlers"
	"github.com/telhawk-systems/cloudguard/notifier/internal/metrics"
	"github.com/telhawk-systems/cloudguard/notifier/internal/server"
	"github.com/telhawk-systems/cloudguard/notifier/internal/service"
	"github.com/telhawk-systems/cloudguard/notifier/internal/slack"

	natsclient "github.com/telhawk-systems/cloudguard/common/messaging/nats"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	flag.Parse()

	if err := common.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	cfg, loader, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("notifier"))
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	webhooks := channels.NewRegistry(cfg.Channels)
	slog.Info("Starting notifier service",
		slog.Int("port", cfg.Server.Port),
		slog.Any("channels", webhooks.Names()),
	)
	if len(webhooks.Names()) == 0 {
		slog.Warn("No Slack webhooks configured; every alert will be dropped",
			slog.String("hint", config.EnvSlackWebhookAlarmAWS))
	}

	if loader.WatchChannels(func(m map[string]string) {
		webhooks.Replace(m)
		metrics.ConfigReloads.WithLabelValues("success").Inc()
		slog.Info("Channel configuration reloaded", slog.Any("channels", webhooks.Names()))
	}, func(err error) {
		metrics.ConfigReloads.WithLabelValues("error").Inc()
		slog.Error("Channel configuration reload failed", logging.Error(err))
	}) {
		slog.Info("Watching config file for channel changes", slog.String("path", loader.ConfigFile()))
	}

	client := slack.NewClient(cfg.Slack.Timeout, cfg.Slack.Retry, logger)
	notifier := service.New(messaging.SlackPolicy(), slack.NewFormatter(nil), client, webhooks, logger)

	if cfg.Transports.NATS {
		nc, err := natsclient.NewClient(natsclient.Config{
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
		defer nc.Drain()

		if _, err := nc.QueueSubscribe(messaging.SubjectNotifyAlertsSignin, messaging.QueueSlackNotifier, notifier.Handler("nats")); err != nil {
			fatal("Failed to subscribe to alerts", err)
		}
		slog.Info("Subscribed to alerts",
			slog.String("subject", messaging.SubjectNotifyAlertsSignin),
			slog.String("queue", messaging.QueueSlackNotifier))
	}

	if cfg.Transports.Kafka {
		kc, err := kafka.NewConsumer(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, cfg.Slack.Retry, logger)
		if err != nil {
			fatal("Failed to create Kafka consumer", err)
		}
		defer kc.Close()
		go func() {
			if err := kc.Run(ctx, notifier.Handler("kafka")); err != nil {
				slog.Error("Kafka consumer stopped; shutting down for redelivery", logging.Error(err))
				stop()
			}
		}()
		slog.Info("Kafka consumer started", slog.String("topic", cfg.Kafka.Topic))
	}

	var confirmer handlers.Confirmer
	if cfg.Transports.SNS.Enabled {
		if cfg.Transports.SNS.AutoConfirm {
			confirmer = handlers.HTTPConfirmer{}
		}
		if arn := cfg.Transports.SNS.SubscriptionARN; arn != "" {
			snsClient, err := sns.NewClient(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
			if err != nil {
				fatal("Failed to create SNS client", err)
			}
			if err := sns.ApplyFilterPolicy(ctx, snsClient, arn, messaging.SlackPolicy()); err != nil {
				slog.Warn("Failed to install subscription filter policy; filtering locally only", logging.Error(err))
			} else {
				slog.Info("Subscription filter policy installed", slog.String("subscription_arn", arn))
			}
		}
	}

	handler := handlers.NewHandler(notifier, confirmer, cfg.Transports.SNS.MaxBodyBytes, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.NewRouter(handler, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Notifier service listening", slog.String("addr", srv.Addr))
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

func fatal(msg string, err error) {
	slog.Error(msg, logging.Error(err))
	os.Exit(1)
}
