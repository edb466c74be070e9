package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/api"
	"github.com/MikeSquared-Agency/verdict/internal/config"
	"github.com/MikeSquared-Agency/verdict/internal/hermes"
	"github.com/MikeSquared-Agency/verdict/internal/metrics"
	"github.com/MikeSquared-Agency/verdict/internal/notify"
	"github.com/MikeSquared-Agency/verdict/internal/slack"
	"github.com/MikeSquared-Agency/verdict/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and bus listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := setupLogging(cfg.LogLevel)
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("verdict starting", "port", cfg.Port, "provider", cfg.Provider)

	provider, closeProvider, err := newProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("classifier provider: %w", err)
	}
	defer closeProvider()
	logger.Info("classifier ready", "provider", provider.Name())

	m := metrics.NewPipelineMetrics(nil)

	// History: Postgres when configured, else Redis, else none.
	var history store.History
	switch {
	case cfg.DatabaseURL != "":
		if cfg.AutoMigrate {
			version, err := store.Migrate(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			logger.Info("migrations applied", "version", version)
		}
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		history = db
		logger.Info("database connected")
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		defer rdb.Close()
		history = store.NewRedisHistory(rdb, cfg.HistoryLimit)
		logger.Info("redis history ready", "addr", cfg.RedisAddr, "limit", cfg.HistoryLimit)
	default:
		logger.Warn("no DATABASE_URL or REDIS_ADDR, classification history disabled")
	}

	var notifiers []analyzer.Notifier

	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return err
		}
		defer hermesClient.Close()
		notifiers = append(notifiers, hermes.NewNotifier(hermesClient, logger))
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	if cfg.SlackEnabled() {
		poster := slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		notifiers = append(notifiers, poster)
		logger.Info("slack poster ready", "channel", cfg.SlackChannel)

		if hermesClient != nil {
			reviews := slack.NewReviewHandler(poster, hermesClient, logger)
			err := hermesClient.Subscribe(cfg.ReactionSubject, func(subject string, data []byte) {
				if err := reviews.Handle(ctx, data); err != nil {
					logger.Warn("failed to handle reaction", "subject", subject, "error", err)
				}
			})
			if err != nil {
				return err
			}
		}
	} else {
		logger.Warn("slack not configured, escalations will not be posted")
	}

	var historyWriter analyzer.HistoryWriter
	if history != nil {
		historyWriter = history
	}
	composer := analyzer.NewComposer(historyWriter, notify.Combine(notifiers...), logger, m)
	a := analyzer.New(provider, logger, analyzer.WithMetrics(m), analyzer.WithComposer(composer))

	if hermesClient != nil {
		handler := hermes.ClassifyHandler(a, cfg.ClassifyTimeout, logger)
		if err := hermesClient.Serve(hermes.SubjectClassifyRequest, "verdict", cfg.NatsMaxConcurrent, handler); err != nil {
			return err
		}
		if err := hermesClient.Publish("swarm.agent.verdict.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"provider":  provider.Name(),
		}); err != nil {
			logger.Warn("failed to publish registration", "error", err)
		}
	}

	opts := api.Options{
		Classifier:      a,
		Provider:        provider.Name(),
		JWTSecret:       cfg.JWTSecret,
		ClassifyTimeout: cfg.ClassifyTimeout,
		Logger:          logger,
	}
	if history != nil {
		opts.History = history
	}
	if cfg.JWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET not set, all requests are anonymous")
	}

	srv := api.NewServer(cfg.Port, opts)
	logger.Info("verdict ready", "port", cfg.Port)
	err = srv.Start(ctx)
	if hermesClient != nil {
		hermesClient.StopServing()
	}
	composer.Wait()
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("verdict stopped")
	return nil
}
