// Package main implements the Hacker News digest service: a daily digest
// builder and mailer with double-opt-in subscriptions, delivered through
// Amazon SES and backed by a single DynamoDB table.
package main

import (
	"context"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"hackerdigest/bounce"
	"hackerdigest/builder"
	"hackerdigest/captcha"
	"hackerdigest/config"
	"hackerdigest/fetcher"
	"hackerdigest/mailer"
	"hackerdigest/server"
	"hackerdigest/storage"
	"hackerdigest/subscribe"
)

func main() {
	ctx := context.Background()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	var store storage.Storage
	var provider mailer.Provider
	var verifier captcha.Verifier

	if cfg.LocalMode {
		logger.Info("Running in local development mode", "base_url", cfg.BaseURL)
		store = storage.NewMemoryStore()
		provider = mailer.NewMockProvider(logger)
		verifier = captcha.Fixed(true)
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("Failed to load AWS configuration", "error", err)
			os.Exit(1)
		}
		store = storage.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.TableName, logger)
		provider = mailer.NewSESProvider(sesv2.NewFromConfig(awsCfg),
			cfg.EmailFrom, cfg.EmailReplyTo, cfg.ConfigurationSet, logger)
		verifier = captcha.NewTurnstile(cfg.TurnstileSecret, logger)
		logger.Info("Connected to AWS", "table", cfg.TableName, "from", cfg.EmailFrom)
	}

	sender := mailer.NewSender(provider, logger)
	subscriptions := subscribe.NewService(store, sender, cfg.BaseURL, logger)
	events := bounce.NewHandler(store, logger)

	hn := fetcher.NewClient(logger)
	snapshotter := builder.NewSnapshotter(hn, store, cfg.Strategies, logger)
	runner := builder.NewRunner(snapshotter, builder.NewBuilder(store, logger),
		store, sender, cfg.Strategies, cfg.BaseURL, logger)

	srv := server.New(&server.Config{
		Subscriptions: subscriptions,
		Events:        events,
		Runner:        runner,
		Captcha:       verifier,
		Strategies:    cfg.Strategies,
		Logger:        logger,
	})

	if err := srv.ListenAndServe(cfg.Port); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
