// Command mailroom is a sidecar that watches a Postgres jobs queue for
// account-activation and password-recovery tokens, signs each with
// HMAC-SHA256, and writes them to stdout as base64 CSV rows.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tetsuo/mailroom/internal/config"
	"github.com/tetsuo/mailroom/internal/eventloop"
	"github.com/tetsuo/mailroom/internal/logger"
	"github.com/tetsuo/mailroom/internal/output"
	"github.com/tetsuo/mailroom/internal/queue"
	"github.com/tetsuo/mailroom/internal/signer"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, warnings, err := config.Load(os.LookupEnv)

	logLevel := "info"
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		logLevel = v
	}
	log := logger.New(logLevel)

	if err != nil {
		log.Error("failed to load configuration", "error", err)
		return 1
	}
	for _, w := range warnings {
		log.Warn("configuration warning", "var", w.Var, "message", w.Message)
	}

	log.Info("starting mailroom",
		"version", Version,
		"commit", Commit,
		"database_url", queue.MaskDatabaseURL(cfg.DatabaseURL),
		"queue", cfg.DBQueueName,
		"channel", cfg.DBChannelName,
		"batch_limit", cfg.BatchLimit,
		"batch_timeout_ms", cfg.BatchTimeoutMS,
		"healthcheck_interval_ms", cfg.HealthcheckIntervalMS,
	)

	sig := signer.New(cfg.SigningKey)
	defer sig.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connect := func(ctx context.Context) (eventloop.StoreDriver, error) {
		return queue.Open(ctx, queue.Config{
			DatabaseURL: cfg.DatabaseURL,
			ChannelName: cfg.DBChannelName,
			QueueName:   cfg.DBQueueName,
		})
	}

	loopCfg := eventloop.Config{
		QueueName:             cfg.DBQueueName,
		BatchLimit:            cfg.BatchLimit,
		BatchTimeoutMS:        cfg.BatchTimeoutMS,
		HealthcheckIntervalMS: cfg.HealthcheckIntervalMS,
	}

	loop := eventloop.New(loopCfg, connect, sig, output.New(os.Stdout), log)

	if err := loop.Run(ctx); err != nil {
		log.Error("mailroom exiting due to fatal error", "error", err)
		return 1
	}

	log.Info("mailroom shut down cleanly")
	return 0
}
