package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/squadpage/mailroom/pkg/alert"
	"github.com/squadpage/mailroom/pkg/config"
	"github.com/squadpage/mailroom/pkg/mailer"
	"github.com/squadpage/mailroom/pkg/processor"
	"github.com/squadpage/mailroom/pkg/server"
	"github.com/squadpage/mailroom/pkg/store"
	"github.com/squadpage/mailroom/pkg/telemetry"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration from file or environment
	cfg, err := config.LoadFromFile("./cmd/mailroom")
	if err != nil {
		logrus.Fatal("Error loading configuration: ", err)
	}

	// Initialize telemetry (tracing)
	shutdownTelemetry, err := telemetry.Init(cfg.Observability)
	if err != nil {
		logrus.Fatal("Failed to initialize telemetry: ", err)
	}
	defer shutdownTelemetry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the outbox store
	repo, err := store.NewRepository(ctx, cfg.Database)
	if err != nil {
		logrus.Fatal("Failed to initialize outbox store: ", err)
	}

	// Initialize the email provider adapter
	m, err := mailer.NewMailer(&cfg.Provider)
	if err != nil {
		logrus.Fatal("Failed to initialize mailer: ", err)
	}
	defer m.Close()

	notifier := alert.NewNotifier(&cfg.Alerting)
	worker := processor.NewOutboxWorker(repo, m, notifier, &cfg.Worker)

	// Periodic trigger, owned by the process lifecycle: started once,
	// stopped when the signal context is cancelled. The cron and admin
	// HTTP triggers may fire at any time alongside it.
	go func() {
		ticker := time.NewTicker(cfg.Worker.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := worker.RunBatchOnce(ctx); err != nil {
					logrus.WithError(err).Warn("periodic batch run failed")
				}
			}
		}
	}()

	srv := server.NewServer(worker, repo, cfg.Server)
	go func() {
		if err := srv.Run(); err != nil {
			logrus.WithError(err).Fatal("http server exited")
		}
	}()

	logrus.WithField("addr", cfg.Server.ListenAddr).Info("mailroom started")
	<-ctx.Done()
	logrus.Info("mailroom stopped")
}
