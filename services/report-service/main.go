package main

import (
	"context"
	"fmt"

	"campus-issue-reporting/pkg/app"
	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/config"
	"campus-issue-reporting/pkg/logger"
	"campus-issue-reporting/pkg/media"
	"campus-issue-reporting/pkg/middleware"
	"campus-issue-reporting/pkg/queue"
	"campus-issue-reporting/pkg/report"
	"campus-issue-reporting/pkg/reporting"
)

const serviceName = "report-service"

func main() {
	app.Execute(app.NewRootCommand(serviceName, "Campus issue report intake, triage and tracking", app.Commands{
		Serve:   serve,
		Migrate: migrate,
	}))
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent(serviceName)

	store, err := app.OpenReportStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("[OK] report store ready", "driver", cfg.Storage.Driver)

	conn, ch, err := queue.ConnectRabbitMQ(cfg.RabbitMQ.URI)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer ch.Close()
	if err := queue.DeclareExchange(ch, cfg.RabbitMQ.Exchange); err != nil {
		return err
	}
	log.Info("[OK] connected to RabbitMQ", "exchange", cfg.RabbitMQ.Exchange)

	storage, err := media.NewStorage(cfg.Minio)
	if err != nil {
		return err
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		// Uploads fail until the bucket exists, but reports without media still work.
		log.Warn("media bucket unavailable", "bucket", cfg.Minio.Bucket, "error", err)
	}

	policy, err := report.NewPolicy()
	if err != nil {
		return err
	}

	svc := reporting.NewService(store, policy, log,
		reporting.WithPublisher(queue.NewPublisher(ch, cfg.RabbitMQ.Exchange)),
		reporting.WithMaxRetries(cfg.Lifecycle.MaxRetries),
	)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	middleware.RegisterMetrics()
	handler := NewHandler(svc, storage, tokens, log)
	health := app.HealthHandler(serviceName, map[string]app.Check{
		"database": store.Ping,
		"rabbitmq": func(context.Context) error {
			if conn.IsClosed() {
				return fmt.Errorf("connection closed")
			}
			return nil
		},
	})

	return app.Run(ctx, serviceName, app.NewServer(cfg.Server.Addr("report"), handler.Routes(health)))
}

func migrate(ctx context.Context, cfg *config.Config) error {
	store, err := app.OpenReportStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.WithComponent(serviceName).Info("[OK] migration completed", "driver", cfg.Storage.Driver)
	return nil
}
