package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"campus-issue-reporting/pkg/app"
	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/config"
	"campus-issue-reporting/pkg/logger"
	"campus-issue-reporting/pkg/middleware"
	"campus-issue-reporting/pkg/queue"
	"campus-issue-reporting/pkg/report"
)

const serviceName = "notification-service"

func main() {
	app.Execute(app.NewRootCommand(serviceName, "Live report notifications over server-sent events", app.Commands{
		Serve: serve,
	}))
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent(serviceName)

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

	hub := NewHub(log)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	middleware.RegisterMetrics()

	srv := app.NewServer(cfg.Server.Addr("notification"), NewHandler(hub, tokens, log).Routes())
	// Streams stay open far longer than any write deadline.
	srv.WriteTimeout = 0

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		err := queue.ConsumeEvents(ctx, ch, queue.ConsumerConfig{
			Exchange: cfg.RabbitMQ.Exchange,
			Queue:    "notifications",
			RoutingKeys: []string{
				string(report.EventCreated),
				string(report.EventStatusChanged),
				string(report.EventAssigned),
			},
			Prefetch: 20,
		}, log, hub.Publish)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return app.Run(ctx, serviceName, srv)
	})

	return g.Wait()
}
