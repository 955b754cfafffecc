package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"campus-issue-reporting/pkg/app"
	"campus-issue-reporting/pkg/config"
	"campus-issue-reporting/pkg/logger"
	"campus-issue-reporting/pkg/middleware"
	"campus-issue-reporting/pkg/queue"
	"campus-issue-reporting/pkg/report"
)

const serviceName = "dispatcher-service"

func main() {
	app.Execute(app.NewRootCommand(serviceName, "Routes new reports to their suggested department", app.Commands{
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

	middleware.RegisterMetrics()
	router := NewRouter(prometheus.DefaultRegisterer, log)

	mux := http.NewServeMux()
	mux.Handle("GET /health", app.HealthHandler(serviceName, map[string]app.Check{
		"rabbitmq": func(context.Context) error {
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
	}))
	mux.Handle("GET /metrics", middleware.GetMetricsHandler())
	srv := app.NewServer(cfg.Server.Addr("dispatcher"), middleware.Chain(mux,
		middleware.TraceMiddleware,
		middleware.LoggerMiddleware,
	))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := queue.ConsumeEvents(ctx, ch, queue.ConsumerConfig{
			Exchange:    cfg.RabbitMQ.Exchange,
			Queue:       "dispatcher",
			RoutingKeys: []string{string(report.EventCreated)},
			Prefetch:    10,
		}, log, router.Route)
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
