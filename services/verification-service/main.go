package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"campus-issue-reporting/pkg/app"
	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/config"
	"campus-issue-reporting/pkg/logger"
	"campus-issue-reporting/pkg/middleware"
	"campus-issue-reporting/pkg/security"
	"campus-issue-reporting/pkg/verification"
)

const serviceName = "verification-service"

func main() {
	app.Execute(app.NewRootCommand(serviceName, "One-time code verification of reporter contacts", app.Commands{
		Serve: serve,
	}))
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent(serviceName)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("[OK] connected to Redis", "addr", cfg.Redis.Addr)

	cipher, err := security.NewCipher(cfg.Verification.EncryptionKey)
	if err != nil {
		return err
	}

	senders := map[verification.Channel]verification.Sender{
		verification.ChannelPhone: verification.NewLogSender(log, verification.ChannelPhone),
	}
	if cfg.Email.Enabled() {
		senders[verification.ChannelEmail] = verification.NewEmailSender(cfg.Email)
	} else {
		log.Warn("SMTP not configured, email codes will only be logged")
		senders[verification.ChannelEmail] = verification.NewLogSender(log, verification.ChannelEmail)
	}

	store := verification.NewOTPStore(client, verification.OTPOptions{
		TTL:         cfg.Verification.OTPTTL,
		MaxAttempts: cfg.Verification.MaxAttempts,
		Lockout:     cfg.Verification.Lockout,
		SendWindow:  cfg.Verification.SendWindow,
		MaxSends:    cfg.Verification.MaxSends,
	})
	svc := verification.NewService(store, senders, cipher,
		auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		cfg.Verification.TokenTTL, log)

	middleware.RegisterMetrics()
	health := app.HealthHandler(serviceName, map[string]app.Check{
		"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
	})

	return app.Run(ctx, serviceName, app.NewServer(cfg.Server.Addr("verification"), NewHandler(svc, log).Routes(health)))
}
