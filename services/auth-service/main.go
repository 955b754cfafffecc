package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"campus-issue-reporting/pkg/app"
	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/config"
	"campus-issue-reporting/pkg/database"
	"campus-issue-reporting/pkg/logger"
	"campus-issue-reporting/pkg/middleware"
	"campus-issue-reporting/pkg/report"
	"campus-issue-reporting/services/auth-service/models"
)

const serviceName = "auth-service"

func main() {
	root := app.NewRootCommand(serviceName, "Accounts and session tokens", app.Commands{
		Serve:   serve,
		Migrate: migrate,
	})
	root.AddCommand(newBootstrapCommand())
	app.Execute(root)
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent(serviceName)

	db, err := database.ConnectPostgres(cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	handler := NewHandler(db, tokens, cfg.Auth.BcryptCost, log)

	middleware.RegisterMetrics()
	health := app.HealthHandler(serviceName, map[string]app.Check{
		"database": sqlDB.PingContext,
	})

	return app.Run(ctx, serviceName, app.NewServer(cfg.Server.Addr("auth"), handler.Routes(health)))
}

func migrate(ctx context.Context, cfg *config.Config) error {
	db, err := database.ConnectPostgres(cfg.Postgres.DSN)
	if err != nil {
		return err
	}

	logger.WithComponent(serviceName).Info("running auto migration")
	if err := db.WithContext(ctx).AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.WithComponent(serviceName).Info("[OK] migration completed")
	return nil
}

// newBootstrapCommand creates the first staff account, which is needed before anyone can
// create staff through the API.
func newBootstrapCommand() *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "bootstrap-staff",
		Short: "Create the initial staff account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			if cfg == nil {
				return errors.New("config not loaded")
			}

			db, err := database.ConnectPostgres(cfg.Postgres.DSN)
			if err != nil {
				return err
			}

			h := NewHandler(db, nil, cfg.Auth.BcryptCost, logger.WithComponent(serviceName))
			user, err := h.createUser(cmd.Context(), email, password, name, string(report.RoleStaff), "")
			if err != nil {
				return err
			}
			logger.WithComponent(serviceName).Info("[OK] staff account created", "user_id", user.ID, "email", user.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Staff email")
	cmd.Flags().StringVar(&password, "password", "", "Staff password")
	cmd.Flags().StringVar(&name, "name", "Campus Staff", "Display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
