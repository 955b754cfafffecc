package app

import (
	"context"
	"fmt"

	"campus-issue-reporting/pkg/config"
	"campus-issue-reporting/pkg/database"
	"campus-issue-reporting/pkg/report"
	"campus-issue-reporting/pkg/store/mongostore"
	"campus-issue-reporting/pkg/store/sqlstore"
)

// ReportStore is the configured report backend together with its lifecycle hooks.
type ReportStore struct {
	report.Store
	Migrate func(ctx context.Context) error
	Ping    Check
	Close   func()
}

func OpenReportStore(ctx context.Context, cfg *config.Config) (*ReportStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := database.ConnectPostgres(cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get postgres pool: %w", err)
		}
		s := sqlstore.New(db)
		return &ReportStore{
			Store:   s,
			Migrate: s.AutoMigrate,
			Ping:    sqlDB.PingContext,
			Close:   func() { _ = sqlDB.Close() },
		}, nil

	case config.DriverMongo:
		db, err := database.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		s := mongostore.New(db)
		return &ReportStore{
			Store:   s,
			Migrate: s.EnsureIndexes,
			Ping: func(ctx context.Context) error {
				return db.Client().Ping(ctx, nil)
			},
			Close: func() { _ = db.Client().Disconnect(context.Background()) },
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
