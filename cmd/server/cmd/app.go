package cmd

import (
	"context"
	"fmt"

	"github.com/Togather-Foundation/orbit/internal/auth"
	"github.com/Togather-Foundation/orbit/internal/config"
	"github.com/Togather-Foundation/orbit/internal/domain/events"
	"github.com/Togather-Foundation/orbit/internal/domain/users"
	"github.com/Togather-Foundation/orbit/internal/jobs"
	"github.com/Togather-Foundation/orbit/internal/storage/sqlstore"
	"github.com/rs/zerolog"
)

// app is the set of components every command that touches data needs.
type app struct {
	store   *sqlstore.Store
	users   *users.Service
	events  *events.Service
	sweeper *jobs.Sweeper
}

// openApp connects to the configured database and wires the services on top of it. The
// schema must already be migrated.
func openApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	store, err := sqlstore.Open(ctx, cfg.Database.URL, sqlstore.PoolConfig{
		MaxOpenConns: cfg.Database.MaxConnections,
		MaxIdleConns: cfg.Database.MaxIdle,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	eventSvc := events.NewService(store.Events(), logger, events.WithRetention(cfg.Retention.Window))
	return &app{
		store:   store,
		users:   users.NewService(store.Users(), logger),
		events:  eventSvc,
		sweeper: jobs.NewSweeper(eventSvc, logger, cfg.Retention.SweepInterval),
	}, nil
}

func (a *app) sessions(cfg config.Config) (*auth.SessionManager, error) {
	return auth.NewSessionManager(cfg.Session.Secret, cfg.Session.Lifetime, "orbit")
}

func (a *app) Close() error {
	return a.store.Close()
}
