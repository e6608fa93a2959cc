// Package app builds the infrastructure shared by the web and worker
// processes from configuration.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"relay/internal/jobs/dispatcher"
	jobsmemory "relay/internal/jobs/store/memory"
	jobspostgres "relay/internal/jobs/store/postgres"
	"relay/internal/platform/config"
	"relay/internal/platform/postgres"
	"relay/internal/platform/redis"
	principalstore "relay/internal/principal/store"
	principalmemory "relay/internal/principal/store/memory"
	principalpostgres "relay/internal/principal/store/postgres"
	"relay/internal/realtime/bus"
	"relay/internal/realtime/bus/natsbus"
	"relay/internal/realtime/bus/redisbus"
	httptransport "relay/internal/transport/http"
)

// Infra holds process-wide connections. Close releases all of them.
type Infra struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Audit    dispatcher.AuditStore
	Accounts principalstore.AccountStore
	Bus      bus.Bus
	Health   map[string]httptransport.HealthCheck

	closers []func()
}

// Open connects Postgres, Redis and the instance bus. Without DATABASE_URL the
// stores are in-memory, which only suits single-process development.
func Open(ctx context.Context, cfg config.Server, logger *slog.Logger) (*Infra, error) {
	infra := &Infra{Health: make(map[string]httptransport.HealthCheck)}

	pool, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		infra.Pool = pool
		infra.closers = append(infra.closers, pool.Close)
		infra.Health["postgres"] = pool.Ping

		audit := jobspostgres.New(pool)
		accounts := principalpostgres.New(pool)
		if err := audit.Migrate(ctx); err != nil {
			infra.Close()
			return nil, err
		}
		if err := accounts.Migrate(ctx); err != nil {
			infra.Close()
			return nil, err
		}
		infra.Audit = audit
		infra.Accounts = accounts
	} else {
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory audit and account stores")
		infra.Audit = jobsmemory.NewInMemoryStore()
		infra.Accounts = principalmemory.NewInMemoryStore()
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		infra.Close()
		return nil, err
	}
	if rc != nil {
		infra.Redis = rc
		infra.closers = append(infra.closers, func() { _ = rc.Close() })
		infra.Health["redis"] = rc.Health
	}

	switch cfg.Bus.Driver {
	case config.BusDriverRedis:
		if rc == nil {
			infra.Close()
			return nil, errors.New("redis bus selected without REDIS_URL")
		}
		infra.Bus = redisbus.New(rc.Client, logger)
	case config.BusDriverNATS:
		nb, err := natsbus.Connect(cfg.Bus.NATSURL, cfg.App, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Bus = nb
		infra.closers = append(infra.closers, func() { _ = nb.Close() })
		infra.Health["nats"] = nb.Health
	default:
		logger.WarnContext(ctx, "in-memory bus selected, events will not leave this process")
		infra.Bus = bus.NewMemory()
	}
	return infra, nil
}

// Close releases connections in reverse order of opening.
func (i *Infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
	i.closers = nil
}
