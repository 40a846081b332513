package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/shr/shr/internal/config"
	"github.com/shr/shr/internal/domain/encounter"
	"github.com/shr/shr/internal/domain/patient"
	"github.com/shr/shr/internal/platform/db"
	"github.com/shr/shr/internal/platform/events"
	"github.com/shr/shr/internal/platform/provider"
	"github.com/shr/shr/internal/platform/refdata"
	"github.com/shr/shr/internal/platform/terminology"
	"github.com/shr/shr/migrations"
)

// storage is the database behind the repositories, either a pgx pool or an
// embedded sqlite file.
type storage struct {
	pool       *pgxpool.Pool
	sqlite     *sql.DB
	encounters encounter.Repository
	patients   patient.Repository
	migrator   *db.Migrator
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &storage{
			sqlite:     conn,
			encounters: encounter.NewSQLiteRepo(conn),
			patients:   patient.NewSQLiteRepo(conn),
			migrator:   db.NewSQLiteMigrator(conn, migrations.SQLite()),
		}, nil
	default:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:             cfg.DatabaseURL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			ApplicationName: "shr-server",
		})
		if err != nil {
			return nil, err
		}
		return &storage{
			pool:       pool,
			encounters: encounter.NewRepo(pool),
			patients:   patient.NewRepo(pool),
			migrator:   db.NewMigrator(pool, migrations.Postgres()),
		}, nil
	}
}

func (s *storage) check() db.Check {
	if s.pool != nil {
		return db.PoolCheck(s.pool)
	}
	return db.Check{Name: "database", Ping: s.sqlite.PingContext}
}

func (s *storage) close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlite != nil {
		s.sqlite.Close()
	}
}

// refdataDeps is where encounter types are read from: redis when configured,
// else the static ENCOUNTER_TYPES list.
type refdataDeps struct {
	source    refdata.Source
	client    *redis.Client
	refresher *refdata.Refresher
}

func openRefdata(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*refdataDeps, error) {
	if cfg.RedisURL == "" {
		return &refdataDeps{source: refdata.StaticSource(cfg.EncounterTypesFallback)}, nil
	}
	client, err := refdata.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	store := refdata.NewRedisStore(client, cfg.EncounterTypesKey)
	deps := &refdataDeps{source: store, client: client}
	if cfg.EncounterTypesURL != "" {
		deps.refresher = refdata.NewRefresher(store, cfg.EncounterTypesURL, logger)
	}
	return deps, nil
}

func (r *refdataDeps) close() {
	if r.client != nil {
		r.client.Close()
	}
}

type app struct {
	storage   *storage
	refdata   *refdataDeps
	checker   *terminology.Checker
	providers *provider.Client
	registry  *patient.Registry
	publisher events.Publisher
	broker    *events.EmbeddedBroker
	jetstream *events.JetStreamPublisher
}

func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{publisher: events.Noop{}}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	var err error
	if a.storage, err = openStorage(ctx, cfg); err != nil {
		return nil, err
	}
	if a.refdata, err = openRefdata(ctx, cfg, logger); err != nil {
		return nil, err
	}

	aliases, err := terminology.LoadAliases(cfg.TRAliasFile)
	if err != nil {
		return nil, err
	}
	client := terminology.NewClient(terminology.ClientConfig{
		ClientID:          cfg.TRClientID,
		AuthToken:         cfg.TRAuthToken,
		RequestsPerSecond: cfg.TRRateLimitRPS,
		BurstSize:         int(cfg.TRRateLimitRPS) + 1,
	})
	a.checker = terminology.NewChecker(terminology.NewRouter(aliases), client, cfg.TRTimeout)

	if cfg.ProviderVerify {
		a.providers = provider.NewClient(provider.ClientConfig{
			ClientID:          cfg.ProviderClientID,
			AuthToken:         cfg.ProviderAuthToken,
			RequestsPerSecond: cfg.ProviderRateLimitRPS,
			BurstSize:         int(cfg.ProviderRateLimitRPS) + 1,
		})
	} else {
		logger.Warn().Msg("PROVIDER_VERIFY is off: provider references are only checked against PROVIDER_REFERENCE_PATH")
	}

	var remote patient.Remote
	if cfg.MCIBaseURL != "" {
		remote = patient.NewMCIClient(patient.MCIConfig{
			BaseURL:    cfg.MCIBaseURL,
			ClientID:   cfg.MCIClientID,
			AuthToken:  cfg.MCIAuthToken,
			HTTPClient: &http.Client{Timeout: cfg.MCITimeout},
		})
	} else {
		logger.Warn().Msg("MCI_BASE_URL not set: only locally known patients are accepted")
	}
	a.registry = patient.NewRegistry(a.storage.patients, remote, logger)

	switch cfg.NATSURL {
	case "":
	case config.NATSEmbedded:
		if a.broker, err = events.StartEmbedded(ctx, filepath.Join(cfg.DataDir, "events"), logger); err != nil {
			return nil, err
		}
		a.jetstream = a.broker.Publisher
		a.publisher = a.jetstream
	default:
		if a.jetstream, err = events.Connect(ctx, cfg.NATSURL, logger); err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
		a.publisher = a.jetstream
	}

	ok = true
	return a, nil
}

func (a *app) healthChecks() []db.Check {
	checks := []db.Check{a.storage.check()}
	if a.refdata.client != nil {
		client := a.refdata.client
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}
	if a.jetstream != nil {
		checks = append(checks, db.Check{Name: "nats", Ping: a.jetstream.Ping})
	}
	return checks
}

func (a *app) close() {
	if a.broker != nil {
		a.broker.Shutdown()
	} else if a.jetstream != nil {
		a.jetstream.Close()
	}
	if a.refdata != nil {
		a.refdata.close()
	}
	if a.storage != nil {
		a.storage.close()
	}
}
