package main

import (
	"context"
	"fmt"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/memoryengine"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/mongoengine"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/sqlengine"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/config"
)

// openProvider connects to the configured backend, provisions its schema and returns the Provider
// together with a function releasing the connection.
func openProvider(ctx context.Context, cfg Config, obs *Observability) (eventstore.Provider, func(), error) {
	switch cfg.Backend {
	case BackendSQLite:
		return openSQLite(ctx, cfg, obs)
	case BackendPostgres:
		return openPostgres(ctx, cfg, obs)
	case BackendMongo:
		return openMongo(ctx, cfg, obs)
	default:
		provider, err := memoryengine.NewProvider(memoryOptions(obs)...)
		return provider, func() {}, err
	}
}

func openSQLite(ctx context.Context, cfg Config, obs *Observability) (eventstore.Provider, func(), error) {
	db, err := config.SQLiteDB(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}

	closeDB := func() {
		if closeErr := db.Close(); closeErr != nil {
			obs.Logger.Warn("closing sqlite database failed", "error", closeErr)
		}
	}

	options := append(sqlOptions(obs), sqlengine.WithDialect(sqlengine.DialectSQLite), sqlengine.WithOutOfOrderEvents(false))

	provider, err := sqlengine.NewProviderFromSQLDB(db, options...)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	if err = provider.Migrate(ctx); err != nil {
		closeDB()
		return nil, nil, err
	}

	return provider, closeDB, nil
}

func openPostgres(ctx context.Context, cfg Config, obs *Observability) (eventstore.Provider, func(), error) {
	pool, err := config.PostgresPGXPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}

	provider, err := sqlengine.NewProviderFromPGXPool(pool, append(sqlOptions(obs), sqlengine.WithOutOfOrderEvents(true))...)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	if err = provider.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return provider, pool.Close, nil
}

func openMongo(ctx context.Context, cfg Config, obs *Observability) (eventstore.Provider, func(), error) {
	client, err := config.MongoClient(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}

	disconnect := func() {
		if disconnectErr := client.Disconnect(context.Background()); disconnectErr != nil {
			obs.Logger.Warn("disconnecting from mongodb failed", "error", disconnectErr)
		}
	}

	provider, err := mongoengine.NewProvider(client, cfg.MongoDatabase, mongoOptions(obs)...)
	if err != nil {
		disconnect()
		return nil, nil, err
	}

	if err = provider.Migrate(ctx); err != nil {
		disconnect()
		return nil, nil, fmt.Errorf("creating mongodb indexes: %w", err)
	}

	return provider, disconnect, nil
}

func memoryOptions(obs *Observability) []memoryengine.Option {
	options := []memoryengine.Option{memoryengine.WithMetrics(obs.Metrics)}

	if obs.ContextualLogger != nil {
		options = append(options, memoryengine.WithContextualLogger(obs.ContextualLogger))
	} else {
		options = append(options, memoryengine.WithLogger(obs.Logger))
	}

	if obs.Tracing != nil {
		options = append(options, memoryengine.WithTracing(obs.Tracing))
	}

	return options
}

func sqlOptions(obs *Observability) []sqlengine.Option {
	options := []sqlengine.Option{sqlengine.WithMetrics(obs.Metrics)}

	if obs.ContextualLogger != nil {
		options = append(options, sqlengine.WithContextualLogger(obs.ContextualLogger))
	} else {
		options = append(options, sqlengine.WithLogger(obs.Logger))
	}

	if obs.Tracing != nil {
		options = append(options, sqlengine.WithTracing(obs.Tracing))
	}

	return options
}

func mongoOptions(obs *Observability) []mongoengine.Option {
	options := []mongoengine.Option{mongoengine.WithMetrics(obs.Metrics)}

	if obs.ContextualLogger != nil {
		options = append(options, mongoengine.WithContextualLogger(obs.ContextualLogger))
	} else {
		options = append(options, mongoengine.WithLogger(obs.Logger))
	}

	if obs.Tracing != nil {
		options = append(options, mongoengine.WithTracing(obs.Tracing))
	}

	return options
}
