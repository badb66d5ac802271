// Package sqlengine provides a relational implementation of eventstore.Provider.
//
// Queries are built with goqu for the postgres and sqlite3 dialects and run through one of
// three adapters: pgxpool.Pool, sql.DB or sqlx.DB. Append inserts the whole batch with one
// multi-row INSERT inside a transaction; the unique constraint on (stream, aggregate_id, version)
// rejects a conflicting batch, which is reported as eventstore.ErrVersionConflict.
//
// Usage examples:
//
//	// PostgreSQL with pgx
//	pool, _ := pgxpool.New(ctx, dsn)
//	provider, _ := sqlengine.NewProviderFromPGXPool(pool, sqlengine.WithLimit(500))
//
//	// SQLite with database/sql
//	db, _ := sql.Open("sqlite", "file:events.db")
//	provider, _ := sqlengine.NewProviderFromSQLDB(db, sqlengine.WithDialect(sqlengine.DialectSQLite))
//	_ = provider.Migrate(ctx)
//
//	events, _ := provider.GetEventsFrom(ctx, []string{"orders"}, position, 0)
package sqlengine
