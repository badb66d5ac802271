package config

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // sqlite driver
)

// SQLiteDriverName is the database/sql driver name registered by modernc.org/sqlite.
const SQLiteDriverName = "sqlite"

// SQLiteDSN returns a DSN for a database file with WAL journaling and a busy timeout.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// SQLiteDB opens a *sql.DB on the SQLite database file at path.
//
// SQLite allows one writer at a time, so the pool is limited to a single connection,
// which serializes transactions instead of failing them with SQLITE_BUSY.
func SQLiteDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(SQLiteDriverName, SQLiteDSN(path))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, pingErr
	}

	return db, nil
}
