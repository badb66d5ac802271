// Package adapters provide database adapter implementations for the relational event store.
//
// The adapters hide the differences between pgxpool.Pool, sql.DB and sqlx.DB behind one
// DBAdapter interface, including transactions, so the Provider builds its queries once
// and runs them on any supported connection type.
package adapters
