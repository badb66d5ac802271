// Package config provides database connection factories for Provider tests and the example.
//
// It creates connections for each supported adapter (pgxpool.Pool, sql.DB, sqlx.DB) on PostgreSQL,
// a sql.DB on SQLite, and a mongo.Client, with pool settings suited for tests.
package config
