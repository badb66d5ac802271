package sqlengine_test

import (
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/sqlengine"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/spies"
)

func Test_Constructors_Reject_Nil_Connections(t *testing.T) {
	var pool *pgxpool.Pool
	var db *sql.DB
	var dbx *sqlx.DB

	_, pgxErr := sqlengine.NewProviderFromPGXPool(pool)
	_, replicaErr := sqlengine.NewProviderFromPGXPoolAndReplica(pool, pool)
	_, sqlErr := sqlengine.NewProviderFromSQLDB(db)
	_, sqlxErr := sqlengine.NewProviderFromSQLX(dbx)

	assert.ErrorIs(t, pgxErr, eventstore.ErrNilDatabaseConnection)
	assert.ErrorIs(t, replicaErr, eventstore.ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlErr, eventstore.ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlxErr, eventstore.ErrNilDatabaseConnection)
}

func Test_Options_Are_Validated(t *testing.T) {
	tests := []struct {
		name    string
		option  sqlengine.Option
		wantErr error
	}{
		{name: "empty events table", option: sqlengine.WithEventsTableName(""), wantErr: eventstore.ErrEmptyTableName},
		{name: "empty bookmarks table", option: sqlengine.WithBookmarksTableName(""), wantErr: eventstore.ErrEmptyTableName},
		{name: "unknown dialect", option: sqlengine.WithDialect("mysql"), wantErr: sqlengine.ErrUnsupportedDialect},
		{name: "negative limit", option: sqlengine.WithLimit(-1), wantErr: eventstore.ErrInvalidLimit},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sqlengine.NewProviderFromSQLDB(&sql.DB{}, tc.option)

			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func Test_PGX_Pool_Only_Supports_Postgres(t *testing.T) {
	_, err := sqlengine.NewProviderFromPGXPool(&pgxpool.Pool{}, sqlengine.WithDialect(sqlengine.DialectSQLite))

	assert.ErrorIs(t, err, sqlengine.ErrUnsupportedDialect)
}

func Test_Settings_Reflect_Options(t *testing.T) {
	// setup
	errorObserver := spies.NewErrorObserverSpy()

	// act
	provider, err := sqlengine.NewProviderFromSQLDB(&sql.DB{},
		sqlengine.WithDialect(sqlengine.DialectSQLite),
		sqlengine.WithLimit(250),
		sqlengine.WithOutOfOrderEvents(true),
		sqlengine.WithErrorObserver(errorObserver.Observe),
	)

	// assert
	require.NoError(t, err)
	assert.Equal(t, sqlengine.DialectSQLite, provider.Dialect())
	assert.Equal(t, 250, provider.Settings().Limit)
	assert.True(t, provider.Settings().HandleOutOfOrderEvents)
	assert.NotNil(t, provider.Settings().OnError)
}
