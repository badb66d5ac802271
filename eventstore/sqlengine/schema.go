package sqlengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/internal/instrument"
)

const (
	logActionMigrate    = "migrate"
	logMsgSchemaMigrate = "schema migrated"
	logMsgMigrateFailed = "schema migration failed"
)

// Migrate creates the events and bookmarks tables and their indexes if they do not exist yet.
func (p *Provider) Migrate(ctx context.Context) error {
	start := time.Now()

	for _, statement := range p.schemaStatements() {
		queryStart := time.Now()
		_, execErr := p.db.Exec(ctx, statement)
		p.observer.LogQuery(ctx, logActionMigrate, statement, time.Since(queryStart))

		if execErr != nil {
			p.observer.LogError(ctx, logMsgMigrateFailed, execErr)
			return errors.Join(eventstore.ErrMigrationFailed, execErr)
		}
	}

	p.observer.LogOperation(ctx, logMsgSchemaMigrate,
		logAttrEventsTable, p.eventsTable,
		logAttrBookmarksTable, p.bookmarksTable,
		instrument.AttrDurationMS, instrument.ToMilliseconds(time.Since(start)))

	return nil
}

func (p *Provider) schemaStatements() []string {
	positionColumn := "BIGSERIAL PRIMARY KEY"
	timestampType := "TIMESTAMPTZ"
	jsonType := "JSONB"

	if p.dialectName == DialectSQLite {
		positionColumn = "INTEGER PRIMARY KEY AUTOINCREMENT"
		timestampType = "TIMESTAMP"
		jsonType = "TEXT"
	}

	events := quoteIdent(p.eventsTable)

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s %s,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL,
	%s BIGINT NOT NULL,
	%s %s NOT NULL,
	%s TEXT NOT NULL,
	%s %s NOT NULL,
	%s %s NOT NULL,
	%s BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (%s, %s, %s)
)`,
			events,
			quoteIdent(colPosition), positionColumn,
			quoteIdent(colStream),
			quoteIdent(colAggregateID),
			quoteIdent(colVersion),
			quoteIdent(colTimestamp), timestampType,
			quoteIdent(colEventType),
			quoteIdent(colEvent), jsonType,
			quoteIdent(colMetadata), jsonType,
			quoteIdent(colProcessed),
			quoteIdent(colStream), quoteIdent(colAggregateID), quoteIdent(colVersion),
		),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s, %s)`,
			quoteIdent(p.eventsTable+"_stream_position_idx"), events,
			quoteIdent(colStream), quoteIdent(colPosition),
		),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s) WHERE NOT %s`,
			quoteIdent(p.eventsTable+"_unprocessed_idx"), events,
			quoteIdent(colStream), quoteIdent(colPosition), quoteIdent(colProcessed),
		),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s TEXT PRIMARY KEY,
	%s BIGINT NOT NULL
)`,
			quoteIdent(p.bookmarksTable),
			quoteIdent(colBookmark),
			quoteIdent(colPosition),
		),
	}
}

// quoteIdent quotes an identifier with double quotes, which both PostgreSQL and SQLite accept.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
