package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/sqlengine/internal/adapters"
	"github.com/AntonStoeckl/catchup-eventstore-go/internal/instrument"
)

const (
	// DialectPostgres selects PostgreSQL, the default.
	DialectPostgres = "postgres"

	// DialectSQLite selects SQLite, e.g., with the modernc.org/sqlite driver.
	DialectSQLite = "sqlite3"

	defaultEventsTableName    = "events"
	defaultBookmarksTableName = "bookmarks"

	component = "eventstore"

	operationGetEventsFor    = "get_events_for"
	operationGetLastEventFor = "get_last_event_for"
	operationGetEventsFrom   = "get_events_from"
	operationAppend          = "append"
	operationMarkEvent       = "mark_event"
	operationGetPosition     = "get_position"
	operationSetPosition     = "set_position"

	errorTypeValidation    = "validation_failed"
	errorTypeBuildQuery    = "build_query_failed"
	errorTypeDatabaseQuery = "database_query_failed"
	errorTypeDatabaseExec  = "database_exec_failed"
	errorTypeRowScan       = "row_scan_failed"
	errorTypeBuildEvent    = "build_storable_event_failed"
	errorTypeTransaction   = "transaction_failed"

	logActionQuery    = "query"
	logActionAppend   = "append"
	logActionMark     = "mark"
	logActionBookmark = "bookmark"

	logMsgBuildQueryFailed         = "failed to build query"
	logMsgDBQueryFailed            = "database query execution failed"
	logMsgDBExecFailed             = "database execution failed"
	logMsgCloseRowsFailed          = "failed to close database rows"
	logMsgScanRowFailed            = "failed to scan database row"
	logMsgBuildStorableEventFailed = "failed to build storable event from database row"
	logMsgRollbackFailed           = "failed to roll back transaction"
	logMsgEventsAppended           = "events appended"
	logMsgConcurrencyConflict      = "concurrency conflict detected"
	logMsgPositionSet              = "bookmark position set"
	logMsgEventMarked              = "event marked as processed"

	logAttrEventsTable    = "events_table"
	logAttrBookmarksTable = "bookmarks_table"
	logAttrEventType      = "event_type"
)

// Provider is an eventstore.Provider on a relational database.
type Provider struct {
	db             adapters.DBAdapter
	dialect        goqu.DialectWrapper
	dialectName    string
	eventsTable    string
	bookmarksTable string
	settings       eventstore.Settings
	now            func() time.Time
	observer       *instrument.Observer
}

// NewProviderFromPGXPool creates a new Provider using a pgx Pool with optional configuration.
func NewProviderFromPGXPool(db *pgxpool.Pool, options ...Option) (*Provider, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewPGXAdapter(db), true, options...)
}

// NewProviderFromPGXPoolAndReplica creates a new Provider using a primary pgx Pool and a replica pool.
// Reads run on the replica if their context carries eventstore.WithEventualConsistency,
// everything else runs on the primary.
func NewProviderFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Provider, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	if replica == nil {
		return NewProviderFromPGXPool(db, options...)
	}

	return newProvider(adapters.NewPGXAdapterWithReplica(db, replica), true, options...)
}

// NewProviderFromSQLDB creates a new Provider using a sql.DB with optional configuration.
func NewProviderFromSQLDB(db *sql.DB, options ...Option) (*Provider, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewSQLAdapter(db), false, options...)
}

// NewProviderFromSQLX creates a new Provider using a sqlx.DB with optional configuration.
func NewProviderFromSQLX(db *sqlx.DB, options ...Option) (*Provider, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newProvider(adapters.NewSQLXAdapter(db), false, options...)
}

func newProvider(db adapters.DBAdapter, postgresOnly bool, options ...Option) (*Provider, error) {
	p := &Provider{
		db:             db,
		dialectName:    DialectPostgres,
		eventsTable:    defaultEventsTableName,
		bookmarksTable: defaultBookmarksTableName,
		now:            time.Now,
		observer:       instrument.New(component),
	}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	if postgresOnly && p.dialectName != DialectPostgres {
		return nil, ErrUnsupportedDialect
	}

	p.dialect = goqu.Dialect(p.dialectName)

	return p, nil
}

// Settings exposes the configuration the Provider was constructed with.
func (p *Provider) Settings() eventstore.Settings {
	return p.settings
}

// Dialect returns the configured SQL dialect.
func (p *Provider) Dialect() string {
	return p.dialectName
}

// GetEventsFor returns the history of one aggregate in ascending version order.
//
// With AfterPosition only events behind that position are returned, plus unprocessed ones
// if out-of-order tolerance is enabled.
func (p *Provider) GetEventsFor(
	ctx context.Context,
	stream string,
	aggregateID string,
	opts ...eventstore.ReadOption,
) (eventstore.StoredEvents, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	op, ctx := p.observer.Start(ctx, operationGetEventsFor, map[string]string{
		instrument.AttrStream:      stream,
		instrument.AttrAggregateID: aggregateID,
	})

	sqlQuery, args, buildErr := p.buildGetEventsForQuery(stream, aggregateID, eventstore.BuildReadOptions(opts...))
	if buildErr != nil {
		return nil, p.buildFailed(ctx, op, buildErr)
	}

	events, errorType, err := p.queryEvents(ctx, p.db, sqlQuery, args)
	if err != nil {
		op.Failure(errorType)
		return nil, err
	}

	op.Success(len(events))

	return events, nil
}

// GetLastEventFor returns the event with the highest position in the given streams,
// for aggregateID, or for any aggregate if aggregateID is empty.
func (p *Provider) GetLastEventFor(
	ctx context.Context,
	streams []string,
	aggregateID string,
) (eventstore.StoredEvent, bool, error) {

	if err := ctx.Err(); err != nil {
		return eventstore.StoredEvent{}, false, err
	}

	if err := eventstore.ValidateStreams(streams); err != nil {
		return eventstore.StoredEvent{}, false, err
	}

	op, ctx := p.observer.Start(ctx, operationGetLastEventFor, map[string]string{
		instrument.AttrAggregateID: aggregateID,
	})

	sqlQuery, args, buildErr := p.buildGetLastEventForQuery(streams, aggregateID)
	if buildErr != nil {
		return eventstore.StoredEvent{}, false, p.buildFailed(ctx, op, buildErr)
	}

	events, errorType, err := p.queryEvents(ctx, p.db, sqlQuery, args)
	if err != nil {
		op.Failure(errorType)
		return eventstore.StoredEvent{}, false, err
	}

	op.Success(len(events))

	if len(events) == 0 {
		return eventstore.StoredEvent{}, false, nil
	}

	return events[0], true, nil
}

// GetEventsFrom returns at most limit events of the given streams after position, in ascending position order.
// A limit of zero falls back to the configured default limit.
func (p *Provider) GetEventsFrom(
	ctx context.Context,
	streams []string,
	position eventstore.Position,
	limit int,
) (eventstore.StoredEvents, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := eventstore.ValidateStreams(streams); err != nil {
		return nil, err
	}

	op, ctx := p.observer.Start(ctx, operationGetEventsFrom, nil)

	sqlQuery, args, buildErr := p.buildGetEventsFromQuery(streams, position, p.settings.EffectiveLimit(limit))
	if buildErr != nil {
		return nil, p.buildFailed(ctx, op, buildErr)
	}

	events, errorType, err := p.queryEvents(ctx, p.db, sqlQuery, args)
	if err != nil {
		op.Failure(errorType)
		return nil, err
	}

	op.Success(len(events))

	return events, nil
}

// MarkEvent flags the event at position as processed, so out-of-order reads no longer return it
// once the cursor has passed it.
func (p *Provider) MarkEvent(
	ctx context.Context,
	streams []string,
	aggregateID string,
	position eventstore.Position,
) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := eventstore.ValidateStreams(streams); err != nil {
		return err
	}

	op, ctx := p.observer.Start(ctx, operationMarkEvent, map[string]string{
		instrument.AttrAggregateID: aggregateID,
	})

	sqlQuery, args, buildErr := p.buildMarkEventQuery(streams, aggregateID, position)
	if buildErr != nil {
		return p.buildFailed(ctx, op, buildErr)
	}

	if _, err := p.exec(ctx, p.db, logActionMark, sqlQuery, args); err != nil {
		op.Failure(errorTypeDatabaseExec)
		return errors.Join(eventstore.ErrMarkingEventFailed, err)
	}

	op.Success(1)
	p.observer.LogDebug(ctx, logMsgEventMarked,
		instrument.AttrAggregateID, aggregateID,
		instrument.AttrPosition, int64(position))

	return nil
}

// GetPosition returns the stored position of a bookmark, or eventstore.BeginningOfTime.
func (p *Provider) GetPosition(ctx context.Context, bookmark string) (eventstore.Position, error) {
	if err := ctx.Err(); err != nil {
		return eventstore.BeginningOfTime, err
	}

	if bookmark == "" {
		return eventstore.BeginningOfTime, eventstore.ErrEmptyBookmark
	}

	op, ctx := p.observer.Start(ctx, operationGetPosition, map[string]string{
		instrument.AttrBookmark: bookmark,
	})

	sqlQuery, args, buildErr := p.buildGetPositionQuery(bookmark)
	if buildErr != nil {
		return eventstore.BeginningOfTime, p.buildFailed(ctx, op, buildErr)
	}

	rows, queryErr := p.query(ctx, p.db, logActionBookmark, sqlQuery, args)
	if queryErr != nil {
		op.Failure(errorTypeDatabaseQuery)
		return eventstore.BeginningOfTime, errors.Join(eventstore.ErrBookmarkFailed, queryErr)
	}
	defer p.closeRows(ctx, rows)

	position := eventstore.BeginningOfTime
	if rows.Next() {
		var value int64
		if scanErr := rows.Scan(&value); scanErr != nil {
			op.Failure(errorTypeRowScan)
			p.observer.LogError(ctx, logMsgScanRowFailed, scanErr)

			return eventstore.BeginningOfTime, errors.Join(eventstore.ErrScanningDBRowFailed, scanErr)
		}

		position = eventstore.Position(value)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		op.Failure(errorTypeDatabaseQuery)
		return eventstore.BeginningOfTime, errors.Join(eventstore.ErrBookmarkFailed, rowsErr)
	}

	op.Success(0)

	return position, nil
}

// SetPosition creates or updates a bookmark.
func (p *Provider) SetPosition(ctx context.Context, bookmark string, position eventstore.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if bookmark == "" {
		return eventstore.ErrEmptyBookmark
	}

	op, ctx := p.observer.Start(ctx, operationSetPosition, map[string]string{
		instrument.AttrBookmark: bookmark,
	})

	updated, updateErr := p.updatePosition(ctx, bookmark, position)
	if updateErr != nil {
		op.Failure(errorTypeDatabaseExec)
		return errors.Join(eventstore.ErrBookmarkFailed, updateErr)
	}

	if !updated {
		if insertErr := p.insertPosition(ctx, bookmark, position); insertErr != nil {
			op.Failure(errorTypeDatabaseExec)
			return errors.Join(eventstore.ErrBookmarkFailed, insertErr)
		}
	}

	op.Success(0)
	p.observer.LogOperation(ctx, logMsgPositionSet, instrument.AttrBookmark, bookmark, instrument.AttrPosition, int64(position))

	return nil
}

func (p *Provider) updatePosition(ctx context.Context, bookmark string, position eventstore.Position) (bool, error) {
	sqlQuery, args, buildErr := p.buildUpdatePositionQuery(bookmark, position)
	if buildErr != nil {
		return false, buildErr
	}

	result, execErr := p.exec(ctx, p.db, logActionBookmark, sqlQuery, args)
	if execErr != nil {
		return false, execErr
	}

	affected, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return false, affectedErr
	}

	return affected > 0, nil
}

// insertPosition creates the bookmark row; if a concurrent writer created it first, it updates that row instead.
func (p *Provider) insertPosition(ctx context.Context, bookmark string, position eventstore.Position) error {
	sqlQuery, args, buildErr := p.buildInsertPositionQuery(bookmark, position)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := p.exec(ctx, p.db, logActionBookmark, sqlQuery, args)
	if execErr == nil {
		return nil
	}

	if !isUniqueViolation(execErr) {
		return execErr
	}

	_, err := p.updatePosition(ctx, bookmark, position)

	return err
}

// Append atomically inserts events with the versions expectedNextVersion, expectedNextVersion+1, ...
//
// The unique key on (stream, aggregate_id, version) rejects the whole batch if any of those versions exists,
// in that case eventstore.ErrVersionConflict is returned.
func (p *Provider) Append(
	ctx context.Context,
	stream string,
	aggregateID string,
	expectedNextVersion eventstore.Version,
	events ...eventstore.StorableEvent,
) (eventstore.StoredEvents, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	op, ctx := p.observer.Start(ctx, operationAppend, map[string]string{
		instrument.AttrStream:      stream,
		instrument.AttrAggregateID: aggregateID,
	})

	if err := eventstore.ValidateAppend(stream, aggregateID, expectedNextVersion, events); err != nil {
		op.Failure(errorTypeValidation)
		return nil, err
	}

	created := eventstore.CreateEvents(stream, aggregateID, expectedNextVersion, p.now(), events...)

	insertQuery, insertArgs, buildErr := p.buildInsertEventsQuery(created)
	if buildErr != nil {
		return nil, p.buildFailed(ctx, op, buildErr)
	}

	lastVersion := created[len(created)-1].Version
	selectQuery, selectArgs, buildErr := p.buildGetVersionRangeQuery(stream, aggregateID, expectedNextVersion, lastVersion)
	if buildErr != nil {
		return nil, p.buildFailed(ctx, op, buildErr)
	}

	tx, beginErr := p.db.BeginTx(ctx)
	if beginErr != nil {
		op.Failure(errorTypeTransaction)
		p.observer.LogError(ctx, logMsgDBExecFailed, beginErr)

		return nil, errors.Join(eventstore.ErrAppendingEventsFailed, beginErr)
	}

	committed, errorType, appendErr := p.appendInTx(ctx, tx, insertQuery, insertArgs, selectQuery, selectArgs)
	if appendErr != nil {
		if rollbackErr := tx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
			p.observer.LogWarn(ctx, logMsgRollbackFailed, rollbackErr)
		}

		if isUniqueViolation(appendErr) {
			op.Conflict()
			p.observer.LogOperation(ctx, logMsgConcurrencyConflict,
				instrument.AttrStream, stream,
				instrument.AttrAggregateID, aggregateID,
				instrument.AttrVersion, int64(expectedNextVersion))

			return nil, eventstore.ErrVersionConflict
		}

		op.Failure(errorType)

		return nil, appendErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		if isUniqueViolation(commitErr) {
			op.Conflict()
			return nil, eventstore.ErrVersionConflict
		}

		op.Failure(errorTypeTransaction)
		p.observer.LogError(ctx, logMsgDBExecFailed, commitErr)

		return nil, errors.Join(eventstore.ErrAppendingEventsFailed, commitErr)
	}

	duration := op.Success(len(committed))
	p.observer.LogOperation(ctx, logMsgEventsAppended,
		instrument.AttrEventCount, len(committed),
		instrument.AttrDurationMS, instrument.ToMilliseconds(duration))

	return committed, nil
}

func (p *Provider) appendInTx(
	ctx context.Context,
	tx adapters.DBTx,
	insertQuery string,
	insertArgs []any,
	selectQuery string,
	selectArgs []any,
) (eventstore.StoredEvents, string, error) {

	if _, execErr := p.exec(ctx, tx, logActionAppend, insertQuery, insertArgs); execErr != nil {
		if isUniqueViolation(execErr) {
			return nil, "", execErr
		}

		return nil, errorTypeDatabaseExec, errors.Join(eventstore.ErrAppendingEventsFailed, execErr)
	}

	return p.queryEvents(ctx, tx, selectQuery, selectArgs)
}

// queryer is satisfied by the adapter and by a running transaction.
type queryer interface {
	Query(ctx context.Context, query string, args ...any) (adapters.DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (adapters.DBResult, error)
}

func (p *Provider) query(ctx context.Context, db queryer, action string, sqlQuery string, args []any) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := db.Query(ctx, sqlQuery, args...)
	p.observer.LogQuery(ctx, action, sqlQuery, time.Since(start))

	if queryErr != nil {
		p.observer.LogError(ctx, logMsgDBQueryFailed, queryErr, instrument.AttrQuery, sqlQuery)
		return nil, queryErr
	}

	return rows, nil
}

func (p *Provider) exec(ctx context.Context, db queryer, action string, sqlQuery string, args []any) (adapters.DBResult, error) {
	start := time.Now()
	result, execErr := db.Exec(ctx, sqlQuery, args...)
	p.observer.LogQuery(ctx, action, sqlQuery, time.Since(start))

	if execErr != nil {
		if !isUniqueViolation(execErr) {
			p.observer.LogError(ctx, logMsgDBExecFailed, execErr, instrument.AttrQuery, sqlQuery)
		}

		return nil, execErr
	}

	return result, nil
}

// queryEvents runs an events query and scans all rows. On failure it also returns the error type for metrics.
func (p *Provider) queryEvents(
	ctx context.Context,
	db queryer,
	sqlQuery string,
	args []any,
) (eventstore.StoredEvents, string, error) {

	rows, queryErr := p.query(ctx, db, logActionQuery, sqlQuery, args)
	if queryErr != nil {
		return nil, errorTypeDatabaseQuery, errors.Join(eventstore.ErrQueryingEventsFailed, queryErr)
	}
	defer p.closeRows(ctx, rows)

	events := make(eventstore.StoredEvents, 0)
	for rows.Next() {
		event, errorType, scanErr := p.scanEvent(ctx, rows)
		if scanErr != nil {
			return nil, errorType, scanErr
		}

		events = append(events, event)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, errorTypeDatabaseQuery, errors.Join(eventstore.ErrQueryingEventsFailed, rowsErr)
	}

	return events, "", nil
}

type eventRow struct {
	position    int64
	stream      string
	aggregateID string
	version     int64
	timestamp   timestamp
	eventType   string
	payload     string
	metadata    string
	processed   bool
}

func (p *Provider) scanEvent(ctx context.Context, rows adapters.DBRows) (eventstore.StoredEvent, string, error) {
	var row eventRow

	scanErr := rows.Scan(
		&row.position,
		&row.stream,
		&row.aggregateID,
		&row.version,
		&row.timestamp,
		&row.eventType,
		&row.payload,
		&row.metadata,
		&row.processed,
	)
	if scanErr != nil {
		p.observer.LogError(ctx, logMsgScanRowFailed, scanErr)
		return eventstore.StoredEvent{}, errorTypeRowScan, errors.Join(eventstore.ErrScanningDBRowFailed, scanErr)
	}

	occurredAt := row.timestamp.Time()

	event, buildErr := eventstore.BuildStorableEvent(row.eventType, occurredAt, []byte(row.payload), []byte(row.metadata))
	if buildErr != nil {
		p.observer.LogError(ctx, logMsgBuildStorableEventFailed, buildErr, logAttrEventType, row.eventType)
		return eventstore.StoredEvent{}, errorTypeBuildEvent, errors.Join(eventstore.ErrBuildingStorableEventFailed, buildErr)
	}

	return eventstore.StoredEvent{
		Stream:      row.stream,
		AggregateID: row.aggregateID,
		Version:     eventstore.Version(row.version),
		Position:    eventstore.Position(row.position),
		Timestamp:   occurredAt,
		Processed:   row.processed,
		Event:       event,
	}, "", nil
}

func (p *Provider) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		p.observer.LogWarn(ctx, logMsgCloseRowsFailed, closeErr)
	}
}

func (p *Provider) buildFailed(ctx context.Context, op *instrument.Operation, buildErr error) error {
	op.Failure(errorTypeBuildQuery)
	p.observer.LogError(ctx, logMsgBuildQueryFailed, buildErr)

	return errors.Join(eventstore.ErrBuildingQueryFailed, buildErr)
}
