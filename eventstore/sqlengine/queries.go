package sqlengine

import (
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
)

const (
	colPosition    = "position"
	colStream      = "stream"
	colAggregateID = "aggregate_id"
	colVersion     = "version"
	colTimestamp   = "timestamp"
	colEventType   = "event_type"
	colEvent       = "event"
	colMetadata    = "metadata"
	colProcessed   = "processed"
	colBookmark    = "bookmark"

	notProcessed = "NOT ?"
)

var errUnsupportedTimestamp = errors.New("unsupported timestamp value")

func eventColumns() []any {
	return []any{
		colPosition, colStream, colAggregateID, colVersion, colTimestamp,
		colEventType, colEvent, colMetadata, colProcessed,
	}
}

func (p *Provider) selectEvents() *goqu.SelectDataset {
	return p.dialect.
		From(goqu.T(p.eventsTable)).
		Prepared(true).
		Select(eventColumns()...)
}

// afterPosition is "position > p", widened by "OR NOT processed" with out-of-order tolerance.
func (p *Provider) afterPosition(position eventstore.Position) exp.Expression {
	newer := goqu.C(colPosition).Gt(int64(position))

	if !p.settings.HandleOutOfOrderEvents {
		return newer
	}

	return goqu.Or(newer, goqu.L(notProcessed, goqu.I(colProcessed)))
}

func (p *Provider) buildGetEventsForQuery(
	stream string,
	aggregateID string,
	readOptions eventstore.ReadOptions,
) (string, []any, error) {

	where := []exp.Expression{
		goqu.C(colStream).Eq(stream),
		goqu.C(colAggregateID).Eq(aggregateID),
	}

	if readOptions.HasAfterPosition {
		where = append(where, p.afterPosition(readOptions.AfterPosition))
	}

	return p.selectEvents().
		Where(where...).
		Order(goqu.C(colVersion).Asc()).
		ToSQL()
}

func (p *Provider) buildGetLastEventForQuery(streams []string, aggregateID string) (string, []any, error) {
	where := []exp.Expression{goqu.C(colStream).In(streams)}

	if aggregateID != "" {
		where = append(where, goqu.C(colAggregateID).Eq(aggregateID))
	}

	return p.selectEvents().
		Where(where...).
		Order(goqu.C(colPosition).Desc()).
		Limit(1).
		ToSQL()
}

func (p *Provider) buildGetEventsFromQuery(streams []string, position eventstore.Position, limit int) (string, []any, error) {
	selectStmt := p.selectEvents().
		Where(goqu.C(colStream).In(streams), p.afterPosition(position)).
		Order(goqu.C(colPosition).Asc())

	if limit > 0 {
		selectStmt = selectStmt.Limit(uint(limit))
	}

	return selectStmt.ToSQL()
}

func (p *Provider) buildGetVersionRangeQuery(
	stream string,
	aggregateID string,
	first eventstore.Version,
	last eventstore.Version,
) (string, []any, error) {

	return p.selectEvents().
		Where(
			goqu.C(colStream).Eq(stream),
			goqu.C(colAggregateID).Eq(aggregateID),
			goqu.C(colVersion).Between(goqu.Range(int64(first), int64(last))),
		).
		Order(goqu.C(colVersion).Asc()).
		ToSQL()
}

func (p *Provider) buildInsertEventsQuery(events eventstore.StoredEvents) (string, []any, error) {
	rows := make([]any, 0, len(events))
	for _, event := range events {
		rows = append(rows, goqu.Record{
			colStream:      event.Stream,
			colAggregateID: event.AggregateID,
			colVersion:     int64(event.Version),
			colTimestamp:   p.timestampValue(event.Timestamp),
			colEventType:   event.Event.EventType,
			colEvent:       string(event.Event.PayloadJSON),
			colMetadata:    string(metadataOrEmpty(event.Event.MetadataJSON)),
		})
	}

	return p.dialect.
		Insert(goqu.T(p.eventsTable)).
		Prepared(true).
		Rows(rows...).
		ToSQL()
}

func (p *Provider) buildMarkEventQuery(streams []string, aggregateID string, position eventstore.Position) (string, []any, error) {
	return p.dialect.
		Update(goqu.T(p.eventsTable)).
		Prepared(true).
		Set(goqu.Record{colProcessed: true}).
		Where(
			goqu.C(colStream).In(streams),
			goqu.C(colAggregateID).Eq(aggregateID),
			goqu.C(colPosition).Eq(int64(position)),
		).
		ToSQL()
}

func (p *Provider) buildGetPositionQuery(bookmark string) (string, []any, error) {
	return p.dialect.
		From(goqu.T(p.bookmarksTable)).
		Prepared(true).
		Select(colPosition).
		Where(goqu.C(colBookmark).Eq(bookmark)).
		ToSQL()
}

func (p *Provider) buildUpdatePositionQuery(bookmark string, position eventstore.Position) (string, []any, error) {
	return p.dialect.
		Update(goqu.T(p.bookmarksTable)).
		Prepared(true).
		Set(goqu.Record{colPosition: int64(position)}).
		Where(goqu.C(colBookmark).Eq(bookmark)).
		ToSQL()
}

func (p *Provider) buildInsertPositionQuery(bookmark string, position eventstore.Position) (string, []any, error) {
	return p.dialect.
		Insert(goqu.T(p.bookmarksTable)).
		Prepared(true).
		Rows(goqu.Record{colBookmark: bookmark, colPosition: int64(position)}).
		ToSQL()
}

func metadataOrEmpty(metadata []byte) []byte {
	if len(metadata) == 0 {
		return []byte("{}")
	}

	return metadata
}

const sqliteTimestampLayout = "2006-01-02 15:04:05.999999999-07:00"

// timestampValue binds time.Time natively on PostgreSQL and as text in SQLite's own layout,
// since SQLite drivers disagree on how they write time.Time.
func (p *Provider) timestampValue(t time.Time) any {
	if p.dialectName == DialectSQLite {
		return t.UTC().Format(sqliteTimestampLayout)
	}

	return t
}

var timestampLayouts = []string{
	sqliteTimestampLayout,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// timestamp scans TIMESTAMPTZ values as well as the text representations SQLite drivers return.
type timestamp struct {
	value time.Time
}

func (ts *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		ts.value = v.UTC()
		return nil

	case string:
		return ts.parse(v)

	case []byte:
		return ts.parse(string(v))

	default:
		return fmt.Errorf("%w: %T", errUnsupportedTimestamp, src)
	}
}

func (ts *timestamp) parse(value string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			ts.value = parsed.UTC()
			return nil
		}
	}

	return fmt.Errorf("%w: %q", errUnsupportedTimestamp, value)
}

func (ts *timestamp) Time() time.Time {
	return ts.value
}
