package eventstore

import (
	"errors"
)

var (
	// ErrVersionConflict is returned by Append when one of the target versions already exists for the aggregate.
	ErrVersionConflict = errors.New("version conflict, an event with this version already exists for the aggregate")

	// ErrNotImplemented is returned by operations a backend does not support.
	ErrNotImplemented = errors.New("operation not implemented by this provider")

	ErrNoEventsToAppend = errors.New("no events supplied to append")
	ErrEmptyStream      = errors.New("empty stream supplied")
	ErrEmptyAggregateID = errors.New("empty aggregateID supplied")
	ErrEmptyBookmark    = errors.New("empty bookmark supplied")
	ErrInvalidVersion   = errors.New("expected next version must be greater than zero")

	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrEmptyTableName        = errors.New("empty table name supplied")
	ErrInvalidLimit          = errors.New("limit must not be negative")

	ErrQueryingEventsFailed        = errors.New("querying events failed")
	ErrAppendingEventsFailed       = errors.New("appending events failed")
	ErrBookmarkFailed              = errors.New("reading or writing the bookmark failed")
	ErrMarkingEventFailed          = errors.New("marking event as processed failed")
	ErrScanningDBRowFailed         = errors.New("scanning db row failed")
	ErrBuildingQueryFailed         = errors.New("building query failed")
	ErrBuildingStorableEventFailed = errors.New("building storable event failed")
	ErrMigrationFailed             = errors.New("migrating the schema failed")
)
