package mongoengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/internal/instrument"
)

const (
	defaultEventsCollectionName    = "events"
	defaultBookmarksCollectionName = "bookmarks"
	defaultCountersCollectionName  = "counters"

	// positionCounterID is the _id of the counter document positions are reserved from.
	positionCounterID = "position"

	component = "eventstore"

	operationGetEventsFor    = "get_events_for"
	operationGetLastEventFor = "get_last_event_for"
	operationGetEventsFrom   = "get_events_from"
	operationAppend          = "append"
	operationMarkEvent       = "mark_event"
	operationGetPosition     = "get_position"
	operationSetPosition     = "set_position"

	errorTypeValidation   = "validation_failed"
	errorTypeFind         = "database_query_failed"
	errorTypeWrite        = "database_exec_failed"
	errorTypeDecode       = "row_scan_failed"
	errorTypeBuildEvent   = "build_storable_event_failed"
	errorTypeReservation  = "position_reservation_failed"
	errorTypeTransaction  = "transaction_failed"
	logActionFind         = "find"
	logActionInsert       = "insert"
	logActionUpdate       = "update"
	logActionReserve      = "reserve positions"
	logMsgFindFailed      = "database query execution failed"
	logMsgWriteFailed     = "database execution failed"
	logMsgDecodeFailed    = "failed to decode document"
	logMsgBuildFailed     = "failed to build storable event from document"
	logMsgCloseFailed     = "failed to close cursor"
	logMsgSessionFailed   = "failed to start session"
	logMsgEventsAppended  = "events appended"
	logMsgConflict        = "concurrency conflict detected"
	logMsgPositionSet     = "bookmark position set"
	logMsgEventMarked     = "event marked as processed"
	logAttrEventType      = "event_type"
	logAttrFirstPosition  = "first_position"
	logAttrCollectionName = "collection"

	fieldID          = "_id"
	fieldSeq         = "seq"
	fieldPosition    = "position"
	fieldStream      = "stream"
	fieldAggregateID = "aggregateId"
	fieldVersion     = "version"
	fieldProcessed   = "processed"
	fieldBookmark    = "bookmark"
)

// ErrEmptyDatabaseName is returned by NewProvider for an empty database name.
var ErrEmptyDatabaseName = errors.New("empty database name supplied")

type eventDocument struct {
	Position    int64     `bson:"position"`
	Stream      string    `bson:"stream"`
	AggregateID string    `bson:"aggregateId"`
	Version     int64     `bson:"version"`
	Timestamp   time.Time `bson:"timestamp"`
	EventType   string    `bson:"eventType"`
	Event       string    `bson:"event"`
	Metadata    string    `bson:"metadata"`
	Processed   bool      `bson:"processed"`
}

type bookmarkDocument struct {
	Bookmark string `bson:"bookmark"`
	Position int64  `bson:"position"`
}

type counterDocument struct {
	Seq int64 `bson:"seq"`
}

// Provider is an eventstore.Provider on MongoDB.
type Provider struct {
	client        *mongo.Client
	database      *mongo.Database
	eventsName    string
	bookmarksName string
	countersName  string
	events        *mongo.Collection
	eventsReplica *mongo.Collection
	bookmarks     *mongo.Collection
	counters      *mongo.Collection
	settings      eventstore.Settings
	now           func() time.Time
	observer      *instrument.Observer
}

// NewProvider creates a new Provider on the given database with optional configuration.
func NewProvider(client *mongo.Client, database string, opts ...Option) (*Provider, error) {
	if client == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	if database == "" {
		return nil, ErrEmptyDatabaseName
	}

	p := &Provider{
		client:        client,
		database:      client.Database(database),
		eventsName:    defaultEventsCollectionName,
		bookmarksName: defaultBookmarksCollectionName,
		countersName:  defaultCountersCollectionName,
		settings:      eventstore.Settings{HandleOutOfOrderEvents: true},
		now:           time.Now,
		observer:      instrument.New(component),
	}

	for _, option := range opts {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	p.events = p.database.Collection(p.eventsName)
	p.eventsReplica = p.database.Collection(p.eventsName, optionsForReplicaReads())
	p.bookmarks = p.database.Collection(p.bookmarksName)
	p.counters = p.database.Collection(p.countersName)

	return p, nil
}

func optionsForReplicaReads() *options.CollectionOptions {
	return options.Collection().SetReadPreference(readpref.SecondaryPreferred())
}

// Settings exposes the configuration the Provider was constructed with.
func (p *Provider) Settings() eventstore.Settings {
	return p.settings
}

// eventsFor returns the events collection reading from secondaries if ctx asks for eventual consistency.
func (p *Provider) eventsFor(ctx context.Context) *mongo.Collection {
	if eventstore.GetConsistencyLevel(ctx) == eventstore.EventualConsistency {
		return p.eventsReplica
	}

	return p.events
}

// afterPosition is {position > p}, widened by {processed: false} with out-of-order tolerance.
func (p *Provider) afterPosition(filter bson.D, position eventstore.Position) bson.D {
	newer := bson.D{{Key: fieldPosition, Value: bson.D{{Key: "$gt", Value: int64(position)}}}}

	if !p.settings.HandleOutOfOrderEvents {
		return append(filter, newer...)
	}

	return append(filter, bson.E{Key: "$or", Value: bson.A{
		newer,
		bson.D{{Key: fieldProcessed, Value: false}},
	}})
}

// GetEventsFor returns the history of one aggregate in ascending version order.
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

	filter := bson.D{
		{Key: fieldStream, Value: stream},
		{Key: fieldAggregateID, Value: aggregateID},
	}

	if readOptions := eventstore.BuildReadOptions(opts...); readOptions.HasAfterPosition {
		filter = p.afterPosition(filter, readOptions.AfterPosition)
	}

	findOptions := options.Find().SetSort(bson.D{{Key: fieldVersion, Value: 1}})

	events, errorType, err := p.find(ctx, p.eventsFor(ctx), filter, findOptions)
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

	filter := bson.D{{Key: fieldStream, Value: bson.D{{Key: "$in", Value: streams}}}}
	if aggregateID != "" {
		filter = append(filter, bson.E{Key: fieldAggregateID, Value: aggregateID})
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: fieldPosition, Value: -1}}).
		SetLimit(1)

	events, errorType, err := p.find(ctx, p.eventsFor(ctx), filter, findOptions)
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

	filter := p.afterPosition(bson.D{{Key: fieldStream, Value: bson.D{{Key: "$in", Value: streams}}}}, position)
	findOptions := options.Find().SetSort(bson.D{{Key: fieldPosition, Value: 1}})

	if limit = p.settings.EffectiveLimit(limit); limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	events, errorType, err := p.find(ctx, p.eventsFor(ctx), filter, findOptions)
	if err != nil {
		op.Failure(errorType)
		return nil, err
	}

	op.Success(len(events))

	return events, nil
}

// MarkEvent flags the event at position as processed.
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

	filter := bson.D{
		{Key: fieldStream, Value: bson.D{{Key: "$in", Value: streams}}},
		{Key: fieldAggregateID, Value: aggregateID},
		{Key: fieldPosition, Value: int64(position)},
	}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: fieldProcessed, Value: true}}}}

	start := time.Now()
	_, updateErr := p.events.UpdateOne(ctx, filter, update)
	p.observer.LogQuery(ctx, logActionUpdate, describe(p.eventsName, filter), time.Since(start))

	if updateErr != nil {
		op.Failure(errorTypeWrite)
		p.observer.LogError(ctx, logMsgWriteFailed, updateErr, logAttrCollectionName, p.eventsName)

		return errors.Join(eventstore.ErrMarkingEventFailed, updateErr)
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

	filter := bson.D{{Key: fieldBookmark, Value: bookmark}}

	start := time.Now()
	var document bookmarkDocument
	findErr := p.bookmarks.FindOne(ctx, filter).Decode(&document)
	p.observer.LogQuery(ctx, logActionFind, describe(p.bookmarksName, filter), time.Since(start))

	if errors.Is(findErr, mongo.ErrNoDocuments) {
		op.Success(0)
		return eventstore.BeginningOfTime, nil
	}

	if findErr != nil {
		op.Failure(errorTypeFind)
		p.observer.LogError(ctx, logMsgFindFailed, findErr, logAttrCollectionName, p.bookmarksName)

		return eventstore.BeginningOfTime, errors.Join(eventstore.ErrBookmarkFailed, findErr)
	}

	op.Success(0)

	return eventstore.Position(document.Position), nil
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

	upsertErr := p.upsertPosition(ctx, bookmark, position)
	if mongo.IsDuplicateKeyError(upsertErr) {
		// a concurrent upsert inserted the bookmark first, now it exists
		upsertErr = p.upsertPosition(ctx, bookmark, position)
	}

	if upsertErr != nil {
		op.Failure(errorTypeWrite)
		p.observer.LogError(ctx, logMsgWriteFailed, upsertErr, logAttrCollectionName, p.bookmarksName)

		return errors.Join(eventstore.ErrBookmarkFailed, upsertErr)
	}

	op.Success(0)
	p.observer.LogOperation(ctx, logMsgPositionSet, instrument.AttrBookmark, bookmark, instrument.AttrPosition, int64(position))

	return nil
}

func (p *Provider) upsertPosition(ctx context.Context, bookmark string, position eventstore.Position) error {
	filter := bson.D{{Key: fieldBookmark, Value: bookmark}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: fieldPosition, Value: int64(position)}}}}

	start := time.Now()
	_, err := p.bookmarks.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	p.observer.LogQuery(ctx, logActionUpdate, describe(p.bookmarksName, filter), time.Since(start))

	return err
}

// Append atomically inserts events with the versions expectedNextVersion, expectedNextVersion+1, ...
//
// Positions are reserved from the counter document first, then the batch is inserted in a transaction.
// The unique index on (stream, aggregateId, version) rejects the whole batch if any of those versions exists,
// in that case eventstore.ErrVersionConflict is returned and the reserved positions stay unused.
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

	first, reserveErr := p.reservePositions(ctx, len(created))
	if reserveErr != nil {
		op.Failure(errorTypeReservation)
		p.observer.LogError(ctx, logMsgWriteFailed, reserveErr, logAttrCollectionName, p.countersName)

		return nil, errors.Join(eventstore.ErrAppendingEventsFailed, reserveErr)
	}

	documents := make([]any, 0, len(created))
	for i := range created {
		created[i].Position = first + eventstore.Position(i)
		// BSON dates have millisecond precision
		created[i].Timestamp = created[i].Timestamp.Truncate(time.Millisecond)
		documents = append(documents, toDocument(created[i]))
	}

	session, sessionErr := p.client.StartSession()
	if sessionErr != nil {
		op.Failure(errorTypeTransaction)
		p.observer.LogError(ctx, logMsgSessionFailed, sessionErr)

		return nil, errors.Join(eventstore.ErrAppendingEventsFailed, sessionErr)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	start := time.Now()
	_, insertErr := session.WithTransaction(ctx, func(sessionCtx mongo.SessionContext) (any, error) {
		return p.events.InsertMany(sessionCtx, documents)
	})
	p.observer.LogQuery(ctx, logActionInsert, describe(p.eventsName, bson.D{
		{Key: fieldStream, Value: stream},
		{Key: fieldAggregateID, Value: aggregateID},
		{Key: logAttrFirstPosition, Value: int64(first)},
	}), time.Since(start))

	if mongo.IsDuplicateKeyError(insertErr) {
		op.Conflict()
		p.observer.LogOperation(ctx, logMsgConflict,
			instrument.AttrStream, stream,
			instrument.AttrAggregateID, aggregateID,
			instrument.AttrVersion, int64(expectedNextVersion))

		return nil, eventstore.ErrVersionConflict
	}

	if insertErr != nil {
		op.Failure(errorTypeWrite)
		p.observer.LogError(ctx, logMsgWriteFailed, insertErr, logAttrCollectionName, p.eventsName)

		return nil, errors.Join(eventstore.ErrAppendingEventsFailed, insertErr)
	}

	duration := op.Success(len(created))
	p.observer.LogOperation(ctx, logMsgEventsAppended,
		instrument.AttrEventCount, len(created),
		instrument.AttrDurationMS, instrument.ToMilliseconds(duration))

	return created, nil
}

// reservePositions increments the counter by n and returns the first position of the reserved range.
func (p *Provider) reservePositions(ctx context.Context, n int) (eventstore.Position, error) {
	filter := bson.D{{Key: fieldID, Value: positionCounterID}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: fieldSeq, Value: int64(n)}}}}
	findOptions := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	start := time.Now()
	var counter counterDocument
	err := p.counters.FindOneAndUpdate(ctx, filter, update, findOptions).Decode(&counter)
	p.observer.LogQuery(ctx, logActionReserve, describe(p.countersName, filter), time.Since(start))

	if err != nil {
		return eventstore.BeginningOfTime, err
	}

	return eventstore.Position(counter.Seq - int64(n) + 1), nil
}

// find runs a query and decodes all documents. On failure it also returns the error type for metrics.
func (p *Provider) find(
	ctx context.Context,
	collection *mongo.Collection,
	filter bson.D,
	findOptions *options.FindOptions,
) (eventstore.StoredEvents, string, error) {

	start := time.Now()
	cursor, findErr := collection.Find(ctx, filter, findOptions)
	p.observer.LogQuery(ctx, logActionFind, describe(p.eventsName, filter), time.Since(start))

	if findErr != nil {
		p.observer.LogError(ctx, logMsgFindFailed, findErr, logAttrCollectionName, p.eventsName)
		return nil, errorTypeFind, errors.Join(eventstore.ErrQueryingEventsFailed, findErr)
	}
	defer func() {
		if closeErr := cursor.Close(context.WithoutCancel(ctx)); closeErr != nil {
			p.observer.LogWarn(ctx, logMsgCloseFailed, closeErr)
		}
	}()

	events := make(eventstore.StoredEvents, 0)
	for cursor.Next(ctx) {
		var document eventDocument
		if decodeErr := cursor.Decode(&document); decodeErr != nil {
			p.observer.LogError(ctx, logMsgDecodeFailed, decodeErr)
			return nil, errorTypeDecode, errors.Join(eventstore.ErrScanningDBRowFailed, decodeErr)
		}

		event, buildErr := fromDocument(document)
		if buildErr != nil {
			p.observer.LogError(ctx, logMsgBuildFailed, buildErr, logAttrEventType, document.EventType)
			return nil, errorTypeBuildEvent, errors.Join(eventstore.ErrBuildingStorableEventFailed, buildErr)
		}

		events = append(events, event)
	}

	if cursorErr := cursor.Err(); cursorErr != nil {
		return nil, errorTypeFind, errors.Join(eventstore.ErrQueryingEventsFailed, cursorErr)
	}

	return events, "", nil
}

func toDocument(event eventstore.StoredEvent) eventDocument {
	metadata := event.Event.MetadataJSON
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	return eventDocument{
		Position:    int64(event.Position),
		Stream:      event.Stream,
		AggregateID: event.AggregateID,
		Version:     int64(event.Version),
		Timestamp:   event.Timestamp,
		EventType:   event.Event.EventType,
		Event:       string(event.Event.PayloadJSON),
		Metadata:    string(metadata),
		Processed:   event.Processed,
	}
}

func fromDocument(document eventDocument) (eventstore.StoredEvent, error) {
	timestamp := document.Timestamp.UTC()

	event, err := eventstore.BuildStorableEvent(document.EventType, timestamp, []byte(document.Event), []byte(document.Metadata))
	if err != nil {
		return eventstore.StoredEvent{}, err
	}

	return eventstore.StoredEvent{
		Stream:      document.Stream,
		AggregateID: document.AggregateID,
		Version:     eventstore.Version(document.Version),
		Position:    eventstore.Position(document.Position),
		Timestamp:   timestamp,
		Processed:   document.Processed,
		Event:       event,
	}, nil
}

// describe renders a filter for query logs.
func describe(collection string, filter bson.D) string {
	rendered, err := bson.MarshalExtJSON(filter, false, false)
	if err != nil {
		return fmt.Sprintf("%s %v", collection, filter)
	}

	return collection + " " + string(rendered)
}
