package mongoengine

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/internal/instrument"
)

const (
	logActionMigrate    = "create indexes"
	logMsgSchemaMigrate = "schema migrated"
	logMsgMigrateFailed = "schema migration failed"
)

type collectionIndexes struct {
	collection *mongo.Collection
	name       string
	models     []mongo.IndexModel
}

// Migrate creates the unique indexes of the events and bookmarks collections if they do not exist yet.
func (p *Provider) Migrate(ctx context.Context) error {
	start := time.Now()

	for _, indexes := range p.indexes() {
		queryStart := time.Now()
		_, createErr := indexes.collection.Indexes().CreateMany(ctx, indexes.models)
		p.observer.LogQuery(ctx, logActionMigrate, indexes.name, time.Since(queryStart))

		if createErr != nil {
			p.observer.LogError(ctx, logMsgMigrateFailed, createErr, logAttrCollectionName, indexes.name)
			return errors.Join(eventstore.ErrMigrationFailed, createErr)
		}
	}

	p.observer.LogOperation(ctx, logMsgSchemaMigrate,
		logAttrCollectionName, p.eventsName,
		instrument.AttrDurationMS, instrument.ToMilliseconds(time.Since(start)))

	return nil
}

func (p *Provider) indexes() []collectionIndexes {
	return []collectionIndexes{
		{
			collection: p.bookmarks,
			name:       p.bookmarksName,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: fieldBookmark, Value: 1}},
					Options: options.Index().SetName("bookmark-index").SetUnique(true),
				},
			},
		},
		{
			collection: p.events,
			name:       p.eventsName,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: fieldStream, Value: 1}, {Key: fieldPosition, Value: 1}},
					Options: options.Index().SetName("stream-position-index").SetUnique(true),
				},
				{
					Keys:    bson.D{{Key: fieldStream, Value: 1}, {Key: fieldAggregateID, Value: 1}, {Key: fieldVersion, Value: 1}},
					Options: options.Index().SetName("stream-id-version-index").SetUnique(true),
				},
			},
		},
	}
}
