// Package mongoengine provides a MongoDB implementation of eventstore.Provider.
//
// Events, bookmarks and a position counter live in three collections. Append reserves a
// range of positions from the counter document and then inserts the batch inside a
// transaction, so a MongoDB replica set is required. Because positions are reserved before
// the insert commits, commit order may diverge from position order: out-of-order tolerance
// is enabled by default, projectors mark what they processed with MarkEvent.
//
// Basic usage:
//
//	client, _ := mongo.Connect(ctx, options.Client().ApplyURI(uri))
//	provider, _ := mongoengine.NewProvider(client, "shop", mongoengine.WithLimit(500))
//	_ = provider.Migrate(ctx)
package mongoengine
