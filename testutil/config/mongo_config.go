package config

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoClient connects and pings a mongo.Client for the given URI.
func MongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	const defaultMaxPoolSize = uint64(20)
	const defaultConnectTimeout = time.Second * 5

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(defaultMaxPoolSize).
		SetConnectTimeout(defaultConnectTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	if pingErr := client.Ping(ctx, readpref.Primary()); pingErr != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, pingErr
	}

	return client, nil
}
