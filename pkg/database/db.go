// Package database owns the process-wide MongoDB client.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ourstore/storefront/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

var (
	Client *mongo.Client
	DB     *mongo.Database
)

// Connect opens the client, configures the pool and pings the primary.
// It returns an error instead of exiting so the caller can shut down cleanly.
func Connect(ctx context.Context) error {
	opts := options.Client().
		ApplyURI(config.MongoURI()).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(2 * time.Minute).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second).
		SetWriteConcern(writeconcern.Majority()).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("database: connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("database: ping: %w", err)
	}

	Use(client, config.MongoDatabase())
	return nil
}

// Use installs an already connected client (integration tests).
func Use(client *mongo.Client, name string) {
	Client = client
	DB = client.Database(name)
}

// Ping reports whether the primary is reachable.
func Ping(ctx context.Context) error {
	if Client == nil {
		return errors.New("database: not connected")
	}
	return Client.Ping(ctx, readpref.Primary())
}

// Disconnect closes the pool.
func Disconnect(ctx context.Context) error {
	if Client == nil {
		return nil
	}
	err := Client.Disconnect(ctx)
	Client, DB = nil, nil
	return err
}
