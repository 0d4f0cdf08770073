package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	Client                        *mongo.Client
	DeviceRegistrationsCollection *mongo.Collection
)

// Init connects to MongoDB and binds the collection handles. Call once from
// main before serving.
func Init(ctx context.Context, uri, database string) error {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return fmt.Errorf("ping MongoDB: %w", err)
	}

	Client = client
	DeviceRegistrationsCollection = client.Database(database).Collection("device_registrations")

	return ensureIndexes(ctx)
}

func ensureIndexes(ctx context.Context) error {
	_, err := DeviceRegistrationsCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "device_id", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("user_device_unique"),
	})
	if err != nil {
		return fmt.Errorf("create device_registrations index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func Close(ctx context.Context) error {
	if Client == nil {
		return nil
	}
	return Client.Disconnect(ctx)
}
