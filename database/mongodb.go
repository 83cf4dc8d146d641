package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	Orders         = "orders"
	Products       = "products"
	Users          = "users"
	PaymentIntents = "payment_intents"
	EmailOTPs      = "email_otps"
)

// OTPLifetime is how long an emailed one-time code stays valid.
const OTPLifetime = 5 * time.Minute

func ConnectDB(ctx context.Context, uri, name string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, err
	}

	// Ping the database
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	slog.Info("connected to mongodb", "database", name)
	return client, client.Database(name), nil
}

// EnsureIndexes creates the indexes the repositories rely on. The unique
// gatewayOrderId indexes are what keep a payment tied to at most one order.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	specs := map[string][]mongo.IndexModel{
		Orders: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "placedAt", Value: -1}}},
			{Keys: bson.D{{Key: "items.artisan", Value: 1}}},
			{
				Keys:    bson.D{{Key: "gatewayOrderId", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		PaymentIntents: {
			{Keys: bson.D{{Key: "gatewayOrderId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
		},
		Users: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		Products: {
			{Keys: bson.D{{Key: "artisanId", Value: 1}}},
			{Keys: bson.D{{Key: "isApproved", Value: 1}}},
		},
		EmailOTPs: {
			{
				Keys:    bson.D{{Key: "createdAt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(int32(OTPLifetime.Seconds())),
			},
		},
	}

	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
