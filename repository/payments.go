package repository

import (
	"context"
	"time"

	"github.com/desietsy/desietsy-backend-go/database"
	"github.com/desietsy/desietsy-backend-go/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PaymentRepository struct {
	coll *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{coll: db.Collection(database.PaymentIntents)}
}

func (r *PaymentRepository) Insert(ctx context.Context, intent *models.PaymentIntent) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if intent.ID.IsZero() {
		intent.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, intent)
	return mapErr(err)
}

func (r *PaymentRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentIntent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var intent models.PaymentIntent
	if err := r.coll.FindOne(ctx, bson.M{"gatewayOrderId": gatewayOrderID}).Decode(&intent); err != nil {
		return nil, mapErr(err)
	}
	return &intent, nil
}

// Transition moves an intent from one of the from statuses to to, merging
// extra fields into the same write. ErrNotFound means no intent matched.
func (r *PaymentRepository) Transition(ctx context.Context, gatewayOrderID string, from []models.IntentStatus, to models.IntentStatus, extra bson.M) (*models.PaymentIntent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	set := bson.M{"status": to, "updatedAt": time.Now()}
	for k, v := range extra {
		set[k] = v
	}

	var intent models.PaymentIntent
	err := r.coll.FindOneAndUpdate(
		ctx,
		bson.M{"gatewayOrderId": gatewayOrderID, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&intent)
	if err != nil {
		return nil, mapErr(err)
	}
	return &intent, nil
}

// ListStale returns intents in status whose cutoff field is older than before.
func (r *PaymentRepository) ListStale(ctx context.Context, status models.IntentStatus, field string, before time.Time, limit int64) ([]models.PaymentIntent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cursor, err := r.coll.Find(
		ctx,
		bson.M{"status": status, field: bson.M{"$lt": before}},
		options.Find().SetLimit(limit).SetSort(bson.D{{Key: field, Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	intents := []models.PaymentIntent{}
	if err := cursor.All(ctx, &intents); err != nil {
		return nil, err
	}
	return intents, nil
}
