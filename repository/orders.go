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

type OrderRepository struct {
	coll *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(database.Orders)}
}

// StatusGuard restricts which current statuses an update may apply to.
// An empty guard matches any status.
type StatusGuard struct {
	In    []models.FulfillmentStatus
	NotIn []models.FulfillmentStatus
}

func (r *OrderRepository) Insert(ctx context.Context, order *models.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, order)
	return mapErr(err)
}

func (r *OrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"gatewayOrderId": gatewayOrderID})
}

func (r *OrderRepository) FindByBuyer(ctx context.Context, buyerID primitive.ObjectID) ([]models.Order, error) {
	return r.find(ctx, bson.M{"user": buyerID})
}

// FindBySeller returns whole orders containing at least one of the seller's lines.
func (r *OrderRepository) FindBySeller(ctx context.Context, sellerID primitive.ObjectID) ([]models.Order, error) {
	return r.find(ctx, bson.M{"items.artisan": sellerID})
}

// UpdateStatus sets the fulfillment status in a single conditional write and
// returns the updated order. ErrNotFound means either the order does not
// exist or the guard did not match.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.FulfillmentStatus, guard StatusGuard) (*models.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	filter := bson.M{"_id": id}
	cond := bson.M{}
	if len(guard.In) > 0 {
		cond["$in"] = guard.In
	}
	if len(guard.NotIn) > 0 {
		cond["$nin"] = guard.NotIn
	}
	if len(cond) > 0 {
		filter["status"] = cond
	}

	update := bson.M{
		"$set": bson.M{
			"status":    status,
			"updatedAt": time.Now(),
		},
	}

	var order models.Order
	err := r.coll.FindOneAndUpdate(
		ctx,
		filter,
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if err != nil {
		return nil, mapErr(err)
	}
	return &order, nil
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.M) (*models.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var order models.Order
	if err := r.coll.FindOne(ctx, filter).Decode(&order); err != nil {
		return nil, mapErr(err)
	}
	return &order, nil
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M) ([]models.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "placedAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
