package repository

import (
	"context"

	"github.com/desietsy/desietsy-backend-go/database"
	"github.com/desietsy/desietsy-backend-go/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ProductRepository struct {
	coll *mongo.Collection
}

func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{coll: db.Collection(database.Products)}
}

// ProductUpdate lists the editable fields of a listing; nil means unchanged.
type ProductUpdate struct {
	Title       *string  `json:"title" bson:"title,omitempty"`
	Description *string  `json:"description" bson:"description,omitempty"`
	Price       *float64 `json:"price" bson:"price,omitempty"`
	Image       *string  `json:"image" bson:"image,omitempty"`
	Category    *string  `json:"category" bson:"category,omitempty"`
}

func (r *ProductRepository) Insert(ctx context.Context, product *models.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, product)
	return mapErr(err)
}

func (r *ProductRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var product models.Product
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&product); err != nil {
		return nil, mapErr(err)
	}
	return &product, nil
}

// FindByIDs resolves many listings with one query. Missing ids are simply
// absent from the result.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error) {
	out := make(map[primitive.ObjectID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	products, err := r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (r *ProductRepository) ListApproved(ctx context.Context, approved bool) ([]models.Product, error) {
	return r.find(ctx, bson.M{"isApproved": approved})
}

func (r *ProductRepository) ListByArtisan(ctx context.Context, artisanID primitive.ObjectID) ([]models.Product, error) {
	return r.find(ctx, bson.M{"artisanId": artisanID})
}

func (r *ProductRepository) Update(ctx context.Context, id primitive.ObjectID, upd ProductUpdate) (*models.Product, error) {
	return r.findAndSet(ctx, id, upd)
}

func (r *ProductRepository) SetApproved(ctx context.Context, id primitive.ObjectID, approved bool) (*models.Product, error) {
	return r.findAndSet(ctx, id, bson.M{"isApproved": approved})
}

func (r *ProductRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) findAndSet(ctx context.Context, id primitive.ObjectID, set interface{}) (*models.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var product models.Product
	err := r.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&product)
	if err != nil {
		return nil, mapErr(err)
	}
	return &product, nil
}

func (r *ProductRepository) find(ctx context.Context, filter bson.M) ([]models.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (u ProductUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Price == nil && u.Image == nil && u.Category == nil
}
