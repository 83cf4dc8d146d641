package repository

import (
	"context"
	"time"

	"github.com/desietsy/desietsy-backend-go/database"
	"github.com/desietsy/desietsy-backend-go/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type OTPRepository struct {
	coll *mongo.Collection
}

func NewOTPRepository(db *mongo.Database) *OTPRepository {
	return &OTPRepository{coll: db.Collection(database.EmailOTPs)}
}

// Save replaces any outstanding code for the email.
func (r *OTPRepository) Save(ctx context.Context, email, code string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.coll.ReplaceOne(
		ctx,
		bson.M{"_id": email},
		models.EmailOTP{Email: email, Code: code, CreatedAt: time.Now()},
		options.Replace().SetUpsert(true),
	)
	return err
}

// Find returns the live code for email. The TTL monitor only runs once a
// minute, so expiry is checked here too.
func (r *OTPRepository) Find(ctx context.Context, email string) (*models.EmailOTP, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var otp models.EmailOTP
	err := r.coll.FindOne(ctx, bson.M{
		"_id":       email,
		"createdAt": bson.M{"$gt": time.Now().Add(-database.OTPLifetime)},
	}).Decode(&otp)
	if err != nil {
		return nil, mapErr(err)
	}
	return &otp, nil
}

func (r *OTPRepository) Delete(ctx context.Context, email string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": email})
	return err
}
