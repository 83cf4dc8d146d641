// Package repository holds the MongoDB access code for every collection.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/desietsy/desietsy-backend-go/models"
	"go.mongodb.org/mongo-driver/mongo"
)

const queryTimeout = 10 * time.Second

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

// mapErr converts driver errors to the domain sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return models.ErrConflict
	default:
		return err
	}
}
