package repository

import (
	"context"
	"testing"
	"time"

	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func toDoc(t *testing.T, v any) bson.D {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	var d bson.D
	require.NoError(t, bson.Unmarshal(raw, &d))
	return d
}

func sampleOrder() models.Order {
	return models.Order{
		ID:           primitive.NewObjectID(),
		BuyerID:      primitive.NewObjectID(),
		Items:        []models.LineItem{{ProductID: primitive.NewObjectID(), Quantity: 2, SellerID: primitive.NewObjectID()}},
		Total:        640,
		PaymentState: models.PaymentPending,
		Status:       models.StatusPlaced,
		Address:      "4 Park Street, Kolkata",
		PlacedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestOrderRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("insert assigns an id", func(mt *mtest.T) {
		repo := NewOrderRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		order := sampleOrder()
		order.ID = primitive.NilObjectID
		require.NoError(mt, repo.Insert(ctx, &order))
		assert.False(mt, order.ID.IsZero())
	})

	mt.Run("duplicate gateway order id is a conflict", func(mt *mtest.T) {
		repo := NewOrderRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: desietsy.orders index: gatewayOrderId_1",
		}))

		order := sampleOrder()
		order.GatewayOrderID = "order_1"
		assert.ErrorIs(mt, repo.Insert(ctx, &order), models.ErrConflict)
	})

	mt.Run("find by id", func(mt *mtest.T) {
		repo := NewOrderRepository(mt.DB)
		want := sampleOrder()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "desietsy.orders", mtest.FirstBatch, toDoc(mt.T, want)))

		got, err := repo.FindByID(ctx, want.ID)
		require.NoError(mt, err)
		assert.Equal(mt, want.ID, got.ID)
		assert.Equal(mt, want.BuyerID, got.BuyerID)
		assert.Equal(mt, models.StatusPlaced, got.Status)
		assert.Equal(mt, want.Items, got.Items)
	})

	mt.Run("missing order is not found", func(mt *mtest.T) {
		repo := NewOrderRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "desietsy.orders", mtest.FirstBatch))

		_, err := repo.FindByID(ctx, primitive.NewObjectID())
		assert.ErrorIs(mt, err, models.ErrNotFound)
	})

	mt.Run("find by seller", func(mt *mtest.T) {
		repo := NewOrderRepository(mt.DB)
		a, b := sampleOrder(), sampleOrder()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "desietsy.orders", mtest.FirstBatch, toDoc(mt.T, a), toDoc(mt.T, b)))

		orders, err := repo.FindBySeller(ctx, a.Items[0].SellerID)
		require.NoError(mt, err)
		require.Len(mt, orders, 2)
		assert.Equal(mt, a.ID, orders[0].ID)
		assert.Equal(mt, b.ID, orders[1].ID)
	})

	mt.Run("update status returns the new document", func(mt *mtest.T) {
		repo := NewOrderRepository(mt.DB)
		updated := sampleOrder()
		updated.Status = models.StatusShipped
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: toDoc(mt.T, updated)},
		})

		got, err := repo.UpdateStatus(ctx, updated.ID, models.StatusShipped, StatusGuard{In: []models.FulfillmentStatus{models.StatusPlaced}})
		require.NoError(mt, err)
		assert.Equal(mt, models.StatusShipped, got.Status)
	})

	mt.Run("guard miss is not found", func(mt *mtest.T) {
		repo := NewOrderRepository(mt.DB)
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: nil},
		})

		_, err := repo.UpdateStatus(ctx, primitive.NewObjectID(), models.StatusCancelled, StatusGuard{NotIn: models.TerminalStatuses})
		assert.ErrorIs(mt, err, models.ErrNotFound)
	})
}

func TestPaymentRepositoryTransition(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("moves a matching intent", func(mt *mtest.T) {
		repo := NewPaymentRepository(mt.DB)
		intent := models.PaymentIntent{
			ID:             primitive.NewObjectID(),
			GatewayOrderID: "order_7",
			Amount:         120,
			AmountMinor:    12000,
			Currency:       "INR",
			Status:         models.IntentCaptured,
			PaymentID:      "pay_7",
		}
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: toDoc(mt.T, intent)},
		})

		got, err := repo.Transition(ctx, "order_7", []models.IntentStatus{models.IntentCreated}, models.IntentCaptured, bson.M{"paymentId": "pay_7"})
		require.NoError(mt, err)
		assert.Equal(mt, models.IntentCaptured, got.Status)
		assert.Equal(mt, "pay_7", got.PaymentID)
	})

	mt.Run("no intent in the from states", func(mt *mtest.T) {
		repo := NewPaymentRepository(mt.DB)
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: nil},
		})

		_, err := repo.Transition(ctx, "order_7", []models.IntentStatus{models.IntentCreated}, models.IntentExpired, nil)
		assert.ErrorIs(mt, err, models.ErrNotFound)
	})
}

func TestProductUpdateEmpty(t *testing.T) {
	assert.True(t, ProductUpdate{}.Empty())
	title := "Brass lamp"
	assert.False(t, ProductUpdate{Title: &title}.Empty())
}
