package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artmarket/marketplace-api/internal/model"
)

func TestNotificationService_MarkRead(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := NewNotificationService(repo)
	userID := uuid.New()

	n := &model.Notification{UserID: userID, Title: "Order Placed", Message: "Your order has been placed"}
	require.NoError(t, repo.Create(context.Background(), n))
	id := repo.notifications[0].ID

	require.NoError(t, svc.MarkRead(context.Background(), userID, id))

	listed, err := svc.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Read)
}

func TestNotificationService_MarkRead_WrongUser(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := NewNotificationService(repo)

	n := &model.Notification{UserID: uuid.New(), Title: "Order Placed", Message: "Your order has been placed"}
	require.NoError(t, repo.Create(context.Background(), n))
	id := repo.notifications[0].ID

	err := svc.MarkRead(context.Background(), uuid.New(), id)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}
