package email

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/artmarket/marketplace-api/internal/model"
)

func TestOrderConfirmationBody(t *testing.T) {
	order := &model.Order{
		ID:          uuid.New(),
		Status:      model.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("45.50"),
		Items: []model.OrderItem{
			{ListingID: uuid.New(), Quantity: 2, Price: decimal.RequireFromString("20.00")},
		},
	}

	subject, body := OrderConfirmationBody(order)
	assert.Contains(t, subject, order.ID.String())
	assert.Contains(t, body, "Total Amount: $45.50")
	assert.Contains(t, body, "Quantity: 2")
}

func TestOrderShippedBody(t *testing.T) {
	order := &model.Order{ID: uuid.New(), Status: model.OrderStatusShipped}

	subject, body := OrderShippedBody(order, "TRK-12345")
	assert.Contains(t, subject, order.ID.String())
	assert.Contains(t, body, "TRK-12345")

	_, withoutTracking := OrderShippedBody(order, "")
	assert.NotContains(t, withoutTracking, "Tracking Number")
}
