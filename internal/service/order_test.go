package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artmarket/marketplace-api/internal/dto"
	"github.com/artmarket/marketplace-api/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockTx struct{ pgx.Tx }

func (mockTx) Commit(context.Context) error   { return nil }
func (mockTx) Rollback(context.Context) error { return nil }

type mockOrderRepo struct {
	orders      map[uuid.UUID]*model.Order
	sellerItems map[uuid.UUID][]uuid.UUID // order -> sellers with items in it
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		orders:      make(map[uuid.UUID]*model.Order),
		sellerItems: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *mockOrderRepo) BeginTx(_ context.Context) (pgx.Tx, error) {
	return mockTx{}, nil
}

func (m *mockOrderRepo) CreateWithItems(_ context.Context, _ pgx.Tx, order *model.Order) error {
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	m.orders[order.ID] = order
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	return m.orders[id], nil
}

func (m *mockOrderRepo) ListByBuyer(_ context.Context, buyerID uuid.UUID) ([]model.Order, error) {
	var orders []model.Order
	for _, o := range m.orders {
		if o.BuyerID == buyerID {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (m *mockOrderRepo) ListBySeller(_ context.Context, sellerID uuid.UUID) ([]model.Order, error) {
	var orders []model.Order
	for id, o := range m.orders {
		for _, s := range m.sellerItems[id] {
			if s == sellerID {
				orders = append(orders, *o)
				break
			}
		}
	}
	return orders, nil
}

func (m *mockOrderRepo) SellerHasItems(_ context.Context, orderID, sellerID uuid.UUID) (bool, error) {
	for _, s := range m.sellerItems[orderID] {
		if s == sellerID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

type mockDeliveryRepo struct {
	deliveries map[uuid.UUID]*model.Delivery // by order id
}

func newMockDeliveryRepo() *mockDeliveryRepo {
	return &mockDeliveryRepo{deliveries: make(map[uuid.UUID]*model.Delivery)}
}

func (m *mockDeliveryRepo) CreateIfAbsent(_ context.Context, d *model.Delivery) (bool, error) {
	if _, ok := m.deliveries[d.OrderID]; ok {
		return false, nil
	}
	d.ID = uuid.New()
	m.deliveries[d.OrderID] = d
	return true, nil
}

func (m *mockDeliveryRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*model.Delivery, error) {
	return m.deliveries[orderID], nil
}

func (m *mockDeliveryRepo) Update(_ context.Context, d *model.Delivery) error {
	m.deliveries[d.OrderID] = d
	return nil
}

type mockNotificationRepo struct {
	notifications []model.Notification
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	n.ID = uuid.New()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Notification, error) {
	var out []model.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID uuid.UUID) error {
	for i, n := range m.notifications {
		if n.ID == id && n.UserID == userID {
			m.notifications[i].Read = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

type mockPublisher struct {
	events []model.EmailEvent
}

func (m *mockPublisher) PublishEmailEvent(_ context.Context, event model.EmailEvent) error {
	m.events = append(m.events, event)
	return nil
}

type orderTestEnv struct {
	svc           *OrderService
	orders        *mockOrderRepo
	listings      *mockListingRepo
	carts         *mockCartRepo
	deliveries    *mockDeliveryRepo
	notifications *mockNotificationRepo
	publisher     *mockPublisher
}

func newOrderTestEnv() *orderTestEnv {
	env := &orderTestEnv{
		orders:        newMockOrderRepo(),
		listings:      newMockListingRepo(),
		carts:         newMockCartRepo(),
		deliveries:    newMockDeliveryRepo(),
		notifications: &mockNotificationRepo{},
		publisher:     &mockPublisher{},
	}
	env.svc = NewOrderService(env.orders, env.listings, env.carts, env.deliveries, env.notifications, env.publisher, testLogger())
	return env
}

func (env *orderTestEnv) addListing(price string, available bool) *model.Listing {
	l := &model.Listing{
		ID:          uuid.New(),
		SellerID:    uuid.New(),
		Title:       "Sunset Over Harbor",
		Price:       decimal.RequireFromString(price),
		Category:    "painting",
		IsAvailable: available,
	}
	env.listings.listings[l.ID] = l
	return l
}

func validShipping() dto.ShippingDetails {
	return dto.ShippingDetails{
		FullName:   "Jamie Collector",
		Address:    "12 Gallery Lane",
		City:       "Lisbon",
		Country:    "Portugal",
		PostalCode: "1100-341",
	}
}

func TestOrderService_CreateOrder(t *testing.T) {
	env := newOrderTestEnv()
	a := env.addListing("10.00", true)
	b := env.addListing("25.50", true)
	buyerID := uuid.New()

	order, err := env.svc.CreateOrder(context.Background(), buyerID, dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{
			{ListingID: a.ID, Quantity: 2},
			{ListingID: b.ID, Quantity: 1},
		},
		Shipping: validShipping(),
	})
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("45.50")), "total %s", order.TotalAmount)
	require.Len(t, order.Items, 2)
	// Line prices are line totals, frozen at order time.
	assert.True(t, order.Items[0].Price.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, order.Items[1].Price.Equal(decimal.RequireFromString("25.50")))

	require.Len(t, env.notifications.notifications, 1)
	assert.Equal(t, buyerID, env.notifications.notifications[0].UserID)
	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, model.EmailEventOrderConfirmation, env.publisher.events[0].Type)
}

func TestOrderService_CreateOrder_EmptyItems(t *testing.T) {
	env := newOrderTestEnv()
	_, err := env.svc.CreateOrder(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Shipping: validShipping(),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOrderService_CreateOrder_ZeroQuantity(t *testing.T) {
	env := newOrderTestEnv()
	l := env.addListing("10.00", true)
	_, err := env.svc.CreateOrder(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items:    []dto.OrderLineRequest{{ListingID: l.ID, Quantity: 0}},
		Shipping: validShipping(),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOrderService_CreateOrder_MissingShippingField(t *testing.T) {
	env := newOrderTestEnv()
	l := env.addListing("10.00", true)
	shipping := validShipping()
	shipping.PostalCode = "   "
	_, err := env.svc.CreateOrder(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items:    []dto.OrderLineRequest{{ListingID: l.ID, Quantity: 1}},
		Shipping: shipping,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOrderService_CreateOrder_UnavailableListingAbortsAll(t *testing.T) {
	env := newOrderTestEnv()
	good := env.addListing("10.00", true)
	gone := env.addListing("99.00", false)

	_, err := env.svc.CreateOrder(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{
			{ListingID: good.ID, Quantity: 1},
			{ListingID: gone.ID, Quantity: 1},
		},
		Shipping: validShipping(),
	})
	assert.ErrorIs(t, err, ErrListingNotFound)
	assert.Empty(t, env.orders.orders, "no partial order may survive")
	assert.Empty(t, env.notifications.notifications)
	assert.Empty(t, env.publisher.events)
}

func TestOrderService_CreateOrder_RemovesOrderedItemsFromCart(t *testing.T) {
	env := newOrderTestEnv()
	l := env.addListing("10.00", true)
	buyerID := uuid.New()

	cart, err := env.carts.GetOrCreate(context.Background(), buyerID)
	require.NoError(t, err)
	require.NoError(t, env.carts.AddItem(context.Background(), &model.CartItem{
		CartID: cart.ID, ListingID: l.ID, Quantity: 2,
	}))

	_, err = env.svc.CreateOrder(context.Background(), buyerID, dto.CreateOrderRequest{
		Items:    []dto.OrderLineRequest{{ListingID: l.ID, Quantity: 2}},
		Shipping: validShipping(),
	})
	require.NoError(t, err)

	after, err := env.carts.GetWithItems(context.Background(), buyerID)
	require.NoError(t, err)
	assert.Empty(t, after.Items)
}

func TestOrderService_UpdateStatus(t *testing.T) {
	env := newOrderTestEnv()
	buyerID := uuid.New()
	order := &model.Order{ID: uuid.New(), BuyerID: buyerID, Status: model.OrderStatusPending}
	env.orders.orders[order.ID] = order

	updated, err := env.svc.UpdateStatus(context.Background(), Actor{ID: buyerID, Role: model.RoleBuyer}, order.ID, model.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, updated.Status)
	require.Len(t, env.notifications.notifications, 1)
}

func TestOrderService_UpdateStatus_IllegalEdge(t *testing.T) {
	env := newOrderTestEnv()
	buyerID := uuid.New()
	order := &model.Order{ID: uuid.New(), BuyerID: buyerID, Status: model.OrderStatusPending}
	env.orders.orders[order.ID] = order

	_, err := env.svc.UpdateStatus(context.Background(), Actor{ID: buyerID, Role: model.RoleBuyer}, order.ID, model.OrderStatusShipped)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.OrderStatusPending, order.Status)
}

func TestOrderService_UpdateStatus_TerminalStates(t *testing.T) {
	env := newOrderTestEnv()
	buyerID := uuid.New()

	for _, terminal := range []model.OrderStatus{model.OrderStatusDelivered, model.OrderStatusCancelled} {
		order := &model.Order{ID: uuid.New(), BuyerID: buyerID, Status: terminal}
		env.orders.orders[order.ID] = order
		_, err := env.svc.UpdateStatus(context.Background(), Actor{ID: buyerID, Role: model.RoleBuyer}, order.ID, model.OrderStatusCancelled)
		assert.ErrorIs(t, err, ErrInvalidTransition, "from %s", terminal)
	}
}

func TestOrderService_UpdateStatus_UnknownStatus(t *testing.T) {
	env := newOrderTestEnv()
	_, err := env.svc.UpdateStatus(context.Background(), SystemActor, uuid.New(), model.OrderStatus("misplaced"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOrderService_UpdateStatus_StrangerDenied(t *testing.T) {
	env := newOrderTestEnv()
	order := &model.Order{ID: uuid.New(), BuyerID: uuid.New(), Status: model.OrderStatusPending}
	env.orders.orders[order.ID] = order

	_, err := env.svc.UpdateStatus(context.Background(), Actor{ID: uuid.New(), Role: model.RoleBuyer}, order.ID, model.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestOrderService_UpdateStatus_SellerAuthorization(t *testing.T) {
	env := newOrderTestEnv()
	sellerID := uuid.New()
	order := &model.Order{ID: uuid.New(), BuyerID: uuid.New(), Status: model.OrderStatusConfirmed}
	env.orders.orders[order.ID] = order
	env.orders.sellerItems[order.ID] = []uuid.UUID{sellerID}

	_, err := env.svc.UpdateStatus(context.Background(), Actor{ID: uuid.New(), Role: model.RoleSeller}, order.ID, model.OrderStatusProcessing)
	assert.ErrorIs(t, err, ErrAccessDenied)

	updated, err := env.svc.UpdateStatus(context.Background(), Actor{ID: sellerID, Role: model.RoleSeller}, order.ID, model.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, updated.Status)
}

func TestOrderService_UpdateStatus_ShippedCreatesDeliveryOnce(t *testing.T) {
	env := newOrderTestEnv()
	buyerID := uuid.New()
	order := &model.Order{ID: uuid.New(), BuyerID: buyerID, Status: model.OrderStatusProcessing}
	env.orders.orders[order.ID] = order

	_, err := env.svc.UpdateStatus(context.Background(), SystemActor, order.ID, model.OrderStatusShipped)
	require.NoError(t, err)

	delivery := env.deliveries.deliveries[order.ID]
	require.NotNil(t, delivery)
	assert.Equal(t, "pending", delivery.Status)

	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, model.EmailEventOrderShipped, env.publisher.events[0].Type)

	// A pre-existing delivery suppresses the duplicate shipped email.
	order.Status = model.OrderStatusProcessing
	_, err = env.svc.UpdateStatus(context.Background(), SystemActor, order.ID, model.OrderStatusShipped)
	require.NoError(t, err)
	assert.Len(t, env.publisher.events, 1)
}

func TestOrderService_GetByID_AccessDenied(t *testing.T) {
	env := newOrderTestEnv()
	order := &model.Order{ID: uuid.New(), BuyerID: uuid.New(), Status: model.OrderStatusPending}
	env.orders.orders[order.ID] = order

	_, err := env.svc.GetByID(context.Background(), Actor{ID: uuid.New(), Role: model.RoleBuyer}, order.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestOrderService_List_ByRole(t *testing.T) {
	env := newOrderTestEnv()
	buyerID := uuid.New()
	sellerID := uuid.New()
	order := &model.Order{ID: uuid.New(), BuyerID: buyerID, Status: model.OrderStatusPending}
	env.orders.orders[order.ID] = order
	env.orders.sellerItems[order.ID] = []uuid.UUID{sellerID}

	asBuyer, err := env.svc.List(context.Background(), Actor{ID: buyerID, Role: model.RoleBuyer})
	require.NoError(t, err)
	assert.Len(t, asBuyer, 1)

	asSeller, err := env.svc.List(context.Background(), Actor{ID: sellerID, Role: model.RoleSeller})
	require.NoError(t, err)
	assert.Len(t, asSeller, 1)

	asOther, err := env.svc.List(context.Background(), Actor{ID: uuid.New(), Role: model.RoleBuyer})
	require.NoError(t, err)
	assert.Empty(t, asOther)
}

func TestOrderService_UpdateDelivery(t *testing.T) {
	env := newOrderTestEnv()
	sellerID := uuid.New()
	order := &model.Order{ID: uuid.New(), BuyerID: uuid.New(), Status: model.OrderStatusShipped}
	env.orders.orders[order.ID] = order
	env.orders.sellerItems[order.ID] = []uuid.UUID{sellerID}
	env.deliveries.deliveries[order.ID] = &model.Delivery{ID: uuid.New(), OrderID: order.ID, Status: "pending", Carrier: "standard"}

	tracking := "TRK-12345"
	status := "in_transit"
	updated, err := env.svc.UpdateDelivery(context.Background(), Actor{ID: sellerID, Role: model.RoleSeller}, order.ID, dto.UpdateDeliveryRequest{
		Status:         &status,
		TrackingNumber: &tracking,
	})
	require.NoError(t, err)
	assert.Equal(t, "in_transit", updated.Status)
	assert.Equal(t, "TRK-12345", updated.TrackingNumber)
	assert.Equal(t, "standard", updated.Carrier)
}

func TestOrderService_GetDelivery_NotFound(t *testing.T) {
	env := newOrderTestEnv()
	buyerID := uuid.New()
	order := &model.Order{ID: uuid.New(), BuyerID: buyerID, Status: model.OrderStatusPending}
	env.orders.orders[order.ID] = order

	_, err := env.svc.GetDelivery(context.Background(), Actor{ID: buyerID, Role: model.RoleBuyer}, order.ID)
	assert.ErrorIs(t, err, ErrDeliveryNotFound)
}
