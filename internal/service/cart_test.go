package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artmarket/marketplace-api/internal/model"
)

type mockCartRepo struct {
	carts map[uuid.UUID]*model.Cart       // by user id
	items map[uuid.UUID]map[uuid.UUID]int // cart id -> listing id -> qty
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{
		carts: make(map[uuid.UUID]*model.Cart),
		items: make(map[uuid.UUID]map[uuid.UUID]int),
	}
}

func (m *mockCartRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	if cart, ok := m.carts[userID]; ok {
		return cart, nil
	}
	cart := &model.Cart{ID: uuid.New(), UserID: userID}
	m.carts[userID] = cart
	m.items[cart.ID] = make(map[uuid.UUID]int)
	return cart, nil
}

func (m *mockCartRepo) GetWithItems(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := m.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &model.Cart{ID: cart.ID, UserID: cart.UserID}
	for listingID, qty := range m.items[cart.ID] {
		out.Items = append(out.Items, model.CartItem{
			ID: uuid.New(), CartID: cart.ID, ListingID: listingID, Quantity: qty,
		})
	}
	return out, nil
}

func (m *mockCartRepo) AddItem(_ context.Context, item *model.CartItem) error {
	m.items[item.CartID][item.ListingID] += item.Quantity
	return nil
}

func (m *mockCartRepo) UpdateQuantity(_ context.Context, cartID, listingID uuid.UUID, quantity int) error {
	if _, ok := m.items[cartID][listingID]; !ok {
		return pgx.ErrNoRows
	}
	m.items[cartID][listingID] = quantity
	return nil
}

func (m *mockCartRepo) RemoveItem(_ context.Context, cartID, listingID uuid.UUID) error {
	if _, ok := m.items[cartID][listingID]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.items[cartID], listingID)
	return nil
}

func newCartTestListing(repo *mockListingRepo, available bool) *model.Listing {
	l := &model.Listing{
		ID: uuid.New(), SellerID: uuid.New(), Title: "Cyanotype No. 4",
		Price: decimal.RequireFromString("40.00"), Category: "photography", IsAvailable: available,
	}
	repo.listings[l.ID] = l
	return l
}

func TestCartService_AddItem(t *testing.T) {
	listings := newMockListingRepo()
	svc := NewCartService(newMockCartRepo(), listings)
	l := newCartTestListing(listings, true)
	userID := uuid.New()

	cart, err := svc.AddItem(context.Background(), userID, l.ID, 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	// Adding the same listing again sums the quantities.
	cart, err = svc.AddItem(context.Background(), userID, l.ID, 3)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestCartService_AddItem_InvalidQuantity(t *testing.T) {
	svc := NewCartService(newMockCartRepo(), newMockListingRepo())
	_, err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCartService_AddItem_UnavailableListing(t *testing.T) {
	listings := newMockListingRepo()
	svc := NewCartService(newMockCartRepo(), listings)
	l := newCartTestListing(listings, false)

	_, err := svc.AddItem(context.Background(), uuid.New(), l.ID, 1)
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestCartService_UpdateItem(t *testing.T) {
	listings := newMockListingRepo()
	svc := NewCartService(newMockCartRepo(), listings)
	l := newCartTestListing(listings, true)
	userID := uuid.New()

	_, err := svc.AddItem(context.Background(), userID, l.ID, 2)
	require.NoError(t, err)

	cart, err := svc.UpdateItem(context.Background(), userID, l.ID, 7)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 7, cart.Items[0].Quantity)
}

func TestCartService_UpdateItem_ZeroRemoves(t *testing.T) {
	listings := newMockListingRepo()
	svc := NewCartService(newMockCartRepo(), listings)
	l := newCartTestListing(listings, true)
	userID := uuid.New()

	_, err := svc.AddItem(context.Background(), userID, l.ID, 2)
	require.NoError(t, err)

	cart, err := svc.UpdateItem(context.Background(), userID, l.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCartService_UpdateItem_Negative(t *testing.T) {
	svc := NewCartService(newMockCartRepo(), newMockListingRepo())
	_, err := svc.UpdateItem(context.Background(), uuid.New(), uuid.New(), -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCartService_UpdateItem_NotInCart(t *testing.T) {
	svc := NewCartService(newMockCartRepo(), newMockListingRepo())
	_, err := svc.UpdateItem(context.Background(), uuid.New(), uuid.New(), 3)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
}

func TestCartService_RemoveItem_NotInCart(t *testing.T) {
	svc := NewCartService(newMockCartRepo(), newMockListingRepo())
	_, err := svc.RemoveItem(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrCartItemNotFound)
}
