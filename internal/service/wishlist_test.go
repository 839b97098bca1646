package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artmarket/marketplace-api/internal/model"
)

type mockWishlistRepo struct {
	wishlists map[uuid.UUID]*model.Wishlist    // by user id
	items     map[uuid.UUID]map[uuid.UUID]bool // wishlist id -> listing ids
}

func newMockWishlistRepo() *mockWishlistRepo {
	return &mockWishlistRepo{
		wishlists: make(map[uuid.UUID]*model.Wishlist),
		items:     make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (m *mockWishlistRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*model.Wishlist, error) {
	if wl, ok := m.wishlists[userID]; ok {
		return wl, nil
	}
	wl := &model.Wishlist{ID: uuid.New(), UserID: userID}
	m.wishlists[userID] = wl
	m.items[wl.ID] = make(map[uuid.UUID]bool)
	return wl, nil
}

func (m *mockWishlistRepo) GetWithItems(ctx context.Context, userID uuid.UUID) (*model.Wishlist, error) {
	wl, err := m.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &model.Wishlist{ID: wl.ID, UserID: wl.UserID}
	for listingID := range m.items[wl.ID] {
		out.Items = append(out.Items, model.WishlistItem{
			ID: uuid.New(), WishlistID: wl.ID, ListingID: listingID,
		})
	}
	return out, nil
}

func (m *mockWishlistRepo) AddItem(_ context.Context, item *model.WishlistItem) (bool, error) {
	if m.items[item.WishlistID][item.ListingID] {
		return false, nil
	}
	m.items[item.WishlistID][item.ListingID] = true
	return true, nil
}

func (m *mockWishlistRepo) RemoveItem(_ context.Context, wishlistID, listingID uuid.UUID) error {
	if !m.items[wishlistID][listingID] {
		return pgx.ErrNoRows
	}
	delete(m.items[wishlistID], listingID)
	return nil
}

func TestWishlistService_AddItem(t *testing.T) {
	listings := newMockListingRepo()
	svc := NewWishlistService(newMockWishlistRepo(), listings)
	l := newCartTestListing(listings, true)
	userID := uuid.New()

	wl, err := svc.AddItem(context.Background(), userID, l.ID)
	require.NoError(t, err)
	require.Len(t, wl.Items, 1)
	assert.Equal(t, l.ID, wl.Items[0].ListingID)
}

func TestWishlistService_AddItem_Duplicate(t *testing.T) {
	listings := newMockListingRepo()
	svc := NewWishlistService(newMockWishlistRepo(), listings)
	l := newCartTestListing(listings, true)
	userID := uuid.New()

	_, err := svc.AddItem(context.Background(), userID, l.ID)
	require.NoError(t, err)
	_, err = svc.AddItem(context.Background(), userID, l.ID)
	assert.ErrorIs(t, err, ErrDuplicateWishlistItem)
}

func TestWishlistService_AddItem_UnavailableListing(t *testing.T) {
	listings := newMockListingRepo()
	svc := NewWishlistService(newMockWishlistRepo(), listings)
	l := newCartTestListing(listings, false)

	_, err := svc.AddItem(context.Background(), uuid.New(), l.ID)
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestWishlistService_RemoveItem_NotFound(t *testing.T) {
	svc := NewWishlistService(newMockWishlistRepo(), newMockListingRepo())
	_, err := svc.RemoveItem(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrWishlistItemNotFound)
}
