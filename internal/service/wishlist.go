package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/artmarket/marketplace-api/internal/model"
	"github.com/artmarket/marketplace-api/internal/repository"
)

type WishlistService struct {
	wishlistRepo repository.WishlistRepository
	listingRepo  repository.ListingRepository
}

func NewWishlistService(wishlistRepo repository.WishlistRepository, listingRepo repository.ListingRepository) *WishlistService {
	return &WishlistService{wishlistRepo: wishlistRepo, listingRepo: listingRepo}
}

func (s *WishlistService) GetWishlist(ctx context.Context, userID uuid.UUID) (*model.Wishlist, error) {
	wl, err := s.wishlistRepo.GetWithItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get wishlist: %w", err)
	}
	return wl, nil
}

func (s *WishlistService) AddItem(ctx context.Context, userID, listingID uuid.UUID) (*model.Wishlist, error) {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if listing == nil || !listing.IsAvailable {
		return nil, ErrListingNotFound
	}

	wl, err := s.wishlistRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create wishlist: %w", err)
	}

	inserted, err := s.wishlistRepo.AddItem(ctx, &model.WishlistItem{
		WishlistID: wl.ID,
		ListingID:  listingID,
	})
	if err != nil {
		return nil, fmt.Errorf("add wishlist item: %w", err)
	}
	if !inserted {
		return nil, ErrDuplicateWishlistItem
	}

	return s.wishlistRepo.GetWithItems(ctx, userID)
}

func (s *WishlistService) RemoveItem(ctx context.Context, userID, listingID uuid.UUID) (*model.Wishlist, error) {
	wl, err := s.wishlistRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get wishlist: %w", err)
	}

	if err := s.wishlistRepo.RemoveItem(ctx, wl.ID, listingID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWishlistItemNotFound
		}
		return nil, fmt.Errorf("remove wishlist item: %w", err)
	}

	return s.wishlistRepo.GetWithItems(ctx, userID)
}
