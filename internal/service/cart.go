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

type CartService struct {
	cartRepo    repository.CartRepository
	listingRepo repository.ListingRepository
}

func NewCartService(cartRepo repository.CartRepository, listingRepo repository.ListingRepository) *CartService {
	return &CartService{cartRepo: cartRepo, listingRepo: listingRepo}
}

func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := s.cartRepo.GetWithItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// AddItem puts quantity units of the listing into the user's cart; if the
// listing is already there the quantities are summed. A delisted item
// already in the cart is left alone; checkout revalidates availability.
func (s *CartService) AddItem(ctx context.Context, userID, listingID uuid.UUID, quantity int) (*model.Cart, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if listing == nil || !listing.IsAvailable {
		return nil, ErrListingNotFound
	}

	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	if err := s.cartRepo.AddItem(ctx, &model.CartItem{
		CartID:    cart.ID,
		ListingID: listingID,
		Quantity:  quantity,
	}); err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	return s.cartRepo.GetWithItems(ctx, userID)
}

// UpdateItem sets the quantity for the (cart, listing) row. Quantity 0
// removes the row; negative quantities are rejected.
func (s *CartService) UpdateItem(ctx context.Context, userID, listingID uuid.UUID, quantity int) (*model.Cart, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}

	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	if quantity == 0 {
		err = s.cartRepo.RemoveItem(ctx, cart.ID, listingID)
	} else {
		err = s.cartRepo.UpdateQuantity(ctx, cart.ID, listingID, quantity)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("update cart item: %w", err)
	}

	return s.cartRepo.GetWithItems(ctx, userID)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, listingID uuid.UUID) (*model.Cart, error) {
	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	if err := s.cartRepo.RemoveItem(ctx, cart.ID, listingID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("remove cart item: %w", err)
	}

	return s.cartRepo.GetWithItems(ctx, userID)
}
