package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/artmarket/marketplace-api/internal/dto"
	"github.com/artmarket/marketplace-api/internal/model"
	"github.com/artmarket/marketplace-api/internal/repository"
)

const listingCacheTTL = 60 * time.Second

var listingCategories = map[string]bool{
	"painting": true, "sculpture": true, "photography": true,
	"digital": true, "mixed-media": true, "textile": true,
}

type ListingService struct {
	listingRepo repository.ListingRepository
	redisClient *redis.Client
}

func NewListingService(listingRepo repository.ListingRepository, redisClient *redis.Client) *ListingService {
	return &ListingService{listingRepo: listingRepo, redisClient: redisClient}
}

func (s *ListingService) Create(ctx context.Context, sellerID uuid.UUID, req dto.CreateListingRequest) (*dto.ListingResponse, error) {
	if req.Price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: price must be greater than 0", ErrInvalidInput)
	}
	category := strings.ToLower(req.Category)
	if !listingCategories[category] {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, req.Category)
	}

	listing := &model.Listing{
		SellerID:    sellerID,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Category:    category,
		ImageURL:    req.ImageURL,
		IsAvailable: true,
	}
	if err := s.listingRepo.Create(ctx, listing); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	resp := toListingResponse(listing)
	return &resp, nil
}

func (s *ListingService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ListingResponse, error) {
	cacheKey := "listing:" + id.String()

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var resp dto.ListingResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		}
	}

	listing, err := s.listingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if listing == nil {
		return nil, ErrListingNotFound
	}

	resp := toListingResponse(listing)

	if s.redisClient != nil {
		if data, err := json.Marshal(resp); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, listingCacheTTL)
		}
	}

	return &resp, nil
}

func (s *ListingService) List(ctx context.Context, req dto.ListListingsRequest) (*dto.ListingListResponse, error) {
	offset := (req.Page - 1) * req.Limit
	listings, total, err := s.listingRepo.List(ctx, req.Limit, offset, req.Search, strings.ToLower(req.Category), req.Sort, req.Order)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}

	var items []dto.ListingResponse
	for _, l := range listings {
		items = append(items, toListingResponse(&l))
	}
	return &dto.ListingListResponse{Listings: items, Total: total, Page: req.Page, Limit: req.Limit}, nil
}

func (s *ListingService) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]dto.ListingResponse, error) {
	listings, err := s.listingRepo.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list seller listings: %w", err)
	}
	var items []dto.ListingResponse
	for _, l := range listings {
		items = append(items, toListingResponse(&l))
	}
	return items, nil
}

func (s *ListingService) Update(ctx context.Context, sellerID, id uuid.UUID, req dto.UpdateListingRequest) (*dto.ListingResponse, error) {
	listing, err := s.listingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if listing == nil {
		return nil, ErrListingNotFound
	}
	if listing.SellerID != sellerID {
		return nil, ErrAccessDenied
	}

	if req.Title != nil {
		listing.Title = *req.Title
	}
	if req.Description != nil {
		listing.Description = *req.Description
	}
	if req.Price != nil {
		if req.Price.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: price must be greater than 0", ErrInvalidInput)
		}
		listing.Price = *req.Price
	}
	if req.Category != nil {
		category := strings.ToLower(*req.Category)
		if !listingCategories[category] {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, *req.Category)
		}
		listing.Category = category
	}
	if req.ImageURL != nil {
		listing.ImageURL = *req.ImageURL
	}
	if req.IsAvailable != nil {
		listing.IsAvailable = *req.IsAvailable
	}

	if err := s.listingRepo.Update(ctx, listing); err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}

	s.invalidateCache(ctx, id)
	resp := toListingResponse(listing)
	return &resp, nil
}

func (s *ListingService) Delete(ctx context.Context, sellerID, id uuid.UUID) error {
	listing, err := s.listingRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get listing: %w", err)
	}
	if listing == nil {
		return ErrListingNotFound
	}
	if listing.SellerID != sellerID {
		return ErrAccessDenied
	}

	if err := s.listingRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	s.invalidateCache(ctx, id)
	return nil
}

func (s *ListingService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.redisClient != nil {
		s.redisClient.Del(ctx, "listing:"+id.String())
	}
}

func toListingResponse(l *model.Listing) dto.ListingResponse {
	return dto.ListingResponse{
		ID:          l.ID,
		SellerID:    l.SellerID,
		Title:       l.Title,
		Description: l.Description,
		Price:       l.Price,
		Category:    l.Category,
		ImageURL:    l.ImageURL,
		IsAvailable: l.IsAvailable,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}
