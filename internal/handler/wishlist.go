package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/artmarket/marketplace-api/internal/dto"
	"github.com/artmarket/marketplace-api/internal/middleware"
	"github.com/artmarket/marketplace-api/internal/model"
	"github.com/artmarket/marketplace-api/internal/service"
)

type WishlistHandler struct {
	wishlistService *service.WishlistService
}

func NewWishlistHandler(wishlistService *service.WishlistService) *WishlistHandler {
	return &WishlistHandler{wishlistService: wishlistService}
}

func (h *WishlistHandler) Get(c *gin.Context) {
	wl, err := h.wishlistService.GetWishlist(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toWishlistResponse(wl))
}

func (h *WishlistHandler) AddItem(c *gin.Context) {
	var req dto.AddWishlistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wl, err := h.wishlistService.AddItem(c.Request.Context(), middleware.GetUserID(c), req.ListingID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrListingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		case errors.Is(err, service.ErrDuplicateWishlistItem):
			c.JSON(http.StatusConflict, gin.H{"error": "listing already in wishlist"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, toWishlistResponse(wl))
}

func (h *WishlistHandler) RemoveItem(c *gin.Context) {
	listingID, err := uuid.Parse(c.Param("listingID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing ID"})
		return
	}

	wl, err := h.wishlistService.RemoveItem(c.Request.Context(), middleware.GetUserID(c), listingID)
	if err != nil {
		if errors.Is(err, service.ErrWishlistItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "wishlist item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toWishlistResponse(wl))
}

func toWishlistResponse(wl *model.Wishlist) dto.WishlistResponse {
	resp := dto.WishlistResponse{ID: wl.ID, Items: []dto.WishlistItemResponse{}}
	for _, item := range wl.Items {
		resp.Items = append(resp.Items, dto.WishlistItemResponse{
			ID:        item.ID,
			ListingID: item.ListingID,
		})
	}
	return resp
}
