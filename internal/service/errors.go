package service

import "errors"

var (
	// Validation failures (400-class).
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")

	// Missing entities (404-class).
	ErrListingNotFound      = errors.New("listing not found or unavailable")
	ErrOrderNotFound        = errors.New("order not found")
	ErrCartItemNotFound     = errors.New("item not found in cart")
	ErrWishlistItemNotFound = errors.New("item not found in wishlist")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrDeliveryNotFound     = errors.New("delivery not found")

	// Authorization (403-class).
	ErrAccessDenied = errors.New("access denied")

	// Collection uniqueness (400-class).
	ErrDuplicateWishlistItem = errors.New("item already in wishlist")

	// Payments.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrPaymentProvider  = errors.New("payment provider error")

	// Auth.
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
