package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artmarket/marketplace-api/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role" binding:"omitempty,oneof=buyer seller"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
}

// --- Listing ---

type CreateListingRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	Category    string          `json:"category" binding:"required"`
	ImageURL    string          `json:"image_url"`
}

// UpdateListingRequest is an allow-list of mutable listing fields; nil means
// "leave unchanged". Fields are validated individually before being applied.
type UpdateListingRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
	ImageURL    *string          `json:"image_url"`
	IsAvailable *bool            `json:"is_available"`
}

type ListListingsRequest struct {
	Page     int    `form:"page,default=1" binding:"min=1"`
	Limit    int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search   string `form:"search"`
	Category string `form:"category"`
	Sort     string `form:"sort,default=created_at" binding:"oneof=title price created_at"`
	Order    string `form:"order,default=desc" binding:"oneof=asc desc"`
}

type ListingResponse struct {
	ID          uuid.UUID       `json:"id"`
	SellerID    uuid.UUID       `json:"seller_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url,omitempty"`
	IsAvailable bool            `json:"is_available"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ListingListResponse struct {
	Listings []ListingResponse `json:"listings"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// --- Cart / Wishlist ---

type AddCartItemRequest struct {
	ListingID uuid.UUID `json:"listing_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type CartItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ListingID uuid.UUID `json:"listing_id"`
	Quantity  int       `json:"quantity"`
}

type CartResponse struct {
	ID    uuid.UUID          `json:"id"`
	Items []CartItemResponse `json:"items"`
}

type AddWishlistItemRequest struct {
	ListingID uuid.UUID `json:"listing_id" binding:"required"`
}

type WishlistItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ListingID uuid.UUID `json:"listing_id"`
}

type WishlistResponse struct {
	ID    uuid.UUID              `json:"id"`
	Items []WishlistItemResponse `json:"items"`
}

// --- Order ---

type OrderLineRequest struct {
	ListingID uuid.UUID `json:"listing_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

type ShippingDetails struct {
	FullName   string `json:"full_name" binding:"required"`
	Address    string `json:"address" binding:"required"`
	City       string `json:"city" binding:"required"`
	Country    string `json:"country" binding:"required"`
	PostalCode string `json:"postal_code" binding:"required"`
}

type CreateOrderRequest struct {
	Items    []OrderLineRequest `json:"items" binding:"required"`
	Shipping ShippingDetails    `json:"shipping_details" binding:"required"`
}

type UpdateOrderStatusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required"`
}

type OrderItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	ListingID uuid.UUID       `json:"listing_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderResponse struct {
	ID                 uuid.UUID           `json:"id"`
	BuyerID            uuid.UUID           `json:"buyer_id"`
	Status             model.OrderStatus   `json:"status"`
	TotalAmount        decimal.Decimal     `json:"total_amount"`
	ShippingName       string              `json:"shipping_name"`
	ShippingAddress    string              `json:"shipping_address"`
	ShippingCity       string              `json:"shipping_city"`
	ShippingCountry    string              `json:"shipping_country"`
	ShippingPostalCode string              `json:"shipping_postal_code"`
	Items              []OrderItemResponse `json:"items"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

// --- Delivery ---

// UpdateDeliveryRequest carries the mutable shipment fields; nil means
// "leave unchanged".
type UpdateDeliveryRequest struct {
	Status            *string    `json:"status"`
	Carrier           *string    `json:"carrier"`
	TrackingNumber    *string    `json:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

type DeliveryResponse struct {
	ID                uuid.UUID  `json:"id"`
	OrderID           uuid.UUID  `json:"order_id"`
	Status            string     `json:"status"`
	Carrier           string     `json:"carrier"`
	TrackingNumber    string     `json:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// --- Payment ---

type CreatePaymentIntentRequest struct {
	OrderID  uuid.UUID `json:"order_id" binding:"required"`
	Currency string    `json:"currency" binding:"omitempty,len=3"`
}

type PaymentIntentResponse struct {
	ClientSecret    string    `json:"client_secret"`
	PaymentIntentID string    `json:"payment_intent_id"`
	PaymentID       uuid.UUID `json:"payment_id"`
}

type PaymentResponse struct {
	ID            uuid.UUID           `json:"id"`
	OrderID       uuid.UUID           `json:"order_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Provider      string              `json:"provider"`
	Status        model.PaymentStatus `json:"status"`
	TransactionID string              `json:"transaction_id"`
	CreatedAt     time.Time           `json:"created_at"`
}

// --- Notification ---

type NotificationResponse struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
