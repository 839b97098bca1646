package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FullName  string
	Role      string
	Address   string
	City      string
	Country   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Listing struct {
	ID          uuid.UUID
	SellerID    uuid.UUID
	Title       string
	Description string
	Price       decimal.Decimal
	Category    string
	ImageURL    string
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ListingID uuid.UUID
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Wishlist struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []WishlistItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

type WishlistItem struct {
	ID         uuid.UUID
	WishlistID uuid.UUID
	ListingID  uuid.UUID
	CreatedAt  time.Time
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// orderTransitions is the fixed edge set of the order state machine.
// delivered and cancelled are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
}

// ValidOrderStatus reports whether s is a known status value.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID                 uuid.UUID
	BuyerID            uuid.UUID
	Status             OrderStatus
	TotalAmount        decimal.Decimal
	ShippingName       string
	ShippingAddress    string
	ShippingCity       string
	ShippingCountry    string
	ShippingPostalCode string
	Items              []OrderItem
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OrderItem freezes a purchase line at order-creation time. Price is the
// line total (unit price x quantity), not the unit price; Order.TotalAmount
// is the sum of these frozen line totals and is never recomputed.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ListingID uuid.UUID
	Quantity  int
	Price     decimal.Decimal
	CreatedAt time.Time
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type Payment struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	Provider      string
	Status        PaymentStatus
	TransactionID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Delivery struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	Status            string
	Carrier           string
	TrackingNumber    string
	EstimatedDelivery *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	EmailEventOrderConfirmation = "order_confirmation"
	EmailEventOrderShipped      = "order_shipped"
)

// EmailEvent is the message published to the email queue for async delivery.
type EmailEvent struct {
	Type    string    `json:"type"`
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}
