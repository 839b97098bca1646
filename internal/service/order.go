package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/artmarket/marketplace-api/internal/dto"
	"github.com/artmarket/marketplace-api/internal/model"
	"github.com/artmarket/marketplace-api/internal/repository"
)

// Actor identifies who is requesting an order operation. The zero role with
// System set marks internal callers (the webhook reconciler) which bypass
// ownership checks.
type Actor struct {
	ID     uuid.UUID
	Role   string
	System bool
}

// SystemActor is the internal caller used by the webhook reconciler.
var SystemActor = Actor{System: true}

type OrderService struct {
	orderRepo        repository.OrderRepository
	listingRepo      repository.ListingRepository
	cartRepo         repository.CartRepository
	deliveryRepo     repository.DeliveryRepository
	notificationRepo repository.NotificationRepository
	publisher        EmailPublisher
	log              *slog.Logger
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	listingRepo repository.ListingRepository,
	cartRepo repository.CartRepository,
	deliveryRepo repository.DeliveryRepository,
	notificationRepo repository.NotificationRepository,
	publisher EmailPublisher,
	log *slog.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:        orderRepo,
		listingRepo:      listingRepo,
		cartRepo:         cartRepo,
		deliveryRepo:     deliveryRepo,
		notificationRepo: notificationRepo,
		publisher:        publisher,
		log:              log,
	}
}

// CreateOrder validates the requested lines and shipping payload, prices
// every line against the listing snapshot read inside the same transaction
// as the order write, and persists the order with its items atomically.
// Either the whole order exists afterwards or none of it does.
func (s *OrderService) CreateOrder(ctx context.Context, buyerID uuid.UUID, req dto.CreateOrderRequest) (*model.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order items are required", ErrInvalidInput)
	}
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
		}
	}
	if err := validateShipping(req.Shipping); err != nil {
		return nil, err
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		listing, err := s.listingRepo.GetAvailableTx(ctx, tx, line.ListingID)
		if err != nil {
			return nil, fmt.Errorf("get listing: %w", err)
		}
		if listing == nil {
			return nil, fmt.Errorf("%w: %s", ErrListingNotFound, line.ListingID)
		}

		// The stored line price is the line total, not the unit price;
		// TotalAmount is the sum of these frozen values.
		lineTotal := listing.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(lineTotal)
		items = append(items, model.OrderItem{
			ListingID: line.ListingID,
			Quantity:  line.Quantity,
			Price:     lineTotal,
		})
	}

	order := &model.Order{
		BuyerID:            buyerID,
		Status:             model.OrderStatusPending,
		TotalAmount:        total,
		ShippingName:       req.Shipping.FullName,
		ShippingAddress:    req.Shipping.Address,
		ShippingCity:       req.Shipping.City,
		ShippingCountry:    req.Shipping.Country,
		ShippingPostalCode: req.Shipping.PostalCode,
		Items:              items,
	}
	if err := s.orderRepo.CreateWithItems(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.removeOrderedFromCart(ctx, buyerID, req.Items)

	// Confirmation is a best-effort side channel; the order stands even if
	// it fails.
	s.notify(ctx, buyerID, "Order Placed",
		fmt.Sprintf("Your order #%s has been placed", order.ID))
	s.publishEmail(ctx, model.EmailEvent{
		Type:    model.EmailEventOrderConfirmation,
		OrderID: order.ID,
		UserID:  buyerID,
	})

	return order, nil
}

func validateShipping(sh dto.ShippingDetails) error {
	fields := map[string]string{
		"full_name":   sh.FullName,
		"address":     sh.Address,
		"city":        sh.City,
		"country":     sh.Country,
		"postal_code": sh.PostalCode,
	}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: shipping %s is required", ErrInvalidInput, name)
		}
	}
	return nil
}

func (s *OrderService) GetByID(ctx context.Context, actor Actor, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if err := s.authorize(ctx, actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

// List returns the caller's orders: buyers see orders they placed, sellers
// see orders containing at least one of their listings.
func (s *OrderService) List(ctx context.Context, actor Actor) ([]model.Order, error) {
	if actor.Role == model.RoleSeller {
		return s.orderRepo.ListBySeller(ctx, actor.ID)
	}
	return s.orderRepo.ListByBuyer(ctx, actor.ID)
}

// UpdateStatus applies a transition of the order state machine. Legal edges
// are pending->confirmed->processing->shipped->delivered plus cancellation
// from any non-terminal state. The status change commits first; the
// notification, email and lazy delivery record are best-effort afterwards.
func (s *OrderService) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, newStatus model.OrderStatus) (*model.Order, error) {
	if !model.ValidOrderStatus(newStatus) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, newStatus)
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if err := s.authorize(ctx, actor, order); err != nil {
		return nil, err
	}

	if !model.CanTransition(order.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, newStatus)
	}

	applied, err := s.orderRepo.UpdateStatus(ctx, orderID, order.Status, newStatus)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !applied {
		// A concurrent transition won the race; the stored status is no
		// longer what we validated against.
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, newStatus)
	}
	order.Status = newStatus

	s.notify(ctx, order.BuyerID, "Order Status Updated",
		fmt.Sprintf("Your order #%s status has been updated to %s", order.ID, newStatus))

	if newStatus == model.OrderStatusShipped {
		s.ensureDelivery(ctx, order)
	}

	return order, nil
}

// GetDelivery returns the shipment record for an order the actor may see.
func (s *OrderService) GetDelivery(ctx context.Context, actor Actor, orderID uuid.UUID) (*model.Delivery, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if err := s.authorize(ctx, actor, order); err != nil {
		return nil, err
	}

	delivery, err := s.deliveryRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	if delivery == nil {
		return nil, ErrDeliveryNotFound
	}
	return delivery, nil
}

// UpdateDelivery lets a seller with items in the order set carrier and
// tracking details once the shipment record exists.
func (s *OrderService) UpdateDelivery(ctx context.Context, actor Actor, orderID uuid.UUID, req dto.UpdateDeliveryRequest) (*model.Delivery, error) {
	delivery, err := s.GetDelivery(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	if req.Status != nil {
		delivery.Status = *req.Status
	}
	if req.Carrier != nil {
		delivery.Carrier = *req.Carrier
	}
	if req.TrackingNumber != nil {
		delivery.TrackingNumber = *req.TrackingNumber
	}
	if req.EstimatedDelivery != nil {
		delivery.EstimatedDelivery = req.EstimatedDelivery
	}

	if err := s.deliveryRepo.Update(ctx, delivery); err != nil {
		return nil, fmt.Errorf("update delivery: %w", err)
	}
	return delivery, nil
}

// authorize allows the owning buyer, a seller with at least one line item in
// the order, and the system actor. Everyone else is denied.
func (s *OrderService) authorize(ctx context.Context, actor Actor, order *model.Order) error {
	if actor.System {
		return nil
	}
	switch actor.Role {
	case model.RoleSeller:
		has, err := s.orderRepo.SellerHasItems(ctx, order.ID, actor.ID)
		if err != nil {
			return fmt.Errorf("check seller items: %w", err)
		}
		if !has {
			return ErrAccessDenied
		}
		return nil
	default:
		if order.BuyerID != actor.ID {
			return ErrAccessDenied
		}
		return nil
	}
}

func (s *OrderService) ensureDelivery(ctx context.Context, order *model.Order) {
	created, err := s.deliveryRepo.CreateIfAbsent(ctx, &model.Delivery{
		OrderID: order.ID,
		Status:  "pending",
		Carrier: "standard",
	})
	if err != nil {
		s.log.Error("create delivery", "order_id", order.ID, "error", err)
		return
	}
	if created {
		s.publishEmail(ctx, model.EmailEvent{
			Type:    model.EmailEventOrderShipped,
			OrderID: order.ID,
			UserID:  order.BuyerID,
		})
	}
}

// removeOrderedFromCart drops just-purchased listings from the buyer's cart.
// Best-effort: a line that was never in the cart is not an error.
func (s *OrderService) removeOrderedFromCart(ctx context.Context, buyerID uuid.UUID, lines []dto.OrderLineRequest) {
	if s.cartRepo == nil {
		return
	}
	cart, err := s.cartRepo.GetOrCreate(ctx, buyerID)
	if err != nil {
		s.log.Error("get cart", "user_id", buyerID, "error", err)
		return
	}
	for _, line := range lines {
		if err := s.cartRepo.RemoveItem(ctx, cart.ID, line.ListingID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			s.log.Error("remove ordered cart item", "listing_id", line.ListingID, "error", err)
		}
	}
}

func (s *OrderService) notify(ctx context.Context, userID uuid.UUID, title, message string) {
	err := s.notificationRepo.Create(ctx, &model.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
	})
	if err != nil {
		s.log.Error("create notification", "user_id", userID, "error", err)
	}
}

func (s *OrderService) publishEmail(ctx context.Context, event model.EmailEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEmailEvent(ctx, event); err != nil {
		s.log.Error("publish email event", "type", event.Type, "order_id", event.OrderID, "error", err)
	}
}
