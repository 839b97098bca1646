package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"

	"github.com/artmarket/marketplace-api/internal/dto"
	"github.com/artmarket/marketplace-api/internal/model"
	"github.com/artmarket/marketplace-api/internal/payment"
	"github.com/artmarket/marketplace-api/internal/repository"
)

const (
	defaultCurrency = "usd"
	eventDedupeTTL  = 24 * time.Hour
)

type PaymentService struct {
	paymentRepo     repository.PaymentRepository
	orderRepo       repository.OrderRepository
	orders          *OrderService
	provider        payment.IntentProvider
	redisClient     *redis.Client
	webhookSecret   string
	providerTimeout time.Duration
	log             *slog.Logger
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	orderRepo repository.OrderRepository,
	orders *OrderService,
	provider payment.IntentProvider,
	redisClient *redis.Client,
	webhookSecret string,
	providerTimeout time.Duration,
	log *slog.Logger,
) *PaymentService {
	return &PaymentService{
		paymentRepo:     paymentRepo,
		orderRepo:       orderRepo,
		orders:          orders,
		provider:        provider,
		redisClient:     redisClient,
		webhookSecret:   webhookSecret,
		providerTimeout: providerTimeout,
		log:             log,
	}
}

// CreateIntent requests a provider-side payment intent for the order total
// and appends a pending payment attempt keyed by the provider's intent id.
// The intent itself moves no money; the buyer's client confirms it
// out-of-band and the webhook reconciler settles the result.
func (s *PaymentService) CreateIntent(ctx context.Context, buyerID uuid.UUID, req dto.CreatePaymentIntentRequest) (*dto.PaymentIntentResponse, error) {
	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	order, err := s.orderRepo.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.BuyerID != buyerID {
		return nil, ErrAccessDenied
	}
	if order.Status != model.OrderStatusPending {
		return nil, fmt.Errorf("%w: order is not awaiting payment", ErrInvalidInput)
	}
	if order.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	// Minor units via exact decimal shift; float truncation could lose a
	// cent.
	minorUnits := order.TotalAmount.Shift(2).Round(0).IntPart()

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	intent, err := s.provider.CreateIntent(callCtx, minorUnits, currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPaymentProvider, payment.ProviderMessage(err))
	}

	pmt := &model.Payment{
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		Provider:      "stripe",
		Status:        model.PaymentStatusPending,
		TransactionID: intent.ID,
	}
	if err := s.paymentRepo.Create(ctx, pmt); err != nil {
		return nil, fmt.Errorf("record payment attempt: %w", err)
	}

	return &dto.PaymentIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		PaymentID:       pmt.ID,
	}, nil
}

// ListByOrder returns the payment attempts recorded for the buyer's order,
// newest first.
func (s *PaymentService) ListByOrder(ctx context.Context, buyerID, orderID uuid.UUID) ([]model.Payment, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.BuyerID != buyerID {
		return nil, ErrAccessDenied
	}
	return s.paymentRepo.ListByOrder(ctx, orderID)
}

// HandleWebhook reconciles an asynchronous provider event against local
// state, exactly once per logical event. The signature is verified before
// anything in the payload is trusted; replays and unmatched intents are
// acknowledged without mutation. Internal failures after verification are
// returned so the provider's retry policy re-delivers the event.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := payment.VerifyEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch string(event.Type) {
	case payment.EventIntentSucceeded, payment.EventIntentFailed, payment.EventIntentCanceled:
	default:
		// Not actionable; acknowledge so the provider stops retrying.
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return fmt.Errorf("%w: malformed event payload", ErrInvalidInput)
	}

	log := s.log.With("event_id", event.ID, "event_type", event.Type, "intent_id", intent.ID)

	// Fast-path dedupe on the provider event id. Redis being down only
	// loses the shortcut; the payment status CAS below stays authoritative.
	dedupeKey := "stripe_event:" + event.ID
	if s.redisClient != nil {
		if seen, err := s.redisClient.Exists(ctx, dedupeKey).Result(); err == nil && seen > 0 {
			log.Info("webhook event already processed, skipping")
			return nil
		}
	}

	pmt, err := s.paymentRepo.GetByTransactionID(ctx, intent.ID)
	if err != nil {
		return fmt.Errorf("find payment: %w", err)
	}
	if pmt == nil {
		log.Warn("webhook event matches no payment, ignoring")
		return nil
	}

	switch string(event.Type) {
	case payment.EventIntentSucceeded:
		if err := s.settleSuccess(ctx, log, pmt); err != nil {
			return err
		}
	default:
		failed, err := s.paymentRepo.FailIfPending(ctx, pmt.ID)
		if err != nil {
			return fmt.Errorf("fail payment: %w", err)
		}
		if failed {
			log.Info("payment attempt failed", "order_id", pmt.OrderID)
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Set(ctx, dedupeKey, "1", eventDedupeTTL).Err(); err != nil {
			log.Error("set webhook dedupe key", "error", err)
		}
	}
	return nil
}

func (s *PaymentService) settleSuccess(ctx context.Context, log *slog.Logger, pmt *model.Payment) error {
	completed, err := s.paymentRepo.CompleteIfPending(ctx, pmt.ID)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	if completed {
		log.Info("payment completed", "order_id", pmt.OrderID)
	}

	// Drive the order forward whether or not this delivery won the payment
	// CAS: a replay after a crash between the two writes still confirms the
	// order, and the conditional status update keeps the transition (and its
	// notification) from ever applying twice.
	_, err = s.orders.UpdateStatus(ctx, SystemActor, pmt.OrderID, model.OrderStatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Already confirmed or further along.
			return nil
		}
		return fmt.Errorf("confirm order: %w", err)
	}
	return nil
}
