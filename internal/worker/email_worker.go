package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/artmarket/marketplace-api/internal/email"
	"github.com/artmarket/marketplace-api/internal/model"
	"github.com/artmarket/marketplace-api/internal/repository"
	"github.com/artmarket/marketplace-api/internal/service"
)

const (
	emailQueueName = service.EmailQueueName
	dlxExchange    = "emails.dlx"
	dlqQueueName   = "emails.dlq"
	idempotencyTTL = 24 * time.Hour
	sendTimeout    = 10 * time.Second
)

// EmailWorker consumes email events and delivers the corresponding mail.
// Delivery is best-effort by design: the order that triggered the event has
// already committed, so failures end up in the DLQ instead of anyone's
// transaction.
type EmailWorker struct {
	channel      *amqp.Channel
	orderRepo    repository.OrderRepository
	userRepo     repository.UserRepository
	deliveryRepo repository.DeliveryRepository
	sender       email.Sender
	redisClient  *redis.Client
	log          *slog.Logger
	done         chan struct{}
}

func NewEmailWorker(
	ch *amqp.Channel,
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	deliveryRepo repository.DeliveryRepository,
	sender email.Sender,
	redisClient *redis.Client,
	log *slog.Logger,
) *EmailWorker {
	return &EmailWorker{
		channel:      ch,
		orderRepo:    orderRepo,
		userRepo:     userRepo,
		deliveryRepo: deliveryRepo,
		sender:       sender,
		redisClient:  redisClient,
		log:          log,
		done:         make(chan struct{}),
	}
}

// SetupRabbitMQ declares exchanges, queues, and bindings (DLX/DLQ).
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, emailQueueName, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(emailQueueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": emailQueueName,
	}); err != nil {
		return fmt.Errorf("declare email queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *EmailWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(emailQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("email worker started")
	return nil
}

func (w *EmailWorker) Stop() { close(w.done) }

func (w *EmailWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var event model.EmailEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		w.log.Error("unmarshal email event", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("type", event.Type, "order_id", event.OrderID, "user_id", event.UserID)

	// Idempotency check via Redis: a redelivered event must not mail twice.
	idempotencyKey := fmt.Sprintf("email_sent:%s:%s", event.Type, event.OrderID)
	exists, err := w.redisClient.Exists(ctx, idempotencyKey).Result()
	if err != nil {
		log.Error("check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if exists > 0 {
		log.Info("email already sent, skipping")
		_ = msg.Ack(false)
		return
	}

	if err := w.sendEmail(ctx, event); err != nil {
		log.Error("send email failed", "error", err)
		_ = msg.Nack(false, false) // -> DLQ
		return
	}

	if err := w.redisClient.Set(ctx, idempotencyKey, "1", idempotencyTTL).Err(); err != nil {
		log.Error("set idempotency key", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("email sent")
}

func (w *EmailWorker) sendEmail(ctx context.Context, event model.EmailEvent) error {
	order, err := w.orderRepo.GetByID(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", event.OrderID)
	}

	user, err := w.userRepo.GetByID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user not found: %s", event.UserID)
	}

	var subject, body string
	switch event.Type {
	case model.EmailEventOrderConfirmation:
		subject, body = email.OrderConfirmationBody(order)
	case model.EmailEventOrderShipped:
		tracking := ""
		if delivery, err := w.deliveryRepo.GetByOrderID(ctx, order.ID); err == nil && delivery != nil {
			tracking = delivery.TrackingNumber
		}
		subject, body = email.OrderShippedBody(order, tracking)
	default:
		return fmt.Errorf("unknown email event type: %s", event.Type)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return w.sender.Send(sendCtx, user.Email, subject, body)
}
