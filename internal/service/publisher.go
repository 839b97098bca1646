package service

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/artmarket/marketplace-api/internal/model"
)

const EmailQueueName = "emails"

// EmailPublisher enqueues email events for asynchronous delivery. Publishing
// is a best-effort side channel; callers log failures and never propagate
// them.
type EmailPublisher interface {
	PublishEmailEvent(ctx context.Context, event model.EmailEvent) error
}

type amqpPublisher struct{ ch *amqp.Channel }

func NewEmailPublisher(ch *amqp.Channel) EmailPublisher {
	return &amqpPublisher{ch: ch}
}

func (p *amqpPublisher) PublishEmailEvent(ctx context.Context, event model.EmailEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal email event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", EmailQueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publish email event: %w", err)
	}
	return nil
}
