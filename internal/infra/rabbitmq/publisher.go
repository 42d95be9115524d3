package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
)

// LabelPublisher emits label events onto a topic exchange. The constructor
// declares the exchange and a durable default queue bound to the routing key,
// so events published before any consumer exists are not lost.
type LabelPublisher struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

func NewLabelPublisher(conn *amqp.Connection, exchange, routingKey, queue string) (*LabelPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind label queue: %w", err)
	}

	return &LabelPublisher{channel: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (p *LabelPublisher) PublishLabel(ctx context.Context, ev entity.LabelEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal label event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish label event: %w", err)
	}
	return nil
}

func (p *LabelPublisher) Close() error {
	return p.channel.Close()
}
