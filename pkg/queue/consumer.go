package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"campus-issue-reporting/pkg/report"
)

// Handler processes one event. Returning an error dead-letters the message.
type Handler func(ctx context.Context, e report.Event) error

type ConsumerConfig struct {
	Exchange    string
	Queue       string
	RoutingKeys []string
	Prefetch    int
}

// ConsumeEvents binds a durable queue to the exchange and feeds deliveries to handle until
// ctx is cancelled or the channel closes.
func ConsumeEvents(ctx context.Context, ch *amqp.Channel, cfg ConsumerConfig, log *slog.Logger, handle Handler) error {
	q, err := ch.QueueDeclare(
		cfg.Queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range cfg.RoutingKeys {
		if err := ch.QueueBind(q.Name, key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", q.Name, key, err)
		}
	}

	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set qos: %w", err)
		}
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Info("waiting for events", "queue", q.Name, "routing_keys", cfg.RoutingKeys)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			HandleDelivery(ctx, d, log, handle)
		}
	}
}

// HandleDelivery decodes, handles and settles a single delivery.
func HandleDelivery(ctx context.Context, d amqp.Delivery, log *slog.Logger, handle Handler) {
	var e report.Event
	if err := json.Unmarshal(d.Body, &e); err != nil {
		log.Warn("dropping undecodable message", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := handle(ctx, e); err != nil {
		log.Error("event handler failed", "type", e.Type, "report_id", e.ReportID, "error", err)
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}
