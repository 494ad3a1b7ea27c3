package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"backoffice-sync/config"
	"backoffice-sync/outbox"
	"backoffice-sync/reconcile"
)

// Syncer is the part of the back office the refresh queue drives.
type Syncer interface {
	RefreshAll(ctx context.Context) error
	SyncOrders(ctx context.Context) (reconcile.PushResult, error)
}

// StartRefreshConsumer consumes refresh triggers and dead letters until the
// channel closes.
func StartRefreshConsumer(ctx context.Context, ch *amqp.Channel, cfg *config.Config, s Syncer) error {
	msgs, err := ch.Consume(
		cfg.RefreshQueue,
		"backoffice-sync", // consumer tag
		false,             // auto-ack
		false,             // exclusive
		false,             // no-local
		false,             // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register refresh consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			processRefreshMessage(ctx, s, msg)
		}
	}()

	dlqMsgs, err := ch.Consume(
		cfg.DeadLetterQueue,
		"backoffice-sync-dlq", // consumer tag
		false,                 // auto-ack
		false,                 // exclusive
		false,                 // no-local
		false,                 // no-wait
		nil,
	)
	if err != nil {
		log.Printf("[consumers] failed to register DLQ consumer: %v", err)
		return nil
	}

	go func() {
		for msg := range dlqMsgs {
			processDeadLetterMessage(msg)
		}
	}()
	return nil
}

// processRefreshMessage acks handled commands. Unknown or failed commands are
// rejected without requeue so they land in the dead-letter queue.
func processRefreshMessage(ctx context.Context, s Syncer, msg amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[consumers] recovered from panic in refresh message: %v", r)
			_ = msg.Nack(false, false)
		}
	}()

	command := strings.TrimSpace(string(msg.Body))
	log.Printf("[consumers] processing refresh command %q", command)

	var err error
	switch command {
	case "refresh":
		err = s.RefreshAll(ctx)
	case "sync-orders":
		var res reconcile.PushResult
		res, err = s.SyncOrders(ctx)
		if err == nil && res.Failed > 0 {
			log.Printf("[consumers] sync-orders left %d orders unpushed", res.Failed)
		}
	default:
		err = fmt.Errorf("unknown command %q", command)
	}

	if err != nil {
		log.Printf("[consumers] refresh command %q failed: %v", command, err)
		if nackErr := msg.Nack(false, false); nackErr != nil {
			log.Printf("[consumers] nack failed: %v", nackErr)
		}
		return
	}

	if ackErr := msg.Ack(false); ackErr != nil {
		log.Printf("[consumers] ack failed: %v", ackErr)
	}
}

func processDeadLetterMessage(msg amqp.Delivery) {
	var e outbox.Entry
	if msg.ContentType == "application/json" && json.Unmarshal(msg.Body, &e) == nil && e.ID != "" {
		log.Printf("[consumers] dead letter: %s %s %s after %d attempts: %s", e.Op, e.Kind, e.EntityID, e.Attempts, e.LastError)
	} else {
		log.Printf("[consumers] dead letter: %s", msg.Body)
	}
	if err := msg.Ack(false); err != nil {
		log.Printf("[consumers] ack failed: %v", err)
	}
}
