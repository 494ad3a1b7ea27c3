package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"backoffice-sync/config"
	"backoffice-sync/events"
	"backoffice-sync/outbox"
)

// RefreshRoutingKey routes refresh triggers from the events exchange to the
// refresh queue.
const RefreshRoutingKey = "refresh.request"

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Cfg     *config.Config

	pub publisher
}

func NewRabbitMQ(cfg *config.Config) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQ{
		Conn:    conn,
		Channel: ch,
		Cfg:     cfg,
		pub:     ch,
	}, nil
}

func (r *RabbitMQ) deadLetterExchange() string {
	return r.Cfg.DeadLetterQueue + "_exchange"
}

// SetupQueues declares the events exchange, the refresh queue and the
// dead-letter exchange and queue it rejects into.
func (r *RabbitMQ) SetupQueues() error {
	if err := r.Channel.ExchangeDeclare(
		r.deadLetterExchange(),
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	_, err := r.Channel.QueueDeclare(
		r.Cfg.DeadLetterQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-queue-type": "classic",
		},
	)
	if err != nil {
		return err
	}

	if err := r.Channel.QueueBind(
		r.Cfg.DeadLetterQueue,
		r.Cfg.DeadLetterQueue,
		r.deadLetterExchange(),
		false,
		nil,
	); err != nil {
		return err
	}

	if err := r.Channel.ExchangeDeclare(
		r.Cfg.EventsExchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	_, err = r.Channel.QueueDeclare(
		r.Cfg.RefreshQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    r.deadLetterExchange(),
			"x-dead-letter-routing-key": r.Cfg.DeadLetterQueue,
		},
	)
	if err != nil {
		return err
	}

	return r.Channel.QueueBind(
		r.Cfg.RefreshQueue,
		RefreshRoutingKey,
		r.Cfg.EventsExchange,
		false,
		nil,
	)
}

func (r *RabbitMQ) publishJSON(exchange, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		Body:         body,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.pub.PublishWithContext(ctx, exchange, key, false, false, msg)
}

// PublishEvent forwards a bus event to the events exchange, routed by its name.
func (r *RabbitMQ) PublishEvent(e events.Event) error {
	return r.publishJSON(r.Cfg.EventsExchange, e.Name, e)
}

// PublishRefresh asks every process consuming the refresh queue to run
// command ("refresh" or "sync-orders").
func (r *RabbitMQ) PublishRefresh(command string) error {
	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "text/plain",
		Body:         []byte(command),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.pub.PublishWithContext(ctx, r.Cfg.EventsExchange, RefreshRoutingKey, false, false, msg)
}

// PublishDeadLetter parks an outbox entry that ran out of attempts.
func (r *RabbitMQ) PublishDeadLetter(e outbox.Entry) error {
	return r.publishJSON(r.deadLetterExchange(), r.Cfg.DeadLetterQueue, e)
}

// Bridge republishes every bus event until the returned func is called.
// Route events stay in process.
func (r *RabbitMQ) Bridge(bus *events.Bus) func() {
	return bus.SubscribeAll(func(e events.Event) {
		if e.Name == events.RouteChanging || e.Name == events.RouteChanged {
			return
		}
		if err := r.PublishEvent(e); err != nil {
			log.Printf("[rabbitmq] publish %s failed: %v", e.Name, err)
		}
	})
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			log.Printf("[rabbitmq] close channel: %v", err)
		}
	}
	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil {
			log.Printf("[rabbitmq] close connection: %v", err)
		}
	}
}
