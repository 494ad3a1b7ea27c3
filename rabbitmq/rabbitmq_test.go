package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice-sync/config"
	"backoffice-sync/events"
	"backoffice-sync/outbox"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func newTestRabbit() (*RabbitMQ, *fakePublisher) {
	cfg := &config.Config{
		EventsExchange:  "backoffice_events",
		RefreshQueue:    "backoffice_refresh",
		DeadLetterQueue: "backoffice_dead_letter",
	}
	pub := &fakePublisher{}
	return &RabbitMQ{Cfg: cfg, pub: pub}, pub
}

func TestBridgeRoutesByEventName(t *testing.T) {
	r, pub := newTestRabbit()
	bus := events.NewBus()
	stop := r.Bridge(bus)

	bus.Emit(events.DataChanged, "customers")
	bus.Navigate("/customers", "/orders")
	stop()
	bus.Emit(events.SyncCompleted, nil)

	require.Len(t, pub.sent, 1)
	got := pub.sent[0]
	assert.Equal(t, "backoffice_events", got.exchange)
	assert.Equal(t, events.DataChanged, got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)

	var e events.Event
	require.NoError(t, json.Unmarshal(got.msg.Body, &e))
	assert.Equal(t, "customers", e.Payload)
}

func TestBridgeSurvivesPublishFailure(t *testing.T) {
	r, pub := newTestRabbit()
	pub.err = errors.New("channel closed")
	bus := events.NewBus()
	r.Bridge(bus)

	var delivered bool
	bus.Subscribe(events.DataChanged, func(events.Event) { delivered = true })
	bus.Emit(events.DataChanged, "products")

	assert.True(t, delivered)
}

func TestPublishDeadLetter(t *testing.T) {
	r, pub := newTestRabbit()

	err := r.PublishDeadLetter(outbox.Entry{ID: "e1", Kind: outbox.Order, Op: outbox.Upsert, EntityID: "o1", Attempts: 5})
	require.NoError(t, err)

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "backoffice_dead_letter_exchange", pub.sent[0].exchange)
	assert.Equal(t, "backoffice_dead_letter", pub.sent[0].key)

	var e outbox.Entry
	require.NoError(t, json.Unmarshal(pub.sent[0].msg.Body, &e))
	assert.Equal(t, "o1", e.EntityID)
	assert.Equal(t, 5, e.Attempts)
}

func TestPublishRefresh(t *testing.T) {
	r, pub := newTestRabbit()

	require.NoError(t, r.PublishRefresh("sync-orders"))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, RefreshRoutingKey, pub.sent[0].key)
	assert.Equal(t, "sync-orders", string(pub.sent[0].msg.Body))
}
