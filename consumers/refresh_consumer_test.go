package consumers

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"backoffice-sync/reconcile"
)

type ackRecorder struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

type fakeSyncer struct {
	refreshes  int
	syncs      int
	refreshErr error
	panicOnRun bool
}

func (f *fakeSyncer) RefreshAll(context.Context) error {
	if f.panicOnRun {
		panic("boom")
	}
	f.refreshes++
	return f.refreshErr
}

func (f *fakeSyncer) SyncOrders(context.Context) (reconcile.PushResult, error) {
	f.syncs++
	return reconcile.PushResult{Succeeded: 2, Failed: 1}, nil
}

func delivery(body string) (amqp.Delivery, *ackRecorder) {
	ack := &ackRecorder{}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(body)}, ack
}

func TestRefreshCommands(t *testing.T) {
	s := &fakeSyncer{}

	msg, ack := delivery("refresh\n")
	processRefreshMessage(context.Background(), s, msg)
	assert.Equal(t, 1, s.refreshes)
	assert.True(t, ack.acked)

	msg, ack = delivery("sync-orders")
	processRefreshMessage(context.Background(), s, msg)
	assert.Equal(t, 1, s.syncs)
	assert.True(t, ack.acked)
}

func TestRefreshFailuresAreDeadLettered(t *testing.T) {
	cases := map[string]*fakeSyncer{
		"unknown": {},
		"refresh": {refreshErr: errors.New("remote down")},
	}
	for body, s := range cases {
		t.Run(body, func(t *testing.T) {
			msg, ack := delivery(body)
			processRefreshMessage(context.Background(), s, msg)
			assert.True(t, ack.nacked)
			assert.False(t, ack.requeue)
			assert.False(t, ack.acked)
		})
	}
}

func TestRefreshPanicIsRecovered(t *testing.T) {
	msg, ack := delivery("refresh")
	assert.NotPanics(t, func() {
		processRefreshMessage(context.Background(), &fakeSyncer{panicOnRun: true}, msg)
	})
	assert.True(t, ack.nacked)
}

func TestDeadLetterIsAcked(t *testing.T) {
	msg, ack := delivery(`{"id":"e1","kind":"order","op":"upsert","entity_id":"o1","attempts":5}`)
	msg.ContentType = "application/json"
	processDeadLetterMessage(msg)
	assert.True(t, ack.acked)

	msg, ack = delivery("not json")
	processDeadLetterMessage(msg)
	assert.True(t, ack.acked)
}
