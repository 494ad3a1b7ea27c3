package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(DataChanged, func(Event) { got = append(got, "first") })
	bus.SubscribeAll(func(Event) { got = append(got, "all") })
	bus.Subscribe(DataChanged, func(Event) { got = append(got, "second") })
	bus.Subscribe(OrderStatusChanged, func(Event) { got = append(got, "other") })

	bus.Emit(DataChanged, nil)

	assert.Equal(t, []string{"first", "all", "second"}, got)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsubscribe := bus.Subscribe(DataChanged, func(Event) { calls++ })

	bus.Emit(DataChanged, nil)
	unsubscribe()
	unsubscribe()
	bus.Emit(DataChanged, nil)

	assert.Equal(t, 1, calls)
}

func TestPanickingListenerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus()
	delivered := false
	bus.Subscribe(DataChanged, func(Event) { panic("boom") })
	bus.Subscribe(DataChanged, func(Event) { delivered = true })

	assert.NotPanics(t, func() { bus.Emit(DataChanged, nil) })
	assert.True(t, delivered)
}

func TestNavigateCarriesFromTo(t *testing.T) {
	bus := NewBus()
	var names []string
	bus.SubscribeAll(func(e Event) {
		names = append(names, e.Name)
		assert.Equal(t, "/customers", e.From)
		assert.Equal(t, "/orders", e.To)
		assert.False(t, e.Occurred.IsZero())
	})

	bus.Navigate("/customers", "/orders")

	assert.Equal(t, []string{RouteChanging, RouteChanged}, names)
}

func TestListenerMaySubscribeDuringPublish(t *testing.T) {
	bus := NewBus()
	late := 0
	bus.Subscribe(DataChanged, func(Event) {
		bus.Subscribe(DataChanged, func(Event) { late++ })
	})

	bus.Emit(DataChanged, nil)
	assert.Equal(t, 0, late)
	bus.Emit(DataChanged, nil)
	assert.Equal(t, 1, late)
}
