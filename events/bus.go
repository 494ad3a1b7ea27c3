// Package events is the in-process broadcast channel used to tell views that
// cached state changed.
package events

import (
	"log"
	"sync"
	"time"
)

const (
	DataChanged        = "data-changed"
	OrderStatusChanged = "order-status-changed"
	RouteChanging      = "route-changing"
	RouteChanged       = "route-changed"
	SyncCompleted      = "sync-completed"
	SyncFailed         = "sync-failed"
	PushFailed         = "push-failed"
)

// Event carries an optional From/To pair (navigation) and a free-form payload.
type Event struct {
	Name     string    `json:"name"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Payload  any       `json:"payload,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type Handler func(Event)

type subscription struct {
	id      uint64
	name    string // empty matches every event
	handler Handler
}

type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for events named name and returns a function that
// removes it.
func (b *Bus) Subscribe(name string, h Handler) func() {
	return b.add(name, h)
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) func() {
	return b.add("", h)
}

func (b *Bus) add(name string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e once to every listener registered at the time of the
// call, in registration order, on the calling goroutine. A panicking
// listener is logged and does not stop delivery.
func (b *Bus) Publish(e Event) {
	if e.Occurred.IsZero() {
		e.Occurred = time.Now()
	}

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.name == "" || s.name == e.Name {
			targets = append(targets, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		deliver(h, e)
	}
}

func deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[events] listener for %s panicked: %v", e.Name, r)
		}
	}()
	h(e)
}

// Emit publishes a payload-only event.
func (b *Bus) Emit(name string, payload any) {
	b.Publish(Event{Name: name, Payload: payload})
}

// Navigate publishes the route-changing / route-changed pair.
func (b *Bus) Navigate(from, to string) {
	b.Publish(Event{Name: RouteChanging, From: from, To: to})
	b.Publish(Event{Name: RouteChanged, From: from, To: to})
}
