// Package outbox keeps the list of local changes that still have to be pushed
// to the remote store. The list is persisted so a restarted process resumes
// pushing where the previous one stopped.
package outbox

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"backoffice-sync/metrics"
	"backoffice-sync/storage"
)

const storageKey = "outbox"

type Kind string

const (
	Customer Kind = "customer"
	Product  Kind = "product"
	Order    Kind = "order"
	Shipment Kind = "shipment"
)

type Op string

const (
	Upsert Op = "upsert"
	Delete Op = "delete"
)

// Entry is one pending push. ParentID is the owning customer for orders.
type Entry struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Op         Op        `json:"op"`
	EntityID   string    `json:"entity_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	// Revision grows each time a later change collapses into this entry.
	Revision int `json:"revision"`
}

// Pusher performs the remote side of an entry.
type Pusher interface {
	Push(ctx context.Context, e Entry) error
}

type PushFunc func(ctx context.Context, e Entry) error

func (f PushFunc) Push(ctx context.Context, e Entry) error { return f(ctx, e) }

type DrainResult struct {
	Attempted    int     `json:"attempted"`
	Pushed       int     `json:"pushed"`
	Failed       int     `json:"failed"`
	DeadLettered []Entry `json:"dead_lettered,omitempty"`
}

type Queue struct {
	mu          sync.Mutex
	drainMu     sync.Mutex
	storage     storage.Storage
	entries     []Entry
	maxAttempts int
	onDead      []func(Entry)
	now         func() time.Time
}

// New loads the persisted queue. A missing or corrupt snapshot starts empty.
func New(st storage.Storage, maxAttempts int) *Queue {
	q := &Queue{storage: st, maxAttempts: maxAttempts, now: time.Now}

	raw, ok, err := st.Get(storageKey)
	switch {
	case err != nil:
		log.Printf("[outbox] failed to read pending pushes: %v", err)
	case ok:
		if err := json.Unmarshal([]byte(raw), &q.entries); err != nil {
			log.Printf("[outbox] discarding corrupt outbox: %v", err)
			q.entries = nil
		}
	}
	metrics.SetOutboxPending(len(q.entries))
	return q
}

// OnDeadLetter registers h for entries dropped after the last attempt.
func (q *Queue) OnDeadLetter(h func(Entry)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDead = append(q.onDead, h)
}

// Enqueue records a change. A change matching a pending entry on kind, op and
// entity collapses into it. A delete supersedes pending upserts of the same
// entity, and a customer delete also supersedes upserts of its orders.
func (q *Queue) Enqueue(kind Kind, op Op, entityID, parentID string) Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if op == Delete {
		kept := q.entries[:0]
		for _, e := range q.entries {
			if e.Op == Upsert && e.Kind == kind && e.EntityID == entityID {
				continue
			}
			if kind == Customer && e.Op == Upsert && e.Kind == Order && e.ParentID == entityID {
				continue
			}
			kept = append(kept, e)
		}
		q.entries = kept
	}

	for i, e := range q.entries {
		if e.Kind == kind && e.Op == op && e.EntityID == entityID {
			q.entries[i].Revision++
			if parentID != "" {
				q.entries[i].ParentID = parentID
			}
			q.persist()
			return q.entries[i]
		}
	}

	e := Entry{
		ID:         uuid.NewString(),
		Kind:       kind,
		Op:         op,
		EntityID:   entityID,
		ParentID:   parentID,
		EnqueuedAt: q.now(),
	}
	q.entries = append(q.entries, e)
	q.persist()
	return e
}

func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// HasPending reports whether an upsert of the entity still waits to be pushed.
func (q *Queue) HasPending(kind Kind, entityID string) bool {
	return q.has(kind, Upsert, entityID)
}

// HasPendingDelete reports whether a delete of the entity still waits to be pushed.
func (q *Queue) HasPendingDelete(kind Kind, entityID string) bool {
	return q.has(kind, Delete, entityID)
}

func (q *Queue) has(kind Kind, op Op, entityID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.Kind == kind && e.Op == op && e.EntityID == entityID {
			return true
		}
	}
	return false
}

// Drain attempts every pending entry once, in enqueue order. Only one drain
// runs at a time.
func (q *Queue) Drain(ctx context.Context, p Pusher) DrainResult {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	var res DrainResult
	for _, e := range q.Pending() {
		if ctx.Err() != nil {
			break
		}
		res.Attempted++
		err := p.Push(ctx, e)
		if err == nil {
			res.Pushed++
			q.settle(e)
			metrics.RecordOutboxPush(string(e.Kind), "success")
			continue
		}

		res.Failed++
		log.Printf("[outbox] push %s %s %s failed (attempt %d): %v", e.Op, e.Kind, e.EntityID, e.Attempts+1, err)
		if dead, ok := q.fail(e, err); ok {
			res.DeadLettered = append(res.DeadLettered, dead)
			metrics.RecordOutboxPush(string(e.Kind), "dead")
		} else {
			metrics.RecordOutboxPush(string(e.Kind), "error")
		}
	}

	if len(res.DeadLettered) > 0 {
		q.mu.Lock()
		handlers := append([]func(Entry){}, q.onDead...)
		q.mu.Unlock()
		for _, dead := range res.DeadLettered {
			log.Printf("[outbox] giving up on %s %s %s after %d attempts: %s", dead.Op, dead.Kind, dead.EntityID, dead.Attempts, dead.LastError)
			for _, h := range handlers {
				h(dead)
			}
		}
	}
	return res
}

// settle removes a pushed entry unless a newer change collapsed into it while
// the push was running.
func (q *Queue) settle(pushed Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.ID != pushed.ID {
			continue
		}
		if e.Revision == pushed.Revision {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.persist()
		}
		return
	}
}

func (q *Queue) fail(attempted Entry, err error) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].ID != attempted.ID {
			continue
		}
		q.entries[i].Attempts++
		q.entries[i].LastError = err.Error()
		e := q.entries[i]
		if q.maxAttempts > 0 && e.Attempts >= q.maxAttempts {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.persist()
			return e, true
		}
		q.persist()
		return e, false
	}
	return Entry{}, false
}

// persist must be called with mu held. Failures are logged; the in-memory
// queue stays authoritative for this process.
func (q *Queue) persist() {
	metrics.SetOutboxPending(len(q.entries))
	raw, err := json.Marshal(q.entries)
	if err != nil {
		log.Printf("[outbox] failed to encode pending pushes: %v", err)
		return
	}
	if err := q.storage.Set(storageKey, string(raw)); err != nil {
		log.Printf("[outbox] failed to persist pending pushes: %v", err)
	}
}
