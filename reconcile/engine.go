// Package reconcile merges the remote store into the local cache (pull) and
// pushes local changes back out (push).
package reconcile

import (
	"context"
	"time"

	"backoffice-sync/cache"
	"backoffice-sync/config"
	"backoffice-sync/events"
	"backoffice-sync/idmap"
	"backoffice-sync/outbox"
	"backoffice-sync/remote"
)

type Engine struct {
	remote remote.Store
	cache  *cache.Store
	ids    *idmap.Mapper
	bus    *events.Bus
	outbox *outbox.Queue
	cfg    config.SyncConfig

	// pushSlot admits one remote write sequence at a time, so the bulk order
	// push and the outbox worker never interleave on the same order.
	pushSlot chan struct{}
}

// New builds an engine. q may be nil, in which case pull keeps no
// locally pending records beyond the empty-fetch protection.
func New(r remote.Store, c *cache.Store, ids *idmap.Mapper, bus *events.Bus, q *outbox.Queue, cfg config.SyncConfig) *Engine {
	if cfg.CustomerBatch <= 0 {
		cfg.CustomerBatch = 1
	}
	if cfg.OrderBatch <= 0 {
		cfg.OrderBatch = 1
	}
	return &Engine{
		remote:   r,
		cache:    c,
		ids:      ids,
		bus:      bus,
		outbox:   q,
		cfg:      cfg,
		pushSlot: make(chan struct{}, 1),
	}
}

func (e *Engine) pending(kind outbox.Kind, id string) bool {
	return e.outbox != nil && e.outbox.HasPending(kind, id)
}

// deleting reports whether the entity was deleted locally and the delete has
// not reached the remote store yet. Pull must not bring it back.
func (e *Engine) deleting(kind outbox.Kind, id string) bool {
	return e.outbox != nil && e.outbox.HasPendingDelete(kind, id)
}

// deletedRemote reports whether the remote id maps to a local entity with a
// pending delete.
func (e *Engine) deletedRemote(kind outbox.Kind, remoteID string) bool {
	id, ok := e.ids.LocalID(remoteID)
	return ok && e.deleting(kind, id)
}

// exclusive runs fn once no other push is running. It gives up when ctx
// ends first.
func (e *Engine) exclusive(ctx context.Context, fn func() error) error {
	select {
	case e.pushSlot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.pushSlot }()
	return fn()
}

// pause waits d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
