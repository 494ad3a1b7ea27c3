// Package service exposes the operations views call: read accessors,
// optimistic writes that are queued for push, and the refresh entry points.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"backoffice-sync/cache"
	"backoffice-sync/config"
	"backoffice-sync/coordinator"
	"backoffice-sync/events"
	"backoffice-sync/idmap"
	"backoffice-sync/outbox"
	"backoffice-sync/reconcile"
	"backoffice-sync/remote"
	"backoffice-sync/storage"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
)

type BackOffice struct {
	cache  *cache.Store
	ids    *idmap.Mapper
	bus    *events.Bus
	outbox *outbox.Queue
	engine *reconcile.Engine
	coord  *coordinator.Coordinator
	worker *outbox.Worker
	cfg    config.SyncConfig
	now    func() time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New loads the cached snapshot from st and wires the sync machinery. Call
// Start to run the background outbox worker and periodic refresh.
func New(st storage.Storage, rs remote.Store, bus *events.Bus, cfg config.SyncConfig) *BackOffice {
	c := cache.New(st)
	c.Load()
	ids := idmap.New(st)
	q := outbox.New(st, cfg.OutboxMaxAttempts)
	engine := reconcile.New(rs, c, ids, bus, q, cfg)

	b := &BackOffice{
		cache:  c,
		ids:    ids,
		bus:    bus,
		outbox: q,
		engine: engine,
		worker: outbox.NewWorker(q, engine, cfg.OutboxInterval),
		cfg:    cfg,
		now:    time.Now,
	}
	b.coord = coordinator.New(func(ctx context.Context) error {
		_, err := engine.Pull(ctx)
		return err
	}, cfg.RefreshDebounce, cfg.RefreshMinGap)

	q.OnDeadLetter(func(e outbox.Entry) {
		bus.Emit(events.PushFailed, e)
	})
	return b
}

// Start runs the outbox worker and, when configured, the periodic refresh
// until Close.
func (b *BackOffice) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.worker.Run(ctx)
	}()

	if b.cfg.RefreshInterval > 0 {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.coord.RunPeriodic(ctx, b.cfg.RefreshInterval)
		}()
	}
	b.worker.Kick()
}

func (b *BackOffice) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.coord.Close()
}

// OnDeadLetter registers h for pushes the outbox gave up on.
func (b *BackOffice) OnDeadLetter(h func(outbox.Entry)) {
	b.outbox.OnDeadLetter(h)
}

func (b *BackOffice) Bus() *events.Bus { return b.bus }

// RefreshAll asks for a full pull. Calls made while a pull is running or
// too soon after the last one are folded into one deferred pull.
func (b *BackOffice) RefreshAll(ctx context.Context) error {
	return b.coord.RequestRefresh(ctx)
}

// SyncOrders pushes every cached order and reports which ones failed.
func (b *BackOffice) SyncOrders(ctx context.Context) (reconcile.PushResult, error) {
	return b.engine.SyncOrders(ctx)
}

// PushPending drains the outbox once, in the caller's goroutine.
func (b *BackOffice) PushPending(ctx context.Context) outbox.DrainResult {
	return b.outbox.Drain(ctx, b.engine)
}

func (b *BackOffice) Pending() []outbox.Entry {
	return b.outbox.Pending()
}

// changed queues the push for a local write and tells views about it.
func (b *BackOffice) changed(kind outbox.Kind, op outbox.Op, id, parentID string, what cache.Kind) {
	b.outbox.Enqueue(kind, op, id, parentID)
	b.worker.Kick()
	b.bus.Emit(events.DataChanged, string(what))
}

// applied turns a cache write result into the caller's error. A write that
// only failed to persist still counts as done.
func applied(err error) error {
	if cache.Applied(err) {
		return nil
	}
	return err
}
