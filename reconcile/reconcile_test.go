package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice-sync/cache"
	"backoffice-sync/config"
	"backoffice-sync/events"
	"backoffice-sync/idmap"
	"backoffice-sync/models"
	"backoffice-sync/outbox"
	"backoffice-sync/remote"
	"backoffice-sync/remote/remotetest"
	"backoffice-sync/storage"
)

type fixture struct {
	engine *Engine
	remote *remotetest.Fake
	cache  *cache.Store
	ids    *idmap.Mapper
	bus    *events.Bus
	outbox *outbox.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemoryStorage()
	cfg := config.DefaultSyncConfig()
	cfg.PushDelay = 0
	cfg.OrderFetchTimeout = 50 * time.Millisecond
	cfg.PushTimeout = time.Second

	f := &fixture{
		remote: remotetest.New(),
		cache:  cache.New(st),
		ids:    idmap.New(st),
		bus:    events.NewBus(),
		outbox: outbox.New(st, 5),
	}
	f.engine = New(f.remote, f.cache, f.ids, f.bus, f.outbox, cfg)
	return f
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPullMatchesCustomerByNaturalKey(t *testing.T) {
	f := newFixture(t)
	local := models.Customer{
		ID: "local-1", Name: "joão silva", Email: "JOAO@x.com", CreatedAt: t0,
		Orders: []models.Order{models.NewOrder("o1", "local-1", nil, t0)},
	}
	require.NoError(t, f.cache.SetCustomers([]models.Customer{local}))

	remoteID := "0b9f3a3e-6a0e-4d6c-9d2e-7d7f7f4c1a11"
	f.remote.Customers[remoteID] = remote.CustomerRow{
		ID: remoteID, Name: "João Silva", Email: "joao@x.com", Phone: "555", City: "Gramado", CreatedAt: t0,
	}

	res, err := f.engine.PullCustomers(context.Background())
	require.NoError(t, err)

	customers := f.cache.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, "local-1", customers[0].ID)
	assert.Equal(t, "João Silva", customers[0].Name)
	assert.Equal(t, "555", customers[0].Phone)
	require.NotNil(t, customers[0].Tour)
	assert.Equal(t, "Gramado", customers[0].Tour.City)
	assert.Len(t, customers[0].Orders, 1)
	assert.Equal(t, 1, res.Customers)

	mapped, ok := f.ids.RemoteID("local-1")
	require.True(t, ok)
	assert.Equal(t, remoteID, mapped)
}

func TestPullPreservesLineItemImages(t *testing.T) {
	f := newFixture(t)
	const (
		rc = "6f1c2a7e-1b1d-4b8e-8a52-2f1f0c3b9d01"
		ro = "6f1c2a7e-1b1d-4b8e-8a52-2f1f0c3b9d02"
		rp = "6f1c2a7e-1b1d-4b8e-8a52-2f1f0c3b9d03"
	)
	f.ids.Bind("c1", rc)
	f.ids.Bind("o1", ro)
	f.ids.Bind("p1", rp)

	item := models.OrderItem{ProductID: "p1", ProductName: "City tour", Price: money("50"), Quantity: 2, Images: []string{"a.png", "b.png"}}
	require.NoError(t, f.cache.SetCustomers([]models.Customer{{
		ID: "c1", Name: "Ana", Email: "ana@x.com", CreatedAt: t0,
		Orders: []models.Order{models.NewOrder("o1", "c1", []models.OrderItem{item}, t0)},
	}}))

	f.remote.Customers[rc] = remote.CustomerRow{ID: rc, Name: "Ana", Email: "ana@x.com", CreatedAt: t0}
	f.remote.Orders[ro] = remote.OrderRow{ID: ro, CustomerID: rc, Status: "completed", Total: money("100"), CreatedAt: t0}
	f.remote.Items = []remote.OrderItemRow{{ID: 1, OrderID: ro, ProductID: rp, ProductName: "City tour", Price: money("50"), Quantity: 2}}

	_, err := f.engine.PullCustomers(context.Background())
	require.NoError(t, err)

	c, ok := f.cache.Customer("c1")
	require.True(t, ok)
	require.Len(t, c.Orders, 1)
	assert.Equal(t, "o1", c.Orders[0].ID)
	assert.Equal(t, models.StatusCompleted, c.Orders[0].Status)
	require.Len(t, c.Orders[0].Items, 1)
	assert.Equal(t, "p1", c.Orders[0].Items[0].ProductID)
	assert.Equal(t, []string{"a.png", "b.png"}, c.Orders[0].Items[0].Images)
}

func TestPullKeepsOrdersWhenOrderFetchTimesOut(t *testing.T) {
	f := newFixture(t)
	const rc = "5a0f7c43-8f7e-4b7f-9a55-3c1d2e4f5a60"
	f.ids.Bind("c1", rc)
	orders := []models.Order{
		models.NewOrder("o1", "c1", nil, t0),
		models.NewOrder("o2", "c1", nil, t0.Add(time.Hour)),
	}
	require.NoError(t, f.cache.SetCustomers([]models.Customer{{ID: "c1", Name: "Ana", Email: "ana@x.com", Orders: orders}}))
	f.remote.Customers[rc] = remote.CustomerRow{ID: rc, Name: "Ana", Email: "ana@x.com", CreatedAt: t0}
	f.remote.Delay = func(method, _ string) time.Duration {
		if method == "FetchOrdersByCustomer" {
			return time.Second
		}
		return 0
	}

	start := time.Now()
	res, err := f.engine.PullCustomers(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	c, ok := f.cache.Customer("c1")
	require.True(t, ok)
	assert.Equal(t, orders, c.Orders)
	assert.Equal(t, 1, res.OrderFetchFailures)
}

func TestPullKeepsOrdersWhenRemoteHasNone(t *testing.T) {
	f := newFixture(t)
	const rc = "5a0f7c43-8f7e-4b7f-9a55-3c1d2e4f5a61"
	f.ids.Bind("c1", rc)
	orders := []models.Order{models.NewOrder("o1", "c1", nil, t0)}
	require.NoError(t, f.cache.SetCustomers([]models.Customer{{ID: "c1", Name: "Ana", Orders: orders}}))
	f.remote.Customers[rc] = remote.CustomerRow{ID: rc, Name: "Ana", CreatedAt: t0}

	_, err := f.engine.PullCustomers(context.Background())
	require.NoError(t, err)

	c, _ := f.cache.Customer("c1")
	assert.Equal(t, orders, c.Orders)
}

func TestPullAbortsWhenCustomerFetchFails(t *testing.T) {
	f := newFixture(t)
	before := []models.Customer{{ID: "c1", Name: "Ana", Orders: []models.Order{}}}
	require.NoError(t, f.cache.SetCustomers(before))
	f.remote.FailOn = func(method, _ string) error {
		if method == "FetchCustomers" {
			return errors.New("network unreachable")
		}
		return nil
	}
	var failed []events.Event
	f.bus.Subscribe(events.SyncFailed, func(e events.Event) { failed = append(failed, e) })

	_, err := f.engine.Pull(context.Background())

	require.Error(t, err)
	assert.Equal(t, before, f.cache.Customers())
	assert.Len(t, failed, 1)
	assert.Zero(t, f.remote.Count("FetchProducts"))
}

func TestPullDropsUnknownLocalsButKeepsUnpushed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cache.SetCustomers([]models.Customer{
		{ID: "gone", Name: "Old", Email: "old@x.com"},
		{ID: "fresh", Name: "New", Email: "new@x.com"},
	}))
	f.outbox.Enqueue(outbox.Customer, outbox.Upsert, "fresh", "")

	const rc = "9e107d9d-3726-4e3c-9e5b-1b2a3c4d5e6f"
	f.remote.Customers[rc] = remote.CustomerRow{ID: rc, Name: "Remote", Email: "r@x.com", CreatedAt: t0}

	_, err := f.engine.PullCustomers(context.Background())
	require.NoError(t, err)

	ids := []string{}
	for _, c := range f.cache.Customers() {
		ids = append(ids, c.ID)
	}
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "fresh")
	assert.NotContains(t, ids, "gone")

	localID, ok := f.ids.LocalID(rc)
	require.True(t, ok)
	assert.Contains(t, ids, localID)
}

func TestPullKeepsUnpushedOrderChanges(t *testing.T) {
	f := newFixture(t)
	const (
		rc = "1d2c3b4a-5e6f-4a7b-8c9d-0e1f2a3b4c5d"
		ro = "1d2c3b4a-5e6f-4a7b-8c9d-0e1f2a3b4c5e"
	)
	f.ids.Bind("c1", rc)
	f.ids.Bind("o1", ro)
	local := models.NewOrder("o1", "c1", nil, t0)
	local.Status = models.StatusCancelled
	require.NoError(t, f.cache.SetCustomers([]models.Customer{{ID: "c1", Name: "Ana", Orders: []models.Order{local}}}))
	f.outbox.Enqueue(outbox.Order, outbox.Upsert, "o1", "c1")

	f.remote.Customers[rc] = remote.CustomerRow{ID: rc, Name: "Ana", CreatedAt: t0}
	f.remote.Orders[ro] = remote.OrderRow{ID: ro, CustomerID: rc, Status: "pending", CreatedAt: t0}

	_, err := f.engine.PullCustomers(context.Background())
	require.NoError(t, err)

	c, _ := f.cache.Customer("c1")
	require.Len(t, c.Orders, 1)
	assert.Equal(t, models.StatusCancelled, c.Orders[0].Status)
}

func TestPullProductsKeepsCachedImages(t *testing.T) {
	f := newFixture(t)
	const rp = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"
	f.ids.Bind("p1", rp)
	require.NoError(t, f.cache.SetProducts([]models.Product{{ID: "p1", Name: "Old name", Images: []string{"cached.png"}}}))
	f.remote.Products[rp] = remote.ProductRow{ID: rp, Name: "City tour", Price: money("40"), Stock: 3, CreatedAt: t0}

	n, err := f.engine.PullProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, ok := f.cache.Product("p1")
	require.True(t, ok)
	assert.Equal(t, "City tour", p.Name)
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, []string{"cached.png"}, p.Images)
}

func TestPullShipmentsFiltersUnknownMembers(t *testing.T) {
	f := newFixture(t)
	const (
		rs = "7d444840-9dc0-41d8-8a1f-3b6f1c2d9e01"
		rc = "7d444840-9dc0-41d8-8a1f-3b6f1c2d9e02"
		rx = "7d444840-9dc0-41d8-8a1f-3b6f1c2d9e03"
	)
	f.ids.Bind("c1", rc)
	require.NoError(t, f.cache.SetCustomers([]models.Customer{{ID: "c1", Name: "Ana"}}))
	f.remote.Shipments[rs] = remote.ShipmentRow{ID: rs, Name: "May run", CreatedAt: t0}
	f.remote.Members[rs] = []string{rc, rx}

	n, err := f.engine.PullShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	shipments := f.cache.Shipments()
	require.Len(t, shipments, 1)
	assert.Equal(t, "May run", shipments[0].Name)
	assert.Equal(t, []string{"c1"}, shipments[0].CustomerIDs)
}

func TestPullFailsSoftOnProducts(t *testing.T) {
	f := newFixture(t)
	f.remote.FailOn = func(method, _ string) error {
		if method == "FetchProducts" {
			return errors.New("timeout")
		}
		return nil
	}
	var completed int
	f.bus.Subscribe(events.SyncCompleted, func(events.Event) { completed++ })

	res, err := f.engine.Pull(context.Background())

	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, 1, completed)
}

func seedOrders(t *testing.T, f *fixture, n int) []models.Order {
	t.Helper()
	orders := make([]models.Order, n)
	for i := range orders {
		item := models.OrderItem{ProductID: "p1", ProductName: "City tour", Price: money("10"), Quantity: 1}
		orders[i] = models.NewOrder(fmt.Sprintf("o%d", i+1), "c1", []models.OrderItem{item}, t0.Add(time.Duration(n-i)*time.Minute))
	}
	require.NoError(t, f.cache.SetCustomers([]models.Customer{{ID: "c1", Name: "Ana", Email: "ana@x.com", Orders: orders}}))
	return orders
}

func TestSyncOrdersIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	seedOrders(t, f, 10)
	failing := f.ids.ResolveRemoteID("o5")
	f.remote.FailOn = func(method, id string) error {
		if method == "InsertOrder" && id == failing {
			return errors.New("deadlock found")
		}
		return nil
	}

	res, err := f.engine.SyncOrders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "o5", res.Failures[0].OrderID)
	assert.Equal(t, "c1", res.Failures[0].CustomerID)
	assert.Equal(t, 10, f.remote.Count("InsertOrder"))
}

func TestSyncOrdersUpdatesExistingOrders(t *testing.T) {
	f := newFixture(t)
	seedOrders(t, f, 1)

	_, err := f.engine.SyncOrders(context.Background())
	require.NoError(t, err)
	res, err := f.engine.SyncOrders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, f.remote.Count("InsertOrder"))
	assert.Equal(t, 1, f.remote.Count("UpdateOrder"))
	assert.Equal(t, 1, f.remote.Count("DeleteOrderItems"))
	assert.Equal(t, 1, f.remote.Count("InsertCustomer"))
	assert.Len(t, f.remote.ItemsFor(f.ids.ResolveRemoteID("o1")), 1)
}

func TestSyncOrdersReportsItemBatchFailure(t *testing.T) {
	f := newFixture(t)
	seedOrders(t, f, 1)
	f.remote.FailOn = func(method, _ string) error {
		if method == "InsertOrderItems" {
			return errors.New("packet too large")
		}
		return nil
	}

	res, err := f.engine.SyncOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
}

func TestPushCustomerUpsertAndDelete(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cache.SetCustomers([]models.Customer{{ID: "c1", Name: "Ana", Email: "ana@x.com", CreatedAt: t0}}))
	ctx := context.Background()

	require.NoError(t, f.engine.Push(ctx, outbox.Entry{Kind: outbox.Customer, Op: outbox.Upsert, EntityID: "c1"}))
	rc, ok := f.ids.RemoteID("c1")
	require.True(t, ok)
	assert.Equal(t, "Ana", f.remote.Customers[rc].Name)

	require.NoError(t, f.cache.UpdateCustomers(func(cs []models.Customer) ([]models.Customer, error) {
		cs[0].Name = "Ana Maria"
		return cs, nil
	}))
	require.NoError(t, f.engine.Push(ctx, outbox.Entry{Kind: outbox.Customer, Op: outbox.Upsert, EntityID: "c1"}))
	assert.Equal(t, "Ana Maria", f.remote.Customers[rc].Name)

	require.NoError(t, f.engine.Push(ctx, outbox.Entry{Kind: outbox.Customer, Op: outbox.Delete, EntityID: "c1"}))
	assert.NotContains(t, f.remote.Customers, rc)
}

func TestPushDeleteOfUnpushedEntityIsNoop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Push(context.Background(), outbox.Entry{Kind: outbox.Order, Op: outbox.Delete, EntityID: "never"}))
	assert.Zero(t, f.remote.Count("DeleteOrder"))
}

func TestPushShipmentReplacesMembers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cache.SetCustomers([]models.Customer{{ID: "c1", Name: "Ana"}, {ID: "c2", Name: "Bia"}}))
	require.NoError(t, f.cache.SetShipments([]models.Shipment{{ID: "s1", Name: "May run", CustomerIDs: []string{"c1", "c2", "ghost"}}}))

	require.NoError(t, f.engine.Push(context.Background(), outbox.Entry{Kind: outbox.Shipment, Op: outbox.Upsert, EntityID: "s1"}))

	rs, ok := f.ids.RemoteID("s1")
	require.True(t, ok)
	assert.Equal(t, "May run", f.remote.Shipments[rs].Name)
	assert.Len(t, f.remote.Members[rs], 2)
	assert.Equal(t, 2, f.remote.Count("InsertCustomer"))
}

func TestPushTimesOut(t *testing.T) {
	f := newFixture(t)
	f.engine.cfg.PushTimeout = 20 * time.Millisecond
	require.NoError(t, f.cache.SetProducts([]models.Product{{ID: "p1", Name: "City tour"}}))
	f.remote.Delay = func(string, string) time.Duration { return time.Second }

	err := f.engine.Push(context.Background(), outbox.Entry{Kind: outbox.Product, Op: outbox.Upsert, EntityID: "p1"})
	assert.True(t, remote.IsTimeout(err))
}

func TestPullDoesNotRestoreEntityWithPendingDelete(t *testing.T) {
	f := newFixture(t)
	const (
		rc = "2b7e1516-28ae-4d2a-9f1c-8a2b3c4d5e01"
		ro = "2b7e1516-28ae-4d2a-9f1c-8a2b3c4d5e02"
		rp = "2b7e1516-28ae-4d2a-9f1c-8a2b3c4d5e03"
		rs = "2b7e1516-28ae-4d2a-9f1c-8a2b3c4d5e04"
		rx = "2b7e1516-28ae-4d2a-9f1c-8a2b3c4d5e05"
	)
	f.ids.Bind("c1", rc)
	f.ids.Bind("o1", ro)
	f.ids.Bind("p1", rp)
	f.ids.Bind("s1", rs)
	f.ids.Bind("cx", rx)

	// o1, p1, s1 and customer cx were removed locally; their deletes are not pushed yet.
	require.NoError(t, f.cache.SetCustomers([]models.Customer{{ID: "c1", Name: "Ana", Email: "ana@x.com", Orders: []models.Order{}}}))
	f.outbox.Enqueue(outbox.Order, outbox.Delete, "o1", "c1")
	f.outbox.Enqueue(outbox.Product, outbox.Delete, "p1", "")
	f.outbox.Enqueue(outbox.Shipment, outbox.Delete, "s1", "")
	f.outbox.Enqueue(outbox.Customer, outbox.Delete, "cx", "")

	f.remote.Customers[rc] = remote.CustomerRow{ID: rc, Name: "Ana", Email: "ana@x.com", CreatedAt: t0}
	f.remote.Customers[rx] = remote.CustomerRow{ID: rx, Name: "Gone", Email: "gone@x.com", CreatedAt: t0}
	f.remote.Orders[ro] = remote.OrderRow{ID: ro, CustomerID: rc, Status: "pending", Total: money("10"), CreatedAt: t0}
	f.remote.Products[rp] = remote.ProductRow{ID: rp, Name: "City tour", Price: money("10"), CreatedAt: t0}
	f.remote.Shipments[rs] = remote.ShipmentRow{ID: rs, Name: "May run", CreatedAt: t0}
	f.remote.Members[rs] = []string{rc}

	ctx := context.Background()
	_, err := f.engine.Pull(ctx)
	require.NoError(t, err)

	customers := f.cache.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, "c1", customers[0].ID)
	assert.Empty(t, customers[0].Orders)
	assert.Empty(t, f.cache.Products())
	assert.Empty(t, f.cache.Shipments())

	res := f.outbox.Drain(ctx, f.engine)
	assert.Zero(t, res.Failed)
	assert.NotContains(t, f.remote.Orders, ro)
	assert.NotContains(t, f.remote.Customers, rx)

	_, err = f.engine.Pull(ctx)
	require.NoError(t, err)
	c, ok := f.cache.Customer("c1")
	require.True(t, ok)
	assert.Empty(t, c.Orders)
	assert.Empty(t, f.cache.Products())
	assert.Empty(t, f.cache.Shipments())
	_, ok = f.cache.Customer("cx")
	assert.False(t, ok)
}

func TestSyncOrdersAndOutboxPushDoNotDuplicateItems(t *testing.T) {
	f := newFixture(t)
	seedOrders(t, f, 1)
	f.remote.Delay = func(method, _ string) time.Duration {
		if method == "OrderExists" {
			return 50 * time.Millisecond
		}
		return 0
	}
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		pushErr error
		res     PushResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		pushErr = f.engine.Push(ctx, outbox.Entry{Kind: outbox.Order, Op: outbox.Upsert, EntityID: "o1", ParentID: "c1"})
	}()
	go func() {
		defer wg.Done()
		res, _ = f.engine.SyncOrders(ctx)
	}()
	wg.Wait()

	require.NoError(t, pushErr)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, f.remote.Count("InsertOrder"))
	assert.Len(t, f.remote.ItemsFor(f.ids.ResolveRemoteID("o1")), 1)
}

func TestSyncOrdersSkipsOrderDeletedMidRun(t *testing.T) {
	f := newFixture(t)
	seedOrders(t, f, 2)
	f.engine.cfg.OrderBatch = 1
	f.engine.cfg.PushDelay = 30 * time.Millisecond

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = f.cache.UpdateCustomers(func(cs []models.Customer) ([]models.Customer, error) {
			cs[0].Orders = cs[0].Orders[:1]
			return cs, nil
		})
	}()

	res, err := f.engine.SyncOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, f.remote.Count("InsertOrder"))
}

func TestSyncOrdersPushesChangedTotal(t *testing.T) {
	f := newFixture(t)
	seedOrders(t, f, 1)
	ctx := context.Background()

	_, err := f.engine.SyncOrders(ctx)
	require.NoError(t, err)
	require.NoError(t, f.cache.UpdateCustomers(func(cs []models.Customer) ([]models.Customer, error) {
		cs[0].Orders[0].Total = money("5")
		return cs, nil
	}))
	_, err = f.engine.SyncOrders(ctx)
	require.NoError(t, err)

	row := f.remote.Orders[f.ids.ResolveRemoteID("o1")]
	assert.True(t, row.Total.Equal(money("5")), "total = %s", row.Total)
}
