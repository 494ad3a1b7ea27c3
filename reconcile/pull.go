package reconcile

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"backoffice-sync/cache"
	"backoffice-sync/events"
	"backoffice-sync/idmap"
	"backoffice-sync/metrics"
	"backoffice-sync/models"
	"backoffice-sync/outbox"
	"backoffice-sync/remote"
)

type PullResult struct {
	Customers          int      `json:"customers"`
	Orders             int      `json:"orders"`
	Products           int      `json:"products"`
	Shipments          int      `json:"shipments"`
	OrderFetchFailures int      `json:"order_fetch_failures"`
	Warnings           []string `json:"warnings,omitempty"`
}

// Pull refreshes the whole snapshot. A failed customer fetch aborts the pass
// and leaves the cache untouched; products and shipments fail soft.
func (e *Engine) Pull(ctx context.Context) (PullResult, error) {
	start := time.Now()

	res, err := e.PullCustomers(ctx)
	if err != nil {
		metrics.RecordSync("pull", false, time.Since(start).Seconds())
		e.bus.Emit(events.SyncFailed, err.Error())
		return res, err
	}

	if n, err := e.PullProducts(ctx); err != nil {
		log.Printf("[reconcile] %v", err)
		res.Warnings = append(res.Warnings, err.Error())
	} else {
		res.Products = n
	}
	if n, err := e.PullShipments(ctx); err != nil {
		log.Printf("[reconcile] %v", err)
		res.Warnings = append(res.Warnings, err.Error())
	} else {
		res.Shipments = n
	}

	metrics.RecordSync("pull", true, time.Since(start).Seconds())
	e.bus.Emit(events.SyncCompleted, res)
	return res, nil
}

type pulledCustomer struct {
	row     remote.CustomerRow
	localID string
	orders  []models.Order
}

// PullCustomers replaces the cached customers with the remote ones, merged
// with what only the cache knows: line-item images, orders the remote store
// failed to return, and records with unpushed changes.
func (e *Engine) PullCustomers(ctx context.Context) (PullResult, error) {
	var res PullResult

	rows, err := e.remote.FetchCustomers(ctx)
	if err != nil {
		log.Printf("[reconcile] customer fetch failed, keeping cached snapshot: %v", err)
		return res, fmt.Errorf("pull customers: %w", err)
	}

	local := e.cache.Customers()
	known := make(map[string]bool, len(local))
	byKey := make(map[models.NaturalKey]string, len(local))
	for _, c := range local {
		known[c.ID] = true
		if _, dup := byKey[c.Key()]; !dup {
			byKey[c.Key()] = c.ID
		}
	}

	claimed := make(map[string]bool, len(rows))
	pulled := make([]pulledCustomer, 0, len(rows))
	for start := 0; start < len(rows); start += e.cfg.CustomerBatch {
		if start > 0 {
			runtime.Gosched()
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("pull customers: %w", err)
			}
		}
		end := min(start+e.cfg.CustomerBatch, len(rows))
		for _, row := range rows[start:end] {
			if e.deletedRemote(outbox.Customer, row.ID) {
				continue
			}
			p := pulledCustomer{row: row, localID: e.matchCustomer(row, known, byKey, claimed)}
			claimed[p.localID] = true
			if idmap.ValidRemoteID(row.ID) {
				orders, err := e.fetchOrders(ctx, row.ID, p.localID)
				if err != nil {
					res.OrderFetchFailures++
				} else {
					p.orders = orders
				}
			}
			pulled = append(pulled, p)
		}
	}

	err = e.cache.UpdateCustomers(func(current []models.Customer) ([]models.Customer, error) {
		prev := make(map[string]models.Customer, len(current))
		for _, c := range current {
			prev[c.ID] = c
		}

		next := make([]models.Customer, 0, len(pulled))
		seen := make(map[string]bool, len(pulled))
		for _, p := range pulled {
			c, had := prev[p.localID]
			seen[p.localID] = true
			if had && e.pending(outbox.Customer, c.ID) {
				c.Orders = e.mergeOrders(c.Orders, p.orders)
				next = append(next, c)
				continue
			}
			if !had {
				c = models.Customer{ID: p.localID}
			}
			applyCustomerRow(&c, p.row)
			c.Orders = e.mergeOrders(c.Orders, p.orders)
			if c.Orders == nil {
				c.Orders = []models.Order{}
			}
			next = append(next, c)
		}

		var unpushed []models.Customer
		for _, c := range current {
			if !seen[c.ID] && e.pending(outbox.Customer, c.ID) {
				unpushed = append(unpushed, c)
			}
		}
		return append(unpushed, next...), nil
	})
	if !cache.Applied(err) {
		return res, fmt.Errorf("pull customers: %w", err)
	}
	if err != nil {
		res.Warnings = append(res.Warnings, err.Error())
	}

	for _, c := range e.cache.Customers() {
		res.Customers++
		res.Orders += len(c.Orders)
	}
	e.bus.Emit(events.DataChanged, string(cache.Customers))
	return res, nil
}

// matchCustomer picks the local id for a remote row: an existing mapping,
// then a natural-key match, then a freshly minted id.
func (e *Engine) matchCustomer(row remote.CustomerRow, known map[string]bool, byKey map[models.NaturalKey]string, claimed map[string]bool) string {
	if id, ok := e.ids.LocalID(row.ID); ok && known[id] && !claimed[id] {
		return id
	}
	if id, ok := byKey[models.KeyFor(row.Name, row.Email)]; ok && !claimed[id] {
		if !e.ids.Bind(id, row.ID) {
			log.Printf("[reconcile] customer %s matches remote %s by name and email but is mapped elsewhere", id, row.ID)
		}
		return id
	}
	id := e.ids.ResolveLocalID(row.ID)
	if claimed[id] {
		id = idmap.NewLocalID()
	}
	return id
}

type fetchedOrders struct {
	orders []remote.OrderRow
	items  []remote.OrderItemRow
}

// fetchOrders loads one customer's orders under the order fetch timeout.
func (e *Engine) fetchOrders(ctx context.Context, remoteCustomerID, localCustomerID string) ([]models.Order, error) {
	f, err := remote.WithTimeout(ctx, e.cfg.OrderFetchTimeout, "fetch orders", func(ctx context.Context) (fetchedOrders, error) {
		orders, err := e.remote.FetchOrdersByCustomer(ctx, remoteCustomerID)
		if err != nil || len(orders) == 0 {
			return fetchedOrders{orders: orders}, err
		}
		ids := make([]string, len(orders))
		for i, o := range orders {
			ids[i] = o.ID
		}
		items, err := e.remote.FetchOrderItems(ctx, ids)
		return fetchedOrders{orders: orders, items: items}, err
	})
	if err != nil {
		if remote.IsTimeout(err) {
			metrics.RecordTimeout("fetch orders")
		}
		log.Printf("[reconcile] orders for customer %s unavailable, keeping cached orders: %v", localCustomerID, err)
		return nil, err
	}

	itemsByOrder := make(map[string][]remote.OrderItemRow, len(f.orders))
	for _, it := range f.items {
		itemsByOrder[it.OrderID] = append(itemsByOrder[it.OrderID], it)
	}

	out := make([]models.Order, 0, len(f.orders))
	for _, row := range f.orders {
		o := models.Order{
			ID:         e.ids.ResolveLocalID(row.ID),
			CustomerID: localCustomerID,
			Status:     models.OrderStatus(row.Status),
			Total:      row.Total,
			CreatedAt:  row.CreatedAt,
		}
		for _, it := range itemsByOrder[row.ID] {
			o.Items = append(o.Items, models.OrderItem{
				ProductID:   e.ids.ResolveLocalID(it.ProductID),
				ProductName: it.ProductName,
				Price:       it.Price,
				Quantity:    it.Quantity,
			})
		}
		out = append(out, o)
	}
	return out, nil
}

// mergeOrders combines cached and remote orders of one customer. An empty
// remote list never empties the cache. Remote orders take the cached
// line-item images; cached orders with unpushed changes win over remote ones.
func (e *Engine) mergeOrders(cached, fetched []models.Order) []models.Order {
	live := fetched[:0:0]
	for _, o := range fetched {
		if !e.deleting(outbox.Order, o.ID) {
			live = append(live, o)
		}
	}
	fetched = live
	if len(fetched) == 0 {
		return cached
	}

	byID := make(map[string]models.Order, len(cached))
	for _, o := range cached {
		byID[o.ID] = o
	}

	out := make([]models.Order, 0, len(fetched)+len(cached))
	seen := make(map[string]bool, len(fetched))
	for _, o := range fetched {
		seen[o.ID] = true
		prev, had := byID[o.ID]
		if had && e.pending(outbox.Order, o.ID) {
			out = append(out, prev)
			continue
		}
		if had {
			copyImages(&o, prev)
		}
		out = append(out, o)
	}
	for _, o := range cached {
		if !seen[o.ID] && e.pending(outbox.Order, o.ID) {
			out = append(out, o)
		}
	}
	models.SortOrders(out)
	return out
}

// copyImages fills line-item images from the cached copy of the same order,
// matching items by product.
func copyImages(dst *models.Order, cached models.Order) {
	images := make(map[string][]string, len(cached.Items))
	for _, it := range cached.Items {
		if len(it.Images) > 0 {
			images[it.ProductID] = it.Images
		}
	}
	for i := range dst.Items {
		if len(dst.Items[i].Images) > 0 {
			continue
		}
		if imgs, ok := images[dst.Items[i].ProductID]; ok {
			dst.Items[i].Images = append([]string(nil), imgs...)
		}
	}
}

// PullProducts replaces the cached products with the remote ones. Remote
// scalar fields win; cached images are kept when the remote row has none.
func (e *Engine) PullProducts(ctx context.Context) (int, error) {
	rows, err := e.remote.FetchProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("pull products: %w", err)
	}

	var n int
	err = e.cache.UpdateProducts(func(current []models.Product) ([]models.Product, error) {
		prev := make(map[string]models.Product, len(current))
		for _, p := range current {
			prev[p.ID] = p
		}

		next := make([]models.Product, 0, len(rows))
		seen := make(map[string]bool, len(rows))
		for _, row := range rows {
			if e.deletedRemote(outbox.Product, row.ID) {
				continue
			}
			id := e.ids.ResolveLocalID(row.ID)
			if seen[id] {
				continue
			}
			seen[id] = true
			old, had := prev[id]
			if had && e.pending(outbox.Product, id) {
				next = append(next, old)
				continue
			}
			p := models.Product{
				ID:          id,
				Name:        row.Name,
				Description: row.Description,
				Price:       row.Price,
				Stock:       row.Stock,
				Images:      []string(row.Images),
				CreatedAt:   row.CreatedAt,
			}
			if len(p.Images) == 0 && had {
				p.Images = old.Images
			}
			next = append(next, p)
		}
		var unpushed []models.Product
		for _, p := range current {
			if !seen[p.ID] && e.pending(outbox.Product, p.ID) {
				unpushed = append(unpushed, p)
			}
		}
		next = append(unpushed, next...)
		n = len(next)
		return next, nil
	})
	if !cache.Applied(err) {
		return 0, fmt.Errorf("pull products: %w", err)
	}
	e.bus.Emit(events.DataChanged, string(cache.Products))
	return n, nil
}

type pulledShipment struct {
	row     remote.ShipmentRow
	members []string
	ok      bool
}

// PullShipments replaces the cached shipments with the remote ones. Member
// ids the cache cannot resolve to a customer are dropped; a shipment whose
// membership fetch fails keeps its cached members.
func (e *Engine) PullShipments(ctx context.Context) (int, error) {
	rows, err := e.remote.FetchShipments(ctx)
	if err != nil {
		return 0, fmt.Errorf("pull shipments: %w", err)
	}

	pulled := make([]pulledShipment, 0, len(rows))
	for _, row := range rows {
		if e.deletedRemote(outbox.Shipment, row.ID) {
			continue
		}
		members, err := e.remote.FetchShipmentCustomers(ctx, row.ID)
		if err != nil {
			log.Printf("[reconcile] members of shipment %s unavailable, keeping cached ones: %v", row.ID, err)
		}
		pulled = append(pulled, pulledShipment{row: row, members: members, ok: err == nil})
	}

	customers := make(map[string]bool)
	for _, c := range e.cache.Customers() {
		customers[c.ID] = true
	}

	var n int
	err = e.cache.UpdateShipments(func(current []models.Shipment) ([]models.Shipment, error) {
		prev := make(map[string]models.Shipment, len(current))
		for _, s := range current {
			prev[s.ID] = s
		}

		next := make([]models.Shipment, 0, len(pulled))
		seen := make(map[string]bool, len(pulled))
		for _, p := range pulled {
			id := e.ids.ResolveLocalID(p.row.ID)
			if seen[id] {
				continue
			}
			seen[id] = true
			old, had := prev[id]
			if had && (e.pending(outbox.Shipment, id) || !p.ok) {
				if !e.pending(outbox.Shipment, id) {
					old.Name = p.row.Name
				}
				next = append(next, old)
				continue
			}
			s := models.Shipment{ID: id, Name: p.row.Name, CreatedAt: p.row.CreatedAt, CustomerIDs: []string{}}
			for _, m := range p.members {
				if lid, ok := e.ids.LocalID(m); ok && customers[lid] {
					s.CustomerIDs = append(s.CustomerIDs, lid)
				}
			}
			next = append(next, s)
		}
		var unpushed []models.Shipment
		for _, s := range current {
			if !seen[s.ID] && e.pending(outbox.Shipment, s.ID) {
				unpushed = append(unpushed, s)
			}
		}
		next = append(unpushed, next...)
		n = len(next)
		return next, nil
	})
	if !cache.Applied(err) {
		return 0, fmt.Errorf("pull shipments: %w", err)
	}
	e.bus.Emit(events.DataChanged, string(cache.Shipments))
	return n, nil
}
