package service

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"backoffice-sync/cache"
	"backoffice-sync/events"
	"backoffice-sync/idmap"
	"backoffice-sync/models"
	"backoffice-sync/outbox"
)

type LineInput struct {
	ProductID string
	Quantity  int
}

// OrderUpdate edits an order. Nil fields are left unchanged. Items and Total
// are independent: replacing items does not recompute the total.
type OrderUpdate struct {
	Items  []LineInput
	Total  *decimal.Decimal
	Status *models.OrderStatus
}

type StatusChange struct {
	CustomerID string             `json:"customer_id"`
	OrderID    string             `json:"order_id"`
	From       models.OrderStatus `json:"from"`
	To         models.OrderStatus `json:"to"`
}

func (b *BackOffice) catalog() map[string]models.Product {
	ps := b.cache.Products()
	out := make(map[string]models.Product, len(ps))
	for _, p := range ps {
		out[p.ID] = p
	}
	return out
}

// lineItems snapshots the requested products. Lines already on the order
// keep their original snapshot.
func lineItems(lines []LineInput, existing []models.OrderItem, catalog map[string]models.Product) ([]models.OrderItem, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: an order needs at least one item", ErrInvalid)
	}
	prev := make(map[string]models.OrderItem, len(existing))
	for _, it := range existing {
		prev[it.ProductID] = it
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %s must be positive", ErrInvalid, l.ProductID)
		}
		if it, ok := prev[l.ProductID]; ok {
			it.Quantity = l.Quantity
			items = append(items, it)
			continue
		}
		p, ok := catalog[l.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown product %s", ErrInvalid, l.ProductID)
		}
		items = append(items, p.LineItem(l.Quantity))
	}
	return items, nil
}

// AddOrder creates a pending order whose total is the sum of its lines.
func (b *BackOffice) AddOrder(customerID string, lines []LineInput) (models.Order, error) {
	items, err := lineItems(lines, nil, b.catalog())
	if err != nil {
		return models.Order{}, err
	}
	o := models.NewOrder(idmap.NewLocalID(), customerID, items, b.now())

	err = b.cache.UpdateCustomers(func(cs []models.Customer) ([]models.Customer, error) {
		for i := range cs {
			if cs[i].ID == customerID {
				cs[i].Orders = append([]models.Order{o}, cs[i].Orders...)
				return cs, nil
			}
		}
		return nil, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	})
	if err := applied(err); err != nil {
		return models.Order{}, err
	}
	b.changed(outbox.Order, outbox.Upsert, o.ID, customerID, cache.Customers)
	return o, nil
}

// updateOrder applies fn to one order of one customer under the cache lock.
func (b *BackOffice) updateOrder(customerID, orderID string, fn func(*models.Order) error) (models.Order, error) {
	var out models.Order
	err := b.cache.UpdateCustomers(func(cs []models.Customer) ([]models.Customer, error) {
		for i := range cs {
			if cs[i].ID != customerID {
				continue
			}
			j, ok := cs[i].FindOrder(orderID)
			if !ok {
				return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
			}
			if err := fn(&cs[i].Orders[j]); err != nil {
				return nil, err
			}
			out = cs[i].Orders[j].Clone()
			return cs, nil
		}
		return nil, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	})
	if err := applied(err); err != nil {
		return models.Order{}, err
	}
	return out, nil
}

// UpdateOrderStatus moves an order to any status and announces the change.
func (b *BackOffice) UpdateOrderStatus(customerID, orderID string, status models.OrderStatus) (models.Order, error) {
	if !status.Valid() {
		return models.Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	var from models.OrderStatus
	o, err := b.updateOrder(customerID, orderID, func(o *models.Order) error {
		from = o.Status
		o.Status = status
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	b.changed(outbox.Order, outbox.Upsert, orderID, customerID, cache.Customers)
	b.bus.Emit(events.OrderStatusChanged, StatusChange{CustomerID: customerID, OrderID: orderID, From: from, To: status})
	return o, nil
}

func (b *BackOffice) UpdateOrder(customerID, orderID string, upd OrderUpdate) (models.Order, error) {
	if upd.Status != nil && !upd.Status.Valid() {
		return models.Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, *upd.Status)
	}
	if upd.Total != nil && upd.Total.IsNegative() {
		return models.Order{}, fmt.Errorf("%w: total must not be negative", ErrInvalid)
	}

	var catalog map[string]models.Product
	if upd.Items != nil {
		catalog = b.catalog()
	}

	var from models.OrderStatus
	o, err := b.updateOrder(customerID, orderID, func(o *models.Order) error {
		from = o.Status
		if upd.Items != nil {
			items, err := lineItems(upd.Items, o.Items, catalog)
			if err != nil {
				return err
			}
			o.Items = items
		}
		if upd.Total != nil {
			o.Total = *upd.Total
		}
		if upd.Status != nil {
			o.Status = *upd.Status
		}
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	if o.TotalMismatch() {
		log.Printf("[service] order %s total %s differs from line items %s", o.ID, o.Total, o.ItemsTotal())
	}
	b.changed(outbox.Order, outbox.Upsert, orderID, customerID, cache.Customers)
	if o.Status != from {
		b.bus.Emit(events.OrderStatusChanged, StatusChange{CustomerID: customerID, OrderID: orderID, From: from, To: o.Status})
	}
	return o, nil
}

func (b *BackOffice) DeleteOrder(customerID, orderID string) error {
	err := b.cache.UpdateCustomers(func(cs []models.Customer) ([]models.Customer, error) {
		for i := range cs {
			if cs[i].ID != customerID {
				continue
			}
			j, ok := cs[i].FindOrder(orderID)
			if !ok {
				return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
			}
			cs[i].Orders = append(cs[i].Orders[:j], cs[i].Orders[j+1:]...)
			return cs, nil
		}
		return nil, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	})
	if err := applied(err); err != nil {
		return err
	}
	b.changed(outbox.Order, outbox.Delete, orderID, customerID, cache.Customers)
	return nil
}
