package reconcile

import (
	"context"
	"fmt"
	"log"

	"backoffice-sync/outbox"
	"backoffice-sync/remote"
)

// Push performs one outbox entry against the remote store under the push
// timeout. An upsert whose entity has since left the cache is a no-op, as is
// a delete of something that was never pushed.
func (e *Engine) Push(ctx context.Context, entry outbox.Entry) error {
	_, err := remote.WithTimeout(ctx, e.cfg.PushTimeout, "push "+string(entry.Kind), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.exclusive(ctx, func() error { return e.dispatch(ctx, entry) })
	})
	return err
}

func (e *Engine) dispatch(ctx context.Context, entry outbox.Entry) error {
	switch entry.Kind {
	case outbox.Customer:
		if entry.Op == outbox.Delete {
			return e.deleteRemote(ctx, entry.EntityID, e.remote.DeleteCustomer)
		}
		c, ok := e.cache.Customer(entry.EntityID)
		if !ok {
			return nil
		}
		id := e.ids.ResolveRemoteID(c.ID)
		exists, err := e.remote.CustomerExists(ctx, id)
		if err != nil {
			return err
		}
		row := customerRow(id, c)
		if exists {
			return e.remote.UpdateCustomer(ctx, id, customerPatch(row))
		}
		return e.remote.InsertCustomer(ctx, row)

	case outbox.Product:
		if entry.Op == outbox.Delete {
			return e.deleteRemote(ctx, entry.EntityID, e.remote.DeleteProduct)
		}
		p, ok := e.cache.Product(entry.EntityID)
		if !ok {
			return nil
		}
		id := e.ids.ResolveRemoteID(p.ID)
		exists, err := e.remote.ProductExists(ctx, id)
		if err != nil {
			return err
		}
		row := productRow(id, p)
		if exists {
			return e.remote.UpdateProduct(ctx, id, productPatch(row))
		}
		return e.remote.InsertProduct(ctx, row)

	case outbox.Order:
		if entry.Op == outbox.Delete {
			return e.deleteRemote(ctx, entry.EntityID, e.remote.DeleteOrder)
		}
		c, ok := e.cache.Customer(entry.ParentID)
		if !ok {
			return nil
		}
		i, ok := c.FindOrder(entry.EntityID)
		if !ok {
			return nil
		}
		return e.pushOrder(ctx, c, c.Orders[i])

	case outbox.Shipment:
		if entry.Op == outbox.Delete {
			return e.deleteRemote(ctx, entry.EntityID, e.remote.DeleteShipment)
		}
		return e.pushShipment(ctx, entry.EntityID)
	}
	return fmt.Errorf("unknown outbox kind %q", entry.Kind)
}

func (e *Engine) deleteRemote(ctx context.Context, localID string, del func(context.Context, string) error) error {
	id, ok := e.ids.RemoteID(localID)
	if !ok {
		return nil
	}
	return del(ctx, id)
}

// pushShipment upserts the shipment row and replaces its membership. Members
// missing remotely are inserted first; members gone from the cache are left out.
func (e *Engine) pushShipment(ctx context.Context, localID string) error {
	s, ok := e.cache.Shipment(localID)
	if !ok {
		return nil
	}
	id := e.ids.ResolveRemoteID(s.ID)
	exists, err := e.remote.ShipmentExists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		err = e.remote.UpdateShipment(ctx, id, remote.Patch{"name": s.Name})
	} else {
		err = e.remote.InsertShipment(ctx, remote.ShipmentRow{ID: id, Name: s.Name, CreatedAt: s.CreatedAt})
	}
	if err != nil {
		return err
	}

	members := make([]string, 0, len(s.CustomerIDs))
	for _, cid := range s.CustomerIDs {
		c, ok := e.cache.Customer(cid)
		if !ok {
			log.Printf("[reconcile] shipment %s references missing customer %s, leaving it out", s.ID, cid)
			continue
		}
		rid, err := e.ensureCustomer(ctx, c)
		if err != nil {
			return err
		}
		members = append(members, rid)
	}
	return e.remote.ReplaceShipmentCustomers(ctx, id, members)
}
