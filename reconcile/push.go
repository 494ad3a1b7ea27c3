package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"backoffice-sync/events"
	"backoffice-sync/metrics"
	"backoffice-sync/models"
	"backoffice-sync/outbox"
	"backoffice-sync/remote"
)

type ItemFailure struct {
	CustomerID string `json:"customer_id"`
	OrderID    string `json:"order_id"`
	Err        error  `json:"-"`
	Message    string `json:"error"`
}

// PushResult tallies a bulk order push. Failures name each order that did
// not make it.
type PushResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped,omitempty"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// errGone marks an order deleted locally after the bulk push listed it.
var errGone = errors.New("order no longer cached")

// SyncOrders pushes every cached order. Orders go out in batches with a
// pause between batches; a failed order is recorded and the rest continue.
// The returned error is non-nil only when ctx ended the run early.
func (e *Engine) SyncOrders(ctx context.Context) (PushResult, error) {
	start := time.Now()
	var res PushResult

	type job struct {
		customer models.Customer
		order    models.Order
	}
	var jobs []job
	for _, c := range e.cache.Customers() {
		for _, o := range c.Orders {
			jobs = append(jobs, job{customer: c, order: o})
		}
	}

	for i := 0; i < len(jobs); i += e.cfg.OrderBatch {
		if i > 0 {
			if err := pause(ctx, e.cfg.PushDelay); err != nil {
				metrics.RecordSync("push", false, time.Since(start).Seconds())
				return res, fmt.Errorf("sync orders: %w", err)
			}
		}
		end := min(i+e.cfg.OrderBatch, len(jobs))
		for _, j := range jobs[i:end] {
			err := e.pushOrderTimed(ctx, j.customer.ID, j.order.ID)
			if errors.Is(err, errGone) {
				res.Skipped++
				continue
			}
			metrics.RecordOrderPush(err == nil)
			if err != nil {
				log.Printf("[reconcile] push of order %s for customer %s failed: %v", j.order.ID, j.customer.ID, err)
				res.Failed++
				res.Failures = append(res.Failures, ItemFailure{
					CustomerID: j.customer.ID,
					OrderID:    j.order.ID,
					Err:        err,
					Message:    err.Error(),
				})
				continue
			}
			res.Succeeded++
		}
	}

	log.Printf("[reconcile] order push finished: %d succeeded, %d failed, %d skipped", res.Succeeded, res.Failed, res.Skipped)
	metrics.RecordSync("push", res.Failed == 0, time.Since(start).Seconds())
	if res.Failed > 0 {
		e.bus.Emit(events.PushFailed, res)
	} else {
		e.bus.Emit(events.SyncCompleted, res)
	}
	return res, nil
}

// pushOrderTimed pushes the cached state of one order as it is once this
// push gets its turn, so an order deleted or edited meanwhile is not
// written back stale.
func (e *Engine) pushOrderTimed(ctx context.Context, customerID, orderID string) error {
	_, err := remote.WithTimeout(ctx, e.cfg.PushTimeout, "push order", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.exclusive(ctx, func() error {
			if e.deleting(outbox.Customer, customerID) || e.deleting(outbox.Order, orderID) {
				return errGone
			}
			c, ok := e.cache.Customer(customerID)
			if !ok {
				return errGone
			}
			i, ok := c.FindOrder(orderID)
			if !ok {
				return errGone
			}
			return e.pushOrder(ctx, c, c.Orders[i])
		})
	})
	if remote.IsTimeout(err) {
		metrics.RecordTimeout("push order")
	}
	return err
}

// pushOrder makes the remote copy of o match the cache: update scalars and
// replace line items when the order exists, insert it otherwise.
func (e *Engine) pushOrder(ctx context.Context, c models.Customer, o models.Order) error {
	customerID, err := e.ensureCustomer(ctx, c)
	if err != nil {
		return err
	}
	orderID := e.ids.ResolveRemoteID(o.ID)
	row := orderRow(orderID, customerID, o)

	exists, err := e.remote.OrderExists(ctx, orderID)
	if err != nil {
		return err
	}
	if exists {
		err := e.remote.UpdateOrder(ctx, orderID, remote.Patch{
			"customer_id": row.CustomerID,
			"status":      row.Status,
			"total":       row.Total,
		})
		if err != nil {
			return err
		}
		if err := e.remote.DeleteOrderItems(ctx, orderID); err != nil {
			return err
		}
	} else if err := e.remote.InsertOrder(ctx, row); err != nil {
		return err
	}

	items := make([]remote.OrderItemRow, len(o.Items))
	for i, it := range o.Items {
		items[i] = remote.OrderItemRow{
			OrderID:     orderID,
			ProductID:   e.ids.ResolveRemoteID(it.ProductID),
			ProductName: it.ProductName,
			Price:       it.Price,
			Quantity:    it.Quantity,
		}
	}
	if res := remote.InsertOrderItemsBatched(ctx, e.remote, items, e.cfg.ItemBatch); res.Failed > 0 {
		return fmt.Errorf("%d of %d line items not stored: %w", res.Failed, len(items), res.Err())
	}
	return nil
}

// ensureCustomer inserts c remotely when it is missing and returns its
// remote id.
func (e *Engine) ensureCustomer(ctx context.Context, c models.Customer) (string, error) {
	id := e.ids.ResolveRemoteID(c.ID)
	exists, err := e.remote.CustomerExists(ctx, id)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := e.remote.InsertCustomer(ctx, customerRow(id, c)); err != nil {
			return "", err
		}
	}
	return id, nil
}
