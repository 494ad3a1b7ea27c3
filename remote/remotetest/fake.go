// Package remotetest provides an in-memory remote.Store that records calls
// and can inject failures and delays.
package remotetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"backoffice-sync/remote"
)

type Call struct {
	Method string
	ID     string
	Rows   int
}

type Fake struct {
	mu        sync.Mutex
	Customers map[string]remote.CustomerRow
	Products  map[string]remote.ProductRow
	Orders    map[string]remote.OrderRow
	Items     []remote.OrderItemRow
	Shipments map[string]remote.ShipmentRow
	Members   map[string][]string
	Calls     []Call

	// FailOn returns the error to inject for method/id, or nil.
	FailOn func(method, id string) error
	// Delay makes method/id block for the returned duration or until ctx is done.
	Delay func(method, id string) time.Duration

	nextItemID int64
}

func New() *Fake {
	return &Fake{
		Customers: make(map[string]remote.CustomerRow),
		Products:  make(map[string]remote.ProductRow),
		Orders:    make(map[string]remote.OrderRow),
		Shipments: make(map[string]remote.ShipmentRow),
		Members:   make(map[string][]string),
	}
}

// Count returns how many times method was called.
func (f *Fake) Count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (f *Fake) CallsTo(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) ItemsFor(orderID string) []remote.OrderItemRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []remote.OrderItemRow
	for _, it := range f.Items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out
}

// enter records the call, applies any delay and injected failure.
func (f *Fake) enter(ctx context.Context, method, id string, rows int) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{Method: method, ID: id, Rows: rows})
	delay, fail := f.Delay, f.FailOn
	f.mu.Unlock()

	if delay != nil {
		if d := delay(method, id); d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return &remote.Error{Op: method, Err: ctx.Err()}
			}
		}
	}
	if fail != nil {
		if err := fail(method, id); err != nil {
			return &remote.Error{Op: method, Err: err}
		}
	}
	return nil
}

func (f *Fake) FetchCustomers(ctx context.Context) ([]remote.CustomerRow, error) {
	if err := f.enter(ctx, "FetchCustomers", "", 0); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.CustomerRow, 0, len(f.Customers))
	for _, c := range f.Customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *Fake) CustomerExists(ctx context.Context, id string) (bool, error) {
	if err := f.enter(ctx, "CustomerExists", id, 0); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Customers[id]
	return ok, nil
}

func (f *Fake) InsertCustomer(ctx context.Context, row remote.CustomerRow) error {
	if err := f.enter(ctx, "InsertCustomer", row.ID, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Customers[row.ID]; !ok {
		f.Customers[row.ID] = row
	}
	return nil
}

func (f *Fake) UpdateCustomer(ctx context.Context, id string, patch remote.Patch) error {
	if err := f.enter(ctx, "UpdateCustomer", id, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.Customers[id]
	if !ok {
		return nil
	}
	applyString(patch, "name", &row.Name)
	applyString(patch, "email", &row.Email)
	applyString(patch, "phone", &row.Phone)
	applyString(patch, "address", &row.Address)
	applyString(patch, "tour_name", &row.TourName)
	applyString(patch, "sector", &row.Sector)
	applyString(patch, "seat_number", &row.SeatNumber)
	applyString(patch, "city", &row.City)
	applyString(patch, "state", &row.State)
	applyString(patch, "departure_time", &row.DepartureTime)
	f.Customers[id] = row
	return nil
}

func (f *Fake) DeleteCustomer(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteCustomer", id, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Customers, id)
	for oid, o := range f.Orders {
		if o.CustomerID == id {
			delete(f.Orders, oid)
			f.Items = dropItems(f.Items, oid)
		}
	}
	return nil
}

func (f *Fake) FetchProducts(ctx context.Context) ([]remote.ProductRow, error) {
	if err := f.enter(ctx, "FetchProducts", "", 0); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.ProductRow, 0, len(f.Products))
	for _, p := range f.Products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *Fake) ProductExists(ctx context.Context, id string) (bool, error) {
	if err := f.enter(ctx, "ProductExists", id, 0); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Products[id]
	return ok, nil
}

func (f *Fake) InsertProduct(ctx context.Context, row remote.ProductRow) error {
	if err := f.enter(ctx, "InsertProduct", row.ID, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Products[row.ID]; !ok {
		f.Products[row.ID] = row
	}
	return nil
}

func (f *Fake) UpdateProduct(ctx context.Context, id string, patch remote.Patch) error {
	if err := f.enter(ctx, "UpdateProduct", id, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.Products[id]
	if !ok {
		return nil
	}
	applyString(patch, "name", &row.Name)
	applyString(patch, "description", &row.Description)
	applyDecimal(patch, "price", &row.Price)
	if v, ok := patch["stock"].(int); ok {
		row.Stock = v
	}
	f.Products[id] = row
	return nil
}

func (f *Fake) DeleteProduct(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteProduct", id, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Products, id)
	return nil
}

func (f *Fake) FetchOrdersByCustomer(ctx context.Context, customerID string) ([]remote.OrderRow, error) {
	if err := f.enter(ctx, "FetchOrdersByCustomer", customerID, 0); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []remote.OrderRow
	for _, o := range f.Orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *Fake) OrderExists(ctx context.Context, id string) (bool, error) {
	if err := f.enter(ctx, "OrderExists", id, 0); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Orders[id]
	return ok, nil
}

func (f *Fake) InsertOrder(ctx context.Context, row remote.OrderRow) error {
	if err := f.enter(ctx, "InsertOrder", row.ID, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Orders[row.ID]; !ok {
		f.Orders[row.ID] = row
	}
	return nil
}

func (f *Fake) UpdateOrder(ctx context.Context, id string, patch remote.Patch) error {
	if err := f.enter(ctx, "UpdateOrder", id, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.Orders[id]
	if !ok {
		return nil
	}
	applyString(patch, "status", &row.Status)
	applyString(patch, "customer_id", &row.CustomerID)
	applyDecimal(patch, "total", &row.Total)
	f.Orders[id] = row
	return nil
}

func (f *Fake) DeleteOrder(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteOrder", id, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Orders, id)
	f.Items = dropItems(f.Items, id)
	return nil
}

func (f *Fake) FetchOrderItems(ctx context.Context, orderIDs []string) ([]remote.OrderItemRow, error) {
	if err := f.enter(ctx, "FetchOrderItems", "", len(orderIDs)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		want[id] = true
	}
	var out []remote.OrderItemRow
	for _, it := range f.Items {
		if want[it.OrderID] {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *Fake) InsertOrderItems(ctx context.Context, items []remote.OrderItemRow) error {
	id := ""
	if len(items) > 0 {
		id = items[0].OrderID
	}
	if err := f.enter(ctx, "InsertOrderItems", id, len(items)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		f.nextItemID++
		it.ID = f.nextItemID
		f.Items = append(f.Items, it)
	}
	return nil
}

func (f *Fake) DeleteOrderItems(ctx context.Context, orderID string) error {
	if err := f.enter(ctx, "DeleteOrderItems", orderID, 0); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Items = dropItems(f.Items, orderID)
	return nil
}

func (f *Fake) FetchShipments(ctx context.Context) ([]remote.ShipmentRow, error) {
	if err := f.enter(ctx, "FetchShipments", "", 0); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.ShipmentRow, 0, len(f.Shipments))
	for _, s := range f.Shipments {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *Fake) ShipmentExists(ctx context.Context, id string) (bool, error) {
	if err := f.enter(ctx, "ShipmentExists", id, 0); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Shipments[id]
	return ok, nil
}

func (f *Fake) InsertShipment(ctx context.Context, row remote.ShipmentRow) error {
	if err := f.enter(ctx, "InsertShipment", row.ID, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Shipments[row.ID]; !ok {
		f.Shipments[row.ID] = row
	}
	return nil
}

func (f *Fake) UpdateShipment(ctx context.Context, id string, patch remote.Patch) error {
	if err := f.enter(ctx, "UpdateShipment", id, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.Shipments[id]
	if !ok {
		return nil
	}
	applyString(patch, "name", &row.Name)
	f.Shipments[id] = row
	return nil
}

func (f *Fake) DeleteShipment(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteShipment", id, 1); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Shipments, id)
	delete(f.Members, id)
	return nil
}

func (f *Fake) FetchShipmentCustomers(ctx context.Context, shipmentID string) ([]string, error) {
	if err := f.enter(ctx, "FetchShipmentCustomers", shipmentID, 0); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Members[shipmentID]...), nil
}

func (f *Fake) ReplaceShipmentCustomers(ctx context.Context, shipmentID string, customerIDs []string) error {
	if err := f.enter(ctx, "ReplaceShipmentCustomers", shipmentID, len(customerIDs)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Members[shipmentID] = append([]string(nil), customerIDs...)
	return nil
}

func applyString(patch remote.Patch, col string, dst *string) {
	if v, ok := patch[col].(string); ok {
		*dst = v
	}
}

func applyDecimal(patch remote.Patch, col string, dst *decimal.Decimal) {
	if v, ok := patch[col].(decimal.Decimal); ok {
		*dst = v
	}
}

func dropItems(items []remote.OrderItemRow, orderID string) []remote.OrderItemRow {
	out := items[:0:0]
	for _, it := range items {
		if it.OrderID != orderID {
			out = append(out, it)
		}
	}
	return out
}

var _ remote.Store = (*Fake)(nil)
