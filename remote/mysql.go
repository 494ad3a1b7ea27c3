package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

const (
	customerColumns = "id, name, email, phone, address, tour_name, sector, seat_number, city, state, departure_time, created_at"
	productColumns  = "id, name, description, price, stock, images, created_at"
	orderColumns    = "id, customer_id, status, total, created_at"
	itemColumns     = "id, order_id, product_id, product_name, price, quantity"
	shipmentColumns = "id, name, created_at"
)

// updatable lists the columns a Patch may touch per table.
var updatable = map[string]map[string]bool{
	"customers": set("name", "email", "phone", "address", "tour_name", "sector", "seat_number", "city", "state", "departure_time"),
	"products":  set("name", "description", "price", "stock", "images"),
	"orders":    set("customer_id", "status", "total"),
	"shipments": set("name"),
}

func set(cols ...string) map[string]bool {
	m := make(map[string]bool, len(cols))
	for _, c := range cols {
		m[c] = true
	}
	return m
}

type MySQLStore struct {
	db *sqlx.DB
}

func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) FetchCustomers(ctx context.Context) ([]CustomerRow, error) {
	var rows []CustomerRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+customerColumns+` FROM customers ORDER BY created_at DESC`)
	return rows, wrap("fetch customers", err)
}

func (s *MySQLStore) CustomerExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, "customers", id)
}

func (s *MySQLStore) InsertCustomer(ctx context.Context, row CustomerRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES (:id, :name, :email, :phone, :address, :tour_name, :sector, :seat_number, :city, :state, :departure_time, :created_at)
		ON DUPLICATE KEY UPDATE id = id`, row)
	return wrap("insert customer", err)
}

func (s *MySQLStore) UpdateCustomer(ctx context.Context, id string, patch Patch) error {
	return s.update(ctx, "customers", id, patch)
}

func (s *MySQLStore) DeleteCustomer(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "customers", id)
}

func (s *MySQLStore) FetchProducts(ctx context.Context) ([]ProductRow, error) {
	var rows []ProductRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC`)
	return rows, wrap("fetch products", err)
}

func (s *MySQLStore) ProductExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, "products", id)
}

func (s *MySQLStore) InsertProduct(ctx context.Context, row ProductRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :name, :description, :price, :stock, :images, :created_at)
		ON DUPLICATE KEY UPDATE id = id`, row)
	return wrap("insert product", err)
}

func (s *MySQLStore) UpdateProduct(ctx context.Context, id string, patch Patch) error {
	return s.update(ctx, "products", id, patch)
}

func (s *MySQLStore) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "products", id)
}

func (s *MySQLStore) FetchOrdersByCustomer(ctx context.Context, customerID string) ([]OrderRow, error) {
	var rows []OrderRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = ? ORDER BY created_at DESC`, customerID)
	return rows, wrap("fetch orders", err)
}

func (s *MySQLStore) OrderExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, "orders", id)
}

// InsertOrder is idempotent on id, so a push that completed after its caller
// gave up does not duplicate the order when retried.
func (s *MySQLStore) InsertOrder(ctx context.Context, row OrderRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (:id, :customer_id, :status, :total, :created_at)
		ON DUPLICATE KEY UPDATE id = id`, row)
	return wrap("insert order", err)
}

func (s *MySQLStore) UpdateOrder(ctx context.Context, id string, patch Patch) error {
	return s.update(ctx, "orders", id, patch)
}

func (s *MySQLStore) DeleteOrder(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "orders", id)
}

func (s *MySQLStore) FetchOrderItems(ctx context.Context, orderIDs []string) ([]OrderItemRow, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+itemColumns+` FROM order_items WHERE order_id IN (?) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, wrap("fetch order items", err)
	}
	var rows []OrderItemRow
	err = s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...)
	return rows, wrap("fetch order items", err)
}

// InsertOrderItems writes items in one multi-row statement. Chunking is done
// by InsertOrderItemsBatched.
func (s *MySQLStore) InsertOrderItems(ctx context.Context, items []OrderItemRow) error {
	if len(items) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO order_items (order_id, product_id, product_name, price, quantity) VALUES `)
	args := make([]interface{}, 0, len(items)*5)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, item.OrderID, item.ProductID, item.ProductName, item.Price, item.Quantity)
	}
	_, err := s.db.ExecContext(ctx, b.String(), args...)
	return wrap("insert order items", err)
}

func (s *MySQLStore) DeleteOrderItems(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, orderID)
	return wrap("delete order items", err)
}

func (s *MySQLStore) FetchShipments(ctx context.Context) ([]ShipmentRow, error) {
	var rows []ShipmentRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+shipmentColumns+` FROM shipments ORDER BY created_at DESC`)
	return rows, wrap("fetch shipments", err)
}

func (s *MySQLStore) ShipmentExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, "shipments", id)
}

func (s *MySQLStore) InsertShipment(ctx context.Context, row ShipmentRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO shipments (`+shipmentColumns+`)
		VALUES (:id, :name, :created_at)
		ON DUPLICATE KEY UPDATE id = id`, row)
	return wrap("insert shipment", err)
}

func (s *MySQLStore) UpdateShipment(ctx context.Context, id string, patch Patch) error {
	return s.update(ctx, "shipments", id, patch)
}

func (s *MySQLStore) DeleteShipment(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "shipments", id)
}

func (s *MySQLStore) FetchShipmentCustomers(ctx context.Context, shipmentID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		`SELECT customer_id FROM shipment_customers WHERE shipment_id = ? ORDER BY customer_id`, shipmentID)
	return ids, wrap("fetch shipment customers", err)
}

// ReplaceShipmentCustomers swaps the membership of a shipment in one transaction.
func (s *MySQLStore) ReplaceShipmentCustomers(ctx context.Context, shipmentID string, customerIDs []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("replace shipment customers", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM shipment_customers WHERE shipment_id = ?`, shipmentID); err != nil {
		return wrap("replace shipment customers", err)
	}
	if len(customerIDs) > 0 {
		var b strings.Builder
		b.WriteString(`INSERT INTO shipment_customers (shipment_id, customer_id) VALUES `)
		args := make([]interface{}, 0, len(customerIDs)*2)
		for i, id := range customerIDs {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?)")
			args = append(args, shipmentID, id)
		}
		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return wrap("replace shipment customers", err)
		}
	}
	return wrap("replace shipment customers", tx.Commit())
}

func (s *MySQLStore) exists(ctx context.Context, table, id string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return false, wrap("check "+table, err)
	}
	return n > 0, nil
}

func (s *MySQLStore) deleteByID(ctx context.Context, table, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	return wrap("delete from "+table, err)
}

// update writes the patch columns in name order.
func (s *MySQLStore) update(ctx context.Context, table, id string, patch Patch) error {
	op := "update " + table
	if len(patch) == 0 {
		return nil
	}
	cols := make([]string, 0, len(patch))
	for col := range patch {
		if !updatable[table][col] {
			return &Error{Op: op, Err: fmt.Errorf("column %q is not updatable", col)}
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = col + " = ?"
		args = append(args, patch[col])
	}
	args = append(args, id)

	_, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	return wrap(op, err)
}
