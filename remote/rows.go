package remote

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type CustomerRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Email         string    `db:"email"`
	Phone         string    `db:"phone"`
	Address       string    `db:"address"`
	TourName      string    `db:"tour_name"`
	Sector        string    `db:"sector"`
	SeatNumber    string    `db:"seat_number"`
	City          string    `db:"city"`
	State         string    `db:"state"`
	DepartureTime string    `db:"departure_time"`
	CreatedAt     time.Time `db:"created_at"`
}

type OrderRow struct {
	ID         string          `db:"id"`
	CustomerID string          `db:"customer_id"`
	Status     string          `db:"status"`
	Total      decimal.Decimal `db:"total"`
	CreatedAt  time.Time       `db:"created_at"`
}

// OrderItemRow has no image column: the remote store does not keep per-item images.
type OrderItemRow struct {
	ID          int64           `db:"id"`
	OrderID     string          `db:"order_id"`
	ProductID   string          `db:"product_id"`
	ProductName string          `db:"product_name"`
	Price       decimal.Decimal `db:"price"`
	Quantity    int             `db:"quantity"`
}

type ProductRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Stock       int             `db:"stock"`
	Images      StringList      `db:"images"`
	CreatedAt   time.Time       `db:"created_at"`
}

type ShipmentRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// StringList stores a string slice in a JSON column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("cannot scan non-string/[]byte value into StringList")
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// Patch is a partial record for update-by-id, keyed by column name.
type Patch map[string]any

// BatchResult summarises a chunked insert. Failed chunks are skipped, not retried.
type BatchResult struct {
	Batches  int
	Inserted int
	Failed   int
	Errors   []error
}

func (r BatchResult) Err() error {
	return errors.Join(r.Errors...)
}
