package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNaturalKeyIgnoresCaseAndSpace(t *testing.T) {
	local := Customer{Name: "joão silva", Email: "JOAO@x.com"}
	remote := Customer{Name: " João Silva ", Email: "joao@x.com"}

	assert.Equal(t, local.Key(), remote.Key())
	assert.NotEqual(t, local.Key(), KeyFor("joão silva", "other@x.com"))
}

func TestNaturalKeyComposesAccents(t *testing.T) {
	// "a" + combining tilde vs precomposed "ã"
	assert.Equal(t, KeyFor("Joa\u0303o", "j@x.com"), KeyFor("Jo\u00e3o", "J@X.COM"))
}

func TestNewOrderTotalsLineItems(t *testing.T) {
	items := []OrderItem{
		{ProductID: "p1", Price: decimal.RequireFromString("40.00"), Quantity: 2},
		{ProductID: "p2", Price: decimal.RequireFromString("20.00"), Quantity: 1},
	}
	o := NewOrder("o1", "c1", items, time.Now())

	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("100.00")))
	assert.False(t, o.TotalMismatch())

	o.Total = decimal.RequireFromString("90.00")
	assert.True(t, o.TotalMismatch())
}

func TestOrderStatusValid(t *testing.T) {
	assert.True(t, StatusCancelled.Valid())
	assert.False(t, OrderStatus("shipped").Valid())
}

func TestCustomerCloneIsDeep(t *testing.T) {
	c := Customer{
		ID:   "c1",
		Tour: &TourBooking{SeatNumber: "12"},
		Orders: []Order{{
			ID:    "o1",
			Items: []OrderItem{{ProductID: "p1", Images: []string{"a.png"}}},
		}},
	}
	clone := c.Clone()
	clone.Tour.SeatNumber = "13"
	clone.Orders[0].Items[0].Images[0] = "b.png"

	assert.Equal(t, "12", c.Tour.SeatNumber)
	assert.Equal(t, "a.png", c.Orders[0].Items[0].Images[0])
}

func TestSortOrdersNewestFirst(t *testing.T) {
	now := time.Now()
	orders := []Order{
		{ID: "old", CreatedAt: now.Add(-time.Hour)},
		{ID: "new", CreatedAt: now},
	}
	SortOrders(orders)
	assert.Equal(t, "new", orders[0].ID)
}

func TestProductValidate(t *testing.T) {
	assert.NoError(t, Product{Name: "Tour", Price: decimal.NewFromInt(10)}.Validate())
	assert.Error(t, Product{Name: "Tour", Price: decimal.NewFromInt(-1)}.Validate())
	assert.Error(t, Product{Name: "Tour", Stock: -1}.Validate())
	assert.Error(t, Product{Name: "  "}.Validate())
}
