package models

import (
	"sort"
	"time"
)

type Customer struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Phone     string       `json:"phone"`
	Address   string       `json:"address,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Tour      *TourBooking `json:"tour,omitempty"`
	Orders    []Order      `json:"orders"`
}

// TourBooking carries the optional tour attributes of a customer.
type TourBooking struct {
	TourName      string `json:"tour_name,omitempty"`
	Sector        string `json:"sector,omitempty"`
	SeatNumber    string `json:"seat_number,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	DepartureTime string `json:"departure_time,omitempty"`
}

func (c Customer) Key() NaturalKey {
	return KeyFor(c.Name, c.Email)
}

func (c Customer) FindOrder(orderID string) (int, bool) {
	for i, o := range c.Orders {
		if o.ID == orderID {
			return i, true
		}
	}
	return -1, false
}

// HasPendingOrders reports whether any order is still pending; only such
// customers are offered when building a shipment.
func (c Customer) HasPendingOrders() bool {
	for _, o := range c.Orders {
		if o.Status == StatusPending {
			return true
		}
	}
	return false
}

func (c Customer) Clone() Customer {
	out := c
	if c.Tour != nil {
		tour := *c.Tour
		out.Tour = &tour
	}
	if c.Orders != nil {
		out.Orders = make([]Order, len(c.Orders))
		for i, o := range c.Orders {
			out.Orders[i] = o.Clone()
		}
	}
	return out
}

// SortOrders orders newest first.
func SortOrders(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func CloneCustomers(in []Customer) []Customer {
	if in == nil {
		return nil
	}
	out := make([]Customer, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
