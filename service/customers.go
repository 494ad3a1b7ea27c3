package service

import (
	"fmt"
	"strings"

	"backoffice-sync/cache"
	"backoffice-sync/idmap"
	"backoffice-sync/models"
	"backoffice-sync/outbox"
)

type CustomerInput struct {
	Name    string
	Email   string
	Phone   string
	Address string
	Tour    *models.TourBooking
}

func (in CustomerInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalid)
	}
	return nil
}

func (in CustomerInput) apply(c *models.Customer) {
	c.Name = strings.TrimSpace(in.Name)
	c.Email = strings.TrimSpace(in.Email)
	c.Phone = strings.TrimSpace(in.Phone)
	c.Address = strings.TrimSpace(in.Address)
	c.Tour = nil
	if in.Tour != nil {
		tour := *in.Tour
		c.Tour = &tour
	}
}

func (b *BackOffice) Customers() []models.Customer {
	return b.cache.Customers()
}

func (b *BackOffice) Customer(id string) (models.Customer, error) {
	c, ok := b.cache.Customer(id)
	if !ok {
		return models.Customer{}, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	return c, nil
}

// PendingCustomers lists customers with at least one pending order, the
// candidates for a new shipment.
func (b *BackOffice) PendingCustomers() []models.Customer {
	var out []models.Customer
	for _, c := range b.cache.Customers() {
		if c.HasPendingOrders() {
			out = append(out, c)
		}
	}
	return out
}

func (b *BackOffice) AddCustomer(in CustomerInput) (models.Customer, error) {
	if err := in.validate(); err != nil {
		return models.Customer{}, err
	}
	c := models.Customer{ID: idmap.NewLocalID(), CreatedAt: b.now(), Orders: []models.Order{}}
	in.apply(&c)

	err := b.cache.UpdateCustomers(func(cs []models.Customer) ([]models.Customer, error) {
		return append([]models.Customer{c}, cs...), nil
	})
	if err := applied(err); err != nil {
		return models.Customer{}, err
	}
	b.changed(outbox.Customer, outbox.Upsert, c.ID, "", cache.Customers)
	return c, nil
}

func (b *BackOffice) UpdateCustomer(id string, in CustomerInput) (models.Customer, error) {
	if err := in.validate(); err != nil {
		return models.Customer{}, err
	}
	var out models.Customer
	err := b.cache.UpdateCustomers(func(cs []models.Customer) ([]models.Customer, error) {
		for i := range cs {
			if cs[i].ID == id {
				in.apply(&cs[i])
				out = cs[i].Clone()
				return cs, nil
			}
		}
		return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	})
	if err := applied(err); err != nil {
		return models.Customer{}, err
	}
	b.changed(outbox.Customer, outbox.Upsert, id, "", cache.Customers)
	return out, nil
}

// DeleteCustomer removes the customer and its orders. Shipments keep their
// snapshot; the missing member is omitted when read back.
func (b *BackOffice) DeleteCustomer(id string) error {
	err := b.cache.UpdateCustomers(func(cs []models.Customer) ([]models.Customer, error) {
		for i := range cs {
			if cs[i].ID == id {
				return append(cs[:i], cs[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	})
	if err := applied(err); err != nil {
		return err
	}
	b.changed(outbox.Customer, outbox.Delete, id, "", cache.Customers)
	return nil
}
