package service

import (
	"fmt"
	"strings"

	"backoffice-sync/cache"
	"backoffice-sync/idmap"
	"backoffice-sync/models"
	"backoffice-sync/outbox"
)

func (b *BackOffice) Shipments() []models.Shipment {
	return b.cache.Shipments()
}

func (b *BackOffice) Shipment(id string) (models.Shipment, error) {
	s, ok := b.cache.Shipment(id)
	if !ok {
		return models.Shipment{}, fmt.Errorf("shipment %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// ShipmentCustomers resolves the membership snapshot. Customers deleted
// since the shipment was built are omitted.
func (b *BackOffice) ShipmentCustomers(id string) ([]models.Customer, error) {
	s, err := b.Shipment(id)
	if err != nil {
		return nil, err
	}
	out := make([]models.Customer, 0, len(s.CustomerIDs))
	for _, cid := range s.CustomerIDs {
		if c, ok := b.cache.Customer(cid); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// members checks the requested customers exist and drops duplicates.
func (b *BackOffice) members(customerIDs []string) ([]string, error) {
	if len(customerIDs) == 0 {
		return nil, fmt.Errorf("%w: a shipment needs at least one customer", ErrInvalid)
	}
	seen := make(map[string]bool, len(customerIDs))
	out := make([]string, 0, len(customerIDs))
	for _, id := range customerIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := b.cache.Customer(id); !ok {
			return nil, fmt.Errorf("%w: unknown customer %s", ErrInvalid, id)
		}
		out = append(out, id)
	}
	return out, nil
}

func (b *BackOffice) CreateShipment(name string, customerIDs []string) (models.Shipment, error) {
	ids, err := b.members(customerIDs)
	if err != nil {
		return models.Shipment{}, err
	}
	s := models.Shipment{
		ID:          idmap.NewLocalID(),
		Name:        strings.TrimSpace(name),
		CreatedAt:   b.now(),
		CustomerIDs: ids,
	}

	err = b.cache.UpdateShipments(func(ss []models.Shipment) ([]models.Shipment, error) {
		return append([]models.Shipment{s}, ss...), nil
	})
	if err := applied(err); err != nil {
		return models.Shipment{}, err
	}
	b.changed(outbox.Shipment, outbox.Upsert, s.ID, "", cache.Shipments)
	return s, nil
}

// UpdateShipment renames the shipment and replaces its membership snapshot.
func (b *BackOffice) UpdateShipment(id, name string, customerIDs []string) (models.Shipment, error) {
	ids, err := b.members(customerIDs)
	if err != nil {
		return models.Shipment{}, err
	}
	var out models.Shipment
	err = b.cache.UpdateShipments(func(ss []models.Shipment) ([]models.Shipment, error) {
		for i := range ss {
			if ss[i].ID == id {
				ss[i].Name = strings.TrimSpace(name)
				ss[i].CustomerIDs = ids
				out = ss[i].Clone()
				return ss, nil
			}
		}
		return nil, fmt.Errorf("shipment %s: %w", id, ErrNotFound)
	})
	if err := applied(err); err != nil {
		return models.Shipment{}, err
	}
	b.changed(outbox.Shipment, outbox.Upsert, id, "", cache.Shipments)
	return out, nil
}

func (b *BackOffice) DeleteShipment(id string) error {
	err := b.cache.UpdateShipments(func(ss []models.Shipment) ([]models.Shipment, error) {
		for i := range ss {
			if ss[i].ID == id {
				return append(ss[:i], ss[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("shipment %s: %w", id, ErrNotFound)
	})
	if err := applied(err); err != nil {
		return err
	}
	b.changed(outbox.Shipment, outbox.Delete, id, "", cache.Shipments)
	return nil
}
