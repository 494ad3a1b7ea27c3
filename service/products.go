package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"backoffice-sync/cache"
	"backoffice-sync/idmap"
	"backoffice-sync/models"
	"backoffice-sync/outbox"
)

type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Images      []string
}

func (in ProductInput) apply(p *models.Product) error {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.Stock = in.Stock
	p.Images = append([]string(nil), in.Images...)
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (b *BackOffice) Products() []models.Product {
	return b.cache.Products()
}

func (b *BackOffice) Product(id string) (models.Product, error) {
	p, ok := b.cache.Product(id)
	if !ok {
		return models.Product{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (b *BackOffice) AddProduct(in ProductInput) (models.Product, error) {
	p := models.Product{ID: idmap.NewLocalID(), CreatedAt: b.now()}
	if err := in.apply(&p); err != nil {
		return models.Product{}, err
	}

	err := b.cache.UpdateProducts(func(ps []models.Product) ([]models.Product, error) {
		return append([]models.Product{p}, ps...), nil
	})
	if err := applied(err); err != nil {
		return models.Product{}, err
	}
	b.changed(outbox.Product, outbox.Upsert, p.ID, "", cache.Products)
	return p, nil
}

// UpdateProduct edits the catalog entry. Orders keep the snapshot taken when
// they were placed.
func (b *BackOffice) UpdateProduct(id string, in ProductInput) (models.Product, error) {
	var out models.Product
	err := b.cache.UpdateProducts(func(ps []models.Product) ([]models.Product, error) {
		for i := range ps {
			if ps[i].ID != id {
				continue
			}
			if err := in.apply(&ps[i]); err != nil {
				return nil, err
			}
			out = ps[i].Clone()
			return ps, nil
		}
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	})
	if err := applied(err); err != nil {
		return models.Product{}, err
	}
	b.changed(outbox.Product, outbox.Upsert, id, "", cache.Products)
	return out, nil
}

func (b *BackOffice) DeleteProduct(id string) error {
	err := b.cache.UpdateProducts(func(ps []models.Product) ([]models.Product, error) {
		for i := range ps {
			if ps[i].ID == id {
				return append(ps[:i], ps[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	})
	if err := applied(err); err != nil {
		return err
	}
	b.changed(outbox.Product, outbox.Delete, id, "", cache.Products)
	return nil
}
