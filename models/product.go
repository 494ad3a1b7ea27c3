package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Images      []string        `json:"images"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name is required")
	}
	if p.Price.IsNegative() {
		return errors.New("product price must not be negative")
	}
	if p.Stock < 0 {
		return errors.New("product stock must not be negative")
	}
	return nil
}

func (p Product) Clone() Product {
	c := p
	c.Images = cloneStrings(p.Images)
	return c
}

// LineItem snapshots the product into an order line.
func (p Product) LineItem(quantity int) OrderItem {
	return OrderItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		Price:       p.Price,
		Images:      cloneStrings(p.Images),
		Quantity:    quantity,
	}
}

func CloneProducts(in []Product) []Product {
	if in == nil {
		return nil
	}
	out := make([]Product, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
