// Package remote talks to the hosted relational store that mirrors the local
// catalog. Every call is a single attempt; retries belong to the outbox.
package remote

import (
	"context"
	"fmt"
	"log"
)

type Store interface {
	FetchCustomers(ctx context.Context) ([]CustomerRow, error)
	CustomerExists(ctx context.Context, id string) (bool, error)
	InsertCustomer(ctx context.Context, row CustomerRow) error
	UpdateCustomer(ctx context.Context, id string, patch Patch) error
	DeleteCustomer(ctx context.Context, id string) error

	FetchProducts(ctx context.Context) ([]ProductRow, error)
	ProductExists(ctx context.Context, id string) (bool, error)
	InsertProduct(ctx context.Context, row ProductRow) error
	UpdateProduct(ctx context.Context, id string, patch Patch) error
	DeleteProduct(ctx context.Context, id string) error

	FetchOrdersByCustomer(ctx context.Context, customerID string) ([]OrderRow, error)
	OrderExists(ctx context.Context, id string) (bool, error)
	InsertOrder(ctx context.Context, row OrderRow) error
	UpdateOrder(ctx context.Context, id string, patch Patch) error
	DeleteOrder(ctx context.Context, id string) error

	FetchOrderItems(ctx context.Context, orderIDs []string) ([]OrderItemRow, error)
	InsertOrderItems(ctx context.Context, items []OrderItemRow) error
	DeleteOrderItems(ctx context.Context, orderID string) error

	FetchShipments(ctx context.Context) ([]ShipmentRow, error)
	ShipmentExists(ctx context.Context, id string) (bool, error)
	InsertShipment(ctx context.Context, row ShipmentRow) error
	UpdateShipment(ctx context.Context, id string, patch Patch) error
	DeleteShipment(ctx context.Context, id string) error
	FetchShipmentCustomers(ctx context.Context, shipmentID string) ([]string, error)
	ReplaceShipmentCustomers(ctx context.Context, shipmentID string, customerIDs []string) error
}

// InsertOrderItemsBatched inserts items in chunks of size. A failing chunk is
// logged and skipped; its siblings still run.
func InsertOrderItemsBatched(ctx context.Context, s Store, items []OrderItemRow, size int) BatchResult {
	var res BatchResult
	if size <= 0 {
		size = len(items)
	}
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]
		res.Batches++
		if err := s.InsertOrderItems(ctx, chunk); err != nil {
			log.Printf("[remote] skipping order item batch %d (%d rows): %v", res.Batches, len(chunk), err)
			res.Failed += len(chunk)
			res.Errors = append(res.Errors, fmt.Errorf("batch %d: %w", res.Batches, err))
			continue
		}
		res.Inserted += len(chunk)
	}
	return res
}
