// Package cache holds the canonical in-memory snapshot of the catalog and
// writes it through to local storage on every change.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"backoffice-sync/models"
	"backoffice-sync/storage"
)

type Kind string

const (
	Customers Kind = "customers"
	Products  Kind = "products"
	Shipments Kind = "shipments"
)

type Store struct {
	mu        sync.RWMutex
	storage   storage.Storage
	customers []models.Customer
	products  []models.Product
	shipments []models.Shipment
}

func New(s storage.Storage) *Store {
	return &Store{storage: s}
}

// Load reads every collection back from storage. Missing keys leave the
// collection empty; corrupt ones are logged and skipped.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	load(s.storage, Customers, &s.customers)
	load(s.storage, Products, &s.products)
	load(s.storage, Shipments, &s.shipments)
}

func load(st storage.Storage, kind Kind, dst any) {
	raw, ok, err := st.Get(string(kind))
	if err != nil {
		log.Printf("[cache] failed to read %s: %v", kind, err)
		return
	}
	if !ok {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		log.Printf("[cache] discarding corrupt %s snapshot: %v", kind, err)
	}
}

func (s *Store) Customers() []models.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneCustomers(s.customers)
}

func (s *Store) Products() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneProducts(s.products)
}

func (s *Store) Shipments() []models.Shipment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneShipments(s.shipments)
}

// Customer returns a copy of one customer.
func (s *Store) Customer(id string) (models.Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.customers {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return models.Customer{}, false
}

func (s *Store) Product(id string) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return models.Product{}, false
}

func (s *Store) Shipment(id string) (models.Shipment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sh := range s.shipments {
		if sh.ID == id {
			return sh.Clone(), true
		}
	}
	return models.Shipment{}, false
}

// SetCustomers replaces the collection. The in-memory value is visible to
// readers before persistence is attempted; a persistence failure is logged
// and returned for callers that want to warn, never rolled back.
func (s *Store) SetCustomers(customers []models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = models.CloneCustomers(customers)
	return s.persist(Customers, s.customers)
}

func (s *Store) SetProducts(products []models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = models.CloneProducts(products)
	return s.persist(Products, s.products)
}

func (s *Store) SetShipments(shipments []models.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shipments = models.CloneShipments(shipments)
	return s.persist(Shipments, s.shipments)
}

// UpdateCustomers runs a read-modify-write under the store lock so two
// writers cannot clobber each other. fn receives a private copy.
func (s *Store) UpdateCustomers(fn func([]models.Customer) ([]models.Customer, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(models.CloneCustomers(s.customers))
	if err != nil {
		return err
	}
	s.customers = next
	return s.persist(Customers, s.customers)
}

func (s *Store) UpdateProducts(fn func([]models.Product) ([]models.Product, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(models.CloneProducts(s.products))
	if err != nil {
		return err
	}
	s.products = next
	return s.persist(Products, s.products)
}

func (s *Store) UpdateShipments(fn func([]models.Shipment) ([]models.Shipment, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(models.CloneShipments(s.shipments))
	if err != nil {
		return err
	}
	s.shipments = next
	return s.persist(Shipments, s.shipments)
}

// PersistError marks a write that was applied in memory but not stored.
type PersistError struct {
	Kind Kind
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Kind, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func (s *Store) persist(kind Kind, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("[cache] failed to encode %s: %v", kind, err)
		return &PersistError{Kind: kind, Err: err}
	}
	if err := s.storage.Set(string(kind), string(raw)); err != nil {
		log.Printf("[cache] failed to persist %s: %v", kind, err)
		return &PersistError{Kind: kind, Err: err}
	}
	return nil
}

// Applied reports whether a write took effect in memory: err is nil or only
// a persistence failure.
func Applied(err error) bool {
	var pe *PersistError
	return err == nil || errors.As(err, &pe)
}
