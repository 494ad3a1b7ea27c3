package cache

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice-sync/models"
	"backoffice-sync/storage"
)

func TestReadAfterWrite(t *testing.T) {
	s := New(storage.NewMemoryStorage())

	require.NoError(t, s.SetCustomers([]models.Customer{{ID: "c1", Name: "Ana"}}))

	got := s.Customers()
	require.Len(t, got, 1)
	assert.Equal(t, "Ana", got[0].Name)
}

func TestSnapshotSurvivesReload(t *testing.T) {
	st := storage.NewMemoryStorage()
	s := New(st)
	require.NoError(t, s.SetProducts([]models.Product{{ID: "p1", Name: "Tour", Price: decimal.RequireFromString("12.50")}}))
	require.NoError(t, s.SetShipments([]models.Shipment{{ID: "s1", CustomerIDs: []string{"c1"}}}))

	reloaded := New(st)
	reloaded.Load()

	products := reloaded.Products()
	require.Len(t, products, 1)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, []string{"c1"}, reloaded.Shipments()[0].CustomerIDs)
}

func TestPersistenceFailureStillUpdatesMemory(t *testing.T) {
	s := New(storage.Limit(storage.NewMemoryStorage(), 4))

	err := s.SetCustomers([]models.Customer{{ID: "c1"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
	assert.True(t, Applied(err))
	assert.Len(t, s.Customers(), 1)
}

func TestReadersGetCopies(t *testing.T) {
	s := New(storage.NewMemoryStorage())
	require.NoError(t, s.SetCustomers([]models.Customer{{ID: "c1", Name: "Ana"}}))

	got := s.Customers()
	got[0].Name = "changed"

	c, ok := s.Customer("c1")
	require.True(t, ok)
	assert.Equal(t, "Ana", c.Name)
}

func TestUpdateCustomersAbortsOnError(t *testing.T) {
	s := New(storage.NewMemoryStorage())
	require.NoError(t, s.SetCustomers([]models.Customer{{ID: "c1"}}))

	boom := errors.New("boom")
	err := s.UpdateCustomers(func(cs []models.Customer) ([]models.Customer, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, Applied(err))
	assert.Len(t, s.Customers(), 1)
}

func TestLoadSkipsCorruptSnapshot(t *testing.T) {
	st := storage.NewMemoryStorage()
	require.NoError(t, st.Set(string(Customers), "nope"))
	require.NoError(t, st.Set(string(Products), `[{"id":"p1","name":"Tour","price":"1"}]`))

	s := New(st)
	s.Load()

	assert.Empty(t, s.Customers())
	assert.Len(t, s.Products(), 1)
}
