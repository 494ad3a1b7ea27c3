package storage

import (
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	s := NewMemoryStorage()

	_, ok, err := s.Get("customers")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("customers", "[]"))
	v, ok, err := s.Get("customers")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", v)

	require.NoError(t, s.Remove("customers"))
	_, ok, _ = s.Get("customers")
	assert.False(t, ok)
}

func TestLimitRejectsWritesOverQuota(t *testing.T) {
	inner := NewMemoryStorage()
	s := Limit(inner, 20)

	require.NoError(t, s.Set("k", "0123456789"))
	err := s.Set("other", "0123456789")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// replacing an existing key only counts the difference
	require.NoError(t, s.Set("k", "0123456789abcdef"))

	require.NoError(t, s.Remove("k"))
	require.NoError(t, s.Set("other", "0123456789"))
}

func TestLimitCountsPreexistingKeys(t *testing.T) {
	inner := NewMemoryStorage()
	require.NoError(t, inner.Set("old", "0123456789"))

	s := Limit(inner, 20)
	assert.ErrorIs(t, s.Set("new", "0123456789"), ErrQuotaExceeded)
}

func newMockSQLite(t *testing.T) (*SQLiteStorage, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS kv`).WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLiteStorage(db)
	require.NoError(t, err)
	return s, mock
}

func TestSQLiteStorageGet(t *testing.T) {
	s, mock := newMockSQLite(t)

	mock.ExpectQuery(`SELECT value FROM kv WHERE key = \?`).
		WithArgs("customers").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`[{"id":"c1"}]`))
	mock.ExpectQuery(`SELECT value FROM kv WHERE key = \?`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	v, ok, err := s.Get("customers")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"c1"}]`, v)

	_, ok, err = s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStorageSetAndRemove(t *testing.T) {
	s, mock := newMockSQLite(t)

	mock.ExpectExec(`INSERT INTO kv \(key, value\) VALUES \(\?, \?\) ON CONFLICT\(key\) DO UPDATE`).
		WithArgs("outbox", "[]").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM kv WHERE key = \?`).
		WithArgs("outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Set("outbox", "[]"))
	require.NoError(t, s.Remove("outbox"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	s, err := NewRedisStorage(url)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("test:key", "value"))
	v, ok, err := s.Get("test:key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", v)
	require.NoError(t, s.Remove("test:key"))
}
