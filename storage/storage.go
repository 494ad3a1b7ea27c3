// Package storage provides the durable, string-keyed local persistence the
// cache, identifier map and outbox are written to. Calls are synchronous.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"backoffice-sync/config"
)

var ErrQuotaExceeded = errors.New("local storage quota exceeded")

type Storage interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Sizer is implemented by backends that can report the bytes they hold.
type Sizer interface {
	Size() (int, error)
}

// Open builds the backend selected by cfg.LocalStore, wrapped with the configured quota.
func Open(cfg *config.Config) (Storage, func() error, error) {
	var (
		s       Storage
		closeFn func() error
	)
	switch cfg.LocalStore {
	case "memory":
		s, closeFn = NewMemoryStorage(), func() error { return nil }
	case "redis":
		rs, err := NewRedisStorage(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		s, closeFn = rs, rs.Close
	case "sqlite", "":
		ss, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s, closeFn = ss, ss.Close
	default:
		return nil, nil, fmt.Errorf("unknown local store %q", cfg.LocalStore)
	}
	if cfg.LocalQuotaBytes > 0 {
		s = Limit(s, cfg.LocalQuotaBytes)
	}
	return s, closeFn, nil
}

type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Size() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for k, v := range m.values {
		n += len(k) + len(v)
	}
	return n, nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// Limited enforces a byte budget over key and value lengths, like a browser's
// local storage quota.
type Limited struct {
	inner Storage
	max   int

	mu     sync.Mutex
	loaded bool
	sized  bool
	used   int
	sizes  map[string]int
}

func Limit(inner Storage, maxBytes int) *Limited {
	return &Limited{inner: inner, max: maxBytes, sizes: make(map[string]int)}
}

func (l *Limited) Get(key string) (string, bool, error) {
	return l.inner.Get(key)
}

func (l *Limited) Set(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(); err != nil {
		return err
	}
	prev, err := l.sizeOf(key)
	if err != nil {
		return err
	}
	next := len(key) + len(value)
	if l.used-prev+next > l.max {
		return fmt.Errorf("set %q (%d bytes): %w", key, next, ErrQuotaExceeded)
	}
	if err := l.inner.Set(key, value); err != nil {
		return err
	}
	l.used += next - prev
	l.sizes[key] = next
	return nil
}

func (l *Limited) Remove(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(); err != nil {
		return err
	}
	prev, err := l.sizeOf(key)
	if err != nil {
		return err
	}
	if err := l.inner.Remove(key); err != nil {
		return err
	}
	l.used -= prev
	delete(l.sizes, key)
	return nil
}

// load seeds the usage from the backend when it can report its size.
func (l *Limited) load() error {
	if l.loaded {
		return nil
	}
	if sizer, ok := l.inner.(Sizer); ok {
		n, err := sizer.Size()
		if err != nil {
			return err
		}
		l.used = n
		l.sized = true
	}
	l.loaded = true
	return nil
}

// sizeOf learns the size of keys written before this process started. When
// the backend was not sized up front, a newly seen key is added to the usage.
func (l *Limited) sizeOf(key string) (int, error) {
	if n, ok := l.sizes[key]; ok {
		return n, nil
	}
	v, ok, err := l.inner.Get(key)
	if err != nil {
		return 0, err
	}
	n := 0
	if ok {
		n = len(key) + len(v)
		if !l.sized {
			l.used += n
		}
	}
	l.sizes[key] = n
	return n, nil
}
