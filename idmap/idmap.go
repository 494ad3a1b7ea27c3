// Package idmap keeps the persisted table pairing locally minted identifiers
// with the identifiers used by the remote store. The table only grows.
package idmap

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"backoffice-sync/storage"
)

const storageKey = "id_mappings"

type table struct {
	LocalToRemote map[string]string `json:"local_to_remote"`
	RemoteToLocal map[string]string `json:"remote_to_local"`
}

type Mapper struct {
	mu    sync.Mutex
	store storage.Storage
	t     table
}

// New loads the table from store. A missing or unreadable table starts empty.
func New(store storage.Storage) *Mapper {
	m := &Mapper{
		store: store,
		t: table{
			LocalToRemote: make(map[string]string),
			RemoteToLocal: make(map[string]string),
		},
	}

	raw, ok, err := store.Get(storageKey)
	if err != nil {
		log.Printf("[idmap] failed to load mappings: %v", err)
		return m
	}
	if !ok {
		return m
	}
	var loaded table
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		log.Printf("[idmap] discarding corrupt mappings: %v", err)
		return m
	}
	for l, r := range loaded.LocalToRemote {
		m.t.LocalToRemote[l] = r
	}
	for r, l := range loaded.RemoteToLocal {
		m.t.RemoteToLocal[r] = l
	}
	return m
}

// ResolveRemoteID returns the remote identifier for localID, minting and
// persisting a random UUID on first use.
func (m *Mapper) ResolveRemoteID(localID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.t.LocalToRemote[localID]; ok {
		return r
	}
	r := uuid.NewString()
	m.link(localID, r)
	return r
}

// ResolveLocalID returns the local identifier for remoteID, minting one for
// remote records that have no local counterpart yet.
func (m *Mapper) ResolveLocalID(remoteID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.t.RemoteToLocal[remoteID]; ok {
		return l
	}
	l := NewLocalID()
	m.link(l, remoteID)
	return l
}

// Bind records a pair discovered elsewhere, e.g. a natural-key match.
// It reports false when either side is already bound to something else;
// existing pairs are never overwritten.
func (m *Mapper) Bind(localID, remoteID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, hasLocal := m.t.LocalToRemote[localID]
	l, hasRemote := m.t.RemoteToLocal[remoteID]
	if hasLocal || hasRemote {
		return hasLocal && hasRemote && r == remoteID && l == localID
	}
	m.link(localID, remoteID)
	return true
}

// RemoteID looks up without minting.
func (m *Mapper) RemoteID(localID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.t.LocalToRemote[localID]
	return r, ok
}

// LocalID looks up without minting.
func (m *Mapper) LocalID(remoteID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.t.RemoteToLocal[remoteID]
	return l, ok
}

func (m *Mapper) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.t.LocalToRemote)
}

// link must be called with mu held. Persistence failures are logged; the
// in-memory pair still holds for the rest of the session.
func (m *Mapper) link(localID, remoteID string) {
	m.t.LocalToRemote[localID] = remoteID
	m.t.RemoteToLocal[remoteID] = localID

	raw, err := json.Marshal(m.t)
	if err != nil {
		log.Printf("[idmap] failed to encode mappings: %v", err)
		return
	}
	if err := m.store.Set(storageKey, string(raw)); err != nil {
		log.Printf("[idmap] failed to persist mappings: %v", err)
	}
}

// NewLocalID mints an identifier for a locally created entity.
func NewLocalID() string {
	return uuid.NewString()
}

// ValidRemoteID reports whether id has the format the remote store requires.
func ValidRemoteID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}
