// Package credential holds the current bearer token and the cookies that back
// server-side refresh.
//
// The token slot is process-wide state owned by whoever constructs the Store;
// there is no package-level instance. At most one token is current at a time,
// and an empty slot means "signed out".
package credential

import "sync"

// Store is the single slot holding the current access token.
//
// Implementations are safe for concurrent use and do no validation of the
// token's shape or expiry.
type Store interface {
	// Get returns the current token. ok is false when the slot is empty.
	Get() (token string, ok bool)

	// Set overwrites the slot unconditionally.
	Set(token string) error

	// Clear empties the slot. Clearing an empty slot is not an error.
	Clear() error

	// Version increases on every Set and Clear. A Version read before Get
	// is never newer than the token Get returns.
	Version() uint64

	// SetIf writes token, or empties the slot when token is "", only if no
	// Set or Clear happened since version was read. It reports whether it
	// wrote.
	SetIf(version uint64, token string) (bool, error)
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu      sync.RWMutex
	token   string
	version uint64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

func (m *MemoryStore) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.version++
	return nil
}

func (m *MemoryStore) Clear() error {
	return m.Set("")
}

func (m *MemoryStore) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *MemoryStore) SetIf(version uint64, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version != version {
		return false, nil
	}
	m.token = token
	m.version++
	return true, nil
}
