package library

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/thumbshare/crypto"
	"github.com/opd-ai/thumbshare/tunnel"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound indicates the library is not held locally. It matches
	// tunnel.ErrUnknownLibrary.
	ErrNotFound = fmt.Errorf("library not found: %w", tunnel.ErrUnknownLibrary)
	// ErrNotMember indicates a key outside the library's member list.
	ErrNotMember = errors.New("not a library member")
	// ErrExists indicates a library with the same id was already added.
	ErrExists = errors.New("library already exists")
	// ErrNoIdentity indicates a library added without a key pair.
	ErrNoIdentity = errors.New("library has no identity")
)

// Manager holds every library of the node. It implements tunnel.Keyring.
type Manager struct {
	mu           sync.RWMutex
	libraries    map[uuid.UUID]*Library
	timeProvider TimeProvider
}

var _ tunnel.Keyring = (*Manager)(nil)

// NewManager creates an empty manager.
func NewManager() *Manager {
	return NewManagerWithTimeProvider(nil)
}

// NewManagerWithTimeProvider creates an empty manager with a custom clock.
func NewManagerWithTimeProvider(tp TimeProvider) *Manager {
	if tp == nil {
		tp = defaultTimeProvider{}
	}
	return &Manager{
		libraries:    make(map[uuid.UUID]*Library),
		timeProvider: tp,
	}
}

// Add registers a library with the node's identity in it and its initial
// members.
func (m *Manager) Add(id uuid.UUID, name string, identity *crypto.KeyPair, members ...crypto.PublicKey) (*Library, error) {
	if identity == nil {
		return nil, ErrNoIdentity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.libraries[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}

	lib := newLibrary(id, name, identity, m.timeProvider)
	for _, key := range members {
		lib.AddMember(key, "")
	}
	m.libraries[id] = lib

	logrus.WithFields(logrus.Fields{
		"function":   "Add",
		"library_id": id,
		"name":       name,
		"identity":   identity.Public.Short(),
		"members":    len(members),
	}).Info("Library added")

	return lib, nil
}

// Get returns the library with the given id.
func (m *Manager) Get(id uuid.UUID) (*Library, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lib, ok := m.libraries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return lib, nil
}

// Remove forgets a library.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.libraries, id)
}

// List returns every library ordered by name.
func (m *Manager) List() []*Library {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Library, 0, len(m.libraries))
	for _, lib := range m.libraries {
		out = append(out, lib)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Identity returns the node's key pair in the library.
func (m *Manager) Identity(id uuid.UUID) (*crypto.KeyPair, error) {
	lib, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return lib.Identity, nil
}

// Authorize checks that remote is a member of the library and records when
// it was seen.
func (m *Manager) Authorize(id uuid.UUID, remote crypto.PublicKey) error {
	lib, err := m.Get(id)
	if err != nil {
		return err
	}
	if !lib.IsMember(remote) {
		return fmt.Errorf("%w: %s in %s", ErrNotMember, remote.Short(), id)
	}
	lib.touch(remote)
	return nil
}

// Close forgets every library and wipes the node's private keys in them.
// Callers must not use identities obtained earlier once Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, lib := range m.libraries {
		crypto.WipeKeyPair(lib.Identity)
		delete(m.libraries, id)
	}
}
