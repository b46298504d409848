package file

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTransferNotFound indicates no active transfer has the given id.
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrDuplicateTransfer indicates a transfer with the same id is active.
	ErrDuplicateTransfer = errors.New("transfer already registered")
)

// Manager tracks active transfers so they can be inspected and cancelled by
// id from outside the goroutine driving them.
type Manager struct {
	mu        sync.RWMutex
	transfers map[uuid.UUID]*Transfer
}

// NewManager creates an empty transfer registry.
func NewManager() *Manager {
	return &Manager{
		transfers: make(map[uuid.UUID]*Transfer),
	}
}

// Track registers t and removes it again when it completes. Any completion
// callback already set on t is preserved.
func (m *Manager) Track(t *Transfer) error {
	m.mu.Lock()
	if _, exists := m.transfers[t.ID]; exists {
		m.mu.Unlock()
		return ErrDuplicateTransfer
	}
	m.transfers[t.ID] = t
	m.mu.Unlock()

	t.mu.Lock()
	previous := t.completeCallback
	t.completeCallback = func(err error) {
		m.Remove(t.ID)
		if previous != nil {
			previous(err)
		}
	}
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Track",
		"transfer_id": t.ID,
		"direction":   t.Direction,
	}).Debug("Tracking transfer")
	return nil
}

// Get returns the active transfer with the given id.
func (m *Manager) Get(id uuid.UUID) (*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transfers[id]
	if !ok {
		return nil, ErrTransferNotFound
	}
	return t, nil
}

// Cancel requests cancellation of the active transfer with the given id.
func (m *Manager) Cancel(id uuid.UUID) error {
	t, err := m.Get(id)
	if err != nil {
		return err
	}
	t.Cancel()

	logrus.WithFields(logrus.Fields{
		"function":    "Cancel",
		"transfer_id": id,
	}).Info("Cancellation requested")
	return nil
}

// Remove forgets the transfer with the given id.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transfers, id)
}

// Active returns a snapshot of the tracked transfers.
func (m *Manager) Active() []*Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Transfer, 0, len(m.transfers))
	for _, t := range m.transfers {
		out = append(out, t)
	}
	return out
}
