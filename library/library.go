// Package library keeps the libraries this node belongs to: the node's own
// identity in each library and the instances allowed to talk to it.
//
// Example:
//
//	m := library.NewManager()
//	lib, _ := m.Add(id, "Photos", identity)
//	lib.AddMember(peerKey, "laptop")
//	err := m.Authorize(id, peerKey)
package library

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/thumbshare/crypto"
	"github.com/sirupsen/logrus"
)

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

type defaultTimeProvider struct{}

func (defaultTimeProvider) Now() time.Time { return time.Now() }

// Member is another instance of a library.
type Member struct {
	PublicKey crypto.PublicKey
	Name      string
	// LastSeen is when the member last authenticated; zero if never.
	LastSeen time.Time
}

// Library is one library this node belongs to.
type Library struct {
	ID       uuid.UUID
	Name     string
	Identity *crypto.KeyPair

	mu           sync.RWMutex
	members      map[crypto.PublicKey]*Member
	timeProvider TimeProvider
}

func newLibrary(id uuid.UUID, name string, identity *crypto.KeyPair, tp TimeProvider) *Library {
	return &Library{
		ID:           id,
		Name:         name,
		Identity:     identity,
		members:      make(map[crypto.PublicKey]*Member),
		timeProvider: tp,
	}
}

// AddMember allows key to connect as an instance of the library. Adding an
// existing member updates its name.
func (l *Library) AddMember(key crypto.PublicKey, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.members[key]; ok {
		m.Name = name
		return
	}
	l.members[key] = &Member{PublicKey: key, Name: name}

	logrus.WithFields(logrus.Fields{
		"function":   "AddMember",
		"library_id": l.ID,
		"member":     key.Short(),
		"name":       name,
	}).Info("Library member added")
}

// RemoveMember revokes key. It reports whether key was a member.
func (l *Library) RemoveMember(key crypto.PublicKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.members[key]; !ok {
		return false
	}
	delete(l.members, key)
	return true
}

// IsMember reports whether key belongs to the library. The node's own key
// always does.
func (l *Library) IsMember(key crypto.PublicKey) bool {
	if l.Identity != nil && l.Identity.Public == key {
		return true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.members[key]
	return ok
}

// Members returns a snapshot of the members ordered by name.
func (l *Library) Members() []Member {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Member, 0, len(l.members))
	for _, m := range l.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (l *Library) touch(key crypto.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.members[key]; ok {
		m.LastSeen = l.timeProvider.Now()
	}
}
