// Package session tracks the connected owner identity that scopes which
// locks are visible.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/pkg/ident"
)

// Session is one connection of an owner identity.
type Session struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	ConnectedAt time.Time `json:"connected_at"`
}

// EventKind distinguishes session transitions.
type EventKind string

const (
	Connected    EventKind = "connected"
	Disconnected EventKind = "disconnected"
)

// Event is delivered to subscribers on every transition.
type Event struct {
	Kind    EventKind
	Session Session
}

type subscriber struct {
	id int
	fn func(Event)
}

// Manager owns the current session. Subscribers run synchronously inside
// Connect and Disconnect, in registration order, and must not call back into
// the Manager's mutating methods.
type Manager struct {
	clock clock.PassiveClock

	// held across a whole transition so subscribers see events in order
	transition sync.Mutex

	mu      sync.Mutex
	current *Session
	subs    []subscriber
	nextSub int
}

// NewManager creates a manager with no session.
func NewManager(clk clock.PassiveClock) *Manager {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{clock: clk}
}

// Subscribe registers fn for future transitions. The returned func removes it.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Connect starts a session for identity. Connecting the identity that is
// already connected returns the existing session; a different identity
// replaces it, emitting Disconnected first.
func (m *Manager) Connect(identity string) (Session, error) {
	owner, err := ident.Identity(identity)
	if err != nil {
		return Session{}, err
	}

	m.transition.Lock()
	defer m.transition.Unlock()

	if cur, ok := m.Current(); ok {
		if cur.Owner == owner {
			return cur, nil
		}
		m.disconnectLocked()
	}

	s := Session{
		ID:          uuid.NewString(),
		Owner:       owner,
		ConnectedAt: m.clock.Now().UTC(),
	}
	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()

	m.emit(Event{Kind: Connected, Session: s})
	return s, nil
}

// Disconnect ends the current session, if any.
func (m *Manager) Disconnect() {
	m.transition.Lock()
	defer m.transition.Unlock()
	m.disconnectLocked()
}

func (m *Manager) disconnectLocked() {
	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()

	if cur != nil {
		m.emit(Event{Kind: Disconnected, Session: *cur})
	}
}

// Current returns the active session.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	subs := append([]subscriber(nil), m.subs...)
	m.mu.Unlock()
	for _, s := range subs {
		s.fn(ev)
	}
}
