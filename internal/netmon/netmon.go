// Package netmon is the single source of truth for backend reachability.
//
// The monitor itself does no probing: something platform-specific (an OS
// network-change signal, a failed request, the daemon's connectivity check)
// calls Set, and the monitor fans the transition out to every subscriber.
package netmon

import "sync"

// Callback receives the current online state: immediately on subscribe, then
// on every transition.
type Callback func(online bool)

// Monitor fans an online/offline signal out to subscribers.
// The zero value is not usable; use New.
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]Callback
}

// New creates a Monitor with the given initial state.
func New(initialOnline bool) *Monitor {
	return &Monitor{
		online: initialOnline,
		subs:   make(map[int]Callback),
	}
}

// Online returns the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers cb and invokes it immediately with the current state.
// The returned function removes the subscription.
func (m *Monitor) Subscribe(cb Callback) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = cb
	current := m.online
	m.mu.Unlock()

	cb(current)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Set records the platform-observed state. Only actual transitions notify
// subscribers; repeated reports of the same state are dropped here so
// downstream consumers never see duplicate signals.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	cbs := make([]Callback, 0, len(m.subs))
	for _, cb := range m.subs {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	// Callbacks run outside the lock so a subscriber may Subscribe or
	// Set without deadlocking.
	for _, cb := range cbs {
		cb(online)
	}
}
