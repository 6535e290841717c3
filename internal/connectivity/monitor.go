// Package connectivity tracks network reachability and fans state transitions
// out to registered listeners. Listeners are invoked exactly once per
// observed transition, never for repeated identical states.
package connectivity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/partysync/internal/logging"
)

// Probe reports whether the server is currently reachable.
type Probe func(ctx context.Context) bool

// Listener is notified with the new state after each transition.
type Listener func(online bool)

// Monitor observes connectivity. Construct with New, feed it state either by
// running the polling loop (Run) or by pushing events from a platform
// connectivity primitive (SetOnline).
type Monitor struct {
	probe    Probe
	interval time.Duration
	log      logging.Logger

	mu        sync.Mutex
	online    bool
	listeners map[int]Listener
	nextID    int
}

// New builds a Monitor and performs one synchronous probe to establish the
// initial state before any listener can fire.
func New(probe Probe, interval time.Duration, log logging.Logger) *Monitor {
	if log == nil {
		log = logging.Discard()
	}
	m := &Monitor{
		probe:     probe,
		interval:  interval,
		log:       log,
		listeners: make(map[int]Listener),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.online = probe(ctx)
	return m
}

// IsOnline returns the last observed reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// AddListener registers fn and returns an id for RemoveListener.
func (m *Monitor) AddListener(fn Listener) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return id
}

// RemoveListener unregisters the listener with the given id.
func (m *Monitor) RemoveListener(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// SetOnline records a reachability observation. On transition the listeners
// fire synchronously, in registration order; a repeated identical state is a
// no-op.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.mu.Unlock()

	m.log.Info(context.Background(), "connectivity changed", "online", online)
	for _, fn := range fns {
		fn(online)
	}
}

// Run polls the probe at the configured interval until ctx is done. Use it
// when no push-style connectivity primitive is available.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.probe(ctx))
		}
	}
}
