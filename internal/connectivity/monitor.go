// Package connectivity reports whether the remote feed is reachable and
// notifies listeners on every change of that state.
package connectivity

import (
	"sort"
	"sync"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

type Listener func(state models.ConnectivityState)

type Monitor interface {
	Current() models.ConnectivityState
	// OnChange registers l for state transitions. Repeated reports of the
	// same state never notify. The returned func is idempotent.
	OnChange(l Listener) (unsubscribe func())
}

// notifier is the edge-triggered core shared by the monitors. Notifications
// are serialized so listeners observe transitions in the order they happened.
// A listener must not report a new state from inside its callback.
type notifier struct {
	dispatch sync.Mutex

	mu        sync.Mutex
	state     models.ConnectivityState
	nextID    int
	listeners map[int]Listener
}

func newNotifier(initial models.ConnectivityState) *notifier {
	if initial == "" {
		initial = models.ConnectivityUnknown
	}
	return &notifier{
		state:     initial,
		listeners: make(map[int]Listener),
	}
}

func (n *notifier) Current() models.ConnectivityState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *notifier) OnChange(l Listener) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// report records state and notifies listeners if it differs from the last
// one. Once resolved, the state never goes back to unknown.
func (n *notifier) report(state models.ConnectivityState) bool {
	n.dispatch.Lock()
	defer n.dispatch.Unlock()

	n.mu.Lock()
	if state == models.ConnectivityUnknown || state == n.state {
		n.mu.Unlock()
		return false
	}
	n.state = state
	ids := make([]int, 0, len(n.listeners))
	for id := range n.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, n.listeners[id])
	}
	n.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
	return true
}

// Manual is driven by whoever knows the device network status, typically the
// host UI reporting platform network events.
type Manual struct {
	*notifier
}

func NewManual(initial models.ConnectivityState) *Manual {
	return &Manual{notifier: newNotifier(initial)}
}

// Set reports the current state and returns whether it was a transition.
func (m *Manual) Set(state models.ConnectivityState) bool {
	return m.report(state)
}

// SetConnected is Set for a boolean network flag.
func (m *Manual) SetConnected(connected bool) bool {
	if connected {
		return m.Set(models.ConnectivityConnected)
	}
	return m.Set(models.ConnectivityDisconnected)
}
