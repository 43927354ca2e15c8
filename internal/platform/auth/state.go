package auth

import (
	"slices"
	"sync"
)

// StateChange describes a sign-in or sign-out of a back-office user.
type StateChange struct {
	UID      string
	Email    string
	SignedIn bool
}

// StateNotifier fans auth state changes out to registered listeners.
type StateNotifier struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(StateChange)
}

// NewStateNotifier returns an empty notifier.
func NewStateNotifier() *StateNotifier {
	return &StateNotifier{listeners: make(map[int]func(StateChange))}
}

// Subscribe registers fn and returns a function that removes it. The returned function is safe to
// call more than once.
func (n *StateNotifier) Subscribe(fn func(StateChange)) func() {
	if fn == nil {
		return func() {}
	}
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
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

// Publish delivers change to every listener registered at the time of the call, in registration order.
func (n *StateNotifier) Publish(change StateChange) {
	n.mu.RLock()
	ids := make([]int, 0, len(n.listeners))
	for id := range n.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(StateChange), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.listeners[id])
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}
