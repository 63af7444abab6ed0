// Package syncstatus tracks whether a process's background dependencies
// have finished loading. Components register a key, mark it loaded or
// failed, and readiness probes read an aggregate snapshot.
package syncstatus

import (
	"maps"
	"sort"
	"sync"
)

// State is the load state of one registered key.
type State string

// Key states.
const (
	StatePending State = "pending"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
)

// Status is a point-in-time view of every registered key.
type Status struct {
	Total  int `json:"total"`
	Loaded int `json:"loaded"`
	Failed int `json:"failed"`

	// Ready is true when every registered key has loaded. A process with
	// nothing registered is ready.
	Ready bool `json:"ready"`

	// Pending lists keys still loading, sorted.
	Pending []string `json:"pending,omitempty"`

	// Errors maps failed keys to their error message.
	Errors map[string]string `json:"errors,omitempty"`
}

type entry struct {
	state State
	err   string
}

// Aggregator is safe for concurrent use. Listeners run synchronously after
// each change, outside the internal lock, and receive the new snapshot.
type Aggregator struct {
	mu        sync.Mutex
	entries   map[string]entry
	listeners map[int]func(Status)
	nextID    int
}

// New creates an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		entries:   make(map[string]entry),
		listeners: make(map[int]func(Status)),
	}
}

// Register adds key in the pending state. Registering an existing key
// resets it to pending.
func (a *Aggregator) Register(key string) {
	a.update(func() bool {
		a.entries[key] = entry{state: StatePending}
		return true
	})
}

// MarkLoaded marks key as loaded, registering it if needed.
func (a *Aggregator) MarkLoaded(key string) {
	a.update(func() bool {
		if e, ok := a.entries[key]; ok && e.state == StateLoaded {
			return false
		}
		a.entries[key] = entry{state: StateLoaded}
		return true
	})
}

// MarkFailed marks key as failed with err, registering it if needed.
func (a *Aggregator) MarkFailed(key string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	a.update(func() bool {
		a.entries[key] = entry{state: StateFailed, err: msg}
		return true
	})
}

// Unregister removes key. Unknown keys are ignored.
func (a *Aggregator) Unregister(key string) {
	a.update(func() bool {
		if _, ok := a.entries[key]; !ok {
			return false
		}
		delete(a.entries, key)
		return true
	})
}

// State returns the state of key and whether it is registered.
func (a *Aggregator) State(key string) (State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[key]
	return e.state, ok
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. The returned function is idempotent.
func (a *Aggregator) Subscribe(fn func(Status)) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

// Snapshot returns the current aggregate status.
func (a *Aggregator) Snapshot() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Status {
	s := Status{Total: len(a.entries)}
	for key, e := range a.entries {
		switch e.state {
		case StateLoaded:
			s.Loaded++
		case StateFailed:
			s.Failed++
			if s.Errors == nil {
				s.Errors = make(map[string]string)
			}
			s.Errors[key] = e.err
		default:
			s.Pending = append(s.Pending, key)
		}
	}
	sort.Strings(s.Pending)
	s.Ready = s.Loaded == s.Total
	return s
}

// update applies mutate under the lock and notifies listeners when it
// reports a change.
func (a *Aggregator) update(mutate func() bool) {
	a.mu.Lock()
	if !mutate() {
		a.mu.Unlock()
		return
	}
	snap := a.snapshotLocked()
	listeners := maps.Clone(a.listeners)
	a.mu.Unlock()

	ids := make([]int, 0, len(listeners))
	for id := range listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		listeners[id](snap)
	}
}
