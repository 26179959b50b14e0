package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jonathan/quick-resume/internal/types"
)

// Entry is the registry's record for one request.
type Entry struct {
	Request  *types.Request
	State    State
	Conflict *types.ConflictState
}

// Registry maps request ids to their state. Captures run on their own
// goroutines, so every method is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Insert registers req in StateUnchecked. Ids are never reused.
func (r *Registry) Insert(req *types.Request) error {
	if req == nil || req.ID == "" {
		return fmt.Errorf("request id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[req.ID]; exists {
		return fmt.Errorf("request %s already registered", req.ID)
	}
	r.entries[req.ID] = &Entry{Request: req, State: StateUnchecked}
	return nil
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Transition moves id to next if the state machine allows it.
func (r *Registry) Transition(id string, next State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("request %s not registered", id)
	}
	if !entry.State.CanTransition(next) {
		return fmt.Errorf("request %s: invalid transition %s -> %s", id, entry.State, next)
	}
	entry.State = next
	return nil
}

// SetResult stores the generated document on the request.
func (r *Registry) SetResult(id string, doc *types.GeneratedDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[id]; ok {
		entry.Request.Result = doc
	}
}

// MarkPending moves id from StateUnchecked to StatePendingConfirmation and
// records the conflict.
func (r *Registry) MarkPending(id string, conflict *types.ConflictState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("request %s not registered", id)
	}
	if !entry.State.CanTransition(StatePendingConfirmation) {
		return fmt.Errorf("request %s: invalid transition %s -> %s", id, entry.State, StatePendingConfirmation)
	}
	entry.State = StatePendingConfirmation
	entry.Conflict = conflict
	return nil
}

// Claim atomically resolves a pending request: to StateProceeding when
// proceed is true, else to StateDiscarded. It reports false, changing
// nothing, when id is unknown or not pending.
func (r *Registry) Claim(id string, proceed bool) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok || entry.State != StatePendingConfirmation {
		return Entry{}, false
	}

	if proceed {
		entry.State = StateProceeding
	} else {
		entry.State = StateDiscarded
	}
	return *entry, true
}

// Delete removes id.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Pending returns the requests awaiting a decision, oldest first.
func (r *Registry) Pending() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for _, entry := range r.entries {
		if entry.State == StatePendingConfirmation {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Request.CreatedAt.Before(out[j].Request.CreatedAt)
	})
	return out
}

// Len returns the number of registered requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
