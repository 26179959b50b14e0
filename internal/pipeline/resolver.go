package pipeline

import (
	"strings"

	"github.com/jonathan/quick-resume/internal/archive"
	"github.com/jonathan/quick-resume/internal/naming"
)

// State is a request's position in the conflict resolution machine.
type State string

// Request states. Exported, Failed and Discarded are terminal.
const (
	StateUnchecked           State = "unchecked"
	StateCleared             State = "cleared"
	StatePendingConfirmation State = "pending_confirmation"
	StateProceeding          State = "proceeding"
	StateExported            State = "exported"
	StateFailed              State = "failed"
	StateDiscarded           State = "discarded"
)

var transitions = map[State][]State{
	StateUnchecked:           {StateCleared, StatePendingConfirmation, StateFailed},
	StateCleared:             {StateExported, StateFailed},
	StatePendingConfirmation: {StateProceeding, StateDiscarded},
	StateProceeding:          {StateExported, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateExported || s == StateFailed || s == StateDiscarded
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Decision is an observer's answer to a same-company prompt.
type Decision struct {
	ID      string `json:"id" validate:"required"`
	Proceed bool   `json:"proceed"`
}

// RequestID returns the decision's request id with ConflictSuffix removed.
func (d Decision) RequestID() string {
	return strings.TrimSuffix(d.ID, ConflictSuffix)
}

// EmployerScanner reports whether an employer already has artifacts in a directory.
type EmployerScanner interface {
	Contains(dir, employer string) (bool, error)
}

// Resolver decides whether a generated document may be exported directly.
type Resolver struct {
	scanner EmployerScanner
}

// NewResolver creates a resolver backed by scanner.
func NewResolver(scanner EmployerScanner) *Resolver {
	if scanner == nil {
		scanner = archive.NewScanner()
	}
	return &Resolver{scanner: scanner}
}

// Check returns StatePendingConfirmation when employer, sanitized the way
// file names are, already appears in dir, and StateCleared otherwise.
func (r *Resolver) Check(dir, employer string) (State, error) {
	found, err := r.scanner.Contains(dir, naming.Sanitize(employer))
	if err != nil {
		return StateFailed, err
	}
	if found {
		return StatePendingConfirmation, nil
	}
	return StateCleared, nil
}
