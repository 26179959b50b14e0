package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// EventType tags an Event with its kind. Observers pick a severity from it.
type EventType string

// Event types
const (
	EventSelectedText       EventType = "selected-text"
	EventSelectedTextError  EventType = "selected-text-error"
	EventInfo               EventType = "info"
	EventSuccess            EventType = "success"
	EventError              EventType = "error"
	EventSameCompany        EventType = "same-company"
	EventSameCompanyWarning EventType = "same-company-warning"
)

// ConflictSuffix is appended to a request id on same-company events. Decisions
// may echo it back; it is stripped before lookup.
const ConflictSuffix = "-same-company"

// Severity maps the event type to a display severity: error, warning, success or info.
func (t EventType) Severity() string {
	s := string(t)
	switch {
	case strings.Contains(s, "error"):
		return "error"
	case strings.Contains(s, "warning"), strings.Contains(s, "same-company"):
		return "warning"
	case strings.Contains(s, "success"):
		return "success"
	default:
		return "info"
	}
}

// Terminal reports whether the event ends a request's event sequence.
func (t EventType) Terminal() bool {
	switch t {
	case EventSuccess, EventError, EventSameCompanyWarning, EventSelectedTextError:
		return true
	}
	return false
}

// Event is a one-way notification from the orchestrator to observers.
type Event struct {
	ID   string    `json:"id"`
	Text string    `json:"text"`
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
}

// Sink receives events. Emit must not block the pipeline for long.
type Sink interface {
	Emit(event Event)
}

// FuncSink adapts a function to a Sink.
type FuncSink func(event Event)

// Emit calls f.
func (f FuncSink) Emit(event Event) {
	f(event)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

// Emit forwards event to each non-nil sink.
func (m MultiSink) Emit(event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(event)
		}
	}
}

// Recorder keeps every event it receives. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records event.
func (r *Recorder) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ForID returns the recorded events whose id, minus ConflictSuffix, is id.
func (r *Recorder) ForID(id string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if strings.TrimSuffix(e.ID, ConflictSuffix) == id {
			out = append(out, e)
		}
	}
	return out
}

// DefaultHistoryLimit is the number of events a Broker retains for late subscribers.
const DefaultHistoryLimit = 256

var (
	// ErrCursorInvalid is returned for a cursor beyond the latest event.
	ErrCursorInvalid = errors.New("event cursor is invalid")
	// ErrCursorExpired is returned when events after the cursor were dropped from history.
	ErrCursorExpired = errors.New("event cursor expired")
)

// StreamEvent is an Event with its position in the broker's stream.
type StreamEvent struct {
	Seq   int64 `json:"seq"`
	Event Event `json:"event"`
}

// Broker keeps a bounded history of events so any number of observers can
// read the stream from a cursor.
type Broker struct {
	mu           sync.RWMutex
	historyLimit int
	nextSeq      int64
	events       []StreamEvent
	notify       chan struct{}
}

var _ Sink = (*Broker)(nil)

// NewBroker creates a broker retaining historyLimit events.
func NewBroker(historyLimit int) *Broker {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Broker{
		historyLimit: historyLimit,
		nextSeq:      1,
		events:       make([]StreamEvent, 0, historyLimit),
		notify:       make(chan struct{}),
	}
}

// Emit appends event to the stream and wakes waiting readers.
func (b *Broker) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, StreamEvent{Seq: b.nextSeq, Event: event})
	b.nextSeq++
	if len(b.events) > b.historyLimit {
		drop := len(b.events) - b.historyLimit
		b.events = b.events[drop:]
	}

	close(b.notify)
	b.notify = make(chan struct{})
}

// Changed returns a channel closed on the next Emit.
func (b *Broker) Changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.notify
}

// EventsAfter returns retained events with Seq greater than cursor. Cursor 0 reads from the start.
func (b *Broker) EventsAfter(cursor int64) ([]StreamEvent, error) {
	if cursor < 0 {
		return nil, fmt.Errorf("%w: cursor must be non-negative", ErrCursorInvalid)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if cursor >= b.nextSeq {
		return nil, fmt.Errorf("%w: cursor=%d is beyond latest seq=%d", ErrCursorInvalid, cursor, b.nextSeq-1)
	}

	if len(b.events) > 0 {
		oldestAvailable := b.events[0].Seq - 1
		if cursor < oldestAvailable {
			return nil, fmt.Errorf("%w: cursor=%d oldest_available=%d", ErrCursorExpired, cursor, oldestAvailable)
		}
	}

	start := 0
	for start < len(b.events) && b.events[start].Seq <= cursor {
		start++
	}

	out := make([]StreamEvent, len(b.events)-start)
	copy(out, b.events[start:])
	return out, nil
}

// Latest returns the sequence number of the newest event, or 0.
func (b *Broker) Latest() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq - 1
}

// Oldest returns the lowest cursor EventsAfter accepts without ErrCursorExpired.
func (b *Broker) Oldest() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.events) == 0 {
		return b.nextSeq - 1
	}
	return b.events[0].Seq - 1
}
