// Package queue implements the typed work stages of the build pipeline:
// each queue exposes ready/skip/process/done over an element and holds
// waiting/ready/in-flight sub-lists. The scheduler (package scheduler)
// owns the queue chain and drives elements through it; a Queue never
// mutates scheduler-global state directly.
package queue

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"github.com/buildcore-project/buildcore/internal/element"
)

// Type tags which shared concurrency budget a queue draws from. FETCH-bound
// queues (source fetch, artifact pull) share one bound since they are
// network-bound; BUILD-bound queues (sandbox builds, artifact push) share
// another since they are CPU/IO-bound. Separation keeps a saturated build
// queue from starving fetches and vice versa.
type Type string

const (
	TypeFetch Type = "FETCH"
	TypeBuild Type = "BUILD"
	TypePush  Type = "PUSH"
	TypeTrack Type = "TRACK"
)

// Result is the payload a worker hands back from Process for Done to
// inspect; queues that need nothing beyond the return code leave it nil.
type Result any

// Queue is the stage contract. Ready/Skip/Done run on the scheduler thread;
// Process runs in a worker goroutine and must be idempotent against
// retry.
type Queue interface {
	Name() string
	QueueType() Type

	// Ready reports whether e's prerequisites for this stage are satisfied
	// right now.
	Ready(e *element.Element) bool

	// Skip reports whether e's work can be elided, promoting it to the next
	// queue without spending a worker.
	Skip(e *element.Element) bool

	// Process performs the stage's actual work. It may block.
	Process(ctx context.Context, e *element.Element) (Result, int, error)

	// Done runs synchronously on the scheduler thread after Process
	// completes (or Skip returned true, in which case Process/Done are both
	// skipped by the caller). Returning false marks the element failed.
	Done(e *element.Element, result Result, returncode int) bool
}

// Lists tracks one queue's waiting/ready/in-flight sub-lists.
type Lists struct {
	mu       sync.Mutex
	waiting  map[string]*element.Element
	ready    map[string]*element.Element
	inFlight map[string]*element.Element
}

// NewLists creates an empty set of sub-lists.
func NewLists() *Lists {
	return &Lists{
		waiting:  map[string]*element.Element{},
		ready:    map[string]*element.Element{},
		inFlight: map[string]*element.Element{},
	}
}

// Enqueue places e in the waiting list when it first enters this queue.
func (l *Lists) Enqueue(e *element.Element) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waiting[e.Name] = e
}

// ReevaluateReadiness moves e from waiting to ready if ready(e) now holds.
// The scheduler calls this only for elements whose dependents were notified
// by a state change, never a global scan, keeping event handling
// proportional to the fanout.
func (l *Lists) ReevaluateReadiness(e *element.Element, ready bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, waiting := l.waiting[e.Name]; !waiting {
		return
	}
	if ready {
		delete(l.waiting, e.Name)
		l.ready[e.Name] = e
	}
}

// PopReady removes and returns up to n ready elements for dispatch, moving
// them to in-flight. Order among ready elements is unspecified: map
// iteration order in Go is itself randomized per process, which keeps
// callers and tests from ever depending on sibling ordering.
func (l *Lists) PopReady(n int) []*element.Element {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*element.Element
	for name, e := range l.ready {
		if len(out) >= n {
			break
		}
		delete(l.ready, name)
		l.inFlight[name] = e
		out = append(out, e)
	}
	return out
}

// Complete removes e from in-flight once its Done callback has run.
func (l *Lists) Complete(e *element.Element) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, e.Name)
}

// Discard removes name from this stage's waiting and ready sub-lists. It
// never touches in-flight: a job already dispatched to a worker runs to
// completion regardless, and the scheduler's isFailed check keeps its
// result from being acted on once discarded elsewhere in the chain.
func (l *Lists) Discard(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.waiting, name)
	delete(l.ready, name)
}

// Counts reports the size of each sub-list, used by metrics and tests.
func (l *Lists) Counts() (waiting, ready, inFlight int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiting), len(l.ready), len(l.inFlight)
}

// ReadySnapshot returns the current ready-list elements without popping
// them, for readiness re-evaluation bookkeeping.
func (l *Lists) ReadySnapshot() []*element.Element {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo.Values(l.ready)
}

// WaitingSnapshot returns the current waiting-list elements.
func (l *Lists) WaitingSnapshot() []*element.Element {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo.Values(l.waiting)
}
