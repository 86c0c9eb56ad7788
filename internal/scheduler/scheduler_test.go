package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/element"
	"github.com/buildcore-project/buildcore/internal/queue"
	"github.com/buildcore-project/buildcore/internal/scheduler"
)

// Type aliases queue.Type so fake queue implementations below read like
// ordinary Queue implementations without repeating the qualified name.
type Type = queue.Type

// fakeQueue is a single-step queue whose every element always succeeds
// immediately; it exists purely to exercise the scheduler's chain-advance
// and readiness-notification logic without a real sandbox or network I/O.
type fakeQueue struct {
	name string
	typ  Type
}

func newFakeQueue(name string, typ Type) *fakeQueue {
	return &fakeQueue{name: name, typ: typ}
}

func (q *fakeQueue) Name() string                     { return q.name }
func (q *fakeQueue) QueueType() Type                  { return q.typ }
func (q *fakeQueue) Ready(e *element.Element) bool    { return true }
func (q *fakeQueue) Skip(e *element.Element) bool     { return false }

func (q *fakeQueue) Process(ctx context.Context, e *element.Element) (queue.Result, int, error) {
	return nil, 0, nil
}

func (q *fakeQueue) Done(e *element.Element, result queue.Result, returncode int) bool {
	return returncode == 0
}

// failingQueue always returns a non-zero exit code, to exercise the
// fail-fast cancellation path.
type failingQueue struct{}

func (q *failingQueue) Name() string                  { return "fail" }
func (q *failingQueue) QueueType() Type               { return queue.TypeBuild }
func (q *failingQueue) Ready(e *element.Element) bool { return true }
func (q *failingQueue) Skip(e *element.Element) bool  { return false }

func (q *failingQueue) Process(ctx context.Context, e *element.Element) (queue.Result, int, error) {
	return nil, 1, nil
}

func (q *failingQueue) Done(e *element.Element, result queue.Result, returncode int) bool {
	return returncode == 0
}

func newLinearElements(cache *cachekey.Engine) (*element.Element, *element.Element) {
	base := element.New("proj:base", "script", 1, cache, nil)
	dependent := element.New("proj:dependent", "script", 1, cache, nil)
	dependent.BuildDeps = []*element.Element{base}
	return base, dependent
}

func TestScheduler_RunAdvancesAllElementsThroughChain(t *testing.T) {
	cache := cachekey.NewEngine(16)
	base, dependent := newLinearElements(cache)

	q1 := newFakeQueue("stage-1", queue.TypeFetch)
	q2 := newFakeQueue("stage-2", queue.TypeBuild)

	s := scheduler.New(scheduler.Config{FetchJobs: 2, BuildJobs: 2, Failure: scheduler.KeepGoing},
		[]queue.Queue{q1, q2}, []*element.Element{base, dependent})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Run(ctx)
	assert.NoError(t, err)
}

func TestScheduler_FailFastStopsOnFirstFailure(t *testing.T) {
	cache := cachekey.NewEngine(16)
	base, dependent := newLinearElements(cache)

	s := scheduler.New(scheduler.Config{FetchJobs: 1, BuildJobs: 1, Failure: scheduler.FailFast},
		[]queue.Queue{&failingQueue{}}, []*element.Element{base, dependent})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Run(ctx)
	require.Error(t, err)
}

// depGatedQueue is a single-stage queue whose Ready mirrors
// Element.Buildable: an element with build deps is only ready once every
// dep is in succeeded. failNames fail on Process; everything else
// succeeds and is added to succeeded on Done.
type depGatedQueue struct {
	mu        sync.Mutex
	succeeded map[string]bool
	failNames map[string]bool
}

func newDepGatedQueue(failNames ...string) *depGatedQueue {
	fn := map[string]bool{}
	for _, n := range failNames {
		fn[n] = true
	}
	return &depGatedQueue{succeeded: map[string]bool{}, failNames: fn}
}

func (q *depGatedQueue) Name() string    { return "dep-gated" }
func (q *depGatedQueue) QueueType() Type { return queue.TypeBuild }

func (q *depGatedQueue) Ready(e *element.Element) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range e.BuildDeps {
		if !q.succeeded[d.Name] {
			return false
		}
	}
	return true
}

func (q *depGatedQueue) Skip(e *element.Element) bool { return false }

func (q *depGatedQueue) Process(ctx context.Context, e *element.Element) (queue.Result, int, error) {
	if q.failNames[e.Name] {
		return nil, 1, nil
	}
	return nil, 0, nil
}

func (q *depGatedQueue) Done(e *element.Element, result queue.Result, returncode int) bool {
	if returncode != 0 {
		return false
	}
	q.mu.Lock()
	q.succeeded[e.Name] = true
	q.mu.Unlock()
	return true
}

// TestScheduler_KeepGoingRetiresTransitiveDependents: when an element
// fails under KeepGoing, every element that (directly or indirectly)
// depends on it is reported as blocked, not left hanging forever waiting
// on readiness that can now never arrive.
func TestScheduler_KeepGoingRetiresTransitiveDependents(t *testing.T) {
	cache := cachekey.NewEngine(16)

	base := element.New("proj:base", "script", 1, cache, nil)
	mid := element.New("proj:mid", "script", 1, cache, nil)
	top := element.New("proj:top", "script", 1, cache, nil)
	independent := element.New("proj:independent", "script", 1, cache, nil)
	mid.BuildDeps = []*element.Element{base}
	top.BuildDeps = []*element.Element{mid}

	q := newDepGatedQueue("proj:base")
	s := scheduler.New(scheduler.Config{FetchJobs: 2, BuildJobs: 2, Failure: scheduler.KeepGoing},
		[]queue.Queue{q}, []*element.Element{base, mid, top, independent})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Run(ctx)
	require.Error(t, err)
	assert.True(t, q.succeeded["proj:independent"])
	assert.False(t, q.succeeded["proj:mid"])
	assert.False(t, q.succeeded["proj:top"])
}

func TestScheduler_EmptyElementSetReturnsImmediately(t *testing.T) {
	s := scheduler.New(scheduler.Config{}, nil, nil)
	err := s.Run(context.Background())
	assert.NoError(t, err)
}
