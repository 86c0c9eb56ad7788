// Package scheduler drives a chain of typed queues (internal/queue) over
// a DAG of elements (internal/element): a Q0..Qn pipeline with local
// readiness recomputation. The scheduler owns no
// build logic itself; it only tracks which stage each element currently
// occupies and dispatches bounded worker pools against each stage's ready
// list.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/buildcore-project/buildcore/internal/element"
	"github.com/buildcore-project/buildcore/internal/queue"
)

// FailurePolicy controls what happens to the rest of the DAG once one
// element's stage fails.
type FailurePolicy string

const (
	// FailFast cancels all in-flight and pending work on the first failure.
	FailFast FailurePolicy = "fail-fast"
	// KeepGoing lets independent branches of the DAG continue; only the
	// failed element and its dependents are abandoned.
	KeepGoing FailurePolicy = "keep-going"
)

// Config tunes worker pool sizes and failure behavior. Zero-value FetchJobs
// or BuildJobs are resolved against the host's CPU count at New time.
type Config struct {
	FetchJobs int
	BuildJobs int
	Failure   FailurePolicy
	Logger    *slog.Logger
}

// resolveJobCounts applies the defaults from design note: fetch_jobs =
// min(cpu_count, 10), build_jobs = cpu_count, using gopsutil rather than
// bare runtime.NumCPU so the same call site can later read live load
// instead of just core count.
func resolveJobCounts(cfg Config) (fetchJobs, buildJobs int) {
	fetchJobs, buildJobs = cfg.FetchJobs, cfg.BuildJobs
	if fetchJobs > 0 && buildJobs > 0 {
		return fetchJobs, buildJobs
	}
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = 1
	}
	if fetchJobs <= 0 {
		fetchJobs = n
		if fetchJobs > 10 {
			fetchJobs = 10
		}
	}
	if buildJobs <= 0 {
		buildJobs = n
	}
	return fetchJobs, buildJobs
}

// poolFor returns the worker pool a queue's Type draws from. FETCH and
// TRACK queues are network-bound and share the fetch pool; BUILD and PUSH
// queues are CPU/IO-bound and share the build pool.
func poolFor(t queue.Type, fetchPool, buildPool chan struct{}) chan struct{} {
	switch t {
	case queue.TypeFetch, queue.TypeTrack:
		return fetchPool
	default:
		return buildPool
	}
}

type completion struct {
	stage  int
	e      *element.Element
	result queue.Result
	code   int
	err    error
}

// Scheduler runs a fixed chain of queues over a fixed set of elements.
type Scheduler struct {
	queues []queue.Queue
	lists  []*queue.Lists
	sem    []chan struct{} // per stage: the semaphore of the worker pool it draws from

	elements   map[string]*element.Element
	dependents map[string][]*element.Element // name -> elements whose build/runtime deps include it

	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	failed   map[string]bool
	finished int
	errs     *multierror.Error
	cancel   context.CancelFunc
}

// New builds a scheduler for the given queue chain and element set. The
// queue chain order is the pipeline order (e.g. Track, Fetch, Pull, Build,
// Push); an element advances from queues[i] to queues[i+1] once
// queues[i].Done returns true.
func New(cfg Config, chain []queue.Queue, elements []*element.Element) *Scheduler {
	fetchJobs, buildJobs := resolveJobCounts(cfg)

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Scheduler{
		queues:     chain,
		lists:      make([]*queue.Lists, len(chain)),
		sem:        make([]chan struct{}, len(chain)),
		elements:   map[string]*element.Element{},
		dependents: map[string][]*element.Element{},
		cfg:        cfg,
		log:        log,
		failed:     map[string]bool{},
	}
	fetchPool := make(chan struct{}, fetchJobs)
	buildPool := make(chan struct{}, buildJobs)
	for i, q := range chain {
		s.lists[i] = queue.NewLists()
		s.sem[i] = poolFor(q.QueueType(), fetchPool, buildPool)
	}
	// addDependent records that e depends on d, deduplicating against
	// elements that list d as both a build and a runtime dependency so
	// notifyDependents never re-evaluates the same element twice per event.
	addDependent := func(d, e *element.Element) {
		if lo.ContainsBy(s.dependents[d.Name], func(x *element.Element) bool { return x.Name == e.Name }) {
			return
		}
		s.dependents[d.Name] = append(s.dependents[d.Name], e)
	}

	for _, e := range elements {
		s.elements[e.Name] = e
		for _, d := range e.BuildDeps {
			addDependent(d, e)
		}
		for _, d := range e.RuntimeDeps {
			addDependent(d, e)
		}
	}
	return s
}

// Run drives every element through the full queue chain, returning the
// aggregate error (possibly a *multierror.Error) once no more progress is
// possible. A nil return means every element reached the end of the chain.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	completions := make(chan completion, len(s.elements)+1)

	total := len(s.elements)
	if total == 0 {
		return nil
	}

	for _, e := range s.elements {
		s.enqueueIntoStage(ctx, completions, 0, e)
	}

	for {
		s.dispatchReady(ctx, completions)

		s.mu.Lock()
		done := s.finished >= total
		s.mu.Unlock()
		if done {
			break
		}

		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.errs = multierror.Append(s.errs, ctx.Err())
			err := s.errs.ErrorOrNil()
			s.mu.Unlock()
			return err
		case c := <-completions:
			s.handleCompletion(ctx, completions, c)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs.ErrorOrNil()
}

// dispatchReady pops as many ready elements as each stage's pool has free
// capacity for and spawns a worker goroutine per element.
func (s *Scheduler) dispatchReady(ctx context.Context, completions chan completion) {
	for i, q := range s.queues {
	drain:
		for {
			select {
			case s.sem[i] <- struct{}{}:
			default:
				break drain
			}
			popped := s.lists[i].PopReady(1)
			if len(popped) == 0 {
				<-s.sem[i]
				break drain
			}
			e := popped[0]
			metricJobsInFlight.WithLabelValues(q.Name()).Inc()
			go func(i int, q queue.Queue, e *element.Element) {
				defer func() { <-s.sem[i] }()
				result, code, err := q.Process(ctx, e)
				completions <- completion{stage: i, e: e, result: result, code: code, err: err}
			}(i, q, e)
		}
	}
}

func (s *Scheduler) handleCompletion(ctx context.Context, completions chan completion, c completion) {
	q := s.queues[c.stage]
	s.lists[c.stage].Complete(c.e)
	metricJobsInFlight.WithLabelValues(q.Name()).Dec()
	metricJobsProcessed.WithLabelValues(q.Name()).Inc()

	// A dependent can already be failed-by-propagation (its upstream
	// dependency failed while this job was in flight); its result is moot.
	if s.isFailed(c.e) {
		return
	}

	ok := q.Done(c.e, c.result, c.code)
	if !ok {
		s.markFailed(c.e, c.err, c.code)
		return
	}

	s.enqueueIntoStage(ctx, completions, c.stage+1, c.e)
	s.notifyDependents(c.e)
}

// enqueueIntoStage places e into stage i, or marks it finished if i is past
// the end of the chain. Skip(e) fast-forwards e through stages that have
// nothing to do, recursively, so an element with no work left never spends
// a worker.
func (s *Scheduler) enqueueIntoStage(ctx context.Context, completions chan completion, i int, e *element.Element) {
	if s.isFailed(e) {
		return
	}
	if i >= len(s.queues) {
		s.markFinished()
		return
	}
	q := s.queues[i]
	if q.Skip(e) {
		s.enqueueIntoStage(ctx, completions, i+1, e)
		return
	}
	s.lists[i].Enqueue(e)
	s.lists[i].ReevaluateReadiness(e, q.Ready(e))
}

// notifyDependents re-checks readiness for every element that depends on e,
// across every stage it might currently be waiting in — readiness is
// recomputed only for the fanout of the changed element, never by a global
// scan.
func (s *Scheduler) notifyDependents(e *element.Element) {
	for _, dep := range s.dependents[e.Name] {
		for i, q := range s.queues {
			s.lists[i].ReevaluateReadiness(dep, q.Ready(dep))
		}
	}
}

func (s *Scheduler) markFailed(e *element.Element, err error, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed[e.Name] {
		return
	}
	if err == nil {
		err = fmt.Errorf("element %s failed with exit code %d", e.Name, code)
	}
	s.log.Error("element failed", "element", e.Name, "exit_code", code, "error", err)
	s.failLocked(e, err)

	if s.cfg.Failure == FailFast && s.cancel != nil {
		s.cancel()
	}
}

// failLocked marks e failed and finished, discards it from every stage's
// waiting/ready sub-lists, and transitively fails every element that
// depends on it, direct or indirect — a dependent of a failed element can
// never become Ready again, so it must be positively retired as
// blocked-by-dependency rather than left stuck in a waiting list forever.
// Caller must hold s.mu.
func (s *Scheduler) failLocked(e *element.Element, cause error) {
	if s.failed[e.Name] {
		return
	}
	s.failed[e.Name] = true
	s.finished++
	s.errs = multierror.Append(s.errs, cause)
	metricElementsFinished.WithLabelValues("failed").Inc()

	for _, l := range s.lists {
		l.Discard(e.Name)
	}

	for _, dep := range s.dependents[e.Name] {
		s.failLocked(dep, fmt.Errorf("element %s blocked by failed dependency %s", dep.Name, e.Name))
	}
}

func (s *Scheduler) markFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished++
	metricElementsFinished.WithLabelValues("success").Inc()
}

func (s *Scheduler) isFailed(e *element.Element) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[e.Name]
}
