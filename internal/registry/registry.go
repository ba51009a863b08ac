// Package registry implements the Task Registry: the process-wide source
// of truth for "is task T currently running?" and "what is T's current
// snapshot?". It owns the in-memory tail buffer used for post-hoc pull and
// delegates TaskState ownership to each task's Worker.
//
// Grounded on the teacher's pkg/queue/pool.go (WorkerPool): a single
// process-wide object, a mutex-guarded map keyed by ID, short non-blocking
// methods, and a cancel-function registry for stop(); and on
// pkg/session/manager.go's copy-out Clone()-on-read discipline.
package registry

import (
	"sync"
	"time"

	"github.com/codeready-toolchain/taskengine/internal/bus"
	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
	"github.com/codeready-toolchain/taskengine/internal/store"
	"github.com/codeready-toolchain/taskengine/internal/worker"
)

// handle is the subset of *worker.Worker the Registry depends on.
// Satisfied by *worker.Worker; narrowed to an interface so tests can
// substitute a fake without spinning up a real Worker.
type handle interface {
	Snapshot() eventmodel.TaskState
	Stop()
	Done() <-chan struct{}
}

// Registry is the single process-wide Task Registry instance. Explicitly
// constructed and passed to handlers — no package-level global state, per
// the corpus's singleton-avoidance guidance.
type Registry struct {
	st  store.DurableStore
	bus *bus.Bus

	deadline time.Duration

	mu      sync.Mutex
	workers map[string]handle

	tailMu sync.Mutex
	tail   map[string][]eventmodel.Event
}

// New builds a Registry backed by st and bus, with deadline applied to
// every Worker it spawns.
func New(st store.DurableStore, b *bus.Bus, deadline time.Duration) *Registry {
	return &Registry{
		st:       st,
		bus:      b,
		deadline: deadline,
		workers:  make(map[string]handle),
		tail:     make(map[string][]eventmodel.Event),
	}
}

// Start constructs a Worker for taskID and spawns it. Fails with
// ErrAlreadyRunning if a worker handle already exists for taskID — a task
// that was stopped and finished may be started again only once its prior
// Worker's handle has been removed (see teardown in AppendEvent's sibling,
// the onDone callback below).
func (r *Registry) Start(taskID, requirement string) error {
	r.mu.Lock()
	if _, exists := r.workers[taskID]; exists {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}

	w := worker.New(taskID, requirement, r.deadline, r.st, r.bus, r, func() { r.remove(taskID) })
	r.workers[taskID] = w
	r.mu.Unlock()

	w.Start()
	return nil
}

// remove deletes taskID's worker handle. Called by the Worker's own
// teardown block (via the onDone callback passed to worker.New), never by
// external callers — this is how a finished task becomes startable again.
func (r *Registry) remove(taskID string) {
	r.mu.Lock()
	delete(r.workers, taskID)
	r.mu.Unlock()
}

// IsRunning reports whether a worker handle currently exists for taskID.
func (r *Registry) IsRunning(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workers[taskID]
	return ok
}

// StateSnapshot returns a copy of the running task's current state, or
// false if no worker handle exists for taskID.
func (r *Registry) StateSnapshot(taskID string) (eventmodel.TaskState, bool) {
	r.mu.Lock()
	w, ok := r.workers[taskID]
	r.mu.Unlock()
	if !ok {
		return eventmodel.TaskState{}, false
	}
	return w.Snapshot(), true
}

// Stop signals cancellation to taskID's running worker, if any. Returns
// whether a worker was actually signalled; idempotent — stopping an
// absent or already-terminal task is a no-op that returns false.
func (r *Registry) Stop(taskID string) bool {
	r.mu.Lock()
	w, ok := r.workers[taskID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	w.Stop()
	return true
}

// Subscribe allocates a bounded channel on the Subscription Bus for
// taskID. The returned unsubscribe function must be called exactly once.
func (r *Registry) Subscribe(taskID string) (<-chan any, func()) {
	return r.bus.Subscribe(taskID)
}

// AppendEvent implements worker.EventSink: it appends to this task's
// in-memory tail buffer. Called synchronously from the emitting Worker's
// own goroutine, so no additional ordering guarantee is needed beyond the
// mutex already serializing access to the tail slice.
func (r *Registry) AppendEvent(taskID string, event eventmodel.Event) {
	r.tailMu.Lock()
	defer r.tailMu.Unlock()
	r.tail[taskID] = append(r.tail[taskID], event)
}

// EventsSince returns the ordered tail of events for taskID with event_id
// strictly greater than sinceID. If the registry has no tail for taskID
// (never ran in this process, or was evicted), callers must fall back to
// the Durable Store's fetch_events.
func (r *Registry) EventsSince(taskID string, sinceID int) []eventmodel.Event {
	r.tailMu.Lock()
	defer r.tailMu.Unlock()

	all := r.tail[taskID]
	if all == nil {
		return nil
	}

	out := make([]eventmodel.Event, 0, len(all))
	for _, e := range all {
		if e.EventID > sinceID {
			out = append(out, e)
		}
	}
	return out
}

// ForgetTail drops the in-memory tail buffer for taskID. Not part of the
// spec's operation set; exposed for long-running processes that want to
// bound tail memory for tasks whose terminal state has already been
// reconciled through the Durable Store.
func (r *Registry) ForgetTail(taskID string) {
	r.tailMu.Lock()
	defer r.tailMu.Unlock()
	delete(r.tail, taskID)
}
