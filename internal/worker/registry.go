package worker

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/kazz187/taskcrew/pkg/cerr"
)

var (
	ErrNotFound         = errors.New("worker not found")
	ErrAlreadyExists    = errors.New("worker already registered")
	ErrInvalidWorker    = errors.New("invalid worker")
	ErrCapacityExceeded = errors.New("worker capacity exceeded")
)

// Registry owns the worker records and is the only place a worker's task set
// changes. Workers live for the lifetime of the process.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]*Worker),
	}
}

func (r *Registry) Register(id string, role Role, maxCapacity int) error {
	if id == "" {
		return cerr.NewError(cerr.InvalidArgument, "worker id must not be empty", ErrInvalidWorker)
	}
	if !role.Valid() {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("worker %s has unknown role %q", id, role), ErrInvalidWorker)
	}
	if maxCapacity <= 0 {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("worker %s needs a positive capacity, got %d", id, maxCapacity), ErrInvalidWorker)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workers[id]; ok {
		return cerr.NewError(cerr.AlreadyExists, fmt.Sprintf("worker %s already registered", id), ErrAlreadyExists)
	}
	r.workers[id] = &Worker{ID: id, Role: role, MaxCapacity: maxCapacity, TaskIDs: []string{}}
	r.order = append(r.order, id)
	return nil
}

func (r *Registry) Get(id string) (*Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	if !ok {
		return nil, notFound(id)
	}
	return w.Clone(), nil
}

// List returns workers in registration order. An empty role lists everyone.
func (r *Registry) List(role Role) []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Worker, 0, len(r.order))
	for _, id := range r.order {
		w := r.workers[id]
		if role == "" || w.Role == role {
			out = append(out, w.Clone())
		}
	}
	return out
}

// TryClaim adds taskID to the worker's set unless the worker is full. This is
// the automatic path; claiming a task already held is a no-op.
func (r *Registry) TryClaim(workerID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[workerID]
	if !ok {
		return notFound(workerID)
	}
	if w.Holds(taskID) {
		return nil
	}
	if len(w.TaskIDs) >= w.MaxCapacity {
		return cerr.NewError(cerr.ResourceExhausted,
			fmt.Sprintf("worker %s is at capacity (%d/%d)", workerID, len(w.TaskIDs), w.MaxCapacity),
			ErrCapacityExceeded)
	}
	w.TaskIDs = append(w.TaskIDs, taskID)
	return nil
}

// ForceClaim is the manual override path. It ignores capacity.
func (r *Registry) ForceClaim(workerID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[workerID]
	if !ok {
		return notFound(workerID)
	}
	if !w.Holds(taskID) {
		w.TaskIDs = append(w.TaskIDs, taskID)
	}
	return nil
}

// Release drops taskID from the worker's set. Releasing a task the worker
// does not hold is a no-op.
func (r *Registry) Release(workerID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[workerID]
	if !ok {
		return notFound(workerID)
	}
	w.TaskIDs = slices.DeleteFunc(w.TaskIDs, func(id string) bool { return id == taskID })
	return nil
}

// Holders returns every worker currently holding taskID.
func (r *Registry) Holders(taskID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, id := range r.order {
		if r.workers[id].Holds(taskID) {
			out = append(out, id)
		}
	}
	return out
}

// ResetAssignments replaces every worker's task set. Workers missing from
// assignments end up empty; unknown worker ids are reported and nothing is
// changed.
func (r *Registry) ResetAssignments(assignments map[string][]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range assignments {
		if _, ok := r.workers[id]; !ok {
			return notFound(id)
		}
	}
	for id, w := range r.workers {
		w.TaskIDs = slices.Clone(assignments[id])
		if w.TaskIDs == nil {
			w.TaskIDs = []string{}
		}
	}
	return nil
}

func notFound(id string) error {
	return cerr.NewError(cerr.NotFound, fmt.Sprintf("worker %s not found", id), ErrNotFound)
}
