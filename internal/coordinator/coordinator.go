package coordinator

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/kazz187/taskcrew/internal/eventbus"
	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
)

// RebalancerActor is the actor recorded on history entries written by the
// rebalancing pass.
const RebalancerActor = "rebalancer"

// Coordinator enforces the task lifecycle across the task and worker
// registries. Every mutation that touches both registries runs under mu, so
// readers holding the read lock never observe a task between release and
// claim.
type Coordinator struct {
	mu         sync.RWMutex
	tasks      *task.Registry
	workers    *worker.Registry
	bus        *eventbus.Bus
	thresholds Thresholds
}

// Thresholds are the load percentages that drive the rebalancing pass.
type Thresholds struct {
	Overloaded  float64
	Underloaded float64
}

var DefaultThresholds = Thresholds{Overloaded: 80, Underloaded: 50}

type Option func(*Coordinator)

func WithEventBus(bus *eventbus.Bus) Option {
	return func(c *Coordinator) {
		c.bus = bus
	}
}

func WithThresholds(t Thresholds) Option {
	return func(c *Coordinator) {
		c.thresholds = t
	}
}

func New(tasks *task.Registry, workers *worker.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		tasks:      tasks,
		workers:    workers,
		thresholds: DefaultThresholds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequiredRole is the role that must take a task in the given status when it
// is assigned: engineers implement new work, testers verify completed work.
func RequiredRole(s task.Status) (worker.Role, bool) {
	switch s {
	case task.StatusCreated:
		return worker.RoleEngineer, true
	case task.StatusCompleted:
		return worker.RoleTester, true
	default:
		return "", false
	}
}

func (c *Coordinator) Task(id string) (*task.Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tasks.Get(id)
}

func (c *Coordinator) Tasks(f task.Filter) []*task.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tasks.List(f)
}

func (c *Coordinator) Worker(id string) (*worker.Worker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workers.Get(id)
}

func (c *Coordinator) Workers(role worker.Role) []*worker.Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workers.List(role)
}

// Snapshot is a consistent view of both registries.
type Snapshot struct {
	Tasks   []*task.Task
	Workers []*worker.Worker
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Tasks:   c.tasks.List(task.Filter{}),
		Workers: c.workers.List(""),
	}
}

// Actor resolves a worker and checks it has the given role.
func (c *Coordinator) Actor(id string, role worker.Role) (*worker.Worker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.actor(id, role)
}

func (c *Coordinator) actor(id string, role worker.Role) (*worker.Worker, error) {
	w, err := c.workers.Get(id)
	if err != nil {
		return nil, err
	}
	if w.Role != role {
		return nil, wrongRole(w, role)
	}
	return w, nil
}

func (c *Coordinator) CreateTask(managerID string, p task.CreateParams) (*task.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.actor(managerID, worker.RoleManager); err != nil {
		return nil, err
	}
	p.Actor = managerID
	t, err := c.tasks.Create(p)
	if err != nil {
		return nil, err
	}
	c.publish(eventbus.TypeTaskCreated, t, managerID, "task created", nil)
	slog.Info("task created", "task_id", t.ID, "title", t.Title, "priority", t.Priority, "actor", managerID)
	return t, nil
}

// Assign hands a CREATED task to an engineer or a COMPLETED task to a tester.
// With an empty workerID the least loaded worker of the required role is
// chosen and capacity is enforced; naming a worker bypasses capacity.
func (c *Coordinator) Assign(taskID, workerID, managerID string) (*task.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.actor(managerID, worker.RoleManager); err != nil {
		return nil, err
	}
	t, err := c.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	role, ok := RequiredRole(t.Status)
	if !ok {
		return nil, task.TransitionError(t, task.StatusAssigned)
	}
	target := task.StatusAssigned
	if role == worker.RoleTester {
		target = task.StatusTesting
	}

	manual := workerID != ""
	if manual {
		w, err := c.workers.Get(workerID)
		if err != nil {
			return nil, invalidAssignee(fmt.Sprintf("%s is not a registered worker", workerID))
		}
		if w.Role != role {
			return nil, invalidAssignee(fmt.Sprintf("%s is a %s, %s tasks go to a %s", w.ID, w.Role, t.Status, role))
		}
		if err := c.workers.ForceClaim(workerID, taskID); err != nil {
			return nil, err
		}
	} else {
		workerID, err = c.claimLeastLoaded(role, taskID)
		if err != nil {
			return nil, err
		}
	}

	previous := t.AssignedTo
	note := fmt.Sprintf("assigned to %s", workerID)
	if !manual {
		note = fmt.Sprintf("auto-assigned to %s", workerID)
	}
	updated, err := c.tasks.UpdateStatus(taskID, target, managerID, note,
		task.WithAssignee(workerID), task.ExpectStatus(t.Status))
	if err != nil {
		c.undoClaim(workerID, taskID, "")
		return nil, err
	}
	if previous != "" {
		c.release(previous, taskID)
	}
	c.publish(eventbus.TypeTaskAssigned, updated, managerID, note, map[string]string{"manual": fmt.Sprint(manual)})
	slog.Info("task assigned", "task_id", taskID, "worker_id", workerID, "status", updated.Status, "manual", manual)
	return updated, nil
}

// claimLeastLoaded picks the worker of role with the lowest load percentage,
// then the fewest tasks, then the earliest registration, and claims taskID
// for it. A lost claim is retried once with a fresh selection.
func (c *Coordinator) claimLeastLoaded(role worker.Role, taskID string) (string, error) {
	var lastErr error
	for range 2 {
		pick := SelectLeastLoaded(c.workers.List(role))
		if pick == nil {
			return "", noCapacity(role, taskID)
		}
		if err := c.workers.TryClaim(pick.ID, taskID); err != nil {
			lastErr = err
			continue
		}
		return pick.ID, nil
	}
	return "", lastErr
}

// SelectLeastLoaded returns the candidate with the lowest load percentage
// below 100, ties broken by task count and then by position in workers.
func SelectLeastLoaded(workers []*worker.Worker) *worker.Worker {
	eligible := slices.DeleteFunc(slices.Clone(workers), func(w *worker.Worker) bool {
		return w.LoadPercentage() >= 100
	})
	if len(eligible) == 0 {
		return nil
	}
	slices.SortStableFunc(eligible, func(a, b *worker.Worker) int {
		return cmp.Or(
			cmp.Compare(a.LoadPercentage(), b.LoadPercentage()),
			cmp.Compare(a.Load(), b.Load()),
		)
	})
	return eligible[0]
}

func (c *Coordinator) release(workerID, taskID string) {
	if err := c.workers.Release(workerID, taskID); err != nil {
		slog.Error("failed to release task", "task_id", taskID, "worker_id", workerID, "error", err)
	}
}

// undoClaim drops a claim made for a mutation that then failed and, when
// restoreTo is set, gives the task back to its previous holder.
func (c *Coordinator) undoClaim(workerID, taskID, restoreTo string) {
	c.release(workerID, taskID)
	if restoreTo == "" {
		return
	}
	if err := c.workers.ForceClaim(restoreTo, taskID); err != nil {
		slog.Error("failed to restore task holder", "task_id", taskID, "worker_id", restoreTo, "error", err)
	}
}

func (c *Coordinator) publish(typ eventbus.Type, t *task.Task, actor, msg string, extra map[string]string) {
	if c.bus == nil {
		return
	}
	md := map[string]string{
		"status": string(t.Status),
		"actor":  actor,
	}
	if t.AssignedTo != "" {
		md["assigned_to"] = t.AssignedTo
	}
	for k, v := range extra {
		md[k] = v
	}
	c.bus.PublishNew(typ, t.ID, msg, md)
}
