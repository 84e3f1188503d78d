package coordinator

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kazz187/taskcrew/internal/task"
)

// Verify checks the ownership invariants across both registries: every
// worker holds exactly the live tasks assigned to it, and every held task has
// exactly one holder.
func (c *Coordinator) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	expected := map[string][]string{}
	for _, t := range c.tasks.List(task.Filter{}) {
		if t.Status.Held() != (t.AssignedTo != "") {
			errs = append(errs, fmt.Errorf("task %s is %s with owner %q", t.ID, t.Status, t.AssignedTo))
		}
		if t.AssignedTo != "" && !t.Status.Terminal() {
			expected[t.AssignedTo] = append(expected[t.AssignedTo], t.ID)
		}
		if holders := c.workers.Holders(t.ID); len(holders) > 1 {
			errs = append(errs, fmt.Errorf("task %s has %d holders: %v", t.ID, len(holders), holders))
		}
	}
	for _, w := range c.workers.List("") {
		got := slices.Sorted(slices.Values(w.TaskIDs))
		want := slices.Sorted(slices.Values(expected[w.ID]))
		if !slices.Equal(got, want) {
			errs = append(errs, fmt.Errorf("worker %s holds %v, tasks assigned to it are %v", w.ID, got, want))
		}
		delete(expected, w.ID)
	}
	for id, ids := range expected {
		errs = append(errs, fmt.Errorf("tasks %v are assigned to unknown worker %s", ids, id))
	}
	return errors.Join(errs...)
}

// Restore loads exported tasks and rebuilds every worker's task set from the
// tasks' owners. Tasks owned by workers that are not registered make the
// whole restore fail and nothing changes.
func (c *Coordinator) Restore(tasks []*task.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	assignments := map[string][]string{}
	assignedAt := map[string]time.Time{}
	for _, t := range tasks {
		if t == nil || t.AssignedTo == "" {
			continue
		}
		assignedAt[t.ID] = t.AssignedAt
		if _, err := c.workers.Get(t.AssignedTo); err != nil {
			return fmt.Errorf("restore task %s: %w", t.ID, err)
		}
		assignments[t.AssignedTo] = append(assignments[t.AssignedTo], t.ID)
	}
	for _, ids := range assignments {
		slices.SortStableFunc(ids, func(a, b string) int {
			return assignedAt[a].Compare(assignedAt[b])
		})
	}
	if err := c.tasks.Restore(tasks); err != nil {
		return err
	}
	return c.workers.ResetAssignments(assignments)
}
