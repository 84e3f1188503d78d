package coordinator

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kazz187/taskcrew/internal/eventbus"
	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
)

// Move is one task transfer made by a rebalancing pass.
type Move struct {
	TaskID string      `json:"task_id"`
	From   string      `json:"from"`
	To     string      `json:"to"`
	Role   worker.Role `json:"role"`
}

// Report summarises a rebalancing pass.
type Report struct {
	Moves    []Move        `json:"moves"`
	Failures int           `json:"failures"`
	Duration time.Duration `json:"duration"`
}

// Rebalance runs one pass over every role. For each overloaded worker it
// moves ASSIGNED tasks, least recently assigned first, to the most
// underloaded peer of the same role until the source is no longer overloaded
// or no underloaded peer is left. Work already started is never moved. A
// failed transfer is logged and the pass continues with the next candidate.
func (c *Coordinator) Rebalance() Report {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var report Report
	for _, role := range worker.Roles {
		c.rebalanceRole(role, &report)
	}
	report.Duration = time.Since(start)
	slog.Debug("rebalancing pass finished", "moves", len(report.Moves), "failures", report.Failures, "duration", report.Duration)
	return report
}

func (c *Coordinator) rebalanceRole(role worker.Role, report *Report) {
	doneWorkers := map[string]bool{}
	doneTasks := map[string]bool{}
	for {
		workers := c.workers.List(role)
		src := c.mostOverloaded(workers, doneWorkers)
		if src == nil {
			return
		}
		dst := c.mostUnderloaded(workers, src)
		if dst == nil {
			return
		}
		candidate := c.nextMovable(src, doneTasks)
		if candidate == "" {
			// nothing movable left on this source, try the next one
			doneWorkers[src.ID] = true
			continue
		}
		// a task moves at most once per pass, whatever the outcome
		doneTasks[candidate] = true
		if err := c.transfer(candidate, src.ID, dst.ID); err != nil {
			report.Failures++
			slog.Warn("rebalancer: transfer failed",
				"task_id", candidate, "from", src.ID, "to", dst.ID, "role", role, "error", err)
			continue
		}
		report.Moves = append(report.Moves, Move{TaskID: candidate, From: src.ID, To: dst.ID, Role: role})
		slog.Info("rebalancer: task moved", "task_id", candidate, "from", src.ID, "to", dst.ID, "role", role)
	}
}

func (c *Coordinator) mostOverloaded(workers []*worker.Worker, skipped map[string]bool) *worker.Worker {
	var best *worker.Worker
	for _, w := range workers {
		if skipped[w.ID] || w.LoadPercentage() <= c.thresholds.Overloaded {
			continue
		}
		if best == nil || w.LoadPercentage() > best.LoadPercentage() {
			best = w
		}
	}
	return best
}

// mostUnderloaded returns the least loaded peer under the underload
// threshold that is strictly less loaded than src.
func (c *Coordinator) mostUnderloaded(workers []*worker.Worker, src *worker.Worker) *worker.Worker {
	candidates := slices.DeleteFunc(slices.Clone(workers), func(w *worker.Worker) bool {
		return w.ID == src.ID ||
			w.LoadPercentage() >= c.thresholds.Underloaded ||
			w.LoadPercentage() >= src.LoadPercentage() ||
			w.Available() == 0
	})
	if len(candidates) == 0 {
		return nil
	}
	slices.SortStableFunc(candidates, func(a, b *worker.Worker) int {
		return cmp.Or(
			cmp.Compare(a.LoadPercentage(), b.LoadPercentage()),
			cmp.Compare(a.Load(), b.Load()),
		)
	})
	return candidates[0]
}

// nextMovable returns the least recently assigned ASSIGNED task held by src.
func (c *Coordinator) nextMovable(src *worker.Worker, skipped map[string]bool) string {
	var movable []*task.Task
	for _, id := range src.TaskIDs {
		if skipped[id] {
			continue
		}
		t, err := c.tasks.Get(id)
		if err != nil || t.Status != task.StatusAssigned || t.AssignedTo != src.ID {
			continue
		}
		movable = append(movable, t)
	}
	if len(movable) == 0 {
		return ""
	}
	slices.SortStableFunc(movable, func(a, b *task.Task) int {
		return a.AssignedAt.Compare(b.AssignedAt)
	})
	return movable[0].ID
}

// transfer releases taskID from one worker before claiming it for the other,
// so the task never has two holders. On failure the source gets it back.
func (c *Coordinator) transfer(taskID, from, to string) error {
	if err := c.workers.Release(from, taskID); err != nil {
		return err
	}
	if err := c.workers.TryClaim(to, taskID); err != nil {
		c.undoClaim(to, taskID, from)
		return err
	}
	t, err := c.tasks.SetAssignee(taskID, to, RebalancerActor,
		fmt.Sprintf("moved from %s to %s", from, to),
		task.ExpectStatus(task.StatusAssigned), task.ExpectOwner(from))
	if err != nil {
		c.undoClaim(to, taskID, from)
		return err
	}
	c.publish(eventbus.TypeTaskReassigned, t, RebalancerActor, fmt.Sprintf("moved from %s to %s", from, to), map[string]string{
		"from_worker": from,
		"to_worker":   to,
	})
	return nil
}
