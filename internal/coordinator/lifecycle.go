package coordinator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kazz187/taskcrew/internal/eventbus"
	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
)

// ownedTransition moves a task the acting worker holds. The transition table
// is checked before ownership so that a finished task reports
// InvalidTransition rather than NotOwner.
func (c *Coordinator) ownedTransition(taskID, actorID string, role worker.Role, to task.Status, note string, opts ...task.UpdateOption) (*task.Task, error) {
	if _, err := c.actor(actorID, role); err != nil {
		return nil, err
	}
	t, err := c.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if !task.CanTransition(t.Status, to) {
		return nil, task.TransitionError(t, to)
	}
	if t.AssignedTo != actorID {
		return nil, notOwner(actorID, taskID, t.AssignedTo)
	}
	opts = append(opts, task.ExpectStatus(t.Status), task.ExpectOwner(actorID))
	return c.tasks.UpdateStatus(taskID, to, actorID, note, opts...)
}

// StartWork moves an ASSIGNED task held by the engineer to IN_PROGRESS.
func (c *Coordinator) StartWork(taskID, engineerID string) (*task.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.ownedTransition(taskID, engineerID, worker.RoleEngineer, task.StatusInProgress, "work started")
	if err != nil {
		return nil, err
	}
	c.publishStatus(t, engineerID, task.StatusAssigned)
	return t, nil
}

// Complete marks the engineer's work done. The engineer keeps the task until
// a tester claims it and is remembered for a possible send-back.
func (c *Coordinator) Complete(taskID, engineerID, notes string) (*task.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	opts := []task.UpdateOption{task.WithEngineer(engineerID)}
	if notes != "" {
		opts = append(opts, task.WithComment(notes))
	}
	t, err := c.ownedTransition(taskID, engineerID, worker.RoleEngineer, task.StatusCompleted, "implementation completed", opts...)
	if err != nil {
		return nil, err
	}
	c.publishStatus(t, engineerID, task.StatusInProgress)
	return t, nil
}

// ClaimForTest lets a tester take a COMPLETED task. The tester's capacity is
// enforced and the task moves from the engineer's set to the tester's.
func (c *Coordinator) ClaimForTest(taskID, testerID string) (*task.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.actor(testerID, worker.RoleTester); err != nil {
		return nil, err
	}
	t, err := c.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if !task.CanTransition(t.Status, task.StatusTesting) {
		return nil, task.TransitionError(t, task.StatusTesting)
	}
	if err := c.workers.TryClaim(testerID, taskID); err != nil {
		return nil, err
	}
	engineerID := t.AssignedTo
	updated, err := c.tasks.UpdateStatus(taskID, task.StatusTesting, testerID, "testing started",
		task.WithAssignee(testerID), task.ExpectStatus(task.StatusCompleted), task.ExpectOwner(engineerID))
	if err != nil {
		c.undoClaim(testerID, taskID, "")
		return nil, err
	}
	c.release(engineerID, taskID)
	c.publishStatus(updated, testerID, task.StatusCompleted)
	return updated, nil
}

// SubmitTestResults records the tester's verdict. The tester keeps the task
// until the manager reviews it.
func (c *Coordinator) SubmitTestResults(taskID, testerID string, passed bool, notes string) (*task.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	to, verdict := task.StatusTestFailed, "failed"
	if passed {
		to, verdict = task.StatusTestPassed, "passed"
	}
	result := task.TestResult{Tester: testerID, Timestamp: time.Now(), Passed: passed, Notes: notes}
	opts := []task.UpdateOption{task.WithTestResult(result)}
	if notes != "" {
		opts = append(opts, task.WithComment(fmt.Sprintf("Test %s: %s", verdict, notes)))
	}
	t, err := c.ownedTransition(taskID, testerID, worker.RoleTester, to, "tests "+verdict, opts...)
	if err != nil {
		return nil, err
	}
	c.publishStatus(t, testerID, task.StatusTesting)
	return t, nil
}

// Review is the manager's decision on a tested task.
//
//	TEST_PASSED, approve  -> APPROVED
//	TEST_PASSED, !approve -> REJECTED
//	TEST_FAILED, approve  -> ASSIGNED back to the engineer who built it
//	TEST_FAILED, !approve -> REJECTED
//
// Sending back bypasses the engineer's capacity, like a manual assignment.
func (c *Coordinator) Review(taskID, managerID string, approve bool, comments string) (*task.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.actor(managerID, worker.RoleManager); err != nil {
		return nil, err
	}
	t, err := c.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}

	var to task.Status
	switch {
	case t.Status == task.StatusTestPassed && approve:
		to = task.StatusApproved
	case t.Status == task.StatusTestFailed && approve:
		to = task.StatusAssigned
	case t.Status == task.StatusTestPassed, t.Status == task.StatusTestFailed:
		to = task.StatusRejected
	default:
		to = task.StatusApproved
		if !approve {
			to = task.StatusRejected
		}
		return nil, task.TransitionError(t, to)
	}

	opts := []task.UpdateOption{task.ExpectStatus(t.Status)}
	if comments != "" {
		opts = append(opts, task.WithComment(comments))
	}
	holder := t.AssignedTo
	note := "review: " + string(to)

	if to == task.StatusAssigned {
		engineerID, err := c.sendBackTarget(t)
		if err != nil {
			return nil, err
		}
		if err := c.workers.ForceClaim(engineerID, taskID); err != nil {
			return nil, err
		}
		note = fmt.Sprintf("sent back to %s", engineerID)
		opts = append(opts, task.WithAssignee(engineerID))
		updated, err := c.tasks.UpdateStatus(taskID, to, managerID, note, opts...)
		if err != nil {
			c.undoClaim(engineerID, taskID, "")
			return nil, err
		}
		c.release(holder, taskID)
		c.publishStatus(updated, managerID, t.Status)
		return updated, nil
	}

	updated, err := c.tasks.UpdateStatus(taskID, to, managerID, note, opts...)
	if err != nil {
		return nil, err
	}
	c.release(holder, taskID)
	c.publishStatus(updated, managerID, t.Status)
	slog.Info("task reviewed", "task_id", taskID, "status", to, "actor", managerID)
	return updated, nil
}

// sendBackTarget is the engineer a failed task returns to: the one who
// completed it, or the least loaded engineer when that one is unknown.
func (c *Coordinator) sendBackTarget(t *task.Task) (string, error) {
	if t.Engineer != "" {
		if w, err := c.workers.Get(t.Engineer); err == nil && w.Role == worker.RoleEngineer {
			return w.ID, nil
		}
	}
	pick := SelectLeastLoaded(c.workers.List(worker.RoleEngineer))
	if pick == nil {
		return "", noCapacity(worker.RoleEngineer, t.ID)
	}
	return pick.ID, nil
}

func (c *Coordinator) publishStatus(t *task.Task, actor string, from task.Status) {
	c.publish(eventbus.TypeTaskStatusChanged, t, actor, fmt.Sprintf("%s -> %s", from, t.Status), map[string]string{
		"from": string(from),
		"to":   string(t.Status),
	})
	slog.Debug("task status changed", "task_id", t.ID, "from", from, "to", t.Status, "actor", actor)
}
