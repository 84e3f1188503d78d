package roleapi

import (
	"context"
	"fmt"

	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
)

// Operations shared by engineers and testers, plus the engineer table.

func (s *Service) listMyTasks(_ context.Context, actor *worker.Worker, _ payload) (*Result, error) {
	tasks := s.coord.Tasks(task.Filter{AssignedTo: actor.ID})
	return ok(TaskListOutput{Tasks: summarize(tasks)}, "%s holds %d task(s).", actor.ID, len(tasks))
}

// listTestingTasks returns only the tasks the tester is currently testing.
// Results already submitted stay held until review but are not listed.
func (s *Service) listTestingTasks(_ context.Context, actor *worker.Worker, _ payload) (*Result, error) {
	tasks := s.coord.Tasks(task.Filter{AssignedTo: actor.ID, Statuses: []task.Status{task.StatusTesting}})
	return ok(TaskListOutput{Tasks: summarize(tasks)}, "%s is testing %d task(s).", actor.ID, len(tasks))
}

func (s *Service) workOnTask(_ context.Context, actor *worker.Worker, in payload) (*Result, error) {
	t, err := s.coord.StartWork(in.str("task_id"), actor.ID)
	if err != nil {
		return nil, err
	}
	return ok(TaskStatusOutput{TaskID: t.ID, Status: t.Status}, "%s started working on %s.", actor.ID, t.ID)
}

func (s *Service) completeTask(_ context.Context, actor *worker.Worker, in payload) (*Result, error) {
	t, err := s.coord.Complete(in.str("task_id"), actor.ID, in.str("comment"))
	if err != nil {
		return nil, err
	}
	testers := []string{}
	for _, w := range s.coord.Workers(worker.RoleTester) {
		if w.Available() > 0 {
			testers = append(testers, w.ID)
		}
	}
	return ok(CompleteTaskOutput{TaskID: t.ID, Status: t.Status, AvailableTesters: testers},
		"Task %s completed and ready for testing.", t.ID)
}

func (s *Service) engineerStatus(_ context.Context, actor *worker.Worker, _ payload) (*Result, error) {
	w, tasks, err := s.workerStatus(actor.ID)
	if err != nil {
		return nil, err
	}
	return ok(EngineerStatusOutput{AgentStatus: agentStatus(w), AssignedTasks: summarize(tasks)},
		"%s is at %.0f%% load.", w.ID, w.LoadPercentage())
}

// workerStatus reads the worker and its tasks under one consistent snapshot.
func (s *Service) workerStatus(id string) (*worker.Worker, []*task.Task, error) {
	snap := s.coord.Snapshot()
	for _, w := range snap.Workers {
		if w.ID != id {
			continue
		}
		var tasks []*task.Task
		for _, t := range snap.Tasks {
			if t.AssignedTo == id {
				tasks = append(tasks, t)
			}
		}
		return w, tasks, nil
	}
	return nil, nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("worker %s not found", id), worker.ErrNotFound)
}
