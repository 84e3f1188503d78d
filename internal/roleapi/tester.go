package roleapi

import (
	"context"

	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
)

func (s *Service) listCompletedTasks(_ context.Context, _ *worker.Worker, _ payload) (*Result, error) {
	tasks := s.coord.Tasks(task.Filter{Statuses: []task.Status{task.StatusCompleted}})
	return ok(TaskListOutput{Tasks: summarize(tasks)}, "%d task(s) waiting for testing.", len(tasks))
}

func (s *Service) testTask(_ context.Context, actor *worker.Worker, in payload) (*Result, error) {
	t, err := s.coord.ClaimForTest(in.str("task_id"), actor.ID)
	if err != nil {
		return nil, err
	}
	return ok(TaskStatusOutput{TaskID: t.ID, Status: t.Status}, "%s started testing %s.", actor.ID, t.ID)
}

func (s *Service) submitTestResults(_ context.Context, actor *worker.Worker, in payload) (*Result, error) {
	passed := in.boolean("passed")
	t, err := s.coord.SubmitTestResults(in.str("task_id"), actor.ID, passed, in.str("notes"))
	if err != nil {
		return nil, err
	}
	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	return ok(TaskStatusOutput{TaskID: t.ID, Status: t.Status}, "Task %s %s testing and awaits review.", t.ID, verdict)
}

func (s *Service) testerStatus(_ context.Context, actor *worker.Worker, _ payload) (*Result, error) {
	w, tasks, err := s.workerStatus(actor.ID)
	if err != nil {
		return nil, err
	}
	return ok(TesterStatusOutput{AgentStatus: agentStatus(w), TestingTasks: summarize(tasks)},
		"%s is at %.0f%% load.", w.ID, w.LoadPercentage())
}
