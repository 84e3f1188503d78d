package roleapi

import (
	"context"

	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
)

func (s *Service) createTask(_ context.Context, actor *worker.Worker, in payload) (*Result, error) {
	t, err := s.coord.CreateTask(actor.ID, task.CreateParams{
		Title:       in.str("title"),
		Description: in.str("description"),
		Type:        task.Type(in.str("task_type")),
		Priority:    task.Priority(in.str("priority")),
	})
	if err != nil {
		return nil, err
	}
	return ok(TaskStatusOutput{TaskID: t.ID, Status: t.Status}, "Task %s created.", t.ID)
}

func (s *Service) assignTask(_ context.Context, actor *worker.Worker, in payload) (*Result, error) {
	t, err := s.coord.Assign(in.str("task_id"), in.str("agent_id"), actor.ID)
	if err != nil {
		return nil, err
	}
	return ok(AssignTaskOutput{TaskID: t.ID, Status: t.Status, AssignedTo: t.AssignedTo},
		"Task %s assigned to %s.", t.ID, t.AssignedTo)
}

func (s *Service) listTasks(_ context.Context, _ *worker.Worker, in payload) (*Result, error) {
	var f task.Filter
	if st := in.str("status"); st != "" {
		f.Statuses = []task.Status{task.Status(st)}
	}
	f.AssignedTo = in.str("assigned_to")
	tasks := s.coord.Tasks(f)
	return ok(TaskListOutput{Tasks: summarize(tasks)}, "%d task(s).", len(tasks))
}

func (s *Service) reviewTask(_ context.Context, actor *worker.Worker, in payload) (*Result, error) {
	approve := in.boolean("approve")
	t, err := s.coord.Review(in.str("task_id"), actor.ID, approve, in.str("comment"))
	if err != nil {
		return nil, err
	}
	out := ReviewTaskOutput{TaskID: t.ID, NewTaskStatus: t.Status, AssignedTo: t.AssignedTo}
	switch t.Status {
	case task.StatusApproved:
		return ok(out, "Task %s has been approved.", t.ID)
	case task.StatusAssigned:
		return ok(out, "Task %s has been sent back to %s.", t.ID, t.AssignedTo)
	default:
		return ok(out, "Task %s has been rejected.", t.ID)
	}
}

func (s *Service) getAgentStatus(_ context.Context, _ *worker.Worker, in payload) (*Result, error) {
	workers := s.coord.Workers(worker.Role(in.str("role")))
	agents := make([]AgentStatus, 0, len(workers))
	for _, w := range workers {
		agents = append(agents, agentStatus(w))
	}
	return ok(AgentStatusOutput{Agents: agents}, "%d agent(s).", len(agents))
}
