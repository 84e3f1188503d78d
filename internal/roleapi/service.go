package roleapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/taskcrew/internal/coordinator"
	"github.com/kazz187/taskcrew/internal/manifest"
	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
	"github.com/kazz187/taskcrew/pkg/clog"
)

// CodeOK is the code of every successful Result. Failures are returned as
// errors carrying a cerr code instead.
const CodeOK = "OK"

type Result struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(data any, format string, args ...any) (*Result, error) {
	return &Result{Code: CodeOK, Message: fmt.Sprintf(format, args...), Data: data}, nil
}

type handler func(ctx context.Context, actor *worker.Worker, in payload) (*Result, error)

// Service is the single entry point shared by the REST, RPC and command
// surfaces. Each role has its own operation table, and every call is checked
// against the manifest before it reaches the coordinator.
type Service struct {
	coord    *coordinator.Coordinator
	manifest *manifest.Manifest
	ops      map[worker.Role]map[string]handler
}

func NewService(coord *coordinator.Coordinator, m *manifest.Manifest) *Service {
	s := &Service{coord: coord, manifest: m}
	s.ops = map[worker.Role]map[string]handler{
		worker.RoleManager: {
			"create_task":      s.createTask,
			"assign_task":      s.assignTask,
			"list_tasks":       s.listTasks,
			"review_task":      s.reviewTask,
			"get_agent_status": s.getAgentStatus,
		},
		worker.RoleEngineer: {
			"list_my_tasks": s.listMyTasks,
			"work_on_task":  s.workOnTask,
			"complete_task": s.completeTask,
			"get_status":    s.engineerStatus,
		},
		worker.RoleTester: {
			"list_completed_tasks": s.listCompletedTasks,
			"list_my_tasks":        s.listTestingTasks,
			"test_task":            s.testTask,
			"submit_test_results":  s.submitTestResults,
			"get_status":           s.testerStatus,
		},
	}
	return s
}

func (s *Service) Manifest() *manifest.Manifest {
	return s.manifest
}

// Invoke validates payload against the manifest, resolves the acting worker
// from ctx and runs the operation.
func (s *Service) Invoke(ctx context.Context, role worker.Role, operation string, payload map[string]any) (*Result, error) {
	clog.AddAttributes(ctx, map[string]any{
		"role":      string(role),
		"operation": operation,
	})
	if _, err := s.manifest.Operation(role, operation); err != nil {
		return nil, err
	}
	h, found := s.ops[role][operation]
	if !found {
		return nil, cerr.NewError(cerr.Unimplemented, fmt.Sprintf("%s/%s is not implemented", role, operation), manifest.ErrUnknownOperation)
	}
	if err := s.manifest.Validate(role, operation, payload); err != nil {
		return nil, err
	}
	actor, err := s.resolveActor(ctx, role)
	if err != nil {
		return nil, err
	}
	clog.AddAttribute(ctx, "actor", actor.ID)

	res, err := h(ctx, actor, payload)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "operation invoked", "role", role, "operation", operation, "actor", actor.ID)
	return res, nil
}

// resolveActor uses the agent id carried by ctx, or the first registered
// worker of role when none is given.
func (s *Service) resolveActor(ctx context.Context, role worker.Role) (*worker.Worker, error) {
	if id := AgentIDFromContext(ctx); id != "" {
		return s.coord.Actor(id, role)
	}
	workers := s.coord.Workers(role)
	if len(workers) == 0 {
		return nil, cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("no %s is registered", role), worker.ErrNotFound)
	}
	return workers[0], nil
}
