package coordinator

import (
	"errors"
	"fmt"

	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
)

var (
	ErrNoCapacity      = errors.New("no worker has spare capacity")
	ErrInvalidAssignee = errors.New("invalid assignee")
	ErrNotOwner        = errors.New("worker does not hold the task")
	ErrWrongRole       = errors.New("worker role not allowed")
)

func noCapacity(role worker.Role, taskID string) error {
	return cerr.NewError(cerr.ResourceExhausted,
		fmt.Sprintf("no %s has spare capacity for %s, it stays unassigned", role, taskID),
		ErrNoCapacity)
}

func invalidAssignee(msg string) error {
	e := cerr.NewError(cerr.InvalidArgument, msg, ErrInvalidAssignee)
	return e.AddDetailMessageWithCode(msg, "agent_id")
}

func notOwner(workerID, taskID, holder string) error {
	msg := fmt.Sprintf("%s does not hold %s", workerID, taskID)
	if holder != "" {
		msg = fmt.Sprintf("%s does not hold %s, it belongs to %s", workerID, taskID, holder)
	}
	return cerr.NewError(cerr.PermissionDenied, msg, ErrNotOwner)
}

func wrongRole(w *worker.Worker, want worker.Role) error {
	return cerr.NewError(cerr.PermissionDenied,
		fmt.Sprintf("%s is a %s, this operation needs a %s", w.ID, w.Role, want),
		ErrWrongRole)
}
