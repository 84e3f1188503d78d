package task

import (
	"errors"
	"fmt"

	"github.com/kazz187/taskcrew/pkg/cerr"
)

var (
	ErrNotFound            = errors.New("task not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidField        = errors.New("invalid task field")
	ErrConcurrencyConflict = errors.New("task changed concurrently")
)

func notFound(id string) error {
	return cerr.NewError(cerr.NotFound, fmt.Sprintf("task %s not found", id), ErrNotFound)
}

// TransitionError reports that t cannot move to status to.
func TransitionError(t *Task, to Status) error {
	msg := fmt.Sprintf("task %s cannot move from %s to %s", t.ID, t.Status, to)
	if t.Status.Terminal() {
		msg = fmt.Sprintf("task %s is %s and can no longer change", t.ID, t.Status)
	}
	return cerr.NewError(cerr.Aborted, msg, ErrInvalidTransition)
}

func invalidField(field, msg string) error {
	e := cerr.NewError(cerr.InvalidArgument, msg, ErrInvalidField)
	return e.AddDetailMessageWithCode(msg, field)
}

func conflict(id, msg string) error {
	return cerr.NewError(cerr.Aborted, fmt.Sprintf("task %s %s", id, msg), ErrConcurrencyConflict)
}
