package worker

import (
	"fmt"
	"slices"
)

type Role string

const (
	RoleManager  Role = "manager"
	RoleEngineer Role = "engineer"
	RoleTester   Role = "tester"
)

var Roles = []Role{RoleManager, RoleEngineer, RoleTester}

func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Worker is a snapshot of one registered worker. TaskIDs is ordered by the
// time each task was claimed.
type Worker struct {
	ID          string   `yaml:"id" json:"id"`
	Role        Role     `yaml:"role" json:"role"`
	MaxCapacity int      `yaml:"max_capacity" json:"max_capacity"`
	TaskIDs     []string `yaml:"current_task_ids" json:"current_task_ids"`
}

func (w *Worker) Load() int {
	return len(w.TaskIDs)
}

// LoadPercentage is the share of capacity in use, 0 to 100 and beyond when a
// manual assignment pushed the worker over capacity.
func (w *Worker) LoadPercentage() float64 {
	if w.MaxCapacity <= 0 {
		return 0
	}
	return float64(len(w.TaskIDs)) / float64(w.MaxCapacity) * 100
}

func (w *Worker) Available() int {
	return max(0, w.MaxCapacity-len(w.TaskIDs))
}

func (w *Worker) Holds(taskID string) bool {
	return slices.Contains(w.TaskIDs, taskID)
}

func (w *Worker) Clone() *Worker {
	if w == nil {
		return nil
	}
	c := *w
	c.TaskIDs = slices.Clone(w.TaskIDs)
	if c.TaskIDs == nil {
		c.TaskIDs = []string{}
	}
	return &c
}
