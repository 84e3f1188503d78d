package task

import (
	"slices"
	"time"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusTesting    Status = "TESTING"
	StatusTestPassed Status = "TEST_PASSED"
	StatusTestFailed Status = "TEST_FAILED"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusCreated,
	StatusAssigned,
	StatusInProgress,
	StatusCompleted,
	StatusTesting,
	StatusTestPassed,
	StatusTestFailed,
	StatusApproved,
	StatusRejected,
}

func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Held reports whether a task in status s must have an owner.
func (s Status) Held() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusCompleted, StatusTesting, StatusTestPassed, StatusTestFailed:
		return true
	default:
		return false
	}
}

type Type string

const (
	TypeFeature       Type = "feature"
	TypeBug           Type = "bug"
	TypeImprovement   Type = "improvement"
	TypeDocumentation Type = "documentation"
)

var Types = []Type{TypeFeature, TypeBug, TypeImprovement, TypeDocumentation}

func (t Type) Valid() bool {
	return slices.Contains(Types, t)
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) Valid() bool {
	return slices.Contains(Priorities, p)
}

// HistoryEntry is one audit record. Every mutation of a task appends exactly
// one entry.
type HistoryEntry struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Status    Status    `yaml:"status" json:"status"`
	Actor     string    `yaml:"actor" json:"actor"`
	Note      string    `yaml:"note,omitempty" json:"note,omitempty"`
}

// TestResult is the verdict a tester submitted for the task.
type TestResult struct {
	Tester    string    `yaml:"tester" json:"tester"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Passed    bool      `yaml:"passed" json:"passed"`
	Notes     string    `yaml:"notes,omitempty" json:"notes,omitempty"`
}

type Task struct {
	ID           string         `yaml:"id" json:"id"`
	Title        string         `yaml:"title" json:"title"`
	Description  string         `yaml:"description" json:"description"`
	Type         Type           `yaml:"task_type" json:"task_type"`
	Priority     Priority       `yaml:"priority" json:"priority"`
	Status       Status         `yaml:"status" json:"status"`
	AssignedTo   string         `yaml:"assigned_to,omitempty" json:"assigned_to,omitempty"`
	AssignedAt   time.Time      `yaml:"assigned_at,omitempty" json:"assigned_at,omitzero"`
	Engineer     string         `yaml:"engineer,omitempty" json:"engineer,omitempty"`
	Dependencies []string       `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Comments     []string       `yaml:"comments,omitempty" json:"comments,omitempty"`
	TestResult   *TestResult    `yaml:"test_results,omitempty" json:"test_results,omitempty"`
	History      []HistoryEntry `yaml:"history" json:"history"`
	CreatedAt    time.Time      `yaml:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `yaml:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so callers never share state with the registry.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Dependencies = slices.Clone(t.Dependencies)
	c.Comments = slices.Clone(t.Comments)
	c.History = slices.Clone(t.History)
	if t.TestResult != nil {
		tr := *t.TestResult
		c.TestResult = &tr
	}
	return &c
}
