package task

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kazz187/taskcrew/pkg/cerr"
)

// Registry owns every task record. It knows nothing about workers; callers
// receive clones and may only change a task through the registry's methods.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
	now   func() time.Time
	newID func() string
}

type Option func(*Registry)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithIDGenerator replaces the default TASK-xxxxxxxx generator.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		r.newID = gen
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tasks: make(map[string]*Task),
		now:   time.Now,
		newID: NewID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewID returns an id of the form TASK-1a2b3c4d.
func NewID() string {
	return "TASK-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

type CreateParams struct {
	Title        string
	Description  string
	Type         Type
	Priority     Priority
	Dependencies []string
	Actor        string
}

func (r *Registry) Create(p CreateParams) (*Task, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, invalidField("title", "title must not be empty")
	}
	if !p.Type.Valid() {
		return nil, invalidField("task_type", fmt.Sprintf("unknown task_type %q", p.Type))
	}
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}
	if !p.Priority.Valid() {
		return nil, invalidField("priority", fmt.Sprintf("unknown priority %q", p.Priority))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dep := range p.Dependencies {
		if _, ok := r.tasks[dep]; !ok {
			return nil, invalidField("dependencies", fmt.Sprintf("dependency %s does not exist", dep))
		}
	}

	id := r.newID()
	for attempt := 0; r.tasks[id] != nil; attempt++ {
		if attempt >= 8 {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("could not allocate a unique task id, last tried %s", id))
		}
		id = r.newID()
	}

	now := r.now()
	t := &Task{
		ID:           id,
		Title:        p.Title,
		Description:  p.Description,
		Type:         p.Type,
		Priority:     p.Priority,
		Status:       StatusCreated,
		Dependencies: slices.Clone(p.Dependencies),
		History: []HistoryEntry{{
			Timestamp: now,
			Status:    StatusCreated,
			Actor:     p.Actor,
			Note:      "task created",
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[id] = t
	r.order = append(r.order, id)
	return t.Clone(), nil
}

func (r *Registry) Get(id string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, notFound(id)
	}
	return t.Clone(), nil
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Statuses   []Status
	AssignedTo string
}

func (f Filter) match(t *Task) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	return true
}

// List returns a snapshot of the matching tasks in creation order.
func (r *Registry) List(f Filter) []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.order))
	for _, id := range r.order {
		t := r.tasks[id]
		if f.match(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// UpdateOption adjusts the task in the same mutation as a status change.
type UpdateOption func(*update)

type update struct {
	assignee      *string
	expectStatus  *Status
	expectOwner   *string
	engineer      string
	comment       string
	testResult    *TestResult
	assignedAtNow bool
}

// WithAssignee hands the task to workerID as part of the transition.
func WithAssignee(workerID string) UpdateOption {
	return func(u *update) {
		u.assignee = &workerID
		u.assignedAtNow = true
	}
}

// WithoutAssignee clears the owner as part of the transition.
func WithoutAssignee() UpdateOption {
	return func(u *update) {
		empty := ""
		u.assignee = &empty
	}
}

// ExpectOwner fails the update with a conflict unless workerID holds the task.
func ExpectOwner(workerID string) UpdateOption {
	return func(u *update) {
		u.expectOwner = &workerID
	}
}

// ExpectStatus fails the update with a conflict unless the task is in s.
func ExpectStatus(s Status) UpdateOption {
	return func(u *update) {
		u.expectStatus = &s
	}
}

// WithEngineer records the engineer responsible for the implementation.
func WithEngineer(workerID string) UpdateOption {
	return func(u *update) {
		u.engineer = workerID
	}
}

// WithComment appends a comment stamped with time and actor.
func WithComment(comment string) UpdateOption {
	return func(u *update) {
		u.comment = comment
	}
}

func WithTestResult(tr TestResult) UpdateOption {
	return func(u *update) {
		u.testResult = &tr
	}
}

// UpdateStatus moves a task along the lifecycle. A transition outside the
// allowed table leaves the task untouched and returns ErrInvalidTransition.
func (r *Registry) UpdateStatus(id string, to Status, actor, note string, opts ...UpdateOption) (*Task, error) {
	var u update
	for _, opt := range opts {
		opt(&u)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, notFound(id)
	}
	if u.expectStatus != nil && t.Status != *u.expectStatus {
		return nil, conflict(id, fmt.Sprintf("is %s, expected %s", t.Status, *u.expectStatus))
	}
	if u.expectOwner != nil && t.AssignedTo != *u.expectOwner {
		return nil, conflict(id, fmt.Sprintf("is held by %q, expected %q", t.AssignedTo, *u.expectOwner))
	}
	if !CanTransition(t.Status, to) {
		return nil, TransitionError(t, to)
	}

	assignee := t.AssignedTo
	if u.assignee != nil {
		assignee = *u.assignee
	}
	if to.Terminal() {
		assignee = ""
	}
	if to.Held() && assignee == "" {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("task %s: status %s requires an owner", id, to))
	}

	now := r.now()
	t.Status = to
	if assignee != t.AssignedTo || u.assignedAtNow {
		t.AssignedAt = now
	}
	if assignee == "" {
		t.AssignedAt = time.Time{}
	}
	t.AssignedTo = assignee
	if u.engineer != "" {
		t.Engineer = u.engineer
	}
	if u.testResult != nil {
		tr := *u.testResult
		t.TestResult = &tr
	}
	if u.comment != "" {
		t.Comments = append(t.Comments, formatComment(now, actor, u.comment))
	}
	t.History = append(t.History, HistoryEntry{Timestamp: now, Status: to, Actor: actor, Note: note})
	t.UpdatedAt = now
	return t.Clone(), nil
}

// SetAssignee changes the owner without changing the status. An empty
// workerID clears the owner, which is only legal outside the held statuses.
func (r *Registry) SetAssignee(id, workerID, actor, note string, opts ...UpdateOption) (*Task, error) {
	var u update
	for _, opt := range opts {
		opt(&u)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, notFound(id)
	}
	if u.expectStatus != nil && t.Status != *u.expectStatus {
		return nil, conflict(id, fmt.Sprintf("is %s, expected %s", t.Status, *u.expectStatus))
	}
	if u.expectOwner != nil && t.AssignedTo != *u.expectOwner {
		return nil, conflict(id, fmt.Sprintf("is held by %q, expected %q", t.AssignedTo, *u.expectOwner))
	}
	if workerID == "" && t.Status.Held() {
		return nil, cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("task %s is %s and must keep an owner", id, t.Status), ErrInvalidTransition)
	}
	if workerID != "" && !t.Status.Held() {
		return nil, cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("task %s is %s and cannot be owned", id, t.Status), ErrInvalidTransition)
	}

	now := r.now()
	t.AssignedTo = workerID
	t.AssignedAt = now
	if workerID == "" {
		t.AssignedAt = time.Time{}
	}
	if u.comment != "" {
		t.Comments = append(t.Comments, formatComment(now, actor, u.comment))
	}
	t.History = append(t.History, HistoryEntry{Timestamp: now, Status: t.Status, Actor: actor, Note: note})
	t.UpdatedAt = now
	return t.Clone(), nil
}

// Restore replaces the registry content with previously exported tasks,
// keeping their order.
func (r *Registry) Restore(tasks []*Task) error {
	next := make(map[string]*Task, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t == nil || t.ID == "" {
			return fmt.Errorf("restore: task without id")
		}
		if _, dup := next[t.ID]; dup {
			return fmt.Errorf("restore: duplicate task %s", t.ID)
		}
		if !t.Status.Valid() {
			return fmt.Errorf("restore: task %s has unknown status %q", t.ID, t.Status)
		}
		if t.Status.Held() != (t.AssignedTo != "") {
			return fmt.Errorf("restore: task %s is %s with owner %q", t.ID, t.Status, t.AssignedTo)
		}
		next[t.ID] = t.Clone()
		order = append(order, t.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = next
	r.order = order
	return nil
}

func formatComment(ts time.Time, actor, comment string) string {
	return fmt.Sprintf("[%s] %s: %s", ts.Format(time.DateTime), actor, comment)
}
