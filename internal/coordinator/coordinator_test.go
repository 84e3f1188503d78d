package coordinator

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskcrew/internal/eventbus"
	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
)

const pm = "ProjectManager"

type member struct {
	id       string
	role     worker.Role
	capacity int
}

func newCoordinator(t *testing.T, members ...member) *Coordinator {
	t.Helper()
	workers := worker.NewRegistry()
	require.NoError(t, workers.Register(pm, worker.RoleManager, 10))
	for _, m := range members {
		require.NoError(t, workers.Register(m.id, m.role, m.capacity))
	}
	return New(task.NewRegistry(), workers)
}

func defaultCoordinator(t *testing.T) *Coordinator {
	return newCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 5},
		member{"Engineer2", worker.RoleEngineer, 5},
		member{"Tester1", worker.RoleTester, 3},
	)
}

func create(t *testing.T, c *Coordinator, title string) *task.Task {
	t.Helper()
	tk, err := c.CreateTask(pm, task.CreateParams{Title: title, Description: "d", Type: task.TypeFeature, Priority: task.PriorityHigh})
	require.NoError(t, err)
	return tk
}

func load(t *testing.T, c *Coordinator, id string) int {
	t.Helper()
	w, err := c.Worker(id)
	require.NoError(t, err)
	return w.Load()
}

func TestCoordinator_CreateRequiresManager(t *testing.T) {
	c := defaultCoordinator(t)

	_, err := c.CreateTask("Engineer1", task.CreateParams{Title: "x", Type: task.TypeBug})
	require.ErrorIs(t, err, ErrWrongRole)
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))

	_, err = c.CreateTask("Ghost", task.CreateParams{Title: "x", Type: task.TypeBug})
	require.ErrorIs(t, err, worker.ErrNotFound)

	tk := create(t, c, "ok")
	assert.Equal(t, task.StatusCreated, tk.Status)
	assert.Equal(t, pm, tk.History[0].Actor)
}

func TestCoordinator_AutoAssignSingleEngineer(t *testing.T) {
	c := newCoordinator(t, member{"Engineer1", worker.RoleEngineer, 5})
	tk := create(t, c, "feature")

	got, err := c.Assign(tk.ID, "", pm)
	require.NoError(t, err)
	assert.Equal(t, task.StatusAssigned, got.Status)
	assert.Equal(t, "Engineer1", got.AssignedTo)

	w, err := c.Worker("Engineer1")
	require.NoError(t, err)
	assert.Equal(t, 1, w.Load())
	assert.InDelta(t, 20.0, w.LoadPercentage(), 0.001)
	require.NoError(t, c.Verify())
}

func TestCoordinator_AutoAssignPicksLeastLoaded(t *testing.T) {
	c := newCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 2},
		member{"Engineer2", worker.RoleEngineer, 4},
		member{"Engineer3", worker.RoleEngineer, 4},
	)

	// 0/2, 0/4, 0/4: all at 0%, fewest tasks tie, registration order wins
	first, err := c.Assign(create(t, c, "a").ID, "", pm)
	require.NoError(t, err)
	assert.Equal(t, "Engineer1", first.AssignedTo)

	// 1/2=50%, 0/4, 0/4 -> Engineer2
	second, err := c.Assign(create(t, c, "b").ID, "", pm)
	require.NoError(t, err)
	assert.Equal(t, "Engineer2", second.AssignedTo)

	// 50%, 25%, 0% -> Engineer3
	third, err := c.Assign(create(t, c, "c").ID, "", pm)
	require.NoError(t, err)
	assert.Equal(t, "Engineer3", third.AssignedTo)

	// 50%, 25%, 25% with equal counts -> Engineer2 by registration order
	fourth, err := c.Assign(create(t, c, "d").ID, "", pm)
	require.NoError(t, err)
	assert.Equal(t, "Engineer2", fourth.AssignedTo)
}

func TestCoordinator_AutoAssignNoCapacity(t *testing.T) {
	c := newCoordinator(t, member{"Engineer1", worker.RoleEngineer, 1})
	_, err := c.Assign(create(t, c, "a").ID, "", pm)
	require.NoError(t, err)

	tk := create(t, c, "b")
	_, err = c.Assign(tk.ID, "", pm)
	require.ErrorIs(t, err, ErrNoCapacity)
	assert.True(t, cerr.IsCode(err, cerr.ResourceExhausted))

	got, err := c.Task(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCreated, got.Status)
	assert.Empty(t, got.AssignedTo)
	assert.Len(t, got.History, 1)
	assert.Equal(t, 1, load(t, c, "Engineer1"))
	require.NoError(t, c.Verify())
}

func TestCoordinator_ManualAssign(t *testing.T) {
	c := newCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 1},
		member{"Tester1", worker.RoleTester, 1},
	)
	_, err := c.Assign(create(t, c, "a").ID, "Engineer1", pm)
	require.NoError(t, err)

	// manual assignment may exceed capacity
	b := create(t, c, "b")
	got, err := c.Assign(b.ID, "Engineer1", pm)
	require.NoError(t, err)
	assert.Equal(t, "Engineer1", got.AssignedTo)
	w, err := c.Worker("Engineer1")
	require.NoError(t, err)
	assert.InDelta(t, 200.0, w.LoadPercentage(), 0.001)

	cTask := create(t, c, "c")
	_, err = c.Assign(cTask.ID, "Tester1", pm)
	require.ErrorIs(t, err, ErrInvalidAssignee)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	_, err = c.Assign(cTask.ID, "Ghost", pm)
	require.ErrorIs(t, err, ErrInvalidAssignee)

	unchanged, err := c.Task(cTask.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCreated, unchanged.Status)
	require.NoError(t, c.Verify())
}

func TestCoordinator_AssignRejectsWrongStatus(t *testing.T) {
	c := defaultCoordinator(t)
	tk := create(t, c, "a")
	_, err := c.Assign(tk.ID, "", pm)
	require.NoError(t, err)

	_, err = c.Assign(tk.ID, "", pm)
	require.ErrorIs(t, err, task.ErrInvalidTransition)

	_, err = c.Assign("TASK-missing", "", pm)
	require.ErrorIs(t, err, task.ErrNotFound)
}

func TestCoordinator_FullLifecycleRejected(t *testing.T) {
	c := newCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 5},
		member{"Tester1", worker.RoleTester, 3},
	)
	tk := create(t, c, "T")

	_, err := c.Assign(tk.ID, "", pm)
	require.NoError(t, err)

	got, err := c.StartWork(tk.ID, "Engineer1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status)

	got, err = c.Complete(tk.ID, "Engineer1", "done")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Equal(t, "Engineer1", got.AssignedTo)
	assert.Equal(t, "Engineer1", got.Engineer)

	got, err = c.ClaimForTest(tk.ID, "Tester1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusTesting, got.Status)
	assert.Equal(t, "Tester1", got.AssignedTo)
	assert.Equal(t, 0, load(t, c, "Engineer1"))
	assert.Equal(t, 1, load(t, c, "Tester1"))

	got, err = c.SubmitTestResults(tk.ID, "Tester1", false, "login broken")
	require.NoError(t, err)
	assert.Equal(t, task.StatusTestFailed, got.Status)
	require.NotNil(t, got.TestResult)
	assert.False(t, got.TestResult.Passed)
	assert.Equal(t, "login broken", got.TestResult.Notes)

	got, err = c.Review(tk.ID, pm, false, "not worth it")
	require.NoError(t, err)
	assert.Equal(t, task.StatusRejected, got.Status)
	assert.Empty(t, got.AssignedTo)
	assert.Equal(t, 0, load(t, c, "Tester1"))
	historyLen := len(got.History)

	_, err = c.Assign(tk.ID, "", pm)
	require.ErrorIs(t, err, task.ErrInvalidTransition)
	_, err = c.StartWork(tk.ID, "Engineer1")
	require.ErrorIs(t, err, task.ErrInvalidTransition)
	_, err = c.Complete(tk.ID, "Engineer1", "")
	require.ErrorIs(t, err, task.ErrInvalidTransition)
	_, err = c.ClaimForTest(tk.ID, "Tester1")
	require.ErrorIs(t, err, task.ErrInvalidTransition)
	_, err = c.SubmitTestResults(tk.ID, "Tester1", true, "")
	require.ErrorIs(t, err, task.ErrInvalidTransition)
	_, err = c.Review(tk.ID, pm, true, "")
	require.ErrorIs(t, err, task.ErrInvalidTransition)

	final, err := c.Task(tk.ID)
	require.NoError(t, err)
	assert.Len(t, final.History, historyLen)
	require.NoError(t, c.Verify())
}

func TestCoordinator_ApproveAndSendBack(t *testing.T) {
	c := newCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 1},
		member{"Engineer2", worker.RoleEngineer, 5},
		member{"Tester1", worker.RoleTester, 3},
	)
	passing := create(t, c, "passing")
	failing := create(t, c, "failing")
	for _, tk := range []*task.Task{passing, failing} {
		_, err := c.Assign(tk.ID, "Engineer1", pm)
		require.NoError(t, err)
		_, err = c.StartWork(tk.ID, "Engineer1")
		require.NoError(t, err)
		_, err = c.Complete(tk.ID, "Engineer1", "")
		require.NoError(t, err)
		_, err = c.ClaimForTest(tk.ID, "Tester1")
		require.NoError(t, err)
	}

	_, err := c.SubmitTestResults(passing.ID, "Tester1", true, "all green")
	require.NoError(t, err)
	approved, err := c.Review(passing.ID, pm, true, "ship it")
	require.NoError(t, err)
	assert.Equal(t, task.StatusApproved, approved.Status)
	assert.Empty(t, approved.AssignedTo)

	// fill Engineer1 so the send-back has to bypass capacity
	_, err = c.Assign(create(t, c, "filler").ID, "Engineer1", pm)
	require.NoError(t, err)

	_, err = c.SubmitTestResults(failing.ID, "Tester1", false, "crash on save")
	require.NoError(t, err)
	back, err := c.Review(failing.ID, pm, true, "fix the crash")
	require.NoError(t, err)
	assert.Equal(t, task.StatusAssigned, back.Status)
	assert.Equal(t, "Engineer1", back.AssignedTo)
	assert.Equal(t, 2, load(t, c, "Engineer1"))
	assert.Equal(t, 0, load(t, c, "Tester1"))
	require.NotEmpty(t, back.Comments)
	assert.Contains(t, back.Comments[len(back.Comments)-1], "fix the crash")
	require.NoError(t, c.Verify())
}

func TestCoordinator_AssignCompletedTaskToTester(t *testing.T) {
	c := defaultCoordinator(t)
	tk := create(t, c, "a")
	_, err := c.Assign(tk.ID, "Engineer2", pm)
	require.NoError(t, err)
	_, err = c.StartWork(tk.ID, "Engineer2")
	require.NoError(t, err)
	_, err = c.Complete(tk.ID, "Engineer2", "")
	require.NoError(t, err)

	got, err := c.Assign(tk.ID, "", pm)
	require.NoError(t, err)
	assert.Equal(t, task.StatusTesting, got.Status)
	assert.Equal(t, "Tester1", got.AssignedTo)
	assert.Equal(t, 0, load(t, c, "Engineer2"))
	require.NoError(t, c.Verify())
}

func TestCoordinator_OwnershipAndRoleChecks(t *testing.T) {
	c := defaultCoordinator(t)
	tk := create(t, c, "a")
	_, err := c.Assign(tk.ID, "Engineer1", pm)
	require.NoError(t, err)

	_, err = c.StartWork(tk.ID, "Engineer2")
	require.ErrorIs(t, err, ErrNotOwner)
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))

	_, err = c.StartWork(tk.ID, "Tester1")
	require.ErrorIs(t, err, ErrWrongRole)

	_, err = c.Review(tk.ID, "Engineer1", true, "")
	require.ErrorIs(t, err, ErrWrongRole)

	got, err := c.Task(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusAssigned, got.Status)
	assert.Len(t, got.History, 2)
}

func TestCoordinator_ClaimForTestRespectsTesterCapacity(t *testing.T) {
	c := newCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 5},
		member{"Tester1", worker.RoleTester, 1},
	)
	var ids []string
	for i := range 2 {
		tk := create(t, c, fmt.Sprintf("t%d", i))
		_, err := c.Assign(tk.ID, "", pm)
		require.NoError(t, err)
		_, err = c.StartWork(tk.ID, "Engineer1")
		require.NoError(t, err)
		_, err = c.Complete(tk.ID, "Engineer1", "")
		require.NoError(t, err)
		ids = append(ids, tk.ID)
	}
	_, err := c.ClaimForTest(ids[0], "Tester1")
	require.NoError(t, err)
	_, err = c.ClaimForTest(ids[1], "Tester1")
	require.ErrorIs(t, err, worker.ErrCapacityExceeded)

	got, err := c.Task(ids[1])
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Equal(t, "Engineer1", got.AssignedTo)
	require.NoError(t, c.Verify())
}

func TestCoordinator_ConcurrentAssignmentsKeepSingleOwner(t *testing.T) {
	c := newCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 5},
		member{"Engineer2", worker.RoleEngineer, 5},
	)
	tk := create(t, c, "contended")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Assign(tk.ID, "", pm); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, 1, load(t, c, "Engineer1")+load(t, c, "Engineer2"))
	require.NoError(t, c.Verify())
}

func TestCoordinator_ConcurrentLoadNeverExceedsCapacity(t *testing.T) {
	c := newCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 3},
		member{"Engineer2", worker.RoleEngineer, 3},
	)
	var ids []string
	for i := range 10 {
		ids = append(ids, create(t, c, fmt.Sprintf("t%d", i)).ID)
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Assign(id, "", pm)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, load(t, c, "Engineer1"))
	assert.Equal(t, 3, load(t, c, "Engineer2"))
	assert.Len(t, c.Tasks(task.Filter{Statuses: []task.Status{task.StatusCreated}}), 4)
	require.NoError(t, c.Verify())
}

func TestCoordinator_RebalanceRacesWithLifecycle(t *testing.T) {
	c := newCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 10},
		member{"Engineer2", worker.RoleEngineer, 10},
		member{"Engineer3", worker.RoleEngineer, 10},
	)
	var held []string
	for i := range 8 {
		tk := create(t, c, fmt.Sprintf("held-%d", i))
		_, err := c.Assign(tk.ID, "Engineer1", pm)
		require.NoError(t, err)
		held = append(held, tk.ID)
	}
	var fresh []string
	for i := range 8 {
		fresh = append(fresh, create(t, c, fmt.Sprintf("fresh-%d", i)).ID)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for range 200 {
			c.Rebalance()
		}
	}()
	go func() {
		defer wg.Done()
		for range 5 {
			for _, id := range held {
				tk, err := c.Task(id)
				if err != nil || tk.AssignedTo == "" {
					continue
				}
				// The holder may change underneath us; NotOwner is expected.
				_, _ = c.StartWork(id, tk.AssignedTo)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for _, id := range fresh {
			_, _ = c.Assign(id, "", pm)
		}
	}()
	wg.Wait()

	require.NoError(t, c.Verify())
	total := 0
	for _, id := range []string{"Engineer1", "Engineer2", "Engineer3"} {
		total += load(t, c, id)
	}
	assert.Equal(t, len(held)+len(fresh), total)
}

func TestCoordinator_PublishesEvents(t *testing.T) {
	bus := eventbus.New()
	workers := worker.NewRegistry()
	require.NoError(t, workers.Register(pm, worker.RoleManager, 10))
	require.NoError(t, workers.Register("Engineer1", worker.RoleEngineer, 5))
	c := New(task.NewRegistry(), workers, WithEventBus(bus))
	_, ch := bus.Subscribe(16)

	tk := create(t, c, "a")
	_, err := c.Assign(tk.ID, "", pm)
	require.NoError(t, err)
	_, err = c.StartWork(tk.ID, "Engineer1")
	require.NoError(t, err)

	var types []eventbus.Type
	for range 3 {
		ev := <-ch
		assert.Equal(t, tk.ID, ev.ResourceID)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []eventbus.Type{
		eventbus.TypeTaskCreated,
		eventbus.TypeTaskAssigned,
		eventbus.TypeTaskStatusChanged,
	}, types)
}

func TestSelectLeastLoaded(t *testing.T) {
	ws := []*worker.Worker{
		{ID: "full", MaxCapacity: 1, TaskIDs: []string{"a"}},
		{ID: "half", MaxCapacity: 2, TaskIDs: []string{"b"}},
		{ID: "half-big", MaxCapacity: 4, TaskIDs: []string{"c", "d"}},
	}
	assert.Equal(t, "half", SelectLeastLoaded(ws).ID)
	assert.Nil(t, SelectLeastLoaded(ws[:1]))
	assert.Nil(t, SelectLeastLoaded(nil))
}

func TestCoordinator_Restore(t *testing.T) {
	c := defaultCoordinator(t)
	a := create(t, c, "a")
	_, err := c.Assign(a.ID, "Engineer2", pm)
	require.NoError(t, err)
	snap := c.Snapshot()

	restored := defaultCoordinator(t)
	require.NoError(t, restored.Restore(snap.Tasks))
	assert.Equal(t, 1, load(t, restored, "Engineer2"))
	require.NoError(t, restored.Verify())

	orphan := snap.Tasks[0].Clone()
	orphan.AssignedTo = "Engineer9"
	other := defaultCoordinator(t)
	require.ErrorIs(t, other.Restore([]*task.Task{orphan}), worker.ErrNotFound)
	assert.Empty(t, other.Tasks(task.Filter{}))
}
