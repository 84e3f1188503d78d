package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
)

// tickingCoordinator uses a clock that advances one second per read so that
// assignment order is visible in AssignedAt.
func tickingCoordinator(t *testing.T, members ...member) *Coordinator {
	t.Helper()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	clock := func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Second)
	}
	workers := worker.NewRegistry()
	require.NoError(t, workers.Register(pm, worker.RoleManager, 10))
	for _, m := range members {
		require.NoError(t, workers.Register(m.id, m.role, m.capacity))
	}
	return New(task.NewRegistry(task.WithClock(clock)), workers)
}

func assignN(t *testing.T, c *Coordinator, workerID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := range n {
		tk := create(t, c, fmt.Sprintf("%s-%d", workerID, i))
		_, err := c.Assign(tk.ID, workerID, pm)
		require.NoError(t, err)
		ids = append(ids, tk.ID)
	}
	return ids
}

func TestRebalance_MovesFromOverloadedToUnderloaded(t *testing.T) {
	c := tickingCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 10},
		member{"Engineer2", worker.RoleEngineer, 10},
	)
	busy := assignN(t, c, "Engineer1", 9)
	assignN(t, c, "Engineer2", 1)

	report := c.Rebalance()
	require.NotEmpty(t, report.Moves)
	assert.Zero(t, report.Failures)

	// the least recently assigned task goes first
	first := report.Moves[0]
	assert.Equal(t, busy[0], first.TaskID)
	assert.Equal(t, "Engineer1", first.From)
	assert.Equal(t, "Engineer2", first.To)
	assert.Equal(t, worker.RoleEngineer, first.Role)

	moved, err := c.Task(busy[0])
	require.NoError(t, err)
	assert.Equal(t, "Engineer2", moved.AssignedTo)
	assert.Equal(t, task.StatusAssigned, moved.Status)
	last := moved.History[len(moved.History)-1]
	assert.Equal(t, RebalancerActor, last.Actor)
	assert.Equal(t, task.StatusAssigned, last.Status)

	src, err := c.Worker("Engineer1")
	require.NoError(t, err)
	dst, err := c.Worker("Engineer2")
	require.NoError(t, err)
	assert.LessOrEqual(t, src.LoadPercentage(), 80.0)
	assert.LessOrEqual(t, dst.Load(), dst.MaxCapacity)
	assert.Equal(t, 10, src.Load()+dst.Load())
	require.NoError(t, c.Verify())
}

func TestRebalance_NeverMovesStartedWork(t *testing.T) {
	c := tickingCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 5},
		member{"Engineer2", worker.RoleEngineer, 5},
	)
	ids := assignN(t, c, "Engineer1", 5)
	for _, id := range ids[:2] {
		_, err := c.StartWork(id, "Engineer1")
		require.NoError(t, err)
	}

	report := c.Rebalance()
	require.Len(t, report.Moves, 1)
	assert.Equal(t, ids[2], report.Moves[0].TaskID)

	for _, id := range ids[:2] {
		got, err := c.Task(id)
		require.NoError(t, err)
		assert.Equal(t, "Engineer1", got.AssignedTo)
		assert.Equal(t, task.StatusInProgress, got.Status)
	}
	require.NoError(t, c.Verify())
}

func TestRebalance_NothingMovableLeavesWorkersAlone(t *testing.T) {
	c := tickingCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 2},
		member{"Engineer2", worker.RoleEngineer, 2},
	)
	for _, id := range assignN(t, c, "Engineer1", 2) {
		_, err := c.StartWork(id, "Engineer1")
		require.NoError(t, err)
	}

	report := c.Rebalance()
	assert.Empty(t, report.Moves)
	assert.Zero(t, report.Failures)
	assert.Equal(t, 2, load(t, c, "Engineer1"))
	assert.Equal(t, 0, load(t, c, "Engineer2"))
}

func TestRebalance_DestinationMustBeLessLoaded(t *testing.T) {
	c := tickingCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 1},
		member{"Engineer2", worker.RoleEngineer, 1},
	)
	assignN(t, c, "Engineer1", 2)

	// 200% and 0%: one task moves, then both sit at 100% and nothing is
	// underloaded any more
	report := c.Rebalance()
	require.Len(t, report.Moves, 1)
	assert.Equal(t, 1, load(t, c, "Engineer1"))
	assert.Equal(t, 1, load(t, c, "Engineer2"))

	again := c.Rebalance()
	assert.Empty(t, again.Moves)
	require.NoError(t, c.Verify())
}

func TestRebalance_RolesAreIndependent(t *testing.T) {
	c := tickingCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 1},
		member{"Tester1", worker.RoleTester, 5},
	)
	assignN(t, c, "Engineer1", 3)

	report := c.Rebalance()
	assert.Empty(t, report.Moves)
	assert.Equal(t, 0, load(t, c, "Tester1"))
}

func TestRebalance_SpreadsAcrossSeveralPeers(t *testing.T) {
	c := tickingCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 4},
		member{"Engineer2", worker.RoleEngineer, 4},
		member{"Engineer3", worker.RoleEngineer, 4},
	)
	assignN(t, c, "Engineer1", 4)
	assignN(t, c, "Engineer2", 1)

	// 100%, 25%, 0%: the first move goes to the emptiest peer
	report := c.Rebalance()
	require.Len(t, report.Moves, 1)
	assert.Equal(t, "Engineer3", report.Moves[0].To)
	assert.Equal(t, 3, load(t, c, "Engineer1"))
	require.NoError(t, c.Verify())
}

func TestRebalancer_StartStop(t *testing.T) {
	c := tickingCoordinator(t,
		member{"Engineer1", worker.RoleEngineer, 10},
		member{"Engineer2", worker.RoleEngineer, 10},
	)
	assignN(t, c, "Engineer1", 9)
	assignN(t, c, "Engineer2", 1)

	var passes atomic.Int64
	r := NewRebalancer(c, 5*time.Millisecond, WithPassHook(func(Report) {
		passes.Add(1)
	}))
	require.NoError(t, r.Start(context.Background()))
	require.Error(t, r.Start(context.Background()))

	require.Eventually(t, func() bool { return passes.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	r.Stop()
	stopped := passes.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, passes.Load())
	assert.Equal(t, 8, load(t, c, "Engineer1"))
	require.NoError(t, c.Verify())

	// stop is idempotent and the rebalancer can be restarted
	r.Stop()
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}

func TestRebalancer_StopsWithContext(t *testing.T) {
	c := tickingCoordinator(t, member{"Engineer1", worker.RoleEngineer, 1})
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRebalancer(c, time.Millisecond)
	require.NoError(t, r.Start(ctx))
	cancel()
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("rebalancer did not stop")
	}
}

func TestNewRebalancer_DefaultInterval(t *testing.T) {
	r := NewRebalancer(nil, 0)
	assert.Equal(t, DefaultRebalanceInterval, r.interval)
}
