package rpc

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskcrew/internal/command"
	"github.com/kazz187/taskcrew/internal/coordinator"
	"github.com/kazz187/taskcrew/internal/eventbus"
	"github.com/kazz187/taskcrew/internal/manifest"
	"github.com/kazz187/taskcrew/internal/roleapi"
	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
	"github.com/kazz187/taskcrew/pkg/clog"
)

var _ command.Invoker = (*Client)(nil)

type fixture struct {
	client  *Client
	service *roleapi.Service
	coord   *coordinator.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	workers := worker.NewRegistry()
	require.NoError(t, workers.Register("ProjectManager", worker.RoleManager, 10))
	require.NoError(t, workers.Register("Engineer1", worker.RoleEngineer, 5))
	require.NoError(t, workers.Register("Tester1", worker.RoleTester, 3))
	bus := eventbus.New()
	coord := coordinator.New(task.NewRegistry(), workers, coordinator.WithEventBus(bus))
	service := roleapi.NewService(coord, manifest.Default())

	mux := http.NewServeMux()
	mux.Handle(NewHandler(NewServer(service, bus), connect.WithInterceptors(
		clog.NewSlogConnectInterceptor(),
		cerr.NewConvertConnectErrorInterceptor(),
	)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{client: NewClient(srv.Client(), srv.URL), service: service, coord: coord}
}

func TestClient_Invoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.client.Invoke(ctx, worker.RoleManager, "create_task", map[string]any{
		"title": "T", "description": "D", "task_type": "bug",
	})
	require.NoError(t, err)
	assert.Equal(t, roleapi.CodeOK, res.Code)
	data := res.Data.(map[string]any)
	id := data["task_id"].(string)
	assert.Equal(t, "CREATED", data["status"])

	_, err = f.client.Invoke(ctx, worker.RoleManager, "assign_task", map[string]any{"task_id": id})
	require.NoError(t, err)

	res, err = f.client.Invoke(roleapi.WithAgentID(ctx, "Engineer1"), worker.RoleEngineer, "work_on_task", map[string]any{"task_id": id})
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", res.Data.(map[string]any)["status"])

	got, err := f.coord.Task(id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status)
}

func TestClient_InvokeErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.Invoke(ctx, worker.RoleManager, "create_task", map[string]any{"title": "T"})
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	ce := cerr.FromConnectError(err)
	assert.Equal(t, cerr.InvalidArgument, ce.Code)
	assert.Contains(t, ce.DetailMessages(), `missing required field "description"`)

	_, err = f.client.Invoke(ctx, worker.RoleTester, "test_task", map[string]any{"task_id": "TASK-nope"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = f.client.Invoke(roleapi.WithAgentID(ctx, "Tester1"), worker.RoleEngineer, "get_status", nil)
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))
}

func TestClient_DrivesShell(t *testing.T) {
	f := newFixture(t)
	out := &bytes.Buffer{}
	sh := command.NewShell(f.client, out)
	ctx := context.Background()

	_, err := sh.Exec(ctx, `create task "Remote" "over rpc" low improvement`)
	require.NoError(t, err)
	_, err = sh.Exec(ctx, "as Engineer1")
	require.NoError(t, err)
	_, err = sh.Exec(ctx, "as Nobody")
	assert.Equal(t, cerr.NotFound, cerr.CodeOf(err))

	out.Reset()
	_, err = sh.Exec(ctx, "list tasks CREATED")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Remote")
}

func TestClient_Watch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// keep creating tasks until the stream is subscribed and delivers one
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = f.service.Invoke(context.Background(), worker.RoleManager, "create_task", map[string]any{
					"title": "W", "description": "watched", "task_type": "feature",
				})
			}
		}
	}()

	errDone := errors.New("done")
	var got *eventbus.Event
	err := f.client.Watch(ctx, WatchEventsRequest{Types: []eventbus.Type{eventbus.TypeTaskCreated}}, func(e *eventbus.Event) error {
		got = e
		return errDone
	})
	require.ErrorIs(t, err, errDone)
	require.NotNil(t, got)
	assert.Equal(t, eventbus.TypeTaskCreated, got.Type)
	assert.Equal(t, "CREATED", got.Metadata["status"])
	assert.Equal(t, "ProjectManager", got.Metadata["actor"])
}

func TestWatchEventsRequest_Match(t *testing.T) {
	e := &eventbus.Event{Type: eventbus.TypeTaskAssigned, ResourceID: "TASK-1"}
	assert.True(t, (&WatchEventsRequest{}).match(e))
	assert.True(t, (&WatchEventsRequest{Types: []eventbus.Type{eventbus.TypeTaskAssigned}, ResourceID: "TASK-1"}).match(e))
	assert.False(t, (&WatchEventsRequest{Types: []eventbus.Type{eventbus.TypeTaskCreated}}).match(e))
	assert.False(t, (&WatchEventsRequest{ResourceID: "TASK-2"}).match(e))
}
