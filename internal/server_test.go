package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskcrew/internal/config"
	"github.com/kazz187/taskcrew/internal/coordinator"
	"github.com/kazz187/taskcrew/internal/eventbus"
	"github.com/kazz187/taskcrew/internal/httpapi"
	"github.com/kazz187/taskcrew/internal/manifest"
	"github.com/kazz187/taskcrew/internal/roleapi"
	"github.com/kazz187/taskcrew/internal/rpc"
	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	workers := worker.NewRegistry()
	require.NoError(t, config.DefaultCrew().Register(workers, &config.CapacityEnv{
		ManagerMaxCapacity: 10, EngineerMaxCapacity: 5, TesterMaxCapacity: 3,
	}))
	bus := eventbus.New()
	coord := coordinator.New(task.NewRegistry(), workers, coordinator.WithEventBus(bus))
	service := roleapi.NewService(coord, manifest.Default())

	s := NewServer(&config.Env{}, httpapi.NewHandler(service, nil), rpc.NewServer(service, bus))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RESTAndRPCShareState(t *testing.T) {
	srv := newTestServer(t)
	client := rpc.NewClient(srv.Client(), srv.URL)

	res, err := client.Invoke(context.Background(), worker.RoleManager, "create_task", map[string]any{
		"title": "Shared", "description": "seen by both surfaces", "task_type": "feature",
	})
	require.NoError(t, err)
	id := res.Data.(map[string]any)["task_id"].(string)

	req, err := http.NewRequest(http.MethodPost, srv.URL+manifest.Path("manager", "assign_task"), nil)
	require.NoError(t, err)
	q := req.URL.Query()
	q.Set("agent_id", "ProjectManager")
	req.URL.RawQuery = q.Encode()
	// assign_task needs a body; an empty one fails validation
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	res, err = client.Invoke(context.Background(), worker.RoleManager, "list_tasks", map[string]any{"status": "CREATED"})
	require.NoError(t, err)
	tasks := res.Data.(map[string]any)["tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].(map[string]any)["id"])
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/agents/manager/list_tasks", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Contains(t, []string{"*", "http://localhost:5173"}, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_PushRoutesAbsentWithoutSender(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Post(srv.URL+"/api/push/subscriptions", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
