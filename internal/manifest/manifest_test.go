package manifest

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
)

func TestDefault_OperationTables(t *testing.T) {
	m := Default()
	assert.Equal(t, []string{"create_task", "assign_task", "list_tasks", "review_task", "get_agent_status"},
		m.OperationNames(worker.RoleManager))
	assert.Equal(t, []string{"list_my_tasks", "work_on_task", "complete_task", "get_status"},
		m.OperationNames(worker.RoleEngineer))
	assert.Equal(t, []string{"list_completed_tasks", "list_my_tasks", "test_task", "submit_test_results", "get_status"},
		m.OperationNames(worker.RoleTester))
	assert.Nil(t, m.OperationNames("director"))
}

func TestManifest_Operation(t *testing.T) {
	m := Default()

	op, err := m.Operation(worker.RoleTester, "submit_test_results")
	require.NoError(t, err)
	f, ok := op.InputField("passed")
	require.True(t, ok)
	assert.Equal(t, TypeBoolean, f.Type)
	assert.True(t, f.Required)

	_, err = m.Operation(worker.RoleEngineer, "review_task")
	require.ErrorIs(t, err, ErrUnknownOperation)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	_, err = m.Operation("director", "anything")
	require.ErrorIs(t, err, ErrUnknownOperation)
}

func TestManifest_Validate(t *testing.T) {
	m := Default()
	tests := []struct {
		name    string
		role    worker.Role
		op      string
		payload map[string]any
		details []string
	}{
		{
			name: "valid create",
			role: worker.RoleManager, op: "create_task",
			payload: map[string]any{"title": "T", "description": "D", "priority": "high", "task_type": "feature"},
		},
		{
			name: "priority is optional",
			role: worker.RoleManager, op: "create_task",
			payload: map[string]any{"title": "T", "description": "D", "task_type": "bug"},
		},
		{
			name: "missing required fields",
			role: worker.RoleManager, op: "create_task",
			payload: map[string]any{"title": "T"},
			details: []string{`missing required field "description"`, `missing required field "task_type"`},
		},
		{
			name: "blank title",
			role: worker.RoleManager, op: "create_task",
			payload: map[string]any{"title": "  ", "description": "D", "task_type": "bug"},
			details: []string{`field "title" must not be empty`},
		},
		{
			name: "enum mismatch",
			role: worker.RoleManager, op: "create_task",
			payload: map[string]any{"title": "T", "description": "D", "task_type": "epic"},
			details: []string{`field "task_type"`},
		},
		{
			name: "wrong type",
			role: worker.RoleTester, op: "submit_test_results",
			payload: map[string]any{"task_id": "TASK-1", "passed": "yes"},
			details: []string{`field "passed"`},
		},
		{
			name: "unknown field",
			role: worker.RoleEngineer, op: "work_on_task",
			payload: map[string]any{"task_id": "TASK-1", "force": true},
			details: []string{`unknown field "force"`},
		},
		{
			name: "nil payload for operation without input",
			role: worker.RoleEngineer, op: "list_my_tasks",
		},
		{
			name: "nil payload for operation with input",
			role: worker.RoleEngineer, op: "work_on_task",
			details: []string{`missing required field "task_id"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Validate(tt.role, tt.op, tt.payload)
			if len(tt.details) == 0 {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrValidation)
			var ce *cerr.Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, cerr.InvalidArgument, ce.Code)
			got := ce.DetailMessages()
			require.Len(t, got, len(tt.details))
			for i, want := range tt.details {
				assert.Contains(t, got[i], want)
			}
		})
	}
}

func TestManifest_OpenAPI(t *testing.T) {
	doc := Default().OpenAPI()
	require.NoError(t, doc.Validate(context.Background()))

	item := doc.Paths.Find("/api/agents/manager/assign_task")
	require.NotNil(t, item)
	require.NotNil(t, item.Post)
	assert.Equal(t, "manager_assign_task", item.Post.OperationID)

	body := item.Post.RequestBody.Value.Content.Get("application/json").Schema.Value
	assert.Equal(t, []string{"task_id"}, body.Required)
	assert.Contains(t, body.Properties, "agent_id")

	assert.Equal(t, 14, doc.Paths.Len())

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "/api/agents/tester/submit_test_results")
}

func TestManifest_Diff(t *testing.T) {
	m := Default()
	stored, err := m.Render()
	require.NoError(t, err)

	diff, err := m.Diff("stored.yaml", stored)
	require.NoError(t, err)
	assert.Empty(t, diff)

	old := strings.Replace(string(stored), "name: get_agent_status", "name: get_agents", 1)
	diff, err = m.Diff("stored.yaml", []byte(old))
	require.NoError(t, err)
	assert.Contains(t, diff, "--- stored.yaml")
	assert.Contains(t, diff, "+++ current")
	assert.Contains(t, diff, "-")
	assert.Contains(t, diff, "get_agent_status")
}
