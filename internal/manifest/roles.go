package manifest

import (
	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
)

const Version = "1.0.0"

func enumOf[T ~string](values []T) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}

var (
	taskIDField = Field{Name: "task_id", Type: TypeString, Required: true, Description: "Task identifier, e.g. TASK-1a2b3c4d"}

	taskSummary = Field{Type: TypeObject, Fields: []Field{
		{Name: "id", Type: TypeString},
		{Name: "title", Type: TypeString},
		{Name: "description", Type: TypeString},
		{Name: "task_type", Type: TypeString, Enum: enumOf(task.Types)},
		{Name: "priority", Type: TypeString, Enum: enumOf(task.Priorities)},
		{Name: "status", Type: TypeString, Enum: enumOf(task.Statuses)},
		{Name: "assigned_to", Type: TypeString},
	}}

	tasksOutput = Field{Name: "tasks", Type: TypeArray, Items: &taskSummary}

	loadFields = []Field{
		{Name: "agent_id", Type: TypeString},
		{Name: "role", Type: TypeString, Enum: enumOf(worker.Roles)},
		{Name: "current_tasks", Type: TypeInteger},
		{Name: "max_capacity", Type: TypeInteger},
		{Name: "load_percentage", Type: TypeNumber},
	}

	agentStatus = Field{Type: TypeObject, Fields: loadFields}
)

func statusOutput(taskListName string) []Field {
	return append(append([]Field{}, loadFields...),
		Field{Name: taskListName, Type: TypeArray, Items: &taskSummary})
}

// Default is the manifest served by this build.
func Default() *Manifest {
	return &Manifest{
		Name:    "taskcrew",
		Version: Version,
		Roles: []Role{
			{
				Role:        worker.RoleManager,
				Description: "Creates tasks, assigns them to engineers and testers, and reviews test outcomes.",
				Operations: []Operation{
					{
						Name:        "create_task",
						Description: "Create a new task in CREATED status.",
						Input: []Field{
							{Name: "title", Type: TypeString, Required: true},
							{Name: "description", Type: TypeString, Required: true},
							{Name: "priority", Type: TypeString, Enum: enumOf(task.Priorities), Description: "Defaults to medium"},
							{Name: "task_type", Type: TypeString, Required: true, Enum: enumOf(task.Types)},
						},
						Output: []Field{
							{Name: "task_id", Type: TypeString},
							{Name: "status", Type: TypeString},
						},
					},
					{
						Name:        "assign_task",
						Description: "Assign a task. Without agent_id the least loaded worker of the required role is chosen.",
						Input: []Field{
							taskIDField,
							{Name: "agent_id", Type: TypeString, Description: "Worker to assign to; bypasses capacity"},
						},
						Output: []Field{
							{Name: "task_id", Type: TypeString},
							{Name: "status", Type: TypeString},
							{Name: "assigned_to", Type: TypeString},
						},
					},
					{
						Name:        "list_tasks",
						Description: "List tasks, optionally filtered by status or assignee.",
						Input: []Field{
							{Name: "status", Type: TypeString, Enum: enumOf(task.Statuses)},
							{Name: "assigned_to", Type: TypeString},
						},
						Output: []Field{tasksOutput},
					},
					{
						Name:        "review_task",
						Description: "Approve or reject a tested task. Approving a failed task sends it back to its engineer.",
						Input: []Field{
							taskIDField,
							{Name: "approve", Type: TypeBoolean, Required: true},
							{Name: "comment", Type: TypeString},
						},
						Output: []Field{
							{Name: "task_id", Type: TypeString},
							{Name: "new_task_status", Type: TypeString},
							{Name: "assigned_to", Type: TypeString},
						},
					},
					{
						Name:        "get_agent_status",
						Description: "Report the load of every worker.",
						Input: []Field{
							{Name: "role", Type: TypeString, Enum: enumOf(worker.Roles)},
						},
						Output: []Field{
							{Name: "agents", Type: TypeArray, Items: &agentStatus},
						},
					},
				},
			},
			{
				Role:        worker.RoleEngineer,
				Description: "Implements assigned tasks.",
				Operations: []Operation{
					{
						Name:        "list_my_tasks",
						Description: "List the tasks held by the calling engineer.",
						Output:      []Field{tasksOutput},
					},
					{
						Name:        "work_on_task",
						Description: "Start work on an assigned task.",
						Input:       []Field{taskIDField},
						Output: []Field{
							{Name: "task_id", Type: TypeString},
							{Name: "status", Type: TypeString},
						},
					},
					{
						Name:        "complete_task",
						Description: "Mark the implementation done so testers can pick it up.",
						Input: []Field{
							taskIDField,
							{Name: "comment", Type: TypeString},
						},
						Output: []Field{
							{Name: "task_id", Type: TypeString},
							{Name: "status", Type: TypeString},
							{Name: "available_testers", Type: TypeArray, Items: &Field{Type: TypeString}},
						},
					},
					{
						Name:        "get_status",
						Description: "Report the calling engineer's load and tasks.",
						Output:      statusOutput("assigned_tasks"),
					},
				},
			},
			{
				Role:        worker.RoleTester,
				Description: "Verifies completed tasks and reports results.",
				Operations: []Operation{
					{
						Name:        "list_completed_tasks",
						Description: "List tasks waiting for a tester.",
						Output:      []Field{tasksOutput},
					},
					{
						Name:        "list_my_tasks",
						Description: "List the tasks the calling tester is currently testing.",
						Output:      []Field{tasksOutput},
					},
					{
						Name:        "test_task",
						Description: "Claim a completed task and start testing it.",
						Input:       []Field{taskIDField},
						Output: []Field{
							{Name: "task_id", Type: TypeString},
							{Name: "status", Type: TypeString},
						},
					},
					{
						Name:        "submit_test_results",
						Description: "Record whether the task passed its tests.",
						Input: []Field{
							taskIDField,
							{Name: "passed", Type: TypeBoolean, Required: true},
							{Name: "notes", Type: TypeString},
						},
						Output: []Field{
							{Name: "task_id", Type: TypeString},
							{Name: "status", Type: TypeString},
						},
					},
					{
						Name:        "get_status",
						Description: "Report the calling tester's load and tasks.",
						Output:      statusOutput("testing_tasks"),
					},
				},
			},
		},
	}
}
