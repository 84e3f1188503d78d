package roleapi

import (
	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
)

type TaskSummary struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	TaskType    task.Type     `json:"task_type"`
	Priority    task.Priority `json:"priority"`
	Status      task.Status   `json:"status"`
	AssignedTo  string        `json:"assigned_to,omitempty"`
}

func summarize(tasks []*task.Task) []TaskSummary {
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskSummary{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			TaskType:    t.Type,
			Priority:    t.Priority,
			Status:      t.Status,
			AssignedTo:  t.AssignedTo,
		})
	}
	return out
}

type AgentStatus struct {
	AgentID        string      `json:"agent_id"`
	Role           worker.Role `json:"role"`
	CurrentTasks   int         `json:"current_tasks"`
	MaxCapacity    int         `json:"max_capacity"`
	LoadPercentage float64     `json:"load_percentage"`
}

func agentStatus(w *worker.Worker) AgentStatus {
	return AgentStatus{
		AgentID:        w.ID,
		Role:           w.Role,
		CurrentTasks:   w.Load(),
		MaxCapacity:    w.MaxCapacity,
		LoadPercentage: w.LoadPercentage(),
	}
}

type TaskStatusOutput struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

type AssignTaskOutput struct {
	TaskID     string      `json:"task_id"`
	Status     task.Status `json:"status"`
	AssignedTo string      `json:"assigned_to"`
}

type ReviewTaskOutput struct {
	TaskID        string      `json:"task_id"`
	NewTaskStatus task.Status `json:"new_task_status"`
	AssignedTo    string      `json:"assigned_to,omitempty"`
}

type CompleteTaskOutput struct {
	TaskID           string      `json:"task_id"`
	Status           task.Status `json:"status"`
	AvailableTesters []string    `json:"available_testers"`
}

type TaskListOutput struct {
	Tasks []TaskSummary `json:"tasks"`
}

type AgentStatusOutput struct {
	Agents []AgentStatus `json:"agents"`
}

type EngineerStatusOutput struct {
	AgentStatus
	AssignedTasks []TaskSummary `json:"assigned_tasks"`
}

type TesterStatusOutput struct {
	AgentStatus
	TestingTasks []TaskSummary `json:"testing_tasks"`
}
