package command

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kazz187/taskcrew/internal/roleapi"
)

var (
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func (s *Shell) render(res *roleapi.Result) error {
	fmt.Fprintln(s.out, messageStyle.Render(res.Message))
	if res.Data == nil {
		return nil
	}
	var data map[string]any
	if err := remarshal(res.Data, &data); err != nil {
		return err
	}

	var tasks any
	hasTasks := false
	for _, key := range []string{"tasks", "assigned_tasks", "testing_tasks"} {
		if list, found := data[key]; found {
			delete(data, key)
			tasks, hasTasks = list, true
		}
	}
	if list, found := data["agents"]; found {
		delete(data, "agents")
		s.printAgents(list)
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(s.out, "  %s: %s\n", k, formatValue(data[k]))
	}
	if hasTasks {
		s.printTasks(tasks)
	}
	return nil
}

func (s *Shell) printTasks(list any) {
	items, _ := list.([]any)
	if len(items) == 0 {
		fmt.Fprintln(s.out, "  (no tasks)")
		return
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		m, _ := it.(map[string]any)
		rows = append(rows, []string{
			formatValue(m["id"]),
			formatValue(m["title"]),
			formatValue(m["task_type"]),
			formatValue(m["priority"]),
			formatValue(m["status"]),
			formatValue(m["assigned_to"]),
		})
	}
	fmt.Fprintln(s.out, newTable("ID", "TITLE", "TYPE", "PRIORITY", "STATUS", "ASSIGNED TO").Rows(rows...).Render())
}

func (s *Shell) printAgents(list any) {
	items, _ := list.([]any)
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		m, _ := it.(map[string]any)
		load, _ := m["load_percentage"].(float64)
		rows = append(rows, []string{
			formatValue(m["agent_id"]),
			formatValue(m["role"]),
			fmt.Sprintf("%s/%s", formatValue(m["current_tasks"]), formatValue(m["max_capacity"])),
			fmt.Sprintf("%.0f%%", load),
		})
	}
	fmt.Fprintln(s.out, newTable("AGENT", "ROLE", "TASKS", "LOAD").Rows(rows...).Render())
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case string:
		if v == "" {
			return "-"
		}
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%.1f", v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			parts = append(parts, formatValue(e))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}
