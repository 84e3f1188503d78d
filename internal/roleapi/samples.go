package roleapi

import (
	"context"
	"log/slog"

	"github.com/kazz187/taskcrew/internal/worker"
)

var sampleTasks = []map[string]any{
	{
		"title":       "Implement user authentication feature",
		"description": "Create a secure authentication system for user login with JWT",
		"task_type":   "feature",
		"priority":    "high",
	},
	{
		"title":       "Fix pagination bug in search results",
		"description": "The pagination links on search results page are not working correctly",
		"task_type":   "bug",
		"priority":    "medium",
	},
	{
		"title":       "Add product sorting functionality",
		"description": "Implement sorting of products by price, rating, and newest",
		"task_type":   "feature",
		"priority":    "low",
	},
}

// PreloadSamples creates the demonstration tasks through the manager surface
// and returns their ids.
func (s *Service) PreloadSamples(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(sampleTasks))
	for _, in := range sampleTasks {
		res, err := s.Invoke(ctx, worker.RoleManager, "create_task", in)
		if err != nil {
			return ids, err
		}
		ids = append(ids, res.Data.(TaskStatusOutput).TaskID)
	}
	slog.InfoContext(ctx, "sample tasks preloaded", "count", len(ids))
	return ids, nil
}
