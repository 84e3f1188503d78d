package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskcrew/internal/coordinator"
	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
	"github.com/kazz187/taskcrew/pkg/panicerr"
	"github.com/kazz187/taskcrew/pkg/storage"
)

const (
	prefix     = "snapshots"
	latestPath = prefix + "/latest.yaml"
	version    = 1
)

// DefaultKeep is how many timestamped snapshots are retained next to
// latest.yaml.
const DefaultKeep = 10

// WorkerLoad is informational; restore derives every worker's tasks from
// the tasks' owners instead.
type WorkerLoad struct {
	ID          string      `yaml:"id"`
	Role        worker.Role `yaml:"role"`
	MaxCapacity int         `yaml:"max_capacity"`
	TaskIDs     []string    `yaml:"current_task_ids"`
}

type Document struct {
	Version int          `yaml:"version"`
	ID      string       `yaml:"id"`
	TakenAt time.Time    `yaml:"taken_at"`
	Tasks   []*task.Task `yaml:"tasks"`
	Workers []WorkerLoad `yaml:"workers"`
}

// Store writes and reads coordinator snapshots. It is a best-effort export,
// not a journal: anything that happens after the last write is lost.
type Store struct {
	storage storage.Storage
	coord   *coordinator.Coordinator
	keep    int
	now     func() time.Time
}

type Option func(*Store)

func WithKeep(n int) Option {
	return func(s *Store) {
		s.keep = n
	}
}

func NewStore(st storage.Storage, coord *coordinator.Coordinator, opts ...Option) *Store {
	s := &Store{storage: st, coord: coord, keep: DefaultKeep, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", prefix, id)
}

// Save writes the current state as latest.yaml and as a timestamped copy,
// then prunes copies beyond the retention count.
func (s *Store) Save(ctx context.Context) (*Document, error) {
	snap := s.coord.Snapshot()
	now := s.now()
	doc := &Document{
		Version: version,
		ID:      ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		TakenAt: now,
		Tasks:   snap.Tasks,
	}
	for _, w := range snap.Workers {
		doc.Workers = append(doc.Workers, WorkerLoad{ID: w.ID, Role: w.Role, MaxCapacity: w.MaxCapacity, TaskIDs: w.TaskIDs})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal snapshot: %w", err))
	}
	if err := s.storage.Write(ctx, path(doc.ID), data); err != nil {
		return nil, cerr.WrapStorageWriteError("snapshot", err)
	}
	if err := s.storage.Write(ctx, latestPath, data); err != nil {
		return nil, cerr.WrapStorageWriteError("snapshot", err)
	}
	s.prune(ctx)
	slog.DebugContext(ctx, "snapshot saved", "id", doc.ID, "tasks", len(doc.Tasks))
	return doc, nil
}

func (s *Store) prune(ctx context.Context) {
	if s.keep <= 0 {
		return
	}
	ids, err := s.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "snapshot: failed to list for pruning", "error", err)
		return
	}
	if len(ids) <= s.keep {
		return
	}
	for _, id := range ids[:len(ids)-s.keep] {
		if err := s.storage.Delete(ctx, path(id)); err != nil {
			slog.WarnContext(ctx, "snapshot: failed to prune", "id", id, "error", err)
		}
	}
}

// List returns the ids of the timestamped snapshots, oldest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	paths, err := s.storage.List(ctx, prefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("snapshots", err)
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == latestPath {
			continue
		}
		var id string
		if _, err := fmt.Sscanf(p, prefix+"/%26s.yaml", &id); err != nil {
			continue
		}
		if _, err := ulid.ParseStrict(id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Load reads latest.yaml, or the timestamped snapshot id when given.
func (s *Store) Load(ctx context.Context, id string) (*Document, error) {
	p := latestPath
	if id != "" {
		p = path(id)
	}
	data, err := s.storage.Read(ctx, p)
	if err != nil {
		return nil, cerr.WrapStorageReadError("snapshot", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal snapshot: %w", err))
	}
	if doc.Version != version {
		return nil, cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("unsupported snapshot version %d", doc.Version), nil)
	}
	return &doc, nil
}

// Restore loads the latest snapshot into the coordinator. It reports false
// when there is nothing to restore.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	doc, err := s.Load(ctx, "")
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.coord.Restore(doc.Tasks); err != nil {
		return false, cerr.NewError(cerr.FailedPrecondition, "snapshot does not match the current crew", err)
	}
	slog.InfoContext(ctx, "snapshot restored", "id", doc.ID, "taken_at", doc.TakenAt, "tasks", len(doc.Tasks))
	return true, nil
}

// Run saves on every tick and once more when ctx ends, so an orderly
// shutdown leaves the final state behind.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	save := func(ctx context.Context) error {
		_, err := s.Save(ctx)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			panicerr.Logged(context.WithoutCancel(ctx), "final snapshot", save)
			return
		case <-ticker.C:
			panicerr.Logged(ctx, "periodic snapshot", save)
		}
	}
}
