package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kazz187/taskcrew/internal/config"
	"github.com/kazz187/taskcrew/internal/coordinator"
	"github.com/kazz187/taskcrew/internal/eventbus"
	"github.com/kazz187/taskcrew/internal/manifest"
	"github.com/kazz187/taskcrew/internal/roleapi"
	"github.com/kazz187/taskcrew/internal/task"
	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/clog"
	"github.com/kazz187/taskcrew/pkg/storage"
)

// stack is the in-process coordinator shared by serve and the local shell.
type stack struct {
	env     *config.Env
	bus     *eventbus.Bus
	coord   *coordinator.Coordinator
	service *roleapi.Service
	store   storage.Storage
}

func loadEnv() (*config.Env, error) {
	return config.LoadEnv(*envFiles...)
}

// setupLogger installs the default slog logger and returns the closer of the
// optional log file.
func setupLogger(env *config.Env, console io.Writer) io.Closer {
	w, closer := clog.Output(console, env.LogFileConfig())
	slog.SetDefault(slog.New(clog.NewHandler(w, env.Env, env.SlogLevel())))
	return closer
}

func newStack(ctx context.Context, env *config.Env) (*stack, error) {
	crew, err := config.LoadCrew(env.CrewFile)
	if err != nil {
		return nil, err
	}
	workers := worker.NewRegistry()
	if err := crew.Register(workers, &env.CapacityEnv); err != nil {
		return nil, fmt.Errorf("failed to register crew: %w", err)
	}
	for _, w := range workers.List("") {
		slog.Debug("worker registered", "agent_id", w.ID, "role", w.Role, "max_capacity", w.MaxCapacity)
	}

	bus := eventbus.New()
	coord := coordinator.New(task.NewRegistry(), workers, coordinator.WithEventBus(bus))
	s := &stack{
		env:     env,
		bus:     bus,
		coord:   coord,
		service: roleapi.NewService(coord, manifest.Default()),
	}

	if env.SnapshotEnabled || env.SnapshotRestore || env.PushEnabled() {
		s.store, err = storage.New(ctx, env.StorageConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create %s storage: %w", env.StorageEnv.Type, err)
		}
	}
	return s, nil
}
