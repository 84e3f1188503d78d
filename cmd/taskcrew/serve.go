package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sourcegraph/conc"

	server "github.com/kazz187/taskcrew/internal"
	"github.com/kazz187/taskcrew/internal/coordinator"
	"github.com/kazz187/taskcrew/internal/httpapi"
	"github.com/kazz187/taskcrew/internal/pushnotification"
	"github.com/kazz187/taskcrew/internal/rpc"
	"github.com/kazz187/taskcrew/internal/snapshot"
)

func runServe(ctx context.Context) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	closer := setupLogger(env, os.Stderr)
	defer closer.Close()

	st, err := newStack(ctx, env)
	if err != nil {
		return err
	}

	var snapshots *snapshot.Store
	if st.store != nil {
		snapshots = snapshot.NewStore(st.store, st.coord)
	}
	restored := false
	if env.SnapshotRestore {
		restored, err = snapshots.Restore(ctx)
		if err != nil {
			return err
		}
	}
	if env.PreloadSamples && !restored {
		ids, err := st.service.PreloadSamples(ctx)
		if err != nil {
			return err
		}
		slog.Info("sample tasks created", "task_ids", ids)
	}

	var push *pushnotification.Sender
	if env.PushEnabled() {
		push = pushnotification.NewSender(&env.PushEnv, pushnotification.NewYAMLRepository(st.store))
	}
	srv := server.NewServer(env, httpapi.NewHandler(st.service, push), rpc.NewServer(st.service, st.bus))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rebalancer := coordinator.NewRebalancer(st.coord, env.RebalanceInterval)
	if err := rebalancer.Start(ctx); err != nil {
		return err
	}
	defer rebalancer.Stop()

	var wg conc.WaitGroup
	if push != nil {
		wg.Go(func() { pushnotification.NewDispatcher(st.bus, push).Start(ctx) })
	}
	if env.SnapshotEnabled {
		wg.Go(func() { snapshots.Run(ctx, env.SnapshotInterval) })
	}

	var serveErr error
	wg.Go(func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			serveErr = err
			cancel()
		}
	})

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give active connections time to finish after stream contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	wg.Wait()
	return serveErr
}
