package main

import (
	"context"
	"os"

	"github.com/kazz187/taskcrew/pkg/sentinel"
)

// runSentinel supervises "serve" from the same binary. Capacities only change
// through a restart, so the crew file is watched next to the binary.
func runSentinel(ctx context.Context) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	closer := setupLogger(env, os.Stderr)
	defer closer.Close()

	bin, err := sentinel.Executable()
	if err != nil {
		return err
	}
	watch := []string{bin}
	if *sentinelCrewWatch {
		watch = append(watch, env.CrewFile)
	}
	args := []string{"serve"}
	for _, f := range *envFiles {
		args = append(args, "--env-file", f)
	}
	s, err := sentinel.New(sentinel.Config{
		Command: bin,
		Args:    args,
		Watch:   watch,
	})
	if err != nil {
		return err
	}
	return s.Run(ctx)
}
