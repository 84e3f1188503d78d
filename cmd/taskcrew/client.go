package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kazz187/taskcrew/internal/command"
	"github.com/kazz187/taskcrew/internal/eventbus"
	"github.com/kazz187/taskcrew/internal/roleapi"
	"github.com/kazz187/taskcrew/internal/rpc"
	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
)

func newClient(remote string) *rpc.Client {
	return rpc.NewClient(http.DefaultClient, remote)
}

func runShell(ctx context.Context) error {
	var invoker command.Invoker
	if *shellRemote != "" {
		invoker = newClient(*shellRemote)
	} else {
		env, err := loadEnv()
		if err != nil {
			return err
		}
		// keep coordinator logs off the interactive terminal unless a file is set
		env.LogLevel = "warn"
		closer := setupLogger(env, os.Stderr)
		defer closer.Close()
		st, err := newStack(ctx, env)
		if err != nil {
			return err
		}
		if env.PreloadSamples {
			if _, err := st.service.PreloadSamples(ctx); err != nil {
				return err
			}
		}
		invoker = st.service
	}

	sh := command.NewShell(invoker, os.Stdout)
	if *shellAs != "" {
		if _, err := sh.Exec(ctx, "as "+*shellAs); err != nil {
			return err
		}
	}
	return sh.Run(ctx, os.Stdin)
}

func runInvoke(ctx context.Context) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(*invokePayload), &payload); err != nil {
		return fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if *invokeAs != "" {
		ctx = roleapi.WithAgentID(ctx, *invokeAs)
	}
	res, err := newClient(*invokeRemote).Invoke(ctx, worker.Role(*invokeRole), *invokeOp, payload)
	if err != nil {
		ce := cerr.FromConnectError(err)
		msg := fmt.Sprintf("[%s] %s", ce.Code, ce.Msg)
		if details := ce.DetailMessages(); len(details) > 0 {
			msg += ": " + strings.Join(details, "; ")
		}
		return fmt.Errorf("%s", msg)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runWatch(ctx context.Context) error {
	filter := rpc.WatchEventsRequest{ResourceID: *watchResource}
	for _, t := range *watchTypes {
		filter.Types = append(filter.Types, eventbus.Type(t))
	}
	return newClient(*watchRemote).Watch(ctx, filter, func(e *eventbus.Event) error {
		fmt.Printf("%s  %-20s %-14s %s %s\n",
			e.CreatedAt.Local().Format(time.TimeOnly), e.Type, e.ResourceID, e.Message, formatMetadata(e.Metadata))
		return nil
	})
}

func formatMetadata(md map[string]string) string {
	keys := []string{"status", "from", "to", "assigned_to", "actor"}
	var parts []string
	for _, k := range keys {
		if v, ok := md[k]; ok {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, " ")
}
