package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
)

const defaultRemote = "http://localhost:3100"

var (
	app = kingpin.New("taskcrew", "Hierarchical task coordination for manager, engineer and tester workers")

	envFiles = app.Flag("env-file", "dotenv file to load before the environment").Default(".env").Strings()

	serveCmd = app.Command("serve", "Run the coordinator with its REST and RPC surfaces").Default()

	shellCmd    = app.Command("shell", "Run the plain-text command shell")
	shellRemote = shellCmd.Flag("remote", "Daemon URL; without it the shell runs an in-process coordinator").String()
	shellAs     = shellCmd.Flag("as", "Worker to act as").String()

	invokeCmd     = app.Command("invoke", "Invoke one role operation on a running daemon")
	invokeRole    = invokeCmd.Arg("role", "manager, engineer or tester").Required().Enum("manager", "engineer", "tester")
	invokeOp      = invokeCmd.Arg("operation", "Operation name, e.g. create_task").Required().String()
	invokePayload = invokeCmd.Arg("payload", "JSON object with the operation input").Default("{}").String()
	invokeRemote  = invokeCmd.Flag("remote", "Daemon URL").Default(defaultRemote).String()
	invokeAs      = invokeCmd.Flag("as", "Worker to act as").String()

	watchCmd      = app.Command("watch", "Stream task events from a running daemon")
	watchRemote   = watchCmd.Flag("remote", "Daemon URL").Default(defaultRemote).String()
	watchTypes    = watchCmd.Flag("type", "Event type to include (repeatable)").Strings()
	watchResource = watchCmd.Flag("task", "Only events of this task").String()

	manifestCmd       = app.Command("manifest", "Capability manifest tools")
	manifestPrintCmd  = manifestCmd.Command("print", "Print the capability manifest").Default()
	manifestFormat    = manifestPrintCmd.Flag("format", "Output format").Default("yaml").Enum("yaml", "json")
	manifestOpenAPI   = manifestCmd.Command("openapi", "Print the OpenAPI 3 document")
	manifestDiffCmd   = manifestCmd.Command("diff", "Diff a stored manifest against the current one")
	manifestDiffFile  = manifestDiffCmd.Arg("file", "Stored manifest (YAML)").Required().ExistingFile()
	sentinelCmd       = app.Command("sentinel", "Supervise 'serve', restarting it on crash or when the binary or crew file changes")
	sentinelCrewWatch = sentinelCmd.Flag("watch-crew", "Restart when the crew file changes").Default("true").Bool()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case serveCmd.FullCommand():
		err = runServe(ctx)
	case shellCmd.FullCommand():
		err = runShell(ctx)
	case invokeCmd.FullCommand():
		err = runInvoke(ctx)
	case watchCmd.FullCommand():
		err = runWatch(ctx)
	case manifestPrintCmd.FullCommand():
		err = runManifestPrint()
	case manifestOpenAPI.FullCommand():
		err = runManifestOpenAPI()
	case manifestDiffCmd.FullCommand():
		err = runManifestDiff()
	case sentinelCmd.FullCommand():
		err = runSentinel(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskcrew: %v\n", err)
		os.Exit(1)
	}
}
