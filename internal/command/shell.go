package command

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kazz187/taskcrew/internal/roleapi"
	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
)

// Invoker runs one role operation. The in-process service and the RPC
// client both satisfy it.
type Invoker interface {
	Invoke(ctx context.Context, role worker.Role, operation string, payload map[string]any) (*roleapi.Result, error)
}

// Shell executes command lines against an Invoker on behalf of one acting
// worker at a time.
type Shell struct {
	invoker Invoker
	out     io.Writer
	agentID string
	role    worker.Role
}

func NewShell(invoker Invoker, out io.Writer) *Shell {
	return &Shell{invoker: invoker, out: out, role: worker.RoleEngineer}
}

// Actor returns the worker commands currently run as. An empty id means the
// first registered worker of the command's role.
func (s *Shell) Actor() (string, worker.Role) {
	return s.agentID, s.role
}

// Exec runs one line. It reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) (bool, error) {
	cmd, err := Parse(line)
	if err != nil {
		return false, err
	}
	switch cmd.Kind {
	case KindExit:
		return true, nil
	case KindHelp:
		s.printHelp()
		return false, nil
	case KindAs:
		return false, s.switchActor(ctx, cmd.AgentID)
	}

	role := cmd.Role
	if role == "" {
		role = s.role
	}
	if s.agentID != "" && role == s.role {
		ctx = roleapi.WithAgentID(ctx, s.agentID)
	}
	res, err := s.invoker.Invoke(ctx, role, cmd.Operation, cmd.Payload)
	if err != nil {
		return false, err
	}
	return false, s.render(res)
}

// switchActor looks the worker up through the manager surface so that it
// works the same against a remote daemon.
func (s *Shell) switchActor(ctx context.Context, agentID string) error {
	res, err := s.invoker.Invoke(ctx, worker.RoleManager, "get_agent_status", map[string]any{})
	if err != nil {
		return err
	}
	var data struct {
		Agents []roleapi.AgentStatus `json:"agents"`
	}
	if err := remarshal(res.Data, &data); err != nil {
		return err
	}
	for _, a := range data.Agents {
		if a.AgentID == agentID {
			s.agentID, s.role = a.AgentID, a.Role
			fmt.Fprintf(s.out, "now acting as %s (%s)\n", a.AgentID, a.Role)
			return nil
		}
	}
	return cerr.NewError(cerr.NotFound, fmt.Sprintf("worker %s not found", agentID), worker.ErrNotFound)
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, "commands:")
	for _, u := range Usage() {
		fmt.Fprintln(s.out, "  "+u)
	}
}

// Run reads lines from in until EOF, exit or ctx is done. Failed commands
// print their error and the loop continues.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, s.prompt())
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		exit, err := s.Exec(ctx, line)
		if err != nil {
			s.printError(err)
			continue
		}
		if exit {
			return nil
		}
	}
}

func (s *Shell) prompt() string {
	who := s.agentID
	if who == "" {
		who = string(s.role)
	}
	return promptStyle.Render("taskcrew("+who+")") + "> "
}

func (s *Shell) printError(err error) {
	ce := cerr.FromConnectError(err)
	fmt.Fprintln(s.out, errorStyle.Render(fmt.Sprintf("error [%s]: %s", ce.Code, ce.Msg)))
	for _, d := range ce.DetailMessages() {
		fmt.Fprintln(s.out, "  - "+d)
	}
	if errors.Is(err, ErrSyntax) && !strings.HasPrefix(ce.Msg, "usage:") {
		fmt.Fprintln(s.out, "  type help for the command list")
	}
}

func remarshal(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
