package command

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"

	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
)

var ErrSyntax = errors.New("command syntax error")

type Kind int

const (
	KindInvoke Kind = iota
	KindAs
	KindHelp
	KindExit
)

// Command is one parsed line. For KindInvoke an empty Role means the role of
// the acting worker, which is how "my tasks" and "status" work for both
// engineers and testers.
type Command struct {
	Kind      Kind
	Role      worker.Role
	Operation string
	Payload   map[string]any
	AgentID   string
}

type rule struct {
	words []string
	usage string
	build func(args []string) (Command, error)
}

var rules = []rule{
	{
		words: []string{"create", "task"},
		usage: `create task "<title>" "<description>" [priority] [type]`,
		build: func(args []string) (Command, error) {
			if len(args) < 2 || len(args) > 4 {
				return Command{}, errArgs(`create task "<title>" "<description>" [priority] [type]`)
			}
			p := map[string]any{"title": args[0], "description": args[1], "task_type": "feature"}
			if len(args) > 2 {
				p["priority"] = strings.ToLower(args[2])
			}
			if len(args) > 3 {
				p["task_type"] = strings.ToLower(args[3])
			}
			return invoke(worker.RoleManager, "create_task", p), nil
		},
	},
	{
		words: []string{"assign", "task"},
		usage: "assign task <task_id> [agent_id]",
		build: func(args []string) (Command, error) {
			if len(args) < 1 || len(args) > 2 {
				return Command{}, errArgs("assign task <task_id> [agent_id]")
			}
			p := map[string]any{"task_id": args[0]}
			if len(args) == 2 {
				p["agent_id"] = args[1]
			}
			return invoke(worker.RoleManager, "assign_task", p), nil
		},
	},
	{
		words: []string{"list", "tasks"},
		usage: "list tasks [status]",
		build: func(args []string) (Command, error) {
			if len(args) > 1 {
				return Command{}, errArgs("list tasks [status]")
			}
			p := map[string]any{}
			if len(args) == 1 {
				p["status"] = strings.ToUpper(args[0])
			}
			return invoke(worker.RoleManager, "list_tasks", p), nil
		},
	},
	{
		words: []string{"review", "task"},
		usage: `review task <task_id> approve|reject ["comment"]`,
		build: func(args []string) (Command, error) {
			if len(args) < 2 || len(args) > 3 {
				return Command{}, errArgs(`review task <task_id> approve|reject ["comment"]`)
			}
			var approve bool
			switch strings.ToLower(args[1]) {
			case "approve", "approved", "yes":
				approve = true
			case "reject", "rejected", "no":
			default:
				return Command{}, cerr.NewError(cerr.InvalidArgument,
					fmt.Sprintf("expected approve or reject, got %q", args[1]), ErrSyntax)
			}
			p := map[string]any{"task_id": args[0], "approve": approve}
			if len(args) == 3 {
				p["comment"] = args[2]
			}
			return invoke(worker.RoleManager, "review_task", p), nil
		},
	},
	{
		words: []string{"agent", "status"},
		usage: "agent status [role]",
		build: func(args []string) (Command, error) {
			if len(args) > 1 {
				return Command{}, errArgs("agent status [role]")
			}
			p := map[string]any{}
			if len(args) == 1 {
				p["role"] = strings.ToLower(args[0])
			}
			return invoke(worker.RoleManager, "get_agent_status", p), nil
		},
	},
	{
		words: []string{"my", "tasks"},
		usage: "my tasks",
		build: noArgs("", "list_my_tasks"),
	},
	{
		words: []string{"work", "on"},
		usage: "work on <task_id>",
		build: taskOnly(worker.RoleEngineer, "work_on_task", "work on <task_id>"),
	},
	{
		words: []string{"complete", "task"},
		usage: `complete task <task_id> ["comment"]`,
		build: func(args []string) (Command, error) {
			if len(args) < 1 || len(args) > 2 {
				return Command{}, errArgs(`complete task <task_id> ["comment"]`)
			}
			p := map[string]any{"task_id": args[0]}
			if len(args) == 2 {
				p["comment"] = args[1]
			}
			return invoke(worker.RoleEngineer, "complete_task", p), nil
		},
	},
	{
		words: []string{"completed", "tasks"},
		usage: "completed tasks",
		build: noArgs(worker.RoleTester, "list_completed_tasks"),
	},
	{
		words: []string{"test", "task"},
		usage: "test task <task_id>",
		build: taskOnly(worker.RoleTester, "test_task", "test task <task_id>"),
	},
	{
		words: []string{"submit", "test", "results"},
		usage: `submit test results <task_id> [pass|fail] ["notes"]`,
		build: func(args []string) (Command, error) {
			if len(args) < 1 || len(args) > 3 {
				return Command{}, errArgs(`submit test results <task_id> [pass|fail] ["notes"]`)
			}
			p := map[string]any{"task_id": args[0], "passed": true}
			rest := args[1:]
			if len(rest) > 0 {
				switch strings.ToLower(rest[0]) {
				case "fail", "failed":
					p["passed"] = false
					rest = rest[1:]
				case "pass", "passed":
					rest = rest[1:]
				}
			}
			if len(rest) > 1 {
				return Command{}, errArgs(`submit test results <task_id> [pass|fail] ["notes"]`)
			}
			if len(rest) == 1 {
				p["notes"] = rest[0]
			}
			return invoke(worker.RoleTester, "submit_test_results", p), nil
		},
	},
	{
		words: []string{"status"},
		usage: "status",
		build: noArgs("", "get_status"),
	},
	{
		words: []string{"as"},
		usage: "as <agent_id>",
		build: func(args []string) (Command, error) {
			if len(args) != 1 {
				return Command{}, errArgs("as <agent_id>")
			}
			return Command{Kind: KindAs, AgentID: args[0]}, nil
		},
	},
	{
		words: []string{"help"},
		usage: "help",
		build: func([]string) (Command, error) { return Command{Kind: KindHelp}, nil },
	},
	{
		words: []string{"exit"},
		usage: "exit",
		build: func([]string) (Command, error) { return Command{Kind: KindExit}, nil },
	},
}

func invoke(role worker.Role, op string, p map[string]any) Command {
	return Command{Kind: KindInvoke, Role: role, Operation: op, Payload: p}
}

func noArgs(role worker.Role, op string) func([]string) (Command, error) {
	return func(args []string) (Command, error) {
		if len(args) > 0 {
			return Command{}, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("%s takes no arguments", op), ErrSyntax)
		}
		return invoke(role, op, map[string]any{}), nil
	}
}

func taskOnly(role worker.Role, op, usage string) func([]string) (Command, error) {
	return func(args []string) (Command, error) {
		if len(args) != 1 {
			return Command{}, errArgs(usage)
		}
		return invoke(role, op, map[string]any{"task_id": args[0]}), nil
	}
}

func errArgs(usage string) error {
	return cerr.NewError(cerr.InvalidArgument, "usage: "+usage, ErrSyntax)
}

// Parse splits line with shell quoting rules and maps it to an operation.
// Keywords are case-insensitive; arguments are kept as typed. Variables are
// not expanded.
func Parse(line string) (Command, error) {
	fields, err := splitWords(line)
	if err != nil {
		return Command{}, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("cannot parse %q: %v", line, err), ErrSyntax)
	}
	if len(fields) == 0 {
		return Command{}, cerr.NewError(cerr.InvalidArgument, "empty command", ErrSyntax)
	}
	if w := strings.ToLower(fields[0]); w == "quit" || w == "q" {
		return Command{Kind: KindExit}, nil
	}
	for _, r := range rules {
		if len(fields) < len(r.words) || !keywordsMatch(fields[:len(r.words)], r.words) {
			continue
		}
		return r.build(fields[len(r.words):])
	}
	return Command{}, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown command %q, try help", fields[0]), ErrSyntax)
}

// splitWords applies shell quoting and quote removal to line. Expansions
// such as $x, ${x}, $(cmd) and $((n)) are kept as the text that was typed.
func splitWords(line string) ([]string, error) {
	var words []*syntax.Word
	for w, err := range syntax.NewParser().WordsSeq(strings.NewReader(line)) {
		if err != nil {
			return nil, err
		}
		w.Parts = literalExpansions(line, w.Parts)
		words = append(words, w)
	}
	cfg := &expand.Config{Env: expand.FuncEnviron(func(string) string { return "" })}
	return expand.Fields(cfg, words...)
}

func literalExpansions(src string, parts []syntax.WordPart) []syntax.WordPart {
	for i, part := range parts {
		switch p := part.(type) {
		case *syntax.ParamExp, *syntax.CmdSubst, *syntax.ArithmExp, *syntax.ProcSubst:
			parts[i] = &syntax.Lit{
				ValuePos: p.Pos(),
				ValueEnd: p.End(),
				Value:    src[p.Pos().Offset():p.End().Offset()],
			}
		case *syntax.DblQuoted:
			p.Parts = literalExpansions(src, p.Parts)
		}
	}
	return parts
}

func keywordsMatch(fields, words []string) bool {
	for i, w := range words {
		if !strings.EqualFold(fields[i], w) {
			return false
		}
	}
	return true
}

// Usage lists the grammar, one command per line.
func Usage() []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.usage)
	}
	return out
}
