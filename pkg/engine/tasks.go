package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pcuzner/runner-wrapper/pkg/template"
)

const killGrace = 2 * time.Second

type outcome string

const (
	outcomeOK      outcome = "ok"
	outcomeFailed  outcome = "failed"
	outcomeSkipped outcome = "skipped"
)

type taskResult struct {
	outcome outcome
	changed bool
	res     map[string]any
	start   time.Time
	end     time.Time
}

func failure(msg string, res map[string]any) taskResult {
	if res == nil {
		res = map[string]any{}
	}

	res["failed"] = true
	res["msg"] = msg

	return taskResult{outcome: outcomeFailed, res: res}
}

// runTask executes task for one host. facts is the host's variable set and may be updated.
func (e *Engine) runTask(ctx context.Context, task Task, host string, facts map[string]any) taskResult {
	start := time.Now()
	result := e.dispatch(ctx, task, host, facts)
	result.start = start
	result.end = time.Now()

	if result.res == nil {
		result.res = map[string]any{}
	}

	result.res["changed"] = result.changed

	if task.Register != "" && result.outcome != outcomeSkipped {
		facts[task.Register] = result.res
	}

	return result
}

func (e *Engine) dispatch(ctx context.Context, task Task, host string, facts map[string]any) taskResult {
	data := template.HostContext(host, facts)

	if task.When != "" {
		run, err := evalWhen(task.When, data, facts)
		if err != nil {
			return failure(fmt.Sprintf("the conditional check '%s' failed: %v", task.When, err), nil)
		}

		if !run {
			return taskResult{
				outcome: outcomeSkipped,
				res: map[string]any{
					"skipped":     true,
					"skip_reason": "Conditional result was False",
				},
			}
		}
	}

	switch task.Module() {
	case ModuleShell, ModuleCommand:
		cmdline := task.Shell
		if cmdline == "" {
			cmdline = task.Command
		}

		rendered, err := template.RenderString(cmdline, data)
		if err != nil {
			return failure(err.Error(), nil)
		}

		return e.runCommand(ctx, task, host, rendered)
	case ModuleDebug:
		if task.Debug.Var != "" {
			value, ok := lookup(facts, task.Debug.Var)
			if !ok {
				value = "VARIABLE IS NOT DEFINED!"
			}

			return taskResult{outcome: outcomeOK, res: map[string]any{task.Debug.Var: value}}
		}

		msg, err := template.RenderString(task.Debug.Msg, data)
		if err != nil {
			return failure(err.Error(), nil)
		}

		if msg == "" {
			msg = "Hello world!"
		}

		return taskResult{outcome: outcomeOK, res: map[string]any{"msg": msg}}
	default:
		rendered, err := template.RenderValue(task.SetFact, data)
		if err != nil {
			return failure(err.Error(), nil)
		}

		newFacts, _ := rendered.(map[string]any)
		for k, v := range newFacts {
			facts[k] = v
		}

		return taskResult{outcome: outcomeOK, res: map[string]any{"ansible_facts": newFacts}}
	}
}

func (e *Engine) runCommand(ctx context.Context, task Task, host, cmdline string) taskResult {
	timeout := e.cfg.TaskTimeout
	if task.Timeout > 0 {
		timeout = time.Duration(task.Timeout) * time.Second
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, e.shell, "-c", cmdline)
	cmd.Dir = e.cfg.ProjectDir()
	cmd.Env = append(os.Environ(), "INVENTORY_HOSTNAME="+host)
	// children of the shell may outlive it and hold the output pipes open
	cmd.WaitDelay = killGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	end := time.Now()

	rc := 0
	if err != nil {
		rc = -1

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			rc = exitErr.ExitCode()
		}
	}

	out := strings.TrimRight(stdout.String(), "\n")
	errOut := strings.TrimRight(stderr.String(), "\n")

	res := map[string]any{
		"cmd":          cmdline,
		"rc":           rc,
		"stdout":       out,
		"stderr":       errOut,
		"stdout_lines": splitLines(out),
		"stderr_lines": splitLines(errOut),
		"start":        start.Format(time.RFC3339Nano),
		"end":          end.Format(time.RFC3339Nano),
		"delta":        end.Sub(start).String(),
	}

	switch {
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result := failure(fmt.Sprintf("command timed out after %s", timeout), res)
		result.changed = true

		return result
	case err != nil:
		msg := "non-zero return code"
		if rc == -1 {
			msg = err.Error()
		}

		result := failure(msg, res)
		result.changed = true

		return result
	}

	return taskResult{outcome: outcomeOK, changed: true, res: res}
}

// evalWhen supports a template expression, or a variable path optionally prefixed with "not".
func evalWhen(expr string, data map[string]any, facts map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)

	negate := false
	if strings.HasPrefix(expr, "not ") {
		negate = true
		expr = strings.TrimSpace(strings.TrimPrefix(expr, "not "))
	}

	var value any

	if template.NeedsTemplating(expr) {
		rendered, err := template.Render(expr, data)
		if err != nil {
			return false, err
		}

		value = rendered
	} else {
		value, _ = lookup(facts, expr)
	}

	return truthy(value) != negate, nil
}

// lookup resolves a dotted path through nested maps.
func lookup(vars map[string]any, path string) (any, bool) {
	var current any = vars

	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "", "false", "no", "0", "<no value>":
			return false
		}

		return true
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	default:
		return true
	}
}

func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}

	return strings.Split(s, "\n")
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return string(b)
}
