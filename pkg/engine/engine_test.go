package engine_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pcuzner/runner-wrapper/pkg/artifacts"
	"github.com/pcuzner/runner-wrapper/pkg/engine"
	"github.com/pcuzner/runner-wrapper/pkg/models"
	"github.com/pcuzner/runner-wrapper/pkg/otelhelper"
	"github.com/pcuzner/runner-wrapper/pkg/runner"
	"github.com/pcuzner/runner-wrapper/pkg/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePlaybook(t *testing.T, content string) engine.Config {
	t.Helper()

	dir := t.TempDir()
	project := filepath.Join(dir, "project")
	require.NoError(t, os.MkdirAll(project, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(project, "test.yml"), []byte(content), 0o600))

	return engine.Config{
		PrivateDataDir: dir,
		Playbook:       "test.yml",
		Ident:          "job-1",
		TaskTimeout:    10 * time.Second,
	}
}

type collector struct {
	mu     sync.Mutex
	events []models.Event
}

func (c *collector) callback(_ context.Context, event models.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

// kinds returns the event kinds in delivery order, taken from the first observation.
func (c *collector) kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var kinds []string
	for _, event := range c.events {
		if !event.IsFull() {
			kinds = append(kinds, event.Kind())
		}
	}

	return kinds
}

// merged pairs observations by uuid and returns the merged events in order.
func (c *collector) merged() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	partials := map[string]models.Event{}

	var out []models.Event

	for _, event := range c.events {
		if !event.IsFull() {
			partials[event.UUID()] = event

			continue
		}

		out = append(out, event.Merge(partials[event.UUID()]))
	}

	return out
}

func run(t *testing.T, cfg engine.Config, opts ...engine.Option) (*engine.Engine, *collector) {
	t.Helper()

	e := engine.New(cfg, discard(), opts...)
	c := &collector{}
	e.RegisterEventCallback(c.callback)

	require.NoError(t, e.Prepare(context.Background()))
	assert.Equal(t, models.JobStatusStarting, e.Status())
	require.NoError(t, e.Run(context.Background()))

	return e, c
}

func TestParsePlaybook(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, p engine.Playbook)
	}{
		{
			name: "hosts as string",
			yaml: `
- name: Deploy
  hosts: web1, web2
  vars:
    pkg: nginx
  tasks:
    - name: Install
      shell: echo install
`,
			check: func(t *testing.T, p engine.Playbook) {
				t.Helper()
				require.Len(t, p, 1)
				assert.Equal(t, engine.HostList{"web1", "web2"}, p[0].Hosts)
				assert.Equal(t, "nginx", p[0].Vars["pkg"])
				assert.Equal(t, engine.ModuleShell, p[0].Tasks[0].Module())
			},
		},
		{
			name: "hosts as list",
			yaml: `
- hosts: [a, b]
  tasks:
    - debug: {msg: hi}
    - set_fact: {x: 1}
    - command: "true"
`,
			check: func(t *testing.T, p engine.Playbook) {
				t.Helper()
				assert.Equal(t, engine.HostList{"a", "b"}, p[0].Hosts)
				assert.Equal(t, engine.ModuleDebug, p[0].Tasks[0].Module())
				assert.Equal(t, "debug", p[0].Tasks[0].DisplayName())
				assert.Equal(t, engine.ModuleSetFact, p[0].Tasks[1].Module())
				assert.Equal(t, engine.ModuleCommand, p[0].Tasks[2].Module())
			},
		},
		{name: "empty document", yaml: "", wantErr: true},
		{name: "not a list", yaml: "hosts: a\n", wantErr: true},
		{name: "missing tasks", yaml: "- hosts: a\n", wantErr: true},
		{name: "missing hosts", yaml: "- tasks: []\n", wantErr: true},
		{name: "task without module", yaml: "- hosts: a\n  tasks:\n    - name: nothing\n", wantErr: true},
		{name: "task with two modules", yaml: "- hosts: a\n  tasks:\n    - shell: ls\n      command: ls\n", wantErr: true},
		{name: "unknown task key", yaml: "- hosts: a\n  tasks:\n    - shell: ls\n      loop: [1]\n", wantErr: true},
		{name: "bad timeout", yaml: "- hosts: a\n  tasks:\n    - shell: ls\n      timeout: 0\n", wantErr: true},
		{name: "broken yaml", yaml: "- hosts: [a\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := engine.ParsePlaybook([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, engine.ErrInvalidPlaybook)

				return
			}

			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestEngine_PrepareFailures(t *testing.T) {
	t.Run("missing playbook", func(t *testing.T) {
		cfg := writePlaybook(t, "- hosts: a\n  tasks: []\n")
		cfg.Playbook = "absent.yml"

		e := engine.New(cfg, discard())
		require.Error(t, e.Prepare(context.Background()))
		assert.Equal(t, models.JobStatusFailed, e.Status())
		assert.Equal(t, engine.RCInternal, e.RC())
	})

	t.Run("invalid playbook", func(t *testing.T) {
		e := engine.New(writePlaybook(t, "- hosts: a\n"), discard())
		err := e.Prepare(context.Background())
		require.ErrorIs(t, err, engine.ErrInvalidPlaybook)
		assert.Equal(t, models.JobStatusFailed, e.Status())
	})

	t.Run("run without prepare", func(t *testing.T) {
		e := engine.New(writePlaybook(t, "- hosts: a\n  tasks: []\n"), discard())
		require.ErrorIs(t, e.Run(context.Background()), engine.ErrNotPrepared)
		assert.Equal(t, models.JobStatusUnstarted, e.Status())
	})

	t.Run("prepare twice", func(t *testing.T) {
		e := engine.New(writePlaybook(t, "- hosts: a\n  tasks: []\n"), discard())
		require.NoError(t, e.Prepare(context.Background()))
		require.Error(t, e.Prepare(context.Background()))
		assert.Equal(t, models.JobStatusStarting, e.Status())
	})
}

func TestEngine_SuccessfulRun(t *testing.T) {
	cfg := writePlaybook(t, `
- name: Greet
  hosts: localhost
  vars:
    greeting: hello
  tasks:
    - name: Say hello
      shell: echo "{{ .vars.greeting }} from $INVENTORY_HOSTNAME"
      register: out
    - name: Remember
      set_fact:
        who: "{{ .inventory_hostname }}"
    - name: Show
      debug:
        var: who
`)

	e, c := run(t, cfg)

	assert.Equal(t, models.JobStatusSuccessful, e.Status())
	assert.Equal(t, engine.RCSuccessful, e.RC())

	assert.Equal(t, []string{
		models.EventPlaybookOnStart,
		models.EventPlaybookOnPlayStart,
		models.EventPlaybookOnTaskStart,
		models.EventRunnerOnOK,
		models.EventPlaybookOnTaskStart,
		models.EventRunnerOnOK,
		models.EventPlaybookOnTaskStart,
		models.EventRunnerOnOK,
		models.EventPlaybookOnStats,
	}, c.kinds())

	events := c.merged()
	require.Len(t, events, 9)

	for i, event := range events {
		counter, ok := event.Counter()
		require.True(t, ok)
		assert.Equal(t, int64(i+1), counter)
		assert.Equal(t, "job-1", event[models.FieldRunnerIdent])
	}

	assert.True(t, strings.HasPrefix(events[1].Stdout(), "\r\nPLAY [Greet] "))
	assert.True(t, strings.HasPrefix(events[2].Stdout(), "\r\nTASK [Say hello] "))
	assert.True(t, strings.HasPrefix(events[8].Stdout(), "\r\nPLAY RECAP "))

	shell := events[3]
	assert.Equal(t, "changed: [localhost]", shell.Stdout())
	assert.Equal(t, "Say hello", shell.Data().Task())
	assert.Equal(t, "localhost", shell.Data().Host())
	assert.Equal(t, events[2].Data().TaskUUID(), shell.Data().TaskUUID())
	assert.Equal(t, "hello from localhost", shell.Data().Result()["stdout"])
	assert.Equal(t, 0, shell.Data().Result()["rc"])

	show := events[7]
	assert.Equal(t, "localhost", show.Data().Result()["who"])
	assert.Contains(t, show.Stdout(), `"who":"localhost"`)
}

func TestEngine_BannersDriveTracker(t *testing.T) {
	cfg := writePlaybook(t, `
- name: One
  hosts: h1
  tasks:
    - name: First
      debug: {msg: a}
    - name: Second
      debug: {msg: b}
`)

	_, c := run(t, cfg)

	tr := tracker.New()
	for _, event := range c.merged() {
		_, err := tr.Observe(event.Stdout())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{tracker.Started, "First", "Second", tracker.Ended}, tr.Entries())
}

func TestEngine_HostFailure(t *testing.T) {
	cfg := writePlaybook(t, `
- hosts: good, bad
  tasks:
    - name: Maybe fail
      shell: test "$INVENTORY_HOSTNAME" = good || exit 3
    - name: After
      debug: {msg: still here}
`)

	e, c := run(t, cfg)

	assert.Equal(t, models.JobStatusFailed, e.Status())
	assert.Equal(t, engine.RCHostFailures, e.RC())

	var failed, after []models.Event

	for _, event := range c.merged() {
		switch {
		case event.Kind() == models.EventRunnerOnFailed:
			failed = append(failed, event)
		case event.Kind() == models.EventRunnerOnOK && event.Data().Task() == "After":
			after = append(after, event)
		}
	}

	require.Len(t, failed, 1)
	assert.Equal(t, "bad", failed[0].Data().Host())
	assert.Equal(t, 3, failed[0].Data().Result()["rc"])
	assert.Equal(t, "non-zero return code", failed[0].Data().Result()["msg"])
	assert.True(t, strings.HasPrefix(failed[0].Stdout(), "fatal: [bad]: FAILED! => "))

	require.Len(t, after, 1)
	assert.Equal(t, "good", after[0].Data().Host())
}

func TestEngine_WithShell(t *testing.T) {
	playbook := `
- hosts: h1
  tasks:
    - name: Which shell
      command: echo "$0"
`

	t.Run("custom interpreter", func(t *testing.T) {
		e, c := run(t, writePlaybook(t, playbook), engine.WithShell("/bin/sh"))

		assert.Equal(t, models.JobStatusSuccessful, e.Status())

		events := c.merged()
		require.Len(t, events, 5)
		assert.Equal(t, "/bin/sh", events[3].Data().Result()["stdout"])
	})

	t.Run("missing interpreter fails the host", func(t *testing.T) {
		e, c := run(t, writePlaybook(t, playbook), engine.WithShell(filepath.Join(t.TempDir(), "no-such-shell")))

		assert.Equal(t, models.JobStatusFailed, e.Status())
		assert.Equal(t, engine.RCHostFailures, e.RC())

		events := c.merged()
		require.Len(t, events, 5)
		assert.Equal(t, models.EventRunnerOnFailed, events[3].Kind())
		assert.Equal(t, -1, events[3].Data().Result()["rc"])
	})
}

func TestEngine_IgnoreErrors(t *testing.T) {
	cfg := writePlaybook(t, `
- hosts: h1
  tasks:
    - shell: exit 1
      ignore_errors: true
    - debug: {msg: next}
`)

	e, c := run(t, cfg)

	assert.Equal(t, models.JobStatusSuccessful, e.Status())
	assert.Equal(t, engine.RCSuccessful, e.RC())

	events := c.merged()
	var failed models.Event
	for _, event := range events {
		if event.Kind() == models.EventRunnerOnFailed {
			failed = event
		}
	}

	require.NotNil(t, failed)
	assert.Contains(t, failed.Stdout(), "...ignoring")
	assert.Equal(t, models.EventRunnerOnOK, events[len(events)-2].Kind())
}

func TestEngine_When(t *testing.T) {
	cfg := writePlaybook(t, `
- hosts: h1
  vars:
    enabled: false
  tasks:
    - name: Skipped
      debug: {msg: nope}
      when: enabled
    - name: Negated
      debug: {msg: "yes"}
      when: not enabled
    - name: Probe
      shell: exit 0
      register: probe
    - name: Registered
      debug: {msg: probed}
      when: "{{ eq .vars.probe.rc 0 }}"
`)

	_, c := run(t, cfg)

	byTask := map[string]string{}
	for _, event := range c.merged() {
		if event.IsTaskCompletion() {
			byTask[event.Data().Task()] = event.Kind()
		}
	}

	assert.Equal(t, models.EventRunnerOnSkipped, byTask["Skipped"])
	assert.Equal(t, models.EventRunnerOnOK, byTask["Negated"])
	assert.Equal(t, models.EventRunnerOnOK, byTask["Registered"])
}

func TestEngine_TaskTimeout(t *testing.T) {
	cfg := writePlaybook(t, `
- hosts: h1
  tasks:
    - name: Slow
      shell: sleep 5
      timeout: 1
`)

	e, c := run(t, cfg)

	assert.Equal(t, models.JobStatusFailed, e.Status())

	var slow models.Event
	for _, event := range c.merged() {
		if event.Kind() == models.EventRunnerOnFailed {
			slow = event
		}
	}

	require.NotNil(t, slow)
	assert.Equal(t, "command timed out after 1s", slow.Data().Result()["msg"])
}

func TestEngine_Cancel(t *testing.T) {
	cfg := writePlaybook(t, `
- hosts: h1
  tasks:
    - name: Long
      shell: sleep 10
    - name: Never
      debug: {msg: unreachable}
`)

	e := engine.New(cfg, discard())
	c := &collector{}
	e.RegisterEventCallback(c.callback)
	require.NoError(t, e.Prepare(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	err := e.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, models.JobStatusCanceled, e.Status())
	assert.Equal(t, engine.RCInterrupted, e.RC())
	assert.NotContains(t, c.kinds(), models.EventPlaybookOnStats)
	assert.NotContains(t, c.kinds(), models.EventRunnerOnOK)
}

func TestEngine_ThroughRunner(t *testing.T) {
	cfg := writePlaybook(t, `
- name: Facts
  hosts: h1
  tasks:
    - name: Step 1
      set_fact:
        answer: 42
`)

	e := engine.New(cfg, discard())
	store := artifacts.NewStore(cfg.ArtifactDir(), false, discard())
	r := runner.New(e, store, discard())

	handle, err := r.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, handle.Wait())

	assert.Equal(t, models.JobStatusSuccessful, r.Status())
	assert.Equal(t, 0, r.RC())

	current, err := r.CurrentTask()
	require.NoError(t, err)
	assert.Equal(t, tracker.Ended, current)

	var step models.Event
	for _, event := range r.Events() {
		if event.IsTaskCompletion() {
			step = event
		}
	}

	require.NotNil(t, step)
	assert.Equal(t, "Step 1", step.Data().Task())
	assert.Equal(t, "h1", step.Data().Host())
	facts, ok := step.Data().Result()["ansible_facts"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 42, facts["answer"])

	entries, err := os.ReadDir(store.EventsDir())
	require.NoError(t, err)
	assert.Len(t, entries, len(r.Events()))

	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), "partial")
	}

	status, err := os.ReadFile(filepath.Join(cfg.ArtifactDir(), "status"))
	require.NoError(t, err)
	assert.Equal(t, "successful", strings.TrimSpace(string(status)))
}

func TestEngine_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	cfg := writePlaybook(t, `
- name: Traced
  hosts: h1
  tasks:
    - name: Fails
      shell: exit 1
`)

	e := engine.New(cfg, discard(), engine.WithTracer(provider.Tracer("test")))
	require.NoError(t, e.Prepare(context.Background()))
	require.NoError(t, e.Run(context.Background()))

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		byName[span.Name()] = span
	}

	require.Contains(t, byName, "playbook")
	require.Contains(t, byName, "play")
	require.Contains(t, byName, "task")

	assert.Equal(t, codes.Error, byName["task"].Status().Code)
	assert.Contains(t, byName["playbook"].Attributes(), attribute.String(otelhelper.JobStatusKey, "failed"))
	assert.Contains(t, byName["playbook"].Attributes(), attribute.Int(otelhelper.ReturnCodeKey, engine.RCHostFailures))
	assert.Equal(t, byName["playbook"].SpanContext().TraceID(), byName["task"].SpanContext().TraceID())
}
