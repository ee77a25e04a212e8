package activities

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatflow/orchestrator/internal/tools"
)

// Command states reported by bash_command_check.
const (
	CommandRunning   = "running"
	CommandCompleted = "completed"
	CommandFailed    = "failed"
	CommandTimedOut  = "timed_out"
	CommandUnknown   = "unknown"
)

const maxCommandOutput = 64 << 10

type commandState struct {
	Status    string
	ExitCode  int
	Stdout    string
	Stderr    string
	StartedAt time.Time
	EndedAt   time.Time
}

// CommandTracker remembers bash_run commands by id for bash_command_check.
// State is per worker process.
type CommandTracker struct {
	mu       sync.Mutex
	commands map[string]*commandState
	order    []string
	limit    int
}

func NewCommandTracker() *CommandTracker {
	return &CommandTracker{commands: make(map[string]*commandState), limit: 1000}
}

func (t *CommandTracker) start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.commands[id]; !ok {
		t.order = append(t.order, id)
	}
	t.commands[id] = &commandState{Status: CommandRunning, StartedAt: time.Now()}
	for len(t.order) > t.limit {
		delete(t.commands, t.order[0])
		t.order = t.order[1:]
	}
}

func (t *CommandTracker) finish(id, status string, exitCode int, stdout, stderr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.commands[id]
	if !ok {
		return
	}
	st.Status = status
	st.ExitCode = exitCode
	st.Stdout = stdout
	st.Stderr = stderr
	st.EndedAt = time.Now()
}

// Check reports a command's status. Unknown ids are not an error.
func (t *CommandTracker) Check(id string) tools.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.commands[id]
	if !ok {
		return tools.Result{"status": CommandUnknown, "command_id": id}
	}
	res := tools.Result{"status": st.Status, "command_id": id}
	if st.Status != CommandRunning {
		res["exit_code"] = st.ExitCode
		res["stdout"] = st.Stdout
		res["stderr"] = st.Stderr
		res["duration_ms"] = st.EndedAt.Sub(st.StartedAt).Milliseconds()
	}
	return res
}

// bashRun executes the command through the configured shell in the workspace root.
// A deadline hit fails with type Timeout so callers can fall back to bash_command_check.
func (a *Activities) bashRun(ctx context.Context, p *tools.BashRunParams) (tools.Result, error) {
	id := p.CommandID
	if id == "" {
		id = "cmd-" + uuid.NewString()
	}
	a.commands.start(id)

	if p.SimulateTimeout {
		a.commands.finish(id, CommandTimedOut, -1, "", "")
		return nil, nonRetryable(tools.ErrTypeTimeout, "Command timeout (simulated): %s", p.Command)
	}

	timeout := a.cfg.BashTimeout
	if p.TimeoutSeconds > 0 && time.Duration(p.TimeoutSeconds)*time.Second < timeout {
		timeout = time.Duration(p.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.cfg.Shell, "-c", p.Command)
	if a.cfg.WorkspaceRoot != "" {
		cmd.Dir = a.cfg.WorkspaceRoot
	}
	stdout := &cappedBuffer{max: maxCommandOutput}
	stderr := &cappedBuffer{max: maxCommandOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		a.commands.finish(id, CommandTimedOut, -1, stdout.String(), stderr.String())
		return nil, nonRetryable(tools.ErrTypeTimeout, "Command timeout after %s: %s", timeout, p.Command)
	}

	exitCode := 0
	status := CommandCompleted
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			a.commands.finish(id, CommandFailed, -1, "", err.Error())
			return nil, retryable(tools.ErrTypeProviderUnavailable, err, "bash_run: %v", err)
		}
		exitCode = exitErr.ExitCode()
		status = CommandFailed
	}
	a.commands.finish(id, status, exitCode, stdout.String(), stderr.String())

	return tools.Result{
		"command":    p.Command,
		"command_id": id,
		"stdout":     stdout.String(),
		"stderr":     stderr.String(),
		"exit_code":  exitCode,
	}, nil
}

// cappedBuffer keeps the first max bytes and discards the rest.
type cappedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string { return b.buf.String() }
