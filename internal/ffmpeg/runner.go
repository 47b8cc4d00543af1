package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// maxStderrLines is how many recent stderr lines a run keeps.
	maxStderrLines = 100
	// errorTailLines is how many of them a ProcessError message shows.
	errorTailLines = 10
	// maxLineLength bounds a single stderr line.
	maxLineLength = 1024 * 1024
	// DefaultKillGrace is how long a terminated child gets before it is killed.
	DefaultKillGrace = 5 * time.Second
)

// ProcessError reports a child that exited unsuccessfully.
type ProcessError struct {
	Command  string
	ExitCode int
	Stderr   []string
	Err      error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	tail := e.Stderr
	if len(tail) > errorTailLines {
		tail = tail[len(tail)-errorTailLines:]
	}
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if len(tail) > 0 {
		msg += ": " + strings.Join(tail, "\n")
	}
	return msg
}

// Unwrap returns the underlying exec error.
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// LineHandler receives every non-empty stderr line of a running child.
type LineHandler func(line string)

// Runner executes commands, streaming their stderr line by line. Every
// running child is registered with the terminator registry and sampled by
// a process monitor.
type Runner struct {
	terminators *Terminators
	killGrace   time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	monitors map[int]*ProcessMonitor
}

// NewRunner creates a runner registering children with terminators.
func NewRunner(terminators *Terminators) *Runner {
	if terminators == nil {
		terminators = NewTerminators()
	}
	return &Runner{
		terminators: terminators,
		killGrace:   DefaultKillGrace,
		logger:      slog.Default(),
		monitors:    make(map[int]*ProcessMonitor),
	}
}

// WithLogger sets the logger for the runner.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// WithKillGrace sets how long a terminated child may take to exit.
func (r *Runner) WithKillGrace(d time.Duration) *Runner {
	r.killGrace = d
	return r
}

// Terminators returns the registry children are registered with.
func (r *Runner) Terminators() *Terminators {
	return r.terminators
}

// Run starts cmd and blocks until it exits. Stderr is split on carriage
// returns as well as newlines, so ffmpeg's in-place stats lines arrive one
// by one. A non-zero exit is returned as a *ProcessError. The child leads
// its own process group; cancelling ctx sends the whole group SIGTERM and
// the leader is killed after the grace period.
func (r *Runner) Run(ctx context.Context, cmd *Command, onLine LineHandler) error {
	name := filepath.Base(cmd.Binary)
	r.logger.InfoContext(ctx, "running command",
		slog.String("binary", name),
		slog.String("command", cmd.String()),
	)

	execCmd := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	execCmd.Stdout = io.Discard
	ownProcessGroup(execCmd)
	execCmd.Cancel = func() error {
		return terminateGroup(execCmd.Process)
	}
	execCmd.WaitDelay = r.killGrace

	stderr, err := execCmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	started := time.Now()
	if err := execCmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}

	deregister := r.terminators.Register(func() {
		_ = terminateGroup(execCmd.Process)
	})
	defer deregister()

	pid := execCmd.Process.Pid
	monitor := NewProcessMonitor(pid, name)
	monitor.Start()
	r.mu.Lock()
	r.monitors[pid] = monitor
	r.mu.Unlock()
	defer func() {
		monitor.Stop()
		r.mu.Lock()
		delete(r.monitors, pid)
		r.mu.Unlock()
	}()

	lines := readLines(stderr, onLine)
	waitErr := execCmd.Wait()

	if waitErr == nil {
		r.logger.DebugContext(ctx, "command finished",
			slog.String("binary", name),
			slog.Duration("duration", time.Since(started)),
		)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s interrupted: %w", name, ctxErr)
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &ProcessError{
		Command:  name,
		ExitCode: exitCode,
		Stderr:   lines,
		Err:      waitErr,
	}
}

// Active returns resource samples for every child currently running.
func (r *Runner) Active() []ProcessStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]ProcessStats, 0, len(r.monitors))
	for _, m := range r.monitors {
		stats = append(stats, m.Stats())
	}
	return stats
}

// readLines consumes r until EOF, passing each line to onLine and returning
// the most recent maxStderrLines lines.
func readLines(r io.Reader, onLine LineHandler) []string {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	scanner.Split(scanCRLF)

	recent := make([]string, 0, maxStderrLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(recent) >= maxStderrLines {
			recent = recent[1:]
		}
		recent = append(recent, line)
		if onLine != nil {
			onLine(line)
		}
	}
	// Keep the pipe drained so the child never blocks on a full buffer.
	_, _ = io.Copy(io.Discard, r)
	return recent
}

// scanCRLF is a bufio.SplitFunc that ends a token at either '\r' or '\n'.
func scanCRLF(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
