package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	dErrors "veritax/pkg/domain-errors"
)

// Runner executes one task in the current process.
type Runner func(ctx context.Context, task Task) (*Result, error)

// Pool executes tasks with single-admission semantics.
type Pool interface {
	Run(ctx context.Context, task Task) (*Result, error)
	Close() error
}

// LocalPool runs tasks in-process. The semaphore guarantees at most one
// task holds the engine at a time regardless of request concurrency.
type LocalPool struct {
	run Runner
	sem *semaphore.Weighted
}

// NewLocalPool builds an in-process pool around the given runner.
func NewLocalPool(run Runner) *LocalPool {
	return &LocalPool{run: run, sem: semaphore.NewWeighted(1)}
}

func (p *LocalPool) Run(ctx context.Context, task Task) (*Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "waiting for worker slot")
	}
	defer p.sem.Release(1)
	return p.run(ctx, task)
}

func (p *LocalPool) Close() error { return nil }

// ProcPool spawns a fresh child process per task. The child reads one
// Task as JSON on stdin, writes one Result as JSON on stdout and exits
// zero; a non-zero exit is an infrastructure failure, not a validation
// outcome. The timeout is a hard kill; tasks are not cancellable
// mid-flight.
type ProcPool struct {
	binary     string
	configPath string
	timeout    time.Duration
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// NewProcPool builds a subprocess pool. binary is the worker executable;
// configPath is forwarded so the child builds the same catalog and engine
// configuration as the server.
func NewProcPool(binary, configPath string, timeout time.Duration, logger *slog.Logger) *ProcPool {
	return &ProcPool{
		binary:     binary,
		configPath: configPath,
		timeout:    timeout,
		sem:        semaphore.NewWeighted(1),
		logger:     logger,
	}
}

func (p *ProcPool) Run(ctx context.Context, task Task) (*Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "waiting for worker slot")
	}
	defer p.sem.Release(1)

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encoding worker task")
	}

	args := []string{}
	if p.configPath != "" {
		args = append(args, "-config", p.configPath)
	}
	cmd := exec.CommandContext(runCtx, p.binary, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// The worker runs in its own process group and the whole group is
	// killed on deadline; killing only the direct child would leave any
	// engine subprocess alive holding the stdio pipes, and Run would
	// block for its full lifetime. WaitDelay bounds the pipe wait in
	// case something outside the group inherited a descriptor anyway.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	p.logger.Debug("worker process finished",
		"run_id", task.RunID,
		"duration", time.Since(start),
		"error", runErr,
	)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "worker killed after %s timeout", p.timeout)
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return nil, dErrors.Newf(dErrors.CodeInternal, "worker process failed: %s", msg)
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decoding worker result")
	}
	return &result, nil
}

func (p *ProcPool) Close() error { return nil }

// NewPool builds the pool named by mode: "local" or "subprocess".
func NewPool(mode, binary, configPath string, timeout time.Duration, run Runner, logger *slog.Logger) (Pool, error) {
	switch mode {
	case "", "local":
		return NewLocalPool(run), nil
	case "subprocess":
		if binary == "" {
			return nil, fmt.Errorf("worker mode %q requires a worker binary path", mode)
		}
		return NewProcPool(binary, configPath, timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown worker mode %q", mode)
	}
}
