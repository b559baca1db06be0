package gitops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"gardenpipe/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// ErrRunnerClosed is returned for commands submitted after Close.
var ErrRunnerClosed = errors.New("git runner closed")

type job struct {
	ctx     context.Context
	binary  string
	args    []string
	timeout time.Duration
	reply   chan jobResult
}

type jobResult struct {
	out []byte
	err error
}

// runner executes queued commands one at a time.
type runner struct {
	exec Executor
	dir  string
	jobs chan job
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newRunner(exec Executor, dir string) *runner {
	r := &runner{
		exec: exec,
		dir:  dir,
		jobs: make(chan job),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *runner) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			return
		case j := <-r.jobs:
			j.reply <- r.execute(j)
		}
	}
}

func (r *runner) execute(j job) jobResult {
	ctx, cancel := context.WithTimeout(j.ctx, j.timeout)
	defer cancel()
	out, err := r.exec.Run(ctx, r.dir, j.binary, j.args)
	if err == nil {
		return jobResult{out: out}
	}
	command := j.binary + " " + strings.Join(j.args, " ")
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && j.ctx.Err() == nil {
		return jobResult{out: out, err: services.Wrap(services.ErrTimeout, "deploy", command,
			fmt.Sprintf("timed out after %s", j.timeout), err)}
	}
	return jobResult{out: out, err: services.Wrap(services.ErrExternalTool, "deploy", command, "command failed", err)}
}

// run queues one command and waits for its output.
func (r *runner) run(ctx context.Context, timeout time.Duration, binary string, args ...string) (string, error) {
	j := job{ctx: ctx, binary: binary, args: args, timeout: timeout, reply: make(chan jobResult, 1)}
	select {
	case <-r.quit:
		return "", ErrRunnerClosed
	case <-ctx.Done():
		return "", ctx.Err()
	case r.jobs <- j:
	}
	select {
	case res := <-j.reply:
		return string(res.out), res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *runner) close() {
	r.once.Do(func() { close(r.quit) })
	<-r.done
}
