package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"syscall"
)

// ToolResult is what a tool run reports back. Stdout and Stderr are kept for
// diagnostics only; success is decided by the exit code and the output file.
type ToolResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// ToolRunner runs one invocation synchronously. A non-nil error means the
// tool could not be run at all (not found, cancelled); a tool that ran and
// failed reports a non-zero ExitCode with a nil error.
type ToolRunner interface {
	Run(ctx context.Context, inv Invocation) (ToolResult, error)
}

// ToolRunnerFunc adapts a function to ToolRunner.
type ToolRunnerFunc func(ctx context.Context, inv Invocation) (ToolResult, error)

func (f ToolRunnerFunc) Run(ctx context.Context, inv Invocation) (ToolResult, error) {
	return f(ctx, inv)
}

// passthroughEnv lists the host variables the docker client needs. Nothing
// else from the host environment reaches the client process.
var passthroughEnv = []string{
	"DOCKER_CERT_PATH",
	"DOCKER_CONFIG",
	"DOCKER_CONTEXT",
	"DOCKER_HOST",
	"DOCKER_TLS_VERIFY",
	"HOME",
	"PATH",
	"XDG_RUNTIME_DIR",
}

// DockerRunner runs invocations through the docker CLI.
type DockerRunner struct {
	// Binary is the docker executable, "docker" when empty.
	Binary string
}

// NewDockerRunner creates a DockerRunner for the given binary.
func NewDockerRunner(binary string) *DockerRunner {
	return &DockerRunner{Binary: binary}
}

// Run executes "docker run --rm ..." and waits for it to exit.
//
// On context cancellation the docker client's process group is killed. The
// container itself may keep running until the daemon notices the client went
// away; callers needing a hard stop must manage the container separately.
func (r *DockerRunner) Run(ctx context.Context, inv Invocation) (ToolResult, error) {
	if err := inv.Validate(); err != nil {
		return ToolResult{}, err
	}
	binary := r.Binary
	if binary == "" {
		binary = "docker"
	}

	cmd := exec.CommandContext(ctx, binary, inv.DockerArgs()...)
	cmd.Env = buildClientEnv(os.LookupEnv)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return ToolResult{}, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			// negative pid: the whole group
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return ToolResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, fmt.Errorf("invocation cancelled: %w", ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return ToolResult{}, fmt.Errorf("failed to run %s: %w", binary, err)
		}
		exitCode = exitErr.ExitCode()
	}

	return ToolResult{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}

// buildClientEnv copies the allowlisted variables that are set on the host,
// in sorted order.
func buildClientEnv(lookup func(string) (string, bool)) []string {
	keys := append([]string(nil), passthroughEnv...)
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		if v, ok := lookup(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}
