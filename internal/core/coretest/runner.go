// Package coretest provides a fake ToolRunner for tests that need a pipeline
// to run without docker.
package coretest

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"cnvflow/internal/core"
)

// Runner records every invocation and, on success, writes Content to the
// host file behind the argument that follows OutputFlag.
type Runner struct {
	// OutputFlag precedes the output path in the argument list. When empty
	// the first of "-O" and "--OUTPUT" present is used.
	OutputFlag string
	// Content is written to the output. "ok\n" when empty.
	Content string
	// ExitCode decides the exit status per invocation; nil means 0.
	ExitCode func(inv core.Invocation) int
	// NoOutput makes successful runs leave the output untouched.
	NoOutput bool
	// Hang makes matching invocations block until ctx is done and return
	// ctx.Err(), like a docker client killed on cancellation.
	Hang func(inv core.Invocation) bool

	mu    sync.Mutex
	calls []core.Invocation
}

// Run implements core.ToolRunner.
func (r *Runner) Run(ctx context.Context, inv core.Invocation) (core.ToolResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return core.ToolResult{}, err
	}
	if r.Hang != nil && r.Hang(inv) {
		<-ctx.Done()
		return core.ToolResult{}, ctx.Err()
	}
	code := 0
	if r.ExitCode != nil {
		code = r.ExitCode(inv)
	}
	if code != 0 {
		return core.ToolResult{ExitCode: code, Stderr: []byte(fmt.Sprintf("fake tool exited %d\n", code))}, nil
	}
	if r.NoOutput {
		return core.ToolResult{}, nil
	}

	out, err := OutputPath(inv, r.flags()...)
	if err != nil {
		return core.ToolResult{}, err
	}
	content := r.Content
	if content == "" {
		content = "ok\n"
	}
	if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
		return core.ToolResult{}, err
	}
	return core.ToolResult{Stdout: []byte("done\n")}, nil
}

func (r *Runner) flags() []string {
	if r.OutputFlag == "" {
		return []string{"-O", "--OUTPUT"}
	}
	return []string{r.OutputFlag}
}

// Calls returns the recorded invocations in call order.
func (r *Runner) Calls() []core.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallCount returns the number of recorded invocations.
func (r *Runner) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// OutputPath finds the host path of the argument following the first of
// flags present in the invocation.
func OutputPath(inv core.Invocation, flags ...string) (string, error) {
	i := -1
	for _, flag := range flags {
		if i = slices.Index(inv.Args, flag); i >= 0 {
			break
		}
	}
	if i < 0 || i+1 >= len(inv.Args) {
		return "", fmt.Errorf("no %s argument in %q", strings.Join(flags, "/"), strings.Join(inv.Args, " "))
	}
	p, ok := inv.HostPath(inv.Args[i+1])
	if !ok {
		return "", fmt.Errorf("output %s is not under any mount", inv.Args[i+1])
	}
	return p, nil
}

// FailIfArg returns an ExitCode func that fails with code when any argument
// contains substr.
func FailIfArg(substr string, code int) func(core.Invocation) int {
	return func(inv core.Invocation) int {
		for _, a := range inv.Args {
			if strings.Contains(a, substr) {
				return code
			}
		}
		return 0
	}
}
