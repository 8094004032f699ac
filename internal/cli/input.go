package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"cnvflow/internal/core"
)

const (
	ExitSuccess           = 0
	ExitPipelineFailure   = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// Command selects what cnvflow does.
type Command string

const (
	CommandRun     Command = "run"
	CommandPlan    Command = "plan"
	CommandMetrics Command = "metrics"
)

const defaultConfig = "cnvflow.yaml"

type TraceConfig struct {
	Enabled bool
	Path    string
}

// CLIInvocation is the canonical description of one cnvflow command.
//
// When WorkDir is set it must be absolute and every relative path is
// resolved under it. When it is empty, the config file's directory becomes
// the working directory once the config is loaded.
type CLIInvocation struct {
	Command    Command
	ConfigPath string
	WorkDir    string
	Target     core.Role

	// Concurrency and LogLevel override the config when non-zero.
	Concurrency int
	LogLevel    string

	Trace           TraceConfig
	MetricsTextfile string
	// OutPath receives the metrics table; stdout when empty.
	OutPath string
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// Usage is printed for a missing or unknown command.
const Usage = `usage: cnvflow <command> [flags]

commands:
  run      run the pipeline up to --target
  plan     print the stages --target needs, without running them
  metrics  collect per-sample HsMetrics reports into one TSV`

// ParseInvocation parses args (without argv[0]) into a canonical
// CLIInvocation. It does not read the environment or the filesystem.
func ParseInvocation(args []string) (CLIInvocation, error) {
	if len(args) == 0 {
		return CLIInvocation{}, invalidInvocationf("missing command\n%s", Usage)
	}
	inv := CLIInvocation{Command: Command(args[0])}
	switch inv.Command {
	case CommandRun, CommandPlan, CommandMetrics:
	default:
		return CLIInvocation{}, invalidInvocationf("unknown command %q\n%s", args[0], Usage)
	}

	fs := flag.NewFlagSet("cnvflow "+args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	var target, tracePath string
	fs.StringVar(&inv.ConfigPath, "config", defaultConfig, "Pipeline config file.")
	fs.StringVar(&inv.WorkDir, "workdir", "", "Absolute working directory for relative paths and the run ledger.")
	fs.StringVar(&inv.LogLevel, "log-level", "", "Log level override: debug|info|warn|error.")
	if inv.Command != CommandMetrics {
		fs.StringVar(&target, "target", string(core.RoleFilteredIntervals), "Role to produce.")
	}
	if inv.Command == CommandRun {
		fs.IntVar(&inv.Concurrency, "concurrency", 0, "Per-sample parallelism override.")
		fs.StringVar(&tracePath, "trace", "", "Trace output path (optional).")
		fs.StringVar(&inv.MetricsTextfile, "metrics-textfile", "", "Prometheus textfile output path (optional).")
	}
	if inv.Command == CommandMetrics {
		fs.StringVar(&inv.OutPath, "out", "", "TSV output path; stdout when empty.")
	}

	if err := fs.Parse(args[1:]); err != nil {
		return CLIInvocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return CLIInvocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	if inv.WorkDir != "" {
		inv.WorkDir = filepath.Clean(inv.WorkDir)
		if !filepath.IsAbs(inv.WorkDir) {
			return CLIInvocation{}, invalidInvocationf("--workdir must be an absolute path (got %q)", inv.WorkDir)
		}
	}
	if inv.Concurrency < 0 {
		return CLIInvocation{}, invalidInvocationf("--concurrency must be positive (got %d)", inv.Concurrency)
	}
	switch inv.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return CLIInvocation{}, invalidInvocationf("invalid --log-level %q (expected debug|info|warn|error)", inv.LogLevel)
	}
	if inv.Command != CommandMetrics {
		target = strings.TrimSpace(target)
		if target == "" {
			return CLIInvocation{}, invalidInvocationf("--target must not be empty")
		}
		inv.Target = core.Role(target)
	}

	var err error
	if inv.ConfigPath, err = resolveUnderWorkDir(inv.WorkDir, inv.ConfigPath); err != nil {
		return CLIInvocation{}, err
	}
	if strings.TrimSpace(tracePath) != "" {
		resolved, err := resolveUnderWorkDir(inv.WorkDir, tracePath)
		if err != nil {
			return CLIInvocation{}, err
		}
		inv.Trace = TraceConfig{Enabled: true, Path: resolved}
	}
	if inv.MetricsTextfile != "" {
		if inv.MetricsTextfile, err = resolveUnderWorkDir(inv.WorkDir, inv.MetricsTextfile); err != nil {
			return CLIInvocation{}, err
		}
	}
	if inv.OutPath != "" {
		if inv.OutPath, err = resolveUnderWorkDir(inv.WorkDir, inv.OutPath); err != nil {
			return CLIInvocation{}, err
		}
	}
	return inv, nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) || workDir == "" {
		return clean, nil
	}
	return filepath.Join(workDir, clean), nil
}

// ExitCode extracts a semantic exit code from a ParseInvocation error.
// If the error is not a known invocation error, it returns ExitInternalError.
func ExitCode(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if err == nil {
		return ExitSuccess
	}
	return ExitInternalError
}
