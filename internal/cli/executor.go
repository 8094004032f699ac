package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"cnvflow/internal/config"
	"cnvflow/internal/core"
	"cnvflow/internal/dag"
	"cnvflow/internal/gcnv"
	"cnvflow/internal/hsmetrics"
	"cnvflow/internal/runstate"
	"cnvflow/internal/telemetry"
	"cnvflow/internal/trace"
)

// Deps are the process-level collaborators of Execute. Zero values select
// the real ones.
type Deps struct {
	// Runner replaces the docker client.
	Runner core.ToolRunner
	// Logger replaces the logger built from the log level.
	Logger *zap.Logger
	Stdout io.Writer
	Now    func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

type CLIResult struct {
	ExitCode int
	// RunID names the ledger entry of a run command.
	RunID    string
	Pipeline *dag.PipelineResult
}

// Execute runs a canonical invocation against the real environment.
func Execute(ctx context.Context, inv CLIInvocation) (CLIResult, error) {
	return ExecuteWith(ctx, inv, Deps{})
}

// ExecuteWith maps a canonical CLIInvocation to engine work and translates
// the outcome to a semantic exit code.
func ExecuteWith(ctx context.Context, inv CLIInvocation, deps Deps) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}

	cfg, err := config.Load(inv.ConfigPath)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	if inv.Concurrency > 0 {
		cfg.Concurrency = inv.Concurrency
	}
	if inv.LogLevel != "" {
		cfg.LogLevel = inv.LogLevel
	}
	if inv.WorkDir == "" {
		inv.WorkDir = cfg.Dir
	}

	logger := deps.Logger
	if logger == nil {
		if logger, err = newLogger(cfg.LogLevel); err != nil {
			res.ExitCode = ExitConfigError
			return res, fmt.Errorf("building logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	switch inv.Command {
	case CommandRun:
		return executeRun(ctx, inv, cfg, deps, logger)
	case CommandPlan:
		return executePlan(inv, cfg, deps, logger)
	case CommandMetrics:
		return executeMetrics(inv, cfg, deps)
	default:
		res.ExitCode = ExitInvalidInvocation
		return res, fmt.Errorf("unknown command %q", inv.Command)
	}
}

func executeRun(ctx context.Context, inv CLIInvocation, cfg *config.Config, deps Deps, logger *zap.Logger) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError
	started := deps.now()

	recorder := trace.NewRecorder()
	metrics := telemetry.New()
	p, err := loadPipeline(cfg, deps.Runner,
		dag.WithLogger(logger),
		dag.WithTraceSink(recorder),
		dag.WithObserver(metrics),
		dag.WithConcurrency(cfg.Concurrency),
	)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}

	pr, runErr := p.engine.Run(ctx, inv.Target, p.sources.RunContext())
	res.Pipeline = pr
	metrics.ObserveRun(pr)

	// The ledger is best effort: a run that could not be recorded still
	// reports its own outcome.
	if store, err := runstate.NewStore(inv.WorkDir); err != nil {
		logger.Warn("run ledger unavailable", zap.Error(err))
	} else {
		rec := &runstate.Recorder{Store: store, Now: deps.Now}
		runID, err := rec.Record(inv.Target, p.sampleNames(), cfg.Concurrency, started, pr, runErr)
		if err != nil {
			logger.Warn("recording run failed", zap.String("run_id", runID), zap.Error(err))
		}
		res.RunID = runID
	}

	res.ExitCode = exitCodeFor(pr, runErr)

	if inv.Trace.Enabled && pr != nil {
		if err := trace.WriteFile(inv.Trace.Path, recorder.Trace(pr.GraphHash.String(), string(inv.Target))); err != nil {
			res.ExitCode = ExitInternalError
			return res, fmt.Errorf("writing trace: %w", err)
		}
	}
	if inv.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(inv.MetricsTextfile); err != nil {
			res.ExitCode = ExitInternalError
			return res, fmt.Errorf("writing metrics: %w", err)
		}
	}

	printSummary(deps.Stdout, res.RunID, pr)
	if runErr != nil {
		return res, runErr
	}
	if pr.Failure != nil {
		return res, fmt.Errorf("stage %s failed: %w", pr.Failure.Node(), pr.Failure.Err)
	}
	return res, nil
}

// exitCodeFor maps an engine outcome to the CLI's exit code.
func exitCodeFor(pr *dag.PipelineResult, runErr error) int {
	var unknown *dag.UnknownRoleError
	var precondition *core.MissingPreconditionError
	switch {
	case runErr == nil && pr.Succeeded():
		return ExitSuccess
	case runErr == nil:
		return ExitPipelineFailure
	case errors.As(runErr, &unknown):
		return ExitInvalidInvocation
	case pr == nil && (errors.Is(runErr, dag.ErrInvalidGraph) || errors.As(runErr, &precondition)):
		return ExitConfigError
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return ExitPipelineFailure
	default:
		return ExitInternalError
	}
}

func printSummary(w io.Writer, runID string, pr *dag.PipelineResult) {
	if pr == nil {
		return
	}
	status := "succeeded"
	switch {
	case pr.Cancelled:
		status = "cancelled"
	case !pr.Succeeded():
		status = "failed"
	}
	counts := pr.Counts()
	fmt.Fprintf(w, "run %s %s: cached=%d ran=%d failed=%d skipped=%d\n", runID, status,
		counts[core.StatusCached], counts[core.StatusRan], counts[core.StatusFailed], counts[core.StatusSkipped])
	if pr.Failure != nil && !pr.Cancelled {
		fmt.Fprintf(w, "failed: %s: %v\n", pr.Failure.Node(), pr.Failure.Err)
	}
	for _, a := range pr.Terminal {
		fmt.Fprintln(w, a.HostPath())
	}
}

func executePlan(inv CLIInvocation, cfg *config.Config, deps Deps, logger *zap.Logger) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError
	p, err := loadPipeline(cfg, deps.Runner, dag.WithLogger(logger))
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	g, err := p.engine.Resolve(inv.Target, p.sources.RunContext())
	if err != nil {
		res.ExitCode = exitCodeFor(nil, err)
		return res, err
	}
	fmt.Fprintf(deps.Stdout, "graph %s\n", g.Hash())
	for _, name := range g.TopologicalOrder() {
		ups := g.Dependencies(name)
		if len(ups) == 0 {
			fmt.Fprintln(deps.Stdout, name)
			continue
		}
		fmt.Fprintf(deps.Stdout, "%s <- %s\n", name, strings.Join(ups, ", "))
	}
	res.ExitCode = ExitSuccess
	return res, nil
}

func executeMetrics(inv CLIInvocation, cfg *config.Config, deps Deps) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError
	samples, err := cfg.ResolveSamples()
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, fmt.Errorf("resolving samples: %w", err)
	}

	var table hsmetrics.Table
	for _, s := range samples {
		rep, err := hsmetrics.ParseFile(gcnv.HsMetricsPath(s.BAM))
		if err != nil {
			res.ExitCode = ExitPipelineFailure
			return res, fmt.Errorf("sample %s: %w (run --target %s first)", s.Name, err, core.RoleHsMetrics)
		}
		if err := table.Add(s.Name, rep); err != nil {
			res.ExitCode = ExitPipelineFailure
			return res, err
		}
	}

	if inv.OutPath == "" {
		if err := table.WriteTSV(deps.Stdout); err != nil {
			return res, fmt.Errorf("writing metrics table: %w", err)
		}
		res.ExitCode = ExitSuccess
		return res, nil
	}
	f, err := os.Create(inv.OutPath)
	if err != nil {
		return res, fmt.Errorf("creating %s: %w", inv.OutPath, err)
	}
	if err := writeTable(f, &table); err != nil {
		return res, fmt.Errorf("%s: %w", inv.OutPath, err)
	}
	res.ExitCode = ExitSuccess
	return res, nil
}

// writeTable writes table to wc and closes it. A failed close is reported:
// the table may not have reached disk.
func writeTable(wc io.WriteCloser, table *hsmetrics.Table) error {
	if err := table.WriteTSV(wc); err != nil {
		_ = wc.Close()
		return fmt.Errorf("writing metrics table: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("closing metrics table: %w", err)
	}
	return nil
}
