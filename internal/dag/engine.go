package dag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cnvflow/internal/core"
	"cnvflow/internal/trace"
)

// Observer is told about every node outcome, skipped nodes included.
type Observer interface {
	ObserveStage(res core.StageResult)
}

// Engine drives a Catalog: it resolves the graph for a target role and runs
// it in order, fail-fast.
type Engine struct {
	catalog     *Catalog
	logger      *zap.Logger
	sink        trace.Sink
	observer    Observer
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTraceSink sets where trace events go.
func WithTraceSink(s trace.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithObserver sets the observer notified of every node outcome.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithConcurrency bounds how many per-sample nodes of one stage run at once.
// Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.concurrency = n
	}
}

// NewEngine creates an engine over catalog.
func NewEngine(catalog *Catalog, opts ...Option) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("nil catalog")
	}
	e := &Engine{
		catalog:     catalog,
		logger:      zap.NewNop(),
		sink:        trace.NopSink{},
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Catalog returns the engine's stage catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Resolve returns the graph Run would execute for target.
func (e *Engine) Resolve(target core.Role, rc RunContext) (*Graph, error) {
	return e.catalog.Resolve(target, rc)
}

// runState is the mutable state of one Run.
type runState struct {
	graph   *Graph
	records *recordCache
	log     *zap.Logger

	mu      sync.Mutex
	state   ExecutionState
	results map[string]core.StageResult
}

func (rs *runState) transition(name string, from, to NodeState) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return Transition(rs.state, name, from, to)
}

func (rs *runState) setResult(res core.StageResult) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.results[res.Node()] = res
}

// Run resolves target and drives every node to a terminal state.
//
// Nodes run in Graph.TopologicalOrder(). The per-sample instances of one
// stage form a group that runs with bounded concurrency; nodes that depend on
// the group are planned only after every member is terminal. The first
// failure stops the run: nothing new starts, in-flight group members finish,
// and all remaining nodes are SKIPPED.
//
// Cancellation is checked before each node starts. A tool already running
// gets ctx and may or may not stop promptly; if it fails because of that,
// the run still counts as cancelled. A cancelled run returns its partial
// result and an error wrapping ctx.Err().
//
// Stage failures are reported in the result, not as an error. The error is
// reserved for resolution failures, cancellation, and internal invariant
// violations.
func (e *Engine) Run(ctx context.Context, target core.Role, rc RunContext) (*PipelineResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	g, err := e.catalog.Resolve(target, rc)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	order := g.TopologicalOrder()
	rs := &runState{
		graph:   g,
		records: newRecordCache(rc.Sources),
		log:     e.logger.With(zap.String("run_id", runID), zap.String("target", string(target))),
		state:   NewExecutionState(g),
		results: make(map[string]core.StageResult, g.Len()),
	}
	rs.log.Info("pipeline resolved",
		zap.String("graph_hash", g.Hash().String()),
		zap.Strings("order", order),
		zap.Int("concurrency", e.concurrency))

	var failed []string
	var internalErr error
	for {
		if ctx.Err() != nil {
			break
		}
		ready := ReadyNodes(g, rs.state)
		if len(ready) == 0 {
			break
		}
		batch := nextBatch(g, ready)
		failed, internalErr = e.runBatch(ctx, rs, batch)
		if internalErr != nil || len(failed) > 0 {
			break
		}
	}

	cancelled := false
	if len(failed) > 0 && ctx.Err() != nil && rs.interrupted(failed) {
		// every failure is a tool killed by cancellation, not a tool that
		// failed on its own
		cancelled = true
		for _, name := range failed {
			skipped, err := FailAndPropagate(g, rs.state, name)
			if err != nil && internalErr == nil {
				internalErr = err
			}
			e.skip(rs, skipped, trace.ReasonCancelled, name)
		}
		e.skip(rs, SkipPending(g, rs.state), trace.ReasonCancelled, "")
	} else if len(failed) > 0 {
		for _, name := range failed {
			skipped, err := FailAndPropagate(g, rs.state, name)
			if err != nil && internalErr == nil {
				internalErr = err
			}
			e.skip(rs, skipped, trace.ReasonUpstreamFailed, name)
		}
		e.skip(rs, SkipPending(g, rs.state), trace.ReasonRunAborted, failed[0])
	} else if ctx.Err() != nil {
		if skipped := SkipPending(g, rs.state); len(skipped) > 0 {
			cancelled = true
			e.skip(rs, skipped, trace.ReasonCancelled, "")
		}
	} else if internalErr != nil {
		e.skip(rs, SkipPending(g, rs.state), trace.ReasonRunAborted, "")
	}

	res := &PipelineResult{
		RunID:     runID,
		Target:    target,
		GraphHash: g.Hash(),
		Order:     order,
		Results:   make([]core.StageResult, 0, len(order)),
		Cancelled: cancelled,
		State:     rs.state.Clone(),
	}
	for _, name := range order {
		r := rs.results[name]
		res.Results = append(res.Results, r)
		if r.Status == core.StatusFailed && res.Failure == nil {
			failure := r
			res.Failure = &failure
		}
	}
	if res.Failure == nil && !cancelled && internalErr == nil {
		res.Terminal = rs.records.producedFor(target)
	}

	counts := res.Counts()
	rs.log.Info("pipeline finished",
		zap.Bool("succeeded", res.Succeeded()),
		zap.Int("cached", counts[core.StatusCached]),
		zap.Int("ran", counts[core.StatusRan]),
		zap.Int("failed", counts[core.StatusFailed]),
		zap.Int("skipped", counts[core.StatusSkipped]))

	if internalErr != nil {
		return res, internalErr
	}
	if cancelled {
		return res, fmt.Errorf("run cancelled: %w", ctx.Err())
	}
	return res, nil
}

// nextBatch picks what to run next: the first ready node alone, or, when it
// is a per-sample node, every ready instance of the same stage.
func nextBatch(g *Graph, ready []string) []string {
	first := g.nodesByName[ready[0]]
	if !first.Stage.PerSample {
		return ready[:1]
	}
	batch := []string{first.Name}
	for _, name := range ready[1:] {
		if g.nodesByName[name].Stage == first.Stage {
			batch = append(batch, name)
		}
	}
	return batch
}

var errMemberFailed = errors.New("group member failed")

// runBatch runs batch and returns the failed nodes in canonical order.
func (e *Engine) runBatch(ctx context.Context, rs *runState, batch []string) ([]string, error) {
	if len(batch) == 1 {
		res, err := e.runNode(ctx, rs, batch[0])
		if err != nil {
			return nil, err
		}
		if res.Status == core.StatusFailed {
			return batch, nil
		}
		return nil, nil
	}

	var (
		mu          sync.Mutex
		internalErr error
	)
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(e.concurrency)
	for _, name := range batch {
		name := name
		grp.Go(func() error {
			// gctx only gates starting: once a member failed or the run was
			// cancelled, queued members stay PENDING.
			if gctx.Err() != nil {
				return nil
			}
			res, err := e.runNode(ctx, rs, name)
			if err != nil {
				mu.Lock()
				if internalErr == nil {
					internalErr = err
				}
				mu.Unlock()
				return err
			}
			if res.Status == core.StatusFailed {
				return errMemberFailed
			}
			return nil
		})
	}
	_ = grp.Wait()
	if internalErr != nil {
		return nil, internalErr
	}

	var failed []string
	for _, name := range batch {
		rs.mu.Lock()
		st := rs.state[name]
		rs.mu.Unlock()
		if st == NodeFailed {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		rs.log.Warn("sample group aborted",
			zap.String("stage", rs.graph.nodesByName[batch[0]].Stage.Name),
			zap.Strings("failed", failed))
	}
	return failed, nil
}

// runNode plans and executes one node. The returned error is an invariant
// violation; stage failures are reported in the result.
func (e *Engine) runNode(ctx context.Context, rs *runState, name string) (core.StageResult, error) {
	node := rs.graph.nodesByName[name]
	stage := node.Stage
	log := rs.log.With(zap.String("stage", stage.Name))
	if node.Sample != "" {
		log = log.With(zap.String("sample", node.Sample))
	}

	plan, err := stage.Plan(rs.records.inputsFor(node), node.Sample)
	if err != nil {
		if terr := rs.transition(name, NodePending, NodeFailed); terr != nil {
			return core.StageResult{}, terr
		}
		res := core.StageResult{Stage: stage.Name, Sample: node.Sample, Status: core.StatusFailed, ExitCode: -1, Err: err}
		e.finish(rs, log, res)
		return res, nil
	}
	if err := rs.transition(name, NodePending, NodePlanned); err != nil {
		return core.StageResult{}, err
	}

	var res core.StageResult
	if stage.Probe(plan) {
		if err := rs.transition(name, NodePlanned, NodeCached); err != nil {
			return core.StageResult{}, err
		}
		res = plan.CachedResult()
	} else {
		if err := rs.transition(name, NodePlanned, NodeRunning); err != nil {
			return core.StageResult{}, err
		}
		log.Info("invoking tool", zap.String("command", plan.Invocation.String()))
		res = stage.Execute(ctx, plan)
		if err := rs.transition(name, NodeRunning, stateFor(res.Status)); err != nil {
			return core.StageResult{}, err
		}
	}
	if res.Status.Succeeded() {
		rs.records.record(res.Artifact)
	}
	e.finish(rs, log, res)
	return res, nil
}

func stateFor(s core.Status) NodeState {
	switch s {
	case core.StatusCached:
		return NodeCached
	case core.StatusRan:
		return NodeRan
	case core.StatusSkipped:
		return NodeSkipped
	default:
		return NodeFailed
	}
}

// finish records a terminal result and reports it to logs, trace, and observer.
func (e *Engine) finish(rs *runState, log *zap.Logger, res core.StageResult) {
	rs.setResult(res)

	ev := trace.TraceEvent{Node: res.Node()}
	if !res.Artifact.IsZero() {
		ev.Artifact = res.Artifact.Identity().String()
		log = log.With(zap.String("artifact", res.Artifact.HostPath()), zap.String("identity", res.Artifact.Identity().Short()))
	}
	switch res.Status {
	case core.StatusCached:
		ev.Kind, ev.Reason = trace.EventStageCached, trace.ReasonOutputValid
		log.Info("stage cached")
	case core.StatusRan:
		code := res.ExitCode
		ev.Kind, ev.Reason, ev.ExitCode = trace.EventStageRan, trace.ReasonToolSucceeded, &code
		log.Info("stage ran", zap.Duration("duration", res.Duration))
	case core.StatusFailed:
		ev.Kind, ev.Reason = trace.EventStageFailed, failureReason(res.Err)
		if res.Invoked {
			code := res.ExitCode
			ev.ExitCode = &code
		}
		log.Error("stage failed", zap.Int("exit_code", res.ExitCode), zap.Error(res.Err))
	}
	trace.SafeRecord(e.sink, ev)
	if e.observer != nil {
		e.observer.ObserveStage(res)
	}
}

// skip records SKIPPED results for nodes.
func (e *Engine) skip(rs *runState, nodes []string, reason, cause string) {
	for _, name := range nodes {
		node := rs.graph.nodesByName[name]
		res := core.StageResult{Stage: node.Stage.Name, Sample: node.Sample, Status: core.StatusSkipped, ExitCode: -1}
		rs.setResult(res)
		rs.log.Debug("stage skipped", zap.String("node", name), zap.String("reason", reason), zap.String("cause", cause))
		trace.SafeRecord(e.sink, trace.TraceEvent{Kind: trace.EventStageSkipped, Node: name, Reason: reason, Cause: cause})
		if e.observer != nil {
			e.observer.ObserveStage(res)
		}
	}
}

// interrupted reports whether every named node failed because its context
// was cancelled.
func (rs *runState) interrupted(nodes []string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, name := range nodes {
		if !isCancellation(rs.results[name].Err) {
			return false
		}
	}
	return true
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func failureReason(err error) string {
	var (
		missing *core.MissingPreconditionError
		toolErr *core.ToolExecutionError
	)
	switch {
	case isCancellation(err):
		return trace.ReasonCancelled
	case errors.As(err, &missing):
		return trace.ReasonPreconditionMissing
	case errors.Is(err, core.ErrUnspecifiedStage):
		return trace.ReasonUnspecifiedStage
	case errors.As(err, &toolErr):
		switch {
		case toolErr.ExitCode > 0:
			return trace.ReasonToolExitNonZero
		case toolErr.ExitCode == 0:
			return trace.ReasonInvalidOutput
		default:
			return trace.ReasonToolUnavailable
		}
	default:
		return trace.ReasonPlanFailed
	}
}
