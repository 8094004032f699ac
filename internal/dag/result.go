package dag

import "cnvflow/internal/core"

// PipelineResult is the outcome of one Run.
type PipelineResult struct {
	RunID     string
	Target    core.Role
	GraphHash GraphHash

	// Order is the resolved execution order.
	Order []string
	// Results has one entry per node of Order, in the same order, including
	// skipped nodes.
	Results []core.StageResult
	// Terminal holds the artifacts of the target role, one per sample for a
	// per-sample target. Empty unless the run succeeded.
	Terminal []core.Artifact

	// Failure is the first failing node in execution order, nil on success.
	Failure   *core.StageResult
	Cancelled bool

	State ExecutionState
}

// Succeeded reports whether every node ended CACHED or RAN.
func (r *PipelineResult) Succeeded() bool {
	return r != nil && r.Failure == nil && !r.Cancelled
}

// Result returns the result of the named node.
func (r *PipelineResult) Result(node string) (core.StageResult, bool) {
	for _, res := range r.Results {
		if res.Node() == node {
			return res, true
		}
	}
	return core.StageResult{}, false
}

// Invoked returns the nodes whose tool was started, in execution order.
func (r *PipelineResult) Invoked() []string {
	var out []string
	for _, res := range r.Results {
		if res.Invoked {
			out = append(out, res.Node())
		}
	}
	return out
}

// Counts tallies results by status.
func (r *PipelineResult) Counts() map[core.Status]int {
	counts := make(map[core.Status]int, 4)
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}
