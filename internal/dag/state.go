package dag

// NodeState is the runtime state of one node during a run. It lives outside
// the Graph so the same resolved graph can be run many times.
//
//	Pending -> Planned -> Cached
//	Pending -> Planned -> Running -> Ran | Failed | Cached
//	Pending -> Failed   (planning failed)
//	Pending -> Skipped  (upstream failure, fail-fast, or cancellation)
type NodeState string

const (
	NodePending NodeState = "PENDING"
	NodePlanned NodeState = "PLANNED"
	NodeRunning NodeState = "RUNNING"
	NodeCached  NodeState = "CACHED"
	NodeRan     NodeState = "RAN"
	NodeFailed  NodeState = "FAILED"
	NodeSkipped NodeState = "SKIPPED"
)

// ExecutionState maps node name to its current NodeState.
type ExecutionState map[string]NodeState

// NewExecutionState returns a state with every node of g pending.
func NewExecutionState(g *Graph) ExecutionState {
	state := make(ExecutionState, len(g.nodes))
	for _, n := range g.nodes {
		state[n.Name] = NodePending
	}
	return state
}

// Clone returns a copy of s.
func (s ExecutionState) Clone() ExecutionState {
	cp := make(ExecutionState, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}
