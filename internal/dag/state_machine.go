package dag

import (
	"container/heap"
	"fmt"
)

// IsTerminal reports whether the state is final for the run.
func IsTerminal(s NodeState) bool {
	switch s {
	case NodeCached, NodeRan, NodeFailed, NodeSkipped:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether dependents may consume the node's output.
func IsSuccessful(s NodeState) bool {
	return s == NodeCached || s == NodeRan
}

// Transition performs a validated transition for a single node.
//
// The caller supplies the expected prior state (from) to make races observable.
// state is mutated if and only if the transition is valid.
func Transition(state ExecutionState, name string, from, to NodeState) error {
	cur, ok := state[name]
	if !ok {
		return fmt.Errorf("unknown node in state: %q", name)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", name, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", name, from, to)
	}
	state[name] = to
	return nil
}

func isAllowedTransition(from, to NodeState) bool {
	switch from {
	case NodePending:
		return to == NodePlanned || to == NodeFailed || to == NodeSkipped
	case NodePlanned:
		return to == NodeCached || to == NodeRunning
	case NodeRunning:
		// Running -> Cached: another writer produced the output first.
		return to == NodeRan || to == NodeFailed || to == NodeCached
	default:
		return false
	}
}

// FailAndPropagate marks name FAILED (from PENDING or RUNNING) and
// transitively marks every downstream dependent SKIPPED. It returns the
// skipped node names in canonical order.
//
// A downstream node found RUNNING is an invariant violation: dependents are
// never started before their dependencies succeed.
func FailAndPropagate(g *Graph, state ExecutionState, name string) ([]string, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	node, ok := g.nodesByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown node: %q", name)
	}

	cur, ok := state[name]
	if !ok {
		return nil, fmt.Errorf("unknown node in state: %q", name)
	}
	switch cur {
	case NodePending, NodeRunning:
		state[name] = NodeFailed
	case NodeFailed:
	default:
		return nil, fmt.Errorf("cannot fail %q from state %s", name, cur)
	}

	start := node.canonicalIndex
	visited := make([]bool, len(g.nodes))
	visited[start] = true

	hq := &intMinHeap{}
	heap.Init(hq)
	for _, d := range g.outgoing[start] {
		heap.Push(hq, d)
	}

	var skipped []string
	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		n := g.nodes[u].Name
		st, ok := state[n]
		if !ok {
			return nil, fmt.Errorf("missing state for %q", n)
		}
		switch st {
		case NodePending:
			state[n] = NodeSkipped
			skipped = append(skipped, n)
		case NodePlanned, NodeRunning:
			return nil, fmt.Errorf("invariant violation: downstream node %q is %s during failure propagation", n, st)
		}

		for _, v := range g.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}
	return skipped, nil
}

// SkipPending marks every remaining PENDING node SKIPPED and returns their
// names in canonical order. The engine calls it to abort a run after a
// failure elsewhere in the graph or on cancellation.
func SkipPending(g *Graph, state ExecutionState) []string {
	var skipped []string
	for _, n := range g.nodes {
		if state[n.Name] == NodePending {
			state[n.Name] = NodeSkipped
			skipped = append(skipped, n.Name)
		}
	}
	return skipped
}
