package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_Transitions(t *testing.T) {
	state := ExecutionState{"A": NodePending}

	require.NoError(t, Transition(state, "A", NodePending, NodePlanned))
	require.NoError(t, Transition(state, "A", NodePlanned, NodeRunning))
	require.NoError(t, Transition(state, "A", NodeRunning, NodeRan))

	assert.Error(t, Transition(state, "A", NodeRan, NodeRunning), "terminal states are final")
	assert.Error(t, Transition(state, "A", NodePending, NodePlanned), "stale from-state")
	assert.Error(t, Transition(state, "missing", NodePending, NodePlanned))

	state["B"] = NodePending
	assert.Error(t, Transition(state, "B", NodePending, NodeRunning), "must plan before running")
	assert.Error(t, Transition(state, "B", NodePending, NodeCached), "must plan before probing")
	require.NoError(t, Transition(state, "B", NodePending, NodeFailed), "planning failure")

	state["C"] = NodeRunning
	require.NoError(t, Transition(state, "C", NodeRunning, NodeCached), "output appeared while running")
}

func TestStateMachine_Predicates(t *testing.T) {
	for _, s := range []NodeState{NodeCached, NodeRan, NodeFailed, NodeSkipped} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []NodeState{NodePending, NodePlanned, NodeRunning} {
		assert.False(t, IsTerminal(s), s)
	}
	assert.True(t, IsSuccessful(NodeCached))
	assert.True(t, IsSuccessful(NodeRan))
	assert.False(t, IsSuccessful(NodeFailed))
	assert.False(t, IsSuccessful(NodeSkipped))
}

func TestFailAndPropagate_MarksDownstreamSkipped(t *testing.T) {
	g, err := NewGraph(
		[]*Node{node("A", 0), node("B", 1), node("C", 2), node("D", 3)},
		[]Edge{{From: "A", To: "B"}, {From: "B", To: "C"}},
	)
	require.NoError(t, err)
	state := NewExecutionState(g)
	state["A"] = NodeRunning

	skipped, err := FailAndPropagate(g, state, "A")
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "C"}, skipped)
	assert.Equal(t, ExecutionState{"A": NodeFailed, "B": NodeSkipped, "C": NodeSkipped, "D": NodePending}, state)
}

func TestFailAndPropagate_DownstreamRunningIsInvariantViolation(t *testing.T) {
	g, err := NewGraph([]*Node{node("A", 0), node("B", 1)}, []Edge{{From: "A", To: "B"}})
	require.NoError(t, err)
	state := ExecutionState{"A": NodeRunning, "B": NodeRunning}

	_, err = FailAndPropagate(g, state, "A")
	assert.ErrorContains(t, err, "invariant violation")
}

func TestFailAndPropagate_RejectsSuccessfulNode(t *testing.T) {
	g, err := NewGraph([]*Node{node("A", 0)}, nil)
	require.NoError(t, err)

	_, err = FailAndPropagate(g, ExecutionState{"A": NodeRan}, "A")
	assert.Error(t, err)
}

func TestSkipPending(t *testing.T) {
	g, err := NewGraph([]*Node{node("A", 0), node("B", 1), node("C", 2)}, nil)
	require.NoError(t, err)
	state := ExecutionState{"A": NodeRan, "B": NodePending, "C": NodePending}

	assert.Equal(t, []string{"B", "C"}, SkipPending(g, state))
	assert.Equal(t, NodeRan, state["A"])
	assert.Empty(t, SkipPending(g, state))
}
