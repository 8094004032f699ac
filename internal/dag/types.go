package dag

import "cnvflow/internal/core"

// GraphHash is the deterministic identity of a resolved Graph. It covers node
// names and dependency structure, not file contents.
type GraphHash string

func (h GraphHash) String() string { return string(h) }

// Edge is a dependency: To can only be planned after From succeeded.
type Edge struct {
	From string
	To   string
}

// Node is one stage instance in a resolved graph. Per-sample stages expand
// into one node per sample.
type Node struct {
	Name   string
	Stage  *core.Stage
	Sample string

	// catalogIndex is the stage's declaration position; it orders nodes
	// together with Sample.
	catalogIndex   int
	canonicalIndex int
}

// CanonicalIndex returns the node's position in the graph's canonical ordering.
func (n *Node) CanonicalIndex() int { return n.canonicalIndex }
