package dag

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

type edgeIndex struct {
	from int
	to   int
}

// Graph is an immutable, validated DAG of stage instances.
//
// It is safe for concurrent read access.
type Graph struct {
	nodesByName map[string]*Node
	nodes       []*Node // canonical order

	edges []edgeIndex // sorted

	outgoing [][]int // by canonical index, sorted ascending
	incoming [][]int // by canonical index, sorted ascending
	indeg    []int   // by canonical index
	depth    []int   // by canonical index (topological depth)
	rank     []int   // by canonical index (position in TopologicalOrder)

	hash GraphHash
}

// NewGraph builds and validates a Graph.
//
// Validation rejects:
//   - empty or duplicate node names
//   - edges referencing unknown nodes
//   - duplicate edges
//   - self-loops
//   - any cycle (direct or indirect)
func NewGraph(nodes []*Node, edges []Edge) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, invalidf("no nodes")
	}

	nodesByName := make(map[string]*Node, len(nodes))
	ordered := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.Name == "" {
			return nil, invalidf("node name is required")
		}
		if _, exists := nodesByName[n.Name]; exists {
			return nil, invalidf("duplicate node name: %q", n.Name)
		}
		cp := *n
		nodesByName[n.Name] = &cp
		ordered = append(ordered, &cp)
	}

	// Canonical order: stage declaration order, then sample, then name.
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.catalogIndex != b.catalogIndex {
			return a.catalogIndex < b.catalogIndex
		}
		if a.Sample != b.Sample {
			return a.Sample < b.Sample
		}
		return a.Name < b.Name
	})
	for i, n := range ordered {
		n.canonicalIndex = i
	}

	mapped := make([]edgeIndex, 0, len(edges))
	seen := make(map[edgeIndex]struct{}, len(edges))
	for _, e := range edges {
		from, okFrom := nodesByName[e.From]
		to, okTo := nodesByName[e.To]
		if !okFrom {
			return nil, invalidf("edge references unknown node (from): %q", e.From)
		}
		if !okTo {
			return nil, invalidf("edge references unknown node (to): %q", e.To)
		}
		if from == to {
			return nil, invalidf("self-loop: %q -> %q", e.From, e.To)
		}

		pair := edgeIndex{from: from.canonicalIndex, to: to.canonicalIndex}
		if _, exists := seen[pair]; exists {
			return nil, invalidf("duplicate edge: %q -> %q", e.From, e.To)
		}
		seen[pair] = struct{}{}
		mapped = append(mapped, pair)
	}

	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(ordered))
	incoming := make([][]int, len(ordered))
	indeg := make([]int, len(ordered))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}

	g := &Graph{
		nodesByName: nodesByName,
		nodes:       ordered,
		edges:       mapped,
		outgoing:    outgoing,
		incoming:    incoming,
		indeg:       indeg,
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	order := g.topoOrderIndices()
	g.rank = make([]int, len(ordered))
	for pos, idx := range order {
		g.rank[idx] = pos
	}
	g.depth = g.computeDepth(order)
	g.hash = g.computeGraphHash()
	return g, nil
}

// Hash returns the stable identity of this graph.
func (g *Graph) Hash() GraphHash { return g.hash }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns a node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodesByName[name]
	return n, ok
}

// Nodes returns the nodes in canonical order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the dependency edges as (From, To) name pairs in canonical order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.nodes[e.from].Name, To: g.nodes[e.to].Name})
	}
	return out
}

// Dependencies returns the names of the nodes name depends on, in canonical order.
func (g *Graph) Dependencies(name string) []string {
	n, ok := g.nodesByName[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.incoming[n.canonicalIndex]))
	for _, p := range g.incoming[n.canonicalIndex] {
		out = append(out, g.nodes[p].Name)
	}
	return out
}

// Depth returns the length of the longest path from any root to the node.
func (g *Graph) Depth(name string) (int, bool) {
	n, ok := g.nodesByName[name]
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

func (g *Graph) computeDepth(order []int) []int {
	depth := make([]int, len(g.nodes))
	for _, u := range order {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if cand := depth[p] + 1; cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}

// TopologicalOrder returns the deterministic execution order of node names.
// Among nodes whose dependencies are satisfied, the lowest canonical index
// (stage declaration order, then sample) comes first.
func (g *Graph) TopologicalOrder() []string {
	order := g.topoOrderIndices()
	names := make([]string, 0, len(order))
	for _, idx := range order {
		names = append(names, g.nodes[idx].Name)
	}
	return names
}

func (g *Graph) computeGraphHash() GraphHash {
	h := sha256.New()

	writeField := func(data []byte) {
		length := uint64(len(data))
		h.Write([]byte{
			byte(length >> 56),
			byte(length >> 48),
			byte(length >> 40),
			byte(length >> 32),
			byte(length >> 24),
			byte(length >> 16),
			byte(length >> 8),
			byte(length),
		})
		h.Write(data)
	}
	writeInt := func(i int) {
		writeField([]byte{byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i)})
	}

	writeInt(len(g.nodes))
	for _, n := range g.nodes {
		writeField([]byte(n.Name))
	}
	writeInt(len(g.edges))
	for _, e := range g.edges {
		writeInt(e.from)
		writeInt(e.to)
	}
	return GraphHash(hex.EncodeToString(h.Sum(nil)))
}
