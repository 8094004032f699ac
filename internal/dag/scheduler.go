package dag

import "sort"

// ReadyNodes returns the PENDING nodes whose dependencies are all CACHED or
// RAN, ordered by their position in g.TopologicalOrder().
//
// This function is pure: it does not mutate graph or state.
func ReadyNodes(g *Graph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	var ready []*Node
	for _, node := range g.nodes {
		if state[node.Name] != NodePending {
			continue
		}
		depsOK := true
		for _, p := range g.incoming[node.canonicalIndex] {
			if !IsSuccessful(state[g.nodes[p].Name]) {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, node)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		return g.rank[ready[i].canonicalIndex] < g.rank[ready[j].canonicalIndex]
	})

	names := make([]string, len(ready))
	for i, n := range ready {
		names[i] = n.Name
	}
	return names
}
