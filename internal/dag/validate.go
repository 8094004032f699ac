package dag

import (
	"container/heap"
)

// validateAcyclic returns a *CycleError naming one cycle when Kahn's
// algorithm cannot order every node.
func (g *Graph) validateAcyclic() error {
	if len(g.topoOrderIndices()) == len(g.nodes) {
		return nil
	}
	idx := g.findCycle()
	names := make([]string, len(idx))
	for i, n := range idx {
		names[i] = g.nodes[n].Name
	}
	return &CycleError{Stages: names}
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrderIndices returns a topological ordering of node indices. The ready
// queue is a min-heap by canonical index.
func (g *Graph) topoOrderIndices() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &intMinHeap{}
	heap.Init(ready)
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle walks nodes in canonical order depth-first, keeping the current
// path on an explicit stack. The first back edge closes the witness, so the
// same graph always reports the same cycle. The first node is repeated at
// the end.
func (g *Graph) findCycle() []int {
	const (
		unvisited = iota
		onPath
		done
	)
	type frame struct {
		node int
		next int // cursor into g.outgoing[node]
	}

	state := make([]int, len(g.nodes))
	pathPos := make([]int, len(g.nodes))
	for root := range g.nodes {
		if state[root] != unvisited {
			continue
		}
		path := []frame{{node: root}}
		state[root] = onPath
		for len(path) > 0 {
			top := &path[len(path)-1]
			if top.next == len(g.outgoing[top.node]) {
				state[top.node] = done
				path = path[:len(path)-1]
				continue
			}
			v := g.outgoing[top.node][top.next]
			top.next++
			switch state[v] {
			case unvisited:
				state[v] = onPath
				pathPos[v] = len(path)
				path = append(path, frame{node: v})
			case onPath:
				cycle := make([]int, 0, len(path)-pathPos[v]+1)
				for _, f := range path[pathPos[v]:] {
					cycle = append(cycle, f.node)
				}
				return append(cycle, v)
			}
		}
	}
	return nil
}
