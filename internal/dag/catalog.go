package dag

import (
	"errors"
	"fmt"
	"sort"

	"cnvflow/internal/core"
)

// Catalog is the fixed set of stages a pipeline can run. It is validated once
// at construction: unique names, one producer per role, and no cycles among
// stages.
type Catalog struct {
	stages    []*core.Stage
	index     map[string]int
	producers map[core.Role]int
}

// NewCatalog validates stages and returns the catalog. Declaration order is
// significant: it breaks ties in execution order.
func NewCatalog(stages ...*core.Stage) (*Catalog, error) {
	if len(stages) == 0 {
		return nil, invalidf("no stages")
	}
	c := &Catalog{
		index:     make(map[string]int, len(stages)),
		producers: make(map[core.Role]int, len(stages)),
	}
	for i, s := range stages {
		if s == nil || s.Name == "" {
			return nil, invalidf("stage %d: name is required", i)
		}
		if _, dup := c.index[s.Name]; dup {
			return nil, invalidf("duplicate stage name: %q", s.Name)
		}
		if s.Produces == "" {
			return nil, invalidf("stage %q: produced role is required", s.Name)
		}
		if prev, dup := c.producers[s.Produces]; dup {
			return nil, invalidf("role %q produced by both %q and %q", s.Produces, stages[prev].Name, s.Name)
		}
		c.index[s.Name] = i
		c.producers[s.Produces] = i
		c.stages = append(c.stages, s)
	}

	// Stage-level graph: one node per stage, producer -> consumer edges.
	nodes := make([]*Node, len(c.stages))
	var edges []Edge
	for i, s := range c.stages {
		nodes[i] = &Node{Name: s.Name, Stage: s, catalogIndex: i}
		for _, role := range s.Requires {
			if role == s.Produces {
				return nil, &CycleError{Stages: []string{s.Name, s.Name}, Roles: []core.Role{role}}
			}
			if p, ok := c.producers[role]; ok {
				edges = append(edges, Edge{From: c.stages[p].Name, To: s.Name})
			}
		}
	}
	if _, err := NewGraph(nodes, dedupeEdges(edges)); err != nil {
		var cycle *CycleError
		if errors.As(err, &cycle) {
			// every stage-level edge carries the role its source produces
			for _, name := range cycle.Stages[:len(cycle.Stages)-1] {
				cycle.Roles = append(cycle.Roles, c.stages[c.index[name]].Produces)
			}
		}
		return nil, err
	}
	return c, nil
}

// Stages returns the stages in declaration order.
func (c *Catalog) Stages() []*core.Stage {
	return append([]*core.Stage(nil), c.stages...)
}

// Stage returns a stage by name.
func (c *Catalog) Stage(name string) (*core.Stage, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.stages[i], true
}

// Producer returns the stage producing role.
func (c *Catalog) Producer(role core.Role) (*core.Stage, bool) {
	i, ok := c.producers[role]
	if !ok {
		return nil, false
	}
	return c.stages[i], true
}

// RunContext is the per-run input to Resolve and Run.
type RunContext struct {
	// Sources are caller-supplied artifacts. A role present here is never
	// produced by a stage in this run. Per-sample sources carry their sample.
	Sources core.Inputs
	// Samples lists the sample set. When empty it is derived from the
	// samples of Sources.
	Samples []string
}

// SampleSet returns the sorted, de-duplicated sample set.
func (rc RunContext) SampleSet() []string {
	set := make(map[string]struct{})
	for _, s := range rc.Samples {
		set[s] = struct{}{}
	}
	if len(set) == 0 {
		for _, arts := range rc.Sources {
			for _, a := range arts {
				if a.Sample() != "" {
					set[a.Sample()] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Resolve builds the graph of stage instances needed to produce target:
// only ancestors of the target's producer are included, and roles supplied
// in rc.Sources stop the walk. Per-sample stages expand into one node per
// sample of rc.SampleSet().
func (c *Catalog) Resolve(target core.Role, rc RunContext) (*Graph, error) {
	top, ok := c.producers[target]
	if !ok {
		return nil, &UnknownRoleError{Role: target}
	}

	needed := make(map[int]bool)
	stack := []int{top}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if needed[i] {
			continue
		}
		needed[i] = true
		s := c.stages[i]
		for _, role := range s.Requires {
			if len(rc.Sources[role]) > 0 {
				continue
			}
			p, ok := c.producers[role]
			if !ok {
				return nil, &core.MissingPreconditionError{Stage: s.Name, Role: role}
			}
			stack = append(stack, p)
		}
	}

	samples := rc.SampleSet()
	instances := make(map[int][]*Node, len(needed))
	var nodes []*Node
	for i := range c.stages {
		if !needed[i] {
			continue
		}
		s := c.stages[i]
		if !s.PerSample {
			n := &Node{Name: s.Name, Stage: s, catalogIndex: i}
			instances[i] = []*Node{n}
			nodes = append(nodes, n)
			continue
		}
		if len(samples) == 0 {
			return nil, invalidf("stage %q runs per sample but the sample set is empty", s.Name)
		}
		for _, sample := range samples {
			n := &Node{Name: core.NodeName(s.Name, sample), Stage: s, Sample: sample, catalogIndex: i}
			instances[i] = append(instances[i], n)
			nodes = append(nodes, n)
		}
	}

	var edges []Edge
	for _, n := range nodes {
		for _, role := range n.Stage.Requires {
			if len(rc.Sources[role]) > 0 {
				continue
			}
			p := c.producers[role]
			for _, up := range instances[p] {
				// per-sample to per-sample stays within one sample
				if n.Sample != "" && up.Sample != "" && up.Sample != n.Sample {
					continue
				}
				edges = append(edges, Edge{From: up.Name, To: n.Name})
			}
		}
	}

	g, err := NewGraph(nodes, dedupeEdges(edges))
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", target, err)
	}
	return g, nil
}

func dedupeEdges(edges []Edge) []Edge {
	seen := make(map[Edge]struct{}, len(edges))
	out := edges[:0]
	for _, e := range edges {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
