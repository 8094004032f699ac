package dag

import (
	"sync"

	"cnvflow/internal/core"
)

// recordCache holds the artifacts known to one run: the caller's sources and
// every output that reached CACHED or RAN. It is created fresh for each run
// so nothing is trusted from a previous one; earlier runs are only visible
// through the filesystem probe.
type recordCache struct {
	mu         sync.RWMutex
	byIdentity map[core.Identity]core.Artifact
	byRole     map[core.Role][]core.Artifact
	produced   map[core.Role][]core.Artifact
}

func newRecordCache(sources core.Inputs) *recordCache {
	rc := &recordCache{
		byIdentity: make(map[core.Identity]core.Artifact),
		byRole:     make(map[core.Role][]core.Artifact),
		produced:   make(map[core.Role][]core.Artifact),
	}
	for _, arts := range sources {
		for _, a := range arts {
			rc.put(a, false)
		}
	}
	return rc
}

func (rc *recordCache) put(a core.Artifact, produced bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.byIdentity[a.Identity()]; ok {
		return
	}
	rc.byIdentity[a.Identity()] = a
	rc.byRole[a.Role()] = append(rc.byRole[a.Role()], a)
	if produced {
		rc.produced[a.Role()] = append(rc.produced[a.Role()], a)
	}
}

// record adds a stage output.
func (rc *recordCache) record(a core.Artifact) {
	rc.put(a, true)
}

// inputsFor gathers the artifacts of n's required roles. A per-sample node
// only sees per-sample artifacts of its own sample.
func (rc *recordCache) inputsFor(n *Node) core.Inputs {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	in := make(core.Inputs, len(n.Stage.Requires))
	for _, role := range n.Stage.Requires {
		for _, a := range rc.byRole[role] {
			if n.Sample != "" && a.Sample() != "" && a.Sample() != n.Sample {
				continue
			}
			in.Add(a)
		}
	}
	return in
}

// producedFor returns the outputs of role produced (or found cached) in this run.
func (rc *recordCache) producedFor(role core.Role) []core.Artifact {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return core.Inputs{role: rc.produced[role]}.Flatten([]core.Role{role})
}
