package gcnv

import (
	"cnvflow/internal/core"
	"cnvflow/internal/dag"
)

// Sources are the caller-supplied files of a run. Empty paths are omitted,
// in which case the role must be produced by a stage. Supplying a file for a
// role the catalog can produce (SequenceDictionary, IntervalList) skips
// that stage.
type Sources struct {
	ReferenceFasta     string
	SequenceDictionary string
	Bed                string
	IntervalList       string
	MappabilityTrack   string
	Samples            []Sample
}

// RunContext converts the sources into engine input. The sample set is the
// names of Samples.
func (s Sources) RunContext() dag.RunContext {
	in := core.Inputs{}
	for _, src := range []struct {
		role core.Role
		path string
	}{
		{core.RoleReferenceFasta, s.ReferenceFasta},
		{core.RoleSequenceDictionary, s.SequenceDictionary},
		{core.RoleBed, s.Bed},
		{core.RoleIntervalList, s.IntervalList},
		{core.RoleMappabilityTrack, s.MappabilityTrack},
	} {
		if src.path != "" {
			in.Add(core.Describe(src.role, src.path))
		}
	}

	names := make([]string, 0, len(s.Samples))
	for _, smp := range s.Samples {
		in.Add(core.DescribeSample(core.RoleAlignment, smp.BAM, smp.Name))
		names = append(names, smp.Name)
	}
	return dag.RunContext{Sources: in, Samples: names}
}
