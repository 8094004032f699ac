package gcnv

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"cnvflow/internal/core"
	"cnvflow/internal/dag"
)

// Stage names.
const (
	StageCreateSequenceDictionary = "create_sequence_dictionary"
	StageBedToIntervalList        = "bed_to_interval_list"
	StagePreprocessIntervals      = "preprocess_intervals"
	StageAnnotateIntervals        = "annotate_intervals"
	StageCollectReadCounts        = "collect_read_counts"
	StageFilterIntervals          = "filter_intervals"
	StageDetermineContigPloidy    = "determine_contig_ploidy"
	StageCallCNVs                 = "call_cnvs"
	StageCollectHsMetrics         = "collect_hs_metrics"
)

// Mount names.
const (
	mountFasta       = "fasta-dir"
	mountBed         = "bed-dir"
	mountBam         = "bam-dir"
	mountMappability = "mappability-dir"
	mountCounts      = "counts"
)

const (
	picardJar           = "/usr/picard/picard.jar"
	intervalMergingRule = "OVERLAPPING_ONLY"
)

// Settings configures the stage catalog.
type Settings struct {
	GATK   core.Image
	Picard core.Image
	// JavaOptions go between "java" and "-jar" for every Picard tool.
	JavaOptions []string
	// Cohort labels the filtered intervals directory. When empty the label
	// is derived from the sample set.
	Cohort string
	// Mappability makes annotate_intervals require a mappability track.
	Mappability bool
}

// Validate reports incomplete settings.
func (s Settings) Validate() error {
	var errs []error
	if s.GATK.Name == "" || s.GATK.Version == "" {
		errs = append(errs, errors.New("gatk image and version are required"))
	}
	if s.Picard.Name == "" || s.Picard.Version == "" {
		errs = append(errs, errors.New("picard image and version are required"))
	}
	if s.Cohort != "" && (strings.ContainsAny(s.Cohort, `/\`) || s.Cohort == "." || s.Cohort == "..") {
		errs = append(errs, fmt.Errorf("cohort label %q is not a plain directory name", s.Cohort))
	}
	return errors.Join(errs...)
}

// NewCatalog builds the gCNV stage catalog. Every stage runs through runner.
//
// Declaration order is the execution tie-break:
//
//	create_sequence_dictionary -> bed_to_interval_list -> preprocess_intervals
//	preprocess_intervals -> annotate_intervals
//	preprocess_intervals -> collect_read_counts (per sample)
//	{annotate_intervals, collect_read_counts} -> filter_intervals
//	filter_intervals -> determine_contig_ploidy -> call_cnvs
//	bed_to_interval_list -> collect_hs_metrics (per sample)
func NewCatalog(s Settings, runner core.ToolRunner) (*dag.Catalog, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("gcnv settings: %w", err)
	}
	return dag.NewCatalog(
		createSequenceDictionary(s, runner),
		bedToIntervalList(s, runner),
		preprocessIntervals(s, runner),
		annotateIntervals(s, runner),
		collectReadCounts(s, runner),
		filterIntervals(s, runner),
		determineContigPloidy(s, runner),
		callCNVs(s, runner),
		collectHsMetrics(s, runner),
	)
}

func createSequenceDictionary(s Settings, runner core.ToolRunner) *core.Stage {
	return &core.Stage{
		Name:     StageCreateSequenceDictionary,
		Requires: []core.Role{core.RoleReferenceFasta},
		Produces: core.RoleSequenceDictionary,
		Image:    s.Picard,
		Output: func(in core.Inputs, _ string) (string, error) {
			return DictionaryPath(hostPath(in, core.RoleReferenceFasta)), nil
		},
		Mounts: func(in core.Inputs, _, _ string) []core.MountRequest {
			return []core.MountRequest{
				{Name: mountFasta, HostDir: hostDir(in, core.RoleReferenceFasta)},
			}
		},
		Args: func(c core.ArgContext) ([]string, error) {
			return picardArgs(c, s, "CreateSequenceDictionary").
				path("-R", core.RoleReferenceFasta).
				output("-O").
				build()
		},
		Runner: runner,
	}
}

func bedToIntervalList(s Settings, runner core.ToolRunner) *core.Stage {
	return &core.Stage{
		Name:     StageBedToIntervalList,
		Requires: []core.Role{core.RoleBed, core.RoleSequenceDictionary},
		Produces: core.RoleIntervalList,
		Image:    s.Picard,
		Output: func(in core.Inputs, _ string) (string, error) {
			return IntervalListPath(hostPath(in, core.RoleBed)), nil
		},
		Mounts: func(in core.Inputs, _, _ string) []core.MountRequest {
			return []core.MountRequest{
				{Name: mountBed, HostDir: hostDir(in, core.RoleBed)},
				{Name: mountFasta, HostDir: hostDir(in, core.RoleSequenceDictionary)},
			}
		},
		Args: func(c core.ArgContext) ([]string, error) {
			return picardArgs(c, s, "BedToIntervalList").
				path("-I", core.RoleBed).
				output("-O").
				path("-SD", core.RoleSequenceDictionary).
				build()
		},
		Runner: runner,
	}
}

func preprocessIntervals(s Settings, runner core.ToolRunner) *core.Stage {
	return &core.Stage{
		Name:     StagePreprocessIntervals,
		Requires: []core.Role{core.RoleReferenceFasta, core.RoleSequenceDictionary, core.RoleIntervalList},
		Produces: core.RolePreprocessedIntervals,
		Image:    s.GATK,
		Output: func(in core.Inputs, _ string) (string, error) {
			return PreprocessedPath(hostPath(in, core.RoleIntervalList)), nil
		},
		Mounts: func(in core.Inputs, _, _ string) []core.MountRequest {
			return []core.MountRequest{
				{Name: mountFasta, HostDir: hostDir(in, core.RoleReferenceFasta)},
				{Name: mountBed, HostDir: hostDir(in, core.RoleIntervalList)},
			}
		},
		Args: func(c core.ArgContext) ([]string, error) {
			return gatkArgs(c, "PreprocessIntervals").
				path("-R", core.RoleReferenceFasta).
				path("-L", core.RoleIntervalList).
				lit("--bin-length", "0", "-imr", intervalMergingRule).
				output("-O").
				build()
		},
		Runner: runner,
	}
}

func annotateIntervals(s Settings, runner core.ToolRunner) *core.Stage {
	requires := []core.Role{core.RoleReferenceFasta, core.RoleSequenceDictionary, core.RolePreprocessedIntervals}
	if s.Mappability {
		requires = append(requires, core.RoleMappabilityTrack)
	}
	return &core.Stage{
		Name:     StageAnnotateIntervals,
		Requires: requires,
		Produces: core.RoleAnnotatedIntervals,
		Image:    s.GATK,
		Output: func(in core.Inputs, _ string) (string, error) {
			return AnnotatedPath(hostPath(in, core.RolePreprocessedIntervals)), nil
		},
		Mounts: func(in core.Inputs, _, _ string) []core.MountRequest {
			reqs := []core.MountRequest{
				{Name: mountFasta, HostDir: hostDir(in, core.RoleReferenceFasta)},
				{Name: mountBed, HostDir: hostDir(in, core.RolePreprocessedIntervals)},
			}
			if s.Mappability {
				reqs = append(reqs, core.MountRequest{Name: mountMappability, HostDir: hostDir(in, core.RoleMappabilityTrack)})
			}
			return reqs
		},
		Args: func(c core.ArgContext) ([]string, error) {
			a := gatkArgs(c, "AnnotateIntervals").
				path("-R", core.RoleReferenceFasta).
				path("-L", core.RolePreprocessedIntervals).
				lit("-imr", intervalMergingRule)
			if s.Mappability {
				a.path("--mappability-track", core.RoleMappabilityTrack)
			}
			return a.output("-O").build()
		},
		Runner: runner,
	}
}

func collectReadCounts(s Settings, runner core.ToolRunner) *core.Stage {
	return &core.Stage{
		Name:      StageCollectReadCounts,
		Requires:  []core.Role{core.RoleReferenceFasta, core.RoleSequenceDictionary, core.RolePreprocessedIntervals, core.RoleAlignment},
		Produces:  core.RoleReadCounts,
		PerSample: true,
		Image:     s.GATK,
		Output: func(in core.Inputs, sample string) (string, error) {
			return ReadCountsPath(hostPath(in, core.RoleAlignment), sample), nil
		},
		Mounts: func(in core.Inputs, _, _ string) []core.MountRequest {
			return []core.MountRequest{
				{Name: mountFasta, HostDir: hostDir(in, core.RoleReferenceFasta)},
				{Name: mountBed, HostDir: hostDir(in, core.RolePreprocessedIntervals)},
				{Name: mountBam, HostDir: hostDir(in, core.RoleAlignment)},
			}
		},
		Args: func(c core.ArgContext) ([]string, error) {
			return gatkArgs(c, "CollectReadCounts").
				path("-R", core.RoleReferenceFasta).
				path("-L", core.RolePreprocessedIntervals).
				lit("-imr", intervalMergingRule).
				path("-I", core.RoleAlignment).
				lit("--format", "HDF5").
				output("-O").
				build()
		},
		Runner: runner,
	}
}

func filterIntervals(s Settings, runner core.ToolRunner) *core.Stage {
	return &core.Stage{
		Name:     StageFilterIntervals,
		Requires: []core.Role{core.RolePreprocessedIntervals, core.RoleAnnotatedIntervals, core.RoleReadCounts},
		Produces: core.RoleFilteredIntervals,
		Image:    s.GATK,
		Output: func(in core.Inputs, _ string) (string, error) {
			samples := samplesOf(in[core.RoleReadCounts])
			if len(samples) == 0 {
				return "", errors.New("read counts carry no sample names")
			}
			return FilteredPath(hostPath(in, core.RolePreprocessedIntervals), CohortName(s.Cohort, samples)), nil
		},
		Mounts: func(in core.Inputs, _, _ string) []core.MountRequest {
			reqs := []core.MountRequest{{Name: mountBed, HostDir: hostDir(in, core.RolePreprocessedIntervals)}}
			if ann := hostDir(in, core.RoleAnnotatedIntervals); ann != reqs[0].HostDir {
				reqs = append(reqs, core.MountRequest{Name: mountBed + "-2", HostDir: ann})
			}
			return append(reqs, numbered(mountCounts, in[core.RoleReadCounts])...)
		},
		Args: func(c core.ArgContext) ([]string, error) {
			return gatkArgs(c, "FilterIntervals").
				path("-L", core.RolePreprocessedIntervals).
				path("--annotated-intervals", core.RoleAnnotatedIntervals).
				each("-I", core.RoleReadCounts).
				lit("-imr", intervalMergingRule).
				output("-O").
				build()
		},
		Runner: runner,
	}
}

// determineContigPloidy occupies its slot in the graph. Its output shape is
// not defined yet, so planning it fails with core.ErrUnspecifiedStage.
func determineContigPloidy(s Settings, runner core.ToolRunner) *core.Stage {
	return &core.Stage{
		Name:     StageDetermineContigPloidy,
		Requires: []core.Role{core.RoleFilteredIntervals, core.RoleReadCounts},
		Produces: core.RolePloidyModel,
		Image:    s.GATK,
		Runner:   runner,
	}
}

// callCNVs is unspecified like determineContigPloidy.
func callCNVs(s Settings, runner core.ToolRunner) *core.Stage {
	return &core.Stage{
		Name:     StageCallCNVs,
		Requires: []core.Role{core.RolePloidyModel, core.RoleFilteredIntervals, core.RoleReadCounts},
		Produces: core.RoleCNVCalls,
		Image:    s.GATK,
		Runner:   runner,
	}
}

func collectHsMetrics(s Settings, runner core.ToolRunner) *core.Stage {
	return &core.Stage{
		Name:      StageCollectHsMetrics,
		Requires:  []core.Role{core.RoleAlignment, core.RoleIntervalList},
		Produces:  core.RoleHsMetrics,
		PerSample: true,
		Image:     s.Picard,
		Output: func(in core.Inputs, _ string) (string, error) {
			return HsMetricsPath(hostPath(in, core.RoleAlignment)), nil
		},
		Mounts: func(in core.Inputs, _, _ string) []core.MountRequest {
			return []core.MountRequest{
				{Name: mountBed, HostDir: hostDir(in, core.RoleIntervalList)},
				{Name: mountBam, HostDir: hostDir(in, core.RoleAlignment)},
			}
		},
		Args: func(c core.ArgContext) ([]string, error) {
			return picardArgs(c, s, "CollectHsMetrics").
				path("--INPUT", core.RoleAlignment).
				output("--OUTPUT").
				path("--BAIT_INTERVALS", core.RoleIntervalList).
				path("--TARGET_INTERVALS", core.RoleIntervalList).
				build()
		},
		Runner: runner,
	}
}

func hostPath(in core.Inputs, role core.Role) string {
	a, _ := in.First(role)
	return a.HostPath()
}

func hostDir(in core.Inputs, role core.Role) string {
	return filepath.Dir(hostPath(in, role))
}

// numbered mounts each distinct directory of arts as "<prefix>-N", N
// counting from 1 in directory order.
func numbered(prefix string, arts []core.Artifact) []core.MountRequest {
	seen := make(map[string]struct{}, len(arts))
	var dirs []string
	for _, a := range arts {
		d := filepath.Dir(a.HostPath())
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	reqs := make([]core.MountRequest, len(dirs))
	for i, d := range dirs {
		reqs[i] = core.MountRequest{Name: fmt.Sprintf("%s-%d", prefix, i+1), HostDir: d}
	}
	return reqs
}

func samplesOf(arts []core.Artifact) []string {
	var out []string
	for _, a := range arts {
		if a.Sample() != "" {
			out = append(out, a.Sample())
		}
	}
	sort.Strings(out)
	return out
}
