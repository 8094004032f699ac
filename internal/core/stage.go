package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"
)

// Inputs holds the artifacts available to a stage, keyed by role. Roles that
// are produced per sample hold one artifact per sample.
type Inputs map[Role][]Artifact

// Add appends artifacts under their own roles.
func (in Inputs) Add(arts ...Artifact) {
	for _, a := range arts {
		in[a.Role()] = append(in[a.Role()], a)
	}
}

// First returns the first artifact of role.
func (in Inputs) First(role Role) (Artifact, bool) {
	arts := in[role]
	if len(arts) == 0 {
		return Artifact{}, false
	}
	return arts[0], true
}

// Flatten returns the artifacts of roles in role order, each role's
// artifacts sorted by sample then path.
func (in Inputs) Flatten(roles []Role) []Artifact {
	var out []Artifact
	for _, role := range roles {
		arts := append([]Artifact(nil), in[role]...)
		sort.SliceStable(arts, func(i, j int) bool {
			if arts[i].sample != arts[j].sample {
				return arts[i].sample < arts[j].sample
			}
			return arts[i].hostPath < arts[j].hostPath
		})
		out = append(out, arts...)
	}
	return out
}

// ArgContext is what a stage's argument builder sees: its inputs, its planned
// output, and the invocation's volume mapping.
type ArgContext struct {
	Stage   string
	Sample  string
	Inputs  Inputs
	Output  Artifact
	Mapping Mapping
}

// Path returns the container path of the first artifact of role.
func (c ArgContext) Path(role Role) (string, error) {
	a, ok := c.Inputs.First(role)
	if !ok {
		return "", &MissingPreconditionError{Stage: c.Stage, Sample: c.Sample, Role: role}
	}
	return ResolveContainerPath(a, c.Mapping)
}

// Paths returns the container paths of every artifact of role, sorted by sample.
func (c ArgContext) Paths(role Role) ([]string, error) {
	arts := c.Inputs.Flatten([]Role{role})
	if len(arts) == 0 {
		return nil, &MissingPreconditionError{Stage: c.Stage, Sample: c.Sample, Role: role}
	}
	paths := make([]string, 0, len(arts))
	for _, a := range arts {
		p, err := ResolveContainerPath(a, c.Mapping)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// OutputPath returns the container path of the planned output.
func (c ArgContext) OutputPath() (string, error) {
	return ResolveContainerPath(c.Output, c.Mapping)
}

// HostPath translates an arbitrary host path, for tool arguments that name
// files next to an artifact rather than the artifact itself.
func (c ArgContext) HostPath(hostPath string) (string, error) {
	p, ok := c.Mapping.Resolve(hostPath)
	if !ok {
		return "", &MappingError{HostPath: hostPath}
	}
	return p, nil
}

// Stage is one containerized tool step: the roles it requires, the role it
// produces, and how to build its invocation. Stages are configured once and
// shared; planning and execution never mutate them.
type Stage struct {
	Name      string
	Requires  []Role
	Produces  Role
	PerSample bool
	Image     Image

	// Output computes the host path of the produced file. It must be a pure
	// function of the inputs and the sample.
	Output func(in Inputs, sample string) (string, error)
	// Mounts lists the directories the invocation needs. When nil, every
	// input directory and the output directory are mounted under names
	// derived from their roles.
	Mounts func(in Inputs, sample, output string) []MountRequest
	// Args builds the argument list passed to the image.
	Args func(c ArgContext) ([]string, error)

	Runner ToolRunner
}

// PlannedInvocation is a fully resolved but not yet executed stage attempt.
type PlannedInvocation struct {
	Stage      string
	Sample     string
	Inputs     []Artifact
	Output     Artifact
	Invocation Invocation
}

// Node returns the plan's graph node name.
func (p *PlannedInvocation) Node() string {
	return NodeName(p.Stage, p.Sample)
}

// Specified reports whether the stage has a complete invocation contract.
func (s *Stage) Specified() bool {
	return s.Output != nil && s.Args != nil
}

// Plan checks preconditions and resolves the stage's invocation for sample.
// Its only filesystem write is creating the output's parent directory.
func (s *Stage) Plan(in Inputs, sample string) (*PlannedInvocation, error) {
	if s.PerSample && sample == "" {
		return nil, fmt.Errorf("stage %s runs per sample: no sample given", s.Name)
	}
	for _, role := range s.Requires {
		arts := in[role]
		if len(arts) == 0 {
			return nil, &MissingPreconditionError{Stage: s.Name, Sample: sample, Role: role}
		}
		for _, a := range arts {
			if err := Check(a); err != nil {
				return nil, &MissingPreconditionError{Stage: s.Name, Sample: sample, Role: role, Cause: err}
			}
		}
	}
	if !s.Specified() {
		return nil, fmt.Errorf("stage %s: %w", s.Name, ErrUnspecifiedStage)
	}

	scoped := make(Inputs, len(s.Requires))
	for _, role := range s.Requires {
		scoped[role] = in[role]
	}

	outPath, err := s.Output(scoped, sample)
	if err != nil {
		return nil, fmt.Errorf("stage %s: output path: %w", s.Name, err)
	}
	inputs := scoped.Flatten(s.Requires)
	out := Derive(s.Produces, outPath, s.Name, sample, inputs)

	if err := os.MkdirAll(filepath.Dir(out.HostPath()), 0o755); err != nil {
		return nil, fmt.Errorf("stage %s: creating output directory: %w", s.Name, err)
	}

	var requests []MountRequest
	if s.Mounts != nil {
		requests = s.Mounts(scoped, sample, out.HostPath())
	} else {
		requests = DefaultMounts(inputs, out.HostPath())
	}
	mapping, err := MapVolumes(requests)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", s.Name, err)
	}

	args, err := s.Args(ArgContext{
		Stage:   s.Name,
		Sample:  sample,
		Inputs:  scoped,
		Output:  out,
		Mapping: mapping,
	})
	if err != nil {
		return nil, fmt.Errorf("stage %s: arguments: %w", s.Name, err)
	}

	inv := Invocation{Image: s.Image, Mounts: mapping.Mounts(), Args: args}
	if err := inv.Validate(); err != nil {
		return nil, fmt.Errorf("stage %s: %w", s.Name, err)
	}

	return &PlannedInvocation{
		Stage:      s.Name,
		Sample:     sample,
		Inputs:     inputs,
		Output:     out,
		Invocation: inv,
	}, nil
}

func (p *PlannedInvocation) result() StageResult {
	return StageResult{
		Stage:    p.Stage,
		Sample:   p.Sample,
		Artifact: p.Output,
		ExitCode: -1,
		Command:  p.Invocation.String(),
	}
}

// CachedResult is the result of a plan whose output was found valid.
func (p *PlannedInvocation) CachedResult() StageResult {
	res := p.result()
	res.Status = StatusCached
	return res
}

// Probe reports whether the planned output is already valid.
func (s *Stage) Probe(p *PlannedInvocation) bool {
	return IsValid(p.Output)
}

// Execute runs the planned invocation unless its output is already valid.
// The tool is invoked at most once per call and never retried.
func (s *Stage) Execute(ctx context.Context, p *PlannedInvocation) StageResult {
	if s.Probe(p) {
		return p.CachedResult()
	}
	res := p.result()

	fail := func(err error) StageResult {
		res.Status = StatusFailed
		res.Err = err
		return res
	}
	if s.Runner == nil {
		return fail(&ToolExecutionError{Stage: p.Stage, Sample: p.Sample, ExitCode: -1, Err: errors.New("no tool runner configured")})
	}

	start := time.Now()
	tr, err := s.Runner.Run(ctx, p.Invocation)
	res.Duration = time.Since(start)
	res.Invoked = true
	if err != nil {
		return fail(&ToolExecutionError{Stage: p.Stage, Sample: p.Sample, ExitCode: -1, StderrTail: tail(tr.Stderr, 20), Err: err})
	}
	res.ExitCode = tr.ExitCode
	if tr.ExitCode != 0 {
		return fail(&ToolExecutionError{Stage: p.Stage, Sample: p.Sample, ExitCode: tr.ExitCode, StderrTail: tail(tr.Stderr, 20)})
	}
	if err := Check(p.Output); err != nil {
		return fail(&ToolExecutionError{Stage: p.Stage, Sample: p.Sample, ExitCode: 0, StderrTail: tail(tr.Stderr, 20), Err: err})
	}
	res.Status = StatusRan
	return res
}

// DefaultMounts mounts each distinct input directory under "<role>-dir"
// ("<role>-dir-N" when a role spans several directories) and the output
// directory under "work-dir".
func DefaultMounts(inputs []Artifact, output string) []MountRequest {
	dirsByRole := make(map[Role][]string)
	var roles []Role
	for _, a := range inputs {
		dir := filepath.Dir(a.HostPath())
		if _, ok := dirsByRole[a.Role()]; !ok {
			roles = append(roles, a.Role())
		}
		if !slices.Contains(dirsByRole[a.Role()], dir) {
			dirsByRole[a.Role()] = append(dirsByRole[a.Role()], dir)
		}
	}

	var reqs []MountRequest
	for _, role := range roles {
		base := strings.ReplaceAll(string(role), "_", "-") + "-dir"
		dirs := dirsByRole[role]
		sort.Strings(dirs)
		for i, dir := range dirs {
			name := base
			if len(dirs) > 1 {
				name = fmt.Sprintf("%s-%d", base, i+1)
			}
			reqs = append(reqs, MountRequest{Name: name, HostDir: dir})
		}
	}
	return append(reqs, MountRequest{Name: "work-dir", HostDir: filepath.Dir(output)})
}
