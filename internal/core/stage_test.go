package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRunner writes content to the file at target and reports exitCode.
type countingRunner struct {
	calls    atomic.Int32
	target   string
	content  string
	exitCode int
}

func (r *countingRunner) Run(ctx context.Context, inv Invocation) (ToolResult, error) {
	r.calls.Add(1)
	if r.target != "" {
		if err := os.WriteFile(r.target, []byte(r.content), 0o644); err != nil {
			return ToolResult{}, err
		}
	}
	return ToolResult{ExitCode: r.exitCode, Stderr: []byte("line1\nboom\n")}, nil
}

type stageFixture struct {
	dir    string
	inputs Inputs
	stage  *Stage
	runner *countingRunner
}

func newStageFixture(t *testing.T) *stageFixture {
	t.Helper()
	dir := t.TempDir()
	fasta := writeFile(t, filepath.Join(dir, "ref", "hg38.fa"), ">chr1\nACGT\n")
	ilist := writeFile(t, filepath.Join(dir, "beds", "targets.interval_list"), "@HD\n")

	in := Inputs{}
	in.Add(Describe(RoleReferenceFasta, fasta), Describe(RoleIntervalList, ilist))

	runner := &countingRunner{content: "preprocessed"}
	st := &Stage{
		Name:     "preprocess_intervals",
		Requires: []Role{RoleReferenceFasta, RoleIntervalList},
		Produces: RolePreprocessedIntervals,
		Image:    Image{Name: "broadinstitute/gatk", Version: "4.6.1.0"},
		Output: func(in Inputs, sample string) (string, error) {
			il, _ := in.First(RoleIntervalList)
			return filepath.Join(filepath.Dir(il.HostPath()), "preprocessed_targets.interval_list"), nil
		},
		Mounts: func(in Inputs, sample, output string) []MountRequest {
			fa, _ := in.First(RoleReferenceFasta)
			il, _ := in.First(RoleIntervalList)
			return []MountRequest{
				{Name: "fasta-dir", HostDir: filepath.Dir(fa.HostPath())},
				{Name: "bed-dir", HostDir: filepath.Dir(il.HostPath())},
			}
		},
		Args: func(c ArgContext) ([]string, error) {
			ref, err := c.Path(RoleReferenceFasta)
			if err != nil {
				return nil, err
			}
			il, err := c.Path(RoleIntervalList)
			if err != nil {
				return nil, err
			}
			out, err := c.OutputPath()
			if err != nil {
				return nil, err
			}
			return []string{"gatk", "PreprocessIntervals", "-R", ref, "-L", il, "-O", out}, nil
		},
		Runner: runner,
	}
	runner.target = filepath.Join(dir, "beds", "preprocessed_targets.interval_list")
	return &stageFixture{dir: dir, inputs: in, stage: st, runner: runner}
}

func TestPlan_BuildsMappedInvocation(t *testing.T) {
	f := newStageFixture(t)

	p, err := f.stage.Plan(f.inputs, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"gatk", "PreprocessIntervals",
		"-R", "/fasta-dir/hg38.fa",
		"-L", "/bed-dir/targets.interval_list",
		"-O", "/bed-dir/preprocessed_targets.interval_list",
	}, p.Invocation.Args)
	assert.Equal(t, f.runner.target, p.Output.HostPath())
	assert.Equal(t, RolePreprocessedIntervals, p.Output.Role())
	assert.Zero(t, f.runner.calls.Load(), "planning must not invoke the tool")
}

func TestPlan_DeterministicOutput(t *testing.T) {
	f := newStageFixture(t)

	a, err := f.stage.Plan(f.inputs, "")
	require.NoError(t, err)
	b, err := f.stage.Plan(f.inputs, "")
	require.NoError(t, err)

	assert.Equal(t, a.Output, b.Output)
	assert.Equal(t, a.Invocation, b.Invocation)
}

func TestPlan_MissingPrecondition(t *testing.T) {
	f := newStageFixture(t)
	delete(f.inputs, RoleIntervalList)

	_, err := f.stage.Plan(f.inputs, "")

	var missing *MissingPreconditionError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, RoleIntervalList, missing.Role)
	assert.Equal(t, "preprocess_intervals", missing.Stage)
	assert.Zero(t, f.runner.calls.Load())
}

func TestPlan_InvalidPreconditionArtifact(t *testing.T) {
	f := newStageFixture(t)
	il, _ := f.inputs.First(RoleIntervalList)
	require.NoError(t, os.Truncate(il.HostPath(), 0))

	_, err := f.stage.Plan(f.inputs, "")

	var missing *MissingPreconditionError
	require.ErrorAs(t, err, &missing)
	var invalid *InvalidArtifactError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "empty file", invalid.Reason)
}

func TestPlan_UnspecifiedStage(t *testing.T) {
	f := newStageFixture(t)
	f.stage.Args = nil

	_, err := f.stage.Plan(f.inputs, "")

	assert.True(t, errors.Is(err, ErrUnspecifiedStage))
}

func TestPlan_PerSampleRequiresSample(t *testing.T) {
	f := newStageFixture(t)
	f.stage.PerSample = true

	_, err := f.stage.Plan(f.inputs, "")
	require.Error(t, err)

	p, err := f.stage.Plan(f.inputs, "s1")
	require.NoError(t, err)
	assert.Equal(t, "preprocess_intervals(s1)", p.Node())
}

func TestPlan_UnmappedOutputIsMappingError(t *testing.T) {
	f := newStageFixture(t)
	f.stage.Output = func(in Inputs, sample string) (string, error) {
		return filepath.Join(f.dir, "elsewhere", "out.interval_list"), nil
	}

	_, err := f.stage.Plan(f.inputs, "")

	var mapErr *MappingError
	require.ErrorAs(t, err, &mapErr)
}

func TestExecute_RunThenCached(t *testing.T) {
	f := newStageFixture(t)
	ctx := context.Background()

	p, err := f.stage.Plan(f.inputs, "")
	require.NoError(t, err)

	first := f.stage.Execute(ctx, p)
	require.Equal(t, StatusRan, first.Status, "err: %v", first.Err)
	assert.True(t, first.Invoked)
	assert.Equal(t, 0, first.ExitCode)

	p2, err := f.stage.Plan(f.inputs, "")
	require.NoError(t, err)
	second := f.stage.Execute(ctx, p2)

	assert.Equal(t, StatusCached, second.Status)
	assert.False(t, second.Invoked)
	assert.Equal(t, first.Artifact, second.Artifact)
	assert.Equal(t, int32(1), f.runner.calls.Load(), "cached stage must not re-invoke the tool")
}

func TestExecute_EmptyOutputTriggersReinvocation(t *testing.T) {
	f := newStageFixture(t)
	writeFile(t, f.runner.target, "")

	p, err := f.stage.Plan(f.inputs, "")
	require.NoError(t, err)
	assert.False(t, f.stage.Probe(p))

	res := f.stage.Execute(context.Background(), p)

	assert.Equal(t, StatusRan, res.Status)
	assert.Equal(t, int32(1), f.runner.calls.Load())
}

func TestExecute_NonZeroExitFails(t *testing.T) {
	f := newStageFixture(t)
	f.runner.exitCode = 3

	p, err := f.stage.Plan(f.inputs, "")
	require.NoError(t, err)
	res := f.stage.Execute(context.Background(), p)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 3, res.ExitCode)
	var toolErr *ToolExecutionError
	require.ErrorAs(t, res.Err, &toolErr)
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.Equal(t, "line1\nboom", toolErr.StderrTail)
}

func TestExecute_ZeroExitWithoutValidOutputFails(t *testing.T) {
	f := newStageFixture(t)
	f.runner.content = ""

	p, err := f.stage.Plan(f.inputs, "")
	require.NoError(t, err)
	res := f.stage.Execute(context.Background(), p)

	assert.Equal(t, StatusFailed, res.Status)
	var toolErr *ToolExecutionError
	require.ErrorAs(t, res.Err, &toolErr)
	assert.Equal(t, 0, toolErr.ExitCode)
	var invalid *InvalidArtifactError
	assert.ErrorAs(t, res.Err, &invalid)
}

func TestExecute_RunnerErrorFails(t *testing.T) {
	f := newStageFixture(t)
	f.stage.Runner = ToolRunnerFunc(func(ctx context.Context, inv Invocation) (ToolResult, error) {
		return ToolResult{}, errors.New("docker: not found")
	})

	p, err := f.stage.Plan(f.inputs, "")
	require.NoError(t, err)
	res := f.stage.Execute(context.Background(), p)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, -1, res.ExitCode)
	assert.ErrorContains(t, res.Err, "docker: not found")
}

func TestDefaultMounts(t *testing.T) {
	ins := []Artifact{
		DescribeSample(RoleAlignment, "/b1/s1.bam", "s1"),
		DescribeSample(RoleAlignment, "/b2/s2.bam", "s2"),
		Describe(RoleReferenceFasta, "/ref/hg38.fa"),
	}

	reqs := DefaultMounts(ins, "/work/out.txt")

	assert.Equal(t, []MountRequest{
		{Name: "alignment-dir-1", HostDir: "/b1"},
		{Name: "alignment-dir-2", HostDir: "/b2"},
		{Name: "reference-fasta-dir", HostDir: "/ref"},
		{Name: "work-dir", HostDir: "/work"},
	}, reqs)
}
