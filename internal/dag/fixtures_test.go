package dag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cnvflow/internal/core"
	"cnvflow/internal/core/coretest"
)

// testStage builds a stage writing <dir>/out/<name>[_<sample>].txt and
// passing its inputs as -I arguments.
func testStage(dir, name string, requires []core.Role, produces core.Role, perSample bool, runner core.ToolRunner) *core.Stage {
	return &core.Stage{
		Name:      name,
		Requires:  requires,
		Produces:  produces,
		PerSample: perSample,
		Image:     core.Image{Name: "example/tool", Version: "1.0"},
		Output: func(in core.Inputs, sample string) (string, error) {
			file := name
			if sample != "" {
				file += "_" + sample
			}
			return filepath.Join(dir, "out", file+".txt"), nil
		},
		Args: func(c core.ArgContext) ([]string, error) {
			out, err := c.OutputPath()
			if err != nil {
				return nil, err
			}
			args := []string{"tool", name}
			if c.Sample != "" {
				args = append(args, "--sample", c.Sample)
			}
			for _, role := range requires {
				paths, err := c.Paths(role)
				if err != nil {
					return nil, err
				}
				for _, p := range paths {
					args = append(args, "-I", p)
				}
			}
			return append(args, "-O", out), nil
		},
		Runner: runner,
	}
}

type fixture struct {
	dir     string
	runner  *coretest.Runner
	catalog *Catalog
	sources core.Inputs
}

// newFixture builds a catalog shaped like the gCNV graph:
//
//	prep -> annotate, prep -> count(sample), {annotate, count} -> filter -> ploidy
//
// ploidy has no argument contract.
func newFixture(t *testing.T, samples ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	runner := &coretest.Runner{}

	prep := testStage(dir, "prep", []core.Role{core.RoleReferenceFasta}, core.RolePreprocessedIntervals, false, runner)
	annotate := testStage(dir, "annotate", []core.Role{core.RoleReferenceFasta, core.RolePreprocessedIntervals}, core.RoleAnnotatedIntervals, false, runner)
	count := testStage(dir, "count", []core.Role{core.RolePreprocessedIntervals, core.RoleAlignment}, core.RoleReadCounts, true, runner)
	filter := testStage(dir, "filter", []core.Role{core.RolePreprocessedIntervals, core.RoleAnnotatedIntervals, core.RoleReadCounts}, core.RoleFilteredIntervals, false, runner)
	ploidy := testStage(dir, "ploidy", []core.Role{core.RoleFilteredIntervals, core.RoleReadCounts}, core.RolePloidyModel, false, runner)
	ploidy.Args = nil

	catalog, err := NewCatalog(prep, annotate, count, filter, ploidy)
	require.NoError(t, err)

	sources := core.Inputs{}
	sources.Add(core.Describe(core.RoleReferenceFasta, writeTestFile(t, filepath.Join(dir, "ref", "ref.fa"))))
	for _, s := range samples {
		sources.Add(core.DescribeSample(core.RoleAlignment, writeTestFile(t, filepath.Join(dir, "bams", s+".bam")), s))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "out"), 0o755))

	return &fixture{dir: dir, runner: runner, catalog: catalog, sources: sources}
}

func (f *fixture) runContext() RunContext {
	return RunContext{Sources: f.sources}
}

func (f *fixture) engine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(f.catalog, opts...)
	require.NoError(t, err)
	return e
}

func writeTestFile(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data\n"), 0o644))
	return path
}

func statuses(res *PipelineResult) map[string]core.Status {
	out := make(map[string]core.Status, len(res.Results))
	for _, r := range res.Results {
		out[r.Node()] = r.Status
	}
	return out
}

// node builds a bare graph node for structural tests.
func node(name string, catalogIndex int) *Node {
	return &Node{Name: name, catalogIndex: catalogIndex}
}
