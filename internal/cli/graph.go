package cli

import (
	"fmt"

	"cnvflow/internal/config"
	"cnvflow/internal/core"
	"cnvflow/internal/dag"
	"cnvflow/internal/gcnv"
)

// pipeline is a loaded config bound to its resolved samples and an engine
// over the gCNV stage catalog.
type pipeline struct {
	cfg     *config.Config
	samples []gcnv.Sample
	sources gcnv.Sources
	engine  *dag.Engine
}

// loadPipeline resolves the config's samples and builds the engine. runner
// nil selects the docker client named by the config.
func loadPipeline(cfg *config.Config, runner core.ToolRunner, opts ...dag.Option) (*pipeline, error) {
	samples, err := cfg.ResolveSamples()
	if err != nil {
		return nil, fmt.Errorf("resolving samples: %w", err)
	}
	if runner == nil {
		runner = core.NewDockerRunner(cfg.Docker.Binary)
	}
	catalog, err := gcnv.NewCatalog(cfg.Settings(), runner)
	if err != nil {
		return nil, fmt.Errorf("building stage catalog: %w", err)
	}
	engine, err := dag.NewEngine(catalog, opts...)
	if err != nil {
		return nil, err
	}
	return &pipeline{
		cfg:     cfg,
		samples: samples,
		sources: cfg.Sources(samples),
		engine:  engine,
	}, nil
}

func (p *pipeline) sampleNames() []string {
	names := make([]string, 0, len(p.samples))
	for _, s := range p.samples {
		names = append(names, s.Name)
	}
	return names
}
