// Package config loads cnvflow's YAML configuration, overlays CNVFLOW_*
// environment variables (a .env file next to the config is honoured), and
// validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cnvflow/internal/core"
	"cnvflow/internal/gcnv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CNVFLOW_"

// Config models cnvflow.yaml.
type Config struct {
	Docker           DockerConfig    `yaml:"docker"`
	Reference        ReferenceConfig `yaml:"reference"`
	Bed              string          `yaml:"bed"`
	IntervalList     string          `yaml:"interval_list"`
	MappabilityTrack string          `yaml:"mappability_track"`
	// Samples are BAM glob patterns.
	Samples     []string `yaml:"samples"`
	Cohort      string   `yaml:"cohort"`
	Concurrency int      `yaml:"concurrency"`
	LogLevel    string   `yaml:"log_level"`

	// Dir anchors relative paths: the config file's directory.
	Dir string `yaml:"-"`
}

// DockerConfig selects the docker client and tool images.
type DockerConfig struct {
	Binary string       `yaml:"binary"`
	GATK   core.Image   `yaml:"gatk"`
	Picard PicardConfig `yaml:"picard"`
}

// PicardConfig is the Picard image plus its JVM options.
type PicardConfig struct {
	core.Image  `yaml:",inline"`
	JavaOptions []string `yaml:"java_options"`
}

// ReferenceConfig locates the reference genome.
type ReferenceConfig struct {
	Fasta string `yaml:"fasta"`
	// Dict is optional. When absent, create_sequence_dictionary writes
	// <fasta-stem>.dict next to Fasta before any stage that reads the
	// reference; GATK looks for it there.
	Dict string `yaml:"dict"`
}

// Default returns the configuration used for keys the file leaves unset.
func Default() Config {
	return Config{
		Docker: DockerConfig{
			Binary: "docker",
			GATK:   core.Image{Name: "broadinstitute/gatk", Version: "4.5.0.0"},
			Picard: PicardConfig{
				Image:       core.Image{Name: "broadinstitute/picard", Version: "3.1.1"},
				JavaOptions: []string{"-Xmx60g"},
			},
		},
		Concurrency: 1,
		LogLevel:    "info",
	}
}

// Load reads the config file at path, applies environment overrides, makes
// paths absolute, and validates.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	dir := filepath.Dir(abs)

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", abs, err)
	}
	cfg.Dir = dir

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", abs, err)
	}
	return &cfg, nil
}

// applyEnv overlays CNVFLOW_* variables onto c.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DOCKER_BINARY":     &c.Docker.Binary,
		"GATK_IMAGE":        &c.Docker.GATK.Name,
		"GATK_VERSION":      &c.Docker.GATK.Version,
		"PICARD_IMAGE":      &c.Docker.Picard.Name,
		"PICARD_VERSION":    &c.Docker.Picard.Version,
		"REFERENCE_FASTA":   &c.Reference.Fasta,
		"REFERENCE_DICT":    &c.Reference.Dict,
		"BED":               &c.Bed,
		"INTERVAL_LIST":     &c.IntervalList,
		"MAPPABILITY_TRACK": &c.MappabilityTrack,
		"COHORT":            &c.Cohort,
		"LOG_LEVEL":         &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	if v, ok := lookup(EnvPrefix + "PICARD_JAVA_OPTIONS"); ok && strings.TrimSpace(v) != "" {
		c.Docker.Picard.JavaOptions = strings.Fields(v)
	}
	if v, ok := lookup(EnvPrefix + "CONCURRENCY"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sCONCURRENCY: %w", EnvPrefix, err)
		}
		c.Concurrency = n
	}
	return nil
}

func (c *Config) resolvePaths() {
	for _, p := range []*string{&c.Reference.Fasta, &c.Reference.Dict, &c.Bed, &c.IntervalList, &c.MappabilityTrack} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Dir, *p)
		}
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Docker.Binary == "" {
		errs = append(errs, errors.New("docker.binary is required"))
	}
	if c.Docker.GATK.Name == "" || c.Docker.GATK.Version == "" {
		errs = append(errs, errors.New("docker.gatk.image and docker.gatk.version are required"))
	}
	if c.Docker.Picard.Name == "" || c.Docker.Picard.Version == "" {
		errs = append(errs, errors.New("docker.picard.image and docker.picard.version are required"))
	}
	for i, opt := range c.Docker.Picard.JavaOptions {
		if strings.TrimSpace(opt) == "" {
			errs = append(errs, fmt.Errorf("docker.picard.java_options[%d] is empty", i))
		}
	}
	if c.Reference.Fasta == "" {
		errs = append(errs, errors.New("reference.fasta is required"))
	}
	if c.Bed == "" && c.IntervalList == "" {
		errs = append(errs, errors.New("one of bed or interval_list is required"))
	}
	if len(c.Samples) == 0 {
		errs = append(errs, errors.New("samples must list at least one BAM pattern"))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.Cohort != "" && (strings.ContainsAny(c.Cohort, `/\`) || c.Cohort == "." || c.Cohort == "..") {
		errs = append(errs, fmt.Errorf("cohort %q is not a plain directory name", c.Cohort))
	}
	return errors.Join(errs...)
}

// Settings returns the stage catalog settings.
func (c *Config) Settings() gcnv.Settings {
	return gcnv.Settings{
		GATK:        c.Docker.GATK,
		Picard:      c.Docker.Picard.Image,
		JavaOptions: append([]string(nil), c.Docker.Picard.JavaOptions...),
		Cohort:      c.Cohort,
		Mappability: c.MappabilityTrack != "",
	}
}

// ResolveSamples expands the sample patterns relative to the config file.
func (c *Config) ResolveSamples() ([]gcnv.Sample, error) {
	return gcnv.NewSampleResolver(c.Dir).Resolve(c.Samples)
}

// Sources returns the run's caller-supplied files for samples.
func (c *Config) Sources(samples []gcnv.Sample) gcnv.Sources {
	return gcnv.Sources{
		ReferenceFasta:     c.Reference.Fasta,
		SequenceDictionary: c.Reference.Dict,
		Bed:                c.Bed,
		IntervalList:       c.IntervalList,
		MappabilityTrack:   c.MappabilityTrack,
		Samples:            samples,
	}
}
