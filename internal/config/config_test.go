package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "cnvflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(body)+"\n"), 0o644))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

const minimalYAML = `
reference:
  fasta: ref/hg19.fasta
interval_list: beds/exome.interval_list
samples:
  - bams/*.bam
`

func TestLoad_DefaultsAndRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalYAML)

	cfg, err := load(path, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "docker", cfg.Docker.Binary)
	assert.Equal(t, "broadinstitute/gatk", cfg.Docker.GATK.Name)
	assert.Equal(t, []string{"-Xmx60g"}, cfg.Docker.Picard.JavaOptions)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, filepath.Join(dir, "ref", "hg19.fasta"), cfg.Reference.Fasta)
	assert.Equal(t, filepath.Join(dir, "beds", "exome.interval_list"), cfg.IntervalList)
	assert.Empty(t, cfg.Bed)
}

func TestLoad_FullFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
docker:
  binary: /usr/bin/docker
  gatk:
    image: broadinstitute/gatk
    version: 4.2.0.0
  picard:
    image: broadinstitute/picard
    version: 2.27.5
    java_options: ["-Xmx8g", "-XX:+UseSerialGC"]
reference:
  fasta: /data/ref/hg19.fasta
  dict: /data/ref/hg19.dict
bed: /data/beds/exome.bed
mappability_track: /data/beds/mappability_track/k36.umap.bed.gz
samples: ["/data/bams/*.bam"]
cohort: batch1
concurrency: 4
log_level: debug
`)

	cfg, err := load(path, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "4.2.0.0", cfg.Docker.GATK.Version)
	assert.Equal(t, "2.27.5", cfg.Docker.Picard.Version)
	assert.Equal(t, 4, cfg.Concurrency)

	s := cfg.Settings()
	assert.Equal(t, "broadinstitute/picard:2.27.5", s.Picard.Reference())
	assert.Equal(t, []string{"-Xmx8g", "-XX:+UseSerialGC"}, s.JavaOptions)
	assert.Equal(t, "batch1", s.Cohort)
	assert.True(t, s.Mappability)

	src := cfg.Sources(nil)
	assert.Equal(t, "/data/ref/hg19.dict", src.SequenceDictionary)
	assert.Equal(t, "/data/beds/exome.bed", src.Bed)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), minimalYAML+"threads: 8\n")

	_, err := load(path, envMap(nil))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "threads")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), minimalYAML)

	cfg, err := load(path, envMap(map[string]string{
		"CNVFLOW_GATK_VERSION":        "4.6.0.0",
		"CNVFLOW_CONCURRENCY":         "3",
		"CNVFLOW_PICARD_JAVA_OPTIONS": "-Xmx2g -Xms1g",
		"CNVFLOW_COHORT":              "  ",
	}))
	require.NoError(t, err)

	assert.Equal(t, "4.6.0.0", cfg.Docker.GATK.Version)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, []string{"-Xmx2g", "-Xms1g"}, cfg.Docker.Picard.JavaOptions)
	assert.Empty(t, cfg.Cohort, "blank values are ignored")

	_, err = load(path, envMap(map[string]string{"CNVFLOW_CONCURRENCY": "many"}))
	assert.ErrorContains(t, err, "CNVFLOW_CONCURRENCY")
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalYAML)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CNVFLOW_TEST_DOTENV_COHORT=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("CNVFLOW_TEST_DOTENV_COHORT") })

	_, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", os.Getenv("CNVFLOW_TEST_DOTENV_COHORT"))
}

func TestLoad_ValidationReportsEveryProblem(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
docker:
  gatk:
    version: ""
concurrency: 0
log_level: loud
cohort: ../x
`)

	_, err := load(path, envMap(nil))

	require.Error(t, err)
	for _, want := range []string{
		"docker.gatk.image",
		"reference.fasta is required",
		"one of bed or interval_list",
		"samples must list",
		"concurrency must be at least 1",
		`log_level "loud"`,
		`cohort "../x"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.ErrorContains(t, err, "reading config")
}

func TestResolveSamples_RelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalYAML)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bams"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bams", "s1.bam"), []byte("bam"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bams", "s1.bai"), []byte("idx"), 0o644))

	cfg, err := load(path, envMap(nil))
	require.NoError(t, err)
	samples, err := cfg.ResolveSamples()
	require.NoError(t, err)

	require.Len(t, samples, 1)
	assert.Equal(t, "s1", samples[0].Name)
	assert.Equal(t, filepath.Join(dir, "bams", "s1.bam"), samples[0].BAM)
}
