package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocker writes an executable script standing in for the docker CLI.
func fakeDocker(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docker")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testInvocation() Invocation {
	return Invocation{
		Image:  Image{Name: "broadinstitute/gatk", Version: "4.6.1.0"},
		Mounts: []Mount{{Name: "bam-dir", HostDir: "/data/bams", ContainerPath: "/bam-dir"}},
		Args:   []string{"gatk", "CollectReadCounts"},
	}
}

func TestDockerRunner_PassesDockerArgs(t *testing.T) {
	bin := fakeDocker(t, `echo "$@"`)

	res, err := NewDockerRunner(bin).Run(context.Background(), testInvocation())
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "run --rm -v /data/bams:/bam-dir broadinstitute/gatk:4.6.1.0 gatk CollectReadCounts\n", string(res.Stdout))
}

func TestDockerRunner_CapturesExitCodeAndStderr(t *testing.T) {
	bin := fakeDocker(t, `echo "A USER ERROR has occurred" >&2; exit 2`)

	res, err := NewDockerRunner(bin).Run(context.Background(), testInvocation())
	require.NoError(t, err)

	assert.Equal(t, 2, res.ExitCode)
	assert.Contains(t, string(res.Stderr), "A USER ERROR")
}

func TestDockerRunner_MissingBinary(t *testing.T) {
	_, err := NewDockerRunner(filepath.Join(t.TempDir(), "no-docker")).Run(context.Background(), testInvocation())

	assert.Error(t, err)
}

func TestDockerRunner_RejectsInvalidInvocation(t *testing.T) {
	bin := fakeDocker(t, `exit 0`)
	inv := testInvocation()
	inv.Args = nil

	_, err := NewDockerRunner(bin).Run(context.Background(), inv)

	assert.ErrorContains(t, err, "argument list is empty")
}

func TestDockerRunner_ContextCancellation(t *testing.T) {
	bin := fakeDocker(t, `sleep 30`)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewDockerRunner(bin).Run(ctx, testInvocation())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestBuildClientEnv_OnlyAllowlisted(t *testing.T) {
	host := map[string]string{
		"PATH":        "/usr/bin",
		"DOCKER_HOST": "unix:///run/docker.sock",
		"AWS_SECRET":  "nope",
	}
	lookup := func(k string) (string, bool) {
		v, ok := host[k]
		return v, ok
	}

	env := buildClientEnv(lookup)

	assert.Equal(t, []string{"DOCKER_HOST=unix:///run/docker.sock", "PATH=/usr/bin"}, env)
	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "AWS_"))
	}
}
