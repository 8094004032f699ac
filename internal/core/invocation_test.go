package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocation_DockerArgs(t *testing.T) {
	inv := Invocation{
		Image: Image{Name: "broadinstitute/gatk", Version: "4.6.1.0"},
		Mounts: []Mount{
			{Name: "bed-dir", HostDir: "/data/beds", ContainerPath: "/bed-dir"},
			{Name: "fasta-dir", HostDir: "/ref", ContainerPath: "/fasta-dir"},
		},
		Args: []string{"gatk", "AnnotateIntervals", "-R", "/fasta-dir/hg38.fa"},
	}

	require.NoError(t, inv.Validate())
	assert.Equal(t, []string{
		"run", "--rm",
		"-v", "/data/beds:/bed-dir",
		"-v", "/ref:/fasta-dir",
		"broadinstitute/gatk:4.6.1.0",
		"gatk", "AnnotateIntervals", "-R", "/fasta-dir/hg38.fa",
	}, inv.DockerArgs())
	assert.Equal(t, "docker run --rm -v /data/beds:/bed-dir -v /ref:/fasta-dir broadinstitute/gatk:4.6.1.0 gatk AnnotateIntervals -R /fasta-dir/hg38.fa", inv.String())
}

func TestInvocation_ValidateRejectsIncomplete(t *testing.T) {
	cases := map[string]Invocation{
		"no image":       {Image: Image{Version: "1"}, Args: []string{"x"}},
		"no version":     {Image: Image{Name: "img"}, Args: []string{"x"}},
		"no args":        {Image: Image{Name: "img", Version: "1"}},
		"empty arg":      {Image: Image{Name: "img", Version: "1"}, Args: []string{"x", ""}},
		"relative mount": {Image: Image{Name: "img", Version: "1"}, Args: []string{"x"}, Mounts: []Mount{{Name: "a", HostDir: "/a", ContainerPath: "a"}}},
		"double mount": {Image: Image{Name: "img", Version: "1"}, Args: []string{"x"}, Mounts: []Mount{
			{Name: "a", HostDir: "/a", ContainerPath: "/m"},
			{Name: "b", HostDir: "/b", ContainerPath: "/m"},
		}},
	}
	for name, inv := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, inv.Validate())
		})
	}
}

func TestInvocation_HostPath(t *testing.T) {
	inv := Invocation{Mounts: []Mount{
		{Name: "bam-dir", HostDir: "/data/bams", ContainerPath: "/bam-dir"},
		{Name: "work-dir", HostDir: "/data/bams/GATK_gCNV", ContainerPath: "/work-dir"},
	}}

	p, ok := inv.HostPath("/work-dir/s1.hdf5")
	require.True(t, ok)
	assert.Equal(t, "/data/bams/GATK_gCNV/s1.hdf5", p)

	p, ok = inv.HostPath("/bam-dir")
	require.True(t, ok)
	assert.Equal(t, "/data/bams", p)

	_, ok = inv.HostPath("/bam-dirx/s1.bam")
	assert.False(t, ok)
}
