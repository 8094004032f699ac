package core

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedIdentity_IdenticalInputsProduceSameIdentity(t *testing.T) {
	ins := []Identity{SourceIdentity(RoleBed, "/data/a.bed"), SourceIdentity(RoleReferenceFasta, "/ref/hg38.fa")}

	a := DerivedIdentity("preprocess_intervals", "", ins)
	b := DerivedIdentity("preprocess_intervals", "", ins)

	assert.Equal(t, a, b)
}

func TestDerivedIdentity_InputOrderDoesNotMatter(t *testing.T) {
	x := SourceIdentity(RoleBed, "/data/a.bed")
	y := SourceIdentity(RoleReferenceFasta, "/ref/hg38.fa")

	assert.Equal(t,
		DerivedIdentity("annotate_intervals", "", []Identity{x, y}),
		DerivedIdentity("annotate_intervals", "", []Identity{y, x}),
	)
}

func TestDerivedIdentity_EachComponentChangesIdentity(t *testing.T) {
	x := SourceIdentity(RoleBed, "/data/a.bed")
	base := DerivedIdentity("collect_read_counts", "s1", []Identity{x})

	assert.NotEqual(t, base, DerivedIdentity("collect_hs_metrics", "s1", []Identity{x}), "stage")
	assert.NotEqual(t, base, DerivedIdentity("collect_read_counts", "s2", []Identity{x}), "sample")
	assert.NotEqual(t, base, DerivedIdentity("collect_read_counts", "s1", []Identity{SourceIdentity(RoleBed, "/data/b.bed")}), "input")
	assert.NotEqual(t, base, DerivedIdentity("collect_read_counts", "s1", []Identity{x, x}), "input count")
}

func TestDerivedIdentity_FieldsAreLengthPrefixed(t *testing.T) {
	assert.NotEqual(t,
		DerivedIdentity("ab", "c", nil),
		DerivedIdentity("a", "bc", nil),
	)
}

func TestSourceIdentity_CleansPath(t *testing.T) {
	assert.Equal(t, SourceIdentity(RoleBed, "/data/x/../a.bed"), SourceIdentity(RoleBed, "/data/a.bed"))
	assert.NotEqual(t, SourceIdentity(RoleBed, "/data/a.bed"), SourceIdentity(RoleIntervalList, "/data/a.bed"))
}

func TestSampleSetDigest_OrderInsensitive(t *testing.T) {
	assert.Equal(t, SampleSetDigest([]string{"s2", "s1"}), SampleSetDigest([]string{"s1", "s2"}))
	assert.NotEqual(t, SampleSetDigest([]string{"s1"}), SampleSetDigest([]string{"s1", "s2"}))
}

func TestIdentity_Format(t *testing.T) {
	id := DerivedIdentity("filter_intervals", "", nil)

	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), id.String())
	assert.Len(t, id.Short(), 12)
	assert.Equal(t, string(id[:12]), id.Short())
}
