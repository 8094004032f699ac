package hsmetrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(values ...string) string {
	return strings.Join([]string{
		"## htsjdk.samtools.metrics.StringHeader",
		"# CollectHsMetrics --INPUT /bam-dir/s1.bam",
		"",
		"## METRICS CLASS\tpicard.analysis.directed.HsMetrics",
		"BAIT_SET\tBAIT_TERRITORY\tMEAN_TARGET_COVERAGE\tSAMPLE\tLIBRARY\tREAD_GROUP",
		strings.Join(values, "\t"),
		"",
		"## HISTOGRAM\tjava.lang.Integer",
		"coverage_or_base_quality\thigh_quality_coverage_count",
		"0\t12",
	}, "\n")
}

func TestParse_DropsPerReadGroupColumns(t *testing.T) {
	rep, err := Parse(strings.NewReader(report("exome", "1000", "87.5", "", "", "")))
	require.NoError(t, err)

	assert.Equal(t, []string{"BAIT_SET", "BAIT_TERRITORY", "MEAN_TARGET_COVERAGE"}, rep.Columns)
	assert.Equal(t, []string{"exome", "1000", "87.5"}, rep.Values)
	v, ok := rep.Value("MEAN_TARGET_COVERAGE")
	assert.True(t, ok)
	assert.Equal(t, "87.5", v)
	_, ok = rep.Value("SAMPLE")
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader("# nothing here\n"))
	assert.ErrorIs(t, err, ErrNoMetrics)

	_, err = Parse(strings.NewReader(report("exome", "1000")))
	assert.ErrorContains(t, err, "2 values for 6 columns")

	_, err = Parse(strings.NewReader("## METRICS CLASS\tx\nA\tB\n"))
	assert.ErrorContains(t, err, "no values")
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.bam_hs_metrics.txt")
	require.NoError(t, os.WriteFile(path, []byte(report("exome", "1000", "87.5", "", "", "")), 0o644))

	rep, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, rep.Columns, 3)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTable_WriteTSV(t *testing.T) {
	var tbl Table
	s1, err := Parse(strings.NewReader(report("exome", "1000", "87.5", "", "", "")))
	require.NoError(t, err)
	s2, err := Parse(strings.NewReader(report("exome", "1000", "91.2", "", "", "")))
	require.NoError(t, err)

	require.NoError(t, tbl.Add("s1", s1))
	require.NoError(t, tbl.Add("s2", s2))
	assert.Equal(t, 2, tbl.Len())

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteTSV(&buf))
	assert.Equal(t,
		"SAMPLE\tBAIT_SET\tBAIT_TERRITORY\tMEAN_TARGET_COVERAGE\n"+
			"s1\texome\t1000\t87.5\n"+
			"s2\texome\t1000\t91.2\n",
		buf.String())
}

func TestTable_RejectsMismatches(t *testing.T) {
	var tbl Table
	require.NoError(t, tbl.Add("s1", Report{Columns: []string{"A", "B"}, Values: []string{"1", "2"}}))

	assert.ErrorContains(t, tbl.Add("s2", Report{Columns: []string{"A"}, Values: []string{"1"}}), "columns differ")
	assert.ErrorContains(t, tbl.Add("s3", Report{Columns: []string{"A", "B"}, Values: []string{"1"}}), "1 values for 2 columns")
	assert.ErrorContains(t, tbl.Add("s1", Report{Columns: []string{"A", "B"}, Values: []string{"3", "4"}}), "added twice")
	assert.Equal(t, 1, tbl.Len())
}
