package gcnv

import (
	"path/filepath"
	"strings"

	"cnvflow/internal/core"
)

const (
	gatkDirName   = "GATK_gCNV"
	picardDirName = "Picard"
	cohortsDir    = "cohorts"

	intervalListExt = ".interval_list"
)

// DictionaryPath is where the sequence dictionary of fasta lives:
// <fasta-dir>/<fasta-stem>.dict.
func DictionaryPath(fasta string) string {
	dir, file := filepath.Split(fasta)
	stem := strings.TrimSuffix(file, ".gz")
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	return filepath.Join(dir, stem+".dict")
}

// IntervalListPath is <bed-dir>/<bed-file>.interval_list.
func IntervalListPath(bed string) string {
	return filepath.Clean(bed) + intervalListExt
}

// PreprocessedPath is <interval-dir>/preprocessed_<name>.interval_list, where
// name is the interval list's file name without its extension.
func PreprocessedPath(intervalList string) string {
	dir, file := filepath.Split(intervalList)
	name := strings.TrimSuffix(file, intervalListExt)
	return filepath.Join(dir, "preprocessed_"+name+intervalListExt)
}

// AnnotatedPath is <interval-dir>/annotated_<preprocessed-file>.
func AnnotatedPath(preprocessed string) string {
	dir, file := filepath.Split(preprocessed)
	return filepath.Join(dir, "annotated_"+file)
}

// FilteredPath is <interval-dir>/cohorts/<cohort>/filtered_<preprocessed-file>.
//
// The filtered list depends on the sample set as well as the intervals, so
// it is not written flat as <interval-dir>/filtered_<preprocessed-file>.
// Each cohort gets its own directory and two sample sets filtering the same
// preprocessed list never overwrite each other.
func FilteredPath(preprocessed, cohort string) string {
	dir, file := filepath.Split(preprocessed)
	return filepath.Join(dir, cohortsDir, cohort, "filtered_"+file)
}

// ReadCountsPath is <bam-dir>/GATK_gCNV/<sample>.hdf5.
func ReadCountsPath(bam, sample string) string {
	return filepath.Join(filepath.Dir(bam), gatkDirName, sample+".hdf5")
}

// HsMetricsPath is <bam-dir>/Picard/<bam-file>_hs_metrics.txt.
func HsMetricsPath(bam string) string {
	return filepath.Join(filepath.Dir(bam), picardDirName, filepath.Base(bam)+"_hs_metrics.txt")
}

// SampleName is the BAM file name without ".bam".
func SampleName(bam string) string {
	return strings.TrimSuffix(filepath.Base(bam), ".bam")
}

// CohortName returns label, or "cohort-<digest>" derived from the sample set
// when label is empty.
func CohortName(label string, samples []string) string {
	if label != "" {
		return label
	}
	return "cohort-" + core.SampleSetDigest(samples).Short()
}
