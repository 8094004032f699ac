// Package gcnv defines the GATK germline CNV stage catalog: the Picard and
// GATK tools the pipeline wraps, where each one writes its output, and how
// caller-supplied files and samples enter a run.
//
// The catalog is static. A run asks the engine in package dag for a target
// role; every stage here only describes its inputs, its deterministic output
// path, and its argument list.
package gcnv
