// Package core holds the artifact model of the pipeline.
//
// # Core Types
//
// Artifact: an immutable description of one file, with a deterministic
// Identity and a validity predicate (exists, regular, non-empty).
// Mapping: the per-invocation host to container path translation.
// Stage: one containerized tool step with required roles and one produced role.
// StageResult: the cached / ran / failed / skipped outcome of a stage attempt.
//
// Nothing in this package decides ordering; that is the dag package's job.
package core
