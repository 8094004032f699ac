package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// Role names the kind of file an artifact is. Every stage produces exactly one
// role and requires an ordered list of roles.
type Role string

// Source roles are supplied by the caller.
const (
	RoleReferenceFasta     Role = "reference_fasta"
	RoleSequenceDictionary Role = "sequence_dictionary"
	RoleBed                Role = "bed"
	RoleMappabilityTrack   Role = "mappability_track"
	RoleAlignment          Role = "alignment"
)

// Produced roles are written by stages.
const (
	RoleIntervalList          Role = "interval_list"
	RolePreprocessedIntervals Role = "preprocessed_intervals"
	RoleAnnotatedIntervals    Role = "annotated_intervals"
	RoleReadCounts            Role = "read_counts"
	RoleFilteredIntervals     Role = "filtered_intervals"
	RolePloidyModel           Role = "ploidy_model"
	RoleCNVCalls              Role = "cnv_calls"
	RoleHsMetrics             Role = "hs_metrics"
)

// Artifact describes one file that either a stage produced or the caller
// supplied. Artifacts are values: once built they are never mutated, and a
// changed input yields a new artifact with a new identity.
//
// An Artifact is a description, not a proof of existence. Whether the file is
// present is decided by IsValid at the moment it is needed.
type Artifact struct {
	identity Identity
	role     Role
	hostPath string
	stage    string
	sample   string
}

// Describe builds the artifact for a caller-supplied file. It does not touch
// the filesystem.
func Describe(role Role, hostPath string) Artifact {
	clean := filepath.Clean(hostPath)
	return Artifact{
		identity: SourceIdentity(role, clean),
		role:     role,
		hostPath: clean,
	}
}

// DescribeSample is Describe for a per-sample source file such as an alignment.
func DescribeSample(role Role, hostPath, sample string) Artifact {
	a := Describe(role, hostPath)
	a.sample = sample
	return a
}

// Derive builds the artifact a stage will produce at hostPath given its input
// artifacts.
func Derive(role Role, hostPath, stage, sample string, inputs []Artifact) Artifact {
	ids := make([]Identity, len(inputs))
	for i, in := range inputs {
		ids[i] = in.identity
	}
	return Artifact{
		identity: DerivedIdentity(stage, sample, ids),
		role:     role,
		hostPath: filepath.Clean(hostPath),
		stage:    stage,
		sample:   sample,
	}
}

func (a Artifact) Identity() Identity { return a.identity }

func (a Artifact) Role() Role { return a.role }

func (a Artifact) HostPath() string { return a.hostPath }

// Stage is the producing stage name, empty for source artifacts.
func (a Artifact) Stage() string { return a.stage }

// Sample is the sample the artifact belongs to, empty for cohort-level files.
func (a Artifact) Sample() string { return a.sample }

// IsZero reports whether a is the zero Artifact.
func (a Artifact) IsZero() bool { return a.identity == "" }

func (a Artifact) String() string {
	return fmt.Sprintf("%s[%s]@%s", a.role, a.identity.Short(), a.hostPath)
}

// IsValid reports whether the artifact's file exists, is a regular file, and
// is non-empty. Existence alone is not enough: a zero-byte file left by a
// crashed tool is treated as absent.
func IsValid(a Artifact) bool {
	return Check(a) == nil
}

// Check is IsValid with the reason: it returns nil for a valid artifact and an
// *InvalidArtifactError otherwise.
func Check(a Artifact) error {
	if a.hostPath == "" {
		return &InvalidArtifactError{Artifact: a, Reason: "empty host path"}
	}
	info, err := os.Stat(a.hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &InvalidArtifactError{Artifact: a, Reason: "missing", Err: err}
		}
		return &InvalidArtifactError{Artifact: a, Reason: "stat failed", Err: err}
	}
	if !info.Mode().IsRegular() {
		return &InvalidArtifactError{Artifact: a, Reason: "not a regular file"}
	}
	if info.Size() == 0 {
		return &InvalidArtifactError{Artifact: a, Reason: "empty file"}
	}
	return nil
}

// ResolveContainerPath translates the artifact's host path into the container
// namespace of mapping. It fails with *MappingError when no mount covers it.
func ResolveContainerPath(a Artifact, mapping Mapping) (string, error) {
	p, ok := mapping.Resolve(a.hostPath)
	if !ok {
		return "", &MappingError{HostPath: a.hostPath, Role: a.role}
	}
	return p, nil
}
