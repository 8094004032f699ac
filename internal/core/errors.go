package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnspecifiedStage marks a stage whose argument contract has not been
// defined. Planning such a stage always fails.
var ErrUnspecifiedStage = errors.New("stage contract is unspecified")

// InvalidArtifactError reports an artifact whose file is missing, empty, or
// not a regular file.
type InvalidArtifactError struct {
	Artifact Artifact
	Reason   string
	Err      error
}

func (e *InvalidArtifactError) Error() string {
	return fmt.Sprintf("invalid artifact %s (%s): %s", e.Artifact.role, e.Artifact.hostPath, e.Reason)
}

func (e *InvalidArtifactError) Unwrap() error { return e.Err }

// MissingPreconditionError reports a stage planned without a valid artifact
// for one of its required roles.
type MissingPreconditionError struct {
	Stage  string
	Sample string
	Role   Role
	// Cause is set when an artifact for Role was supplied but is not valid.
	Cause error
}

func (e *MissingPreconditionError) Error() string {
	name := e.Stage
	if e.Sample != "" {
		name = fmt.Sprintf("%s(%s)", e.Stage, e.Sample)
	}
	if e.Cause != nil {
		return fmt.Sprintf("stage %s: precondition %s not met: %v", name, e.Role, e.Cause)
	}
	return fmt.Sprintf("stage %s: precondition %s not met: no artifact", name, e.Role)
}

func (e *MissingPreconditionError) Unwrap() error { return e.Cause }

// MountConflictError reports a mount request set that cannot be mapped.
type MountConflictError struct {
	Name    string
	HostDir string
	Msg     string
}

func (e *MountConflictError) Error() string {
	return fmt.Sprintf("mount %q (%s): %s", e.Name, e.HostDir, e.Msg)
}

// MappingError reports a host path that no mount in the mapping covers.
type MappingError struct {
	HostPath string
	Role     Role
}

func (e *MappingError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("no mount covers %s path %s", e.Role, e.HostPath)
	}
	return fmt.Sprintf("no mount covers path %s", e.HostPath)
}

// ToolExecutionError reports a tool that exited non-zero, could not be
// started, or exited zero without leaving a valid output.
type ToolExecutionError struct {
	Stage    string
	Sample   string
	ExitCode int
	// StderrTail is the last lines of the tool's stderr, for diagnostics only.
	StderrTail string
	Err        error
}

func (e *ToolExecutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s", e.Stage)
	if e.Sample != "" {
		fmt.Fprintf(&b, "(%s)", e.Sample)
	}
	fmt.Fprintf(&b, ": tool exited %d", e.ExitCode)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// tail returns the last n lines of b.
func tail(b []byte, n int) string {
	s := strings.TrimRight(string(NormalizeStderr(b)), "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
