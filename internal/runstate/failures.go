package runstate

import (
	"context"
	"errors"

	"cnvflow/internal/core"
	"cnvflow/internal/dag"
)

// Classify maps an error from resolving or running a pipeline onto a
// Failure. Node, identity, and exit code are left for the caller.
func Classify(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}
	f := Failure{ErrorMessage: err.Error()}

	var (
		unknown  *dag.UnknownRoleError
		missing  *core.MissingPreconditionError
		conflict *core.MountConflictError
		mapping  *core.MappingError
		toolErr  *core.ToolExecutionError
	)
	switch {
	case errors.As(err, &unknown):
		f.FailureClass, f.ErrorCode = FailureClassGraph, "UnknownRole"
	case errors.Is(err, dag.ErrCycleFound):
		f.FailureClass, f.ErrorCode = FailureClassGraph, "CycleFound"
	case errors.Is(err, dag.ErrInvalidGraph):
		f.FailureClass, f.ErrorCode = FailureClassGraph, "InvalidGraph"
	case errors.As(err, &missing):
		f.FailureClass, f.ErrorCode = FailureClassPrecondition, "MissingPrecondition"
	case errors.Is(err, core.ErrUnspecifiedStage):
		f.FailureClass, f.ErrorCode = FailureClassPrecondition, "UnspecifiedStage"
	case errors.As(err, &conflict):
		f.FailureClass, f.ErrorCode = FailureClassWorkspace, "MountConflict"
	case errors.As(err, &mapping):
		f.FailureClass, f.ErrorCode = FailureClassWorkspace, "UnmappedPath"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		f.FailureClass, f.ErrorCode = FailureClassSystem, "Cancelled"
	case errors.As(err, &toolErr):
		f.FailureClass = FailureClassExecution
		f.StderrTail = toolErr.StderrTail
		switch {
		case toolErr.ExitCode > 0:
			f.ErrorCode = "ToolExitNonZero"
		case toolErr.ExitCode == 0:
			f.ErrorCode = "InvalidOutput"
		default:
			f.ErrorCode = "ToolUnavailable"
		}
	default:
		f.FailureClass, f.ErrorCode = FailureClassSystem, "UnknownError"
	}
	return f, nil
}

// FailureFromResult builds the failure record of a finished run. It reports
// false when the run succeeded.
func FailureFromResult(res *dag.PipelineResult, runErr error) (Failure, bool) {
	if res != nil && res.Failure != nil {
		r := res.Failure
		err := r.Err
		if err == nil {
			err = errors.New("stage failed")
		}
		f, _ := Classify(err)
		node := r.Node()
		f.Node = &node
		if !r.Artifact.IsZero() {
			f.Identity = r.Artifact.Identity().String()
		}
		if r.Invoked {
			code := r.ExitCode
			f.ExitCode = &code
		}
		return f, true
	}
	if runErr != nil {
		f, _ := Classify(runErr)
		return f, true
	}
	return Failure{}, false
}
