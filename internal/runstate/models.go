package runstate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunStatus is the final status of a pipeline run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is the persisted record of one pipeline run.
type Run struct {
	RunID       string        `json:"run_id"`
	Target      string        `json:"target"`
	GraphHash   string        `json:"graph_hash"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Status      RunStatus     `json:"status"`
	Concurrency int           `json:"concurrency"`
	Samples     []string      `json:"samples"`
	Stages      []StageRecord `json:"stages"`
	// Terminal lists the host paths of the target artifacts on success.
	Terminal []string `json:"terminal"`
}

// StageRecord is one node's outcome.
type StageRecord struct {
	Node     string `json:"node"`
	Stage    string `json:"stage"`
	Sample   string `json:"sample,omitempty"`
	Status   string `json:"status"`
	Artifact string `json:"artifact,omitempty"`
	Identity string `json:"identity,omitempty"`
	// ExitCode is set only when the tool was started.
	ExitCode   *int   `json:"exit_code,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Command    string `json:"command,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (r Run) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if strings.TrimSpace(r.Target) == "" {
		errs = append(errs, errors.New("target is required"))
	}
	if r.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	if r.EndTime.Before(r.StartTime) {
		errs = append(errs, errors.New("end_time must not precede start_time"))
	}
	switch r.Status {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
	default:
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	if r.Samples == nil || r.Stages == nil || r.Terminal == nil {
		errs = append(errs, errors.New("samples, stages and terminal must be arrays (not null)"))
	}
	for i, s := range r.Stages {
		if strings.TrimSpace(s.Node) == "" {
			errs = append(errs, fmt.Errorf("stages[%d].node is required", i))
		}
	}
	return errors.Join(errs...)
}

// FailureClass groups run termination reasons.
type FailureClass string

const (
	// FailureClassGraph covers an unknown target or an invalid stage graph.
	FailureClassGraph FailureClass = "graph"
	// FailureClassPrecondition covers missing or invalid stage inputs and
	// stages without an invocation contract.
	FailureClassPrecondition FailureClass = "precondition"
	// FailureClassWorkspace covers volume mapping problems.
	FailureClassWorkspace FailureClass = "workspace"
	// FailureClassExecution covers a tool that failed or left no valid output.
	FailureClassExecution FailureClass = "execution"
	// FailureClassSystem covers cancellation and anything unclassified.
	FailureClassSystem FailureClass = "system"
)

// Failure is the recorded reason a run did not succeed.
type Failure struct {
	FailureClass FailureClass `json:"failure_class"`
	Node         *string      `json:"node,omitempty"`
	Identity     string       `json:"identity,omitempty"`
	ExitCode     *int         `json:"exit_code,omitempty"`
	ErrorCode    string       `json:"error_code"`
	ErrorMessage string       `json:"error_message"`
	StderrTail   string       `json:"stderr_tail,omitempty"`
}

func (f Failure) Validate() error {
	var errs []error
	switch f.FailureClass {
	case FailureClassGraph, FailureClassPrecondition, FailureClassWorkspace, FailureClassExecution, FailureClassSystem:
	default:
		errs = append(errs, fmt.Errorf("invalid failure_class %q", f.FailureClass))
	}
	if f.Node != nil && strings.TrimSpace(*f.Node) == "" {
		errs = append(errs, errors.New("node must not be empty when provided"))
	}
	if strings.TrimSpace(f.ErrorCode) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.ErrorMessage) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	return errors.Join(errs...)
}
