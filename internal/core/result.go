package core

import (
	"fmt"
	"time"
)

// Status is the terminal outcome of one stage attempt.
type Status string

const (
	// StatusCached means the output was already valid and no tool ran.
	StatusCached Status = "cached"
	// StatusRan means the tool ran, exited 0, and left a valid output.
	StatusRan Status = "ran"
	// StatusFailed means planning or the tool failed.
	StatusFailed Status = "failed"
	// StatusSkipped means the stage was never attempted because an upstream
	// stage failed or the run was cancelled.
	StatusSkipped Status = "skipped"
)

// Succeeded reports whether dependents may consume the stage's artifact.
func (s Status) Succeeded() bool {
	return s == StatusCached || s == StatusRan
}

// StageResult is the outcome of one stage attempt.
type StageResult struct {
	Stage  string
	Sample string
	Status Status

	// Artifact is the planned output. It is the zero Artifact when planning
	// never got far enough to derive it.
	Artifact Artifact

	// Invoked is true when the tool was actually started.
	Invoked bool
	// ExitCode is the tool's exit status, -1 when it never exited normally.
	ExitCode int
	// Command is the rendered invocation, empty when planning failed.
	Command  string
	Duration time.Duration

	Err error
}

// Node returns the result's graph node name.
func (r StageResult) Node() string {
	return NodeName(r.Stage, r.Sample)
}

// NodeName names one stage instance: "stage" for cohort-level stages and
// "stage(sample)" for per-sample stages.
func NodeName(stage, sample string) string {
	if sample == "" {
		return stage
	}
	return fmt.Sprintf("%s(%s)", stage, sample)
}
