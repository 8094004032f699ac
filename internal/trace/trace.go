// Package trace records the logical outcome of a pipeline run: which stage
// instances were cached, ran, failed, or were skipped, and why.
package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// ExecutionTrace is the canonical record of one pipeline run.
//
// It holds logical decisions only. There are no timestamps, durations, run
// ids, or error strings, so two runs that made the same decisions produce
// byte-identical traces regardless of scheduling.
type ExecutionTrace struct {
	GraphHash string       `json:"graphHash"`
	Target    string       `json:"target"`
	Events    []TraceEvent `json:"events"`
}

// TraceEventKind discriminates TraceEvent. The values are part of the
// canonical bytes; do not rename.
type TraceEventKind string

const (
	EventStageCached  TraceEventKind = "StageCached"
	EventStageRan     TraceEventKind = "StageRan"
	EventStageFailed  TraceEventKind = "StageFailed"
	EventStageSkipped TraceEventKind = "StageSkipped"
)

// Stable reason codes.
const (
	ReasonOutputValid         = "OutputValid"
	ReasonToolSucceeded       = "ToolSucceeded"
	ReasonToolExitNonZero     = "ToolExitNonZero"
	ReasonInvalidOutput       = "InvalidOutput"
	ReasonToolUnavailable     = "ToolUnavailable"
	ReasonPreconditionMissing = "PreconditionMissing"
	ReasonUnspecifiedStage    = "UnspecifiedStage"
	ReasonPlanFailed          = "PlanFailed"
	ReasonUpstreamFailed      = "UpstreamFailed"
	ReasonRunAborted          = "RunAborted"
	ReasonCancelled           = "Cancelled"
)

// TraceEvent is one logical decision about a stage instance.
type TraceEvent struct {
	Kind TraceEventKind `json:"kind"`
	// Node is the stage instance, e.g. "collect_read_counts(s1)".
	Node   string `json:"node"`
	Reason string `json:"reason,omitempty"`
	// Cause is the failing node that led to a skip.
	Cause string `json:"cause,omitempty"`
	// Artifact is the identity of the output, when it was planned.
	Artifact string `json:"artifact,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
}

// Validate checks basic invariants.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.GraphHash == "" {
		return errors.New("graphHash is required")
	}
	for i, e := range t.Events {
		if kindOrder(e.Kind) == unknownKind {
			return fmt.Errorf("events[%d].kind %q is unknown", i, e.Kind)
		}
		if e.Node == "" {
			return fmt.Errorf("events[%d].node is required", i)
		}
	}
	return nil
}

// Canonicalize sorts events by (node, kind, reason, cause, artifact). The
// order is independent of the order events were recorded in.
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	if len(t.Events) == 0 {
		t.Events = nil
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		if a.Cause != b.Cause {
			return a.Cause < b.Cause
		}
		return a.Artifact < b.Artifact
	})
}

const unknownKind = 1000

func kindOrder(k TraceEventKind) int {
	switch k {
	case EventStageCached:
		return 10
	case EventStageRan:
		return 20
	case EventStageFailed:
		return 30
	case EventStageSkipped:
		return 40
	default:
		return unknownKind
	}
}

// CanonicalJSON returns the canonical JSON encoding of a copy of the trace.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	cp := ExecutionTrace{GraphHash: t.GraphHash, Target: t.Target}
	cp.Events = append([]TraceEvent(nil), t.Events...)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	if cp.Events == nil {
		cp.Events = []TraceEvent{}
	}
	return json.Marshal(cp)
}

// Hash returns the sha256 hex of the canonical JSON bytes.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// WriteFile writes the canonical JSON encoding of t to path.
func WriteFile(path string, t ExecutionTrace) error {
	b, err := t.CanonicalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
