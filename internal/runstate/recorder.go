package runstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cnvflow/internal/core"
	"cnvflow/internal/dag"
)

// Recorder writes run.json, and failure.json when the run did not succeed.
type Recorder struct {
	Store *Store
	Now   func() time.Time
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Record persists the outcome of one engine run. res may be nil when the
// run never resolved; the record then gets a fresh run ID and no stages.
// It returns the run ID written.
func (r *Recorder) Record(target core.Role, samples []string, concurrency int, started time.Time, res *dag.PipelineResult, runErr error) (string, error) {
	if r == nil || r.Store == nil {
		return "", errors.New("Store is required")
	}
	run := Run{
		RunID:       uuid.NewString(),
		Target:      string(target),
		StartTime:   started.UTC(),
		EndTime:     r.now(),
		Status:      RunStatusSucceeded,
		Concurrency: concurrency,
		Samples:     append([]string{}, samples...),
		Stages:      []StageRecord{},
		Terminal:    []string{},
	}
	if res != nil {
		run.RunID = res.RunID
		run.GraphHash = res.GraphHash.String()
		for _, sr := range res.Results {
			if sr.Stage == "" {
				continue
			}
			run.Stages = append(run.Stages, stageRecord(sr))
		}
		for _, a := range res.Terminal {
			run.Terminal = append(run.Terminal, a.HostPath())
		}
	}
	switch {
	case res != nil && res.Cancelled:
		run.Status = RunStatusCancelled
	case res == nil || !res.Succeeded() || runErr != nil:
		run.Status = RunStatusFailed
	}

	if err := r.Store.SaveRun(run); err != nil {
		return run.RunID, err
	}
	if f, failed := FailureFromResult(res, runErr); failed {
		if err := r.Store.SaveFailure(run.RunID, f); err != nil {
			return run.RunID, fmt.Errorf("recording failure: %w", err)
		}
	}
	return run.RunID, nil
}

func stageRecord(sr core.StageResult) StageRecord {
	rec := StageRecord{
		Node:       sr.Node(),
		Stage:      sr.Stage,
		Sample:     sr.Sample,
		Status:     string(sr.Status),
		DurationMS: sr.Duration.Milliseconds(),
		Command:    sr.Command,
	}
	if !sr.Artifact.IsZero() {
		rec.Artifact = sr.Artifact.HostPath()
		rec.Identity = sr.Artifact.Identity().String()
	}
	if sr.Invoked {
		code := sr.ExitCode
		rec.ExitCode = &code
	}
	if sr.Err != nil {
		rec.Error = sr.Err.Error()
	}
	return rec
}
