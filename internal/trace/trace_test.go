package trace

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestCanonicalJSON_IndependentOfRecordingOrder(t *testing.T) {
	a := ExecutionTrace{
		GraphHash: "g",
		Target:    "filtered_intervals",
		Events: []TraceEvent{
			{Kind: EventStageRan, Node: "preprocess_intervals", Reason: ReasonToolSucceeded, ExitCode: intPtr(0)},
			{Kind: EventStageFailed, Node: "collect_read_counts(s2)", Reason: ReasonToolExitNonZero, ExitCode: intPtr(1)},
			{Kind: EventStageSkipped, Node: "filter_intervals", Reason: ReasonUpstreamFailed, Cause: "collect_read_counts(s2)"},
		},
	}
	b := a
	b.Events = []TraceEvent{a.Events[2], a.Events[0], a.Events[1]}

	ja, err := a.CanonicalJSON()
	require.NoError(t, err)
	jb, err := b.CanonicalJSON()
	require.NoError(t, err)

	assert.Equal(t, string(ja), string(jb))
}

func TestCanonicalJSON_Format(t *testing.T) {
	tr := ExecutionTrace{
		GraphHash: "g",
		Target:    "annotated_intervals",
		Events: []TraceEvent{
			{Kind: EventStageCached, Node: "b", Reason: ReasonOutputValid, Artifact: "abc"},
			{Kind: EventStageRan, Node: "a", ExitCode: intPtr(0)},
		},
	}

	b, err := tr.CanonicalJSON()
	require.NoError(t, err)

	assert.Equal(t,
		`{"graphHash":"g","target":"annotated_intervals","events":[{"kind":"StageRan","node":"a","exitCode":0},{"kind":"StageCached","node":"b","reason":"OutputValid","artifact":"abc"}]}`,
		string(b))
}

func TestCanonicalJSON_EmptyEvents(t *testing.T) {
	b, err := ExecutionTrace{GraphHash: "g"}.CanonicalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"graphHash":"g","target":"","events":[]}`, string(b))
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&ExecutionTrace{}).Validate())
	assert.Error(t, (&ExecutionTrace{GraphHash: "g", Events: []TraceEvent{{Kind: "Nope", Node: "a"}}}).Validate())
	assert.Error(t, (&ExecutionTrace{GraphHash: "g", Events: []TraceEvent{{Kind: EventStageRan}}}).Validate())
}

func TestHash_Deterministic(t *testing.T) {
	tr := ExecutionTrace{GraphHash: "g", Events: []TraceEvent{{Kind: EventStageRan, Node: "a"}}}

	h1, err := tr.Hash()
	require.NoError(t, err)
	h2, err := tr.Hash()
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.Empty(t, ComputeTraceHash(nil))
}

func TestRecorder_ConcurrentRecordThenCanonicalTrace(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for _, n := range []string{"c", "a", "b"} {
		wg.Add(1)
		go func(node string) {
			defer wg.Done()
			r.Record(TraceEvent{Kind: EventStageRan, Node: node})
		}(n)
	}
	wg.Wait()

	tr := r.Trace("g", "read_counts")

	require.Len(t, tr.Events, 3)
	assert.Equal(t, "a", tr.Events[0].Node)
	assert.Equal(t, "c", tr.Events[2].Node)
}

type panickySink struct{}

func (panickySink) Record(TraceEvent) { panic("boom") }

func TestSafeRecord_SwallowsPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		SafeRecord(panickySink{}, TraceEvent{Kind: EventStageRan, Node: "a"})
		SafeRecord(nil, TraceEvent{Kind: EventStageRan, Node: "a"})
		SafeRecord(NopSink{}, TraceEvent{Kind: EventStageRan, Node: "a"})
	})
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	tr := ExecutionTrace{GraphHash: "g", Events: []TraceEvent{{Kind: EventStageRan, Node: "a"}}}

	require.NoError(t, WriteFile(path, tr))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	want, _ := tr.CanonicalJSON()
	assert.Equal(t, string(want)+"\n", string(b))
}
