package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/missionflow/mission"
)

var reportSteps = []string{"validate", "transform", "publish"}

// bridgeTask is the task instance used across the bridge tests.
type bridgeTask struct {
	def  *mission.Definition
	args map[string]any
}

func (t *bridgeTask) Definition() *mission.Definition { return t.def }

// newTestBridge registers a three-step "report" type whose handlers append
// step names to invoked and fail when failures holds an error for the
// step.
func newTestBridge(t *testing.T, q Queue, invoked *[]string, failures map[string]error) *Bridge {
	t.Helper()
	return newTestBridgeWithLogger(t, q, invoked, failures, zap.NewNop())
}

func newTestBridgeWithLogger(t *testing.T, q Queue, invoked *[]string, failures map[string]error, logger *zap.Logger) *Bridge {
	t.Helper()

	var def *mission.Definition
	def = mission.NewDefinition("report", func(args map[string]any) (mission.Task, error) {
		return &bridgeTask{def: def, args: args}, nil
	})
	for _, name := range reportSteps {
		name := name
		require.NoError(t, def.DeclareStep(name, func(ctx context.Context, task mission.Task, status mission.Status) error {
			*invoked = append(*invoked, name)
			return failures[name]
		}))
	}

	registry := mission.NewRegistry()
	registry.MustRegister(def)

	engine := mission.NewEngine(zap.NewNop())
	return NewBridge(registry, engine, q, logger)
}

func dequeueOne(t *testing.T, q Queue) *Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	job, err := q.Dequeue(ctx, []string{mission.DefaultQueueName})
	require.NoError(t, err)
	return job
}

func TestBridgeEnqueueUsesDefinitionQueue(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()
	var invoked []string
	bridge := newTestBridge(t, q, &invoked, nil)

	args := map[string]any{"source": "a.csv"}
	jobID, err := bridge.Enqueue(context.Background(), "report", args)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job := dequeueOne(t, q)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, "report", job.Type)
	assert.Equal(t, mission.DefaultQueueName, job.Queue)
	assert.Equal(t, args, job.Args)

	fields, err := q.Status().Read(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, fields[StatusKeyState])
}

func TestBridgeEnqueueUnknownType(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()
	var invoked []string
	bridge := newTestBridge(t, q, &invoked, nil)

	_, err := bridge.Enqueue(context.Background(), "unknown", nil)
	assert.ErrorIs(t, err, mission.ErrNotRegistered)
}

func TestBridgeEnqueueToOverridesQueue(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()
	var invoked []string
	bridge := newTestBridge(t, q, &invoked, nil)

	_, err := bridge.EnqueueTo(context.Background(), "bulk", "report", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	job, err := q.Dequeue(ctx, []string{"bulk"})
	require.NoError(t, err)
	assert.Equal(t, "bulk", job.Queue)
	assert.Equal(t, "report", job.Type)
}

func TestBridgePerformCompletesJob(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()
	var invoked []string
	bridge := newTestBridge(t, q, &invoked, nil)

	jobID, err := bridge.Enqueue(context.Background(), "report", nil)
	require.NoError(t, err)
	job := dequeueOne(t, q)

	require.NoError(t, bridge.Perform(context.Background(), job))
	assert.Equal(t, reportSteps, invoked)

	fields, err := q.Status().Read(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, fields[StatusKeyState])
	assert.Equal(t, 3, fields[StatusKeyNum])
	assert.Equal(t, 3, fields[StatusKeyTotal])
	assert.Equal(t, mission.AllDoneLabel, fields[StatusKeyMessage])

	progress := decodeProgress(fields[StatusKeyProgress])
	assert.Equal(t, reportSteps, progress.Completed)
	assert.True(t, progress.Finished)
	assert.Zero(t, progress.Failures)
}

func TestBridgePerformResumesAcrossAttempts(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()
	boom := errors.New("transform blew up")
	failures := map[string]error{"transform": boom}
	var invoked []string
	bridge := newTestBridge(t, q, &invoked, failures)

	jobID, err := bridge.Enqueue(context.Background(), "report", nil)
	require.NoError(t, err)
	job := dequeueOne(t, q)

	err = bridge.Perform(context.Background(), job)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"validate", "transform"}, invoked)

	fields, err := q.Status().Read(context.Background(), jobID)
	require.NoError(t, err)
	assert.Contains(t, fields[StatusKeyError], "transform blew up")

	progress := decodeProgress(fields[StatusKeyProgress])
	assert.Equal(t, []string{"validate"}, progress.Completed)
	assert.Empty(t, progress.Working)
	assert.False(t, progress.Finished)
	assert.Equal(t, 1, progress.Failures, "failure count must be checkpointed after the attempt")

	// A second attempt on the same job resumes from the status store: the
	// completed step is skipped, the failed one re-runs.
	delete(failures, "transform")
	invoked = nil
	require.NoError(t, bridge.Perform(context.Background(), job))
	assert.Equal(t, []string{"transform", "publish"}, invoked)

	fields, err = q.Status().Read(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, fields[StatusKeyState])
	progress = decodeProgress(fields[StatusKeyProgress])
	assert.Equal(t, reportSteps, progress.Completed)
	assert.True(t, progress.Finished)
	assert.Equal(t, 1, progress.Failures)
}

func TestBridgePerformDefaultsMalformedProgress(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()
	var invoked []string
	bridge := newTestBridge(t, q, &invoked, nil)

	jobID, err := bridge.Enqueue(context.Background(), "report", nil)
	require.NoError(t, err)
	job := dequeueOne(t, q)

	require.NoError(t, q.Status().Merge(context.Background(), jobID, map[string]any{
		StatusKeyProgress: "not a progress blob",
	}))

	require.NoError(t, bridge.Perform(context.Background(), job))
	assert.Equal(t, reportSteps, invoked, "malformed checkpoint starts the mission over")
}

func TestBridgePerformUnknownType(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()
	var invoked []string
	bridge := newTestBridge(t, q, &invoked, nil)

	err := bridge.Perform(context.Background(), &Job{ID: "x", Type: "unknown"})
	assert.ErrorIs(t, err, mission.ErrNotRegistered)
}

func TestBridgeStepsShareStatusBlob(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()

	var def *mission.Definition
	def = mission.NewDefinition("counter", func(args map[string]any) (mission.Task, error) {
		return &bridgeTask{def: def, args: args}, nil
	})
	require.NoError(t, def.DeclareStep("count", func(ctx context.Context, task mission.Task, status mission.Status) error {
		return status.Set(ctx, "rows", 42)
	}))
	require.NoError(t, def.DeclareStep("check", func(ctx context.Context, task mission.Task, status mission.Status) error {
		rows, err := status.Get(ctx, "rows")
		if err != nil {
			return err
		}
		if rows != 42 {
			return errors.New("rows not visible across steps")
		}
		return nil
	}))
	registry := mission.NewRegistry()
	registry.MustRegister(def)
	bridge := NewBridge(registry, mission.NewEngine(zap.NewNop()), q, zap.NewNop())

	jobID, err := bridge.Enqueue(context.Background(), "counter", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	job, err := q.Dequeue(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, bridge.Perform(context.Background(), job))

	fields, err := q.Status().Read(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, 42, fields["rows"])
}

func TestBridgeRewriteRetryArgs(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()
	var invoked []string
	bridge := newTestBridge(t, q, &invoked, nil)

	t.Run("nil args", func(t *testing.T) {
		assert.Nil(t, bridge.RewriteRetryArgs(nil))
	})

	t.Run("args without progress pass through untouched", func(t *testing.T) {
		args := map[string]any{"source": "a.csv"}
		got := bridge.RewriteRetryArgs(args)
		assert.Equal(t, args, got)
	})

	t.Run("injected progress is stripped", func(t *testing.T) {
		args := map[string]any{
			"source":          "a.csv",
			StatusKeyProgress: map[string]any{"completed": []any{"validate"}},
		}
		got := bridge.RewriteRetryArgs(args)
		assert.Equal(t, map[string]any{"source": "a.csv"}, got)
		// The original is left alone; only the retried copy changes.
		assert.Contains(t, args, StatusKeyProgress)
	})
}

func TestBridgeOnFailureIsPassThrough(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()
	var invoked []string
	bridge := newTestBridge(t, q, &invoked, nil)

	cause := errors.New("final failure")
	assert.Same(t, cause, bridge.OnFailure(context.Background(), &Job{ID: "x"}, cause))
}

// recordingReporter retains every Progress it is handed, the way an
// external progress sink might.
type recordingReporter struct {
	snapshots []*mission.Progress
}

func (r *recordingReporter) Report(ctx context.Context, jobID string, index, total int, label string, p *mission.Progress) error {
	r.snapshots = append(r.snapshots, p)
	return nil
}

func TestBridgeReporterReceivesSnapshots(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()

	var invoked []string
	reporter := &recordingReporter{}

	var def *mission.Definition
	def = mission.NewDefinition("report", func(args map[string]any) (mission.Task, error) {
		return &bridgeTask{def: def, args: args}, nil
	})
	for _, name := range reportSteps {
		name := name
		require.NoError(t, def.DeclareStep(name, func(ctx context.Context, task mission.Task, status mission.Status) error {
			invoked = append(invoked, name)
			return nil
		}))
	}
	registry := mission.NewRegistry()
	registry.MustRegister(def)
	bridge := NewBridge(registry, mission.NewEngine(zap.NewNop()), q, zap.NewNop(), WithReporter(reporter))

	_, err := bridge.Enqueue(context.Background(), "report", nil)
	require.NoError(t, err)
	require.NoError(t, bridge.Perform(context.Background(), dequeueOne(t, q)))

	// One report per step plus the final all-done report, each a copy of
	// the state at that moment rather than an alias of the live record.
	require.Len(t, reporter.snapshots, 4)
	assert.Equal(t, "validate", reporter.snapshots[0].Working)
	assert.False(t, reporter.snapshots[0].Finished)
	assert.Equal(t, []string{"validate"}, reporter.snapshots[1].Completed)
	assert.True(t, reporter.snapshots[3].Finished)

	// A reporter mutating its retained snapshot never corrupts the others.
	reporter.snapshots[3].Completed[0] = "mutated"
	assert.Equal(t, "validate", reporter.snapshots[2].Completed[0])
}

func TestBridgeLogsRegisteredTypes(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	defer func() { _ = q.Close() }()

	core, logs := observer.New(zapcore.InfoLevel)
	var invoked []string
	_ = newTestBridgeWithLogger(t, q, &invoked, nil, zap.New(core))

	entries := logs.FilterMessage("job bridge ready").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"report"}, entries[0].ContextMap()["types"])
}

func TestDecodeProgress(t *testing.T) {
	t.Run("nil yields fresh", func(t *testing.T) {
		p := decodeProgress(nil)
		assert.Empty(t, p.Completed)
		assert.False(t, p.Finished)
	})

	t.Run("malformed yields fresh", func(t *testing.T) {
		p := decodeProgress("garbage")
		assert.Empty(t, p.Completed)

		p = decodeProgress(map[string]any{"completed": "not a list"})
		assert.Empty(t, p.Completed)
	})

	t.Run("round trip through plain JSON types", func(t *testing.T) {
		src := &mission.Progress{Working: "transform", Completed: []string{"validate"}, Failures: 2}
		got := decodeProgress(progressValue(src))
		assert.Equal(t, src, got)
	})
}
