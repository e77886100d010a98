package mission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgressIsEmpty(t *testing.T) {
	p := NewProgress()

	assert.Empty(t, p.Working)
	assert.Empty(t, p.Completed)
	assert.False(t, p.Finished)
	assert.Zero(t, p.Failures)
}

func TestProgressStartSetsWorking(t *testing.T) {
	p := NewProgress()

	p.Start("validate")

	assert.Equal(t, "validate", p.Working)
	assert.Empty(t, p.Completed)
}

func TestProgressStartPromotesPreviousStep(t *testing.T) {
	p := NewProgress()

	p.Start("validate")
	p.Start("transform")

	assert.Equal(t, "transform", p.Working)
	assert.Equal(t, []string{"validate"}, p.Completed)
}

func TestProgressStartSameStepDoesNotPromote(t *testing.T) {
	// A crash that left the step in flight must re-run it, never count
	// it as done.
	p := NewProgress()
	p.Start("transform")

	p.Start("transform")

	assert.Equal(t, "transform", p.Working)
	assert.Empty(t, p.Completed)
}

func TestProgressStartNeverDuplicatesCompleted(t *testing.T) {
	p := &Progress{Completed: []string{"validate"}}
	p.Working = "validate"

	p.Start("transform")

	assert.Equal(t, []string{"validate"}, p.Completed)
	assert.Equal(t, "transform", p.Working)
}

func TestProgressStartReopensFinished(t *testing.T) {
	p := NewProgress()
	p.Finish()

	p.Start("validate")

	assert.False(t, p.Finished, "a finished record with a step in flight is contradictory")
	assert.Equal(t, "validate", p.Working)
}

func TestProgressStartRemovesStepFromCompleted(t *testing.T) {
	p := NewProgress()
	p.Start("validate")
	p.Start("transform")

	// Restarting an already-completed step takes it out of the completed
	// list: it is running again, not done.
	p.Start("validate")

	assert.Equal(t, "validate", p.Working)
	assert.Equal(t, []string{"transform"}, p.Completed)
	assert.False(t, p.IsComplete("validate"))
	assert.False(t, p.Finished)
}

func TestProgressStopWorkingClearsWithoutCompleting(t *testing.T) {
	p := NewProgress()
	p.Start("transform")

	p.StopWorking()

	assert.Empty(t, p.Working)
	assert.False(t, p.IsComplete("transform"))
}

func TestProgressFinishFlushesWorking(t *testing.T) {
	p := NewProgress()
	p.Start("validate")
	p.Start("transform")

	p.Finish()

	assert.True(t, p.Finished)
	assert.Empty(t, p.Working)
	assert.Equal(t, []string{"validate", "transform"}, p.Completed)
}

func TestProgressFinishIsIdempotent(t *testing.T) {
	p := &Progress{Completed: []string{"validate", "transform"}, Finished: true}

	p.Finish()

	assert.True(t, p.Finished)
	assert.Equal(t, []string{"validate", "transform"}, p.Completed)
}

func TestProgressIsComplete(t *testing.T) {
	p := &Progress{Completed: []string{"validate"}}

	assert.True(t, p.IsComplete("validate"))
	assert.False(t, p.IsComplete("transform"))
}

func TestProgressClone(t *testing.T) {
	p := &Progress{Working: "transform", Completed: []string{"validate"}, Failures: 2}

	clone := p.Clone()
	clone.Start("publish")
	clone.Failures++

	assert.Equal(t, "transform", p.Working)
	assert.Equal(t, []string{"validate"}, p.Completed)
	assert.Equal(t, 2, p.Failures)
}

func TestProgressSerializedLayout(t *testing.T) {
	t.Run("empty omits working and finished", func(t *testing.T) {
		data, err := json.Marshal(NewProgress())
		require.NoError(t, err)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.NotContains(t, raw, "working")
		assert.NotContains(t, raw, "finished")
		assert.Contains(t, raw, "completed")
		assert.Contains(t, raw, "failures")
	})

	t.Run("round trip", func(t *testing.T) {
		p := &Progress{Working: "transform", Completed: []string{"validate"}, Failures: 1}
		data, err := json.Marshal(p)
		require.NoError(t, err)

		var got Progress
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, *p, got)
	})

	t.Run("finished layout", func(t *testing.T) {
		p := &Progress{Completed: []string{"validate"}, Finished: true}
		data, err := json.Marshal(p)
		require.NoError(t, err)
		assert.JSONEq(t, `{"completed":["validate"],"finished":true,"failures":0}`, string(data))
	})
}
