package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/meta"
)

func TestNewJobStartsIdle(t *testing.T) {
	r := NewRegistry()
	id := r.NewJob(meta.JobScan)
	require.Len(t, id, 8)

	state, err := r.State(id)
	require.NoError(t, err)
	assert.Equal(t, id, state.ID)
	assert.Equal(t, meta.StatusIdle, state.Status)
	assert.Equal(t, meta.JobScan, state.JobType)
	assert.Equal(t, 1, state.ProgressTotal)
	assert.False(t, state.CreatedAt.IsZero())
	assert.True(t, state.FinishedAt.IsZero())
}

func TestUnknownJob(t *testing.T) {
	r := NewRegistry()

	_, err := r.State("ffffffff")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = r.Items("ffffffff")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.ErrorIs(t, r.Cancel("ffffffff"), ErrJobNotFound)
	assert.False(t, r.Cancelled("ffffffff"))
}

func TestTerminalStatusIsFinal(t *testing.T) {
	r := NewRegistry()
	id := r.NewJob(meta.JobScan)

	r.SetStatus(id, meta.StatusRunning, "working")
	r.SetStatus(id, meta.StatusCancelled, "stopped")

	state, err := r.State(id)
	require.NoError(t, err)
	assert.Equal(t, meta.StatusCancelled, state.Status)
	assert.False(t, state.FinishedAt.IsZero())
	finishedAt := state.FinishedAt

	// A late worker must not resurrect or re-finish the job.
	r.SetStatus(id, meta.StatusDone, "all done")
	r.SetStatus(id, meta.StatusRunning, "zombie")

	state, err = r.State(id)
	require.NoError(t, err)
	assert.Equal(t, meta.StatusCancelled, state.Status)
	assert.Equal(t, "stopped", state.Message)
	assert.Equal(t, finishedAt, state.FinishedAt)
}

func TestSetProgressFloorsTotal(t *testing.T) {
	r := NewRegistry()
	id := r.NewJob(meta.JobScan)

	r.SetProgress(id, 0, 0, "starting")
	state, err := r.State(id)
	require.NoError(t, err)
	assert.Equal(t, 0, state.ProgressIndex)
	assert.Equal(t, 1, state.ProgressTotal)

	r.SetProgress(id, 3, 10, "going")
	state, err = r.State(id)
	require.NoError(t, err)
	assert.Equal(t, 3, state.ProgressIndex)
	assert.Equal(t, 10, state.ProgressTotal)
	assert.Equal(t, "going", state.Message)
}

func TestCancelIsIdempotent(t *testing.T) {
	r := NewRegistry()
	id := r.NewJob(meta.JobScan)

	require.NoError(t, r.Cancel(id))
	require.NoError(t, r.Cancel(id))
	assert.True(t, r.Cancelled(id))
}

func TestItemsAreSnapshots(t *testing.T) {
	r := NewRegistry()
	id := r.NewJob(meta.JobScan)

	r.AddItems(id, []meta.MediaItem{{ID: "aaaaaaaa", URL: "https://x/a.jpg"}})

	items, err := r.Items(id)
	require.NoError(t, err)
	require.Len(t, items, 1)

	items[0].URL = "mutated"

	again, err := r.Items(id)
	require.NoError(t, err)
	assert.Equal(t, "https://x/a.jpg", again[0].URL)
}

func TestJobIDsAreUnique(t *testing.T) {
	r := NewRegistry()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := r.NewJob(meta.JobScan)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
