package backendstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_SnapshotEmptyByDefault(t *testing.T) {
	tr := New()
	assert.Empty(t, tr.Snapshot())
}

func TestTracker_AttemptStartedTracksCurrentConnections(t *testing.T) {
	tr := New()
	tr.AttemptStarted("backend-a")
	tr.AttemptStarted("backend-a")

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 2, snap[0].CurrentConnections)
}

func TestTracker_AttemptFinishedRecordsSuccessAndLatency(t *testing.T) {
	tr := New()
	tr.AttemptStarted("backend-a")
	tr.AttemptFinished("backend-a", "", 100)

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 0, snap[0].CurrentConnections)
	assert.EqualValues(t, 1, snap[0].TotalRequests)
	assert.EqualValues(t, 0, snap[0].TotalErrors)
	assert.Equal(t, 100.0, snap[0].AvgLatencyMs)
	assert.NotNil(t, snap[0].LastCheckTime)
}

func TestTracker_AttemptFinishedRecordsErrorAndMessage(t *testing.T) {
	tr := New()
	tr.AttemptStarted("backend-a")
	tr.AttemptFinished("backend-a", "connection refused", 50)

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.EqualValues(t, 1, snap[0].TotalErrors)
	assert.Equal(t, "connection refused", snap[0].LastError)
}

func TestTracker_AverageLatencyAcrossMultipleRequests(t *testing.T) {
	tr := New()
	tr.AttemptFinished("backend-a", "", 100)
	tr.AttemptFinished("backend-a", "", 300)

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.EqualValues(t, 2, snap[0].TotalRequests)
	assert.Equal(t, 200.0, snap[0].AvgLatencyMs)
}

func TestTracker_TracksMultipleBackendsIndependently(t *testing.T) {
	tr := New()
	tr.AttemptFinished("backend-a", "", 10)
	tr.AttemptFinished("backend-b", "boom", 20)

	snap := tr.Snapshot()
	require.Len(t, snap, 2)

	byName := map[string]Status{}
	for _, s := range snap {
		byName[s.Name] = s
	}
	assert.EqualValues(t, 0, byName["backend-a"].TotalErrors)
	assert.EqualValues(t, 1, byName["backend-b"].TotalErrors)
}
