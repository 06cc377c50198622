package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternSentinel/internal/model"
)

func openTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSQLiteRecorder_RecordScan(t *testing.T) {
	r := openTestRecorder(t)
	start := time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC)
	job := &model.AnalysisJob{
		ID:    "job-1",
		State: model.JobCompleted,
		Force: true,
		ResultList: []model.ScanPick{
			{Symbol: "2330.TW", DistanceMetric: "+0.5%", StatusLabel: "強烈買點", AdviceText: "watch neckline"},
			{Symbol: "2317.TW", DistanceMetric: "-1.2%", StatusLabel: "觀察"},
		},
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Minute),
	}
	require.NoError(t, r.RecordScan(job))

	picks, err := r.ScanPicks("job-1")
	require.NoError(t, err)
	require.Len(t, picks, 2)
	assert.Equal(t, "2330.TW", picks[0].Symbol)
	assert.Equal(t, "watch neckline", picks[0].Advice)

	var run ScanRun
	require.NoError(t, r.db.Get(&run, `SELECT job_id, force, state, error_text, pick_count, started_at, finished_at
		FROM scan_runs WHERE job_id = ?`, "job-1"))
	assert.True(t, run.Force)
	assert.Equal(t, 2, run.PickCount)
	assert.Equal(t, start.Unix(), run.StartedAt)
}

func TestSQLiteRecorder_RecordScanRejectsRunningJob(t *testing.T) {
	r := openTestRecorder(t)
	assert.Error(t, r.RecordScan(&model.AnalysisJob{ID: "x", State: model.JobRunning}))
}

func TestSQLiteRecorder_RecordCheck(t *testing.T) {
	r := openTestRecorder(t)
	now := time.Now()

	require.NoError(t, r.RecordCheck(&model.AnalysisResult{
		Symbol:      "2330.TW",
		StatusLabel: "符合買點",
		Passed:      true,
		Anchors:     model.Anchors{A: model.Price(600, "2024-05-13")},
		Lookback:    120,
		ReceivedAt:  now.Add(-time.Minute),
	}))
	require.NoError(t, r.RecordCheck(&model.AnalysisResult{
		Symbol:     "2317.TW",
		Interval:   model.IntervalHourly,
		Lookback:   60,
		ReceivedAt: now,
	}))

	rows, err := r.RecentChecks(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2317.TW", rows[0].Symbol)
	assert.Equal(t, "60m", rows[0].Interval)
	assert.Nil(t, rows[0].AnchorA)

	assert.Equal(t, "1d", rows[1].Interval)
	assert.True(t, rows[1].Passed)
	require.NotNil(t, rows[1].AnchorA)
	assert.Equal(t, 600.0, *rows[1].AnchorA)
	assert.Nil(t, rows[1].AnchorB)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordScan(&model.AnalysisJob{}))
	rows, err := r.RecentChecks(5)
	assert.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, r.Close())
}
