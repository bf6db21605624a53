package watcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"testhive/internal/coverage"
)

func reportWithLineCoverage(covered, total int) *coverage.Report {
	report := coverage.NewReport()
	file := &coverage.File{FilePath: "main.go"}
	for i := 1; i <= total; i++ {
		count := 0
		if i <= covered {
			count = 1
		}
		file.Lines = append(file.Lines, coverage.Line{LineNumber: i, ExecutionCount: count})
	}
	report.Files["main.go"] = file
	return report
}

func newTestTracker(t *testing.T, opts TrackerOptions) *Tracker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history", "coverage.json")
	return NewTracker(path, opts, zap.NewNop())
}

func TestRecordFirstSnapshot(t *testing.T) {
	tracker := newTestTracker(t, DefaultTrackerOptions())

	tr, err := tracker.Record(reportWithLineCoverage(9, 10), map[string]string{"commit": "abc123"})
	require.NoError(t, err)

	assert.InDelta(t, 90.0, tr.Current.LineCoverage, 0.001)
	assert.Equal(t, 1, tr.Current.FileCount)
	assert.Nil(t, tr.Previous)
	assert.Equal(t, TrendStable, tr.Trend)
	assert.Empty(t, tr.Alerts)
	assert.Equal(t, 1, tr.HistoryCount)
}

func TestRecordDetectsTrends(t *testing.T) {
	tracker := newTestTracker(t, DefaultTrackerOptions())

	_, err := tracker.Record(reportWithLineCoverage(85, 100), nil)
	require.NoError(t, err)

	tr, err := tracker.Record(reportWithLineCoverage(95, 100), nil)
	require.NoError(t, err)
	assert.Equal(t, TrendIncreasing, tr.Trend)
	require.NotNil(t, tr.Previous)
	assert.InDelta(t, 85.0, tr.Previous.LineCoverage, 0.001)

	tr, err = tracker.Record(reportWithLineCoverage(92, 100), nil)
	require.NoError(t, err)
	assert.Equal(t, TrendDecreasing, tr.Trend)
}

func TestBelowThresholdWarns(t *testing.T) {
	tracker := newTestTracker(t, DefaultTrackerOptions())

	tr, err := tracker.Record(reportWithLineCoverage(7, 10), nil)
	require.NoError(t, err)

	require.Len(t, tr.Alerts, 1)
	assert.Equal(t, SeverityWarning, tr.Alerts[0].Severity)
	assert.Contains(t, tr.Alerts[0].Message, "below threshold")
	assert.InDelta(t, 70.0, tr.Alerts[0].CurrentCoverage, 0.001)
}

func TestDropTriggersCriticalAlert(t *testing.T) {
	tracker := newTestTracker(t, DefaultTrackerOptions())

	_, err := tracker.Record(reportWithLineCoverage(98, 100), nil)
	require.NoError(t, err)

	tr, err := tracker.Record(reportWithLineCoverage(90, 100), nil)
	require.NoError(t, err)

	require.Len(t, tr.Alerts, 1)
	alert := tr.Alerts[0]
	assert.Equal(t, SeverityCritical, alert.Severity)
	assert.InDelta(t, 8.0, alert.Drop, 0.001)
	assert.InDelta(t, 98.0, alert.PreviousCoverage, 0.001)
}

func TestSmallDropStaysQuiet(t *testing.T) {
	tracker := newTestTracker(t, DefaultTrackerOptions())

	_, err := tracker.Record(reportWithLineCoverage(98, 100), nil)
	require.NoError(t, err)

	tr, err := tracker.Record(reportWithLineCoverage(95, 100), nil)
	require.NoError(t, err)
	assert.Empty(t, tr.Alerts)
}

func TestHistoryBounded(t *testing.T) {
	opts := DefaultTrackerOptions()
	opts.HistoryLimit = 3
	tracker := newTestTracker(t, opts)

	for i := 0; i < 5; i++ {
		_, err := tracker.Record(reportWithLineCoverage(90+i, 100), nil)
		require.NoError(t, err)
	}

	history, err := tracker.History(0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	// Oldest snapshots are dropped first.
	assert.InDelta(t, 92.0, history[0].LineCoverage, 0.001)
	assert.InDelta(t, 94.0, history[2].LineCoverage, 0.001)
}

func TestCurrentTrendFromHistory(t *testing.T) {
	tracker := newTestTracker(t, DefaultTrackerOptions())

	_, err := tracker.CurrentTrend()
	assert.Error(t, err, "no history yet")

	_, err = tracker.Record(reportWithLineCoverage(85, 100), nil)
	require.NoError(t, err)
	_, err = tracker.Record(reportWithLineCoverage(95, 100), nil)
	require.NoError(t, err)

	tr, err := tracker.CurrentTrend()
	require.NoError(t, err)
	assert.Equal(t, TrendIncreasing, tr.Trend)
	assert.Equal(t, 2, tr.HistoryCount)
	require.NotNil(t, tr.Previous)
	assert.InDelta(t, 85.0, tr.Previous.LineCoverage, 0.001)
}

func TestRecordNilReport(t *testing.T) {
	tracker := newTestTracker(t, DefaultTrackerOptions())
	_, err := tracker.Record(nil, nil)
	assert.Error(t, err)
}
