// Package watcher tracks coverage trends over time and alerts on drops
// below configured thresholds. A Tracker records snapshots into a bounded
// JSON history file; a Watcher feeds the tracker whenever a native
// coverage artifact changes on disk.
package watcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"testhive/internal/coverage"
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Trend indicators.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Snapshot records overall coverage at a point in time.
type Snapshot struct {
	Timestamp        time.Time         `json:"timestamp"`
	LineCoverage     float64           `json:"overall_line_coverage"`
	FunctionCoverage float64           `json:"overall_function_coverage"`
	BranchCoverage   float64           `json:"overall_branch_coverage"`
	FileCount        int               `json:"file_count"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Alert flags a coverage regression or a threshold violation.
type Alert struct {
	Severity         string  `json:"severity"`
	Message          string  `json:"message"`
	CurrentCoverage  float64 `json:"current"`
	PreviousCoverage float64 `json:"previous"`
	Drop             float64 `json:"drop"`
	Threshold        float64 `json:"threshold"`
}

// TrendReport compares the latest snapshot against the previous one.
type TrendReport struct {
	Current      Snapshot  `json:"current"`
	Previous     *Snapshot `json:"previous,omitempty"`
	Trend        string    `json:"trend"`
	Alerts       []Alert   `json:"alerts"`
	HistoryCount int       `json:"history_count"`
}

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	// CoverageThreshold is the minimum acceptable line coverage.
	CoverageThreshold float64
	// DropThreshold alerts when coverage drops by more than this many
	// percentage points between snapshots.
	DropThreshold float64
	// HistoryLimit bounds the stored snapshot history.
	HistoryLimit int
}

// DefaultTrackerOptions returns the default tracker thresholds.
func DefaultTrackerOptions() TrackerOptions {
	return TrackerOptions{
		CoverageThreshold: 80.0,
		DropThreshold:     5.0,
		HistoryLimit:      100,
	}
}

// Tracker records coverage snapshots into a JSON history file and
// derives trends and alerts. Safe for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	historyPath string
	opts        TrackerOptions
	logger      *zap.Logger
}

// NewTracker creates a Tracker persisting history at historyPath.
func NewTracker(historyPath string, opts TrackerOptions, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HistoryLimit < 1 {
		opts.HistoryLimit = DefaultTrackerOptions().HistoryLimit
	}
	return &Tracker{
		historyPath: historyPath,
		opts:        opts,
		logger:      logger,
	}
}

// Record appends a snapshot built from report, persists it, and returns
// the resulting trend report.
func (t *Tracker) Record(report *coverage.Report, metadata map[string]string) (*TrendReport, error) {
	if report == nil {
		return nil, fmt.Errorf("nil coverage report")
	}

	snapshot := Snapshot{
		Timestamp:        time.Now().UTC(),
		LineCoverage:     report.OverallLinePercentage(),
		FunctionCoverage: report.OverallFunctionPercentage(),
		BranchCoverage:   report.OverallBranchPercentage(),
		FileCount:        len(report.Files),
		Metadata:         metadata,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	history, err := t.loadHistory()
	if err != nil {
		t.logger.Warn("discarding unreadable coverage history", zap.Error(err))
		history = nil
	}

	var previous *Snapshot
	if len(history) > 0 {
		prev := history[len(history)-1]
		previous = &prev
	}

	history = append(history, snapshot)
	if err := t.saveHistory(history); err != nil {
		return nil, err
	}

	tr := &TrendReport{
		Current:      snapshot,
		Previous:     previous,
		Trend:        determineTrend(snapshot, previous),
		Alerts:       t.checkAlerts(snapshot, previous),
		HistoryCount: min(len(history), t.opts.HistoryLimit),
	}

	t.logger.Info("coverage snapshot recorded",
		zap.Float64("line_pct", snapshot.LineCoverage),
		zap.Float64("function_pct", snapshot.FunctionCoverage),
		zap.Float64("branch_pct", snapshot.BranchCoverage),
		zap.String("trend", tr.Trend),
		zap.Int("alerts", len(tr.Alerts)))

	return tr, nil
}

// CurrentTrend reports the trend from stored history without recording
// a new snapshot.
func (t *Tracker) CurrentTrend() (*TrendReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	history, err := t.loadHistory()
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no coverage history at %s", t.historyPath)
	}

	current := history[len(history)-1]
	var previous *Snapshot
	if len(history) >= 2 {
		prev := history[len(history)-2]
		previous = &prev
	}

	return &TrendReport{
		Current:      current,
		Previous:     previous,
		Trend:        determineTrend(current, previous),
		Alerts:       t.checkAlerts(current, previous),
		HistoryCount: len(history),
	}, nil
}

// History returns up to limit most recent snapshots (all when limit <= 0).
func (t *Tracker) History(limit int) ([]Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	history, err := t.loadHistory()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

func (t *Tracker) loadHistory() ([]Snapshot, error) {
	data, err := os.ReadFile(t.historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read coverage history: %w", err)
	}

	var history []Snapshot
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse coverage history: %w", err)
	}
	return history, nil
}

func (t *Tracker) saveHistory(history []Snapshot) error {
	if len(history) > t.opts.HistoryLimit {
		history = history[len(history)-t.opts.HistoryLimit:]
	}

	if err := os.MkdirAll(filepath.Dir(t.historyPath), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal coverage history: %w", err)
	}

	if err := os.WriteFile(t.historyPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write coverage history: %w", err)
	}
	return nil
}

// determineTrend compares the mean of the three overall percentages. A
// move of more than one percentage point counts as a trend.
func determineTrend(current Snapshot, previous *Snapshot) string {
	if previous == nil {
		return TrendStable
	}

	currentAvg := (current.LineCoverage + current.FunctionCoverage + current.BranchCoverage) / 3.0
	previousAvg := (previous.LineCoverage + previous.FunctionCoverage + previous.BranchCoverage) / 3.0

	diff := currentAvg - previousAvg
	switch {
	case diff > 1.0:
		return TrendIncreasing
	case diff < -1.0:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func (t *Tracker) checkAlerts(current Snapshot, previous *Snapshot) []Alert {
	var alerts []Alert

	if current.LineCoverage < t.opts.CoverageThreshold {
		prevPct := 0.0
		if previous != nil {
			prevPct = previous.LineCoverage
		}
		alerts = append(alerts, Alert{
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Line coverage (%.2f%%) is below threshold (%.2f%%)",
				current.LineCoverage, t.opts.CoverageThreshold),
			CurrentCoverage:  current.LineCoverage,
			PreviousCoverage: prevPct,
			Threshold:        t.opts.CoverageThreshold,
		})
	}

	if previous == nil {
		return alerts
	}

	if drop := previous.LineCoverage - current.LineCoverage; drop > t.opts.DropThreshold {
		alerts = append(alerts, Alert{
			Severity: SeverityCritical,
			Message: fmt.Sprintf("Line coverage dropped by %.2f percentage points (%.2f%% to %.2f%%)",
				drop, previous.LineCoverage, current.LineCoverage),
			CurrentCoverage:  current.LineCoverage,
			PreviousCoverage: previous.LineCoverage,
			Drop:             drop,
			Threshold:        t.opts.DropThreshold,
		})
	}
	if drop := previous.FunctionCoverage - current.FunctionCoverage; drop > t.opts.DropThreshold {
		alerts = append(alerts, Alert{
			Severity: SeverityCritical,
			Message: fmt.Sprintf("Function coverage dropped by %.2f percentage points (%.2f%% to %.2f%%)",
				drop, previous.FunctionCoverage, current.FunctionCoverage),
			CurrentCoverage:  current.FunctionCoverage,
			PreviousCoverage: previous.FunctionCoverage,
			Drop:             drop,
			Threshold:        t.opts.DropThreshold,
		})
	}

	return alerts
}
