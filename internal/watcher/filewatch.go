package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"testhive/internal/coverage"
)

// FileWatcher watches a directory for native coverage artifacts and
// records a snapshot through the Tracker whenever one settles. Rapid
// successive writes to the same artifact are debounced.
type FileWatcher struct {
	mu          sync.Mutex
	fsw         *fsnotify.Watcher
	adapter     coverage.Adapter
	tracker     *Tracker
	watchDir    string
	patterns    []string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	onReport    func(*TrendReport)
	logger      *zap.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// FileWatcherOptions configures a FileWatcher.
type FileWatcherOptions struct {
	// Patterns are artifact base-name globs, e.g. "*.out", "lcov.info".
	Patterns []string
	// Debounce is how long an artifact must be quiet before it is parsed.
	Debounce time.Duration
	// OnReport is invoked with each recorded trend report. Optional.
	OnReport func(*TrendReport)
}

// NewFileWatcher creates a watcher over watchDir. Artifacts matching the
// patterns are parsed with adapter.ParseFile and recorded via tracker.
func NewFileWatcher(watchDir string, adapter coverage.Adapter, tracker *Tracker, opts FileWatcherOptions, logger *zap.Logger) (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"*.out", "lcov.info", "jacoco*.xml"}
	}

	return &FileWatcher{
		fsw:         fsw,
		adapter:     adapter,
		tracker:     tracker,
		watchDir:    watchDir,
		patterns:    opts.Patterns,
		debounceMap: make(map[string]time.Time),
		debounceDur: opts.Debounce,
		onReport:    opts.OnReport,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = true
	fw.mu.Unlock()

	if err := fw.fsw.Add(fw.watchDir); err != nil {
		fw.mu.Lock()
		fw.running = false
		fw.mu.Unlock()
		return err
	}
	fw.logger.Info("watching for coverage artifacts",
		zap.String("dir", fw.watchDir),
		zap.Strings("patterns", fw.patterns))

	go fw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (fw *FileWatcher) Stop() {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.stopCh)
	<-fw.doneCh

	if err := fw.fsw.Close(); err != nil {
		fw.logger.Error("failed to close fsnotify watcher", zap.Error(err))
	}
}

// IsWatching reports whether the event loop is running.
func (fw *FileWatcher) IsWatching() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) run(ctx context.Context) {
	defer close(fw.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-fw.stopCh:
			return

		case event, ok := <-fw.fsw.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.fsw.Errors:
			if !ok {
				return
			}
			fw.logger.Error("watch error", zap.Error(err))

		case <-ticker.C:
			fw.processSettled()
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !fw.matches(event.Name) {
		return
	}

	fw.mu.Lock()
	fw.debounceMap[event.Name] = time.Now()
	fw.mu.Unlock()
}

func (fw *FileWatcher) matches(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range fw.patterns {
		if ok, err := filepath.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

func (fw *FileWatcher) processSettled() {
	fw.mu.Lock()
	now := time.Now()
	var settled []string
	for path, eventTime := range fw.debounceMap {
		if now.Sub(eventTime) >= fw.debounceDur {
			settled = append(settled, path)
			delete(fw.debounceMap, path)
		}
	}
	fw.mu.Unlock()

	for _, path := range settled {
		fw.recordArtifact(path)
	}
}

func (fw *FileWatcher) recordArtifact(path string) {
	report := fw.adapter.ParseFile(path)
	if report == nil || len(report.Files) == 0 {
		fw.logger.Debug("ignoring empty coverage artifact", zap.String("path", path))
		return
	}

	tr, err := fw.tracker.Record(report, map[string]string{"artifact": path})
	if err != nil {
		fw.logger.Error("failed to record coverage snapshot",
			zap.String("path", path), zap.Error(err))
		return
	}

	for _, alert := range tr.Alerts {
		switch alert.Severity {
		case SeverityCritical:
			fw.logger.Error(alert.Message)
		default:
			fw.logger.Warn(alert.Message)
		}
	}

	if fw.onReport != nil {
		fw.onReport(tr)
	}
}
