package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"testhive/internal/config"
	"testhive/internal/coverage/registry"
	"testhive/internal/framework"
	"testhive/internal/mapping"
	"testhive/internal/sharding"
	"testhive/internal/watcher"
)

var (
	// Global flags
	verbose     bool
	projectRoot string
	configPath  string

	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "testhive",
	Short: "testhive - sharded test execution with unified coverage",
	Long: `testhive runs a project's test suite across parallel shards,
canonicalizes native coverage formats into one unified model, and
merges shard results back into a single report.

Shards can run in-process (--parallel) or as separate CI jobs that
each write a shard artifact, combined afterwards with 'testhive combine'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if projectRoot == "" {
			projectRoot, _ = os.Getwd()
		}
		path := configPath
		if path == "" {
			path = filepath.Join(projectRoot, ".testhive", "config.yaml")
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		if cfg.Logging.Format == "text" {
			zcfg = zap.NewDevelopmentConfig()
		}
		if lvl, lerr := zapcore.ParseLevel(cfg.Logging.Level); lerr == nil {
			zcfg.Level = zap.NewAtomicLevelAt(lvl)
		}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var (
	shardIndex  int
	shardCount  int
	shardOutput string
	parallel    bool
	withCover   bool
	testCommand string
	patterns    []string
	riskReport  string
)

// runCmd executes the test suite, optionally as one shard of many.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run tests, optionally sharded or in parallel",
	Long: `Runs the test suite through the configured test command.

Use --shard-index together with --shard-count to run one shard's slice
of the suite (for CI jobs), writing a shard artifact for 'combine'.
Use --parallel to shard automatically inside this process.`,
	RunE: runTests,
}

// combineCmd merges shard artifacts from parallel CI jobs.
var combineCmd = &cobra.Command{
	Use:   "combine [shard-file ...]",
	Short: "Combine shard results from parallel test runs",
	Long: `Reads shard artifacts produced by 'testhive run --shard-index',
merges test results and coverage reports, and prints the combined
summary.`,
	Args: cobra.MinimumNArgs(1),
	RunE: combineShards,
}

// watchCmd tracks coverage trends from native artifacts.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch coverage artifacts and track trends",
	Long: `Watches the project for native coverage artifacts (go cover
profiles, lcov.info, JaCoCo XML), records a snapshot whenever one
settles, and alerts on drops below the configured thresholds.`,
	RunE: watchCoverage,
}

// trendCmd reports the current coverage trend from stored history.
var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show the current coverage trend",
	RunE:  showTrend,
}

var combineOutput string

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&projectRoot, "path", "p", "", "Project root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <root>/.testhive/config.yaml)")

	runCmd.Flags().IntVar(&shardIndex, "shard-index", -1, "Zero-based shard index (requires --shard-count)")
	runCmd.Flags().IntVar(&shardCount, "shard-count", 0, "Total number of shards")
	runCmd.Flags().StringVar(&shardOutput, "shard-output", "", "Shard artifact path (default: .testhive/shard-result-<index>.json)")
	runCmd.Flags().BoolVar(&parallel, "parallel", false, "Shard automatically inside this process")
	runCmd.Flags().BoolVar(&withCover, "coverage", false, "Collect coverage with the detected adapter")
	runCmd.Flags().StringVar(&testCommand, "test-cmd", "go test ./...", "Test command to execute")
	runCmd.Flags().StringSliceVar(&patterns, "pattern", []string{"**/*_test.go"}, "Test file glob patterns")
	runCmd.Flags().StringVar(&riskReport, "risk-report", "", "JSON risk report (path -> score); shards get a risk-balanced mix")

	combineCmd.Flags().StringVar(&combineOutput, "output", "", "Path to write the combined artifact")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(combineCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(trendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTests(cmd *cobra.Command, args []string) error {
	if (shardIndex >= 0) != (shardCount > 0) {
		return fmt.Errorf("--shard-index and --shard-count must be used together")
	}

	ctx, cancel := signalContext()
	defer cancel()

	adapter, err := framework.NewCommandAdapter("command", patterns, strings.Fields(testCommand), logger)
	if err != nil {
		return err
	}
	timeout := cfg.ShardTimeout()

	var result *framework.RunResult

	switch {
	case shardIndex >= 0:
		allFiles, err := sharding.DiscoverTestFiles(projectRoot, patterns)
		if err != nil {
			return fmt.Errorf("test discovery failed: %w", err)
		}
		files, err := shardSubset(allFiles)
		if err != nil {
			return err
		}
		logger.Info("running shard",
			zap.Int("shard_index", shardIndex),
			zap.Int("shard_count", shardCount),
			zap.Int("files", len(files)),
			zap.Int("total_files", len(allFiles)))

		result, err = adapter.RunTests(ctx, projectRoot, framework.RunOptions{
			TestFiles: files,
			Timeout:   timeout,
		})
		if err != nil {
			return err
		}

	case parallel:
		result, err = sharding.RunTestsParallel(ctx, adapter, projectRoot, sharding.ParallelRunConfig{
			ShardCount:          cfg.Sharding.ShardCount,
			MinFilesForSharding: cfg.Sharding.MinFilesForSharding,
			Timeout:             timeout,
		}, logger)
		if err != nil {
			return err
		}

	default:
		result, err = adapter.RunTests(ctx, projectRoot, framework.RunOptions{Timeout: timeout})
		if err != nil {
			return err
		}
	}

	if withCover && result.Coverage == nil {
		if cov := registry.Detect(projectRoot, logger); cov != nil {
			logger.Info("collecting coverage", zap.String("adapter", cov.Name()))
			result.Coverage = cov.RunCoverage(ctx, projectRoot, nil, timeout)
		} else {
			logger.Warn("no coverage adapter detected")
		}
	}

	if shardIndex >= 0 {
		outputPath := shardOutput
		if outputPath == "" {
			outputPath = filepath.Join(projectRoot, ".testhive", fmt.Sprintf("shard-result-%d.json", shardIndex))
		}
		meta := sharding.ShardMetadata{
			ShardIndex:  shardIndex,
			ShardCount:  shardCount,
			AdapterName: adapter.Name(),
		}
		if err := sharding.WriteShardResult(result, outputPath, meta); err != nil {
			return err
		}
		logger.Info("shard artifact written", zap.String("path", outputPath))
	}

	printSummary(result)
	if !result.Success {
		return fmt.Errorf("tests failed: %d failed, %d errors of %d", result.Failed, result.Errors, result.Total())
	}
	return nil
}

// shardSubset picks this shard's slice of the discovered files. With a
// risk report the files are prioritized first, so round-robin hands
// every shard an interleaved mix of high and low risk tests.
func shardSubset(allFiles []string) ([]string, error) {
	if riskReport == "" {
		return sharding.SplitIntoShards(allFiles, shardIndex, shardCount)
	}

	scores, err := sharding.LoadRiskReport(riskReport)
	if err != nil {
		return nil, err
	}
	mapper, err := mapping.NewCachedMapper(
		mapping.NewConventionMapper(projectRoot), cfg.Sharding.MappingCacheSize)
	if err != nil {
		return nil, err
	}

	plan := sharding.Prioritize(allFiles, scores, mapper, sharding.PrioritizeOptions{
		DefaultScore: cfg.Sharding.DefaultRiskScore,
	})
	return sharding.DistributePrioritizedShards(plan, shardIndex, shardCount)
}

func combineShards(cmd *cobra.Command, args []string) error {
	var results []*framework.RunResult
	adapterNames := make(map[string]struct{})

	for _, path := range args {
		result, meta, err := sharding.ReadShardResult(path)
		if err != nil {
			return fmt.Errorf("failed to read shard file %s: %w", path, err)
		}
		results = append(results, result)
		adapterNames[meta.AdapterName] = struct{}{}
		logger.Info("loaded shard",
			zap.Int("shard_index", meta.ShardIndex),
			zap.Int("shard_count", meta.ShardCount),
			zap.String("path", path),
			zap.Int("tests", result.Total()))
	}

	if len(adapterNames) > 1 {
		names := make([]string, 0, len(adapterNames))
		for name := range adapterNames {
			names = append(names, name)
		}
		logger.Warn("shards used different adapters", zap.Strings("adapters", names))
	}

	merged := sharding.MergeRunResults(results)

	if combineOutput != "" {
		meta := sharding.ShardMetadata{ShardIndex: 0, ShardCount: 1, AdapterName: "combined"}
		if err := sharding.WriteShardResult(merged, combineOutput, meta); err != nil {
			return err
		}
		logger.Info("combined artifact written", zap.String("path", combineOutput))
	}

	printSummary(merged)
	if !merged.Success {
		return fmt.Errorf("combined result has failures: %d failed, %d errors", merged.Failed, merged.Errors)
	}
	return nil
}

func watchCoverage(cmd *cobra.Command, args []string) error {
	cov := registry.Detect(projectRoot, logger)
	if cov == nil {
		return fmt.Errorf("no coverage adapter detected for %s", projectRoot)
	}

	tracker := watcher.NewTracker(
		filepath.Join(projectRoot, filepath.FromSlash(cfg.Watcher.HistoryPath)),
		watcher.TrackerOptions{
			CoverageThreshold: cfg.Watcher.CoverageThreshold,
			DropThreshold:     cfg.Watcher.DropThreshold,
			HistoryLimit:      cfg.Watcher.HistoryLimit,
		}, logger)

	fw, err := watcher.NewFileWatcher(projectRoot, cov, tracker, watcher.FileWatcherOptions{
		OnReport: func(tr *watcher.TrendReport) {
			fmt.Printf("coverage %.2f%% line / %.2f%% function / %.2f%% branch (%s)\n",
				tr.Current.LineCoverage, tr.Current.FunctionCoverage,
				tr.Current.BranchCoverage, tr.Trend)
		},
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := fw.Start(ctx); err != nil {
		return err
	}
	logger.Info("watching coverage artifacts", zap.String("adapter", cov.Name()))

	<-ctx.Done()
	fw.Stop()
	return nil
}

func showTrend(cmd *cobra.Command, args []string) error {
	tracker := watcher.NewTracker(
		filepath.Join(projectRoot, filepath.FromSlash(cfg.Watcher.HistoryPath)),
		watcher.TrackerOptions{
			CoverageThreshold: cfg.Watcher.CoverageThreshold,
			DropThreshold:     cfg.Watcher.DropThreshold,
			HistoryLimit:      cfg.Watcher.HistoryLimit,
		}, logger)

	tr, err := tracker.CurrentTrend()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printSummary(result *framework.RunResult) {
	fmt.Printf("passed=%d failed=%d skipped=%d errors=%d duration=%s\n",
		result.Passed, result.Failed, result.Skipped, result.Errors,
		(time.Duration(result.DurationMS) * time.Millisecond).Round(time.Millisecond))
	if result.Coverage != nil {
		fmt.Printf("coverage: %.2f%% line / %.2f%% function / %.2f%% branch across %d files\n",
			result.Coverage.OverallLinePercentage(),
			result.Coverage.OverallFunctionPercentage(),
			result.Coverage.OverallBranchPercentage(),
			len(result.Coverage.Files))
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
