// Package gocover canonicalizes Go cover profiles into the unified
// coverage model. The profile is line-range based: each block line maps
// a span of source lines to an execution count, and overlapping blocks
// resolve per line to the maximum count observed.
package gocover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"testhive/internal/coverage"
	"testhive/internal/subproc"
)

// Block line: "file:startLine.startCol,endLine.endCol numStmts count"
var blockRe = regexp.MustCompile(`^(.+?):(\d+)\.\d+,(\d+)\.\d+\s+(\d+)\s+(\d+)\s*$`)

// Adapter runs `go test -coverprofile` and parses the profile.
type Adapter struct {
	runner *subproc.Runner
	logger *zap.Logger
}

// New returns a Go cover adapter. A nil logger is replaced with a nop
// logger.
func New(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{runner: subproc.NewRunner(logger), logger: logger}
}

func (a *Adapter) Name() string     { return "go_cover" }
func (a *Adapter) Language() string { return "go" }

// Detect reports whether projectRoot is a Go module.
func (a *Adapter) Detect(projectRoot string) bool {
	info, err := os.Stat(filepath.Join(projectRoot, "go.mod"))
	return err == nil && !info.IsDir()
}

// RunCoverage runs `go test -coverprofile=... <pkgs>` and parses the
// profile. Test files narrow the run to their packages; anything that
// goes wrong (timeout, missing go tool, missing profile) yields an
// empty report.
func (a *Adapter) RunCoverage(ctx context.Context, projectRoot string, testFiles []string, timeout time.Duration) *coverage.Report {
	profileName := fmt.Sprintf("testhive-cover-%s.out", uuid.NewString())
	profilePath := filepath.Join(projectRoot, profileName)

	args := []string{"test", "-coverprofile=" + profileName}
	args = append(args, packagesFor(projectRoot, testFiles)...)

	res, err := a.runner.Run(ctx, subproc.Command{
		Binary:           "go",
		Arguments:        args,
		WorkingDirectory: projectRoot,
		Timeout:          timeout,
	})
	if err != nil {
		a.logger.Error("go test -cover failed to start", zap.Error(err))
		return coverage.NewReport()
	}
	if res.TimedOut {
		a.logger.Warn("go test -cover timed out", zap.Duration("timeout", timeout))
		return coverage.NewReport()
	}

	if _, statErr := os.Stat(profilePath); statErr != nil {
		return coverage.NewReport()
	}
	report := a.ParseFile(profilePath)
	_ = os.Remove(profilePath)
	return report
}

// packagesFor maps the test files to their package directories relative
// to the project root. Files outside the root or without a .go suffix
// are ignored; no usable file falls back to ./... .
func packagesFor(projectRoot string, testFiles []string) []string {
	pkgs := make(map[string]struct{})
	for _, f := range testFiles {
		if filepath.Ext(f) != ".go" {
			continue
		}
		abs := f
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(projectRoot, f)
		}
		rel, err := filepath.Rel(projectRoot, filepath.Dir(abs))
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if rel == "." {
			pkgs["."] = struct{}{}
		} else {
			pkgs["./"+filepath.ToSlash(rel)] = struct{}{}
		}
	}
	if len(pkgs) == 0 {
		return []string{"./..."}
	}
	out := make([]string, 0, len(pkgs))
	for p := range pkgs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ParseFile parses a cover profile file. Malformed lines are skipped.
func (a *Adapter) ParseFile(path string) *coverage.Report {
	data, err := os.ReadFile(path)
	if err != nil {
		a.logger.Error("failed to read cover profile", zap.String("path", path), zap.Error(err))
		return coverage.NewReport()
	}
	return Parse(string(data))
}

// Parse parses cover profile text. Per file it accumulates, for every
// line in a block's span, the maximum count seen across blocks.
func Parse(text string) *coverage.Report {
	// file path -> line number -> max execution count
	fileLines := make(map[string]map[int]int)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "mode:") {
			continue
		}
		m := blockRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		filePath := m[1]
		startLine, _ := strconv.Atoi(m[2])
		endLine, _ := strconv.Atoi(m[3])
		count, _ := strconv.Atoi(m[5])

		counts := fileLines[filePath]
		if counts == nil {
			counts = make(map[int]int)
			fileLines[filePath] = counts
		}
		// Zero-count blocks still register their lines: an uncovered
		// line belongs in the report with count 0, it is not absent.
		for ln := startLine; ln <= endLine; ln++ {
			if existing, ok := counts[ln]; !ok || count > existing {
				counts[ln] = count
			}
		}
	}

	report := coverage.NewReport()
	for filePath, counts := range fileLines {
		numbers := make([]int, 0, len(counts))
		for ln := range counts {
			numbers = append(numbers, ln)
		}
		sort.Ints(numbers)

		lines := make([]coverage.Line, 0, len(numbers))
		for _, ln := range numbers {
			lines = append(lines, coverage.Line{LineNumber: ln, ExecutionCount: counts[ln]})
		}
		report.Files[filePath] = &coverage.File{FilePath: filePath, Lines: lines}
	}
	return report
}
