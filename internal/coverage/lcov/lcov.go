// Package lcov canonicalizes LCOV-format coverage text into the unified
// coverage model. LCOV is a record-based stream: key:value lines grouped
// per source file between SF: and end_of_record markers.
//
// The per-record accumulation state is an explicit value passed between
// line handlers; each handler returns a new state rather than mutating a
// shared record. The flush points (end marker, a new SF:, end of input)
// are the only places a record becomes a File in the report, so a record
// opened by malformed input without a path is dropped, never partially
// emitted.
package lcov

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"testhive/internal/coverage"
	"testhive/internal/subproc"
)

const (
	keySF       = "SF"
	keyFN       = "FN"
	keyFNDA     = "FNDA"
	keyDA       = "DA"
	keyBRDA     = "BRDA"
	endOfRecord = "end_of_record"

	outputName = "lcov.info"
)

// FN and FNDA values share the shape "<number>,<name>".
var numberNameRe = regexp.MustCompile(`^(\d+),\s*(.*)$`)

type fnDecl struct {
	line int
	name string
}

type branchRaw struct {
	line   int
	block  int
	branch int
	taken  int
}

// recordState is the immutable accumulation state for one SF record. A
// nil-path state means no record is open.
type recordState struct {
	path string
	fns  []fnDecl
	fnda map[string]int
	da   map[int]int
	brda []branchRaw
}

func emptyState() recordState {
	return recordState{fnda: map[string]int{}, da: map[int]int{}}
}

func (s recordState) open() bool { return s.path != "" }

// Adapter runs cargo-tarpaulin with LCOV output and parses the result.
// ParseFile accepts LCOV from any producer (lcov/geninfo, tarpaulin,
// vitest --coverage.reporter=lcov).
type Adapter struct {
	runner *subproc.Runner
	logger *zap.Logger
}

// New returns an LCOV adapter. A nil logger is replaced with a nop
// logger.
func New(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{runner: subproc.NewRunner(logger), logger: logger}
}

func (a *Adapter) Name() string     { return "lcov" }
func (a *Adapter) Language() string { return "rust" }

// Detect reports whether projectRoot is a Cargo project.
func (a *Adapter) Detect(projectRoot string) bool {
	info, err := os.Stat(filepath.Join(projectRoot, "Cargo.toml"))
	return err == nil && !info.IsDir()
}

// RunCoverage runs `cargo tarpaulin --out Lcov` and parses the output
// file. Test files are accepted for interface compatibility but
// tarpaulin always measures the whole project. Failures yield an empty
// report.
func (a *Adapter) RunCoverage(ctx context.Context, projectRoot string, testFiles []string, timeout time.Duration) *coverage.Report {
	_ = testFiles
	outPath := filepath.Join(projectRoot, outputName)

	res, err := a.runner.Run(ctx, subproc.Command{
		Binary:           "cargo",
		Arguments:        []string{"tarpaulin", "--out", "Lcov", "-o", outPath},
		WorkingDirectory: projectRoot,
		Timeout:          timeout,
	})
	if err != nil {
		a.logger.Error("cargo tarpaulin failed to start", zap.Error(err))
		return coverage.NewReport()
	}
	if res.TimedOut {
		a.logger.Warn("cargo tarpaulin timed out", zap.Duration("timeout", timeout))
		return coverage.NewReport()
	}

	if _, statErr := os.Stat(outPath); statErr != nil {
		return coverage.NewReport()
	}
	report := a.ParseFile(outPath)
	_ = os.Remove(outPath)
	return report
}

// ParseFile parses one LCOV file. Unreadable input yields an empty
// report.
func (a *Adapter) ParseFile(path string) *coverage.Report {
	data, err := os.ReadFile(path)
	if err != nil {
		a.logger.Error("failed to read lcov file", zap.String("path", path), zap.Error(err))
		return coverage.NewReport()
	}
	return Parse(string(data))
}

// Parse parses LCOV text into the unified model.
func Parse(text string) *coverage.Report {
	report := coverage.NewReport()
	state := emptyState()

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			if line == endOfRecord && state.open() {
				flush(report, state)
				state = emptyState()
			}
			continue
		}
		value = strings.TrimSpace(value)
		if key == keySF {
			if state.open() {
				flush(report, state)
			}
			state = emptyState()
			state.path = value
			continue
		}
		state = applyKey(state, key, value)
	}

	if state.open() {
		flush(report, state)
	}
	return report
}

// applyKey folds one key:value line into the record, returning a new
// state. Unknown keys and malformed values leave the state unchanged.
func applyKey(state recordState, key, value string) recordState {
	switch key {
	case keyFN:
		m := numberNameRe.FindStringSubmatch(value)
		if m == nil {
			return state
		}
		line, _ := strconv.Atoi(m[1])
		next := state
		next.fns = append(append([]fnDecl(nil), state.fns...), fnDecl{line: line, name: strings.TrimSpace(m[2])})
		return next

	case keyFNDA:
		m := numberNameRe.FindStringSubmatch(value)
		if m == nil {
			return state
		}
		count, _ := strconv.Atoi(m[1])
		next := state
		next.fnda = make(map[string]int, len(state.fnda)+1)
		for k, v := range state.fnda {
			next.fnda[k] = v
		}
		next.fnda[strings.TrimSpace(m[2])] = count
		return next

	case keyDA:
		parts := strings.Split(value, ",")
		if len(parts) < 2 {
			return state
		}
		line, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		count, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			return state
		}
		next := state
		next.da = make(map[int]int, len(state.da)+1)
		for k, v := range state.da {
			next.da[k] = v
		}
		next.da[line] = count
		return next

	case keyBRDA:
		parts := strings.Split(value, ",")
		if len(parts) < 4 {
			return state
		}
		line, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		block, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		branch, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err1 != nil || err2 != nil || err3 != nil {
			return state
		}
		taken := 0
		takenStr := strings.TrimSpace(parts[3])
		if takenStr != "-" {
			var err error
			taken, err = strconv.Atoi(takenStr)
			if err != nil {
				return state
			}
		}
		next := state
		next.brda = append(append([]branchRaw(nil), state.brda...), branchRaw{line: line, block: block, branch: branch, taken: taken})
		return next
	}
	return state
}

// flush materializes the open record into the report.
func flush(report *coverage.Report, state recordState) {
	lineNumbers := make([]int, 0, len(state.da))
	for ln := range state.da {
		lineNumbers = append(lineNumbers, ln)
	}
	sort.Ints(lineNumbers)

	lines := make([]coverage.Line, 0, len(lineNumbers))
	for _, ln := range lineNumbers {
		lines = append(lines, coverage.Line{LineNumber: ln, ExecutionCount: state.da[ln]})
	}

	functions := make([]coverage.Function, 0, len(state.fns))
	for _, fn := range state.fns {
		functions = append(functions, coverage.Function{
			Name:           fn.name,
			LineNumber:     fn.line,
			ExecutionCount: state.fnda[fn.name],
		})
	}

	// Branch coverage in LCOV is binary per arm: taken at least once or
	// not. The block/branch pair collapses into one id unique per line.
	branches := make([]coverage.Branch, 0, len(state.brda))
	for _, br := range state.brda {
		taken := br.taken
		if taken > 1 {
			taken = 1
		}
		branches = append(branches, coverage.Branch{
			LineNumber: br.line,
			BranchID:   br.block*1000 + br.branch,
			TakenCount: taken,
			TotalCount: 1,
		})
	}

	report.Files[state.path] = &coverage.File{
		FilePath:  state.path,
		Lines:     lines,
		Functions: functions,
		Branches:  branches,
	}
}
