package sharding

import (
	"sort"

	"testhive/internal/coverage"
	"testhive/internal/framework"
)

// MergeRunResults combines per-shard run results into one aggregate.
// Counts are summed and test cases concatenated in shard order;
// duration takes the max because shards run concurrently, so wall-clock
// time is bounded by the slowest shard, not the sum. Inputs are never
// mutated. An empty input yields an empty, non-successful result.
func MergeRunResults(results []*framework.RunResult) *framework.RunResult {
	aggregate := &framework.RunResult{}
	if len(results) == 0 {
		return aggregate
	}

	var reports []*coverage.Report
	for _, r := range results {
		aggregate.Passed += r.Passed
		aggregate.Failed += r.Failed
		aggregate.Skipped += r.Skipped
		aggregate.Errors += r.Errors
		if r.DurationMS > aggregate.DurationMS {
			aggregate.DurationMS = r.DurationMS
		}
		aggregate.TestCases = append(aggregate.TestCases, r.TestCases...)
		if r.Coverage != nil {
			reports = append(reports, r.Coverage)
		}
	}

	aggregate.Success = aggregate.Failed == 0 && aggregate.Errors == 0 && aggregate.Total() > 0
	aggregate.Coverage = MergeCoverageReports(reports)
	return aggregate
}

// MergeCoverageReports combines reports at the unified-model level.
// Line and function counts merge with max per identity, modeling "at
// least one shard executed it". Branch taken counts are summed across
// shards and total counts take the max, since the total is a structural
// property of the branch. An empty input yields nil: absence of
// coverage data, distinct from a report that is entirely 0%.
func MergeCoverageReports(reports []*coverage.Report) *coverage.Report {
	if len(reports) == 0 {
		return nil
	}

	merged := coverage.NewReport()
	for _, report := range reports {
		for path, file := range report.Files {
			existing, ok := merged.Files[path]
			if !ok {
				merged.Files[path] = &coverage.File{
					FilePath:  file.FilePath,
					Lines:     append([]coverage.Line(nil), file.Lines...),
					Functions: append([]coverage.Function(nil), file.Functions...),
					Branches:  append([]coverage.Branch(nil), file.Branches...),
				}
				continue
			}
			merged.Files[path] = mergeFile(existing, file)
		}
	}
	return merged
}

func mergeFile(a, b *coverage.File) *coverage.File {
	return &coverage.File{
		FilePath:  a.FilePath,
		Lines:     mergeLines(a.Lines, b.Lines),
		Functions: mergeFunctions(a.Functions, b.Functions),
		Branches:  mergeBranches(a.Branches, b.Branches),
	}
}

func mergeLines(a, b []coverage.Line) []coverage.Line {
	byLine := make(map[int]int, len(a)+len(b))
	for _, l := range a {
		byLine[l.LineNumber] = l.ExecutionCount
	}
	for _, l := range b {
		if count, ok := byLine[l.LineNumber]; !ok || l.ExecutionCount > count {
			byLine[l.LineNumber] = l.ExecutionCount
		}
	}

	numbers := make([]int, 0, len(byLine))
	for ln := range byLine {
		numbers = append(numbers, ln)
	}
	sort.Ints(numbers)

	out := make([]coverage.Line, 0, len(numbers))
	for _, ln := range numbers {
		out = append(out, coverage.Line{LineNumber: ln, ExecutionCount: byLine[ln]})
	}
	return out
}

type functionKey struct {
	name string
	line int
}

func mergeFunctions(a, b []coverage.Function) []coverage.Function {
	byKey := make(map[functionKey]int, len(a)+len(b))
	for _, f := range a {
		byKey[functionKey{f.Name, f.LineNumber}] = f.ExecutionCount
	}
	for _, f := range b {
		key := functionKey{f.Name, f.LineNumber}
		if count, ok := byKey[key]; !ok || f.ExecutionCount > count {
			byKey[key] = f.ExecutionCount
		}
	}

	keys := make([]functionKey, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].line < keys[j].line
	})

	out := make([]coverage.Function, 0, len(keys))
	for _, k := range keys {
		out = append(out, coverage.Function{Name: k.name, LineNumber: k.line, ExecutionCount: byKey[k]})
	}
	return out
}

type branchKey struct {
	line int
	id   int
}

func mergeBranches(a, b []coverage.Branch) []coverage.Branch {
	type takenTotal struct{ taken, total int }
	byKey := make(map[branchKey]takenTotal, len(a)+len(b))
	for _, br := range a {
		byKey[branchKey{br.LineNumber, br.BranchID}] = takenTotal{br.TakenCount, br.TotalCount}
	}
	for _, br := range b {
		key := branchKey{br.LineNumber, br.BranchID}
		prev := byKey[key]
		total := prev.total
		if br.TotalCount > total {
			total = br.TotalCount
		}
		byKey[key] = takenTotal{taken: prev.taken + br.TakenCount, total: total}
	}

	keys := make([]branchKey, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].line != keys[j].line {
			return keys[i].line < keys[j].line
		}
		return keys[i].id < keys[j].id
	})

	out := make([]coverage.Branch, 0, len(keys))
	for _, k := range keys {
		tt := byKey[k]
		out = append(out, coverage.Branch{
			LineNumber: k.line,
			BranchID:   k.id,
			TakenCount: tt.taken,
			TotalCount: tt.total,
		})
	}
	return out
}
