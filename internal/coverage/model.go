// Package coverage defines the unified coverage model that every native
// coverage format (Go cover profile, LCOV, JaCoCo XML) is canonicalized
// into. All percentages follow the vacuous-100% convention: an empty
// category reports 100.0, never NaN.
package coverage

// Line is the execution count observed for a single source line.
type Line struct {
	LineNumber     int `json:"line_number"`
	ExecutionCount int `json:"execution_count"`
}

// Covered reports whether the line was executed at least once.
func (l Line) Covered() bool { return l.ExecutionCount > 0 }

// Function is the execution count observed for a single function.
type Function struct {
	Name           string `json:"name"`
	LineNumber     int    `json:"line_number"`
	ExecutionCount int    `json:"execution_count"`
}

// Covered reports whether the function was executed at least once.
func (f Function) Covered() bool { return f.ExecutionCount > 0 }

// Branch is the taken/total measurement for a single branch arm.
// TotalCount is a structural property of the branch; TakenCount is the
// observed hit count.
type Branch struct {
	LineNumber int `json:"line_number"`
	BranchID   int `json:"branch_id"`
	TakenCount int `json:"taken_count"`
	TotalCount int `json:"total_count"`
}

// Percentage returns taken/total as 0-100, or 100.0 when TotalCount is 0.
func (b Branch) Percentage() float64 {
	if b.TotalCount == 0 {
		return 100.0
	}
	return float64(b.TakenCount) / float64(b.TotalCount) * 100.0
}

// File holds all coverage measurements for one source file.
type File struct {
	FilePath  string     `json:"file_path"`
	Lines     []Line     `json:"lines"`
	Functions []Function `json:"functions"`
	Branches  []Branch   `json:"branches"`
}

// LinePercentage returns the covered-line ratio as 0-100.
func (f *File) LinePercentage() float64 {
	if len(f.Lines) == 0 {
		return 100.0
	}
	covered := 0
	for _, l := range f.Lines {
		if l.Covered() {
			covered++
		}
	}
	return float64(covered) / float64(len(f.Lines)) * 100.0
}

// FunctionPercentage returns the covered-function ratio as 0-100.
func (f *File) FunctionPercentage() float64 {
	if len(f.Functions) == 0 {
		return 100.0
	}
	covered := 0
	for _, fn := range f.Functions {
		if fn.Covered() {
			covered++
		}
	}
	return float64(covered) / float64(len(f.Functions)) * 100.0
}

// BranchPercentage returns taken/total aggregated over all branches as 0-100.
func (f *File) BranchPercentage() float64 {
	taken, total := 0, 0
	for _, b := range f.Branches {
		taken += b.TakenCount
		total += b.TotalCount
	}
	if total == 0 {
		return 100.0
	}
	return float64(taken) / float64(total) * 100.0
}

// Report is the unified coverage report across all files in a project.
// Keys of Files are file paths; insertion order is irrelevant.
type Report struct {
	Files map[string]*File `json:"files"`
}

// NewReport returns an empty report with an initialized file map.
func NewReport() *Report {
	return &Report{Files: make(map[string]*File)}
}

// OverallLinePercentage aggregates covered/total line counts across all
// files. A file with zero lines contributes nothing to either side of the
// ratio, so it never skews the result.
func (r *Report) OverallLinePercentage() float64 {
	covered, total := 0, 0
	for _, f := range r.Files {
		total += len(f.Lines)
		for _, l := range f.Lines {
			if l.Covered() {
				covered++
			}
		}
	}
	if total == 0 {
		return 100.0
	}
	return float64(covered) / float64(total) * 100.0
}

// OverallFunctionPercentage aggregates covered/total function counts
// across all files.
func (r *Report) OverallFunctionPercentage() float64 {
	covered, total := 0, 0
	for _, f := range r.Files {
		total += len(f.Functions)
		for _, fn := range f.Functions {
			if fn.Covered() {
				covered++
			}
		}
	}
	if total == 0 {
		return 100.0
	}
	return float64(covered) / float64(total) * 100.0
}

// OverallBranchPercentage aggregates taken/total branch counts across
// all files.
func (r *Report) OverallBranchPercentage() float64 {
	taken, total := 0, 0
	for _, f := range r.Files {
		for _, b := range f.Branches {
			taken += b.TakenCount
			total += b.TotalCount
		}
	}
	if total == 0 {
		return 100.0
	}
	return float64(taken) / float64(total) * 100.0
}

// UncoveredFiles returns the paths of files with 0% line coverage.
func (r *Report) UncoveredFiles() []string {
	var paths []string
	for path, f := range r.Files {
		if f.LinePercentage() == 0.0 {
			paths = append(paths, path)
		}
	}
	return paths
}

// PartialFile is one entry returned by PartiallyCoveredFiles.
type PartialFile struct {
	Path       string
	Percentage float64
}

// PartiallyCoveredFiles returns files whose line coverage is above zero
// but below threshold.
func (r *Report) PartiallyCoveredFiles(threshold float64) []PartialFile {
	var out []PartialFile
	for path, f := range r.Files {
		pct := f.LinePercentage()
		if pct > 0.0 && pct < threshold {
			out = append(out, PartialFile{Path: path, Percentage: pct})
		}
	}
	return out
}
