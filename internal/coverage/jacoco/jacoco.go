// Package jacoco canonicalizes JaCoCo XML reports into the unified
// coverage model. JaCoCo is counter-based: <line> elements carry
// missed/covered instruction and branch counts, and <counter> elements
// summarize per class.
package jacoco

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"testhive/internal/coverage"
	"testhive/internal/subproc"
)

// Report locations used by the Gradle jacoco plugin and
// jacoco-maven-plugin.
var reportPaths = []string{
	"build/reports/jacoco/test/jacocoTestReport.xml",
	"build/reports/jacoco/test/jacoco.xml",
	"build/jacoco/test/jacocoTestReport.xml",
	"target/site/jacoco/jacoco.xml",
	"target/jacoco.xml",
}

type xmlReport struct {
	XMLName  xml.Name     `xml:"report"`
	Packages []xmlPackage `xml:"package"`
}

type xmlPackage struct {
	Name    string     `xml:"name,attr"`
	Classes []xmlClass `xml:"class"`
}

type xmlClass struct {
	Name           string       `xml:"name,attr"`
	SourceFileName string       `xml:"sourcefilename,attr"`
	Counters       []xmlCounter `xml:"counter"`
	Lines          []xmlLine    `xml:"line"`
}

type xmlCounter struct {
	Type    string `xml:"type,attr"`
	Missed  int    `xml:"missed,attr"`
	Covered int    `xml:"covered,attr"`
}

type xmlLine struct {
	Nr int `xml:"nr,attr"`
	MI int `xml:"mi,attr"`
	CI int `xml:"ci,attr"`
	MB int `xml:"mb,attr"`
	CB int `xml:"cb,attr"`
}

// Adapter runs the JVM build's JaCoCo task and parses its XML report.
type Adapter struct {
	runner *subproc.Runner
	logger *zap.Logger
}

// New returns a JaCoCo adapter. A nil logger is replaced with a nop
// logger.
func New(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{runner: subproc.NewRunner(logger), logger: logger}
}

func (a *Adapter) Name() string     { return "jacoco" }
func (a *Adapter) Language() string { return "java" }

// Detect reports whether the project configures JaCoCo (Gradle or
// Maven) or already has a report on disk.
func (a *Adapter) Detect(projectRoot string) bool {
	for _, name := range []string{"build.gradle", "build.gradle.kts", "pom.xml"} {
		data, err := os.ReadFile(filepath.Join(projectRoot, name))
		if err == nil && strings.Contains(strings.ToLower(string(data)), "jacoco") {
			return true
		}
	}
	for _, p := range reportPaths {
		if info, err := os.Stat(filepath.Join(projectRoot, p)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// RunCoverage runs the Gradle jacocoTestReport task (or Maven
// jacoco:report when no wrapper is present) and parses the first report
// found. Failures yield an empty report.
func (a *Adapter) RunCoverage(ctx context.Context, projectRoot string, testFiles []string, timeout time.Duration) *coverage.Report {
	cmd := subproc.Command{WorkingDirectory: projectRoot, Timeout: timeout}
	if info, err := os.Stat(filepath.Join(projectRoot, "gradlew")); err == nil && !info.IsDir() {
		cmd.Binary = "./gradlew"
		cmd.Arguments = []string{"test", "jacocoTestReport"}
		if classes := testClassNames(testFiles); len(classes) > 0 {
			cmd.Arguments = append(cmd.Arguments, "--tests", strings.Join(classes, "|"))
		}
	} else {
		cmd.Binary = "mvn"
		cmd.Arguments = []string{"test", "jacoco:report", "-q"}
		if classes := testClassNames(testFiles); len(classes) > 0 {
			cmd.Arguments = append(cmd.Arguments, "-Dtest="+strings.Join(classes, ","))
		}
	}

	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		a.logger.Error("jacoco build failed to start", zap.Error(err))
		return coverage.NewReport()
	}
	if res.TimedOut {
		a.logger.Warn("jacoco build timed out", zap.Duration("timeout", timeout))
		return coverage.NewReport()
	}

	for _, candidate := range reportPaths {
		p := filepath.Join(projectRoot, candidate)
		if info, statErr := os.Stat(p); statErr == nil && !info.IsDir() {
			return a.ParseFile(p)
		}
	}
	a.logger.Warn("no jacoco report found", zap.String("project_root", projectRoot))
	return coverage.NewReport()
}

func testClassNames(testFiles []string) []string {
	var classes []string
	for _, f := range testFiles {
		if filepath.Ext(f) != ".java" {
			continue
		}
		base := filepath.Base(f)
		classes = append(classes, strings.TrimSuffix(base, ".java"))
	}
	return classes
}

// ParseFile parses one JaCoCo XML report. Malformed XML yields an empty
// report.
func (a *Adapter) ParseFile(path string) *coverage.Report {
	data, err := os.ReadFile(path)
	if err != nil {
		a.logger.Error("failed to read jacoco report", zap.String("path", path), zap.Error(err))
		return coverage.NewReport()
	}
	report, err := Parse(data)
	if err != nil {
		a.logger.Error("failed to parse jacoco report", zap.String("path", path), zap.Error(err))
		return coverage.NewReport()
	}
	return report
}

// Parse parses JaCoCo XML into the unified model.
func Parse(data []byte) (*coverage.Report, error) {
	var doc xmlReport
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("jacoco xml: %w", err)
	}

	report := coverage.NewReport()
	for _, pkg := range doc.Packages {
		for _, cls := range pkg.Classes {
			path := filePathFor(pkg.Name, cls.Name, cls.SourceFileName)
			lines, functions, branches := parseClass(cls)
			ensureFunctions(&functions, lines, cls.Name, path)

			if existing, ok := report.Files[path]; ok {
				existing.Lines = append(existing.Lines, lines...)
				existing.Functions = append(existing.Functions, functions...)
				existing.Branches = append(existing.Branches, branches...)
			} else {
				report.Files[path] = &coverage.File{
					FilePath:  path,
					Lines:     lines,
					Functions: functions,
					Branches:  branches,
				}
			}
		}
	}
	return report, nil
}

func filePathFor(packageName, className, sourceFileName string) string {
	if sourceFileName != "" {
		return strings.ReplaceAll(packageName, ".", "/") + "/" + sourceFileName
	}
	if strings.HasSuffix(className, ".java") {
		return className
	}
	return className + ".java"
}

func parseClass(cls xmlClass) ([]coverage.Line, []coverage.Function, []coverage.Branch) {
	var (
		lines     []coverage.Line
		functions []coverage.Function
		branches  []coverage.Branch

		lineMissed, lineCovered int
	)

	for _, c := range cls.Counters {
		switch c.Type {
		case "METHOD":
			// JaCoCo does not name methods at this level; synthesize one
			// entry per method with the first `covered` marked executed.
			for idx := 0; idx < c.Covered+c.Missed; idx++ {
				count := 0
				if idx < c.Covered {
					count = 1
				}
				functions = append(functions, coverage.Function{
					Name:           fmt.Sprintf("method_%d", idx),
					ExecutionCount: count,
				})
			}
		case "LINE":
			lineMissed, lineCovered = c.Missed, c.Covered
		}
	}

	for _, l := range cls.Lines {
		count := 1
		if l.MI+l.CI > 0 {
			count = l.CI
		}
		lines = append(lines, coverage.Line{LineNumber: l.Nr, ExecutionCount: count})
		if l.MB+l.CB > 0 {
			branches = append(branches, coverage.Branch{
				LineNumber: l.Nr,
				BranchID:   0,
				TakenCount: l.CB,
				TotalCount: l.MB + l.CB,
			})
		}
	}

	// Fall back to the LINE counter when the report has no <line> detail.
	if len(lines) == 0 && lineMissed+lineCovered > 0 {
		total := lineMissed + lineCovered
		for i := 0; i < total; i++ {
			count := 0
			if i < lineCovered {
				count = 1
			}
			lines = append(lines, coverage.Line{LineNumber: i + 1, ExecutionCount: count})
		}
	}

	return lines, functions, branches
}

// ensureFunctions guarantees at least one function entry when the class
// has line data, so function coverage stays meaningful.
func ensureFunctions(functions *[]coverage.Function, lines []coverage.Line, className, filePath string) {
	if len(*functions) > 0 || len(lines) == 0 {
		return
	}
	name := filePath
	if className != "" {
		parts := strings.Split(className, "/")
		name = parts[len(parts)-1]
	}
	count := 0
	for _, l := range lines {
		if l.Covered() {
			count = 1
			break
		}
	}
	*functions = append(*functions, coverage.Function{
		Name:           name,
		LineNumber:     lines[0].LineNumber,
		ExecutionCount: count,
	})
}
