package jacoco

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testhive/internal/coverage"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<report name="demo">
  <package name="com.example.app">
    <class name="com/example/app/Greeter" sourcefilename="Greeter.java">
      <line nr="5" mi="0" ci="3" mb="0" cb="0"/>
      <line nr="6" mi="2" ci="0" mb="1" cb="1"/>
      <line nr="7" mi="0" ci="1" mb="0" cb="2"/>
      <counter type="LINE" missed="1" covered="2"/>
      <counter type="METHOD" missed="1" covered="1"/>
    </class>
  </package>
</report>`

func TestParseLinesAndBranches(t *testing.T) {
	report, err := Parse([]byte(sampleXML))
	require.NoError(t, err)

	require.Contains(t, report.Files, "com/example/app/Greeter.java")
	f := report.Files["com/example/app/Greeter.java"]

	require.Len(t, f.Lines, 3)
	assert.Equal(t, coverage.Line{LineNumber: 5, ExecutionCount: 3}, f.Lines[0])
	assert.Equal(t, coverage.Line{LineNumber: 6, ExecutionCount: 0}, f.Lines[1])
	assert.Equal(t, coverage.Line{LineNumber: 7, ExecutionCount: 1}, f.Lines[2])

	require.Len(t, f.Branches, 2)
	assert.Equal(t, coverage.Branch{LineNumber: 6, BranchID: 0, TakenCount: 1, TotalCount: 2}, f.Branches[0])
	assert.Equal(t, coverage.Branch{LineNumber: 7, BranchID: 0, TakenCount: 2, TotalCount: 2}, f.Branches[1])

	// METHOD counter: 2 methods, 1 covered.
	require.Len(t, f.Functions, 2)
	assert.True(t, f.Functions[0].Covered())
	assert.False(t, f.Functions[1].Covered())
}

func TestParseLineCounterFallback(t *testing.T) {
	xmlText := `<report name="x">
  <package name="p">
    <class name="p/C" sourcefilename="C.java">
      <counter type="LINE" missed="1" covered="3"/>
    </class>
  </package>
</report>`
	report, err := Parse([]byte(xmlText))
	require.NoError(t, err)

	f := report.Files["p/C.java"]
	require.NotNil(t, f)
	require.Len(t, f.Lines, 4)
	assert.Equal(t, 75.0, f.LinePercentage())
	// No METHOD counter: a synthetic function is derived from the lines.
	require.Len(t, f.Functions, 1)
	assert.Equal(t, "C", f.Functions[0].Name)
	assert.True(t, f.Functions[0].Covered())
}

func TestParseMalformedXML(t *testing.T) {
	_, err := Parse([]byte("<report><package></report>"))
	assert.Error(t, err)

	a := New(nil)
	dir := t.TempDir()
	path := filepath.Join(dir, "jacoco.xml")
	require.NoError(t, os.WriteFile(path, []byte("not xml at all <"), 0o644))
	report := a.ParseFile(path)
	assert.Empty(t, report.Files)
}

func TestDetect(t *testing.T) {
	a := New(nil)
	dir := t.TempDir()
	assert.False(t, a.Detect(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.gradle"),
		[]byte("plugins { id 'jacoco' }\n"), 0o644))
	assert.True(t, a.Detect(dir))

	other := t.TempDir()
	reportDir := filepath.Join(other, "target", "site", "jacoco")
	require.NoError(t, os.MkdirAll(reportDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(reportDir, "jacoco.xml"), []byte("<report/>"), 0o644))
	assert.True(t, a.Detect(other))
}

func TestTestClassNames(t *testing.T) {
	classes := testClassNames([]string{
		"src/test/java/com/example/FooTest.java",
		"src/test/java/com/example/BarTest.java",
		"README.md",
	})
	assert.Equal(t, []string{"FooTest", "BarTest"}, classes)
}
