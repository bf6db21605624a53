package mapping

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ConventionMapper maps test files to source files by naming
// convention: `foo_test.go` -> `foo.go` (same directory),
// `test_foo.py` -> `foo.py`, `foo.test.ts` / `foo.spec.js` ->
// `foo.ts` / `foo.js`. Candidates are only reported when they exist on
// disk. Paths are resolved relative to the project root, matching the
// discovery output.
type ConventionMapper struct {
	root string
}

// NewConventionMapper returns a mapper resolving candidates under root.
func NewConventionMapper(root string) *ConventionMapper {
	return &ConventionMapper{root: root}
}

// MapTestToSources maps one test file. A test with no recognized naming
// convention or no existing candidate yields an empty mapping, not an
// error.
func (m *ConventionMapper) MapTestToSources(testFile string) (TestMapping, error) {
	mapped := TestMapping{TestFile: testFile}

	dir := path.Dir(filepath.ToSlash(testFile))
	base := path.Base(filepath.ToSlash(testFile))
	ext := path.Ext(base)

	var candidates []string
	switch {
	case ext == ".go" && strings.HasSuffix(base, "_test.go"):
		candidates = append(candidates, path.Join(dir, strings.TrimSuffix(base, "_test.go")+".go"))

	case ext == ".py" && strings.HasPrefix(base, "test_"):
		name := strings.TrimPrefix(base, "test_")
		for _, d := range []string{dir, "src", "lib", "."} {
			candidates = append(candidates, path.Join(d, name))
		}

	case ext == ".ts" || ext == ".js" || ext == ".tsx" || ext == ".jsx":
		stem := strings.TrimSuffix(base, ext)
		for _, marker := range []string{".test", ".spec"} {
			if strings.HasSuffix(stem, marker) {
				name := strings.TrimSuffix(stem, marker) + ext
				for _, d := range []string{dir, "src", "."} {
					candidates = append(candidates, path.Join(d, name))
				}
				break
			}
		}
	}

	seen := make(map[string]struct{})
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		if info, err := os.Stat(filepath.Join(m.root, filepath.FromSlash(c))); err == nil && !info.IsDir() {
			mapped.SourceFiles = append(mapped.SourceFiles, c)
		}
	}
	return mapped, nil
}
