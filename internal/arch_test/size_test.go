package arch_test

import (
	"path/filepath"
	"testing"
)

const (
	maxFilesPerPackage = 20
	maxLinesPerFile    = 400
)

// packageFileCountExceptions maps a package name to its tolerated number of
// non-test .go files.
var packageFileCountExceptions = map[string]int{}

// lineCountExceptions maps a repo-relative file path to its tolerated line
// count.
var lineCountExceptions = map[string]int{}

// TestPackageFileCount verifies that no internal package has more than
// maxFilesPerPackage non-test .go files.
func TestPackageFileCount(t *testing.T) {
	t.Parallel()

	for _, pkg := range internalPackages(t) {
		count := len(goFilesIn(t, filepath.Join(internalDirPath(t), pkg)))
		limit := max(maxFilesPerPackage, packageFileCountExceptions[pkg])
		if count > limit {
			t.Errorf("package %s has %d .go files (limit: %d); consider splitting", pkg, count, limit)
		}
	}
}

// TestFileLineCount verifies that no .go file of an internal package, tests
// included, exceeds maxLinesPerFile lines. Generated files are skipped.
func TestFileLineCount(t *testing.T) {
	t.Parallel()

	for _, pkg := range internalPackages(t) {
		for _, file := range listGoFiles(t, filepath.Join(internalDirPath(t), pkg), true) {
			if isGeneratedFile(t, file) {
				continue
			}
			rel := relativeFilePath(t, file)
			limit := max(maxLinesPerFile, lineCountExceptions[rel])
			if count := lineCount(t, file); count > limit {
				t.Errorf("%s has %d lines (limit: %d); consider decomposing", rel, count, limit)
			}
		}
	}
}
