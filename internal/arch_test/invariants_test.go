package arch_test

import (
	"path/filepath"
	"slices"
	"testing"
)

// leafPackages must not import any other internal package. The worker and
// telemetry packages are shared by every layer above them.
var leafPackages = []string{"config", "geom", "telemetry", "worker"}

func TestLeafPackagesStayLeaves(t *testing.T) {
	t.Parallel()

	for _, pkg := range leafPackages {
		if imps := importsOf(t, filepath.Join(internalDirPath(t), pkg)); len(imps) > 0 {
			t.Errorf("%s must not import internal packages, imports %v", pkg, imps)
		}
	}
}

// TestFeatureVariantIsClosed verifies that pcb.Feature keeps its unexported
// marker method and that exactly the four board item kinds implement it.
func TestFeatureVariantIsClosed(t *testing.T) {
	t.Parallel()

	pkgDir := filepath.Join(internalDirPath(t), "pcb")

	var feature *interfaceDecl
	for _, file := range goFilesIn(t, pkgDir) {
		for _, decl := range interfaceDecls(t, file) {
			if decl.Name == "Feature" {
				feature = &decl
			}
		}
	}
	if feature == nil {
		t.Fatal("pcb.Feature not found")
	}
	if !slices.Contains(feature.Methods, "feature") {
		t.Errorf("pcb.Feature methods = %v, want the unexported feature marker", feature.Methods)
	}

	var got []string
	for typ, methods := range structMethodsInPkg(t, pkgDir) {
		if implementsAll(feature.Methods, methods) {
			got = append(got, typ)
		}
	}
	slices.Sort(got)
	want := []string{"Pad", "Track", "Via", "Zone"}
	if !slices.Equal(got, want) {
		t.Errorf("pcb.Feature implementers = %v, want %v", got, want)
	}
}
