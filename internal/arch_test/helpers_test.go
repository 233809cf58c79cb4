package arch_test

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/token"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const internalImportPrefix = "github.com/papapumpkin/ratsnest/internal/"

// repoRoot walks up from the package directory, where go test runs, to the
// directory holding go.mod.
func repoRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		up := filepath.Dir(dir)
		if up == dir {
			t.Fatal("no go.mod above the test directory")
		}
		dir = up
	}
}

func internalDirPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(repoRoot(t), "internal")
}

// exportedSymbol is one exported declaration of a Go file together with the
// comments that may document it.
type exportedSymbol struct {
	Name     string
	Kind     string // "type", "func", "method", "var", "const"
	Line     int
	Doc      string // comment directly above the declaration
	GroupDoc string // comment above the enclosing var/const/type block
	Inline   string // trailing comment on the same line
	Grouped  bool   // declared inside a block with more than one spec
}

// interfaceDecl is an interface type and the names of its methods, embedded
// interfaces excluded.
type interfaceDecl struct {
	Name    string
	Pkg     string
	File    string
	Methods []string
}

// internalPackages returns the sorted names of the directories under internal/
// that hold Go code, arch_test excluded.
func internalPackages(t *testing.T) []string {
	t.Helper()

	root := internalDirPath(t)
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("reading %s: %v", root, err)
	}

	var pkgs []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != "arch_test" && len(goFilesIn(t, filepath.Join(root, e.Name()))) > 0 {
			pkgs = append(pkgs, e.Name())
		}
	}
	return pkgs
}

// goFilesIn returns the non-test .go files in dir, sorted.
func goFilesIn(t *testing.T, dir string) []string {
	t.Helper()
	return listGoFiles(t, dir, false)
}

// listGoFiles returns the .go files in dir, sorted, with or without tests.
func listGoFiles(t *testing.T, dir string, withTests bool) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading directory %s: %v", dir, err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") {
			continue
		}
		if withTests || !strings.HasSuffix(name, "_test.go") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	slices.Sort(files)
	return files
}

// importsOf returns the sorted internal packages, by top-level name, that
// the non-test files in pkgDir import.
func importsOf(t *testing.T, pkgDir string) []string {
	t.Helper()

	seen := make(map[string]bool)
	fset := token.NewFileSet()
	for _, file := range goFilesIn(t, pkgDir) {
		node, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parsing imports in %s: %v", file, err)
		}
		for _, imp := range node.Imports {
			rel, ok := strings.CutPrefix(strings.Trim(imp.Path.Value, `"`), internalImportPrefix)
			if !ok {
				continue
			}
			pkg, _, _ := strings.Cut(rel, "/")
			seen[pkg] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// lineCount counts lines, including an unterminated last one.
func lineCount(t *testing.T, filePath string) int {
	t.Helper()

	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("reading %s: %v", filePath, err)
	}
	n := bytes.Count(data, []byte{'\n'})
	if len(data) > 0 && !bytes.HasSuffix(data, []byte{'\n'}) {
		n++
	}
	return n
}

// exportedSymbols parses a Go file and returns its exported declarations.
// Methods on unexported receivers are left out: they are not part of the
// package API even when their names are exported.
func exportedSymbols(t *testing.T, filePath string) []exportedSymbol {
	t.Helper()

	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments)
	if err != nil {
		t.Fatalf("parsing %s: %v", filePath, err)
	}

	var syms []exportedSymbol
	for _, decl := range node.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			base := exportedSymbol{
				GroupDoc: docText(d.Doc),
				Grouped:  len(d.Specs) > 1,
			}
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if !s.Name.IsExported() {
						continue
					}
					sym := base
					sym.Name, sym.Kind = s.Name.Name, "type"
					sym.Line = fset.Position(s.Pos()).Line
					sym.Doc, sym.Inline = docText(s.Doc), docText(s.Comment)
					syms = append(syms, sym)
				case *ast.ValueSpec:
					for _, name := range s.Names {
						if !name.IsExported() {
							continue
						}
						sym := base
						sym.Name, sym.Kind = name.Name, d.Tok.String()
						sym.Line = fset.Position(name.Pos()).Line
						sym.Doc, sym.Inline = docText(s.Doc), docText(s.Comment)
						syms = append(syms, sym)
					}
				}
			}
		case *ast.FuncDecl:
			if !d.Name.IsExported() {
				continue
			}
			kind := "func"
			if d.Recv != nil {
				if len(d.Recv.List) == 0 || !isExportedType(d.Recv.List[0].Type) {
					continue
				}
				kind = "method"
			}
			syms = append(syms, exportedSymbol{
				Name: d.Name.Name,
				Kind: kind,
				Line: fset.Position(d.Pos()).Line,
				Doc:  docText(d.Doc),
			})
		}
	}
	return syms
}

// isExportedType reports whether the base type of a receiver expression is
// exported, looking through pointers and type parameters.
func isExportedType(expr ast.Expr) bool {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.IsExported()
	case *ast.StarExpr:
		return isExportedType(t.X)
	case *ast.IndexExpr:
		return isExportedType(t.X)
	case *ast.IndexListExpr:
		return isExportedType(t.X)
	default:
		return false
	}
}

// docText returns the text of the first non-empty comment group.
func docText(groups ...*ast.CommentGroup) string {
	for _, g := range groups {
		if g != nil {
			if text := strings.TrimSpace(g.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// interfaceDecls returns the interface types declared in a Go file.
func interfaceDecls(t *testing.T, filePath string) []interfaceDecl {
	t.Helper()

	node, err := parser.ParseFile(token.NewFileSet(), filePath, nil, parser.SkipObjectResolution)
	if err != nil {
		t.Fatalf("parsing %s: %v", filePath, err)
	}

	var decls []interfaceDecl
	ast.Inspect(node, func(n ast.Node) bool {
		ts, ok := n.(*ast.TypeSpec)
		if !ok {
			return true
		}
		if it, ok := ts.Type.(*ast.InterfaceType); ok {
			decl := interfaceDecl{Name: ts.Name.Name, Pkg: node.Name.Name, File: filePath}
			for _, field := range it.Methods.List {
				for _, name := range field.Names {
					decl.Methods = append(decl.Methods, name.Name)
				}
			}
			decls = append(decls, decl)
		}
		return false
	})
	return decls
}
