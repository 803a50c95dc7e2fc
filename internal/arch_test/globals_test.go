package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"
)

// allowedGlobals lists package-level vars that the constant-like checks below
// cannot recognise but that are never reassigned.
var allowedGlobals = map[string][]string{
	// Re-exports of sentinels owned by another package.
	"app":   {"ErrBuildActive"},
	"store": {"ErrScanFailed"},
}

// allowedGlobalPrefixes lists name prefixes treated as constant-like.
var allowedGlobalPrefixes = map[string][]string{
	// lipgloss colours and styles built once at package init.
	"ui": {"style", "color"},
}

// constantLike reports whether a package-level var initialised with val (and
// declared with type typ) behaves like a constant: error sentinels, regexps,
// sync primitives, literals and composite literal lookup tables.
func constantLike(typ, val ast.Expr) bool {
	if id, ok := typ.(*ast.Ident); ok && id.Name == "error" {
		return true
	}
	if sel, ok := typ.(*ast.SelectorExpr); ok {
		if pkg, ok := sel.X.(*ast.Ident); ok && (pkg.Name == "sync" || pkg.Name == "atomic") {
			return true
		}
	}
	switch v := val.(type) {
	case *ast.BasicLit, *ast.CompositeLit:
		return true
	case *ast.CallExpr:
		switch callName(v) {
		case "errors.New", "fmt.Errorf", "regexp.MustCompile":
			return true
		}
	}
	return false
}

func callName(call *ast.CallExpr) string {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return ""
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok {
		return ""
	}
	return pkg.Name + "." + sel.Sel.Name
}

// packageVars returns every package-level var spec in the non-test files of
// pkgDir, keyed by file.
func packageVars(t *testing.T, pkgDir string) map[string][]*ast.ValueSpec {
	t.Helper()
	out := make(map[string][]*ast.ValueSpec)
	fset := token.NewFileSet()
	for _, f := range goFilesIn(t, pkgDir) {
		node, err := parser.ParseFile(fset, f, nil, parser.SkipObjectResolution)
		if err != nil {
			t.Fatalf("parsing %s: %v", f, err)
		}
		for _, decl := range node.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.VAR {
				continue
			}
			for _, spec := range gd.Specs {
				if vs, ok := spec.(*ast.ValueSpec); ok {
					out[f] = append(out[f], vs)
				}
			}
		}
	}
	return out
}

func allowedVar(pkg, name string) bool {
	if name == "_" {
		return true
	}
	for _, n := range allowedGlobals[pkg] {
		if n == name {
			return true
		}
	}
	for _, p := range allowedGlobalPrefixes[pkg] {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// TestNoMutableGlobalState flags package-level vars that are neither
// constant-like nor allowlisted. Shared state belongs in a struct that is
// passed in.
func TestNoMutableGlobalState(t *testing.T) {
	t.Parallel()
	dir := internalDirPath(t)
	for _, pkg := range internalPackages(t) {
		for file, specs := range packageVars(t, filepath.Join(dir, pkg)) {
			for _, vs := range specs {
				for i, name := range vs.Names {
					var val ast.Expr
					if i < len(vs.Values) {
						val = vs.Values[i]
					}
					if allowedVar(pkg, name.Name) || constantLike(vs.Type, val) {
						continue
					}
					t.Errorf("mutable global state in %s: var %s; inject it instead",
						filepath.Base(file), name.Name)
				}
			}
		}
	}
}

// TestAllowedGlobalsAreUsed catches allowlist entries for vars that no
// longer exist.
func TestAllowedGlobalsAreUsed(t *testing.T) {
	t.Parallel()
	dir := internalDirPath(t)
	for pkg, names := range allowedGlobals {
		declared := make(map[string]bool)
		for _, specs := range packageVars(t, filepath.Join(dir, pkg)) {
			for _, vs := range specs {
				for _, n := range vs.Names {
					declared[n.Name] = true
				}
			}
		}
		for _, name := range names {
			if !declared[name] {
				t.Errorf("allowedGlobals[%q] lists %q but no such var exists", pkg, name)
			}
		}
	}
}

func TestConstantLike(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src  string
		want bool
	}{
		{`var x = errors.New("x")`, true},
		{`var x error`, true},
		{`var x = regexp.MustCompile("a")`, true},
		{`var x sync.Mutex`, true},
		{`var x = 3`, true},
		{`var x = map[string]bool{"a": true}`, true},
		{`var x = make(map[string]string)`, false},
		{`var x *Thing`, false},
	}
	for _, tt := range tests {
		f, err := parser.ParseFile(token.NewFileSet(), "x.go", "package p\n"+tt.src, 0)
		if err != nil {
			t.Fatalf("parsing %q: %v", tt.src, err)
		}
		vs := f.Decls[0].(*ast.GenDecl).Specs[0].(*ast.ValueSpec)
		var val ast.Expr
		if len(vs.Values) > 0 {
			val = vs.Values[0]
		}
		if got := constantLike(vs.Type, val); got != tt.want {
			t.Errorf("constantLike(%s) = %v, want %v", tt.src, got, tt.want)
		}
	}
}
