package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"testing"
)

// allowedColocations lists interfaces that may live next to a type that
// satisfies them, keyed by package.
var allowedColocations = map[string][]string{
	// query.Engine is consumed by Runner; SQLiteEngine is the in-process
	// backend and the engine package supplies the external one.
	"query": {"Engine"},
}

// pkgDecls collects, for one package, the method names of every interface
// and the method names declared on every receiver type.
func pkgDecls(t *testing.T, pkgDir string) (ifaces, types map[string][]string) {
	t.Helper()
	ifaces = make(map[string][]string)
	types = make(map[string][]string)
	fset := token.NewFileSet()
	for _, f := range goFilesIn(t, pkgDir) {
		node, err := parser.ParseFile(fset, f, nil, parser.SkipObjectResolution)
		if err != nil {
			t.Fatalf("parsing %s: %v", f, err)
		}
		for _, decl := range node.Decls {
			switch d := decl.(type) {
			case *ast.GenDecl:
				for _, spec := range d.Specs {
					ts, ok := spec.(*ast.TypeSpec)
					if !ok {
						continue
					}
					it, ok := ts.Type.(*ast.InterfaceType)
					if !ok {
						continue
					}
					var methods []string
					for _, m := range it.Methods.List {
						for _, n := range m.Names {
							methods = append(methods, n.Name)
						}
					}
					ifaces[ts.Name.Name] = methods
				}
			case *ast.FuncDecl:
				if recv := receiverName(d.Recv); recv != "" {
					types[recv] = append(types[recv], d.Name.Name)
				}
			}
		}
	}
	return ifaces, types
}

func receiverName(fl *ast.FieldList) string {
	if fl == nil || len(fl.List) == 0 {
		return ""
	}
	expr := fl.List[0].Type
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	if id, ok := expr.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

func hasAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, m := range have {
		set[m] = true
	}
	for _, m := range want {
		if !set[m] {
			return false
		}
	}
	return true
}

// TestInterfacePlacement requires interfaces to be declared by their
// consumers: an interface whose methods are all implemented by a type in the
// same package is flagged unless allowlisted.
func TestInterfacePlacement(t *testing.T) {
	t.Parallel()
	dir := internalDirPath(t)
	for _, pkg := range internalPackages(t) {
		allowed := make(map[string]bool)
		for _, name := range allowedColocations[pkg] {
			allowed[name] = true
		}
		ifaces, types := pkgDecls(t, filepath.Join(dir, pkg))
		for iface, methods := range ifaces {
			if len(methods) == 0 || allowed[iface] {
				continue
			}
			for typ, have := range types {
				if hasAll(have, methods) {
					t.Errorf("interface %s.%s is implemented by %s in the same package; declare it where it is consumed",
						pkg, iface, typ)
				}
			}
		}
	}
}

func TestPipelineDeclaresEngine(t *testing.T) {
	t.Parallel()
	ifaces, _ := pkgDecls(t, filepath.Join(internalDirPath(t), "pipeline"))
	if got := ifaces["Engine"]; len(got) != 4 {
		t.Errorf("pipeline.Engine methods = %v, want the four build stages", got)
	}
}
