package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"
)

// docExemptions lists exported symbols that may go without a doc comment.
var docExemptions = map[string][]string{
	// JobState values; the type carries the documentation.
	"pipeline": {"JobQueued", "JobRunning", "JobSucceeded", "JobFailed", "JobCancelled"},
	// Message helpers named after the style they print with.
	"ui": {"Warn", "Error", "Info"},
}

// docText returns the text of the first non-nil comment group.
func docText(groups ...*ast.CommentGroup) string {
	for _, g := range groups {
		if g != nil {
			return g.Text()
		}
	}
	return ""
}

func documents(doc, name string) bool {
	return strings.HasPrefix(strings.TrimSpace(doc), name)
}

func exportedType(expr ast.Expr) bool {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.IsExported()
	case *ast.StarExpr:
		return exportedType(t.X)
	case *ast.IndexExpr:
		return exportedType(t.X)
	case *ast.IndexListExpr:
		return exportedType(t.X)
	}
	return false
}

// undocumented returns "kind name" for every exported symbol in file that
// lacks a doc comment starting with its name. Values in a grouped block are
// covered by a block comment or a trailing line comment.
func undocumented(t *testing.T, file string) []string {
	t.Helper()
	node, err := parser.ParseFile(token.NewFileSet(), file, nil, parser.ParseComments)
	if err != nil {
		t.Fatalf("parsing %s: %v", file, err)
	}

	var missing []string
	for _, decl := range node.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if !d.Name.IsExported() {
				continue
			}
			if d.Recv != nil && !exportedType(d.Recv.List[0].Type) {
				continue
			}
			if !documents(docText(d.Doc), d.Name.Name) {
				missing = append(missing, "func "+d.Name.Name)
			}
		case *ast.GenDecl:
			grouped := len(d.Specs) > 1
			blockDoc := strings.TrimSpace(docText(d.Doc)) != ""
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if s.Name.IsExported() && !documents(docText(s.Doc, d.Doc), s.Name.Name) {
						missing = append(missing, "type "+s.Name.Name)
					}
				case *ast.ValueSpec:
					for _, n := range s.Names {
						if !n.IsExported() {
							continue
						}
						if grouped && (blockDoc || s.Comment != nil || documents(docText(s.Doc), n.Name)) {
							continue
						}
						if !grouped && documents(docText(s.Doc, d.Doc), n.Name) {
							continue
						}
						missing = append(missing, d.Tok.String()+" "+n.Name)
					}
				}
			}
		}
	}
	return missing
}

// TestExportedSymbolsHaveGoDoc requires a doc comment that starts with the
// symbol name on every exported declaration under internal/.
func TestExportedSymbolsHaveGoDoc(t *testing.T) {
	t.Parallel()
	dir := internalDirPath(t)
	for _, pkg := range internalPackages(t) {
		exempt := make(map[string]bool)
		for _, sym := range docExemptions[pkg] {
			exempt[sym] = true
		}
		for _, file := range goFilesIn(t, filepath.Join(dir, pkg)) {
			for _, m := range undocumented(t, file) {
				if exempt[m[strings.IndexByte(m, ' ')+1:]] {
					continue
				}
				t.Errorf("internal/%s/%s: exported %s has no GoDoc comment", pkg, filepath.Base(file), m)
			}
		}
	}
}
