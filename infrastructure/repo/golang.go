package repo

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/mod/modfile"
)

// Node kinds understood by FindSymbol.
const (
	KindClass    = "class"
	KindFunction = "function"
	KindVariable = "variable"
)

// ErrUnsupportedLanguage is returned for sources that cannot be analysed.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Symbol is one top-level declaration.
type Symbol struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Language guesses the language of a file from its extension.
func Language(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".md":
		return "markdown"
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	case ".sh":
		return "shell"
	case "":
		if path.Base(filepath.ToSlash(p)) == "Makefile" {
			return "make"
		}
	}
	return "text"
}

// Outline returns the top-level declarations of a Go source in order.
// Types are reported as class, methods as Recv.Name. A declaration's range
// starts at its doc comment; inside a group, at the spec's own comment.
func Outline(filename string, src []byte) ([]Symbol, error) {
	if Language(filename) != "go" {
		return nil, fmt.Errorf("%s: %w", filename, ErrUnsupportedLanguage)
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}

	var out []Symbol
	lines := func(n ast.Node, doc *ast.CommentGroup) (int, int) {
		start := fset.Position(n.Pos()).Line
		if doc != nil {
			start = fset.Position(doc.Pos()).Line
		}
		return start, fset.Position(n.End()).Line
	}
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			start, end := lines(d, d.Doc)
			out = append(out, Symbol{Name: funcName(d), Kind: KindFunction, StartLine: start, EndLine: end})
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				node, doc := ast.Node(d), d.Doc
				if d.Lparen.IsValid() {
					node, doc = spec, specDoc(spec)
				}
				start, end := lines(node, doc)
				switch s := spec.(type) {
				case *ast.TypeSpec:
					out = append(out, Symbol{Name: s.Name.Name, Kind: KindClass, StartLine: start, EndLine: end})
				case *ast.ValueSpec:
					for _, name := range s.Names {
						if name.Name == "_" {
							continue
						}
						out = append(out, Symbol{Name: name.Name, Kind: KindVariable, StartLine: start, EndLine: end})
					}
				}
			}
		}
	}
	return out, nil
}

// FindSymbol locates a declaration by name and kind. Methods match either
// their bare name or Recv.Name.
func FindSymbol(filename string, src []byte, name, kind string) (Symbol, bool, error) {
	symbols, err := Outline(filename, src)
	if err != nil {
		return Symbol{}, false, err
	}
	for _, s := range symbols {
		if s.Kind != kind {
			continue
		}
		if s.Name == name {
			return s, true, nil
		}
		if i := strings.LastIndexByte(s.Name, '.'); i >= 0 && s.Name[i+1:] == name {
			return s, true, nil
		}
	}
	return Symbol{}, false, nil
}

func specDoc(spec ast.Spec) *ast.CommentGroup {
	switch s := spec.(type) {
	case *ast.TypeSpec:
		return s.Doc
	case *ast.ValueSpec:
		return s.Doc
	}
	return nil
}

func funcName(d *ast.FuncDecl) string {
	if d.Recv == nil || len(d.Recv.List) == 0 {
		return d.Name.Name
	}
	t := d.Recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	switch x := t.(type) {
	case *ast.IndexExpr:
		t = x.X
	case *ast.IndexListExpr:
		t = x.X
	}
	if id, ok := t.(*ast.Ident); ok {
		return id.Name + "." + d.Name.Name
	}
	return d.Name.Name
}

// Imports returns the sorted import paths of a Go source.
func Imports(filename string, src []byte) ([]string, error) {
	if Language(filename) != "go" {
		return nil, fmt.Errorf("%s: %w", filename, ErrUnsupportedLanguage)
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(f.Imports))
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// ModulePath reads the module path from root/go.mod. It returns "" when
// there is no go.mod.
func ModulePath(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, "go.mod")) // #nosec G304 -- fixed name under the root
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return modfile.ModulePath(data), nil
}

// SplitImports separates imports belonging to module from the rest.
func SplitImports(module string, imports []string) (repoModules, packages []string) {
	repoModules = []string{}
	packages = []string{}
	for _, imp := range imports {
		if module != "" && (imp == module || strings.HasPrefix(imp, module+"/")) {
			repoModules = append(repoModules, imp)
			continue
		}
		packages = append(packages, imp)
	}
	return repoModules, packages
}
