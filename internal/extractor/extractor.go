package extractor

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"weaver/internal/ir"
)

// Extractor orchestrates the extraction process using language-specific extractors.
type Extractor struct {
	langExtractor LanguageExtractor
	langName      string
}

// NewExtractor creates a new extractor for a given language.
func NewExtractor(lang string) (*Extractor, error) {
	var langExt LanguageExtractor
	switch lang {
	case "go":
		langExt = &GoExtractor{}
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	return &Extractor{langExtractor: langExt, langName: lang}, nil
}

// ExtractFromFile parses a single source file and returns the units it
// declares, in declaration order.
func (e *Extractor) ExtractFromFile(filepath string) ([]*ir.Unit, error) {
	sourceCode, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filepath, err)
	}
	return e.Extract(context.Background(), filepath, sourceCode)
}

// Extract parses sourceCode as if read from filepath.
func (e *Extractor) Extract(ctx context.Context, filepath string, sourceCode []byte) ([]*ir.Unit, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(e.langExtractor.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, sourceCode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", filepath, err)
	}
	defer tree.Close()

	packageName := e.detectPackageName(tree.RootNode(), sourceCode)
	if packageName == "" {
		return nil, fmt.Errorf("%s: no package clause", filepath)
	}
	b := newBuilder(packageName, filepath)

	query, err := sitter.NewQuery([]byte(e.langExtractor.GetQuery()), e.langExtractor.GetLanguage())
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}
	defer query.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			e.langExtractor.Collect(query.CaptureNameForId(c.Index), c.Node, sourceCode, b)
		}
	}

	return b.result(), nil
}

func (e *Extractor) detectPackageName(root *sitter.Node, sourceCode []byte) string {
	if e.langName == "go" {
		pkgQuery, _ := sitter.NewQuery([]byte(`(package_clause (package_identifier) @pkg)`), e.langExtractor.GetLanguage())
		pqc := sitter.NewQueryCursor()
		pqc.Exec(pkgQuery, root)
		if m, ok := pqc.NextMatch(); ok {
			return m.Captures[0].Node.Content(sourceCode)
		}
	}
	return ""
}

// MergeUnits folds units that share a name (a type and methods declared in
// other files of its package) and returns them sorted by name.
func MergeUnits(units []*ir.Unit) []*ir.Unit {
	byName := make(map[string]*ir.Unit, len(units))
	for _, u := range units {
		dst, ok := byName[u.Name]
		if !ok {
			byName[u.Name] = u
			continue
		}
		dst.Access |= u.Access
		if dst.Super == ir.RootUnit {
			dst.Super = u.Super
		}
		for _, iface := range u.Interfaces {
			if !slices.Contains(dst.Interfaces, iface) {
				dst.Interfaces = append(dst.Interfaces, iface)
			}
		}
		dst.Fields = append(dst.Fields, u.Fields...)
		dst.Methods = append(dst.Methods, u.Methods...)
	}

	out := make([]*ir.Unit, 0, len(byName))
	for _, u := range byName {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b *ir.Unit) int { return strings.Compare(a.Name, b.Name) })
	return out
}
