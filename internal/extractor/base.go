package extractor

import (
	sitter "github.com/smacker/go-tree-sitter"

	"weaver/internal/ir"
)

// LanguageExtractor defines the interface that each language parser must implement.
type LanguageExtractor interface {
	GetLanguage() *sitter.Language
	GetQuery() string
	// Collect turns one query capture into unit members recorded on b.
	Collect(captureName string, node *sitter.Node, sourceCode []byte, b *Builder)
}

// Builder accumulates the units of one source file in declaration order.
type Builder struct {
	Package  string
	Filepath string

	units map[string]*ir.Unit
	order []string
}

func newBuilder(pkg, filepath string) *Builder {
	return &Builder{Package: pkg, Filepath: filepath, units: make(map[string]*ir.Unit)}
}

// Unit returns the unit called name, creating a stub on first use.
func (b *Builder) Unit(name string) *ir.Unit {
	if u, ok := b.units[name]; ok {
		return u
	}
	u := &ir.Unit{
		Version: ir.DefaultVersion,
		Access:  accessFor(lastSegment(name)),
		Name:    name,
		Super:   ir.RootUnit,
		Source:  b.Filepath,
	}
	b.units[name] = u
	b.order = append(b.order, name)
	return u
}

// PackageUnit holds package-level functions, constants and variables.
func (b *Builder) PackageUnit() *ir.Unit {
	u := b.Unit(b.Package)
	u.Access = ir.AccPublic | ir.AccFinal
	return u
}

// Qualify names a type declared in this file's package.
func (b *Builder) Qualify(typeName string) string {
	return b.Package + "/" + typeName
}

func (b *Builder) result() []*ir.Unit {
	out := make([]*ir.Unit, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.units[name])
	}
	return out
}
