package extractor

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"weaver/internal/ir"
)

// GoExtractor implements LanguageExtractor for Go. Types become units,
// struct fields and methods become their members, and package-level
// functions, constants and variables become static members of a unit named
// after the package.
type GoExtractor struct{}

func (g *GoExtractor) GetLanguage() *sitter.Language {
	return golang.GetLanguage()
}

func (g *GoExtractor) GetQuery() string {
	return `
		(function_declaration) @func
		(method_declaration) @method
		(type_spec) @type
		(const_spec) @const
		(var_spec) @var
	`
}

func (g *GoExtractor) Collect(captureName string, node *sitter.Node, sourceCode []byte, b *Builder) {
	switch captureName {
	case "func":
		g.collectFunction(node, sourceCode, b)
	case "method":
		g.collectMethod(node, sourceCode, b)
	case "type":
		g.collectType(node, sourceCode, b)
	case "const":
		if isTopLevel(node) {
			g.collectValues(node, sourceCode, b, ir.AccStatic|ir.AccFinal)
		}
	case "var":
		if isTopLevel(node) {
			g.collectValues(node, sourceCode, b, ir.AccStatic)
		}
	}
}

// Extraction Logic

func (g *GoExtractor) collectType(node *sitter.Node, sourceCode []byte, b *Builder) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil || !isTopLevel(node) {
		return
	}
	u := b.Unit(b.Qualify(nameNode.Content(sourceCode)))
	u.Source = b.Filepath

	typeNode := node.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	switch typeNode.Type() {
	case "struct_type":
		g.collectStruct(typeNode, sourceCode, b, u)
	case "interface_type":
		u.Access |= ir.AccInterface | ir.AccAbstract
		g.collectInterface(typeNode, sourceCode, b, u)
	default:
		u.Super = g.qualifyType(typeNode.Content(sourceCode), b)
	}
}

// collectStruct maps named fields to fields. The first embedded type becomes
// the super unit and later ones become interfaces.
func (g *GoExtractor) collectStruct(structNode *sitter.Node, sourceCode []byte, b *Builder, u *ir.Unit) {
	var fieldList *sitter.Node
	for i := 0; i < int(structNode.NamedChildCount()); i++ {
		if child := structNode.NamedChild(i); child.Type() == "field_declaration_list" {
			fieldList = child
			break
		}
	}
	if fieldList == nil {
		return
	}

	for i := 0; i < int(fieldList.NamedChildCount()); i++ {
		fieldDecl := fieldList.NamedChild(i)
		if fieldDecl.Type() != "field_declaration" {
			continue
		}

		var fieldType, fieldTag string
		if typeNode := fieldDecl.ChildByFieldName("type"); typeNode != nil {
			fieldType = typeNode.Content(sourceCode)
		}
		if tagNode := fieldDecl.ChildByFieldName("tag"); tagNode != nil {
			fieldTag = tagNode.Content(sourceCode)
		}

		foundNames := false
		for j := 0; j < int(fieldDecl.NamedChildCount()); j++ {
			child := fieldDecl.NamedChild(j)
			if child.Type() != "field_identifier" {
				continue
			}
			name := child.Content(sourceCode)
			u.Fields = append(u.Fields, &ir.Field{
				Access:     accessFor(name),
				Name:       name,
				Descriptor: fieldType,
				Tag:        fieldTag,
			})
			foundNames = true
		}

		if !foundNames && fieldType != "" {
			g.addSupertype(u, g.qualifyType(fieldType, b))
		}
	}
}

func (g *GoExtractor) collectInterface(ifaceNode *sitter.Node, sourceCode []byte, b *Builder, u *ir.Unit) {
	for i := 0; i < int(ifaceNode.NamedChildCount()); i++ {
		n := ifaceNode.NamedChild(i)
		switch n.Type() {
		case "method_spec_list":
			g.collectInterface(n, sourceCode, b, u)
		case "method_elem", "method_spec":
			nameNode := n.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			name := nameNode.Content(sourceCode)
			u.Methods = append(u.Methods, &ir.Method{
				Access:     accessFor(name) | ir.AccAbstract,
				Name:       name,
				Descriptor: g.descriptor(n, sourceCode),
				Source:     n.Content(sourceCode),
			})
		case "type_elem", "type_identifier", "qualified_type", "interface_type_name", "constraint_elem":
			if !strings.ContainsAny(n.Content(sourceCode), "|~") {
				u.Interfaces = append(u.Interfaces, g.qualifyType(n.Content(sourceCode), b))
			}
		}
	}
}

func (g *GoExtractor) collectFunction(node *sitter.Node, sourceCode []byte, b *Builder) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(sourceCode)
	if name == "init" || name == "_" {
		// may repeat within a package and cannot be addressed by name
		return
	}
	m := g.method(node, name, sourceCode)
	m.Access |= ir.AccStatic
	pkg := b.PackageUnit()
	pkg.Methods = append(pkg.Methods, m)
}

func (g *GoExtractor) collectMethod(node *sitter.Node, sourceCode []byte, b *Builder) {
	nameNode := node.ChildByFieldName("name")
	receiverNode := node.ChildByFieldName("receiver")
	if nameNode == nil || receiverNode == nil {
		return
	}
	recv := g.receiverType(receiverNode, sourceCode)
	if recv == "" {
		return
	}
	u := b.Unit(b.Qualify(recv))
	u.Methods = append(u.Methods, g.method(node, nameNode.Content(sourceCode), sourceCode))
}

func (g *GoExtractor) method(node *sitter.Node, name string, sourceCode []byte) *ir.Method {
	m := &ir.Method{
		Access:     accessFor(name),
		Name:       name,
		Descriptor: g.descriptor(node, sourceCode),
	}
	if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
		m.Source = strings.TrimSpace(string(sourceCode[node.StartByte():bodyNode.StartByte()]))
		m.Insns = g.body(bodyNode, sourceCode)
	} else {
		m.Source = node.Content(sourceCode)
		m.Access |= ir.AccAbstract
	}
	return m
}

// body records the statement shape of a block: one nop per statement and
// const/return pairs for return statements.
func (g *GoExtractor) body(block *sitter.Node, sourceCode []byte) []ir.Insn {
	stmts := block
	if block.NamedChildCount() == 1 && block.NamedChild(0).Type() == "statement_list" {
		stmts = block.NamedChild(0)
	}

	var insns []ir.Insn
	for i := 0; i < int(stmts.NamedChildCount()); i++ {
		stmt := stmts.NamedChild(i)
		switch stmt.Type() {
		case "comment":
			continue
		case "return_statement":
			if stmt.NamedChildCount() > 0 {
				values := stmt.NamedChild(0)
				for j := 0; j < int(values.NamedChildCount()); j++ {
					insns = append(insns, ir.Insn{Op: ir.OpConst, Args: []string{values.NamedChild(j).Content(sourceCode)}})
				}
			}
			insns = append(insns, ir.Insn{Op: ir.OpReturn})
		default:
			insns = append(insns, ir.Insn{Op: ir.OpNop, Args: []string{stmt.Type()}})
		}
	}
	if len(insns) == 0 || !insns[len(insns)-1].Terminal() {
		insns = append(insns, ir.Insn{Op: ir.OpReturn})
	}
	return insns
}

// collectValues records every name of a const or var spec as a static
// field of the package unit.
func (g *GoExtractor) collectValues(node *sitter.Node, sourceCode []byte, b *Builder, access ir.Access) {
	var typ string
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		typ = typeNode.Content(sourceCode)
	}
	var values []*sitter.Node
	if valueNode := node.ChildByFieldName("value"); valueNode != nil {
		if valueNode.Type() == "expression_list" {
			for i := 0; i < int(valueNode.NamedChildCount()); i++ {
				values = append(values, valueNode.NamedChild(i))
			}
		} else {
			values = append(values, valueNode)
		}
	}

	idx := 0
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "identifier" {
			continue
		}
		name := child.Content(sourceCode)
		f := &ir.Field{Access: accessFor(name) | access, Name: name, Descriptor: typ}
		if idx < len(values) {
			f.Value, f.Descriptor = literal(values[idx], sourceCode, typ)
		}
		idx++
		if name == "_" {
			continue
		}
		pkg := b.PackageUnit()
		pkg.Fields = append(pkg.Fields, f)
	}
}

// literal decodes basic literals. Anything else is kept as source text.
func literal(n *sitter.Node, sourceCode []byte, typ string) (any, string) {
	text := n.Content(sourceCode)
	switch n.Type() {
	case "interpreted_string_literal", "raw_string_literal":
		if s, err := strconv.Unquote(text); err == nil {
			return s, orType(typ, "string")
		}
	case "int_literal":
		if v, err := strconv.ParseInt(text, 0, 64); err == nil {
			return v, orType(typ, "int")
		}
	case "float_literal":
		if v, err := strconv.ParseFloat(text, 64); err == nil {
			return v, orType(typ, "float64")
		}
	case "true", "false":
		return n.Type() == "true", orType(typ, "bool")
	}
	return text, typ
}

func orType(declared, inferred string) string {
	if declared != "" {
		return declared
	}
	return inferred
}

func (g *GoExtractor) descriptor(node *sitter.Node, sourceCode []byte) string {
	var params, results []string
	if paramsNode := node.ChildByFieldName("parameters"); paramsNode != nil {
		params = g.paramTypes(paramsNode, sourceCode)
	}
	if resultNode := node.ChildByFieldName("result"); resultNode != nil {
		if resultNode.Type() == "parameter_list" {
			results = g.paramTypes(resultNode, sourceCode)
		} else {
			results = []string{resultNode.Content(sourceCode)}
		}
	}
	return ir.MethodDescriptor(params, results)
}

// paramTypes lists one type per declared parameter, so "a, b int" yields
// two entries.
func (g *GoExtractor) paramTypes(list *sitter.Node, sourceCode []byte) []string {
	var types []string
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		var typ string
		switch p.Type() {
		case "parameter_declaration":
			if tn := p.ChildByFieldName("type"); tn != nil {
				typ = tn.Content(sourceCode)
			}
		case "variadic_parameter_declaration":
			if tn := p.ChildByFieldName("type"); tn != nil {
				typ = "..." + tn.Content(sourceCode)
			}
		default:
			continue
		}
		names := 0
		for j := 0; j < int(p.NamedChildCount()); j++ {
			if p.NamedChild(j).Type() == "identifier" {
				names++
			}
		}
		for range max(names, 1) {
			types = append(types, typ)
		}
	}
	return types
}

func (g *GoExtractor) receiverType(receiver *sitter.Node, sourceCode []byte) string {
	for i := 0; i < int(receiver.NamedChildCount()); i++ {
		p := receiver.NamedChild(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		tn := p.ChildByFieldName("type")
		if tn == nil {
			return ""
		}
		typ := strings.TrimPrefix(tn.Content(sourceCode), "*")
		if i := strings.IndexByte(typ, '['); i >= 0 {
			typ = typ[:i]
		}
		return strings.TrimSpace(typ)
	}
	return ""
}

func (g *GoExtractor) addSupertype(u *ir.Unit, name string) {
	if u.Super == ir.RootUnit {
		u.Super = name
		return
	}
	u.Interfaces = append(u.Interfaces, name)
}

var predeclared = map[string]bool{
	"any": true, "bool": true, "byte": true, "comparable": true, "error": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"rune": true, "string": true, "uint": true, "uint8": true, "uint16": true,
	"uint32": true, "uint64": true, "uintptr": true,
}

// qualifyType turns "T" into "pkg/T" and "other.T" into "other/T".
// Predeclared and composite types are kept as written.
func (g *GoExtractor) qualifyType(typ string, b *Builder) string {
	typ = strings.TrimPrefix(typ, "*")
	if i := strings.IndexByte(typ, '['); i > 0 {
		typ = typ[:i]
	}
	if predeclared[typ] || strings.ContainsAny(typ, " ()[]{}*") {
		return typ
	}
	if pkg, name, ok := strings.Cut(typ, "."); ok {
		return pkg + "/" + name
	}
	return b.Qualify(typ)
}

func isTopLevel(node *sitter.Node) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "source_file":
			return true
		case "block", "function_declaration", "method_declaration", "func_literal":
			return false
		}
	}
	return false
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

func accessFor(name string) ir.Access {
	if isExported(name) {
		return ir.AccPublic
	}
	return ir.AccPrivate
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
