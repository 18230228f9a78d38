package index

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/aura-dev/aura/internal/core"
)

// GoIngestor parses Go sources into declaration-level chunks plus graph
// nodes and edges. Parse failures are reported to the caller, which falls
// back to the whole-file ingestor.
type GoIngestor struct {
	chunker *Chunker
}

// NewGoIngestor creates the Go ingestor.
func NewGoIngestor(chunker *Chunker) *GoIngestor {
	return &GoIngestor{chunker: chunker}
}

func (g *GoIngestor) ID() string                 { return "go" }
func (g *GoIngestor) Priority() int              { return 10 }
func (g *GoIngestor) CanIngest(path string) bool { return hasExt(path, "go") }

// Ingest chunks each top-level declaration and builds graph nodes for types,
// methods and fields, with contains edges and same-file implements edges.
func (g *GoIngestor) Ingest(ctx context.Context, workspaceID, relPath string, content []byte) (*FileIndex, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, relPath, content, parser.ParseComments)
	if err != nil {
		return nil, core.ErrExecution(core.CodeIngestFailed, "parsing "+relPath).WithCause(err)
	}

	pkg := file.Name.Name
	src := string(content)
	lines := strings.Split(src, "\n")

	b := &goFileBuilder{
		workspaceID: workspaceID,
		relPath:     relPath,
		pkg:         pkg,
		fset:        fset,
		lines:       lines,
	}

	for _, decl := range file.Decls {
		select {
		case <-ctx.Done():
			return nil, core.ErrCancelled("go ingest")
		default:
		}
		switch d := decl.(type) {
		case *ast.GenDecl:
			b.genDecl(d)
		case *ast.FuncDecl:
			b.funcDecl(d)
		}
	}

	b.linkImplements()

	return &FileIndex{Chunks: b.chunks, Nodes: b.nodes, Edges: b.edges}, nil
}

// goFileBuilder accumulates the index of one Go file.
type goFileBuilder struct {
	workspaceID string
	relPath     string
	pkg         string
	fset        *token.FileSet
	lines       []string

	chunks []core.Chunk
	nodes  []core.CodeNode
	edges  []core.CodeEdge

	// interfaces maps interface FQN to its method names; methodSets maps a
	// type FQN to the methods declared on it in this file. Both feed the
	// same-file implements pass.
	interfaces map[string][]string
	methodSets map[string]map[string]bool
}

func (b *goFileBuilder) span(node ast.Node) (int, int) {
	return b.fset.Position(node.Pos()).Line, b.fset.Position(node.End()).Line
}

// sourceText returns the source lines start..end inclusive, 1-based.
func (b *goFileBuilder) sourceText(start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(b.lines) {
		end = len(b.lines)
	}
	return strings.Join(b.lines[start-1:end], "\n")
}

func (b *goFileBuilder) addChunk(symbol, fqn string, start, end int) {
	b.chunks = append(b.chunks, core.Chunk{
		ContentID:   chunkContentID(b.workspaceID, b.relPath, len(b.chunks)),
		SourcePath:  b.relPath,
		WorkspaceID: b.workspaceID,
		ChunkIndex:  len(b.chunks),
		Text:        b.sourceText(start, end),
		ContentType: core.ContentCode,
		Language:    "go",
		SymbolName:  symbol,
		FQN:         fqn,
		StartLine:   start,
		EndLine:     end,
	})
}

func (b *goFileBuilder) addNode(nt core.NodeType, name, fqn, signature string, line int) string {
	id := nodeID(b.workspaceID, fqn)
	b.nodes = append(b.nodes, core.CodeNode{
		ID:          id,
		WorkspaceID: b.workspaceID,
		NodeType:    nt,
		Name:        name,
		FQN:         fqn,
		FilePath:    b.relPath,
		Line:        line,
		Signature:   signature,
	})
	return id
}

func (b *goFileBuilder) addEdge(et core.EdgeType, source, target string) {
	b.edges = append(b.edges, core.CodeEdge{
		ID:       edgeID(et, source, target),
		EdgeType: et,
		SourceID: source,
		TargetID: target,
	})
}

func (b *goFileBuilder) genDecl(d *ast.GenDecl) {
	switch d.Tok {
	case token.TYPE:
		for _, spec := range d.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			b.typeSpec(d, ts)
		}
	case token.CONST:
		b.constDecl(d)
	}
}

func (b *goFileBuilder) typeSpec(d *ast.GenDecl, ts *ast.TypeSpec) {
	name := ts.Name.Name
	fqn := b.pkg + "." + name
	start, end := b.span(d)
	b.addChunk(name, fqn, start, end)

	line := b.fset.Position(ts.Pos()).Line
	switch t := ts.Type.(type) {
	case *ast.StructType:
		id := b.addNode(core.NodeStruct, name, fqn, "type "+name+" struct", line)
		for _, field := range t.Fields.List {
			for _, fname := range field.Names {
				ffqn := fqn + "." + fname.Name
				fid := b.addNode(core.NodeField, fname.Name, ffqn,
					fname.Name+" "+exprString(field.Type), b.fset.Position(fname.Pos()).Line)
				b.addEdge(core.EdgeContains, id, fid)
			}
		}
	case *ast.InterfaceType:
		id := b.addNode(core.NodeInterface, name, fqn, "type "+name+" interface", line)
		var methods []string
		for _, m := range t.Methods.List {
			for _, mname := range m.Names {
				mfqn := fqn + "." + mname.Name
				mid := b.addNode(core.NodeMethod, mname.Name, mfqn,
					mname.Name+funcTypeString(m.Type), b.fset.Position(mname.Pos()).Line)
				b.addEdge(core.EdgeContains, id, mid)
				methods = append(methods, mname.Name)
			}
		}
		if b.interfaces == nil {
			b.interfaces = make(map[string][]string)
		}
		b.interfaces[fqn] = methods
	default:
		b.addNode(core.NodeRecord, name, fqn, "type "+name+" "+exprString(ts.Type), line)
	}
}

// constDecl indexes typed const groups as enum nodes. Untyped scattered
// consts are only chunked.
func (b *goFileBuilder) constDecl(d *ast.GenDecl) {
	start, end := b.span(d)
	first := firstConstName(d)
	if first == "" {
		return
	}
	b.addChunk(first, b.pkg+"."+first, start, end)

	typeName := constGroupType(d)
	if typeName == "" {
		return
	}
	typeID := nodeID(b.workspaceID, b.pkg+"."+typeName)
	for _, spec := range d.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for _, name := range vs.Names {
			if name.Name == "_" {
				continue
			}
			fqn := b.pkg + "." + typeName + "." + name.Name
			id := b.addNode(core.NodeEnum, name.Name, fqn, typeName, b.fset.Position(name.Pos()).Line)
			b.addEdge(core.EdgeContains, typeID, id)
		}
	}
}

func (b *goFileBuilder) funcDecl(d *ast.FuncDecl) {
	name := d.Name.Name
	start, end := b.span(d)

	fqn := b.pkg + "." + name
	var receiverFQN string
	if d.Recv != nil && len(d.Recv.List) > 0 {
		recv := receiverTypeName(d.Recv.List[0].Type)
		if recv != "" {
			receiverFQN = b.pkg + "." + recv
			fqn = receiverFQN + "." + name
		}
	}

	b.addChunk(name, fqn, start, end)
	id := b.addNode(core.NodeMethod, name, fqn, "func "+name+funcTypeString(d.Type), start)

	if receiverFQN != "" {
		b.addEdge(core.EdgeContains, nodeID(b.workspaceID, receiverFQN), id)
		if b.methodSets == nil {
			b.methodSets = make(map[string]map[string]bool)
		}
		if b.methodSets[receiverFQN] == nil {
			b.methodSets[receiverFQN] = make(map[string]bool)
		}
		b.methodSets[receiverFQN][name] = true
	}
}

// linkImplements adds implements edges for types whose same-file method set
// covers a same-file interface. Cross-file satisfaction is resolved by the
// workspace pass in the pipeline.
func (b *goFileBuilder) linkImplements() {
	for ifaceFQN, methods := range b.interfaces {
		if len(methods) == 0 {
			continue
		}
		for typeFQN, set := range b.methodSets {
			if typeFQN == ifaceFQN {
				continue
			}
			satisfied := true
			for _, m := range methods {
				if !set[m] {
					satisfied = false
					break
				}
			}
			if satisfied {
				b.addEdge(core.EdgeImplements,
					nodeID(b.workspaceID, typeFQN), nodeID(b.workspaceID, ifaceFQN))
			}
		}
	}
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.IndexExpr:
		return receiverTypeName(t.X)
	case *ast.IndexListExpr:
		return receiverTypeName(t.X)
	}
	return ""
}

func firstConstName(d *ast.GenDecl) string {
	for _, spec := range d.Specs {
		if vs, ok := spec.(*ast.ValueSpec); ok && len(vs.Names) > 0 {
			return vs.Names[0].Name
		}
	}
	return ""
}

// constGroupType returns the shared named type of a const group, or "" when
// the group is untyped or mixed.
func constGroupType(d *ast.GenDecl) string {
	typeName := ""
	for _, spec := range d.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		if ident, ok := vs.Type.(*ast.Ident); ok {
			if typeName == "" {
				typeName = ident.Name
			} else if typeName != ident.Name {
				return ""
			}
		}
	}
	return typeName
}

// exprString renders a type expression compactly. It covers the shapes that
// appear in signatures; anything else degrades to a placeholder.
func exprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return "map[" + exprString(t.Key) + "]" + exprString(t.Value)
	case *ast.ChanType:
		return "chan " + exprString(t.Value)
	case *ast.FuncType:
		return "func" + funcTypeString(t)
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.StructType:
		return "struct{}"
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	case *ast.IndexExpr:
		return exprString(t.X) + "[" + exprString(t.Index) + "]"
	}
	return "?"
}

func funcTypeString(expr ast.Expr) string {
	ft, ok := expr.(*ast.FuncType)
	if !ok {
		return "()"
	}
	var params, results []string
	if ft.Params != nil {
		for _, p := range ft.Params.List {
			params = append(params, exprString(p.Type))
		}
	}
	if ft.Results != nil {
		for _, r := range ft.Results.List {
			results = append(results, exprString(r.Type))
		}
	}
	sig := "(" + strings.Join(params, ", ") + ")"
	switch len(results) {
	case 0:
	case 1:
		sig += " " + results[0]
	default:
		sig += " (" + strings.Join(results, ", ") + ")"
	}
	return sig
}
