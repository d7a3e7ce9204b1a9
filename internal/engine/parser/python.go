package parser

import (
	"fmt"
	"strings"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/imports"
)

// PythonExtractor collects import statements from a Python syntax tree.
type PythonExtractor struct {
	// lazyCallables names loader helpers such as lazy_import("pkg") whose
	// string argument is reported as a lazy import.
	lazyCallables map[string]bool
}

func NewPythonExtractor(lazyCallables ...string) *PythonExtractor {
	e := &PythonExtractor{lazyCallables: make(map[string]bool)}
	for _, name := range lazyCallables {
		if name = strings.TrimSpace(name); name != "" {
			e.lazyCallables[name] = true
		}
	}
	return e
}

func (e *PythonExtractor) Extract(root *sitter.Node, source []byte, filePath string) (*File, error) {
	file := &File{
		Path:     filePath,
		ParsedAt: time.Now(),
	}
	if root == nil {
		return nil, errors.New(errors.CodeInternal, "nil syntax tree")
	}

	if root.HasError() {
		line := 0
		if bad := firstErrorNode(root); bad != nil {
			line = int(bad.StartPosition().Row) + 1
		}
		file.Diagnostics = append(file.Diagnostics, imports.Diagnostic{
			Path:    filePath,
			Line:    line,
			Code:    errors.CodeParseFailed,
			Message: fmt.Sprintf("syntax error near line %d", line),
		})
		return file, nil
	}

	handlers := map[string]NodeHandler{
		"import_statement":        e.extractImport,
		"import_from_statement":   e.extractFromImport,
		"future_import_statement": e.extractFutureImport,
	}
	if len(e.lazyCallables) > 0 {
		handlers["call"] = e.extractLazyCall
	}

	ctx := &ExtractionContext{Source: source, File: file}
	walkTree(ctx, root, handlers)
	return file, nil
}

// firstErrorNode returns the first ERROR or MISSING node in source order.
func firstErrorNode(root *sitter.Node) *sitter.Node {
	if root == nil {
		return nil
	}
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node.IsError() || node.IsMissing() {
			return node
		}
		if !node.HasError() {
			continue
		}
		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			if child := node.Child(uint(i)); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return nil
}

// import a.b, c as d
func (e *PythonExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) bool {
	lazy, guarded := importScope(ctx, node)
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		var path string
		switch child.Kind() {
		case "dotted_name":
			path = ctx.Text(child)
		case "aliased_import":
			path = ctx.Text(child.ChildByFieldName("name"))
		default:
			continue
		}
		ctx.File.Imports = append(ctx.File.Imports, imports.RawImport{
			Path:    normalizeDotted(path),
			Line:    ctx.Line(child),
			Lazy:    lazy,
			Guarded: guarded,
		})
	}
	return true
}

// from ..a.b import c, d as e
func (e *PythonExtractor) extractFromImport(ctx *ExtractionContext, node *sitter.Node) bool {
	raw := imports.RawImport{From: true, Line: ctx.Line(node)}
	raw.Lazy, raw.Guarded = importScope(ctx, node)

	module := node.ChildByFieldName("module_name")
	if module != nil && module.Kind() == "relative_import" {
		if prefix := ctx.ChildOfKind(module, "import_prefix"); prefix != nil {
			raw.Level = strings.Count(ctx.Text(prefix), ".")
		}
		raw.Path = normalizeDotted(ctx.Text(ctx.ChildOfKind(module, "dotted_name")))
	} else {
		raw.Path = normalizeDotted(ctx.Text(module))
	}

	raw.Names = importedNames(ctx, node)
	ctx.File.Imports = append(ctx.File.Imports, raw)
	return true
}

// from __future__ import annotations
func (e *PythonExtractor) extractFutureImport(ctx *ExtractionContext, node *sitter.Node) bool {
	raw := imports.RawImport{Path: "__future__", From: true, Line: ctx.Line(node)}
	raw.Lazy, raw.Guarded = importScope(ctx, node)
	raw.Names = importedNames(ctx, node)
	ctx.File.Imports = append(ctx.File.Imports, raw)
	return true
}

func (e *PythonExtractor) extractLazyCall(ctx *ExtractionContext, node *sitter.Node) bool {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return false
	}
	name := ctx.Text(fn)
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}
	if !e.lazyCallables[name] {
		return false
	}

	args := node.ChildByFieldName("arguments")
	first := ctx.ChildOfKind(args, "string")
	if first == nil {
		return false
	}
	target := strings.Trim(ctx.Text(ctx.ChildOfKind(first, "string_content")), `"'`)
	if target == "" {
		return false
	}
	_, guarded := importScope(ctx, node)
	ctx.File.Imports = append(ctx.File.Imports, imports.RawImport{
		Path:    normalizeDotted(target),
		Line:    ctx.Line(node),
		Lazy:    true,
		Guarded: guarded,
	})
	return false
}

// importedNames lists the names after the import keyword; `*` for wildcards.
func importedNames(ctx *ExtractionContext, node *sitter.Node) []string {
	var names []string
	afterImport := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "import" {
			afterImport = true
			continue
		}
		if !afterImport {
			continue
		}
		switch child.Kind() {
		case "dotted_name", "identifier":
			names = append(names, normalizeDotted(ctx.Text(child)))
		case "aliased_import":
			names = append(names, normalizeDotted(ctx.Text(child.ChildByFieldName("name"))))
		case "wildcard_import":
			names = append(names, "*")
		}
	}
	return names
}

// importScope reports whether node is lazy (inside a function body or an
// `if TYPE_CHECKING:` block) and guarded (inside a try statement).
func importScope(ctx *ExtractionContext, node *sitter.Node) (lazy, guarded bool) {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Kind() {
		case "function_definition", "lambda":
			lazy = true
		case "try_statement":
			guarded = true
		case "if_statement":
			if isTypeCheckingCondition(ctx.Text(p.ChildByFieldName("condition"))) &&
				within(node, p.ChildByFieldName("consequence")) {
				lazy = true
			}
		}
	}
	return lazy, guarded
}

func isTypeCheckingCondition(cond string) bool {
	cond = strings.TrimSpace(cond)
	return cond == "TYPE_CHECKING" || cond == "typing.TYPE_CHECKING"
}

func within(node, container *sitter.Node) bool {
	if container == nil {
		return false
	}
	return node.StartByte() >= container.StartByte() && node.EndByte() <= container.EndByte()
}

func normalizeDotted(s string) string {
	return strings.Join(strings.Fields(s), "")
}
