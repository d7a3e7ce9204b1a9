package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler handles one node kind. Returning true skips the node's
// subtree.
type NodeHandler func(ctx *ExtractionContext, node *sitter.Node) bool

// ExtractionContext is the state shared by handlers during one walk.
type ExtractionContext struct {
	Source []byte
	File   *File
}

// walkTree visits nodes in source order with an explicit stack, so deeply
// nested generated modules cannot exhaust the goroutine stack.
func walkTree(ctx *ExtractionContext, root *sitter.Node, handlers map[string]NodeHandler) {
	if root == nil {
		return
	}
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if handle, ok := handlers[node.Kind()]; ok && handle(ctx, node) {
			continue
		}
		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			if child := node.Child(uint(i)); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

func (c *ExtractionContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(c.Source[node.StartByte():node.EndByte()])
}

// Line is the 1-based start line of node.
func (c *ExtractionContext) Line(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

// ChildOfKind returns the first direct child whose kind is one of kinds.
func (c *ExtractionContext) ChildOfKind(node *sitter.Node, kinds ...string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		for _, kind := range kinds {
			if child.Kind() == kind {
				return child
			}
		}
	}
	return nil
}
