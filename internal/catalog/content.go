package catalog

import (
	"fmt"
	"slices"
)

// NodeKind identifies one of the three content node shapes.
type NodeKind uint8

const (
	// TextNode is a leaf holding a string.
	TextNode NodeKind = iota + 1

	// BlockNode is a keyed node; its Key names the block and its Children
	// hold the block's value.
	BlockNode

	// ListNode is an ordered sequence of children.
	ListNode
)

// Node is one node of an entity's content tree. The zero Node is empty.
type Node struct {
	Kind     NodeKind `json:"kind,omitempty"`
	Key      string   `json:"key,omitempty"`
	Text     string   `json:"text,omitempty"`
	Children []Node   `json:"children,omitempty"`
}

// Text returns a text leaf.
func Text(s string) Node { return Node{Kind: TextNode, Text: s} }

// Block returns a keyed node wrapping children.
func Block(key string, children ...Node) Node {
	return Node{Kind: BlockNode, Key: key, Children: children}
}

// List returns an ordered list node.
func List(children ...Node) Node { return Node{Kind: ListNode, Children: children} }

// IsZero reports whether n is the empty node.
func (n Node) IsZero() bool { return n.Kind == 0 && len(n.Children) == 0 }

// Walk calls fn for every text leaf in n, depth first, in document order.
// Block keys are structural and are not visited.
func (n Node) Walk(fn func(text string)) {
	switch n.Kind {
	case TextNode:
		if n.Text != "" {
			fn(n.Text)
		}
	default:
		for _, c := range n.Children {
			c.Walk(fn)
		}
	}
}

// Lookup returns the first direct child block named key.
func (n Node) Lookup(key string) (Node, bool) {
	for _, c := range n.Children {
		if c.Kind == BlockNode && c.Key == key {
			return c, true
		}
	}
	return Node{}, false
}

// NodeFromValue converts a decoded YAML/JSON value into a content tree.
// Maps become blocks visited in sorted key order, slices become lists, and
// every other non-nil scalar becomes a text leaf.
func NodeFromValue(v any) Node {
	switch val := v.(type) {
	case nil:
		return Node{}
	case string:
		return Text(val)
	case map[string]any:
		return blockChildren("", val, nil)
	case []any:
		children := make([]Node, 0, len(val))
		for _, item := range val {
			if c := NodeFromValue(item); !c.IsZero() {
				children = append(children, c)
			}
		}
		return List(children...)
	default:
		return Text(fmt.Sprint(val))
	}
}

// contentFromFields builds the root content block of a record, skipping the
// reserved keys.
func contentFromFields(fields map[string]any, skip map[string]bool) Node {
	return blockChildren("", fields, skip)
}

func blockChildren(key string, m map[string]any, skip map[string]bool) Node {
	keys := make([]string, 0, len(m))
	for k := range m {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	children := make([]Node, 0, len(keys))
	for _, k := range keys {
		c := NodeFromValue(m[k])
		if c.IsZero() {
			continue
		}
		children = append(children, Block(k, c))
	}
	return Block(key, children...)
}
