// Package host abstracts the editor document the scanner and exporter work
// on. Nodes are borrowed handles: callers never own them and must re-resolve
// them after any property change, because the host may swap subtrees.
package host

import (
	"context"
	"strings"
)

// Kind is the tagged variant of a node.
type Kind int

const (
	KindOther    Kind = iota // slices, connectors, anything not handled
	KindFrame                // frames, components, sections
	KindGroup                // plain groups
	KindInstance             // component instances; may carry a State property
	KindText                 // text layers
	KindShape                // rectangles, ellipses, vectors and other geometry
)

func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "frame"
	case KindGroup:
		return "group"
	case KindInstance:
		return "instance"
	case KindText:
		return "text"
	case KindShape:
		return "shape"
	default:
		return "other"
	}
}

// StateProperty is the component property switched to render each state.
const StateProperty = "State"

// Rect is a node's position relative to its parent plus its size.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is a read-only view of one element of the document tree.
type Node interface {
	ID() string
	Name() string
	Kind() Kind
	// Parent returns nil for top-level nodes.
	Parent() Node
	Children() []Node
	Bounds() Rect
	Rotation() float64
	// Characters returns the content of text nodes.
	Characters() string
	HasImageFill() bool
	// Properties returns the exposed component properties. ok is false when
	// the node does not expose structured properties at all.
	Properties() (props map[string]string, ok bool)
	// Renderable reports whether the host can rasterise the node.
	Renderable() bool
}

// Document is the host surface the core consumes.
type Document interface {
	// Selection returns the user's current selection.
	Selection() []Node
	NodeByID(id string) (Node, bool)
	// SetProperties mutates component properties on an instance.
	SetProperties(ctx context.Context, n Node, props map[string]string) error
	// Export rasterises n to PNG bytes.
	Export(ctx context.Context, n Node) ([]byte, error)
}

// Named returns a predicate matching nodes whose name equals name exactly.
func Named(name string) func(Node) bool {
	return func(n Node) bool { return n.Name() == name }
}

// NamedFold returns a predicate matching names case-insensitively.
func NamedFold(name string) func(Node) bool {
	return func(n Node) bool { return strings.EqualFold(n.Name(), name) }
}

// FindOne returns the first descendant of root, in depth-first pre-order,
// that satisfies pred. root itself is not tested.
func FindOne(root Node, pred func(Node) bool) Node {
	for _, c := range root.Children() {
		if pred(c) {
			return c
		}
		if found := FindOne(c, pred); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every descendant of root that satisfies pred, in
// depth-first pre-order.
func FindAll(root Node, pred func(Node) bool) []Node {
	var out []Node
	for _, c := range root.Children() {
		if pred(c) {
			out = append(out, c)
		}
		out = append(out, FindAll(c, pred)...)
	}
	return out
}

// ChildNamed returns the first direct child called name.
func ChildNamed(n Node, name string) Node {
	for _, c := range n.Children() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// OffsetWithin sums the offsets of n and its ancestors up to, but not
// including, ancestor. When ancestor is not on the path the sum runs to the
// top of the tree.
func OffsetWithin(n, ancestor Node) (x, y float64) {
	for cur := n; cur != nil; cur = cur.Parent() {
		if ancestor != nil && cur.ID() == ancestor.ID() {
			break
		}
		b := cur.Bounds()
		x += b.X
		y += b.Y
	}
	return x, y
}

// HasProperties reports whether n exposes structured properties.
func HasProperties(n Node) bool {
	_, ok := n.Properties()
	return ok
}

// IsStateful reports whether n is an instance whose visual state can be
// switched through component properties.
func IsStateful(n Node) bool {
	return n.Kind() == KindInstance && HasProperties(n)
}
