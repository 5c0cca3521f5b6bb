package scan

import (
	"maps"
	"slices"
	"strings"

	"github.com/starford/questline/internal/host"
)

// Layer names of the quest component schema.
const (
	VisualsLayer    = "Visuals"
	ImageLayer      = "Image"
	PropertiesLayer = "Properties"
)

// Strategy names how a quest's render target was found.
type Strategy string

const (
	StrategyNone    Strategy = ""
	StrategySimple  Strategy = "simple"  // Visuals holds a single Image
	StrategyComplex Strategy = "complex" // Visuals holds several layers and is rendered whole
	StrategyLegacy  Strategy = "legacy"  // Image layer with an image fill
)

// Target is the node rendered for a quest and the one its geometry comes from.
type Target struct {
	Node     host.Node
	Strategy Strategy
}

// Flattened reports whether the whole visual group is rendered together.
func (t Target) Flattened() bool {
	return t.Strategy == StrategyComplex
}

// ResolveTarget finds the render target of a quest: the structured Visuals
// layout first, then a legacy Image layer. ok is false when the quest has
// nothing to render.
func ResolveTarget(quest host.Node) (Target, bool) {
	if t, ok := resolveStructured(quest); ok {
		return t, true
	}
	if n := resolveLegacy(quest); n != nil {
		return Target{Node: n, Strategy: StrategyLegacy}, true
	}
	return Target{}, false
}

func resolveStructured(quest host.Node) (Target, bool) {
	visuals := host.FindOne(quest, host.Named(VisualsLayer))
	if visuals == nil {
		return Target{}, false
	}
	children := visuals.Children()
	switch {
	case len(children) > 1:
		return Target{Node: visuals, Strategy: StrategyComplex}, true
	case len(children) == 1 && children[0].Name() == ImageLayer:
		return Target{Node: children[0], Strategy: StrategySimple}, true
	}
	return Target{}, false
}

// resolveLegacy requires the Image layer to be a direct child for groups and
// searches the whole subtree of instances.
func resolveLegacy(quest host.Node) host.Node {
	switch quest.Kind() {
	case host.KindGroup:
		for _, c := range quest.Children() {
			if isImageLayer(c) {
				return c
			}
		}
	case host.KindInstance:
		return host.FindOne(quest, isImageLayer)
	}
	return nil
}

func isImageLayer(n host.Node) bool {
	if n.Name() != ImageLayer || !n.HasImageFill() {
		return false
	}
	return n.Kind() == host.KindFrame || n.Kind() == host.KindShape
}

// IsCandidate reports whether a direct child of the questline may be a quest:
// an instance or group exposing component properties, or a group holding an
// Image frame.
func IsCandidate(n host.Node) bool {
	switch n.Kind() {
	case host.KindInstance:
		return host.HasProperties(n)
	case host.KindGroup:
		if host.HasProperties(n) {
			return true
		}
		return slices.ContainsFunc(n.Children(), func(c host.Node) bool {
			return c.Kind() == host.KindFrame && c.Name() == ImageLayer && c.Renderable()
		})
	}
	return false
}

// KeySource names where a quest key was read from.
type KeySource string

const (
	KeyNone       KeySource = ""
	KeyStructured KeySource = "structured" // Properties/questKey text layer
	KeyProperty   KeySource = "property"   // questKey* component property
	KeyText       KeySource = "text"       // first text child
)

// ExtractKey reads the raw quest key. The text-child lookup only applies to
// nodes without component properties.
func ExtractKey(n host.Node) (string, KeySource) {
	if group := host.FindOne(n, host.Named(PropertiesLayer)); group != nil {
		for _, c := range group.Children() {
			if c.Kind() != host.KindText || !strings.Contains(strings.ToLower(c.Name()), "questkey") {
				continue
			}
			if c.Characters() != "" {
				return c.Characters(), KeyStructured
			}
			// Only the first questKey layer counts; an empty one defers to
			// the component properties.
			break
		}
	}

	if props, ok := n.Properties(); ok {
		for _, k := range slices.Sorted(maps.Keys(props)) {
			if strings.HasPrefix(k, "questKey") {
				return props[k], KeyProperty
			}
		}
		return "", KeyNone
	}

	for _, c := range n.Children() {
		if c.Kind() == host.KindText {
			return c.Characters(), KeyText
		}
	}
	return "", KeyNone
}
