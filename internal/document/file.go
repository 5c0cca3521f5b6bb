// Package document implements host.Document on top of a scene snapshot file.
//
// A snapshot is a YAML or JSON tree of nodes mirroring what a design editor
// exposes to plugins: frames, groups, component instances with per-state
// variants, text layers and shapes with solid or image fills.
package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/questline/internal/host"
)

// Paint types.
const (
	PaintSolid = "SOLID"
	PaintImage = "IMAGE"
)

// File is the on-disk snapshot.
type File struct {
	Name      string   `yaml:"name" json:"name"`
	Selection []string `yaml:"selection" json:"selection"`
	Nodes     []*Spec  `yaml:"nodes" json:"nodes"`
}

// Spec describes one node of the snapshot.
type Spec struct {
	ID         string             `yaml:"id" json:"id"`
	Type       string             `yaml:"type" json:"type"`
	Name       string             `yaml:"name" json:"name"`
	X          float64            `yaml:"x" json:"x"`
	Y          float64            `yaml:"y" json:"y"`
	Width      float64            `yaml:"width" json:"width"`
	Height     float64            `yaml:"height" json:"height"`
	Rotation   float64            `yaml:"rotation" json:"rotation"`
	Characters string             `yaml:"characters" json:"characters"`
	Fills      []Paint            `yaml:"fills" json:"fills"`
	Properties map[string]string  `yaml:"properties" json:"properties"`
	Variants   map[string][]*Spec `yaml:"variants" json:"variants"`
	Children   []*Spec            `yaml:"children" json:"children"`
}

// Paint is a single fill layer.
type Paint struct {
	Type  string `yaml:"type" json:"type"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
	// Src is a path relative to the snapshot, a data URL, or an http(s) URL.
	Src string `yaml:"src,omitempty" json:"src,omitempty"`
}

// ReadFile parses the snapshot at path. The format is chosen by extension;
// anything other than .json is read as YAML.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("document: read %s: %w", path, err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes snapshot data in the format named by ext.
func Parse(data []byte, ext string) (*File, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("document: parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("document: parse yaml: %w", err)
		}
	}
	return &f, nil
}

func kindOf(nodeType string) host.Kind {
	switch strings.ToUpper(nodeType) {
	case "FRAME", "COMPONENT", "COMPONENT_SET", "SECTION":
		return host.KindFrame
	case "GROUP":
		return host.KindGroup
	case "INSTANCE":
		return host.KindInstance
	case "TEXT":
		return host.KindText
	case "RECTANGLE", "ELLIPSE", "POLYGON", "STAR", "VECTOR", "LINE", "BOOLEAN_OPERATION":
		return host.KindShape
	default:
		return host.KindOther
	}
}
