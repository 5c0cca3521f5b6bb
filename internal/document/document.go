package document

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/starford/questline/internal/apperr"
	"github.com/starford/questline/internal/host"
)

// Document is an in-memory scene tree. It is the shared mutable resource of
// the application: property writes take the write lock, reads and renders
// take the read lock.
type Document struct {
	mu        sync.RWMutex
	name      string
	roots     []*node
	byID      map[string]*node
	selection []string

	images *imageCache
	logger *slog.Logger
}

// Option configures a Document.
type Option func(*options)

type options struct {
	selection []string
	client    *retryablehttp.Client
	logger    *slog.Logger
	baseDir   string
}

// WithSelection overrides the selection stored in the snapshot.
func WithSelection(ids ...string) Option {
	return func(o *options) {
		if len(ids) > 0 {
			o.selection = ids
		}
	}
}

// WithHTTPClient sets the client used to fetch remote image fills.
func WithHTTPClient(c *retryablehttp.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithLogger sets the document logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBaseDir sets the directory relative image paths resolve against.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.baseDir = dir
	}
}

// Open reads and builds the snapshot at path. Relative image paths resolve
// against the snapshot's directory.
func Open(path string, opts ...Option) (*Document, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(f, append([]Option{WithBaseDir(filepath.Dir(path))}, opts...)...)
}

// New builds a document from a parsed snapshot.
func New(f *File, opts ...Option) (*Document, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.client == nil {
		o.client = newHTTPClient(o.logger)
	}

	d := &Document{
		name:      f.Name,
		byID:      make(map[string]*node),
		selection: slices.Clone(f.Selection),
		images:    newImageCache(o.baseDir, o.client),
		logger:    o.logger,
	}
	if o.selection != nil {
		d.selection = slices.Clone(o.selection)
	}

	for i, spec := range f.Nodes {
		n, err := d.build(spec, nil, strconv.Itoa(i+1))
		if err != nil {
			return nil, err
		}
		d.roots = append(d.roots, n)
	}
	return d, nil
}

func newHTTPClient(logger *slog.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.HTTPClient.Timeout = 3 * time.Second
	c.Logger = logger
	return c
}

func (d *Document) build(spec *Spec, parent *node, fallbackID string) (*node, error) {
	id := spec.ID
	if id == "" {
		id = fallbackID
	}
	if _, dup := d.byID[id]; dup {
		return nil, fmt.Errorf("document: duplicate node id %q", id)
	}

	n := &node{
		doc:    d,
		spec:   spec,
		id:     id,
		kind:   kindOf(spec.Type),
		parent: parent,
	}
	if spec.Properties != nil {
		n.props = maps.Clone(spec.Properties)
	}
	d.byID[id] = n

	for i, c := range spec.Children {
		child, err := d.build(c, n, id+":"+strconv.Itoa(i+1))
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, child)
	}

	if len(spec.Variants) > 0 {
		n.variants = make(map[string][]*node, len(spec.Variants))
		for _, state := range slices.Sorted(maps.Keys(spec.Variants)) {
			for i, c := range spec.Variants[state] {
				child, err := d.build(c, n, id+"/"+state+":"+strconv.Itoa(i+1))
				if err != nil {
					return nil, err
				}
				n.variants[state] = append(n.variants[state], child)
			}
		}
	}
	return n, nil
}

// Name returns the snapshot name.
func (d *Document) Name() string {
	return d.name
}

// Selection resolves the selected ids. Entries that match no id fall back to
// the first node with exactly that name; entries matching nothing are dropped.
func (d *Document) Selection() []host.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]host.Node, 0, len(d.selection))
	for _, ref := range d.selection {
		if n, ok := d.byID[ref]; ok {
			out = append(out, n)
			continue
		}
		if n := d.findNamed(d.roots, ref); n != nil {
			out = append(out, n)
			continue
		}
		d.logger.Debug("selection entry not found", slog.String("ref", ref))
	}
	return out
}

func (d *Document) findNamed(nodes []*node, name string) *node {
	for _, n := range nodes {
		if n.spec.Name == name {
			return n
		}
		if found := d.findNamed(n.visibleChildren(), name); found != nil {
			return found
		}
	}
	return nil
}

// Roots returns the top-level nodes.
func (d *Document) Roots() []host.Node {
	out := make([]host.Node, len(d.roots))
	for i, n := range d.roots {
		out[i] = n
	}
	return out
}

// NodeByID resolves any node, including variant children that are not
// currently visible.
func (d *Document) NodeByID(id string) (host.Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.byID[id]
	if !ok {
		return nil, false
	}
	return n, true
}

func (d *Document) lookup(n host.Node) (*node, error) {
	if n == nil {
		return nil, fmt.Errorf("document: nil node: %w", apperr.ErrNotFound)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	found, ok := d.byID[n.ID()]
	if !ok {
		return nil, fmt.Errorf("document: node %s: %w", n.ID(), apperr.ErrNotFound)
	}
	return found, nil
}

// SetProperties writes component properties on a node. Every key must
// already be exposed by the node; a State value must name a known variant
// when the node defines variants. The write is all or nothing.
func (d *Document) SetProperties(ctx context.Context, n host.Node, props map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	nd, err := d.lookup(n)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if nd.props == nil {
		return fmt.Errorf("document: set properties on %s: %w", nd.id, apperr.ErrUnknownProperty)
	}
	for k, v := range props {
		if _, ok := nd.props[k]; !ok {
			return fmt.Errorf("document: set %q on %s: %w", k, nd.id, apperr.ErrUnknownProperty)
		}
		if k == host.StateProperty && len(nd.variants) > 0 {
			if _, ok := nd.variants[v]; !ok {
				return fmt.Errorf("document: set %s=%q on %s: %w", k, v, nd.id, apperr.ErrUnknownProperty)
			}
		}
	}
	maps.Copy(nd.props, props)
	return nil
}

type node struct {
	doc      *Document
	spec     *Spec
	id       string
	kind     host.Kind
	parent   *node
	children []*node
	variants map[string][]*node
	props    map[string]string
}

func (n *node) ID() string        { return n.id }
func (n *node) Name() string      { return n.spec.Name }
func (n *node) Kind() host.Kind   { return n.kind }
func (n *node) Rotation() float64 { return n.spec.Rotation }
func (n *node) Renderable() bool  { return n.kind != host.KindOther }

func (n *node) Parent() host.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *node) Bounds() host.Rect {
	return host.Rect{X: n.spec.X, Y: n.spec.Y, Width: n.spec.Width, Height: n.spec.Height}
}

func (n *node) Characters() string {
	if n.kind != host.KindText {
		return ""
	}
	return n.spec.Characters
}

func (n *node) HasImageFill() bool {
	return slices.ContainsFunc(n.spec.Fills, func(p Paint) bool { return p.Type == PaintImage })
}

func (n *node) Properties() (map[string]string, bool) {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	if n.props == nil {
		return nil, false
	}
	return maps.Clone(n.props), true
}

func (n *node) Children() []host.Node {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	visible := n.visibleChildren()
	out := make([]host.Node, len(visible))
	for i, c := range visible {
		out[i] = c
	}
	return out
}

// visibleChildren must be called with the document lock held.
func (n *node) visibleChildren() []*node {
	if n.kind == host.KindInstance && n.props != nil {
		if v, ok := n.variants[n.props[host.StateProperty]]; ok {
			return v
		}
	}
	return n.children
}
