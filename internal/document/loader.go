package document

import (
	"fmt"
	"sync"

	"github.com/starford/questline/internal/host"
)

// Loader holds the current snapshot of a document file and swaps it on
// Reload. A failed reload keeps the previous snapshot.
type Loader struct {
	path string
	opts []Option

	mu  sync.RWMutex
	doc *Document
}

// NewLoader opens path once and keeps the options for later reloads.
func NewLoader(path string, opts ...Option) (*Loader, error) {
	l := &Loader{path: path, opts: opts}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the watched snapshot path.
func (l *Loader) Path() string {
	return l.path
}

// Document returns the current snapshot.
func (l *Loader) Document() host.Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.doc
}

// Reload re-reads the snapshot from disk.
func (l *Loader) Reload() error {
	doc, err := Open(l.path, l.opts...)
	if err != nil {
		return fmt.Errorf("document: reload: %w", err)
	}
	l.mu.Lock()
	l.doc = doc
	l.mu.Unlock()
	return nil
}
