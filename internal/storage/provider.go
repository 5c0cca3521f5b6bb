// Package storage keeps exported bundle archives on disk.
package storage

import (
	"io"
	"time"
)

// Object describes one stored archive. Checksum is filled by List only.
type Object struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Provider stores bundle archives under slash-separated names relative to
// its root.
type Provider interface {
	// List returns every object under dir whose name ends in ext, newest
	// first.
	List(dir, ext string) ([]Object, error)
	// Open streams a stored object; the caller closes it.
	Open(name string) (io.ReadSeekCloser, Object, error)
	Read(name string) ([]byte, error)
	// Write replaces name atomically.
	Write(name string, content []byte) error
	Delete(name string) error
}
