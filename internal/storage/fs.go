package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/questline/internal/apperr"
	"github.com/starford/questline/internal/checksum"
)

const (
	tmpPrefix  = ".questline-tmp-"
	tmpPattern = tmpPrefix + "*"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the archive directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// safePath maps an object name onto the file system. Names are slash
// separated and must stay inside the root.
func (f *FS) safePath(name string) (string, error) {
	if name == "" {
		return f.root, nil
	}
	local, err := filepath.Localize(path.Clean(name))
	if err != nil || !filepath.IsLocal(local) {
		return "", fmt.Errorf("storage: path escapes root: %s", name)
	}
	return filepath.Join(f.root, local), nil
}

// List walks dir and returns every object ending in ext, newest first with
// ties broken by name. Temp files from in-flight writes are skipped. Objects
// are hashed while streaming, so large archives are never held in memory.
func (f *FS) List(dir, ext string) ([]Object, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	out := []Object{}
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ext) || isTemp(d.Name()) {
			return nil
		}
		obj, err := f.describe(p)
		if err != nil {
			return err
		}
		out = append(out, obj)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// describe stats and hashes the file at abs.
func (f *FS) describe(abs string) (Object, error) {
	file, err := os.Open(abs)
	if err != nil {
		return Object{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Object{}, err
	}
	sum, _, err := checksum.SumReader(file)
	if err != nil {
		return Object{}, err
	}
	rel, _ := filepath.Rel(f.root, abs)
	return Object{
		Name:      filepath.ToSlash(rel),
		Size:      info.Size(),
		Checksum:  sum,
		UpdatedAt: info.ModTime(),
	}, nil
}

// Open returns the stored file positioned at its start. A missing file
// yields apperr.ErrNotFound.
func (f *FS) Open(name string) (io.ReadSeekCloser, Object, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, Object{}, err
	}
	file, err := os.Open(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Object{}, fmt.Errorf("storage: open %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("storage: open %s: %w", name, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, Object{}, fmt.Errorf("storage: stat %s: %w", name, err)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, Object{}, fmt.Errorf("storage: open %s: %w", name, apperr.ErrNotFound)
	}
	return file, Object{Name: name, Size: info.Size(), UpdatedAt: info.ModTime()}, nil
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, tmpPrefix)
}

// Read returns the raw bytes of a stored file. A missing file yields
// apperr.ErrNotFound.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: read %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Write replaces name atomically: the content goes to a temp file in the
// same directory, is synced, then renamed over the target.
func (f *FS) Write(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a stored file and any directories it leaves empty below
// the root.
func (f *FS) Delete(name string) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	err = os.Remove(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	f.prune(filepath.Dir(abs))
	return nil
}

// prune removes dir and its parents while they are empty, stopping at the
// root. os.Remove refuses non-empty directories, which ends the climb.
func (f *FS) prune(dir string) {
	for dir != f.root && strings.HasPrefix(dir, f.root+string(os.PathSeparator)) {
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
