// Package bundle packs an export into the zip archive consumed by the game
// client: one questline-<id>/ folder holding positions.json and every PNG.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/starford/questline/internal/models"
)

// ContentType is the media type of a packed bundle.
const ContentType = "application/zip"

// maxEntryBytes caps a single archive entry on Unpack.
const maxEntryBytes = 64 << 20

// Write streams b as a zip archive to w. The manifest is written first,
// indented with two spaces, followed by the assets in bundle order.
func Write(w io.Writer, b models.Bundle, modified time.Time) error {
	folder := models.FolderName(b.QuestlineID)
	zw := zip.NewWriter(w)

	manifest, err := json.MarshalIndent(b.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: encode manifest: %w", err)
	}
	if err := writeEntry(zw, path.Join(folder, models.ManifestFile), manifest, modified, zip.Deflate); err != nil {
		return err
	}
	for _, a := range b.Assets {
		// PNG data is already compressed.
		if err := writeEntry(zw, path.Join(folder, a.Name), a.Data, modified, zip.Store); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("bundle: close archive: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time, method uint16) error {
	hdr := &zip.FileHeader{Name: name, Method: method, Modified: modified}
	f, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("bundle: create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("bundle: write %s: %w", name, err)
	}
	return nil
}

// Pack returns b as zip bytes.
func Pack(b models.Bundle) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, b, time.Now()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unpack reads an archive produced by Pack. Every entry must live in the
// same top-level folder; the manifest is decoded and the other entries are
// returned as assets in archive order.
func Unpack(data []byte) (*models.Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("bundle: open archive: %w", err)
	}

	var (
		folder   string
		manifest []byte
		assets   []models.Asset
	)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dir, name, ok := strings.Cut(f.Name, "/")
		if !ok || name == "" || strings.Contains(name, "/") {
			return nil, fmt.Errorf("bundle: unexpected entry %q", f.Name)
		}
		if folder == "" {
			folder = dir
		} else if dir != folder {
			return nil, fmt.Errorf("bundle: entry %q outside folder %q", f.Name, folder)
		}

		content, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		if name == models.ManifestFile {
			manifest = content
			continue
		}
		assets = append(assets, models.Asset{Name: name, Data: content})
	}
	if manifest == nil {
		return nil, fmt.Errorf("bundle: %s not found", models.ManifestFile)
	}

	var m models.QuestlineExport
	if err := json.Unmarshal(manifest, &m); err != nil {
		return nil, fmt.Errorf("bundle: decode manifest: %w", err)
	}
	if folder != models.FolderName(m.QuestlineID) {
		return nil, fmt.Errorf("bundle: folder %q does not match questline %q", folder, m.QuestlineID)
	}
	return &models.Bundle{QuestlineID: m.QuestlineID, Manifest: m, Assets: assets}, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("bundle: open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, fmt.Errorf("bundle: read %s: %w", f.Name, err)
	}
	if len(data) > maxEntryBytes {
		return nil, errors.New("bundle: entry " + f.Name + " too large")
	}
	return data, nil
}
