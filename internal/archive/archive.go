// Package archive stores finished export bundles as zip objects and records
// them in the export history.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/starford/questline/internal/apperr"
	"github.com/starford/questline/internal/bundle"
	"github.com/starford/questline/internal/checksum"
	"github.com/starford/questline/internal/export"
	"github.com/starford/questline/internal/history"
	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/storage"
)

// Archiver packs bundles into the store and indexes them in history.
type Archiver struct {
	store  storage.Provider
	db     history.Store
	logger *slog.Logger
	keep   int
	now    func() time.Time
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets the archiver logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithKeep limits stored exports per questline; older ones are pruned after
// every save. Zero keeps everything.
func WithKeep(n int) Option {
	return func(a *Archiver) {
		a.keep = n
	}
}

// New returns an Archiver over store and db.
func New(store storage.Provider, db history.Store, opts ...Option) *Archiver {
	a := &Archiver{
		store:  store,
		db:     db,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ export.Sink = (*Archiver)(nil)

// Deliver implements export.Sink.
func (a *Archiver) Deliver(ctx context.Context, b models.Bundle) error {
	_, err := a.Save(ctx, b)
	return err
}

// Save verifies and packs b, writes it as <questlineId>/<id>.zip and records
// it. The object is removed again if the history insert fails.
func (a *Archiver) Save(ctx context.Context, b models.Bundle) (*history.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := bundle.Verify(b).Err(); err != nil {
		return nil, fmt.Errorf("archive: verify: %w", err)
	}
	data, err := bundle.Pack(b)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	id := uuid.NewString()
	rec := history.Record{
		ID:          id,
		QuestlineID: b.QuestlineID,
		QuestCount:  len(b.Manifest.Quests),
		AssetCount:  len(b.Assets),
		Checksum:    checksum.Sum(data),
		Object:      path.Join(b.QuestlineID, id+".zip"),
		Size:        int64(len(data)),
		CreatedAt:   a.now(),
		Quests:      questRows(b.Manifest.Quests),
	}
	if err := a.store.Write(rec.Object, data); err != nil {
		return nil, fmt.Errorf("archive: store: %w", err)
	}
	if err := a.db.Insert(rec); err != nil {
		if derr := a.store.Delete(rec.Object); derr != nil {
			a.logger.Warn("archive: cleanup failed", slog.String("object", rec.Object), slog.String("error", derr.Error()))
		}
		return nil, fmt.Errorf("archive: record: %w", err)
	}

	a.logger.Info("archive: export saved",
		slog.String("export_id", id),
		slog.String("questline_id", b.QuestlineID),
		slog.Int64("size", rec.Size))

	if a.keep > 0 {
		a.prune(b.QuestlineID)
	}
	return &rec, nil
}

func questRows(quests []models.QuestExport) []history.QuestRow {
	rows := make([]history.QuestRow, len(quests))
	for i, q := range quests {
		rows[i] = history.QuestRow{QuestKey: q.QuestKey, X: q.X, Y: q.Y, W: q.W, H: q.H, Rotation: q.Rotation}
	}
	return rows
}

// List returns stored exports newest first.
func (a *Archiver) List(questlineID string, limit, offset int) ([]history.Record, int, error) {
	return a.db.List(questlineID, limit, offset)
}

// Get returns one export record.
func (a *Archiver) Get(id string) (*history.Record, error) {
	return a.db.Get(id)
}

// Open returns the record of an export and a stream over its zip. The
// caller closes the stream.
func (a *Archiver) Open(id string) (*history.Record, io.ReadSeekCloser, error) {
	rec, err := a.db.Get(id)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := a.store.Open(rec.Object)
	if err != nil {
		return nil, nil, err
	}
	return rec, rc, nil
}

// Delete removes an export from history and the store. A missing object is
// not an error once the record is gone.
func (a *Archiver) Delete(id string) error {
	rec, err := a.db.Get(id)
	if err != nil {
		return err
	}
	if err := a.db.Delete(id); err != nil {
		return err
	}
	if err := a.store.Delete(rec.Object); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("archive: delete object: %w", err)
	}
	return nil
}

func (a *Archiver) prune(questlineID string) {
	recs, _, err := a.db.List(questlineID, -1, a.keep)
	if err != nil {
		a.logger.Warn("archive: prune list failed", slog.String("error", err.Error()))
		return
	}
	for _, r := range recs {
		if err := a.Delete(r.ID); err != nil {
			a.logger.Warn("archive: prune failed", slog.String("export_id", r.ID), slog.String("error", err.Error()))
			continue
		}
		a.logger.Debug("archive: pruned", slog.String("export_id", r.ID))
	}
}

// QuestHistory returns the exports that contained questKey, newest first.
func (a *Archiver) QuestHistory(questKey string, limit int) ([]history.QuestUse, error) {
	return a.db.QuestHistory(questKey, limit)
}
