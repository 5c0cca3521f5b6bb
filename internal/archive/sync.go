package archive

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/questline/internal/bundle"
	"github.com/starford/questline/internal/checksum"
	"github.com/starford/questline/internal/history"
)

// Sync walks the store and brings the history up to date:
//   - zip objects with no record are unpacked and recorded
//   - records whose object is gone are deleted
func (a *Archiver) Sync(ctx context.Context) error {
	objs, err := a.store.List("", ".zip")
	if err != nil {
		return err
	}
	known, err := a.db.Objects()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(objs))
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return err
		}
		disk[o.Name] = struct{}{}
		if _, ok := known[o.Name]; ok {
			continue
		}

		data, err := a.store.Read(o.Name)
		if err != nil {
			a.logger.Warn("sync: read failed", slog.String("object", o.Name), slog.String("error", err.Error()))
			continue
		}
		b, err := bundle.Unpack(data)
		if err != nil {
			a.logger.Warn("sync: unpack failed", slog.String("object", o.Name), slog.String("error", err.Error()))
			continue
		}
		rec := history.Record{
			ID:          strings.TrimSuffix(path.Base(o.Name), ".zip"),
			QuestlineID: b.QuestlineID,
			QuestCount:  len(b.Manifest.Quests),
			AssetCount:  len(b.Assets),
			Checksum:    checksum.Sum(data),
			Object:      o.Name,
			Size:        o.Size,
			CreatedAt:   o.UpdatedAt.UTC(),
			Quests:      questRows(b.Manifest.Quests),
		}
		if err := a.db.Insert(rec); err != nil {
			a.logger.Warn("sync: record failed", slog.String("object", o.Name), slog.String("error", err.Error()))
		} else {
			a.logger.Debug("sync: recorded", slog.String("object", o.Name))
		}
	}

	// Remove stale entries.
	for obj, id := range known {
		if _, ok := disk[obj]; ok {
			continue
		}
		if err := a.db.Delete(id); err != nil {
			a.logger.Warn("sync: delete failed", slog.String("export_id", id), slog.String("error", err.Error()))
		} else {
			a.logger.Debug("sync: removed stale", slog.String("export_id", id))
		}
	}
	return nil
}
