package internal

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/questline/internal/archive"
	"github.com/starford/questline/internal/document"
	"github.com/starford/questline/internal/export"
	"github.com/starford/questline/internal/history"
	"github.com/starford/questline/internal/plugin"
	"github.com/starford/questline/internal/scan"
	"github.com/starford/questline/internal/storage"
)

// Runtime is the wired core shared by the server and the one-shot commands.
type Runtime struct {
	Loader  *document.Loader
	Archive *archive.Archiver
	Session *plugin.Session
	// Inbox feeds Session in arrival order once its Run loop is started.
	Inbox *plugin.Inbox

	db *history.DB
}

// NewRuntime opens the document, the bundle store and the export history
// and builds a session that writes outbound messages to out. out may be nil.
// Every successful export is archived; opts add further session options.
func NewRuntime(cfg *Config, logger *slog.Logger, out plugin.Outbox, opts ...plugin.Option) (*Runtime, error) {
	loader, err := document.NewLoader(cfg.Document.Path,
		document.WithSelection(cfg.Document.Selection...),
		document.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}

	if err := os.MkdirAll(cfg.Export.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Export.Dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := history.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}

	arch := archive.New(store, db,
		archive.WithLogger(logger),
		archive.WithKeep(cfg.Export.Keep),
	)

	sessionOpts := append([]plugin.Option{
		plugin.WithLogger(logger),
		plugin.WithScanOptions(
			scan.WithPrefix(cfg.Scan.Prefix),
			scan.WithSettleDelay(cfg.Scan.SettleDelay),
		),
		plugin.WithExportOptions(export.WithSettleDelay(cfg.Scan.SettleDelay)),
		plugin.WithSink(arch),
	}, opts...)

	session := plugin.NewSession(loader, out, sessionOpts...)
	return &Runtime{
		Loader:  loader,
		Archive: arch,
		Session: session,
		Inbox:   plugin.NewInbox(session, plugin.DefaultInboxSize),
		db:      db,
	}, nil
}

// Close releases the export history database.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
