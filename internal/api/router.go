package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/questline/internal/archive"
	"github.com/starford/questline/internal/plugin"
	"github.com/starford/questline/internal/sse"
)

// Deps are the collaborators the API routes serve.
type Deps struct {
	Session *plugin.Session
	// Inbox serializes POST /messages and inbound WebSocket frames. Its
	// worker is run by the caller.
	Inbox   *plugin.Inbox
	Archive *archive.Archiver
	// Broker, if non-nil, is mounted at GET /events and feeds GET /ws.
	Broker *sse.Broker

	AuthEnabled bool
	Token       string
}

// NewRouter creates a chi router with all API routes mounted.
// Every route, including the event streams, sits behind the auth middleware.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d.Session, d.Inbox, d.Archive)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(d.AuthEnabled, d.Token))

	// Plugin messages.
	r.Post("/messages", h.PostMessage)
	r.Post("/scan", h.Scan)
	r.Post("/export", h.Export)
	r.Get("/inspect", h.Inspect)
	r.Get("/catalog", h.Catalog)

	// Stored exports.
	r.Get("/exports", h.ListExports)
	r.Post("/exports/import", h.ImportExport)
	r.Get("/exports/{id}", h.GetExport)
	r.Get("/exports/{id}/download", h.DownloadExport)
	r.Delete("/exports/{id}", h.DeleteExport)
	r.Get("/quests/{key}/history", h.QuestHistory)

	if d.Broker != nil {
		r.Get("/events", d.Broker.ServeHTTP)
		if d.Inbox != nil {
			r.Get("/ws", NewSocketHandler(d.Inbox, d.Broker).ServeHTTP)
		}
	}

	return r
}
