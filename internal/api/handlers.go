package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/questline/internal/apperr"
	"github.com/starford/questline/internal/archive"
	"github.com/starford/questline/internal/bundle"
	"github.com/starford/questline/internal/checksum"
	"github.com/starford/questline/internal/issue"
	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/plugin"
)

const (
	maxMessageBytes = 64 << 20
	maxImportBytes  = 256 << 20
)

// Handler holds API route handlers.
type Handler struct {
	session *plugin.Session
	inbox   *plugin.Inbox
	archive *archive.Archiver
}

// NewHandler creates a new Handler. Messages posted to /messages go
// through inbox.
func NewHandler(session *plugin.Session, inbox *plugin.Inbox, arch *archive.Archiver) *Handler {
	return &Handler{session: session, inbox: inbox, archive: arch}
}

// PostMessage handles POST /api/messages. The envelope is checked and queued
// behind earlier messages; results arrive on /events and /ws.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r, maxMessageBytes)
	if !ok {
		return
	}
	if h.inbox == nil {
		writeError(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}
	typ, err := h.inbox.Enqueue(r.Context(), raw)
	switch {
	case errors.Is(err, apperr.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Type: string(typ)})
}

// Scan handles POST /api/scan and returns the ScanResult. It fails with 409
// while another scan or export runs.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.TryScan(r.Context())
	if err != nil {
		if errors.Is(err, apperr.ErrBusy) {
			writeError(w, http.StatusConflict, "scan or export in progress")
			return
		}
		internalError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export handles POST /api/export. The body is an optional ScanResult; an
// empty body exports a fresh scan. A result without a manifest is 422.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r, maxMessageBytes)
	if !ok {
		return
	}
	var sc *models.ScanResult
	if len(bytes.TrimSpace(raw)) > 0 {
		sc = new(models.ScanResult)
		if err := json.Unmarshal(raw, sc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	res, err := h.session.Export(r.Context(), sc)
	if err != nil {
		internalError(w, "export", err)
		return
	}
	if res.Manifest == nil {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Inspect handles GET /api/inspect.
func (h *Handler) Inspect(w http.ResponseWriter, r *http.Request) {
	rep, err := h.session.Inspect(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Catalog handles GET /api/catalog.
func (h *Handler) Catalog(w http.ResponseWriter, _ *http.Request) {
	resp := CatalogResponse{Codes: []CatalogEntry{}}
	for _, c := range issue.Codes() {
		resp.Codes = append(resp.Codes, CatalogEntry{Code: c, Title: issue.Title(c), Remediation: issue.Remediation(c)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListExports handles GET /api/exports.
func (h *Handler) ListExports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit < 0 {
		limit = 0
	}

	items, total, err := h.archive.List(q.Get("questlineId"), limit, offset)
	if err != nil {
		internalError(w, "list exports", err)
		return
	}
	writeJSON(w, http.StatusOK, ExportListResponse{Exports: items, Total: total})
}

// GetExport handles GET /api/exports/{id}.
func (h *Handler) GetExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.archive.Get(id)
	if err != nil {
		notFoundOr500(w, "get export", id, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DownloadExport handles GET /api/exports/{id}/download. The checksum is
// the ETag; a matching If-None-Match yields 304.
func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, rc, err := h.archive.Open(id)
	if err != nil {
		notFoundOr500(w, "download export", id, err)
		return
	}
	defer rc.Close()

	name := models.FolderName(rec.QuestlineID) + ".zip"
	w.Header().Set("ETag", checksum.ETag(rec.Checksum))
	w.Header().Set("Content-Type", bundle.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, rec.CreatedAt, rc)
}

// DeleteExport handles DELETE /api/exports/{id}.
func (h *Handler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.archive.Delete(id); err != nil {
		notFoundOr500(w, "delete export", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportExport handles POST /api/exports/import (multipart/form-data, field
// "file"). The zip is verified before it is stored; problems are 422.
func (h *Handler) ImportExport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid multipart")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'file' field in multipart form")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	b, err := bundle.Unpack(data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if rep := bundle.Verify(*b); !rep.OK() {
		writeJSON(w, http.StatusUnprocessableEntity, rep)
		return
	}
	rec, err := h.archive.Save(r.Context(), *b)
	if err != nil {
		internalError(w, "import export", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// QuestHistory handles GET /api/quests/{key}/history.
func (h *Handler) QuestHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 0 {
		limit = 0
	}
	uses, err := h.archive.QuestHistory(key, limit)
	if err != nil {
		internalError(w, "quest history "+key, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"questKey": key,
		"exports":  uses,
	})
}

func notFoundOr500(w http.ResponseWriter, op, id string, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	internalError(w, op+" "+id, err)
}
