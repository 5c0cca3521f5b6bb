package api

import (
	"github.com/starford/questline/internal/history"
	"github.com/starford/questline/internal/issue"
)

// ExportRecord is a stored export (aliased from the history layer).
type ExportRecord = history.Record

// ExportListResponse wraps paginated export listings.
type ExportListResponse struct {
	Exports []ExportRecord `json:"exports"`
	Total   int            `json:"total"`
}

// CatalogEntry describes one issue code.
type CatalogEntry struct {
	Code        issue.Code `json:"code"`
	Title       string     `json:"title"`
	Remediation string     `json:"remediation"`
}

// CatalogResponse lists every issue code.
type CatalogResponse struct {
	Codes []CatalogEntry `json:"codes"`
}

// AcceptedResponse acknowledges a message queued for processing.
type AcceptedResponse struct {
	Type string `json:"type"`
}
