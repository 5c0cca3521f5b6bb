// Package plugin implements the message protocol between the UI layer and
// the scanner/exporter core.
package plugin

import (
	"context"

	"github.com/starford/questline/internal/issue"
	"github.com/starford/questline/internal/models"
)

// Type is the envelope discriminator.
type Type string

// Inbound message types.
const (
	TypeScan   Type = "SCAN"
	TypeExport Type = "EXPORT"
	TypeResize Type = "RESIZE"
)

// Outbound message types.
const (
	TypeScanProgress     Type = "SCAN_PROGRESS"
	TypeScanResult       Type = "SCAN_RESULT"
	TypeExportResult     Type = "EXPORT_RESULT"
	TypeExportWithFolder Type = "EXPORT_WITH_FOLDER"
)

// Message is an outbound envelope. Its JSON encoding carries the type field.
type Message interface {
	MessageType() Type
}

// ScanProgress reports scan progress in percent.
type ScanProgress struct {
	Type     Type `json:"type"`
	Progress int  `json:"progress"`
}

// ScanResult delivers a finished scan.
type ScanResult struct {
	Type Type               `json:"type"`
	Data *models.ScanResult `json:"data"`
}

// ExportResult delivers the outcome of an export.
type ExportResult struct {
	Type Type                `json:"type"`
	Data models.ExportResult `json:"data"`
}

// ExportWithFolder hands a complete export to the UI for packaging.
// Image data is base64 in JSON.
type ExportWithFolder struct {
	Type        Type                   `json:"type"`
	QuestlineID string                 `json:"questlineId"`
	Images      []models.Asset         `json:"images"`
	JSON        models.QuestlineExport `json:"json"`
}

func (ScanProgress) MessageType() Type     { return TypeScanProgress }
func (ScanResult) MessageType() Type       { return TypeScanResult }
func (ExportResult) MessageType() Type     { return TypeExportResult }
func (ExportWithFolder) MessageType() Type { return TypeExportWithFolder }

// NewScanProgress returns a SCAN_PROGRESS message.
func NewScanProgress(p int) ScanProgress {
	return ScanProgress{Type: TypeScanProgress, Progress: p}
}

// NewScanResult returns a SCAN_RESULT message.
func NewScanResult(r *models.ScanResult) ScanResult {
	return ScanResult{Type: TypeScanResult, Data: r}
}

// NewExportResult returns an EXPORT_RESULT message.
func NewExportResult(r models.ExportResult) ExportResult {
	if r.Issues == nil {
		r.Issues = []issue.Issue{}
	}
	return ExportResult{Type: TypeExportResult, Data: r}
}

// NewExportWithFolder returns an EXPORT_WITH_FOLDER message for b.
func NewExportWithFolder(b models.Bundle) ExportWithFolder {
	return ExportWithFolder{
		Type:        TypeExportWithFolder,
		QuestlineID: b.QuestlineID,
		Images:      b.Assets,
		JSON:        b.Manifest,
	}
}

// Outbox receives every outbound message of a session.
type Outbox interface {
	Send(ctx context.Context, m Message)
}

// OutboxFunc adapts a function to Outbox.
type OutboxFunc func(ctx context.Context, m Message)

// Send calls f.
func (f OutboxFunc) Send(ctx context.Context, m Message) {
	f(ctx, m)
}

// Outboxes fans a message out to several outboxes in order.
type Outboxes []Outbox

// Send implements Outbox.
func (o Outboxes) Send(ctx context.Context, m Message) {
	for _, out := range o {
		out.Send(ctx, m)
	}
}
