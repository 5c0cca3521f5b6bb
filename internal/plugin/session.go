package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"

	"github.com/starford/questline/internal/apperr"
	"github.com/starford/questline/internal/export"
	"github.com/starford/questline/internal/host"
	"github.com/starford/questline/internal/issue"
	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/scan"
)

// Source yields the current document. It is consulted at the start of every
// operation so reloads are picked up between messages.
type Source interface {
	Document() host.Document
}

// Size is the UI surface size reported by RESIZE.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Option configures a Session.
type Option func(*Session)

// WithScanOptions sets the options of every scanner the session creates.
func WithScanOptions(opts ...scan.Option) Option {
	return func(s *Session) {
		s.scanOpts = append(s.scanOpts, opts...)
	}
}

// WithExportOptions sets the options of every exporter the session creates.
func WithExportOptions(opts ...export.Option) Option {
	return func(s *Session) {
		s.exportOpts = append(s.exportOpts, opts...)
	}
}

// WithSink adds a destination for successful export bundles, after the
// EXPORT_WITH_FOLDER push.
func WithSink(sink export.Sink) Option {
	return func(s *Session) {
		s.sinks = append(s.sinks, sink)
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session dispatches plugin messages. Scans and exports mutate the shared
// document, so at most one runs at a time.
type Session struct {
	src        Source
	out        Outbox
	scanOpts   []scan.Option
	exportOpts []export.Option
	sinks      export.MultiSink
	logger     *slog.Logger
	sem        *semaphore.Weighted

	mu   sync.RWMutex
	size Size
	last *models.ScanResult
}

// NewSession returns a Session reading documents from src and writing
// outbound messages to out.
func NewSession(src Source, out Outbox, opts ...Option) *Session {
	s := &Session{
		src:    src,
		out:    out,
		logger: slog.Default(),
		sem:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scanOpts = append(s.scanOpts, scan.WithLogger(s.logger))
	s.exportOpts = append(s.exportOpts, export.WithLogger(s.logger))
	return s
}

// Handle processes one raw envelope to completion. Unknown types are logged
// and ignored; a malformed envelope yields apperr.ErrInvalidMessage.
func (s *Session) Handle(ctx context.Context, raw []byte) error {
	typ, err := Peek(raw)
	if err != nil {
		return err
	}

	switch typ {
	case TypeScan:
		_, err := s.Scan(ctx)
		return err
	case TypeExport:
		var sc *models.ScanResult
		if v := gjson.GetBytes(raw, "scan"); v.Exists() && v.Type != gjson.Null {
			sc = new(models.ScanResult)
			if err := json.Unmarshal([]byte(v.Raw), sc); err != nil {
				return fmt.Errorf("plugin: %w: scan: %s", apperr.ErrInvalidMessage, err.Error())
			}
		}
		_, err := s.Export(ctx, sc)
		return err
	case TypeResize:
		s.Resize(Size{
			Width:  gjson.GetBytes(raw, "width").Float(),
			Height: gjson.GetBytes(raw, "height").Float(),
		})
		return nil
	default:
		s.logger.Warn("plugin: unknown message type", slog.String("type", string(typ)))
		return nil
	}
}

// Peek checks that raw is a JSON envelope with a string type and returns it.
func Peek(raw []byte) (Type, error) {
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("plugin: %w: not JSON", apperr.ErrInvalidMessage)
	}
	t := gjson.GetBytes(raw, "type")
	if t.Type != gjson.String || t.Str == "" {
		return "", fmt.Errorf("plugin: %w: missing type", apperr.ErrInvalidMessage)
	}
	return Type(t.Str), nil
}

// Scan runs a scan over the current selection, streaming SCAN_PROGRESS and
// finishing with SCAN_RESULT. It waits for any running operation.
func (s *Session) Scan(ctx context.Context) (*models.ScanResult, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	res := s.scan(ctx, true)
	s.send(ctx, NewScanResult(res))
	return res, nil
}

// TryScan is Scan that fails with apperr.ErrBusy instead of waiting.
func (s *Session) TryScan(ctx context.Context) (*models.ScanResult, error) {
	if !s.sem.TryAcquire(1) {
		return nil, apperr.ErrBusy
	}
	defer s.sem.Release(1)

	res := s.scan(ctx, true)
	s.send(ctx, NewScanResult(res))
	return res, nil
}

func (s *Session) scan(ctx context.Context, progress bool) (res *models.ScanResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("plugin: scan panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
			res = models.EmptyScan(issue.Errorf(issue.CodeUnknown, "", "Scan failed: %v", r))
		}
	}()

	doc := s.src.Document()
	var fn scan.ProgressFunc
	if progress {
		fn = func(p int) { s.send(ctx, NewScanProgress(p)) }
	}
	res = scan.New(doc, s.scanOpts...).ScanWithProgress(ctx, doc.Selection(), fn)

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res
}

// Export exports sc, or a fresh scan when sc is nil, and sends
// EXPORT_RESULT. A successful export is pushed as EXPORT_WITH_FOLDER first
// and then handed to the configured sinks.
func (s *Session) Export(ctx context.Context, sc *models.ScanResult) (models.ExportResult, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return models.ExportResult{}, err
	}
	defer s.sem.Release(1)

	res := s.export(ctx, sc)
	s.send(ctx, NewExportResult(res))
	return res, nil
}

func (s *Session) export(ctx context.Context, sc *models.ScanResult) (res models.ExportResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("plugin: export panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
			res = models.ExportResult{Issues: []issue.Issue{
				issue.Errorf(issue.CodeUnknown, "", "Export failed: %v", r),
			}}
		}
	}()

	if sc == nil {
		s.logger.Debug("plugin: no scan provided, scanning")
		sc = s.scan(ctx, false)
	}
	if issue.HasErrors(sc.Issues) {
		return models.ExportResult{Issues: sc.Issues}
	}

	folder := export.SinkFunc(func(ctx context.Context, b models.Bundle) error {
		s.send(ctx, NewExportWithFolder(b))
		return nil
	})
	sinks := append(export.MultiSink{folder}, s.sinks...)
	opts := append(append([]export.Option{}, s.exportOpts...), export.WithSink(sinks))
	return export.New(s.src.Document(), opts...).Export(ctx, sc)
}

// Inspect reports how the current selection would be read by a scan.
func (s *Session) Inspect(ctx context.Context) (scan.Report, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return scan.Report{}, err
	}
	defer s.sem.Release(1)

	doc := s.src.Document()
	return scan.New(doc, s.scanOpts...).Inspect(doc.Selection()), nil
}

// Resize records the UI surface size.
func (s *Session) Resize(size Size) {
	s.mu.Lock()
	s.size = size
	s.mu.Unlock()
	s.logger.Debug("plugin: resize",
		slog.Float64("width", size.Width),
		slog.Float64("height", size.Height))
}

// Size returns the last size reported by RESIZE.
func (s *Session) Size() Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// LastScan returns the most recent scan result, nil before the first scan.
func (s *Session) LastScan() *models.ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Refresh rescans after a document change and broadcasts SCAN_RESULT
// without progress. It is skipped while another operation runs.
func (s *Session) Refresh(ctx context.Context) {
	if !s.sem.TryAcquire(1) {
		s.logger.Debug("plugin: refresh skipped, busy")
		return
	}
	defer s.sem.Release(1)
	s.send(ctx, NewScanResult(s.scan(ctx, false)))
}

func (s *Session) send(ctx context.Context, m Message) {
	if s.out != nil {
		s.out.Send(ctx, m)
	}
}
