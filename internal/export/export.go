// Package export turns a clean scan result into the positions manifest and
// the rendered asset set.
//
// Export is all or nothing: the first failure aborts and is reported as the
// single issue of the result, with a nil manifest.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/questline/internal/host"
	"github.com/starford/questline/internal/issue"
	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/scan"
)

// DefaultSettleDelay is the wait after each state switch.
const DefaultSettleDelay = 100 * time.Millisecond

// Option configures an Exporter.
type Option func(*Exporter)

// WithSettleDelay sets the wait after each state switch.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Exporter) {
		e.settle = d
	}
}

// WithLogger sets the exporter logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSink sets where successful bundles are handed off.
func WithSink(s Sink) Option {
	return func(e *Exporter) {
		e.sink = s
	}
}

// Exporter renders every quest state and assembles the manifest.
type Exporter struct {
	doc    host.Document
	settle time.Duration
	logger *slog.Logger
	sink   Sink
}

// New returns an Exporter over doc.
func New(doc host.Document, opts ...Option) *Exporter {
	e := &Exporter{
		doc:    doc,
		settle: DefaultSettleDelay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export builds the bundle and, on success, hands it to the sink. Delivery
// failures are logged and do not change the result.
func (e *Exporter) Export(ctx context.Context, sc *models.ScanResult) models.ExportResult {
	bundle, res := e.Build(ctx, sc)
	if bundle == nil || e.sink == nil {
		return res
	}
	if err := e.sink.Deliver(ctx, *bundle); err != nil {
		e.logger.Error("export: bundle delivery failed",
			slog.String("questline_id", bundle.QuestlineID),
			slog.String("error", err.Error()))
	}
	return res
}

// Build renders the bundle without delivering it. The bundle is nil
// whenever the result carries an issue.
func (e *Exporter) Build(ctx context.Context, sc *models.ScanResult) (*models.Bundle, models.ExportResult) {
	if sc != nil && issue.HasErrors(sc.Issues) {
		e.logger.Debug("export: scan has errors", slog.Int("issues", len(sc.Issues)))
		return nil, models.ExportResult{Issues: sc.Issues}
	}
	if err := Validate(sc); err != nil {
		return nil, failed(issue.Errorf(issue.CodeValidationFailed, "", "Validation failed: %s", err.Error()))
	}

	log := e.logger.With(slog.String("questline_id", sc.QuestlineID))
	assets := make([]models.Asset, 0, 1+len(models.States)*len(sc.Quests))

	bg, err := e.renderBackground(ctx, sc.BackgroundNodeID)
	if err != nil {
		log.Warn("export: background failed", slog.String("error", err.Error()))
		return nil, failed(issue.Errorf(issue.CodeImageExportFailed, sc.BackgroundNodeID,
			"Background image could not be exported: %s", err.Error()))
	}
	assets = append(assets, models.Asset{Name: models.BackgroundAsset, Data: bg})

	manifest := models.QuestlineExport{
		QuestlineID: sc.QuestlineID,
		FrameSize:   sc.FrameSize,
		Background:  models.Background{ExportURL: models.BackgroundAsset},
		Quests:      make([]models.QuestExport, 0, len(sc.Quests)),
	}

	for _, q := range sc.Quests {
		rendered, err := e.renderQuest(ctx, q, log)
		if err != nil {
			log.Warn("export: quest failed",
				slog.String("quest_key", q.QuestKey),
				slog.String("error", err.Error()))
			return nil, failed(issue.Errorf(issue.CodeImageExportFailed, q.NodeID,
				"Quest image export failed for %s: %s", q.QuestKey, err.Error()))
		}
		assets = append(assets, rendered...)
		manifest.Quests = append(manifest.Quests, models.QuestExport{
			QuestKey:     q.QuestKey,
			X:            q.X,
			Y:            q.Y,
			W:            q.W,
			H:            q.H,
			Rotation:     q.Rotation,
			LockedImg:    models.AssetName(q.QuestKey, models.StateLocked),
			ActiveImg:    models.AssetName(q.QuestKey, models.StateActive),
			UnclaimedImg: models.AssetName(q.QuestKey, models.StateUnclaimed),
			CompletedImg: models.AssetName(q.QuestKey, models.StateCompleted),
		})
	}

	log.Info("export: bundle ready",
		slog.Int("quests", len(manifest.Quests)),
		slog.Int("assets", len(assets)))

	bundle := &models.Bundle{QuestlineID: sc.QuestlineID, Manifest: manifest, Assets: assets}
	return bundle, models.ExportResult{Manifest: &bundle.Manifest, Issues: []issue.Issue{}}
}

func failed(i issue.Issue) models.ExportResult {
	return models.ExportResult{Issues: []issue.Issue{i}}
}

func (e *Exporter) renderBackground(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, errors.New("background node not found")
	}
	bg, ok := e.doc.NodeByID(id)
	if !ok {
		return nil, errors.New("background node not found")
	}
	return e.doc.Export(ctx, bg)
}

// renderQuest switches the quest instance through every state and renders
// each one. The original state is restored before it returns.
func (e *Exporter) renderQuest(ctx context.Context, q models.ScanQuest, log *slog.Logger) ([]models.Asset, error) {
	node, ok := e.doc.NodeByID(q.NodeID)
	if !ok || node.Kind() != host.KindInstance {
		return nil, errors.New("quest instance not found")
	}

	props, _ := node.Properties()
	if original, ok := props[host.StateProperty]; ok {
		defer e.restoreState(ctx, node, original, log)
	}

	assets := make([]models.Asset, 0, len(models.States))
	for _, state := range models.States {
		if err := e.doc.SetProperties(ctx, node, map[string]string{host.StateProperty: string(state)}); err != nil {
			return nil, fmt.Errorf("set %s state: %w", state, err)
		}
		if err := host.Settle(ctx, e.settle); err != nil {
			return nil, err
		}

		target := e.locate(node, q.IsFlattened)
		if target == nil {
			return nil, fmt.Errorf("image frame not found for %s state", state)
		}
		data, err := e.doc.Export(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("render %s state: %w", state, err)
		}
		log.Debug("export: state rendered",
			slog.String("quest_key", q.QuestKey),
			slog.String("state", string(state)),
			slog.Int("bytes", len(data)))
		assets = append(assets, models.Asset{Name: models.AssetName(q.QuestKey, state), Data: data})
	}
	return assets, nil
}

// locate re-resolves the render target after a state switch: the whole
// Visuals layer for flattened quests, the image layer otherwise. A quest
// scanned as a single image never falls back to its Visuals group, since
// the manifest carries the image layer's geometry.
func (e *Exporter) locate(quest host.Node, flattened bool) host.Node {
	if n, ok := e.doc.NodeByID(quest.ID()); ok {
		quest = n
	}
	if flattened {
		return host.FindOne(quest, host.Named(scan.VisualsLayer))
	}
	t, ok := scan.ResolveTarget(quest)
	if !ok || t.Strategy == scan.StrategyComplex {
		return nil
	}
	return t.Node
}

func (e *Exporter) restoreState(ctx context.Context, quest host.Node, original string, log *slog.Logger) {
	err := e.doc.SetProperties(context.WithoutCancel(ctx), quest, map[string]string{host.StateProperty: original})
	if err != nil {
		log.Error("export: restore state failed",
			slog.String("node_id", quest.ID()),
			slog.String("state", original),
			slog.String("error", err.Error()))
	}
}
