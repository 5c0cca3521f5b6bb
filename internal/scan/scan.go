// Package scan reads a questline frame out of the host document and builds
// the ScanResult handed to the UI and the exporter.
//
// Scanning is best effort: problems are accumulated as issues and a quest
// that fails validation is dropped without stopping the scan. Quest state
// switches made to capture previews are always reverted.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/questline/internal/host"
	"github.com/starford/questline/internal/issue"
	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/slug"
)

// Defaults.
const (
	DefaultPrefix      = "Questline:"
	DefaultSettleDelay = 100 * time.Millisecond
)

// Progress checkpoints reported through a ProgressFunc.
const (
	ProgressStarted  = 10
	ProgressFinished = 100

	// quests share the range between started and 90
	progressSpan = 80
)

// ProgressFunc receives scan progress in percent.
type ProgressFunc func(percent int)

// Option configures a Scanner.
type Option func(*Scanner)

// WithPrefix sets the questline frame name prefix.
func WithPrefix(prefix string) Option {
	return func(s *Scanner) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithSettleDelay sets the wait after each state switch.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Scanner) {
		s.settle = d
	}
}

// WithLogger sets the scanner logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scanner extracts questlines from a host document.
type Scanner struct {
	doc    host.Document
	prefix string
	settle time.Duration
	logger *slog.Logger
}

// New returns a Scanner over doc.
func New(doc host.Document, opts ...Option) *Scanner {
	s := &Scanner{
		doc:    doc,
		prefix: DefaultPrefix,
		settle: DefaultSettleDelay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prefix returns the questline frame name prefix.
func (s *Scanner) Prefix() string {
	return s.prefix
}

// Scan scans the questline in selection.
func (s *Scanner) Scan(ctx context.Context, selection []host.Node) *models.ScanResult {
	return s.ScanWithProgress(ctx, selection, nil)
}

// ScanWithProgress is Scan with progress reporting. fn may be nil.
func (s *Scanner) ScanWithProgress(ctx context.Context, selection []host.Node, fn ProgressFunc) *models.ScanResult {
	report := func(p int) {
		if fn != nil {
			fn(p)
		}
	}
	report(ProgressStarted)
	defer report(ProgressFinished)

	root, rootIssue := ResolveRoot(selection, s.prefix)
	if root == nil {
		s.logger.Debug("scan: no questline root", slog.String("reason", rootIssue.Message))
		return models.EmptyScan(rootIssue)
	}

	b := root.Bounds()
	result := &models.ScanResult{
		QuestlineID: s.questlineID(root),
		FrameSize:   models.FrameSize{Width: b.Width, Height: b.Height},
		Quests:      []models.ScanQuest{},
		Issues:      []issue.Issue{},
	}
	log := s.logger.With(slog.String("questline_id", result.QuestlineID))
	log.Debug("scan: root found", slog.String("root", root.Name()), slog.String("node_id", root.ID()))

	s.scanBackground(ctx, root, result, log)

	children := root.Children()
	seen := make(map[string]struct{})
	for i, child := range children {
		if err := ctx.Err(); err != nil {
			result.Issues = append(result.Issues, issue.Errorf(issue.CodeUnknown, root.ID(), "Scan interrupted: %v", err))
			return result
		}
		if q, ok := s.scanQuest(ctx, root, child, seen, result, log); ok {
			result.Quests = append(result.Quests, q)
		}
		report(ProgressStarted + progressSpan*(i+1)/len(children))
	}

	if n := len(result.Quests); n < models.MinQuests {
		result.Issues = append(result.Issues, issue.Errorf(issue.CodeTooFewQuests, root.ID(), "%s", issue.Remediation(issue.CodeTooFewQuests)))
	} else if n > models.MaxQuests {
		result.Issues = append(result.Issues, issue.Errorf(issue.CodeTooManyQuests, root.ID(), "%s", issue.Remediation(issue.CodeTooManyQuests)))
	}

	log.Debug("scan: finished",
		slog.Int("quests", len(result.Quests)),
		slog.Int("issues", len(result.Issues)))
	return result
}

// ResolveRoot picks the single questline frame out of selection. On failure
// it returns a nil node and the UNKNOWN issue explaining why.
func ResolveRoot(selection []host.Node, prefix string) (host.Node, issue.Issue) {
	if len(selection) == 0 {
		return nil, issue.Errorf(issue.CodeUnknown, "", "Please select a questline frame to scan.")
	}

	var matches []host.Node
	for _, n := range selection {
		if n.Kind() == host.KindFrame && slug.HasPrefixFold(n.Name(), prefix) {
			matches = append(matches, n)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], issue.Issue{}
	case 0:
		return nil, issue.Errorf(issue.CodeUnknown, "",
			"Selected node is not a questline frame. Please select a frame named %q.", strings.TrimSpace(prefix)+" <name>")
	default:
		return nil, issue.Errorf(issue.CodeUnknown, "",
			"Multiple questline frames selected. Please select only one questline frame.")
	}
}

func (s *Scanner) questlineID(root host.Node) string {
	return slug.Slugify(slug.StripPrefix(root.Name(), s.prefix))
}

// FindBackground returns the first descendant named "bg" in any case.
func FindBackground(root host.Node) host.Node {
	return host.FindOne(root, host.NamedFold("bg"))
}

func (s *Scanner) scanBackground(ctx context.Context, root host.Node, result *models.ScanResult, log *slog.Logger) {
	bg := FindBackground(root)
	if bg == nil {
		result.Issues = append(result.Issues, issue.Warnf(issue.CodeMissingBackground, root.ID(),
			"No background layer named \"BG\" found in questline %q.", root.Name()))
		return
	}
	result.BackgroundNodeID = bg.ID()
	if !bg.Renderable() {
		return
	}

	url, err := s.render(ctx, bg)
	if err != nil {
		log.Warn("scan: background render failed",
			slog.String("node_id", bg.ID()),
			slog.String("error", err.Error()))
		result.Issues = append(result.Issues, issue.Errorf(issue.CodeImageExportFailed, bg.ID(),
			"Background image could not be exported. Please re-upload the image in the editor."))
		return
	}
	result.BackgroundFillURL = url
}

// scanQuest validates one direct child and captures its previews. ok is false
// when the child is not a quest or was rejected; rejections add an issue.
func (s *Scanner) scanQuest(ctx context.Context, root, node host.Node, seen map[string]struct{}, result *models.ScanResult, log *slog.Logger) (models.ScanQuest, bool) {
	if !IsCandidate(node) {
		return models.ScanQuest{}, false
	}

	raw, source := ExtractKey(node)
	key, keyIssue, ok := checkKey(raw, node, seen)
	if !ok {
		log.Debug("scan: quest rejected",
			slog.String("node_id", node.ID()),
			slog.String("code", string(keyIssue.Code)))
		result.Issues = append(result.Issues, keyIssue)
		return models.ScanQuest{}, false
	}
	log = log.With(slog.String("quest_key", key))

	target, found := ResolveTarget(node)
	if !found {
		log.Debug("scan: no render target, skipping", slog.String("node_id", node.ID()))
		return models.ScanQuest{}, false
	}

	x, y := host.OffsetWithin(target.Node, root)
	b := target.Node.Bounds()
	q := models.ScanQuest{
		NodeID:      node.ID(),
		QuestKey:    key,
		X:           x,
		Y:           y,
		W:           b.Width,
		H:           b.Height,
		Rotation:    target.Node.Rotation(),
		IsFlattened: target.Flattened(),
	}
	q.SetRenderNode(target.Node.ID())

	urls := s.captureStates(ctx, node, target, log)
	for i, state := range models.States {
		q.SetImageURL(state, urls[i])
	}
	if q.LockedImgURL == "" {
		result.Issues = append(result.Issues, issue.Errorf(issue.CodeImageExportFailed, node.ID(),
			"Quest image could not be exported. Please re-upload the image in the editor."))
	}

	log.Debug("scan: quest added",
		slog.String("node_id", node.ID()),
		slog.String("key_source", string(source)),
		slog.String("strategy", string(target.Strategy)))
	return q, true
}

// checkKey applies the key rules in order: present, slug shaped, no doubled
// whitespace, unique. A valid key is registered in seen.
func checkKey(raw string, node host.Node, seen map[string]struct{}) (string, issue.Issue, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", issue.Errorf(issue.CodeMissingQuestKey, node.ID(),
			"Quest key is missing for node %q. Please add a questKey property.", node.Name()), false
	}
	key := strings.TrimSpace(raw)
	if !slug.ValidKey(key) {
		return "", issue.Errorf(issue.CodeInvalidQuestKey, node.ID(),
			"Invalid quest key %q. Must be lowercase, alphanumeric, with hyphens only.", key), false
	}
	if slug.HasDoubleWhitespace(key) {
		return "", issue.Errorf(issue.CodeDoubleWhitespace, node.ID(),
			"Quest key %q contains double whitespace.", key), false
	}
	norm := slug.NormalizeKey(key)
	if _, dup := seen[norm]; dup {
		return "", issue.Errorf(issue.CodeDuplicateQuestKey, node.ID(),
			"Duplicate quest key %q. Each quest must have a unique name.", key), false
	}
	seen[norm] = struct{}{}
	return key, issue.Issue{}, true
}

// captureStates returns one preview URL per entry of models.States. Empty
// strings mark renders that failed.
func (s *Scanner) captureStates(ctx context.Context, quest host.Node, target Target, log *slog.Logger) [len(models.States)]string {
	if !host.IsStateful(quest) {
		return s.renderOnce(ctx, target.Node, log)
	}

	urls, err := s.captureStateful(ctx, quest, log)
	if err != nil {
		log.Warn("scan: state capture failed, using current render",
			slog.String("node_id", quest.ID()),
			slog.String("error", err.Error()))
		return s.renderOnce(ctx, target.Node, log)
	}
	return urls
}

// captureStateful switches the quest through every state and renders the
// re-resolved target each time. The original state is restored before it
// returns, whatever happened.
func (s *Scanner) captureStateful(ctx context.Context, quest host.Node, log *slog.Logger) (urls [len(models.States)]string, err error) {
	props, _ := quest.Properties()
	if original, ok := props[host.StateProperty]; ok {
		defer s.restoreState(ctx, quest, original, log)
	}

	active := ""
	for i, state := range models.States {
		if err := s.doc.SetProperties(ctx, quest, map[string]string{host.StateProperty: string(state)}); err != nil {
			return urls, fmt.Errorf("scan: set state %s: %w", state, err)
		}
		if err := host.Settle(ctx, s.settle); err != nil {
			return urls, fmt.Errorf("scan: settle: %w", err)
		}

		current := quest
		if n, ok := s.doc.NodeByID(quest.ID()); ok {
			current = n
		}
		target, ok := ResolveTarget(current)
		if !ok {
			log.Debug("scan: no render target for state", slog.String("state", string(state)))
			if state == models.StateCompleted {
				urls[i] = active
			}
			continue
		}

		url, err := s.render(ctx, target.Node)
		if err != nil {
			log.Warn("scan: state render failed",
				slog.String("state", string(state)),
				slog.String("error", err.Error()))
		}
		urls[i] = url
		if state == models.StateActive {
			active = url
		}
	}
	return urls, nil
}

func (s *Scanner) restoreState(ctx context.Context, quest host.Node, original string, log *slog.Logger) {
	err := s.doc.SetProperties(context.WithoutCancel(ctx), quest, map[string]string{host.StateProperty: original})
	if err != nil {
		log.Error("scan: restore state failed",
			slog.String("node_id", quest.ID()),
			slog.String("state", original),
			slog.String("error", err.Error()))
	}
}

func (s *Scanner) renderOnce(ctx context.Context, n host.Node, log *slog.Logger) [len(models.States)]string {
	url, err := s.render(ctx, n)
	if err != nil {
		log.Warn("scan: render failed", slog.String("node_id", n.ID()), slog.String("error", err.Error()))
	}
	var urls [len(models.States)]string
	for i := range urls {
		urls[i] = url
	}
	return urls
}

func (s *Scanner) render(ctx context.Context, n host.Node) (string, error) {
	data, err := s.doc.Export(ctx, n)
	if err != nil {
		return "", err
	}
	return models.PNGDataURL(data), nil
}
