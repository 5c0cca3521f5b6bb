package plugin_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/starford/questline/internal/apperr"
	"github.com/starford/questline/internal/export"
	"github.com/starford/questline/internal/host"
	"github.com/starford/questline/internal/issue"
	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/plugin"
	"github.com/starford/questline/internal/scan"
	"github.com/starford/questline/internal/testutil"
)

type docSource struct{ doc host.Document }

func (d docSource) Document() host.Document { return d.doc }

type recorder struct {
	mu   sync.Mutex
	msgs []plugin.Message
}

func (r *recorder) Send(_ context.Context, m plugin.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) types() []plugin.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]plugin.Type, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.MessageType()
	}
	return out
}

func newSession(t *testing.T, doc host.Document, opts ...plugin.Option) (*plugin.Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]plugin.Option{
		plugin.WithScanOptions(scan.WithSettleDelay(0)),
		plugin.WithExportOptions(export.WithSettleDelay(0)),
	}, opts...)
	return plugin.NewSession(docSource{doc}, rec, opts...), rec
}

func TestHandleScan(t *testing.T) {
	s, rec := newSession(t, testutil.QuestlineDoc(t, 3))
	if err := s.Handle(context.Background(), []byte(`{"type":"SCAN"}`)); err != nil {
		t.Fatal(err)
	}

	types := rec.types()
	if len(types) < 3 || types[len(types)-1] != plugin.TypeScanResult {
		t.Fatalf("messages = %v", types)
	}
	first := rec.msgs[0].(plugin.ScanProgress)
	last := rec.msgs[len(rec.msgs)-2].(plugin.ScanProgress)
	if first.Progress != scan.ProgressStarted || last.Progress != scan.ProgressFinished {
		t.Errorf("progress = %d..%d", first.Progress, last.Progress)
	}
	res := rec.msgs[len(rec.msgs)-1].(plugin.ScanResult)
	if res.Data == nil || len(res.Data.Quests) != 3 || s.LastScan() != res.Data {
		t.Errorf("scan result = %+v", res.Data)
	}
}

func TestHandleExportWithoutScan(t *testing.T) {
	var sunk []models.Bundle
	sink := export.SinkFunc(func(_ context.Context, b models.Bundle) error {
		sunk = append(sunk, b)
		return nil
	})
	s, rec := newSession(t, testutil.QuestlineDoc(t, 3), plugin.WithSink(sink))

	if err := s.Handle(context.Background(), []byte(`{"type":"EXPORT"}`)); err != nil {
		t.Fatal(err)
	}
	types := rec.types()
	if len(types) != 2 || types[0] != plugin.TypeExportWithFolder || types[1] != plugin.TypeExportResult {
		t.Fatalf("messages = %v", types)
	}
	folder := rec.msgs[0].(plugin.ExportWithFolder)
	if folder.QuestlineID != "summer-event" || len(folder.Images) != 13 || len(folder.JSON.Quests) != 3 {
		t.Errorf("folder = %s %d images", folder.QuestlineID, len(folder.Images))
	}
	res := rec.msgs[1].(plugin.ExportResult)
	if res.Data.Manifest == nil || len(res.Data.Issues) != 0 {
		t.Errorf("export result = %+v", res.Data)
	}
	if len(sunk) != 1 {
		t.Errorf("sink calls = %d", len(sunk))
	}
}

func TestHandleExportWithScan(t *testing.T) {
	doc := testutil.QuestlineDoc(t, 3)
	s, rec := newSession(t, doc)
	sc := scan.New(doc, scan.WithSettleDelay(0)).Scan(context.Background(), doc.Selection())
	sc.Quests[0].QuestKey = "Bad Key"

	raw, _ := json.Marshal(map[string]any{"type": "EXPORT", "scan": sc})
	if err := s.Handle(context.Background(), raw); err != nil {
		t.Fatal(err)
	}
	if types := rec.types(); len(types) != 1 || types[0] != plugin.TypeExportResult {
		t.Fatalf("messages = %v", types)
	}
	res := rec.msgs[0].(plugin.ExportResult)
	if res.Data.Manifest != nil || issue.Count(res.Data.Issues, issue.CodeValidationFailed) != 1 {
		t.Errorf("export result = %+v", res.Data)
	}
}

func TestHandleExportGatesOnScanErrors(t *testing.T) {
	s, rec := newSession(t, testutil.QuestlineDoc(t, 2))
	if err := s.Handle(context.Background(), []byte(`{"type":"EXPORT","scan":null}`)); err != nil {
		t.Fatal(err)
	}
	res := rec.msgs[len(rec.msgs)-1].(plugin.ExportResult)
	if res.Data.Manifest != nil || issue.Count(res.Data.Issues, issue.CodeTooFewQuests) != 1 {
		t.Errorf("export result = %+v", res.Data)
	}
}

func TestHandleResize(t *testing.T) {
	s, rec := newSession(t, testutil.QuestlineDoc(t, 3))
	if err := s.Handle(context.Background(), []byte(`{"type":"RESIZE","width":1100,"height":700.5}`)); err != nil {
		t.Fatal(err)
	}
	if got := s.Size(); got.Width != 1100 || got.Height != 700.5 {
		t.Errorf("size = %+v", got)
	}
	if len(rec.types()) != 0 {
		t.Error("resize must not respond")
	}
}

func TestHandleInvalid(t *testing.T) {
	s, rec := newSession(t, testutil.QuestlineDoc(t, 3))
	for _, raw := range []string{`not json`, `{}`, `{"type":42}`, `{"type":""}`, `{"type":"EXPORT","scan":"oops"}`} {
		if err := s.Handle(context.Background(), []byte(raw)); !errors.Is(err, apperr.ErrInvalidMessage) {
			t.Errorf("%s: err = %v", raw, err)
		}
	}
	if err := s.Handle(context.Background(), []byte(`{"type":"PING"}`)); err != nil {
		t.Errorf("unknown type: %v", err)
	}
	if len(rec.types()) != 0 {
		t.Errorf("messages = %v", rec.types())
	}
}

type panicDoc struct{ host.Document }

func (panicDoc) Selection() []host.Node { panic("host went away") }

func TestPanicsBecomeUnknownIssues(t *testing.T) {
	s, rec := newSession(t, panicDoc{testutil.QuestlineDoc(t, 3)})

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Issues) != 1 || res.Issues[0].Code != issue.CodeUnknown || res.Issues[0].Message != "Scan failed: host went away" {
		t.Errorf("scan issues = %+v", res.Issues)
	}

	out, _ := s.Export(context.Background(), nil)
	if out.Manifest != nil || len(out.Issues) != 1 || out.Issues[0].Code != issue.CodeUnknown {
		t.Errorf("export issues = %+v", out.Issues)
	}
	if got := rec.types(); got[len(got)-1] != plugin.TypeExportResult {
		t.Errorf("messages = %v", got)
	}
}

func TestExportPanicIsReported(t *testing.T) {
	doc := testutil.QuestlineDoc(t, 3)
	sink := export.SinkFunc(func(context.Context, models.Bundle) error { panic("disk on fire") })
	s, _ := newSession(t, doc, plugin.WithSink(sink))

	out, err := s.Export(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Issues) != 1 || out.Issues[0].Message != "Export failed: disk on fire" {
		t.Errorf("issues = %+v", out.Issues)
	}
}

func TestOperationsAreSerialized(t *testing.T) {
	doc := testutil.QuestlineDoc(t, 3)
	var (
		mu      sync.Mutex
		running int
		maxSeen int
	)
	out := plugin.OutboxFunc(func(_ context.Context, m plugin.Message) {
		mu.Lock()
		defer mu.Unlock()
		switch m := m.(type) {
		case plugin.ScanProgress:
			if m.Progress == scan.ProgressStarted {
				running++
				maxSeen = max(maxSeen, running)
			}
		case plugin.ScanResult:
			running--
		}
	})
	s := plugin.NewSession(docSource{doc}, out, plugin.WithScanOptions(scan.WithSettleDelay(0)))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Scan(context.Background())
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("concurrent scans = %d", maxSeen)
	}
}

func TestRefreshSkipsWhileBusy(t *testing.T) {
	doc := testutil.QuestlineDoc(t, 3)
	block := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	sink := export.SinkFunc(func(context.Context, models.Bundle) error {
		once.Do(func() { close(entered) })
		<-block
		return nil
	})
	s, rec := newSession(t, doc, plugin.WithSink(sink))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Export(context.Background(), nil)
	}()
	<-entered

	s.Refresh(context.Background())
	if _, err := s.TryScan(context.Background()); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("TryScan while busy: %v", err)
	}
	close(block)
	<-done

	for _, typ := range rec.types() {
		if typ == plugin.TypeScanResult {
			t.Error("refresh ran while export was in flight")
		}
	}

	s.Refresh(context.Background())
	if got := rec.types(); got[len(got)-1] != plugin.TypeScanResult {
		t.Errorf("refresh after export: %v", got)
	}
}

func TestMessageJSON(t *testing.T) {
	raw, _ := json.Marshal(plugin.NewScanProgress(0))
	if string(raw) != `{"type":"SCAN_PROGRESS","progress":0}` {
		t.Errorf("progress = %s", raw)
	}
	raw, _ = json.Marshal(plugin.NewExportResult(models.ExportResult{}))
	if string(raw) != `{"type":"EXPORT_RESULT","data":{"json":null,"issues":[]}}` {
		t.Errorf("export result = %s", raw)
	}
}
