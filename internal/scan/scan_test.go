package scan

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"testing"

	"github.com/starford/questline/internal/document"
	"github.com/starford/questline/internal/host"
	"github.com/starford/questline/internal/issue"
	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/testutil"
)

func newScanner(doc host.Document) *Scanner {
	return New(doc, WithSettleDelay(0))
}

func buildDoc(t *testing.T, f *document.File) *document.Document {
	t.Helper()
	doc, err := document.New(f)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func rootSpec(f *document.File) *document.Spec {
	return f.Nodes[0]
}

func pixelOf(t *testing.T, url string) [3]uint32 {
	t.Helper()
	data, err := models.DecodeDataURL(url)
	if err != nil {
		t.Fatalf("decode data url: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	r, g, b, _ := img.At(10, 10).RGBA()
	return [3]uint32{r >> 8, g >> 8, b >> 8}
}

func codes(issues []issue.Issue) []issue.Code {
	out := make([]issue.Code, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}

func stateOf(t *testing.T, doc host.Document, id string) string {
	t.Helper()
	n, ok := doc.NodeByID(id)
	if !ok {
		t.Fatalf("node %s not found", id)
	}
	props, _ := n.Properties()
	return props[host.StateProperty]
}

func TestScanEmptySelection(t *testing.T) {
	doc := testutil.QuestlineDoc(t, 3)
	res := newScanner(doc).Scan(context.Background(), nil)

	if res.QuestlineID != "" || res.FrameSize != (models.FrameSize{}) || len(res.Quests) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	if res.Quests == nil {
		t.Error("quests must be an empty slice, not nil")
	}
	if len(res.Issues) != 1 || res.Issues[0].Code != issue.CodeUnknown || !res.Issues[0].IsError() {
		t.Fatalf("issues = %+v", res.Issues)
	}
	if res.Issues[0].Message != "Please select a questline frame to scan." {
		t.Errorf("message = %q", res.Issues[0].Message)
	}
}

func TestScanRootGate(t *testing.T) {
	f := testutil.QuestlineFile(3)
	second := testutil.QuestlineFile(3).Nodes[0]
	second.ID = "9:9"
	for _, c := range second.Children {
		c.ID = "9:" + c.ID
	}
	f.Nodes = append(f.Nodes, second)
	doc := buildDoc(t, f)
	s := newScanner(doc)

	bg, _ := doc.NodeByID(testutil.BackgroundID)
	root, _ := doc.NodeByID(testutil.RootID)
	other, _ := doc.NodeByID("9:9")

	res := s.Scan(context.Background(), []host.Node{bg})
	if len(res.Issues) != 1 || res.Issues[0].Message != `Selected node is not a questline frame. Please select a frame named "Questline: <name>".` {
		t.Errorf("non questline issues = %+v", res.Issues)
	}

	res = s.Scan(context.Background(), []host.Node{root, other})
	if len(res.Issues) != 1 || res.Issues[0].Message != "Multiple questline frames selected. Please select only one questline frame." {
		t.Errorf("multiple issues = %+v", res.Issues)
	}

	res = s.Scan(context.Background(), []host.Node{bg, root})
	if res.QuestlineID != "summer-event" {
		t.Errorf("mixed selection should pick the single questline, got %q", res.QuestlineID)
	}
}

func TestScanHappyPath(t *testing.T) {
	doc := testutil.QuestlineDoc(t, 3)
	res := newScanner(doc).Scan(context.Background(), doc.Selection())

	if issue.HasErrors(res.Issues) {
		t.Fatalf("unexpected issues: %+v", res.Issues)
	}
	if res.QuestlineID != "summer-event" {
		t.Errorf("questlineId = %q", res.QuestlineID)
	}
	if res.FrameSize != (models.FrameSize{Width: 800, Height: 600}) {
		t.Errorf("frameSize = %+v", res.FrameSize)
	}
	if res.BackgroundNodeID != testutil.BackgroundID || res.BackgroundFillURL == "" {
		t.Errorf("background = %q (url %d bytes)", res.BackgroundNodeID, len(res.BackgroundFillURL))
	}
	if len(res.Quests) != 3 {
		t.Fatalf("quests = %d", len(res.Quests))
	}

	q := res.Quests[0]
	if q.QuestKey != "quest-1" || q.NodeID != testutil.QuestID(1) {
		t.Errorf("quest = %s/%s", q.QuestKey, q.NodeID)
	}
	if q.X != 24 || q.Y != 46 || q.W != 48 || q.H != 48 {
		t.Errorf("geometry = (%v,%v,%v,%v)", q.X, q.Y, q.W, q.H)
	}
	if q.IsFlattened {
		t.Error("single Image quest should not be flattened")
	}
	for _, s := range models.States {
		url := q.ImageURL(s)
		if url == "" {
			t.Errorf("%s preview missing", s)
			continue
		}
		want, _ := parseHex(testutil.StateColor(s))
		if got := pixelOf(t, url); got != want {
			t.Errorf("%s pixel = %v, want %v", s, got, want)
		}
	}

	for i := 1; i <= 3; i++ {
		if got := stateOf(t, doc, testutil.QuestID(i)); got != "locked" {
			t.Errorf("quest %d state after scan = %q, want locked", i, got)
		}
	}
}

func parseHex(s string) ([3]uint32, error) {
	var out [3]uint32
	for i := range 3 {
		var v uint32
		for _, ch := range s[1+i*2 : 3+i*2] {
			v <<= 4
			switch {
			case ch >= '0' && ch <= '9':
				v |= uint32(ch - '0')
			case ch >= 'a' && ch <= 'f':
				v |= uint32(ch-'a') + 10
			default:
				return out, errors.New("bad hex")
			}
		}
		out[i] = v
	}
	return out, nil
}

func TestScanTooFewQuests(t *testing.T) {
	doc := testutil.QuestlineDoc(t, 2)
	res := newScanner(doc).Scan(context.Background(), doc.Selection())
	if len(res.Quests) != 2 {
		t.Errorf("quests = %d", len(res.Quests))
	}
	if issue.Count(res.Issues, issue.CodeTooFewQuests) != 1 {
		t.Errorf("issues = %v", codes(res.Issues))
	}
	if res.Issues[len(res.Issues)-1].NodeID != testutil.RootID {
		t.Errorf("TOO_FEW_QUESTS should point at the root")
	}
}

func TestScanTooManyQuests(t *testing.T) {
	doc := testutil.QuestlineDoc(t, 21)
	res := newScanner(doc).Scan(context.Background(), doc.Selection())
	if len(res.Quests) != 21 || issue.Count(res.Issues, issue.CodeTooManyQuests) != 1 {
		t.Errorf("quests = %d issues = %v", len(res.Quests), codes(res.Issues))
	}
}

func TestScanKeyRejections(t *testing.T) {
	cases := []struct {
		key  string
		code issue.Code
	}{
		{"quest-1", issue.CodeDuplicateQuestKey},
		{"Quest 1", issue.CodeInvalidQuestKey},
		{"", issue.CodeMissingQuestKey},
		{"quest_1", issue.CodeInvalidQuestKey},
	}
	for _, tc := range cases {
		t.Run(string(tc.code)+"/"+tc.key, func(t *testing.T) {
			f := testutil.QuestlineFile(4)
			root := rootSpec(f)
			root.Children[4] = testutil.QuestSpec(testutil.QuestID(4), tc.key, 300, 300)
			doc := buildDoc(t, f)

			res := newScanner(doc).Scan(context.Background(), doc.Selection())
			if len(res.Quests) != 3 {
				t.Errorf("quests = %d, want 3", len(res.Quests))
			}
			if issue.Count(res.Issues, tc.code) != 1 {
				t.Fatalf("issues = %v, want one %s", codes(res.Issues), tc.code)
			}
			for _, is := range res.Issues {
				if is.Code == tc.code && is.NodeID != testutil.QuestID(4) {
					t.Errorf("issue points at %s", is.NodeID)
				}
			}
			for _, q := range res.Quests {
				if q.NodeID == testutil.QuestID(4) {
					t.Error("rejected quest should not be in the result")
				}
			}
		})
	}
}

func TestCheckKeyTrimsBeforeDuplicateCheck(t *testing.T) {
	seen := map[string]struct{}{}
	n := &stubNode{id: "a", name: "a"}
	if _, _, ok := checkKey(" quest-1 ", n, seen); !ok {
		t.Fatal("first key rejected")
	}
	_, is, ok := checkKey("quest-1", n, seen)
	if ok || is.Code != issue.CodeDuplicateQuestKey {
		t.Errorf("second key: ok=%v issue=%+v", ok, is)
	}
}

func TestScanLegacyQuests(t *testing.T) {
	img := models.PNGDataURL(testutil.PNG(t, 8, 8, color.NRGBA{R: 200, A: 255}))
	imageFill := []document.Paint{{Type: document.PaintImage, Src: img}}

	f := testutil.QuestlineFile(1)
	root := rootSpec(f)
	root.Children = append(root.Children,
		&document.Spec{
			ID: "3:1", Type: "INSTANCE", Name: "Legacy", X: 100, Y: 100, Width: 40, Height: 40,
			Properties: map[string]string{"questKey#12:0": "legacy-one", "State": "locked"},
			Children: []*document.Spec{{
				Type: "FRAME", Name: "Frame", X: 2, Y: 3, Width: 30, Height: 30,
				Children: []*document.Spec{{Type: "RECTANGLE", Name: "Image", X: 1, Y: 1, Width: 20, Height: 20, Fills: imageFill}},
			}},
		},
		&document.Spec{
			ID: "3:2", Type: "GROUP", Name: "Old group", X: 200, Y: 10, Width: 40, Height: 40,
			Children: []*document.Spec{
				{Type: "TEXT", Name: "label", Characters: "legacy-two"},
				{Type: "FRAME", Name: "Image", X: 5, Y: 5, Width: 16, Height: 16, Fills: imageFill},
			},
		},
	)
	doc := buildDoc(t, f)
	res := newScanner(doc).Scan(context.Background(), doc.Selection())

	if issue.HasErrors(res.Issues) {
		t.Fatalf("issues = %+v", res.Issues)
	}
	byKey := map[string]models.ScanQuest{}
	for _, q := range res.Quests {
		byKey[q.QuestKey] = q
	}
	one, ok := byKey["legacy-one"]
	if !ok {
		t.Fatalf("legacy-one missing: %v", res.QuestKeys())
	}
	if one.X != 103 || one.Y != 104 || one.W != 20 {
		t.Errorf("legacy-one geometry = (%v,%v,%v)", one.X, one.Y, one.W)
	}
	two, ok := byKey["legacy-two"]
	if !ok {
		t.Fatalf("legacy-two missing: %v", res.QuestKeys())
	}
	if two.X != 205 || two.Y != 15 || two.LockedImgURL == "" || two.LockedImgURL != two.CompletedImgURL {
		t.Errorf("legacy-two = %+v", two)
	}
}

func TestExtractKeyUsesFirstQuestKeyLayerOnly(t *testing.T) {
	f := testutil.QuestlineFile(2)
	for i, withProp := range []bool{true, false} {
		q := rootSpec(f).Children[i+1]
		for _, v := range q.Variants {
			v[0].Children = []*document.Spec{
				{Type: "TEXT", Name: "questKey", Characters: ""},
				{Type: "TEXT", Name: "questKey backup", Characters: "stray-key"},
			}
		}
		if withProp {
			q.Properties["questKey#1:0"] = "from-property"
		}
	}
	doc := buildDoc(t, f)

	n, _ := doc.NodeByID(testutil.QuestID(1))
	if key, src := ExtractKey(n); key != "from-property" || src != KeyProperty {
		t.Errorf("with property: %q from %q", key, src)
	}
	n, _ = doc.NodeByID(testutil.QuestID(2))
	if key, src := ExtractKey(n); key != "" || src != KeyNone {
		t.Errorf("without property: %q from %q", key, src)
	}
}

func TestScanComplexVisualsIsFlattened(t *testing.T) {
	f := testutil.QuestlineFile(3)
	q := rootSpec(f).Children[1]
	for _, v := range q.Variants {
		visuals := v[1]
		visuals.Children = append(visuals.Children, &document.Spec{
			Type: "ELLIPSE", Name: "Badge", X: 30, Y: 0, Width: 10, Height: 10,
			Fills: []document.Paint{{Type: document.PaintSolid, Color: "#ff0000"}},
		})
	}
	doc := buildDoc(t, f)
	res := newScanner(doc).Scan(context.Background(), doc.Selection())

	first := res.Quests[0]
	if !first.IsFlattened {
		t.Error("multi-layer Visuals should be flattened")
	}
	if first.X != 24 || first.Y != 46 || first.W != 48 {
		t.Errorf("geometry = (%v,%v,%v)", first.X, first.Y, first.W)
	}
	if res.Quests[1].IsFlattened {
		t.Error("other quests are simple")
	}
}

func TestScanCompletedFallsBackToActive(t *testing.T) {
	f := testutil.QuestlineFile(3)
	q := rootSpec(f).Children[1]
	q.Variants["completed"] = q.Variants["completed"][:1]
	doc := buildDoc(t, f)

	res := newScanner(doc).Scan(context.Background(), doc.Selection())
	first := res.Quests[0]
	if first.CompletedImgURL == "" || first.CompletedImgURL != first.ActiveImgURL {
		t.Error("completed preview should reuse active")
	}
}

func TestScanMissingBackgroundIsWarning(t *testing.T) {
	f := testutil.QuestlineFile(3)
	root := rootSpec(f)
	root.Children = root.Children[1:]
	doc := buildDoc(t, f)

	res := newScanner(doc).Scan(context.Background(), doc.Selection())
	if issue.HasErrors(res.Issues) {
		t.Errorf("missing background should not block: %+v", res.Issues)
	}
	if issue.Count(res.Issues, issue.CodeMissingBackground) != 1 || res.BackgroundNodeID != "" {
		t.Errorf("issues = %v bg = %q", codes(res.Issues), res.BackgroundNodeID)
	}
}

// faultyDoc wraps a real document and injects host failures.
type faultyDoc struct {
	*document.Document
	failState  string
	failExport bool
	sets       []string
}

func (f *faultyDoc) SetProperties(ctx context.Context, n host.Node, props map[string]string) error {
	f.sets = append(f.sets, props[host.StateProperty])
	if props[host.StateProperty] == f.failState {
		return errors.New("host refused the state")
	}
	return f.Document.SetProperties(ctx, n, props)
}

func (f *faultyDoc) Export(ctx context.Context, n host.Node) ([]byte, error) {
	if f.failExport {
		return nil, errors.New("render failed")
	}
	return f.Document.Export(ctx, n)
}

func TestScanStateFailureFallsBackAndRestores(t *testing.T) {
	doc := &faultyDoc{Document: testutil.QuestlineDoc(t, 3), failState: "unclaimed"}
	res := newScanner(doc).Scan(context.Background(), doc.Selection())

	if issue.HasErrors(res.Issues) {
		t.Fatalf("issues = %+v", res.Issues)
	}
	for _, q := range res.Quests {
		if q.LockedImgURL == "" {
			t.Fatalf("%s has no fallback render", q.QuestKey)
		}
		for _, s := range models.States {
			if q.ImageURL(s) != q.LockedImgURL {
				t.Errorf("%s %s should reuse the fallback render", q.QuestKey, s)
			}
		}
	}
	for i := 1; i <= 3; i++ {
		if got := stateOf(t, doc, testutil.QuestID(i)); got != "locked" {
			t.Errorf("quest %d state = %q after failed capture", i, got)
		}
	}
	if last := doc.sets[len(doc.sets)-1]; last != "locked" {
		t.Errorf("last state write = %q, want restore to locked", last)
	}
}

func TestScanRenderFailureKeepsQuests(t *testing.T) {
	doc := &faultyDoc{Document: testutil.QuestlineDoc(t, 3), failExport: true}
	res := newScanner(doc).Scan(context.Background(), doc.Selection())

	if len(res.Quests) != 3 {
		t.Errorf("quests = %d, render failures must not drop quests", len(res.Quests))
	}
	if got := issue.Count(res.Issues, issue.CodeImageExportFailed); got != 4 {
		t.Errorf("IMAGE_EXPORT_FAILED count = %d, want 4 (background + 3 quests)", got)
	}
}

func TestScanProgress(t *testing.T) {
	doc := testutil.QuestlineDoc(t, 3)
	var got []int
	newScanner(doc).ScanWithProgress(context.Background(), doc.Selection(), func(p int) {
		got = append(got, p)
	})
	if len(got) < 3 || got[0] != ProgressStarted || got[len(got)-1] != ProgressFinished {
		t.Fatalf("progress = %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Errorf("progress went backwards: %v", got)
		}
	}
}

func TestScanIsRepeatable(t *testing.T) {
	doc := testutil.QuestlineDoc(t, 4)
	s := newScanner(doc)
	a := s.Scan(context.Background(), doc.Selection())
	b := s.Scan(context.Background(), doc.Selection())
	if a.QuestlineID != b.QuestlineID || a.FrameSize != b.FrameSize {
		t.Error("scan results differ")
	}
	ka, kb := a.QuestKeys(), b.QuestKeys()
	if len(ka) != len(kb) {
		t.Fatalf("key counts differ: %v %v", ka, kb)
	}
	for i := range ka {
		if ka[i] != kb[i] {
			t.Errorf("key %d: %s != %s", i, ka[i], kb[i])
		}
	}
}

func TestScanCancelled(t *testing.T) {
	doc := testutil.QuestlineDoc(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newScanner(doc).Scan(ctx, doc.Selection())
	if !issue.HasErrors(res.Issues) {
		t.Error("cancelled scan should report an error")
	}
}

func TestInspect(t *testing.T) {
	f := testutil.QuestlineFile(3)
	rootSpec(f).Children = append(rootSpec(f).Children, &document.Spec{ID: "7:1", Type: "TEXT", Name: "Title", Characters: "x"})
	doc := buildDoc(t, f)

	r := newScanner(doc).Inspect(doc.Selection())
	if r.QuestlineID != "summer-event" || r.BackgroundNodeID != testutil.BackgroundID {
		t.Errorf("report = %+v", r)
	}
	if len(r.Children) != 5 {
		t.Fatalf("children = %d", len(r.Children))
	}
	quests := r.Quests()
	if len(quests) != 3 {
		t.Fatalf("quests = %d", len(quests))
	}
	q := quests[0]
	if q.QuestKey != "quest-1" || q.KeySource != KeyStructured || q.Strategy != StrategySimple || !q.Stateful {
		t.Errorf("quest report = %+v", q)
	}
	if r.Children[4].Candidate {
		t.Error("text layer is not a candidate")
	}
	if got := stateOf(t, doc, testutil.QuestID(1)); got != "locked" {
		t.Errorf("inspect changed state to %q", got)
	}
}

// stubNode is a bare host.Node for rule tests.
type stubNode struct {
	id, name string
}

func (n *stubNode) ID() string                            { return n.id }
func (n *stubNode) Name() string                          { return n.name }
func (n *stubNode) Kind() host.Kind                       { return host.KindOther }
func (n *stubNode) Parent() host.Node                     { return nil }
func (n *stubNode) Children() []host.Node                 { return nil }
func (n *stubNode) Bounds() host.Rect                     { return host.Rect{} }
func (n *stubNode) Rotation() float64                     { return 0 }
func (n *stubNode) Characters() string                    { return "" }
func (n *stubNode) HasImageFill() bool                    { return false }
func (n *stubNode) Properties() (map[string]string, bool) { return nil, false }
func (n *stubNode) Renderable() bool                      { return false }
