package scan

import (
	"github.com/starford/questline/internal/host"
	"github.com/starford/questline/internal/issue"
	"github.com/starford/questline/internal/models"
)

// Report describes how the scanner sees a questline without rendering or
// switching any state.
type Report struct {
	QuestlineID      string           `json:"questlineId"`
	RootID           string           `json:"rootId"`
	RootName         string           `json:"rootName"`
	FrameSize        models.FrameSize `json:"frameSize"`
	BackgroundNodeID string           `json:"backgroundNodeId"`
	Children         []ChildReport    `json:"children"`
	Issues           []issue.Issue    `json:"issues"`
}

// ChildReport is the analysis of one direct child of the questline.
type ChildReport struct {
	NodeID    string    `json:"nodeId"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Candidate bool      `json:"candidate"`
	Stateful  bool      `json:"stateful"`
	QuestKey  string    `json:"questKey,omitempty"`
	KeySource KeySource `json:"keySource,omitempty"`
	Strategy  Strategy  `json:"strategy,omitempty"`
	TargetID  string    `json:"targetId,omitempty"`
	Layers    []string  `json:"layers"`
}

// Inspect reports the structure of the questline in selection.
func (s *Scanner) Inspect(selection []host.Node) Report {
	root, rootIssue := ResolveRoot(selection, s.prefix)
	if root == nil {
		return Report{Children: []ChildReport{}, Issues: []issue.Issue{rootIssue}}
	}

	b := root.Bounds()
	r := Report{
		QuestlineID: s.questlineID(root),
		RootID:      root.ID(),
		RootName:    root.Name(),
		FrameSize:   models.FrameSize{Width: b.Width, Height: b.Height},
		Children:    []ChildReport{},
		Issues:      []issue.Issue{},
	}
	if bg := FindBackground(root); bg != nil {
		r.BackgroundNodeID = bg.ID()
	}

	for _, child := range root.Children() {
		c := ChildReport{
			NodeID:    child.ID(),
			Name:      child.Name(),
			Kind:      child.Kind().String(),
			Candidate: IsCandidate(child),
			Stateful:  host.IsStateful(child),
			Layers:    []string{},
		}
		for _, l := range child.Children() {
			c.Layers = append(c.Layers, l.Name())
		}
		if c.Candidate {
			c.QuestKey, c.KeySource = ExtractKey(child)
			if t, ok := ResolveTarget(child); ok {
				c.Strategy = t.Strategy
				c.TargetID = t.Node.ID()
			}
		}
		r.Children = append(r.Children, c)
	}
	return r
}

// Quests returns the candidate children with a render target.
func (r Report) Quests() []ChildReport {
	var out []ChildReport
	for _, c := range r.Children {
		if c.Candidate && c.Strategy != StrategyNone {
			out = append(out, c)
		}
	}
	return out
}
