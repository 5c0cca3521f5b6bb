// Package models defines the domain types exchanged between the scanner,
// the exporter and the transport layer.
package models

import (
	"regexp"

	"github.com/starford/questline/internal/issue"
)

// Quest count bounds for a questline.
const (
	MinQuests = 3
	MaxQuests = 20
)

// Fixed asset names inside a bundle.
const (
	BackgroundAsset = "questline-bg.png"
	ManifestFile    = "positions.json"
)

// State is one visual state of a quest.
type State string

const (
	StateLocked    State = "locked"
	StateActive    State = "active"
	StateUnclaimed State = "unclaimed"
	StateCompleted State = "completed"
)

// States lists every state in capture order.
var States = [...]State{StateLocked, StateActive, StateUnclaimed, StateCompleted}

// FrameSize is the questline root size.
type FrameSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ScanQuest is one accepted quest in a scan result. Image URLs are PNG data
// URLs used for preview.
type ScanQuest struct {
	NodeID          string  `json:"nodeId"`
	QuestKey        string  `json:"questKey"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	W               float64 `json:"w"`
	H               float64 `json:"h"`
	Rotation        float64 `json:"rotation"`
	LockedNodeID    string  `json:"lockedNodeId"`
	ActiveNodeID    string  `json:"activeNodeId"`
	UnclaimedNodeID string  `json:"unclaimedNodeId"`
	CompletedNodeID string  `json:"completedNodeId"`
	LockedImgURL    string  `json:"lockedImgUrl,omitempty"`
	ActiveImgURL    string  `json:"activeImgUrl,omitempty"`
	UnclaimedImgURL string  `json:"unclaimedImgUrl,omitempty"`
	CompletedImgURL string  `json:"completedImgUrl,omitempty"`
	IsFlattened     bool    `json:"isFlattened"`
}

// ImageURL returns the preview URL captured for state.
func (q *ScanQuest) ImageURL(s State) string {
	switch s {
	case StateLocked:
		return q.LockedImgURL
	case StateActive:
		return q.ActiveImgURL
	case StateUnclaimed:
		return q.UnclaimedImgURL
	case StateCompleted:
		return q.CompletedImgURL
	}
	return ""
}

// SetImageURL stores the preview URL for state.
func (q *ScanQuest) SetImageURL(s State, url string) {
	switch s {
	case StateLocked:
		q.LockedImgURL = url
	case StateActive:
		q.ActiveImgURL = url
	case StateUnclaimed:
		q.UnclaimedImgURL = url
	case StateCompleted:
		q.CompletedImgURL = url
	}
}

// SetRenderNode records the node rendered for every state.
func (q *ScanQuest) SetRenderNode(id string) {
	q.LockedNodeID = id
	q.ActiveNodeID = id
	q.UnclaimedNodeID = id
	q.CompletedNodeID = id
}

// ScanResult is the hand-off between the scanner and the exporter.
type ScanResult struct {
	QuestlineID       string        `json:"questlineId"`
	FrameSize         FrameSize     `json:"frameSize"`
	BackgroundNodeID  string        `json:"backgroundNodeId"`
	BackgroundFillURL string        `json:"backgroundFillUrl,omitempty"`
	Quests            []ScanQuest   `json:"quests"`
	Issues            []issue.Issue `json:"issues"`
}

// EmptyScan returns a zeroed result carrying only issues.
func EmptyScan(issues ...issue.Issue) *ScanResult {
	return &ScanResult{
		Quests: []ScanQuest{},
		Issues: append([]issue.Issue{}, issues...),
	}
}

// QuestKeys returns the accepted keys in scan order.
func (r *ScanResult) QuestKeys() []string {
	keys := make([]string, len(r.Quests))
	for i, q := range r.Quests {
		keys[i] = q.QuestKey
	}
	return keys
}

// WithoutImages returns a copy of r with every preview data URL cleared.
func (r *ScanResult) WithoutImages() *ScanResult {
	out := *r
	out.BackgroundFillURL = ""
	out.Quests = make([]ScanQuest, len(r.Quests))
	for i, q := range r.Quests {
		for _, s := range States {
			q.SetImageURL(s, "")
		}
		out.Quests[i] = q
	}
	return &out
}

// QuestExport is one quest entry of the manifest.
type QuestExport struct {
	QuestKey     string  `json:"questKey"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	W            float64 `json:"w"`
	H            float64 `json:"h"`
	Rotation     float64 `json:"rotation"`
	LockedImg    string  `json:"lockedImg"`
	ActiveImg    string  `json:"activeImg"`
	UnclaimedImg string  `json:"unclaimedImg"`
	CompletedImg string  `json:"completedImg"`
}

// Image returns the asset filename for state.
func (q QuestExport) Image(s State) string {
	switch s {
	case StateLocked:
		return q.LockedImg
	case StateActive:
		return q.ActiveImg
	case StateUnclaimed:
		return q.UnclaimedImg
	case StateCompleted:
		return q.CompletedImg
	}
	return ""
}

// Background references the background asset.
type Background struct {
	ExportURL string `json:"exportUrl"`
}

// QuestlineExport is the positions manifest consumed by the game client.
type QuestlineExport struct {
	QuestlineID string        `json:"questlineId"`
	FrameSize   FrameSize     `json:"frameSize"`
	Background  Background    `json:"background"`
	Quests      []QuestExport `json:"quests"`
}

// ExportResult is what an export returns to its caller. Manifest is nil
// whenever any issue prevented the export.
type ExportResult struct {
	Manifest *QuestlineExport `json:"json"`
	Issues   []issue.Issue    `json:"issues"`
}

// Asset is one rendered PNG.
type Asset struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Bundle is a complete export: manifest plus every rendered asset.
type Bundle struct {
	QuestlineID string          `json:"questlineId"`
	Manifest    QuestlineExport `json:"json"`
	Assets      []Asset         `json:"images"`
}

// AssetName returns the deterministic filename of a quest state render.
func AssetName(questKey string, s State) string {
	return "quest-" + questKey + "-" + string(s) + ".png"
}

var folderUnsafeRe = regexp.MustCompile(`[^a-z0-9-]`)

// FolderName returns the bundle's top-level directory name.
func FolderName(questlineID string) string {
	return "questline-" + folderUnsafeRe.ReplaceAllString(questlineID, "-")
}
