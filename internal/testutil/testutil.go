// Package testutil provides shared fixtures: questline documents, stores and
// databases.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/starford/questline/internal/document"
	"github.com/starford/questline/internal/history"
	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/storage"
)

// Fixture node ids.
const (
	RootID       = "1:1"
	BackgroundID = "1:2"
)

var stateColors = map[models.State]string{
	models.StateLocked:    "#808080",
	models.StateActive:    "#ffcc00",
	models.StateUnclaimed: "#33aaff",
	models.StateCompleted: "#22bb55",
}

// StateColor returns the solid fill used for a state's image in fixtures.
func StateColor(s models.State) string {
	return stateColors[s]
}

// QuestID returns the fixture id of the i-th quest, starting at 1.
func QuestID(i int) string {
	return fmt.Sprintf("2:%d", i)
}

// QuestlineFile returns a snapshot with a "Questline: Summer Event" frame, a
// BG layer and n structured quests keyed quest-1..quest-n. The frame is
// selected and every quest starts in the locked state.
func QuestlineFile(n int) *document.File {
	root := &document.Spec{
		ID:     RootID,
		Type:   "FRAME",
		Name:   "Questline: Summer Event",
		Width:  800,
		Height: 600,
		Fills:  []document.Paint{{Type: document.PaintSolid, Color: "#ffffff"}},
		Children: []*document.Spec{{
			ID:     BackgroundID,
			Type:   "FRAME",
			Name:   "BG",
			Width:  800,
			Height: 600,
			Fills:  []document.Paint{{Type: document.PaintSolid, Color: "#102030"}},
		}},
	}
	for i := 1; i <= n; i++ {
		x := float64(20 + ((i-1)%10)*70)
		y := float64(40 + ((i-1)/10)*200)
		root.Children = append(root.Children, QuestSpec(QuestID(i), fmt.Sprintf("quest-%d", i), x, y))
	}
	return &document.File{
		Name:      "fixture",
		Selection: []string{RootID},
		Nodes:     []*document.Spec{root},
	}
}

// QuestSpec builds a structured quest instance whose Visuals/Image layer is
// painted with a different colour per state. The image sits at (4, 6) inside
// the instance.
func QuestSpec(id, key string, x, y float64) *document.Spec {
	variants := make(map[string][]*document.Spec, len(models.States))
	for _, s := range models.States {
		variants[string(s)] = []*document.Spec{
			{
				Type: "FRAME", Name: "Properties", Width: 60, Height: 20,
				Children: []*document.Spec{{Type: "TEXT", Name: "questKey", Characters: key, Width: 60, Height: 20}},
			},
			{
				Type: "GROUP", Name: "Visuals", X: 4, Y: 6, Width: 48, Height: 48,
				Children: []*document.Spec{{
					Type: "RECTANGLE", Name: "Image", Width: 48, Height: 48,
					Fills: []document.Paint{{Type: document.PaintSolid, Color: stateColors[s]}},
				}},
			},
		}
	}
	return &document.Spec{
		ID:         id,
		Type:       "INSTANCE",
		Name:       "Quest " + key,
		X:          x,
		Y:          y,
		Width:      60,
		Height:     60,
		Properties: map[string]string{"State": string(models.StateLocked)},
		Variants:   variants,
	}
}

// QuestlineDoc builds an in-memory document from QuestlineFile(n).
func QuestlineDoc(t *testing.T, n int) *document.Document {
	t.Helper()
	doc, err := document.New(QuestlineFile(n))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

// PNG encodes a w x h image filled with c.
func PNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *history.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "questline-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := history.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary bundle directory with a storage.FS on top.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Bundle assembles a complete bundle with a 2x2 PNG for every asset.
func Bundle(t *testing.T, questlineID string, keys ...string) models.Bundle {
	t.Helper()
	img := PNG(t, 2, 2, color.White)
	b := models.Bundle{
		QuestlineID: questlineID,
		Manifest: models.QuestlineExport{
			QuestlineID: questlineID,
			FrameSize:   models.FrameSize{Width: 800, Height: 600},
			Background:  models.Background{ExportURL: models.BackgroundAsset},
			Quests:      []models.QuestExport{},
		},
		Assets: []models.Asset{{Name: models.BackgroundAsset, Data: img}},
	}
	for i, key := range keys {
		b.Manifest.Quests = append(b.Manifest.Quests, models.QuestExport{
			QuestKey:     key,
			X:            float64(20 + 70*i),
			Y:            40,
			W:            48,
			H:            48,
			LockedImg:    models.AssetName(key, models.StateLocked),
			ActiveImg:    models.AssetName(key, models.StateActive),
			UnclaimedImg: models.AssetName(key, models.StateUnclaimed),
			CompletedImg: models.AssetName(key, models.StateCompleted),
		})
		for _, s := range models.States {
			b.Assets = append(b.Assets, models.Asset{Name: models.AssetName(key, s), Data: img})
		}
	}
	return b
}
