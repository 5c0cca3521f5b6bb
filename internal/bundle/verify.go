package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/slug"
)

// Report summarises a verified bundle.
type Report struct {
	QuestlineID string   `json:"questlineId"`
	Quests      int      `json:"quests"`
	Assets      int      `json:"assets"`
	Problems    []string `json:"problems"`
}

// OK reports whether no problem was found.
func (r Report) OK() bool {
	return len(r.Problems) == 0
}

// Err joins the problems into one error, nil when the bundle is sound.
func (r Report) Err() error {
	errs := make([]error, len(r.Problems))
	for i, p := range r.Problems {
		errs[i] = errors.New(p)
	}
	return errors.Join(errs...)
}

// Verify checks that a bundle is complete and consistent: the manifest names
// exactly the assets present, filenames follow the naming scheme, and every
// asset is a decodable PNG.
func Verify(b models.Bundle) Report {
	r := Report{
		QuestlineID: b.Manifest.QuestlineID,
		Quests:      len(b.Manifest.Quests),
		Assets:      len(b.Assets),
		Problems:    []string{},
	}
	problem := func(format string, args ...any) {
		r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
	}

	if !slug.ValidKey(b.Manifest.QuestlineID) {
		problem("invalid questlineId %q", b.Manifest.QuestlineID)
	}
	if b.QuestlineID != b.Manifest.QuestlineID {
		problem("bundle id %q does not match manifest id %q", b.QuestlineID, b.Manifest.QuestlineID)
	}
	if n := len(b.Manifest.Quests); n < models.MinQuests || n > models.MaxQuests {
		problem("quest count %d outside [%d, %d]", n, models.MinQuests, models.MaxQuests)
	}

	present := make(map[string]bool, len(b.Assets))
	for _, a := range b.Assets {
		if present[a.Name] {
			problem("duplicate asset %s", a.Name)
		}
		present[a.Name] = true
		if _, err := png.DecodeConfig(bytes.NewReader(a.Data)); err != nil {
			problem("asset %s is not a PNG: %v", a.Name, err)
		}
	}

	if b.Manifest.Background.ExportURL != models.BackgroundAsset {
		problem("background exportUrl is %q, want %q", b.Manifest.Background.ExportURL, models.BackgroundAsset)
	}
	if !present[models.BackgroundAsset] {
		problem("missing %s", models.BackgroundAsset)
	}

	seen := make(map[string]bool, len(b.Manifest.Quests))
	for _, q := range b.Manifest.Quests {
		key := slug.NormalizeKey(q.QuestKey)
		if seen[key] {
			problem("duplicate quest key %q", q.QuestKey)
		}
		seen[key] = true
		if !slug.ValidKey(q.QuestKey) {
			problem("invalid quest key %q", q.QuestKey)
		}
		for _, s := range models.States {
			name := q.Image(s)
			if want := models.AssetName(q.QuestKey, s); name != want {
				problem("quest %s %s image is %q, want %q", q.QuestKey, s, name, want)
			}
			if !present[name] {
				problem("missing %s", name)
			}
		}
	}

	if want := 1 + len(models.States)*len(b.Manifest.Quests); len(b.Assets) != want {
		problem("bundle has %d assets, want %d", len(b.Assets), want)
	}
	return r
}

// VerifyArchive unpacks and verifies zip bytes.
func VerifyArchive(data []byte) (Report, error) {
	b, err := Unpack(data)
	if err != nil {
		return Report{}, err
	}
	return Verify(*b), nil
}
