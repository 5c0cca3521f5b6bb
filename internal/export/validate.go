package export

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/slug"
)

// Validate re-checks a scan result before export, independently of the
// issues the scan reported. The first violated rule is returned.
func Validate(scan *models.ScanResult) error {
	if scan == nil {
		return errors.New("scan result is required")
	}

	if err := validation.Validate(scan.QuestlineID,
		validation.Required.Error("Invalid questlineId format"),
		validation.Match(slug.KeyPattern()).Error("Invalid questlineId format"),
	); err != nil {
		return err
	}

	if err := validation.Validate(scan.Quests,
		validation.Required.Error(fmt.Sprintf("At least %d quests required", models.MinQuests)),
		validation.By(countRule),
		validation.By(uniqueKeysRule),
	); err != nil {
		return err
	}

	for _, q := range scan.Quests {
		if err := validation.Validate(q.QuestKey,
			validation.Required.Error("Invalid questKey format: "+q.QuestKey),
			validation.Match(slug.KeyPattern()).Error("Invalid questKey format: "+q.QuestKey),
			validation.By(noDoubleWhitespace),
		); err != nil {
			return err
		}
	}
	return nil
}

func countRule(value any) error {
	quests, _ := value.([]models.ScanQuest)
	switch {
	case len(quests) < models.MinQuests:
		return fmt.Errorf("At least %d quests required", models.MinQuests)
	case len(quests) > models.MaxQuests:
		return fmt.Errorf("No more than %d quests allowed", models.MaxQuests)
	}
	return nil
}

func uniqueKeysRule(value any) error {
	quests, _ := value.([]models.ScanQuest)
	seen := make(map[string]struct{}, len(quests))
	for _, q := range quests {
		k := slug.NormalizeKey(q.QuestKey)
		if _, dup := seen[k]; dup {
			return errors.New("Quest keys must be unique (case-insensitive, trimmed)")
		}
		seen[k] = struct{}{}
	}
	return nil
}

func noDoubleWhitespace(value any) error {
	key, _ := value.(string)
	if slug.HasDoubleWhitespace(key) {
		return errors.New("Quest key cannot have double whitespace: " + strings.TrimSpace(key))
	}
	return nil
}
