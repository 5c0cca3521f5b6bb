package slug

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Summer Event":         "summer-event",
		"  Summer   Event  ":   "summer-event",
		"Winter_Fest! 2024":    "winterfest-2024",
		"already-slug":         "already-slug",
		"Tabs\tand\nnewlines":  "tabs-and-newlines",
		"":                     "",
		"ÜBER quest":           "ber-quest",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidKey(t *testing.T) {
	for _, k := range []string{"quest-1", "a", "daily-challenge", "0-0"} {
		if !ValidKey(k) {
			t.Errorf("ValidKey(%q) = false, want true", k)
		}
	}
	for _, k := range []string{"", "Quest 1", "quest_1", "quest 1", "QUEST", "quest.1"} {
		if ValidKey(k) {
			t.Errorf("ValidKey(%q) = true, want false", k)
		}
	}
}

func TestHasDoubleWhitespace(t *testing.T) {
	if !HasDoubleWhitespace("quest  one") {
		t.Error("two spaces should be detected")
	}
	if !HasDoubleWhitespace("quest \tone") {
		t.Error("space+tab should be detected")
	}
	if HasDoubleWhitespace("quest one") {
		t.Error("single space should pass")
	}
	if HasDoubleWhitespace("quest-one") {
		t.Error("no whitespace should pass")
	}
}

func TestNormalizeKey(t *testing.T) {
	if got := NormalizeKey("  Quest-1 "); got != "quest-1" {
		t.Errorf("NormalizeKey = %q, want quest-1", got)
	}
}

func TestStripPrefix(t *testing.T) {
	if got := StripPrefix("  questline: Summer Event", "Questline:"); got != " Summer Event" {
		t.Errorf("StripPrefix = %q", got)
	}
	if got := StripPrefix("Other", "Questline:"); got != "Other" {
		t.Errorf("StripPrefix without prefix = %q", got)
	}
	if !HasPrefixFold(" QUESTLINE: x", "Questline:") {
		t.Error("HasPrefixFold should ignore case and surrounding space")
	}
	if HasPrefixFold("Quest: x", "Questline:") {
		t.Error("HasPrefixFold should reject a different prefix")
	}
}

func TestClampAndBounds(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 0, 3) != 2 {
		t.Error("Clamp out of range")
	}
	if !IsInsideBounds(0, 0, 10, 10, 10, 10) {
		t.Error("touching edges should be inside")
	}
	if IsInsideBounds(-1, 0, 10, 10, 100, 100) {
		t.Error("negative x should be outside")
	}
	if IsInsideBounds(95, 0, 10, 10, 100, 100) {
		t.Error("overflowing width should be outside")
	}
}
