package document

import (
	"image/color"
	"testing"

	"github.com/starford/questline/internal/host"
)

func TestParseColor(t *testing.T) {
	cases := map[string]color.NRGBA{
		"#fff":      {R: 255, G: 255, B: 255, A: 255},
		"#102030":   {R: 0x10, G: 0x20, B: 0x30, A: 255},
		"#10203080": {R: 0x10, G: 0x20, B: 0x30, A: 0x80},
	}
	for in, want := range cases {
		got, err := parseColor(in)
		if err != nil {
			t.Errorf("parseColor(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseColor(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"", "#12", "#zzzzzz"} {
		if _, err := parseColor(bad); err == nil {
			t.Errorf("parseColor(%q) should fail", bad)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := map[string]host.Kind{
		"FRAME":     host.KindFrame,
		"component": host.KindFrame,
		"GROUP":     host.KindGroup,
		"INSTANCE":  host.KindInstance,
		"TEXT":      host.KindText,
		"VECTOR":    host.KindShape,
		"SLICE":     host.KindOther,
		"":          host.KindOther,
	}
	for in, want := range cases {
		if got := kindOf(in); got != want {
			t.Errorf("kindOf(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestPixelsRoundsUp(t *testing.T) {
	if pixels(10.2) != 11 || pixels(0) != 1 {
		t.Errorf("pixels: %d %d", pixels(10.2), pixels(0))
	}
}
