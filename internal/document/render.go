package document

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/starford/questline/internal/apperr"
	"github.com/starford/questline/internal/host"
)

// Export rasterises n and its visible subtree to PNG. The canvas is the
// node's size rounded up; children are clipped to their parents. Rotation is
// reported through Node.Rotation and not applied to pixels.
func (d *Document) Export(ctx context.Context, n host.Node) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nd, err := d.lookup(n)
	if err != nil {
		return nil, err
	}
	if !nd.Renderable() {
		return nil, fmt.Errorf("document: export %s: %w", nd.id, apperr.ErrNotRenderable)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	canvas := image.NewRGBA(image.Rect(0, 0, pixels(nd.spec.Width), pixels(nd.spec.Height)))
	if err := d.paint(ctx, canvas, nd, image.Point{}); err != nil {
		return nil, fmt.Errorf("document: export %s: %w", nd.id, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("document: encode %s: %w", nd.id, err)
	}
	return buf.Bytes(), nil
}

// paint draws nd with its top-left corner at origin. Must be called with the
// read lock held.
func (d *Document) paint(ctx context.Context, dst *image.RGBA, nd *node, origin image.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	area := image.Rect(origin.X, origin.Y, origin.X+pixels(nd.spec.Width), origin.Y+pixels(nd.spec.Height))
	clip, ok := dst.SubImage(area).(*image.RGBA)
	if !ok || clip.Rect.Empty() {
		return nil
	}

	if nd.kind == host.KindText {
		return drawText(clip, area.Min, nd.spec)
	}

	for _, p := range nd.spec.Fills {
		switch strings.ToUpper(p.Type) {
		case PaintSolid:
			c, err := parseColor(p.Color)
			if err != nil {
				return fmt.Errorf("fill of %s: %w", nd.id, err)
			}
			draw.Draw(clip, area, image.NewUniform(c), image.Point{}, draw.Over)
		case PaintImage:
			src, err := d.images.load(ctx, p.Src)
			if err != nil {
				return fmt.Errorf("image fill of %s: %w", nd.id, err)
			}
			draw.BiLinear.Scale(clip, area, src, src.Bounds(), draw.Over, nil)
		}
	}

	for _, c := range nd.visibleChildren() {
		if !c.Renderable() {
			continue
		}
		offset := image.Pt(int(math.Round(c.spec.X)), int(math.Round(c.spec.Y)))
		if err := d.paint(ctx, clip, c, origin.Add(offset)); err != nil {
			return err
		}
	}
	return nil
}

// drawText writes the characters line by line in a fixed bitmap face, using
// the first solid fill as the ink colour.
func drawText(dst *image.RGBA, at image.Point, spec *Spec) error {
	ink := color.Color(color.Black)
	for _, p := range spec.Fills {
		if strings.ToUpper(p.Type) != PaintSolid {
			continue
		}
		c, err := parseColor(p.Color)
		if err != nil {
			return fmt.Errorf("text fill: %w", err)
		}
		ink = c
		break
	}

	face := basicfont.Face7x13
	drawer := font.Drawer{Dst: dst, Src: image.NewUniform(ink), Face: face}
	for i, line := range strings.Split(spec.Characters, "\n") {
		drawer.Dot = fixed.P(at.X, at.Y+face.Ascent+i*face.Height)
		drawer.DrawString(line)
	}
	return nil
}

func pixels(v float64) int {
	return max(1, int(math.Ceil(v)))
}

// parseColor accepts #rgb, #rrggbb and #rrggbbaa.
func parseColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.NRGBA{R: b[0], G: b[1], B: b[2], A: b[3]}, nil
}
