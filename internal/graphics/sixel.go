package graphics

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// sixelCellPxW/H are the assumed pixels-per-cell used to size the
// re-encoded sixel image, matching internal/render's own fallback
// default for terminals that never answered a pixel-size query.
const (
	sixelCellPxW = 8
	sixelCellPxH = 16
)

// SixelProtocol renders a fresh sixel escape sequence on every draw (the
// sixel wire format carries no persistent image handle, unlike kitty), so
// Transmit is a no-op and hide/delete have nothing to undo.
type SixelProtocol struct{}

func (SixelProtocol) Transmit(g *Graphic) ([]byte, error) { return nil, nil }

// Draw re-encodes g's source image at its current cell size on every
// call, per spec §4.2: sixel carries no persistent handle, so unlike
// kitty/iterm it cannot transmit once and redraw a stale bitmap when
// the viewport resizes the graphic.
func (SixelProtocol) Draw(g *Graphic) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(g.Data))
	if err != nil {
		return nil, err
	}
	if g.WidthCells > 0 && g.HeightCells > 0 {
		img = resizeSixel(img, g.WidthCells*sixelCellPxW, g.HeightCells*sixelCellPxH)
	}
	return encodeSixel(img), nil
}

// resizeSixel scales img to the given pixel dimensions.
func resizeSixel(img image.Image, w, h int) image.Image {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func (SixelProtocol) Hide(g *Graphic) []byte   { return nil }
func (SixelProtocol) Delete(g *Graphic) []byte { return nil }

// encodeSixel renders img as a DEC sixel graphic, quantizing to a
// palette of the image's own colors when it has fewer than 256 distinct
// ones (or, otherwise, a fixed 6x6x6 web-safe cube of 216 colors, which
// keeps the encoder simple and bounded regardless of input size).
func encodeSixel(img image.Image) []byte {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	palette := buildSixelPalette(img)

	var buf bytes.Buffer
	buf.WriteString("\x1bPq")
	fmt.Fprintf(&buf, "\"1;1;%d;%d", w, h)
	for i, c := range palette {
		r, g, b, _ := c.RGBA()
		fmt.Fprintf(&buf, "#%d;2;%d;%d;%d", i, pct(r), pct(g), pct(b))
	}

	for bandTop := bounds.Min.Y; bandTop < bounds.Max.Y; bandTop += 6 {
		bandBottom := bandTop + 6
		if bandBottom > bounds.Max.Y {
			bandBottom = bounds.Max.Y
		}
		for ci, pc := range palette {
			var line bytes.Buffer
			any := false
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				var sixel byte
				for row := bandTop; row < bandBottom; row++ {
					if closestIndex(palette, img.At(x, row)) == ci {
						sixel |= 1 << uint(row-bandTop)
						any = true
					}
				}
				line.WriteByte(sixel + '?')
			}
			if any {
				fmt.Fprintf(&buf, "#%d", ci)
				buf.Write(line.Bytes())
				buf.WriteByte('$') // carriage return within the band
			}
			_ = pc
		}
		buf.WriteByte('-') // next band
	}
	buf.WriteString("\x1b\\")
	return buf.Bytes()
}

func pct(v uint32) uint32 {
	return (v * 100) / 0xffff
}

// buildSixelPalette samples up to 256 distinct colors from img, falling
// back to a 6x6x6 web-safe cube (216 colors) once 256 are found.
func buildSixelPalette(img image.Image) []color.Color {
	seen := map[color.Color]bool{}
	var palette []color.Color
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y && len(palette) < 256; y++ {
		for x := bounds.Min.X; x < bounds.Max.X && len(palette) < 256; x++ {
			c := img.At(x, y)
			if !seen[c] {
				seen[c] = true
				palette = append(palette, c)
			}
		}
	}
	if len(palette) >= 256 {
		palette = palette[:0]
		for r := 0; r < 6; r++ {
			for g := 0; g < 6; g++ {
				for b := 0; b < 6; b++ {
					palette = append(palette, color.RGBA{
						R: uint8(r * 51), G: uint8(g * 51), B: uint8(b * 51), A: 255,
					})
				}
			}
		}
	}
	if len(palette) == 0 {
		palette = append(palette, color.Black)
	}
	return palette
}

func closestIndex(palette []color.Color, target color.Color) int {
	tr, tg, tb, _ := target.RGBA()
	best, bestDist := 0, ^uint32(0)>>1
	for i, c := range palette {
		r, g, b, _ := c.RGBA()
		dr, dg, db := diff(r, tr), diff(g, tg), diff(b, tb)
		dist := dr*dr + dg*dg + db*db
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

func diff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
