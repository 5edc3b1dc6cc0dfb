package render

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/image/draw"

	"github.com/joouha/euporie-sub000/internal/graphics"
)

// placeholderStyle renders the "no graphics available" box of spec
// §4.3's failure model and §7's rendering-failure error kind.
var placeholderStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 1).
	Align(lipgloss.Center)

// imagePlaceholder renders a placeholder box containing the literal
// text "Image", at least three lines tall, for use when no graphics
// protocol and no ANSI-art converter are available (E2E scenario 3).
func imagePlaceholder(cols, rows int) []string {
	if cols < 3 {
		cols = 3
	}
	box := placeholderStyle.Width(cols - 2).Render("Image")
	lines := splitLines(box)
	for len(lines) < 3 {
		lines = append(lines, "")
	}
	return lines
}

// decodeImage decodes PNG/JPEG bytes, returning nil on failure rather
// than an error: the caller always has a placeholder to fall back to.
func decodeImage(data []byte) image.Image {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	return img
}

// fitCells computes pixel dimensions that preserve aspect ratio while
// fitting within the given cell grid, using the terminal's reported
// pixels-per-cell ratio.
func fitCells(img image.Image, cols, rows, cellPxW, cellPxH int) (w, h int) {
	if cellPxW <= 0 {
		cellPxW = 8
	}
	if cellPxH <= 0 {
		cellPxH = 16
	}
	maxW, maxH := cols*cellPxW, rows*cellPxH
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW == 0 || srcH == 0 {
		return maxW, maxH
	}
	scale := float64(maxW) / float64(srcW)
	if alt := float64(maxH) / float64(srcH); alt < scale {
		scale = alt
	}
	w = int(float64(srcW) * scale)
	h = int(float64(srcH) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// resize scales img to the given pixel dimensions using a high-quality
// CatmullRom kernel (golang.org/x/image/draw), keeping downscaled
// graphics legible.
func resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// asciiArt renders img as a coarse block-character fallback when no
// terminal graphics protocol is available (the "unicode blocks" rung of
// spec §4.3's fallback chain — chafa itself is an external tool this
// package cannot shell out to safely, so this is the last resort before
// the plain placeholder box).
func asciiArt(img image.Image, cols, rows int) []string {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	small := resize(img, cols, rows)
	lines := make([]string, rows)
	blocks := []rune{' ', '░', '▒', '▓', '█'}
	for y := 0; y < rows; y++ {
		var sb []rune
		for x := 0; x < cols; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			lum := (299*int(r>>8) + 587*int(g>>8) + 114*int(b>>8)) / 1000
			idx := lum * (len(blocks) - 1) / 255
			sb = append(sb, blocks[idx])
		}
		lines[y] = string(sb)
	}
	return lines
}

// registerImageGraphic hands PNG/JPEG bytes to the Graphics Manager,
// returning the handle the viewport will later position. format is the
// Manager's short protocol-facing name ("png"/"jpeg"), not the mime
// string, since KittyProtocol picks its f= transmission code from it.
func registerImageGraphic(mgr *graphics.Manager, data []byte, format string, visible func() bool) *graphics.Graphic {
	if mgr == nil {
		return nil
	}
	return mgr.Add(data, format, graphics.VisibleFunc(visible), "")
}

// imageFormat maps a mime type to the Manager's short format name.
func imageFormat(mime string) string {
	if mime == "image/jpeg" {
		return "jpeg"
	}
	return "png"
}
