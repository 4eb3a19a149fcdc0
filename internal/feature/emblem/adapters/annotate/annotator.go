// Package annotate draws detection boxes and labels onto frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/opentype"

	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

// palette is cycled per detection index.
var palette = []color.RGBA{
	{R: 0, G: 200, B: 0, A: 255},
	{R: 230, G: 60, B: 60, A: 255},
	{R: 40, G: 120, B: 240, A: 255},
	{R: 240, G: 180, B: 0, A: 255},
	{R: 180, G: 60, B: 220, A: 255},
}

// Annotator renders boxes with "label confidence" captions. The zero value
// uses the built-in bitmap font, which only covers ASCII.
type Annotator struct {
	lineWidth float64
	font      *opentype.Font
	fontSize  float64
}

var _ usecase.Annotator = (*Annotator)(nil)

// New returns an Annotator. fontPath may point at a TTF or OTF file, which is
// read and parsed once here.
func New(fontPath string, fontSize float64) (*Annotator, error) {
	a := &Annotator{lineWidth: 2, fontSize: fontSize}
	if fontPath == "" {
		return a, nil
	}
	if a.fontSize <= 0 {
		a.fontSize = 16
	}
	data, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load font %s: %w", fontPath, err)
	}
	if a.font, err = opentype.Parse(data); err != nil {
		return nil, fmt.Errorf("failed to parse font %s: %w", fontPath, err)
	}
	return a, nil
}

// Annotate returns a copy of img with every detection drawn. img is not modified.
func (a *Annotator) Annotate(img image.Image, detections []entity.Detection) image.Image {
	dc := gg.NewContextForImage(img)
	if a.font != nil {
		// faces carry glyph buffers, so each frame gets its own
		face, err := opentype.NewFace(a.font, &opentype.FaceOptions{Size: a.fontSize, DPI: 72})
		if err == nil {
			dc.SetFontFace(face)
		}
	}
	lw := a.lineWidth
	if lw <= 0 {
		lw = 2
	}
	origin := img.Bounds().Min

	for i, d := range detections {
		c := palette[i%len(palette)]
		x1 := float64(d.Box.X1) - float64(origin.X)
		y1 := float64(d.Box.Y1) - float64(origin.Y)
		w := float64(d.Box.X2 - d.Box.X1)
		h := float64(d.Box.Y2 - d.Box.Y1)

		dc.SetColor(c)
		dc.SetLineWidth(lw)
		dc.DrawRectangle(x1, y1, w, h)
		dc.Stroke()

		caption := Caption(d)
		tw, th := dc.MeasureString(caption)
		ty := y1 - th - 4
		if ty < 0 {
			ty = y1
		}
		dc.DrawRectangle(x1, ty, tw+6, th+4)
		dc.Fill()
		dc.SetColor(color.White)
		dc.DrawString(caption, x1+3, ty+th+1)
	}
	return dc.Image()
}

// Caption is the text drawn above a box.
func Caption(d entity.Detection) string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}
