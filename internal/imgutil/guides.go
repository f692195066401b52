package imgutil

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// GuideStyle selects which composition lines OverlayGuides draws.
type GuideStyle string

const (
	GuideRuleOfThirds GuideStyle = "rule_of_thirds"
	GuideDiagonal     GuideStyle = "diagonal"
	GuideCenter       GuideStyle = "center"
	GuideAll          GuideStyle = "all"
)

// PoseGuideColor is the semi-transparent pink (#FF2442) used on pose
// illustrations.
var PoseGuideColor = color.NRGBA{R: 255, G: 36, B: 66, A: 180}

// GuideOptions configures OverlayGuides.
type GuideOptions struct {
	Style GuideStyle
	Color color.Color
	Width float64
}

// Segment is one straight guide line in image coordinates.
type Segment struct {
	X0, Y0, X1, Y1 float64
}

// GuideSegments returns the lines drawn for style on a w×h image.
func GuideSegments(style GuideStyle, w, h int) []Segment {
	fw, fh := float64(w), float64(h)
	var segs []Segment
	if style == GuideRuleOfThirds || style == GuideAll {
		x1, x2 := fw/3, fw*2/3
		y1, y2 := fh/3, fh*2/3
		segs = append(segs,
			Segment{x1, 0, x1, fh},
			Segment{x2, 0, x2, fh},
			Segment{0, y1, fw, y1},
			Segment{0, y2, fw, y2},
		)
	}
	if style == GuideDiagonal || style == GuideAll {
		segs = append(segs,
			Segment{0, 0, fw, fh},
			Segment{fw, 0, 0, fh},
		)
	}
	if style == GuideCenter || style == GuideAll {
		cx, cy := fw/2, fh/2
		segs = append(segs,
			Segment{cx, 0, cx, fh},
			Segment{0, cy, fw, cy},
		)
	}
	return segs
}

// OverlayGuides returns a copy of img with composition guide lines blended
// on top. The input is never modified. Lines are blended on an NRGBA working
// copy; when img is opaque the result is flattened onto white so it can be
// stored as JPEG, otherwise the NRGBA copy is returned.
func OverlayGuides(img image.Image, opts GuideOptions) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	work := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(work, work.Bounds(), img, b.Min, draw.Src)
	if w == 0 || h == 0 {
		return work
	}

	lineColor := opts.Color
	if lineColor == nil {
		lineColor = PoseGuideColor
	}
	width := opts.Width
	if width <= 0 {
		width = 2
	}

	mask := image.NewAlpha(work.Bounds())
	z := vector.NewRasterizer(w, h)
	for _, s := range GuideSegments(opts.Style, w, h) {
		addStroke(z, s, width)
	}
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	draw.DrawMask(work, work.Bounds(), image.NewUniform(lineColor), image.Point{}, mask, image.Point{}, draw.Over)

	if isOpaque(img) {
		return Flatten(work, color.White)
	}
	return work
}

// Flatten composites img onto a solid background and returns an opaque RGBA
// image with origin-based bounds.
func Flatten(img image.Image, background color.Color) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// addStroke adds a width-wide quad around s. Every quad is wound the same
// way so overlapping lines accumulate instead of cancelling.
func addStroke(z *vector.Rasterizer, s Segment, width float64) {
	dx, dy := s.X1-s.X0, s.Y1-s.Y0
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx, ny := -dy/length*width/2, dx/length*width/2
	z.MoveTo(float32(s.X0+nx), float32(s.Y0+ny))
	z.LineTo(float32(s.X1+nx), float32(s.Y1+ny))
	z.LineTo(float32(s.X1-nx), float32(s.Y1-ny))
	z.LineTo(float32(s.X0-nx), float32(s.Y0-ny))
	z.ClosePath()
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
