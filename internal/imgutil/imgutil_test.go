package imgutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// noisyImage compresses badly, which makes the quality loop do real work.
func noisyImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func TestGuideSegmentsRuleOfThirds(t *testing.T) {
	segs := GuideSegments(GuideRuleOfThirds, 300, 600)
	require.Len(t, segs, 4)
	assert.Equal(t, Segment{100, 0, 100, 600}, segs[0])
	assert.Equal(t, Segment{200, 0, 200, 600}, segs[1])
	assert.Equal(t, Segment{0, 200, 300, 200}, segs[2])
	assert.Equal(t, Segment{0, 400, 300, 400}, segs[3])
}

func TestGuideSegmentsCounts(t *testing.T) {
	cases := map[GuideStyle]int{
		GuideRuleOfThirds: 4,
		GuideDiagonal:     2,
		GuideCenter:       2,
		GuideAll:          8,
		GuideStyle("x"):   0,
	}
	for style, want := range cases {
		assert.Len(t, GuideSegments(style, 90, 60), want, "style %s", style)
	}
}

func TestGuideSegmentsAllIsUnion(t *testing.T) {
	var union []Segment
	union = append(union, GuideSegments(GuideRuleOfThirds, 120, 80)...)
	union = append(union, GuideSegments(GuideDiagonal, 120, 80)...)
	union = append(union, GuideSegments(GuideCenter, 120, 80)...)
	assert.ElementsMatch(t, union, GuideSegments(GuideAll, 120, 80))
}

func TestOverlayGuidesDoesNotMutateInput(t *testing.T) {
	src := solidImage(90, 90, color.White)
	before := append([]uint8(nil), src.Pix...)

	out := OverlayGuides(src, GuideOptions{Style: GuideAll, Color: PoseGuideColor, Width: 2})

	assert.Equal(t, before, src.Pix)
	assert.NotSame(t, src, out)
}

func TestOverlayGuidesOpaqueRoundTrip(t *testing.T) {
	src := solidImage(150, 90, color.White)

	out := OverlayGuides(src, GuideOptions{Style: GuideRuleOfThirds, Color: PoseGuideColor, Width: 2})

	flat, ok := out.(*image.RGBA)
	require.True(t, ok, "opaque input must come back as RGBA, got %T", out)
	assert.True(t, flat.Opaque())
	assert.Equal(t, src.Bounds(), flat.Bounds())

	// on the first vertical third line the pink is blended into white
	onLine := flat.RGBAAt(50, 45)
	assert.Equal(t, uint8(255), onLine.R)
	assert.Less(t, onLine.G, uint8(200))
	assert.Equal(t, uint8(255), onLine.A)

	// away from any line the background is untouched
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, flat.RGBAAt(20, 10))
}

func TestOverlayGuidesKeepsAlphaForTransparentInput(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 60, 60))

	out := OverlayGuides(src, GuideOptions{Style: GuideCenter, Color: PoseGuideColor, Width: 2})

	nrgba, ok := out.(*image.NRGBA)
	require.True(t, ok, "transparent input must keep its alpha channel, got %T", out)
	assert.Equal(t, uint8(0), nrgba.NRGBAAt(5, 5).A)
	assert.NotZero(t, nrgba.NRGBAAt(30, 5).A)
}

func TestOverlayGuidesDiagonalCoversCorners(t *testing.T) {
	src := solidImage(100, 100, color.Black)

	out := OverlayGuides(src, GuideOptions{Style: GuideDiagonal, Color: color.NRGBA{255, 255, 255, 255}, Width: 2}).(*image.RGBA)

	assert.Greater(t, out.RGBAAt(50, 50).R, uint8(100))
	assert.Greater(t, out.RGBAAt(10, 89).R, uint8(100))
	assert.Equal(t, uint8(0), out.RGBAAt(50, 10).R)
}

func TestFlattenUsesBackground(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 10, 20, 20))
	src.SetNRGBA(10, 10, color.NRGBA{0, 0, 0, 255})

	flat := Flatten(src, color.White)

	assert.Equal(t, image.Rect(0, 0, 10, 10), flat.Bounds())
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, flat.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, flat.RGBAAt(5, 5))
}

func TestCompressDownsamplesLongEdge(t *testing.T) {
	data, quality, err := Compress(solidImage(1600, 800, color.Gray{Y: 128}), DefaultBudget)
	require.NoError(t, err)
	assert.Equal(t, StartQuality, quality)

	img, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, MaxDimension, img.Bounds().Dx())
	assert.Equal(t, MaxDimension/2, img.Bounds().Dy())
}

func TestCompressLowersQualityUntilFloor(t *testing.T) {
	data, quality, err := Compress(noisyImage(400, 400, 1), 1024)
	require.NoError(t, err)
	assert.Equal(t, 15, quality)
	assert.NotEmpty(t, data)
}

func TestCompressBudgetProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 200).Draw(t, "w")
		h := rapid.IntRange(1, 200).Draw(t, "h")
		budget := rapid.IntRange(256, 64*1024).Draw(t, "budget")
		seed := rapid.Int64().Draw(t, "seed")

		data, quality, err := Compress(noisyImage(w, h, seed), budget)
		if err != nil {
			t.Fatalf("compress: %v", err)
		}
		if len(data) > budget && quality > QualityFloor {
			t.Fatalf("size %d over budget %d at quality %d", len(data), budget, quality)
		}
		if quality < StartQuality-6*QualityStep {
			t.Fatalf("quality loop ran too long: %d", quality)
		}
	})
}

func TestCompressFileFallsBackToRawBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	raw := []byte("definitely not an image")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	assert.Equal(t, raw, CompressFile(path, DefaultBudget))
}

func TestCompressFileMissing(t *testing.T) {
	assert.Nil(t, CompressFile(filepath.Join(t.TempDir(), "nope.png"), DefaultBudget))
}

func TestCompressFileFlattensTransparentPNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))
	path := filepath.Join(t.TempDir(), "clear.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	data := CompressFile(path, DefaultBudget)

	img, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	r, g, b, _ := img.At(16, 16).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

// pngHeader returns a PNG signature plus IHDR declaring an 8-bit grayscale
// image of w x h pixels. It carries no pixel data.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := make([]byte, 0, 17)
	chunk = append(chunk, "IHDR"...)
	chunk = binary.BigEndian.AppendUint32(chunk, w)
	chunk = binary.BigEndian.AppendUint32(chunk, h)
	chunk = append(chunk, 8, 0, 0, 0, 0)
	_ = binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodeRejectsOversizedDimensionsFromHeader(t *testing.T) {
	_, _, err := Decode(pngHeader(20000, 20000))
	require.ErrorIs(t, err, ErrTooManyPixels)

	cfg, format, err := CheckSize(pngHeader(4000, 3000))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 4000, cfg.Width)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(4, 4, color.White)))
	_, _, err = Decode(buf.Bytes())
	require.NoError(t, err)
}

func TestCompressFileSkipsOversizedImages(t *testing.T) {
	raw := pngHeader(20000, 20000)
	path := filepath.Join(t.TempDir(), "huge.png")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	assert.Equal(t, raw, CompressFile(path, DefaultBudget))
}
