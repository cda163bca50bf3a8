package imageops

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/Placement/pkg/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage returns a w x h image filled with c.
func createTestImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// checkerboard returns a w x h image with alternating black and white cells.
func checkerboard(w, h, cell int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	return img
}

func coveredBounds(cov *image.Alpha) image.Rectangle {
	var r image.Rectangle
	b := cov.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if cov.AlphaAt(x, y).A > 0 {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"", FormatPNG, true},
		{"PNG", FormatPNG, true},
		{"jpg", FormatJPEG, true},
		{"jpeg", FormatJPEG, true},
		{"webp", FormatWebP, true},
		{"gif", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseFormat(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "image/jpeg", FormatJPEG.MimeType())
	assert.Equal(t, "image/webp", FormatWebP.MimeType())
	assert.Equal(t, "image/png", FormatPNG.MimeType())
}

func TestEncodeDecode(t *testing.T) {
	ctx := context.Background()
	img := createTestImage(40, 30, color.NRGBA{R: 10, G: 120, B: 200, A: 255})

	t.Run("png is lossless", func(t *testing.T) {
		data, err := Encode(ctx, img, FormatPNG)
		require.NoError(t, err)

		decoded, format, err := Decode(ctx, data)
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, img.Pix, ToNRGBA(decoded).Pix)

		dims, _, err := Metadata(data)
		require.NoError(t, err)
		assert.Equal(t, geometry.Dimensions{Width: 40, Height: 30}, dims)
	})

	for _, f := range []Format{FormatJPEG, FormatWebP} {
		t.Run(string(f), func(t *testing.T) {
			data, err := Encode(ctx, img, f)
			require.NoError(t, err)
			dims, _, err := Metadata(data)
			require.NoError(t, err)
			assert.Equal(t, geometry.Dimensions{Width: 40, Height: 30}, dims)
		})
	}

	t.Run("unknown format", func(t *testing.T) {
		_, err := Encode(ctx, img, Format("gif"))
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := Decode(ctx, []byte("not an image"))
		assert.Error(t, err)
	})
}

func TestEncodeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Encode(ctx, createTestImage(4, 4, color.NRGBA{A: 255}), FormatPNG)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWarpPlacesPosterInQuad(t *testing.T) {
	poster := checkerboard(400, 300, 10)
	quad := geometry.Quad{
		TopLeft:     geometry.Pt(100, 50),
		TopRight:    geometry.Pt(500, 50),
		BottomRight: geometry.Pt(500, 450),
		BottomLeft:  geometry.Pt(100, 450),
	}
	canvas := geometry.Dimensions{Width: 640, Height: 480}

	for _, hq := range []bool{false, true} {
		w, err := Warp(context.Background(), poster, quad, canvas, hq)
		require.NoError(t, err)
		assert.Equal(t, canvas, geometry.DimensionsOf(w.Image))

		got := coveredBounds(w.Coverage)
		assert.InDelta(t, 100, got.Min.X, 1)
		assert.InDelta(t, 50, got.Min.Y, 1)
		assert.InDelta(t, 500, got.Max.X-1, 1)
		assert.InDelta(t, 450, got.Max.Y-1, 1)

		// Outside the quad the canvas is opaque white.
		assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, w.Image.NRGBAAt(10, 10))
		assert.Equal(t, uint8(0), w.Coverage.AlphaAt(10, 10).A)
		// The top-left poster cell is black.
		assert.Equal(t, uint8(0), w.Image.NRGBAAt(101, 51).R)
		assert.Equal(t, uint8(255), w.Coverage.AlphaAt(101, 51).A)
	}
}

func TestWarpRejectsDegenerateQuad(t *testing.T) {
	poster := createTestImage(10, 10, color.NRGBA{A: 255})
	p := geometry.Pt(5, 5)
	_, err := Warp(context.Background(), poster, geometry.Quad{TopLeft: p, TopRight: p, BottomRight: p, BottomLeft: p},
		geometry.Dimensions{Width: 20, Height: 20}, false)
	var gerr *geometry.GeometryError
	assert.ErrorAs(t, err, &gerr)
}

func TestWarpCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := Warp(ctx, createTestImage(10, 10, color.NRGBA{A: 255}), geometry.Quad{
		TopLeft: geometry.Pt(0, 0), TopRight: geometry.Pt(9, 0), BottomRight: geometry.Pt(9, 9), BottomLeft: geometry.Pt(0, 9),
	}, geometry.Dimensions{Width: 10, Height: 10}, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFlatten(t *testing.T) {
	w := &Warped{
		Image:    createTestImage(2, 1, color.NRGBA{A: 255}),
		Coverage: image.NewAlpha(image.Rect(0, 0, 2, 1)),
	}
	w.Coverage.Pix[0] = 255
	flat := w.Flatten()
	assert.Equal(t, color.NRGBA{A: 255}, flat.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, flat.NRGBAAt(1, 0))
}

func TestBlurKeepsSize(t *testing.T) {
	img := checkerboard(50, 40, 5)
	out, err := Blur(context.Background(), img, 2)
	require.NoError(t, err)
	assert.Equal(t, geometry.DimensionsOf(img), geometry.DimensionsOf(out))
	assert.NotEqual(t, img.Pix, out.Pix)
}

func TestBlurWarped(t *testing.T) {
	w := &Warped{
		Image:    createTestImage(40, 40, color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		Coverage: image.NewAlpha(image.Rect(0, 0, 40, 40)),
	}
	for y := 15; y < 25; y++ {
		for x := 15; x < 25; x++ {
			w.Image.SetNRGBA(x, y, color.NRGBA{B: 255, A: 255})
			w.Coverage.SetAlpha(x, y, color.Alpha{A: 255})
		}
	}

	out, err := BlurWarped(context.Background(), w, 2)
	require.NoError(t, err)

	edge := out.Coverage.AlphaAt(15, 20).A
	assert.Greater(t, edge, uint8(0))
	assert.Less(t, edge, uint8(255))
	assert.Greater(t, out.Coverage.AlphaAt(14, 20).A, uint8(0))

	// The spread edge keeps the poster colour; the white background adds nothing.
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, out.Image.NRGBAAt(14, 20))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, out.Image.NRGBAAt(15, 20))

	assert.Equal(t, uint8(0), out.Coverage.AlphaAt(0, 0).A)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, out.Image.NRGBAAt(0, 0))
}

func TestVariableBlur(t *testing.T) {
	ctx := context.Background()
	img := checkerboard(40, 40, 4)

	t.Run("black mask keeps pixels sharp", func(t *testing.T) {
		out, err := VariableBlur(ctx, img, image.NewGray(img.Bounds()), 3)
		require.NoError(t, err)
		assert.Equal(t, img.Pix, out.Pix)
	})

	t.Run("white mask blurs fully", func(t *testing.T) {
		mask := image.NewGray(img.Bounds())
		for i := range mask.Pix {
			mask.Pix[i] = 255
		}
		out, err := VariableBlur(ctx, img, mask, 3)
		require.NoError(t, err)
		assert.Equal(t, imaging.Blur(img, 3).Pix, out.Pix)
	})

	t.Run("mask is resized", func(t *testing.T) {
		out, err := VariableBlur(ctx, img, image.NewGray(image.Rect(0, 0, 20, 20)), 3)
		require.NoError(t, err)
		assert.Equal(t, geometry.DimensionsOf(img), geometry.DimensionsOf(out))
	})

	t.Run("nil mask", func(t *testing.T) {
		_, err := VariableBlur(ctx, img, nil, 3)
		assert.Error(t, err)
	})
}

func TestOver(t *testing.T) {
	ctx := context.Background()
	scene := createTestImage(4, 4, color.NRGBA{R: 200, A: 255})
	poster := createTestImage(4, 4, color.NRGBA{B: 200, A: 255})
	cov := image.NewAlpha(scene.Bounds())
	cov.SetAlpha(1, 1, color.Alpha{A: 255})

	out, err := Over(ctx, scene, poster, cov)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{B: 200, A: 255}, out.NRGBAAt(1, 1))
	assert.Equal(t, color.NRGBA{R: 200, A: 255}, out.NRGBAAt(0, 0))
	// The scene itself is not modified.
	assert.Equal(t, color.NRGBA{R: 200, A: 255}, scene.NRGBAAt(1, 1))

	_, err = Over(ctx, scene, createTestImage(3, 3, color.NRGBA{}), cov)
	assert.Error(t, err)
}

func TestMultiply(t *testing.T) {
	ctx := context.Background()
	scene := createTestImage(2, 2, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	backdrop := createTestImage(2, 2, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	backdrop.SetNRGBA(1, 1, color.NRGBA{R: 128, A: 255})

	out, err := Multiply(ctx, scene, backdrop)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 100, A: 255}, out.NRGBAAt(1, 1))
}

func TestBlendMultiplyTransparency(t *testing.T) {
	r, g, b, a := blendMultiply(10, 20, 30, 0, 40, 50, 60, 255)
	assert.Equal(t, [4]uint8{40, 50, 60, 255}, [4]uint8{r, g, b, a})

	r, g, b, a = blendMultiply(10, 20, 30, 255, 40, 50, 60, 0)
	assert.Equal(t, [4]uint8{10, 20, 30, 255}, [4]uint8{r, g, b, a})

	_, _, _, a = blendMultiply(255, 255, 255, 128, 255, 255, 255, 128)
	assert.InDelta(t, 192, int(a), 1)
}

func TestCropAndResize(t *testing.T) {
	ctx := context.Background()
	img := checkerboard(100, 80, 10)

	cropped, err := Crop(ctx, img, geometry.Rect{TopLeft: geometry.Pt(10, 10), Width: 200, Height: 30})
	require.NoError(t, err)
	assert.Equal(t, geometry.Dimensions{Width: 90, Height: 30}, geometry.DimensionsOf(cropped))

	resized, err := Resize(ctx, img, geometry.Dimensions{Width: 50})
	require.NoError(t, err)
	assert.Equal(t, geometry.Dimensions{Width: 50, Height: 40}, geometry.DimensionsOf(resized))
}

func TestToGray(t *testing.T) {
	img := createTestImage(2, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 255, B: 255})
	g := ToGray(img)
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), g.GrayAt(1, 0).Y)
}
