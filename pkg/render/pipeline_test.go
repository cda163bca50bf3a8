package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dixieflatline76/Placement/pkg/geometry"
	"github.com/dixieflatline76/Placement/pkg/imageops"
	"github.com/dixieflatline76/Placement/pkg/scene"
	"github.com/dixieflatline76/Placement/pkg/storage"
)

func ptr[T any](v T) *T { return &v }

func createTestImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func stripes(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x/4)%2 == 0 {
				v = 255
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: 0, B: 255 - v, A: 255})
		}
	}
	return img
}

var (
	sceneColor = color.NRGBA{R: 40, G: 120, B: 60, A: 255}
	red        = color.NRGBA{R: 255, A: 255}
	white      = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

func testScene() *scene.Description {
	size := geometry.Dimensions{Width: 640, Height: 480}
	return &scene.Description{
		ID:               "kitchen",
		Image:            createTestImage(size.Width, size.Height, sceneColor),
		Metadata:         size,
		OriginalMetadata: size,
		Placement: geometry.Quad{
			TopLeft:     geometry.Pt(100, 50),
			TopRight:    geometry.Pt(500, 50),
			BottomRight: geometry.Pt(500, 450),
			BottomLeft:  geometry.Pt(100, 450),
		},
	}
}

// fakeScenes always returns desc.
type fakeScenes struct {
	desc  *scene.Description
	err   error
	calls atomic.Int32
	last  scene.MinDimensions
}

func (f *fakeScenes) GetSceneVariant(_ context.Context, id string, min scene.MinDimensions) (*scene.Description, error) {
	f.calls.Add(1)
	f.last = min
	if f.err != nil {
		return nil, f.err
	}
	return f.desc, nil
}

// blockingScenes waits for the context to end.
type blockingScenes struct{}

func (blockingScenes) GetSceneVariant(ctx context.Context, _ string, _ scene.MinDimensions) (*scene.Description, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func decode(t *testing.T, res *Result) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	return imageops.ToNRGBA(img)
}

func boundsOf(img *image.NRGBA, match func(color.NRGBA) bool) image.Rectangle {
	var r image.Rectangle
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if match(img.NRGBAAt(x, y)) {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}

func isRed(c color.NRGBA) bool { return c.R > 200 && c.G < 50 && c.B < 50 }

func render(t *testing.T, desc *scene.Description, poster image.Image, opts Options) *Result {
	t.Helper()
	res, err := NewPipeline(&fakeScenes{desc: desc}).Render(context.Background(), desc.ID, poster, opts)
	require.NoError(t, err)
	return res
}

func TestRenderPlacesPoster(t *testing.T) {
	for _, hq := range []bool{false, true} {
		res := render(t, testScene(), createTestImage(400, 300, red), Options{HighQuality: hq})
		assert.Equal(t, "image/png", res.MimeType)
		assert.Equal(t, geometry.Dimensions{Width: 640, Height: 480}, res.Metadata)

		out := decode(t, res)
		box := boundsOf(out, isRed)
		assert.InDelta(t, 100, box.Min.X, 1)
		assert.InDelta(t, 50, box.Min.Y, 1)
		assert.InDelta(t, 500, box.Max.X-1, 1)
		assert.InDelta(t, 450, box.Max.Y-1, 1)
		assert.Equal(t, sceneColor, out.NRGBAAt(10, 10))
	}
}

func TestRenderSubThresholdBlurIsSkipped(t *testing.T) {
	poster := stripes(400, 300)
	none := render(t, testScene(), poster, Options{PosterBlur: ptr(0.0)})
	tiny := render(t, testScene(), poster, Options{PosterBlur: ptr(0.2)})
	unset := render(t, testScene(), poster, Options{})
	assert.Equal(t, none.Data, tiny.Data)
	assert.Equal(t, none.Data, unset.Data)

	blurred := render(t, testScene(), poster, Options{PosterBlur: ptr(2.0)})
	assert.NotEqual(t, none.Data, blurred.Data)
}

func TestRenderPosterBlurEdgeHasNoHalo(t *testing.T) {
	res := render(t, testScene(), createTestImage(400, 300, red), Options{PosterBlur: ptr(3.0)})
	out := decode(t, res)
	for x := 88; x <= 112; x++ {
		c := out.NRGBAAt(x, 250)
		assert.LessOrEqual(t, c.G, sceneColor.G, "x=%d", x)
		assert.LessOrEqual(t, c.B, sceneColor.B, "x=%d", x)
	}
	edge := out.NRGBAAt(99, 250)
	assert.Greater(t, edge.R, sceneColor.R, "blur spreads the poster past its edge")
}

func TestRenderBlurScalesWithResizeRatio(t *testing.T) {
	desc := testScene()
	desc.OriginalMetadata = geometry.Dimensions{Width: 1280, Height: 960}
	desc.Attributes.PosterBlur = ptr(1.0) // 1.0 * 0.25 is below the threshold

	poster := stripes(400, 300)
	withDefault := render(t, desc, poster, Options{})
	sharp := render(t, testScene(), poster, Options{})
	assert.Equal(t, sharp.Data, withDefault.Data)

	// The request value wins over the scene default.
	strong := render(t, desc, poster, Options{PosterBlur: ptr(8.0)})
	assert.NotEqual(t, sharp.Data, strong.Data)
}

func TestRenderOnlyPosterLayer(t *testing.T) {
	desc := testScene()
	mask := image.NewGray(desc.Image.Bounds())
	for i := range mask.Pix {
		mask.Pix[i] = 255
	}
	desc.BlurMask = mask

	res := render(t, desc, createTestImage(400, 300, red), Options{OnlyPosterLayer: true})
	out := decode(t, res)
	assert.Equal(t, white, out.NRGBAAt(10, 10), "no scene pixels outside the poster")
	assert.Equal(t, red, out.NRGBAAt(300, 250), "no variable blur applied")
	assert.Equal(t, geometry.Dimensions{Width: 640, Height: 480}, res.Metadata)
}

func TestRenderVariableBlurFallback(t *testing.T) {
	desc := testScene()
	mask := image.NewGray(desc.Image.Bounds())
	for i := range mask.Pix {
		mask.Pix[i] = 255
	}
	poster := stripes(400, 300)
	sharp := render(t, testScene(), poster, Options{})

	desc.BlurMask = mask
	blurred := render(t, desc, poster, Options{})
	assert.NotEqual(t, sharp.Data, blurred.Data, "fallback sigma applies")

	off := render(t, desc, poster, Options{VariableBlur: ptr(0.0)})
	assert.Equal(t, sharp.Data, off.Data, "explicit zero disables it")
}

func TestRenderMultiply(t *testing.T) {
	desc := testScene()
	desc.Attributes.Blend = scene.BlendMultiply

	out := decode(t, render(t, desc, createTestImage(400, 300, white), Options{}))
	assert.Equal(t, sceneColor, out.NRGBAAt(300, 250), "white poster leaves the surface unchanged")
	assert.Equal(t, sceneColor, out.NRGBAAt(10, 10))

	out = decode(t, render(t, desc, createTestImage(400, 300, color.NRGBA{A: 255}), Options{}))
	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(300, 250))
}

func TestRenderCropAndResize(t *testing.T) {
	desc := testScene()
	desc.Crop = &geometry.Rect{TopLeft: geometry.Pt(80, 40), Width: 440, Height: 420}

	res := render(t, desc, createTestImage(400, 300, red), Options{})
	assert.Equal(t, geometry.Dimensions{Width: 440, Height: 420}, res.Metadata)
	box := boundsOf(decode(t, res), isRed)
	assert.InDelta(t, 20, box.Min.X, 1)
	assert.InDelta(t, 10, box.Min.Y, 1)

	res = render(t, testScene(), createTestImage(400, 300, red), Options{ResizeToWidth: ptr(320)})
	assert.Equal(t, geometry.Dimensions{Width: 320, Height: 240}, res.Metadata)

	res = render(t, testScene(), createTestImage(400, 300, red), Options{ResizeToWidth: ptr(100), ResizeToHeight: ptr(100)})
	assert.Equal(t, geometry.Dimensions{Width: 100, Height: 100}, res.Metadata)
}

func TestRenderMinDimensionsDefaultToResize(t *testing.T) {
	scenes := &fakeScenes{desc: testScene()}
	_, err := NewPipeline(scenes).Render(context.Background(), "kitchen", createTestImage(40, 30, red),
		Options{ResizeToWidth: ptr(320), MinHeight: ptr(200)})
	require.NoError(t, err)
	require.NotNil(t, scenes.last.Width)
	assert.Equal(t, 320, *scenes.last.Width)
	assert.Equal(t, 200, *scenes.last.Height)
}

func TestRenderFormats(t *testing.T) {
	for _, tt := range []struct {
		format string
		mime   string
	}{
		{"jpg", "image/jpeg"},
		{"jpeg", "image/jpeg"},
		{"webp", "image/webp"},
		{"png", "image/png"},
	} {
		t.Run(tt.format, func(t *testing.T) {
			res := render(t, testScene(), createTestImage(40, 30, red), Options{Format: tt.format, ResizeToWidth: ptr(64)})
			assert.Equal(t, tt.mime, res.MimeType)
			dims, _, err := imageops.Metadata(res.Data)
			require.NoError(t, err)
			assert.Equal(t, geometry.Dimensions{Width: 64, Height: 48}, dims)
		})
	}
}

func TestRenderUnsupportedFormat(t *testing.T) {
	scenes := &fakeScenes{desc: testScene()}
	res, err := NewPipeline(scenes).Render(context.Background(), "kitchen", createTestImage(40, 30, red), Options{Format: "tiff"})
	assert.Nil(t, res)
	var uf *UnsupportedFormatError
	require.ErrorAs(t, err, &uf)
	assert.Equal(t, "tiff", uf.Format)
	assert.Equal(t, int32(0), scenes.calls.Load(), "format is checked before any work")
}

func TestRenderInvalidOptions(t *testing.T) {
	p := NewPipeline(&fakeScenes{desc: testScene()})
	poster := createTestImage(40, 30, red)
	for _, opts := range []Options{
		{PosterBlur: ptr(-1.0)},
		{VariableBlur: ptr(-0.5)},
		{ResizeToWidth: ptr(0)},
	} {
		_, err := p.Render(context.Background(), "kitchen", poster, opts)
		var oe *OptionError
		assert.ErrorAs(t, err, &oe)
	}
}

func TestOptionsValidateReportsFirstField(t *testing.T) {
	opts := Options{
		MinHeight:      ptr(1),
		ResizeToWidth:  ptr(1),
		ResizeToHeight: ptr(1),
		PosterBlur:     ptr(-1.0),
		VariableBlur:   ptr(-1.0),
	}
	for i := 0; i < 20; i++ {
		var oe *OptionError
		require.ErrorAs(t, opts.validate(), &oe)
		assert.Equal(t, "minHeight", oe.Field)
	}

	opts = Options{PosterBlur: ptr(-1.0), VariableBlur: ptr(-1.0)}
	var oe *OptionError
	require.ErrorAs(t, opts.validate(), &oe)
	assert.Equal(t, "posterBlur", oe.Field)
}

func TestRenderSceneErrors(t *testing.T) {
	notFound := &scene.SceneNotFoundError{ID: "garage", Asset: "garage.png", Err: &storage.AssetNotFoundError{Key: "garage.png"}}
	_, err := NewPipeline(&fakeScenes{err: notFound}).Render(context.Background(), "garage", createTestImage(4, 4, red), Options{})
	assert.ErrorIs(t, err, scene.ErrSceneNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRenderTimeout(t *testing.T) {
	p := NewPipeline(blockingScenes{}, WithTimeout(20*time.Millisecond))
	res, err := p.Render(context.Background(), "kitchen", createTestImage(4, 4, red), Options{})
	assert.Nil(t, res)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StageResolve, te.Stage)
	assert.Equal(t, "kitchen", te.SceneID)
	assert.True(t, te.Temporary())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRenderCanceledIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPipeline(blockingScenes{}).Render(ctx, "kitchen", createTestImage(4, 4, red), Options{})
	assert.ErrorIs(t, err, context.Canceled)
	var te *TimeoutError
	assert.False(t, errors.As(err, &te))
}

func TestRenderDegeneratePlacement(t *testing.T) {
	desc := testScene()
	p := geometry.Pt(10, 10)
	desc.Placement = geometry.Quad{TopLeft: p, TopRight: p, BottomRight: p, BottomLeft: p}
	_, err := NewPipeline(&fakeScenes{desc: desc}).Render(context.Background(), "kitchen", createTestImage(40, 30, red), Options{})
	var gerr *geometry.GeometryError
	assert.ErrorAs(t, err, &gerr)
}

func TestRenderBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(400, 300, red)))

	p := NewPipeline(&fakeScenes{desc: testScene()})
	res, err := p.RenderBytes(context.Background(), "kitchen", buf.Bytes(), Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Data)

	_, err = p.RenderBytes(context.Background(), "kitchen", []byte("nope"), Options{})
	assert.Error(t, err)

	_, err = p.RenderBytes(context.Background(), "kitchen", buf.Bytes(), Options{Format: "bmp"})
	var uf *UnsupportedFormatError
	assert.ErrorAs(t, err, &uf)
}

func TestMetadata(t *testing.T) {
	dims, err := NewPipeline(&fakeScenes{desc: testScene()}).Metadata(context.Background(), "kitchen", Options{})
	require.NoError(t, err)
	assert.Equal(t, geometry.Dimensions{Width: 640, Height: 480}, dims)
}

func TestResolveBlur(t *testing.T) {
	tests := []struct {
		name                   string
		request, scene, fallbk *float64
		want                   BlurChoice
	}{
		{"request wins", ptr(1.0), ptr(2.0), ptr(3.0), BlurChoice{Sigma: 1, Source: BlurFromRequest}},
		{"explicit zero request", ptr(0.0), ptr(2.0), nil, BlurChoice{Sigma: 0, Source: BlurFromRequest}},
		{"scene", nil, ptr(2.0), ptr(3.0), BlurChoice{Sigma: 2, Source: BlurFromScene}},
		{"fallback", nil, nil, ptr(3.0), BlurChoice{Sigma: 3, Source: BlurFromFallback}},
		{"none", nil, nil, nil, BlurChoice{Source: BlurNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveBlur(tt.request, tt.scene, tt.fallbk))
		})
	}
	assert.Equal(t, "scene attributes", BlurFromScene.String())
}
