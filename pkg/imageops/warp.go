package imageops

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/dixieflatline76/Placement/pkg/geometry"
)

// Warped is a poster projected into scene space.
type Warped struct {
	// Image is canvas sized. Pixels outside the poster footprint are opaque white.
	Image *image.NRGBA
	// Coverage is the poster's opacity at every canvas pixel.
	Coverage *image.Alpha
}

// Flatten returns the warped poster composited over white.
func (w *Warped) Flatten() *image.NRGBA {
	out := image.NewNRGBA(w.Image.Bounds())
	copy(out.Pix, w.Image.Pix)
	for i, a := range w.Coverage.Pix {
		if a == 255 {
			continue
		}
		p := out.Pix[i*4 : i*4+3]
		for c := range p {
			p[c] = uint8((uint32(p[c])*uint32(a) + 255*uint32(255-a) + 127) / 255)
		}
	}
	return out
}

// rowsPerCheck is how many output rows are produced between context checks.
const rowsPerCheck = 32

// Warp maps poster onto dst within a canvas of the given size using inverse
// mapping: every canvas pixel is projected back into poster space and sampled
// there. A canvas pixel is covered when its source coordinate falls inside
// [-0.5, W-0.5) x [-0.5, H-0.5). Sampling is nearest neighbour unless
// highQuality is set, which selects bilinear interpolation.
func Warp(ctx context.Context, poster image.Image, dst geometry.Quad, canvas geometry.Dimensions, highQuality bool) (*Warped, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if canvas.Empty() {
		return nil, &geometry.GeometryError{Reason: fmt.Sprintf("empty warp viewport %s", canvas)}
	}
	src := ToNRGBA(poster)
	size := geometry.DimensionsOf(src)
	if size.Width < 2 || size.Height < 2 {
		return nil, &geometry.GeometryError{Reason: fmt.Sprintf("poster %s is too small to warp", size)}
	}

	inv, err := geometry.PerspectiveCoefficients(geometry.QuadCorners(dst), geometry.RectCorners(size))
	if err != nil {
		return nil, err
	}

	out := &Warped{
		Image:    image.NewNRGBA(image.Rect(0, 0, canvas.Width, canvas.Height)),
		Coverage: image.NewAlpha(image.Rect(0, 0, canvas.Width, canvas.Height)),
	}
	for i := range out.Image.Pix {
		out.Image.Pix[i] = 0xff
	}

	area := dst.Bounds().Inset(-1).Intersect(out.Image.Bounds())
	maxU := float64(size.Width) - 0.5
	maxV := float64(size.Height) - 0.5

	sample := sampleNearest
	if highQuality {
		sample = sampleBilinear
	}

	for y := area.Min.Y; y < area.Max.Y; y++ {
		if (y-area.Min.Y)%rowsPerCheck == 0 {
			if err := checkContext(ctx); err != nil {
				return nil, err
			}
		}
		for x := area.Min.X; x < area.Max.X; x++ {
			u, v, ok := inv.Apply(float64(x), float64(y))
			if !ok || u < -0.5 || u >= maxU || v < -0.5 || v >= maxV {
				continue
			}
			r, g, b, a := sample(src, u, v)
			if a == 0 {
				continue
			}
			i := out.Image.PixOffset(x, y)
			out.Image.Pix[i+0] = r
			out.Image.Pix[i+1] = g
			out.Image.Pix[i+2] = b
			out.Coverage.Pix[out.Coverage.PixOffset(x, y)] = a
		}
	}
	return out, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sampleNearest returns the straight color and alpha of the pixel whose centre
// is closest to (u, v).
func sampleNearest(img *image.NRGBA, u, v float64) (r, g, b, a uint8) {
	b0 := img.Bounds()
	x := clampInt(int(math.Floor(u+0.5)), 0, b0.Dx()-1)
	y := clampInt(int(math.Floor(v+0.5)), 0, b0.Dy()-1)
	p := img.Pix[img.PixOffset(x, y) : img.PixOffset(x, y)+4]
	return p[0], p[1], p[2], p[3]
}

// sampleBilinear interpolates the four pixels around (u, v) in premultiplied
// space and returns straight color. Edge pixels are extended.
func sampleBilinear(img *image.NRGBA, u, v float64) (r, g, b, a uint8) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	x0 := int(math.Floor(u))
	y0 := int(math.Floor(v))
	tx := u - float64(x0)
	ty := v - float64(y0)
	x1 := clampInt(x0+1, 0, w-1)
	y1 := clampInt(y0+1, 0, h-1)
	x0 = clampInt(x0, 0, w-1)
	y0 = clampInt(y0, 0, h-1)

	var acc [4]float64
	add := func(x, y int, weight float64) {
		if weight == 0 {
			return
		}
		p := img.Pix[img.PixOffset(x, y) : img.PixOffset(x, y)+4]
		alpha := float64(p[3])
		acc[0] += float64(p[0]) * alpha * weight
		acc[1] += float64(p[1]) * alpha * weight
		acc[2] += float64(p[2]) * alpha * weight
		acc[3] += alpha * weight
	}
	add(x0, y0, (1-tx)*(1-ty))
	add(x1, y0, tx*(1-ty))
	add(x0, y1, (1-tx)*ty)
	add(x1, y1, tx*ty)

	if acc[3] <= 0 {
		return 0, 0, 0, 0
	}
	return to8(acc[0] / acc[3]), to8(acc[1] / acc[3]), to8(acc[2] / acc[3]), to8(acc[3])
}

func to8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
