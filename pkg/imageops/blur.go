package imageops

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/Placement/pkg/geometry"
)

// MinSigma is the smallest Gaussian sigma that visibly changes an image.
// Callers skip blurring below it.
const MinSigma = 0.3

// Blur applies a uniform Gaussian blur.
func Blur(ctx context.Context, img image.Image, sigma float64) (*image.NRGBA, error) {
	return withContext(ctx, func() *image.NRGBA {
		return imaging.Blur(img, sigma)
	})
}

// BlurWarped blurs a warped poster and its coverage in one pass. The coverage
// travels as the alpha channel and pixels outside the footprint carry no weight.
func BlurWarped(ctx context.Context, w *Warped, sigma float64) (*Warped, error) {
	layer := image.NewNRGBA(w.Image.Bounds())
	copy(layer.Pix, w.Image.Pix)
	for i, a := range w.Coverage.Pix {
		layer.Pix[i*4+3] = a
	}

	blurred, err := Blur(ctx, layer, sigma)
	if err != nil {
		return nil, err
	}
	coverage := image.NewAlpha(w.Coverage.Bounds())
	for i := range coverage.Pix {
		p := blurred.Pix[i*4 : i*4+4]
		coverage.Pix[i] = p[3]
		if p[3] == 0 {
			p[0], p[1], p[2] = 255, 255, 255
		}
		p[3] = 255
	}
	return &Warped{Image: blurred, Coverage: coverage}, nil
}

// VariableBlur blends img with a fully blurred copy of itself. The luminance
// of mask at each pixel is the weight of the blurred copy: black keeps the
// pixel sharp and white takes it fully blurred. mask is resized to match img
// when the sizes differ.
func VariableBlur(ctx context.Context, img image.Image, mask *image.Gray, sigma float64) (*image.NRGBA, error) {
	if mask == nil {
		return nil, fmt.Errorf("variable blur: nil mask")
	}
	sharp := ToNRGBA(img)
	size := geometry.DimensionsOf(sharp)
	if geometry.DimensionsOf(mask) != size {
		resized, err := ResizeGray(ctx, mask, size)
		if err != nil {
			return nil, err
		}
		mask = resized
	}

	blurred, err := Blur(ctx, sharp, sigma)
	if err != nil {
		return nil, err
	}

	out := image.NewNRGBA(sharp.Bounds())
	mb := mask.Bounds()
	for y := 0; y < size.Height; y++ {
		if y%rowsPerCheck == 0 {
			if err := checkContext(ctx); err != nil {
				return nil, err
			}
		}
		so, bo, oo := sharp.PixOffset(0, y), blurred.PixOffset(0, y), out.PixOffset(0, y)
		mo := mask.PixOffset(mb.Min.X, mb.Min.Y+y)
		for x := 0; x < size.Width; x++ {
			w := uint32(mask.Pix[mo+x])
			for c := 0; c < 4; c++ {
				s := uint32(sharp.Pix[so+x*4+c])
				bl := uint32(blurred.Pix[bo+x*4+c])
				out.Pix[oo+x*4+c] = uint8((s*(255-w) + bl*w + 127) / 255)
			}
		}
	}
	return out, nil
}
