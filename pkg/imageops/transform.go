package imageops

import (
	"context"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/Placement/pkg/geometry"
)

// ResampleFilter is used by Resize.
var ResampleFilter = imaging.Lanczos

// ToNRGBA returns img as an *image.NRGBA anchored at the origin, copying only
// when needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

// ToGray converts img to luminance. Transparent pixels count as black.
func ToGray(img image.Image) *image.Gray {
	src := ToNRGBA(img)
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.NRGBAAt(x, y)
			l := color.GrayModel.Convert(color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}).(color.Gray).Y
			dst.Pix[dst.PixOffset(x, y)] = uint8(uint16(l) * uint16(c.A) / 255)
		}
	}
	return dst
}

// Resize scales img to d. A zero width or height keeps the aspect ratio.
func Resize(ctx context.Context, img image.Image, d geometry.Dimensions) (*image.NRGBA, error) {
	return withContext(ctx, func() *image.NRGBA {
		return imaging.Resize(img, d.Width, d.Height, ResampleFilter)
	})
}

// ResizeGray scales a grayscale mask to d.
func ResizeGray(ctx context.Context, mask *image.Gray, d geometry.Dimensions) (*image.Gray, error) {
	resized, err := withContext(ctx, func() *image.NRGBA {
		return imaging.Resize(mask, d.Width, d.Height, ResampleFilter)
	})
	if err != nil {
		return nil, err
	}
	return ToGray(resized), nil
}

// Crop cuts r out of img. r is clamped to the image first.
func Crop(ctx context.Context, img image.Image, r geometry.Rect) (*image.NRGBA, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r = r.Clamp(geometry.DimensionsOf(img))
	origin := img.Bounds().Min
	return imaging.Crop(img, r.Image().Add(origin)), nil
}
