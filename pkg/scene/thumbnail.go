package scene

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"

	"github.com/dixieflatline76/Placement/pkg/geometry"
	"github.com/dixieflatline76/Placement/pkg/imageops"
)

// resizer implements the smartcrop.Resizer interface.
type resizer struct {
	resampler imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}

// Thumbnail returns a w x h preview of scene id. The crop window is chosen
// by content so the interesting part of the scene stays in frame.
func (c *Cache) Thumbnail(ctx context.Context, id string, w, h int) (*image.NRGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %dx%d", w, h)
	}
	d, err := c.GetSceneVariant(ctx, id, MinDimensions{Width: &w, Height: &h})
	if err != nil {
		return nil, err
	}
	return SmartThumbnail(ctx, d.Image, geometry.Dimensions{Width: w, Height: h})
}

// SmartThumbnail crops img to the aspect ratio of size around its most
// interesting region and scales the crop to size.
func SmartThumbnail(ctx context.Context, img image.Image, size geometry.Dimensions) (*image.NRGBA, error) {
	r := &resizer{resampler: imaging.Lanczos}
	analyzer := smartcrop.NewAnalyzer(r)

	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)

	go func() {
		topCrop, err := analyzer.FindBestCrop(img, size.Width, size.Height)
		resultChan <- cropResult{crop: topCrop, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return nil, fmt.Errorf("finding best crop: %w", result.err)
		}
		cropped := imaging.Crop(img, result.crop)
		return imageops.Resize(ctx, cropped, size)
	}
}
