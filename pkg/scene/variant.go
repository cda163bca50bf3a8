package scene

import (
	"context"
	"fmt"

	"github.com/dixieflatline76/Placement/pkg/geometry"
	"github.com/dixieflatline76/Placement/pkg/imageops"
	"github.com/dixieflatline76/Placement/util/log"
)

// DeriveVariant resizes orig to target and rescales its geometry. A zero
// target width or height follows the aspect ratio of orig. Ratios are taken
// from the dimensions the resize actually produced, which can differ from
// target by a pixel.
func DeriveVariant(ctx context.Context, orig *Description, target geometry.Dimensions) (*Description, error) {
	if target.Width <= 0 && target.Height <= 0 {
		return nil, fmt.Errorf("derive variant of %s: no target dimensions", orig.ID)
	}

	img, err := imageops.Resize(ctx, orig.Image, target)
	if err != nil {
		return nil, fmt.Errorf("resizing scene %s to %s: %w", orig.ID, target, err)
	}
	achieved := geometry.DimensionsOf(img)
	ratio := geometry.AxisRatio(orig.Metadata, achieved)

	v := &Description{
		ID:               orig.ID,
		Image:            img,
		Metadata:         achieved,
		OriginalMetadata: orig.OriginalMetadata,
		Placement:        geometry.ScaleQuad(orig.Placement, ratio, achieved),
		Attributes:       orig.Attributes,
	}
	if v.OriginalMetadata.Empty() {
		v.OriginalMetadata = orig.Metadata
	}
	if err := v.Placement.Validate(); err != nil {
		return nil, fmt.Errorf("scene %s variant %s: %w", orig.ID, achieved, err)
	}

	if orig.Crop != nil {
		crop := geometry.ScaleRect(*orig.Crop, ratio).Clamp(achieved)
		v.Crop = &crop
	}
	if orig.BlurMask != nil {
		mask, err := imageops.ResizeGray(ctx, orig.BlurMask, achieved)
		if err != nil {
			return nil, fmt.Errorf("resizing blur mask of %s: %w", orig.ID, err)
		}
		v.BlurMask = mask
	}

	log.Debugf("scene: derived %s variant %s (ratio %.4f x %.4f), placement %v", orig.ID, achieved, ratio.X, ratio.Y, v.Placement)
	return v, nil
}
