package imageops

import (
	"context"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/dixieflatline76/Placement/pkg/geometry"
)

// Over draws poster over scene through coverage. Both rasters are anchored at
// the scene's top-left.
func Over(ctx context.Context, scene image.Image, poster image.Image, coverage *image.Alpha) (*image.NRGBA, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := sameSize(scene, poster); err != nil {
		return nil, err
	}
	out := cloneNRGBA(scene)
	xdraw.DrawMask(out, out.Bounds(), poster, poster.Bounds().Min, coverage, coverage.Bounds().Min, xdraw.Over)
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// Multiply draws scene over backdrop with the multiply blend mode. Where the
// backdrop is white the scene is unchanged.
func Multiply(ctx context.Context, scene image.Image, backdrop image.Image) (*image.NRGBA, error) {
	if err := sameSize(scene, backdrop); err != nil {
		return nil, err
	}
	src := ToNRGBA(scene)
	dst := ToNRGBA(backdrop)
	out := image.NewNRGBA(src.Bounds())
	size := geometry.DimensionsOf(src)

	for y := 0; y < size.Height; y++ {
		if y%rowsPerCheck == 0 {
			if err := checkContext(ctx); err != nil {
				return nil, err
			}
		}
		so, do, oo := src.PixOffset(0, y), dst.PixOffset(0, y), out.PixOffset(0, y)
		for x := 0; x < size.Width; x++ {
			s := src.Pix[so+x*4 : so+x*4+4]
			d := dst.Pix[do+x*4 : do+x*4+4]
			o := out.Pix[oo+x*4 : oo+x*4+4]
			o[0], o[1], o[2], o[3] = blendMultiply(s[0], s[1], s[2], s[3], d[0], d[1], d[2], d[3])
		}
	}
	return out, nil
}

// blendMultiply composites a straight-alpha source over a straight-alpha
// backdrop using B(cb, cs) = cb * cs.
func blendMultiply(sr, sg, sb, sa, dr, dg, db, da uint8) (uint8, uint8, uint8, uint8) {
	if sa == 0 {
		return dr, dg, db, da
	}
	if da == 0 {
		return sr, sg, sb, sa
	}
	if sa == 255 && da == 255 {
		return mulDiv255(sr, dr), mulDiv255(sg, dg), mulDiv255(sb, db), 255
	}

	as := float64(sa) / 255
	ab := float64(da) / 255
	ao := as + ab*(1-as)
	channel := func(cs, cb uint8) uint8 {
		fs := float64(cs) / 255
		fb := float64(cb) / 255
		mixed := (1-ab)*fs + ab*fs*fb
		co := as*mixed + (1-as)*ab*fb
		return to8(co / ao * 255)
	}
	return channel(sr, dr), channel(sg, dg), channel(sb, db), to8(ao * 255)
}

// mulDiv255 computes a*b/255 rounded to nearest.
func mulDiv255(a, b uint8) uint8 {
	v := uint32(a)*uint32(b) + 128
	return uint8((v + v>>8) >> 8)
}

func sameSize(a, b image.Image) error {
	da, db := geometry.DimensionsOf(a), geometry.DimensionsOf(b)
	if da != db {
		return fmt.Errorf("composite: layer size %s does not match scene size %s", db, da)
	}
	return nil
}

func cloneNRGBA(img image.Image) *image.NRGBA {
	src := ToNRGBA(img)
	out := image.NewNRGBA(src.Bounds())
	xdraw.Copy(out, image.Point{}, src, src.Bounds(), xdraw.Src, nil)
	return out
}
