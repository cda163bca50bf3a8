// Package guide locates the placement quadrilateral and the optional crop
// rectangle painted onto a scene's guide layer.
//
// A guide layer is a raster the size of the scene. Transparent and pure white
// pixels are background. Pure red pixels mark the placement region and pure
// green pixels mark the crop region. For each image corner the marker pixel
// closest to it becomes the corresponding corner of the region.
package guide

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/Placement/pkg/geometry"
	"github.com/dixieflatline76/Placement/util/log"
)

// DefaultMaxLoggedPixels caps how many marker coordinates are written to the
// debug log for one detection.
const DefaultMaxLoggedPixels = 1000

// ErrMarkerNotFound is matched by every *MarkerNotFoundError.
var ErrMarkerNotFound = errors.New("marker not found")

// MarkerNotFoundError is returned when a guide layer carries no placement marker.
type MarkerNotFoundError struct {
	Size geometry.Dimensions
}

func (e *MarkerNotFoundError) Error() string {
	return fmt.Sprintf("guide: no placement marker pixels in %s guide layer", e.Size)
}

// Is lets errors.Is(err, ErrMarkerNotFound) succeed.
func (e *MarkerNotFoundError) Is(target error) bool {
	return target == ErrMarkerNotFound
}

// Guide is the result of a single scan over a guide layer.
type Guide struct {
	Placement geometry.Quad
	// Crop is nil when the layer has fewer than two crop marker pixels.
	Crop *geometry.Rect

	PlacementPixels int
	CropPixels      int
}

// Detector scans guide layers. The zero value is ready to use.
type Detector struct {
	// MaxLoggedPixels limits the marker coordinates dumped at debug level.
	// Zero means DefaultMaxLoggedPixels; negative disables the dump.
	MaxLoggedPixels int
}

type markerKind int

const (
	background markerKind = iota
	placementMarker
	cropMarker
	otherPixel
)

func classify(r, g, b, a uint8) markerKind {
	switch {
	case a == 0:
		return background
	case r == 255 && g == 255 && b == 255:
		return background
	case r == 255 && g == 0 && b == 0:
		return placementMarker
	case r == 0 && g == 255 && b == 0:
		return cropMarker
	default:
		return otherPixel
	}
}

// nearest tracks the marker pixel closest to a fixed target. Only a strictly
// smaller distance replaces the current pick, so ties keep the earliest pixel
// in row-major order.
type nearest struct {
	target geometry.Point
	best   geometry.Point
	dist   int
	found  bool
}

func (n *nearest) offer(p geometry.Point) {
	d := p.DistanceSq(n.target)
	if !n.found || d < n.dist {
		n.best, n.dist, n.found = p, d, true
	}
}

// Detect scans img once and returns the placement quad and crop rectangle.
// When no placement marker exists the error is a *MarkerNotFoundError and the
// returned Guide still carries any crop that was found.
func (d Detector) Detect(img image.Image) (Guide, error) {
	src, ok := img.(*image.NRGBA)
	if !ok {
		src = imaging.Clone(img)
	}
	b := src.Bounds()
	size := geometry.Dimensions{Width: b.Dx(), Height: b.Dy()}
	if size.Empty() {
		return Guide{}, &MarkerNotFoundError{Size: size}
	}

	w, h := size.Width, size.Height
	place := [4]nearest{
		{target: geometry.Pt(0, 0)},
		{target: geometry.Pt(w-1, 0)},
		{target: geometry.Pt(w-1, h-1)},
		{target: geometry.Pt(0, h-1)},
	}
	crop := [2]nearest{
		{target: geometry.Pt(0, 0)},
		{target: geometry.Pt(w-1, h-1)},
	}

	limit := d.MaxLoggedPixels
	if limit == 0 {
		limit = DefaultMaxLoggedPixels
	}
	var placed, cropped []geometry.Point
	var nPlace, nCrop int

	for y := 0; y < h; y++ {
		off := src.PixOffset(b.Min.X, b.Min.Y+y)
		row := src.Pix[off : off+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			switch classify(px[0], px[1], px[2], px[3]) {
			case placementMarker:
				p := geometry.Pt(x, y)
				for i := range place {
					place[i].offer(p)
				}
				nPlace++
				if nPlace <= limit {
					placed = append(placed, p)
				}
			case cropMarker:
				p := geometry.Pt(x, y)
				crop[0].offer(p)
				crop[1].offer(p)
				nCrop++
				if nCrop <= limit {
					cropped = append(cropped, p)
				}
			}
		}
	}

	log.Debugf("guide: %s layer has %d placement and %d crop marker pixels", size, nPlace, nCrop)
	if limit > 0 && nPlace <= limit && nCrop <= limit {
		log.Debugf("guide: placement pixels %v", placed)
		log.Debugf("guide: crop pixels %v", cropped)
	}

	g := Guide{PlacementPixels: nPlace, CropPixels: nCrop}
	if nCrop >= 2 {
		g.Crop = spanning(crop[0].best, crop[1].best)
	}
	if nPlace == 0 {
		return g, &MarkerNotFoundError{Size: size}
	}
	g.Placement = geometry.Quad{
		TopLeft:     place[0].best,
		TopRight:    place[1].best,
		BottomRight: place[2].best,
		BottomLeft:  place[3].best,
	}
	return g, nil
}

// spanning returns the rectangle with a and b as opposite corners. The picks
// nearest (0,0) and (W-1,H-1) are not ordered on both axes when the crop
// markers do not form a top-left to bottom-right diagonal.
func spanning(a, b geometry.Point) *geometry.Rect {
	x0, x1 := min(a.X, b.X), max(a.X, b.X)
	y0, y1 := min(a.Y, b.Y), max(a.Y, b.Y)
	return &geometry.Rect{TopLeft: geometry.Pt(x0, y0), Width: x1 - x0, Height: y1 - y0}
}

// DetectPlacement returns only the placement quad of img.
func (d Detector) DetectPlacement(img image.Image) (geometry.Quad, error) {
	g, err := d.Detect(img)
	if err != nil {
		return geometry.Quad{}, err
	}
	return g.Placement, nil
}

// DetectCrop returns the crop rectangle of img, or nil when none is marked.
// A layer without placement markers is not an error here.
func (d Detector) DetectCrop(img image.Image) (*geometry.Rect, error) {
	g, err := d.Detect(img)
	if err != nil && !errors.Is(err, ErrMarkerNotFound) {
		return nil, err
	}
	return g.Crop, nil
}

// Detect runs a zero-value Detector.
func Detect(img image.Image) (Guide, error) {
	return Detector{}.Detect(img)
}

// DetectPlacement runs a zero-value Detector.
func DetectPlacement(img image.Image) (geometry.Quad, error) {
	return Detector{}.DetectPlacement(img)
}

// DetectCrop runs a zero-value Detector.
func DetectCrop(img image.Image) (*geometry.Rect, error) {
	return Detector{}.DetectCrop(img)
}
