package geometry

import "math"

// Ratio holds independent horizontal and vertical scale factors.
type Ratio struct {
	X float64
	Y float64
}

// Identity is the ratio that leaves coordinates unchanged.
var Identity = Ratio{X: 1, Y: 1}

// Rounding selects how a scaled coordinate is snapped back to the pixel grid.
type Rounding int

const (
	RoundNearest Rounding = iota
	RoundDown
	RoundUp
)

// AxisRatio returns the per-axis ratio that maps old onto new.
func AxisRatio(old, new Dimensions) Ratio {
	if old.Empty() {
		return Identity
	}
	return Ratio{
		X: float64(new.Width) / float64(old.Width),
		Y: float64(new.Height) / float64(old.Height),
	}
}

// ResizeRatio returns the area ratio between new and old. Blur sigmas authored
// against the full resolution scene are multiplied by it.
func ResizeRatio(old, new Dimensions) float64 {
	if old.Empty() {
		return 1
	}
	return float64(new.Area()) / float64(old.Area())
}

// TargetDimensions resolves a resize request against orig. When only one side
// is given the other follows the aspect ratio of orig.
func TargetDimensions(orig Dimensions, width, height *int) Dimensions {
	switch {
	case width != nil && height != nil:
		return Dimensions{Width: *width, Height: *height}
	case width != nil:
		h := int(math.Round(float64(*width) * float64(orig.Height) / float64(orig.Width)))
		return Dimensions{Width: *width, Height: max(h, 1)}
	case height != nil:
		w := int(math.Round(float64(*height) * float64(orig.Width) / float64(orig.Height)))
		return Dimensions{Width: max(w, 1), Height: *height}
	default:
		return orig
	}
}

func round(v float64, mode Rounding) int {
	// Absorbs float noise such as 99.99999999 for ratios that should be exact.
	const eps = 1e-9
	switch mode {
	case RoundDown:
		return int(math.Floor(v + eps))
	case RoundUp:
		return int(math.Ceil(v - eps))
	default:
		return int(math.Round(v))
	}
}

// ScaleCoordinate scales p by r and snaps each axis with mode.
func ScaleCoordinate(p Point, r Ratio, mode Rounding) Point {
	return Point{
		X: round(float64(p.X)*r.X, mode),
		Y: round(float64(p.Y)*r.Y, mode),
	}
}

// ScaleRect scales a crop rectangle. The top-left rounds up and the size rounds
// down so the scaled crop never reaches past the visible scaled canvas.
func ScaleRect(rect Rect, r Ratio) Rect {
	return Rect{
		TopLeft: ScaleCoordinate(rect.TopLeft, r, RoundUp),
		Width:   round(float64(rect.Width)*r.X, RoundDown),
		Height:  round(float64(rect.Height)*r.Y, RoundDown),
	}
}

// ScaleQuad scales a placement quad. Every corner rounds away from the quad
// interior and is clamped to bounds.
func ScaleQuad(q Quad, r Ratio, bounds Dimensions) Quad {
	scale := func(p Point, mx, my Rounding) Point {
		return Point{
			X: clamp(round(float64(p.X)*r.X, mx), 0, bounds.Width-1),
			Y: clamp(round(float64(p.Y)*r.Y, my), 0, bounds.Height-1),
		}
	}
	return Quad{
		TopLeft:     scale(q.TopLeft, RoundDown, RoundDown),
		TopRight:    scale(q.TopRight, RoundUp, RoundDown),
		BottomRight: scale(q.BottomRight, RoundUp, RoundUp),
		BottomLeft:  scale(q.BottomLeft, RoundDown, RoundUp),
	}
}
