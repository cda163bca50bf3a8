// Package geometry holds the pixel geometry shared by guide detection, scene
// variants and the compositing pipeline: points, placement quads, crop
// rectangles, scale ratios and perspective coefficients.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Point is an integer pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y int) Point {
	return Point{X: x, Y: y}
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// DistanceSq returns the squared Euclidean distance between p and q.
func (p Point) DistanceSq(q Point) int {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// Dimensions is the size of a raster in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DimensionsOf returns the size of img.
func DimensionsOf(img image.Image) Dimensions {
	b := img.Bounds()
	return Dimensions{Width: b.Dx(), Height: b.Dy()}
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Area returns Width*Height.
func (d Dimensions) Area() int {
	return d.Width * d.Height
}

// Empty reports whether either side is non-positive.
func (d Dimensions) Empty() bool {
	return d.Width <= 0 || d.Height <= 0
}

// Quad is a placement quadrilateral. Corners are ordered clockwise starting
// at the top-left.
type Quad struct {
	TopLeft     Point `json:"topLeft"`
	TopRight    Point `json:"topRight"`
	BottomRight Point `json:"bottomRight"`
	BottomLeft  Point `json:"bottomLeft"`
}

// Corners returns the corners in clockwise order starting at the top-left.
func (q Quad) Corners() [4]Point {
	return [4]Point{q.TopLeft, q.TopRight, q.BottomRight, q.BottomLeft}
}

// Bounds returns the smallest rectangle containing every corner. Max is exclusive.
func (q Quad) Bounds() image.Rectangle {
	c := q.Corners()
	r := image.Rect(c[0].X, c[0].Y, c[0].X+1, c[0].Y+1)
	for _, p := range c[1:] {
		r = r.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
	}
	return r
}

// Area returns the absolute shoelace area of the quad.
func (q Quad) Area() float64 {
	c := q.Corners()
	var sum int
	for i := range c {
		j := (i + 1) % len(c)
		sum += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return math.Abs(float64(sum)) / 2
}

// Validate returns a *GeometryError when two corners coincide or the quad is
// collapsed onto a line.
func (q Quad) Validate() error {
	c := q.Corners()
	names := [4]string{"topLeft", "topRight", "bottomRight", "bottomLeft"}
	for i := 0; i < len(c); i++ {
		for j := i + 1; j < len(c); j++ {
			if c[i] == c[j] {
				return &GeometryError{Reason: fmt.Sprintf("corners %s and %s coincide at %s", names[i], names[j], c[i])}
			}
		}
	}
	if q.Area() == 0 {
		return &GeometryError{Reason: "placement quadrilateral has zero area"}
	}
	return nil
}

// Rect is a crop rectangle anchored at its top-left corner.
type Rect struct {
	TopLeft Point `json:"topLeft"`
	Width   int   `json:"width"`
	Height  int   `json:"height"`
}

// Image returns the rectangle as an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.TopLeft.X, r.TopLeft.Y, r.TopLeft.X+r.Width, r.TopLeft.Y+r.Height)
}

// Clamp shrinks r so it lies within a canvas of the given dimensions.
func (r Rect) Clamp(bounds Dimensions) Rect {
	x := clamp(r.TopLeft.X, 0, bounds.Width)
	y := clamp(r.TopLeft.Y, 0, bounds.Height)
	w := clamp(r.Width, 0, bounds.Width-x)
	h := clamp(r.Height, 0, bounds.Height-y)
	return Rect{TopLeft: Pt(x, y), Width: w, Height: h}
}

// Within reports whether r lies entirely inside a canvas of the given dimensions.
func (r Rect) Within(bounds Dimensions) bool {
	return r.TopLeft.X >= 0 && r.TopLeft.Y >= 0 && r.Width >= 0 && r.Height >= 0 &&
		r.TopLeft.X+r.Width <= bounds.Width && r.TopLeft.Y+r.Height <= bounds.Height
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GeometryError reports degenerate geometry, e.g. coincident placement corners
// or a perspective system with no solution.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string {
	return "geometry: " + e.Reason
}
