package geometry

import (
	"fmt"
	"math"
)

// PointF is a sub-pixel coordinate.
type PointF struct {
	X, Y float64
}

// ToF converts an integer point.
func (p Point) ToF() PointF {
	return PointF{X: float64(p.X), Y: float64(p.Y)}
}

// Homography is a projective mapping
//
//	x' = (a*x + b*y + c) / (g*x + h*y + 1)
//	y' = (d*x + e*y + f) / (g*x + h*y + 1)
//
// stored as [a b c d e f g h].
type Homography [8]float64

// Apply maps (x, y). ok is false when the point maps to infinity.
func (m Homography) Apply(x, y float64) (float64, float64, bool) {
	w := m[6]*x + m[7]*y + 1
	if math.Abs(w) < 1e-12 {
		return 0, 0, false
	}
	return (m[0]*x + m[1]*y + m[2]) / w, (m[3]*x + m[4]*y + m[5]) / w, true
}

// PerspectiveCoefficients solves for the homography that maps each src corner
// onto the dst corner with the same index.
func PerspectiveCoefficients(src, dst [4]PointF) (Homography, error) {
	var a [8][9]float64
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a[2*i] = [9]float64{x, y, 1, 0, 0, 0, -u * x, -u * y, u}
		a[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -v * x, -v * y, v}
	}

	// Gaussian elimination with partial pivoting.
	for col := 0; col < 8; col++ {
		pivot := col
		for row := col + 1; row < 8; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-10 {
			return Homography{}, &GeometryError{Reason: fmt.Sprintf("perspective system is singular (src %v, dst %v)", src, dst)}
		}
		a[col], a[pivot] = a[pivot], a[col]

		for row := 0; row < 8; row++ {
			if row == col {
				continue
			}
			f := a[row][col] / a[col][col]
			if f == 0 {
				continue
			}
			for k := col; k < 9; k++ {
				a[row][k] -= f * a[col][k]
			}
		}
	}

	var m Homography
	for i := 0; i < 8; i++ {
		m[i] = a[i][8] / a[i][i]
	}
	return m, nil
}

// RectCorners returns the corners of a w x h raster in clockwise order
// starting at the top-left, using the centres of the edge pixels.
func RectCorners(d Dimensions) [4]PointF {
	w := float64(d.Width - 1)
	h := float64(d.Height - 1)
	return [4]PointF{{0, 0}, {w, 0}, {w, h}, {0, h}}
}

// QuadCorners converts a placement quad into sub-pixel corners.
func QuadCorners(q Quad) [4]PointF {
	c := q.Corners()
	return [4]PointF{c[0].ToF(), c[1].ToF(), c[2].ToF(), c[3].ToF()}
}
