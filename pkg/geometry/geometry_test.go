package geometry

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square() Quad {
	return Quad{
		TopLeft:     Pt(100, 50),
		TopRight:    Pt(500, 50),
		BottomRight: Pt(500, 450),
		BottomLeft:  Pt(100, 450),
	}
}

func TestQuadValidate(t *testing.T) {
	assert.NoError(t, square().Validate())

	q := square()
	q.TopRight = q.TopLeft
	err := q.Validate()
	var gerr *GeometryError
	require.True(t, errors.As(err, &gerr))
	assert.Contains(t, gerr.Error(), "coincide")

	flat := Quad{TopLeft: Pt(0, 0), TopRight: Pt(10, 0), BottomRight: Pt(20, 0), BottomLeft: Pt(30, 0)}
	assert.Error(t, flat.Validate())
}

func TestQuadBoundsAndArea(t *testing.T) {
	q := square()
	assert.Equal(t, image.Rect(100, 50, 501, 451), q.Bounds())
	assert.InDelta(t, 400*400, q.Area(), 0.001)
}

func TestRectClampAndWithin(t *testing.T) {
	bounds := Dimensions{Width: 100, Height: 80}
	r := Rect{TopLeft: Pt(90, 70), Width: 50, Height: 50}
	assert.False(t, r.Within(bounds))

	c := r.Clamp(bounds)
	assert.Equal(t, Rect{TopLeft: Pt(90, 70), Width: 10, Height: 10}, c)
	assert.True(t, c.Within(bounds))

	neg := Rect{TopLeft: Pt(-5, -5), Width: 20, Height: 20}
	assert.Equal(t, Rect{TopLeft: Pt(0, 0), Width: 20, Height: 20}, neg.Clamp(bounds))
}

func TestRatios(t *testing.T) {
	old := Dimensions{Width: 2400, Height: 1600}
	half := Dimensions{Width: 1200, Height: 800}

	assert.Equal(t, Ratio{X: 0.5, Y: 0.5}, AxisRatio(old, half))
	assert.InDelta(t, 0.25, ResizeRatio(old, half), 1e-12)
	assert.Equal(t, 1.0, ResizeRatio(old, old))
	assert.Equal(t, Identity, AxisRatio(Dimensions{}, half))
}

func TestTargetDimensions(t *testing.T) {
	orig := Dimensions{Width: 3000, Height: 2000}
	w, h := 1200, 500

	assert.Equal(t, Dimensions{Width: 1200, Height: 800}, TargetDimensions(orig, &w, nil))
	assert.Equal(t, Dimensions{Width: 750, Height: 500}, TargetDimensions(orig, nil, &h))
	assert.Equal(t, Dimensions{Width: 1200, Height: 500}, TargetDimensions(orig, &w, &h))
	assert.Equal(t, orig, TargetDimensions(orig, nil, nil))
}

func TestScaleCoordinate(t *testing.T) {
	r := Ratio{X: 0.333, Y: 0.5}
	p := Pt(101, 51)
	assert.Equal(t, Pt(33, 25), ScaleCoordinate(p, r, RoundDown))
	assert.Equal(t, Pt(34, 26), ScaleCoordinate(p, r, RoundUp))
	assert.Equal(t, Pt(34, 26), ScaleCoordinate(p, r, RoundNearest))
}

func TestScaleRect(t *testing.T) {
	r := Rect{TopLeft: Pt(101, 51), Width: 301, Height: 201}
	got := ScaleRect(r, Ratio{X: 0.5, Y: 0.5})
	assert.Equal(t, Rect{TopLeft: Pt(51, 26), Width: 150, Height: 100}, got)
}

func TestScaleQuadRoundsOutward(t *testing.T) {
	q := Quad{TopLeft: Pt(101, 51), TopRight: Pt(499, 51), BottomRight: Pt(499, 449), BottomLeft: Pt(101, 449)}
	got := ScaleQuad(q, Ratio{X: 0.5, Y: 0.5}, Dimensions{Width: 300, Height: 250})

	assert.Equal(t, Pt(50, 25), got.TopLeft)
	assert.Equal(t, Pt(250, 25), got.TopRight)
	assert.Equal(t, Pt(250, 225), got.BottomRight)
	assert.Equal(t, Pt(50, 225), got.BottomLeft)
}

func TestScaleQuadClampsToCanvas(t *testing.T) {
	q := Quad{TopLeft: Pt(0, 0), TopRight: Pt(999, 0), BottomRight: Pt(999, 499), BottomLeft: Pt(0, 499)}
	bounds := Dimensions{Width: 333, Height: 167}
	got := ScaleQuad(q, AxisRatio(Dimensions{Width: 1000, Height: 500}, bounds), bounds)

	for _, c := range got.Corners() {
		assert.GreaterOrEqual(t, c.X, 0)
		assert.GreaterOrEqual(t, c.Y, 0)
		assert.Less(t, c.X, bounds.Width)
		assert.Less(t, c.Y, bounds.Height)
	}
}

func TestScaleIdentity(t *testing.T) {
	q := square()
	bounds := Dimensions{Width: 600, Height: 500}
	assert.Equal(t, q, ScaleQuad(q, Identity, bounds))

	r := Rect{TopLeft: Pt(10, 20), Width: 300, Height: 200}
	assert.Equal(t, r, ScaleRect(r, Identity))
}

func TestPerspectiveCoefficients(t *testing.T) {
	src := RectCorners(Dimensions{Width: 401, Height: 301})
	dst := [4]PointF{{100, 50}, {500, 60}, {480, 450}, {90, 430}}

	m, err := PerspectiveCoefficients(src, dst)
	require.NoError(t, err)

	for i := range src {
		x, y, ok := m.Apply(src[i].X, src[i].Y)
		require.True(t, ok)
		assert.InDelta(t, dst[i].X, x, 1e-6)
		assert.InDelta(t, dst[i].Y, y, 1e-6)
	}
}

func TestPerspectiveCoefficientsAffine(t *testing.T) {
	src := RectCorners(Dimensions{Width: 11, Height: 11})
	dst := [4]PointF{{0, 0}, {20, 0}, {20, 20}, {0, 20}}

	m, err := PerspectiveCoefficients(src, dst)
	require.NoError(t, err)

	x, y, ok := m.Apply(5, 5)
	require.True(t, ok)
	assert.InDelta(t, 10, x, 1e-9)
	assert.InDelta(t, 10, y, 1e-9)
}

func TestPerspectiveCoefficientsSingular(t *testing.T) {
	src := [4]PointF{{0, 0}, {0, 0}, {0, 0}, {0, 0}}
	dst := [4]PointF{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

	_, err := PerspectiveCoefficients(src, dst)
	var gerr *GeometryError
	assert.True(t, errors.As(err, &gerr))
}
