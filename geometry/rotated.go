package geometry

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// RotatedRect is an oriented box: a center, its unrotated extents and a
// rotation angle in radians.
type RotatedRect struct {
	CX, CY float32
	W, H   float32
	Angle  float32
}

// NewRotatedRect builds a RotatedRect from the five-number encoding
// (cx, cy, w, h, θ) used by rotated detector heads.
func NewRotatedRect(params []float32) (RotatedRect, error) {
	if len(params) != 5 {
		return RotatedRect{}, errors.Errorf("rotated box needs 5 values, got %d", len(params))
	}
	return RotatedRect{CX: params[0], CY: params[1], W: params[2], H: params[3], Angle: params[4]}, nil
}

// Area returns the area of the box. Rotation does not change it.
func (r RotatedRect) Area() float32 {
	return math32.Abs(r.W * r.H)
}

// Corners converts the box into its four corner points.
//
// The unrotated half-extent offsets are visited in a fixed order:
//
//	(-w/2, -h/2), (+w/2, -h/2), (+w/2, +h/2), (-w/2, +h/2)
//
// and each one is rotated by Angle around the center:
//
//	x = cx + dx*cos(θ) - dy*sin(θ)
//	y = cy + dx*sin(θ) + dy*cos(θ)
//
// With θ = 0 the first corner is the top-left one and the walk is clockwise
// on screen (y pointing down), which matches Rect.Corners.
func (r RotatedRect) Corners() Quad {
	sin, cos := math32.Sincos(r.Angle)
	hw, hh := r.W/2, r.H/2

	offsets := [4][2]float32{
		{-hw, -hh},
		{hw, -hh},
		{hw, hh},
		{-hw, hh},
	}

	var q Quad
	for i, o := range offsets {
		q[i] = Point{
			X: r.CX + o[0]*cos - o[1]*sin,
			Y: r.CY + o[0]*sin + o[1]*cos,
		}
	}
	return q
}

// Bounds returns the axis-aligned envelope of the rotated box.
func (r RotatedRect) Bounds() Rect {
	return r.Corners().Bounds()
}

// ToPolygon converts one rotated box and its score into the 9-value polygon
// row (x1, y1, x2, y2, x3, y3, x4, y4, score) emitted for rotated detections.
func ToPolygon(cx, cy, w, h, angle, score float32) [9]float32 {
	flat := RotatedRect{CX: cx, CY: cy, W: w, H: h, Angle: angle}.Corners().Flatten()

	var row [9]float32
	copy(row[:8], flat[:])
	row[8] = score
	return row
}
