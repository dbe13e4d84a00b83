package geometry

import "github.com/chewxy/math32"

// Point is a 2-D coordinate.
type Point struct {
	X, Y float32
}

// Quad is the four-corner outline of a box.
type Quad [4]Point

// Flatten returns the corners as (x1, y1, x2, y2, x3, y3, x4, y4).
func (q Quad) Flatten() [8]float32 {
	var out [8]float32
	for i, p := range q {
		out[2*i] = p.X
		out[2*i+1] = p.Y
	}
	return out
}

// Polygon returns the corners as a general polygon.
func (q Quad) Polygon() Polygon {
	return Polygon{q[0], q[1], q[2], q[3]}
}

// Bounds returns the axis-aligned envelope of the corners.
func (q Quad) Bounds() Rect {
	b := Rect{X1: q[0].X, Y1: q[0].Y, X2: q[0].X, Y2: q[0].Y}
	for _, p := range q[1:] {
		b.X1 = min(b.X1, p.X)
		b.Y1 = min(b.Y1, p.Y)
		b.X2 = max(b.X2, p.X)
		b.Y2 = max(b.Y2, p.Y)
	}
	return b
}

// Polygon is a closed outline; the last vertex connects back to the first.
type Polygon []Point

// SignedArea returns the shoelace area. The sign gives the winding: positive
// for counter-clockwise in a y-up frame.
func (p Polygon) SignedArea() float32 {
	if len(p) < 3 {
		return 0
	}
	var sum float32
	for i := range p {
		j := (i + 1) % len(p)
		sum += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return sum / 2
}

// Area returns the absolute area of the polygon.
func (p Polygon) Area() float32 {
	return math32.Abs(p.SignedArea())
}

// cross is the z component of (b-a) x (p-a).
func cross(a, b, p Point) float32 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

// clipEdge keeps the part of subject lying on the inner side of the directed
// edge a->b. sign is +1 for counter-clockwise clip polygons and -1 otherwise.
func clipEdge(subject Polygon, a, b Point, sign float32) Polygon {
	out := make(Polygon, 0, len(subject)+2)
	n := len(subject)
	for i := 0; i < n; i++ {
		cur := subject[i]
		prev := subject[(i+n-1)%n]
		dCur := sign * cross(a, b, cur)
		dPrev := sign * cross(a, b, prev)

		if dCur >= 0 {
			if dPrev < 0 {
				out = append(out, lerp(prev, cur, dPrev/(dPrev-dCur)))
			}
			out = append(out, cur)
		} else if dPrev >= 0 {
			out = append(out, lerp(prev, cur, dPrev/(dPrev-dCur)))
		}
	}
	return out
}

func lerp(p, q Point, t float32) Point {
	return Point{X: p.X + t*(q.X-p.X), Y: p.Y + t*(q.Y-p.Y)}
}

// ConvexIntersection clips subject against the convex polygon clip
// (Sutherland-Hodgman). Both polygons must be convex; the winding of either
// does not matter.
func ConvexIntersection(subject, clip Polygon) Polygon {
	area := clip.SignedArea()
	if area == 0 || len(subject) < 3 {
		return nil
	}
	sign := float32(1)
	if area < 0 {
		sign = -1
	}

	out := subject
	for i := range clip {
		out = clipEdge(out, clip[i], clip[(i+1)%len(clip)], sign)
		if len(out) == 0 {
			return nil
		}
	}
	return out
}

// PolygonIoU returns the intersection over union of two convex polygons.
func PolygonIoU(a, b Polygon) float32 {
	inter := ConvexIntersection(a, b).Area()
	if inter <= 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Shape is a box that can take part in suppression.
type Shape interface {
	Area() float32
	Bounds() Rect
	Corners() Quad
}

// IoU returns the exact overlap of two shapes. Pairs of axis-aligned boxes
// take the rectangle fast path; anything involving a rotated box is
// compared as polygons.
func IoU(a, b Shape) float32 {
	ra, aok := a.(Rect)
	rb, bok := b.(Rect)
	if aok && bok {
		return CalculateIoU(ra, rb)
	}
	if !a.Bounds().Overlaps(b.Bounds()) {
		return 0
	}
	return PolygonIoU(a.Corners().Polygon(), b.Corners().Polygon())
}

// EnvelopeIoU compares the axis-aligned envelopes of two shapes.
func EnvelopeIoU(a, b Shape) float32 {
	return CalculateIoU(a.Bounds(), b.Bounds())
}
