// Package geom holds the small amount of 2D math the editor needs.
// Eraser and brush hit tests are deliberately approximate: circle
// distance for dots, axis-aligned bounds for paths. Eraser feel is
// tuned around these tests, so they must not be tightened.
package geom

import "math"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// CirclesOverlap reports whether two circles intersect, i.e. the center
// distance is below the sum of the radii.
func CirclesOverlap(c1 Point, r1 float64, c2 Point, r2 float64) bool {
	return Dist(c1, c2) < r1+r2
}

// CircleTouchesCircle is the eraser variant: touching counts.
func CircleTouchesCircle(c1 Point, r1 float64, c2 Point, r2 float64) bool {
	return Dist(c1, c2) <= r1+r2
}

type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right() && p.Y >= r.Top && p.Y <= r.Bottom()
}

// Expand grows the rect by d on every side.
func (r Rect) Expand(d float64) Rect {
	return Rect{Left: r.Left - d, Top: r.Top - d, Width: r.Width + 2*d, Height: r.Height + 2*d}
}

// CircleTouchesRect approximates circle-vs-rect intersection by testing
// the circle center against the rect expanded by the radius.
func CircleTouchesRect(center Point, radius float64, r Rect) bool {
	return r.Expand(radius).Contains(center)
}

// Bounds returns the axis-aligned bounding box of a point sequence,
// padded by half the stroke width. A zero-length sequence yields a
// zero rect.
func Bounds(points []Point, strokeWidth float64) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	pad := strokeWidth / 2
	return Rect{Left: minX - pad, Top: minY - pad, Width: maxX - minX + strokeWidth, Height: maxY - minY + strokeWidth}
}

// RotateAbout rotates p around c by deg degrees, positive clockwise in
// screen coordinates.
func RotateAbout(p, c Point, deg float64) Point {
	if deg == 0 {
		return p
	}
	rad := deg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	dx, dy := p.X-c.X, p.Y-c.Y
	return Point{X: c.X + dx*cos - dy*sin, Y: c.Y + dx*sin + dy*cos}
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
