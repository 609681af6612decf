package geom

import "testing"

func TestDist(t *testing.T) {
	d := Dist(Point{X: 0, Y: 0}, Point{X: 3, Y: 4})
	if d != 5 {
		t.Fatalf("expected 5, got %v", d)
	}
}

func TestCirclesOverlap(t *testing.T) {
	// touching circles do not overlap, distance == sum of radii
	if CirclesOverlap(Point{X: 0, Y: 0}, 2, Point{X: 4, Y: 0}, 2) {
		t.Fatalf("touching circles should not count as overlapping")
	}
	if !CirclesOverlap(Point{X: 0, Y: 0}, 2, Point{X: 3.9, Y: 0}, 2) {
		t.Fatalf("intersecting circles should overlap")
	}
	// the eraser variant counts touching
	if !CircleTouchesCircle(Point{X: 0, Y: 0}, 2, Point{X: 4, Y: 0}, 2) {
		t.Fatalf("touching circles should count for the eraser")
	}
}

func TestRectContains(t *testing.T) {
	r := Rect{Left: 10, Top: 10, Width: 20, Height: 20}
	if !r.Contains(Point{X: 10, Y: 10}) {
		t.Fatalf("edge point should be contained")
	}
	if !r.Contains(Point{X: 30, Y: 30}) {
		t.Fatalf("far edge point should be contained")
	}
	if r.Contains(Point{X: 30.1, Y: 30}) {
		t.Fatalf("outside point should not be contained")
	}
}

func TestCircleTouchesRect(t *testing.T) {
	r := Rect{Left: 10, Top: 10, Width: 10, Height: 10}
	if !CircleTouchesRect(Point{X: 5, Y: 15}, 6, r) {
		t.Fatalf("circle within expanded rect should touch")
	}
	if CircleTouchesRect(Point{X: 3, Y: 15}, 6, r) {
		t.Fatalf("circle outside expanded rect should not touch")
	}
}

func TestBounds(t *testing.T) {
	pts := []Point{{X: 10, Y: 20}, {X: 30, Y: 5}, {X: 15, Y: 25}}
	b := Bounds(pts, 2)
	if b.Left != 9 || b.Top != 4 {
		t.Fatalf("unexpected origin: %+v", b)
	}
	if b.Width != 22 || b.Height != 22 {
		t.Fatalf("unexpected size: %+v", b)
	}
	if got := Bounds(nil, 2); got != (Rect{}) {
		t.Fatalf("empty point set should yield zero rect, got %+v", got)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 10) != 5 {
		t.Fatalf("in-range value should pass through")
	}
	if Clamp(-1, 0, 10) != 0 || Clamp(11, 0, 10) != 10 {
		t.Fatalf("out-of-range values should clamp")
	}
}
