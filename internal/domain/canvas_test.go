package domain

import (
	"strings"
	"testing"

	"github.com/skysketch/editor-backend/internal/geom"
)

func TestHistoryKeyShape(t *testing.T) {
	key := NewHistoryKey("scene-42")
	if !IsHistoryKey(key) {
		t.Fatalf("generated key should be recognized: %q", key)
	}
	if !strings.HasPrefix(key, "history_scene-42_") {
		t.Fatalf("key should embed the scene id: %q", key)
	}
	if IsHistoryKey("scene-42") {
		t.Fatalf("bare scene ids must not look like history keys")
	}
	if NewHistoryKey("s") == NewHistoryKey("s") {
		t.Fatalf("consecutive keys should differ")
	}
}

func TestSaveModeFromAssetKey(t *testing.T) {
	cases := []struct {
		key  string
		want SaveMode
	}{
		{"processed/s1.json", SaveModeProcessed},
		{"/processed/s1.json", SaveModeProcessed},
		{"originals/s1.json", SaveModeOriginals},
		{"", SaveModeOriginals},
		{"other/processed.json", SaveModeOriginals},
	}
	for _, c := range cases {
		if got := SaveModeFromAssetKey(c.key); got != c.want {
			t.Fatalf("SaveModeFromAssetKey(%q) = %q, want %q", c.key, got, c.want)
		}
	}
}

func TestObjectBounds(t *testing.T) {
	dot := &Object{Type: ObjectDot, CX: 10, CY: 10, Radius: 3}
	b := dot.Bounds()
	if b.Left != 7 || b.Top != 7 || b.Width != 6 || b.Height != 6 {
		t.Fatalf("dot bounds wrong: %+v", b)
	}

	path := &Object{Type: ObjectPath, Points: []geom.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}, StrokeWidth: 2}
	b = path.Bounds()
	if b.Left != -1 || b.Width != 12 {
		t.Fatalf("path bounds wrong: %+v", b)
	}
}

func TestObjectTranslate(t *testing.T) {
	dot := &Object{Type: ObjectDot, CX: 1, CY: 2}
	dot.Translate(3, 4)
	if dot.CX != 4 || dot.CY != 6 {
		t.Fatalf("dot translate wrong: %v,%v", dot.CX, dot.CY)
	}

	path := &Object{Type: ObjectPath, Points: []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}}
	path.Translate(5, 5)
	if path.Points[0].X != 5 || path.Points[1].Y != 6 {
		t.Fatalf("path translate wrong: %+v", path.Points)
	}

	img := &Object{Type: ObjectImage, Left: 10, Top: 20}
	img.Translate(-5, 5)
	if img.Left != 5 || img.Top != 25 {
		t.Fatalf("image translate wrong: %v,%v", img.Left, img.Top)
	}
}
