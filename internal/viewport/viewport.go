// Package viewport tracks the pan/zoom transform mapping the fixed
// logical canvas onto a resizable view.
package viewport

import (
	"math"
	"sync"

	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/geom"
)

const (
	MinZoom = 0.01
	MaxZoom = 20.0

	// wheel zoom feel: each wheel unit multiplies zoom by this factor
	zoomBase = 0.999
)

// Viewport owns the current transform plus the view dimensions it was
// computed for.
type Viewport struct {
	mu sync.Mutex

	logicalW float64
	logicalH float64
	viewW    float64
	viewH    float64

	zoom       float64
	translateX float64
	translateY float64

	// restore holds a persisted transform to apply on the next Resize
	// instead of re-fitting. One shot.
	restore *domain.ViewportState
}

func New(logicalW, logicalH float64) *Viewport {
	return &Viewport{logicalW: logicalW, logicalH: logicalH, zoom: 1}
}

// Resize records new view dimensions and recomputes the transform:
// either the pending restored state, or a fresh fit that centers the
// logical canvas at the largest zoom that fully contains it.
func (v *Viewport) Resize(viewW, viewH float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewW = viewW
	v.viewH = viewH
	if r := v.restore; r != nil {
		v.restore = nil
		v.zoom = geom.Clamp(r.Zoom, MinZoom, MaxZoom)
		v.translateX = r.TranslateX
		v.translateY = r.TranslateY
		return
	}
	v.fitLocked()
}

func (v *Viewport) fitLocked() {
	if v.viewW <= 0 || v.viewH <= 0 {
		v.zoom = 1
		v.translateX = 0
		v.translateY = 0
		return
	}
	zx := v.viewW / v.logicalW
	zy := v.viewH / v.logicalH
	z := zx
	if zy < z {
		z = zy
	}
	v.zoom = geom.Clamp(z, MinZoom, MaxZoom)
	v.translateX = (v.viewW - v.logicalW*v.zoom) / 2
	v.translateY = (v.viewH - v.logicalH*v.zoom) / 2
}

// Fit discards the current transform and re-centers at the best fit
// for the current view dimensions.
func (v *Viewport) Fit() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.restore = nil
	v.fitLocked()
}

// RestoreTransform arms a one-shot transform override consumed by the
// next Resize. Passing nil disarms it.
func (v *Viewport) RestoreTransform(state *domain.ViewportState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if state == nil {
		v.restore = nil
		return
	}
	c := *state
	v.restore = &c
}

// ZoomAt scales the transform by the wheel delta, keeping the view
// point (x, y) anchored on the same logical point. Zoom is clamped and
// the translation adjusts so content under the cursor stays put.
func (v *Viewport) ZoomAt(x, y, deltaY float64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	factor := math.Pow(zoomBase, deltaY)
	next := geom.Clamp(v.zoom*factor, MinZoom, MaxZoom)
	if next == v.zoom {
		return next
	}
	k := next / v.zoom
	v.translateX = x - (x-v.translateX)*k
	v.translateY = y - (y-v.translateY)*k
	v.zoom = next
	return next
}

// Translate pans the view by a delta in view pixels.
func (v *Viewport) Translate(dx, dy float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.translateX += dx
	v.translateY += dy
}

func (v *Viewport) Zoom() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom
}

// State snapshots the transform for persistence.
func (v *Viewport) State() *domain.ViewportState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return &domain.ViewportState{Zoom: v.zoom, TranslateX: v.translateX, TranslateY: v.translateY}
}

// ToLogical maps a view-space point into logical canvas coordinates.
func (v *Viewport) ToLogical(p geom.Point) geom.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return geom.Point{X: (p.X - v.translateX) / v.zoom, Y: (p.Y - v.translateY) / v.zoom}
}
