// Package modes implements the drawing-mode state machine. Exactly one
// mode's handlers are attached to the surface at a time; switching
// modes detaches the old set before attaching the new. Committed
// mutations run an ordered hook chain so layer assignment, autosave,
// history and preview fan-out stay decoupled from the gesture code.
package modes

import (
	"math"

	"github.com/skysketch/editor-backend/internal/canvas"
	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/geom"
	"github.com/skysketch/editor-backend/internal/platform/logger"
	"github.com/skysketch/editor-backend/internal/viewport"
)

type Mode string

const (
	ModeSelect     Mode = "select"
	ModeDraw       Mode = "draw"
	ModeBrush      Mode = "brush"
	ModeErase      Mode = "erase"
	ModePixelErase Mode = "pixelErase"
	ModePan        Mode = "pan"
)

// Commit describes one committed canvas mutation flowing through the
// hook chain.
type Commit struct {
	ActionType string
	Objects    []*domain.Object
	Removed    []*domain.Object
}

// Hook observes committed mutations. Hooks run synchronously in
// registration order; the fixed order is layer assignment, autosave,
// history, preview.
type Hook interface {
	OnCommit(c Commit)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(c Commit)

func (f HookFunc) OnCommit(c Commit) { f(c) }

type Policy struct {
	DotRadius       float64
	MaxBrushObjects int
	EraserSize      float64
	EraserMin       float64
	EraserMax       float64
	EraserStep      float64
	StrokeWidth     float64
}

func DefaultPolicy() Policy {
	return Policy{
		DotRadius:       2,
		MaxBrushObjects: 2000,
		EraserSize:      20,
		EraserMin:       5,
		EraserMax:       100,
		EraserStep:      3,
		StrokeWidth:     2,
	}
}

// Engine owns the active mode and its attached handlers.
type Engine struct {
	log     *logger.Logger
	surface *canvas.Surface
	view    *viewport.Viewport
	policy  Policy
	hooks   []Hook

	mode       Mode
	color      string
	handlers   []canvas.HandlerID
	zoomHandle canvas.HandlerID

	eraserSize   float64
	brushWarned  bool
	suspended    map[*domain.Object][2]bool
	lastPanPoint *geom.Point

	drawing *domain.Object
	dragObj *domain.Object
	dragAt  geom.Point
	moved   bool
}

func NewEngine(log *logger.Logger, surface *canvas.Surface, view *viewport.Viewport, policy Policy, hooks ...Hook) *Engine {
	e := &Engine{
		log:        log.With("component", "ModeEngine"),
		surface:    surface,
		view:       view,
		policy:     policy,
		hooks:      hooks,
		mode:       ModeSelect,
		color:      "#000000",
		eraserSize: policy.EraserSize,
	}
	if surface != nil {
		// ctrl+wheel zoom works in every mode and survives mode switches
		e.zoomHandle = surface.OnWheel(func(ev canvas.WheelEvent) {
			if !ev.CtrlKey || e.view == nil {
				return
			}
			e.view.ZoomAt(ev.X, ev.Y, ev.DeltaY)
		})
		e.attach(ModeSelect)
	}
	return e
}

func (e *Engine) Mode() Mode          { return e.mode }
func (e *Engine) Color() string       { return e.color }
func (e *Engine) EraserSize() float64 { return e.eraserSize }

func (e *Engine) SetColor(hex string) {
	if hex != "" {
		e.color = hex
	}
}

// SetMode switches the active drawing mode. The previous mode's
// handlers are detached first so exactly one mode is ever live. An
// optional color override applies before the new mode attaches.
func (e *Engine) SetMode(mode Mode, colorOverride string) {
	if e.surface == nil {
		return
	}
	if colorOverride != "" {
		e.color = colorOverride
	}
	e.teardown()
	e.attach(mode)
	e.log.Debug("mode set", "mode", string(mode))
}

func (e *Engine) teardown() {
	for _, id := range e.handlers {
		e.surface.Off(id)
	}
	e.handlers = e.handlers[:0]
	e.drawing = nil
	e.dragObj = nil
	e.lastPanPoint = nil
	if e.mode == ModePan {
		e.restoreInteractivity()
	}
	e.surface.DiscardSelection()
}

func (e *Engine) attach(mode Mode) {
	e.mode = mode
	switch mode {
	case ModeSelect:
		e.attachSelect()
	case ModeDraw:
		e.attachDraw()
	case ModeBrush:
		e.attachBrush()
	case ModeErase:
		e.attachErase()
	case ModePixelErase:
		e.attachPixelErase()
	case ModePan:
		e.suspendInteractivity()
		e.attachPan()
	}
}

func (e *Engine) on(kind canvas.EventKind, fn func(canvas.PointerEvent)) {
	e.handlers = append(e.handlers, e.surface.OnPointer(kind, fn))
}

func (e *Engine) onWheel(fn func(canvas.WheelEvent)) {
	e.handlers = append(e.handlers, e.surface.OnWheel(fn))
}

func (e *Engine) commit(actionType string, objects, removed []*domain.Object) {
	c := Commit{ActionType: actionType, Objects: objects, Removed: removed}
	for _, h := range e.hooks {
		h.OnCommit(c)
	}
}

// select mode: everything selectable drags; a selected image
// additionally exposes corner scale grips and a rotation grip above
// its top edge.

const (
	gripRadius     = 8
	rotateGripGap  = 20
	minScaleFactor = 0.05
)

type grabKind int

const (
	grabNone grabKind = iota
	grabMove
	grabScale
	grabRotate
)

func (e *Engine) attachSelect() {
	grab := grabNone
	var center geom.Point
	var startDist, startAngle float64
	var baseSX, baseSY, baseAngle float64
	var imgW, imgH float64

	e.on(canvas.EventPointerDown, func(ev canvas.PointerEvent) {
		p := geom.Point{X: ev.X, Y: ev.Y}
		if sel := e.surface.Selected(); sel != nil && sel.Type == domain.ObjectImage && sel.Img != nil {
			b := sel.Bounds()
			center = geom.Point{X: b.Left + b.Width/2, Y: b.Top + b.Height/2}
			switch hitImageGrip(sel, p) {
			case grabRotate:
				grab = grabRotate
				e.dragObj = sel
				baseAngle = sel.Angle
				startAngle = math.Atan2(p.Y-center.Y, p.X-center.X)
				e.moved = false
				return
			case grabScale:
				grab = grabScale
				e.dragObj = sel
				baseSX, baseSY = sel.ScaleX, sel.ScaleY
				ib := sel.Img.Bounds()
				imgW, imgH = float64(ib.Dx()), float64(ib.Dy())
				startDist = geom.Dist(p, center)
				e.moved = false
				return
			}
		}
		obj := e.surface.HitTest(p)
		if obj == nil || !obj.Selectable {
			e.surface.DiscardSelection()
			return
		}
		e.surface.Select(obj)
		grab = grabMove
		e.dragObj = obj
		e.dragAt = p
		e.moved = false
	})
	e.on(canvas.EventPointerMove, func(ev canvas.PointerEvent) {
		if e.dragObj == nil {
			return
		}
		p := geom.Point{X: ev.X, Y: ev.Y}
		switch grab {
		case grabMove:
			e.dragObj.Translate(p.X-e.dragAt.X, p.Y-e.dragAt.Y)
			e.dragAt = p
			e.moved = true
		case grabScale:
			if startDist <= 0 {
				return
			}
			factor := geom.Dist(p, center) / startDist
			if factor < minScaleFactor {
				factor = minScaleFactor
			}
			o := e.dragObj
			o.ScaleX = baseSX * factor
			o.ScaleY = baseSY * factor
			// the center stays put while the corners move
			o.Left = center.X - imgW*o.ScaleX/2
			o.Top = center.Y - imgH*o.ScaleY/2
			e.moved = true
		case grabRotate:
			a := math.Atan2(p.Y-center.Y, p.X-center.X)
			e.dragObj.Angle = baseAngle + (a-startAngle)*180/math.Pi
			e.moved = true
		}
	})
	e.on(canvas.EventPointerUp, func(ev canvas.PointerEvent) {
		if e.dragObj != nil && e.moved {
			action := "objectMoved"
			if grab == grabScale || grab == grabRotate {
				action = "objectModified"
			}
			e.commit(action, []*domain.Object{e.dragObj}, nil)
		}
		grab = grabNone
		e.dragObj = nil
		e.moved = false
	})
}

// hitImageGrip tests the pointer against the selected image's
// transform grips. Grip positions follow the image's rotation about
// its center.
func hitImageGrip(o *domain.Object, p geom.Point) grabKind {
	b := o.Bounds()
	center := geom.Point{X: b.Left + b.Width/2, Y: b.Top + b.Height/2}
	rot := geom.Point{X: center.X, Y: b.Top - rotateGripGap}
	if geom.Dist(p, geom.RotateAbout(rot, center, o.Angle)) <= gripRadius {
		return grabRotate
	}
	corners := []geom.Point{
		{X: b.Left, Y: b.Top},
		{X: b.Right(), Y: b.Top},
		{X: b.Right(), Y: b.Bottom()},
		{X: b.Left, Y: b.Bottom()},
	}
	for _, c := range corners {
		if geom.Dist(p, geom.RotateAbout(c, center, o.Angle)) <= gripRadius {
			return grabScale
		}
	}
	return grabNone
}

// draw mode

func (e *Engine) attachDraw() {
	e.on(canvas.EventPointerDown, func(ev canvas.PointerEvent) {
		e.drawing = &domain.Object{
			Type:        domain.ObjectPath,
			Points:      []geom.Point{{X: ev.X, Y: ev.Y}},
			Stroke:      e.color,
			StrokeWidth: e.policy.StrokeWidth,
			Visible:     true,
			Selectable:  true,
			Evented:     true,
		}
		e.surface.Add(e.drawing)
	})
	e.on(canvas.EventPointerMove, func(ev canvas.PointerEvent) {
		if e.drawing == nil {
			return
		}
		e.drawing.Points = append(e.drawing.Points, geom.Point{X: ev.X, Y: ev.Y})
	})
	e.on(canvas.EventPointerUp, func(ev canvas.PointerEvent) {
		if e.drawing == nil {
			return
		}
		done := e.drawing
		e.drawing = nil
		if len(done.Points) < 2 {
			e.surface.Remove(done)
			return
		}
		e.commit("pathDrawn", []*domain.Object{done}, nil)
	})
}

// brush mode

func (e *Engine) attachBrush() {
	stamping := false
	var placed []*domain.Object
	stamp := func(ev canvas.PointerEvent) {
		p := geom.Point{X: ev.X, Y: ev.Y}
		if !e.surface.InBounds(p) {
			return
		}
		if dot := e.tryPlaceDot(p); dot != nil {
			placed = append(placed, dot)
		}
	}
	e.on(canvas.EventPointerDown, func(ev canvas.PointerEvent) {
		stamping = true
		placed = placed[:0]
		stamp(ev)
	})
	e.on(canvas.EventPointerMove, func(ev canvas.PointerEvent) {
		if stamping {
			stamp(ev)
		}
	})
	e.on(canvas.EventPointerUp, func(ev canvas.PointerEvent) {
		if !stamping {
			return
		}
		stamping = false
		if len(placed) > 0 {
			e.commit("dotsPlaced", append([]*domain.Object(nil), placed...), nil)
		}
		placed = placed[:0]
	})
}

// tryPlaceDot places a dot unless it would overlap an existing dot or
// bust the brush cap. The cap logs a single warning per session.
func (e *Engine) tryPlaceDot(p geom.Point) *domain.Object {
	dots := e.surface.Dots()
	if len(dots) >= e.policy.MaxBrushObjects {
		if !e.brushWarned {
			e.brushWarned = true
			e.log.Warn("brush dot cap reached", "max", e.policy.MaxBrushObjects)
		}
		return nil
	}
	r := e.policy.DotRadius
	for _, d := range dots {
		if geom.CirclesOverlap(p, r, geom.Point{X: d.CX, Y: d.CY}, d.Radius) {
			return nil
		}
	}
	dot := &domain.Object{
		Type:       domain.ObjectDot,
		CX:         p.X,
		CY:         p.Y,
		Radius:     r,
		Fill:       e.color,
		Origin:     domain.OriginDrawn,
		Visible:    true,
		Selectable: true,
		Evented:    true,
	}
	e.surface.Add(dot)
	return dot
}

// erase mode: object eraser with a circular footprint

func (e *Engine) attachErase() {
	erasing := false
	var removed []*domain.Object
	eraseAt := func(ev canvas.PointerEvent) {
		p := geom.Point{X: ev.X, Y: ev.Y}
		for _, o := range e.surface.Objects() {
			if o.Name == domain.BoundaryName || o.Type == domain.ObjectImage {
				continue
			}
			hit := false
			switch o.Type {
			case domain.ObjectDot:
				hit = geom.CircleTouchesCircle(p, e.eraserSize, geom.Point{X: o.CX, Y: o.CY}, o.Radius)
			case domain.ObjectPath:
				hit = geom.CircleTouchesRect(p, e.eraserSize, o.Bounds())
			}
			if hit && e.surface.Remove(o) {
				removed = append(removed, o)
			}
		}
	}
	e.on(canvas.EventPointerDown, func(ev canvas.PointerEvent) {
		erasing = true
		removed = removed[:0]
		eraseAt(ev)
	})
	e.on(canvas.EventPointerMove, func(ev canvas.PointerEvent) {
		if erasing {
			eraseAt(ev)
		}
	})
	e.on(canvas.EventPointerUp, func(ev canvas.PointerEvent) {
		if !erasing {
			return
		}
		erasing = false
		if len(removed) > 0 {
			e.commit("objectsErased", nil, append([]*domain.Object(nil), removed...))
		}
		removed = removed[:0]
	})
	e.attachEraserSizing()
}

// attachEraserSizing lets the plain wheel adjust the eraser footprint;
// ctrl+wheel stays with zoom. Shared by erase and pixelErase.
func (e *Engine) attachEraserSizing() {
	e.onWheel(func(ev canvas.WheelEvent) {
		if ev.CtrlKey {
			return
		}
		step := e.policy.EraserStep
		if ev.DeltaY > 0 {
			step = -step
		}
		e.eraserSize = geom.Clamp(e.eraserSize+step, e.policy.EraserMin, e.policy.EraserMax)
		// a stroke in progress picks up the new width immediately
		if e.drawing != nil && e.drawing.EraserPath {
			e.drawing.StrokeWidth = e.eraserSize
		}
	})
}

// pixelErase mode: paints background-colored strokes over content

func (e *Engine) attachPixelErase() {
	e.on(canvas.EventPointerDown, func(ev canvas.PointerEvent) {
		e.drawing = &domain.Object{
			Type:        domain.ObjectPath,
			Points:      []geom.Point{{X: ev.X, Y: ev.Y}},
			Stroke:      e.surface.Background(),
			StrokeWidth: e.eraserSize,
			Visible:     true,
			Selectable:  false,
			Evented:     false,
			EraserPath:  true,
		}
		e.surface.Add(e.drawing)
	})
	e.on(canvas.EventPointerMove, func(ev canvas.PointerEvent) {
		if e.drawing == nil {
			return
		}
		e.drawing.Points = append(e.drawing.Points, geom.Point{X: ev.X, Y: ev.Y})
	})
	e.on(canvas.EventPointerUp, func(ev canvas.PointerEvent) {
		if e.drawing == nil {
			return
		}
		done := e.drawing
		e.drawing = nil
		e.commit("pixelErased", []*domain.Object{done}, nil)
	})
	e.attachEraserSizing()
}

// pan mode: viewport translation only

func (e *Engine) attachPan() {
	e.on(canvas.EventPointerDown, func(ev canvas.PointerEvent) {
		e.lastPanPoint = &geom.Point{X: ev.X, Y: ev.Y}
	})
	e.on(canvas.EventPointerMove, func(ev canvas.PointerEvent) {
		if e.lastPanPoint == nil || e.view == nil {
			return
		}
		e.view.Translate(ev.X-e.lastPanPoint.X, ev.Y-e.lastPanPoint.Y)
		e.lastPanPoint = &geom.Point{X: ev.X, Y: ev.Y}
	})
	e.on(canvas.EventPointerUp, func(ev canvas.PointerEvent) {
		e.lastPanPoint = nil
	})
}

// suspendInteractivity records each object's selectable/evented flags
// and turns them off so panning never grabs content.
func (e *Engine) suspendInteractivity() {
	e.suspended = make(map[*domain.Object][2]bool)
	for _, o := range e.surface.Objects() {
		e.suspended[o] = [2]bool{o.Selectable, o.Evented}
		o.Selectable = false
		o.Evented = false
	}
}

func (e *Engine) restoreInteractivity() {
	for o, flags := range e.suspended {
		o.Selectable = flags[0]
		o.Evented = flags[1]
	}
	e.suspended = nil
}

// ExitPan leaves pan mode, restores interactivity, and lands back in
// select mode.
func (e *Engine) ExitPan() {
	if e.mode != ModePan {
		return
	}
	e.SetMode(ModeSelect, "")
}

// Detach removes every handler including the permanent zoom handler.
// Called on session close.
func (e *Engine) Detach() {
	if e.surface == nil {
		return
	}
	e.teardown()
	e.surface.Off(e.zoomHandle)
	e.mode = ModeSelect
}
