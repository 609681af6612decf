// Package canvas implements the retained-mode scene surface: the
// ordered drawable object set for one scene, its pointer/wheel event
// fan-out, and (de)serialization to the portable canvas document.
package canvas

import (
	"sync"

	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/geom"
	"github.com/skysketch/editor-backend/internal/platform/logger"
)

const DefaultBackground = "#fafafa"

type Surface struct {
	mu         sync.Mutex
	log        *logger.Logger
	width      float64
	height     float64
	background string
	objects    []*domain.Object
	selected   *domain.Object
	decoder    ImageDecoder

	events *dispatcher
}

func New(log *logger.Logger, width, height float64, decoder ImageDecoder) *Surface {
	s := &Surface{
		log:        log.With("component", "Surface"),
		width:      width,
		height:     height,
		background: DefaultBackground,
		decoder:    decoder,
		events:     newDispatcher(),
	}
	s.objects = append(s.objects, boundaryObject(width, height))
	return s
}

// boundaryObject is the dashed frame outlining the drawable area. It
// is excluded from export and survives Clear.
func boundaryObject(width, height float64) *domain.Object {
	return &domain.Object{
		Type: domain.ObjectPath,
		Points: []geom.Point{
			{X: 0, Y: 0}, {X: width, Y: 0}, {X: width, Y: height}, {X: 0, Y: height}, {X: 0, Y: 0},
		},
		Stroke:            "#999999",
		StrokeWidth:       1,
		Visible:           true,
		Selectable:        false,
		Evented:           false,
		ExcludeFromExport: true,
		Name:              domain.BoundaryName,
	}
}

func (s *Surface) Width() float64     { return s.width }
func (s *Surface) Height() float64    { return s.height }
func (s *Surface) Background() string { return s.background }

func (s *Surface) InBounds(p geom.Point) bool {
	return p.X >= 0 && p.X <= s.width && p.Y >= 0 && p.Y <= s.height
}

// Objects returns a snapshot of the object list in stacking order.
func (s *Surface) Objects() []*domain.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Object, len(s.objects))
	copy(out, s.objects)
	return out
}

// DrawnObjects returns objects that count as user content: everything
// except the boundary decoration and export-excluded objects.
func (s *Surface) DrawnObjects() []*domain.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Object
	for _, o := range s.objects {
		if o.Name == domain.BoundaryName || o.ExcludeFromExport {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Dots returns all dot objects, hand-placed and converted alike.
func (s *Surface) Dots() []*domain.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Object
	for _, o := range s.objects {
		if o.Type == domain.ObjectDot {
			out = append(out, o)
		}
	}
	return out
}

func (s *Surface) Add(obj *domain.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = append(s.objects, obj)
}

func (s *Surface) Remove(obj *domain.Object) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.objects {
		if o == obj {
			s.objects = append(s.objects[:i], s.objects[i+1:]...)
			if s.selected == obj {
				s.selected = nil
			}
			return true
		}
	}
	return false
}

// Clear removes every object except the boundary decoration.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Surface) clearLocked() {
	kept := s.objects[:0]
	for _, o := range s.objects {
		if o.Name == domain.BoundaryName {
			kept = append(kept, o)
		}
	}
	s.objects = kept
	s.selected = nil
	s.background = DefaultBackground
}

// HasDrawableContent reports whether at least one path, dot or image
// exists beyond the boundary decoration. Used to gate conversion
// requests.
func (s *Surface) HasDrawableContent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.objects {
		if o.Name == domain.BoundaryName {
			continue
		}
		switch o.Type {
		case domain.ObjectPath, domain.ObjectDot, domain.ObjectImage:
			return true
		}
	}
	return false
}

// DotsOnly reports whether the drawable content consists entirely of
// dots. Such content skips rasterization and converts from the exact
// dot geometry instead.
func (s *Surface) DotsOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, o := range s.objects {
		if o.Name == domain.BoundaryName || o.ExcludeFromExport {
			continue
		}
		if o.Type != domain.ObjectDot {
			return false
		}
		found = true
	}
	return found
}

// HitTest returns the topmost evented object whose bounds contain p,
// or nil.
func (s *Surface) HitTest(p geom.Point) *domain.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.objects) - 1; i >= 0; i-- {
		o := s.objects[i]
		if !o.Evented || !o.Visible || o.Name == domain.BoundaryName {
			continue
		}
		if o.Bounds().Contains(p) {
			return o
		}
	}
	return nil
}

func (s *Surface) Select(obj *domain.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = obj
}

func (s *Surface) Selected() *domain.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Surface) DiscardSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// SetLayerVisibility applies a layer's visibility to every object
// assigned to it.
func (s *Surface) SetLayerVisibility(layerID string, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.objects {
		if o.LayerID == layerID {
			o.Visible = visible
		}
	}
}

// SetLayerLock makes a layer's objects (un)selectable.
func (s *Surface) SetLayerLock(layerID string, locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.objects {
		if o.LayerID == layerID {
			o.Selectable = !locked
			o.Evented = !locked
		}
	}
}

// RemoveLayerObjects drops every object assigned to the layer and
// returns how many were removed.
func (s *Surface) RemoveLayerObjects(layerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.objects[:0]
	removed := 0
	for _, o := range s.objects {
		if o.LayerID == layerID {
			removed++
			if s.selected == o {
				s.selected = nil
			}
			continue
		}
		kept = append(kept, o)
	}
	s.objects = kept
	return removed
}

// RestackByLayers rewrites the stacking order so objects follow the
// given bottom-to-top layer id order. Objects within a layer keep
// their relative order; unassigned objects (the boundary) go to the
// back.
func (s *Surface) RestackByLayers(bottomToTop []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var restacked []*domain.Object
	for _, o := range s.objects {
		if o.LayerID == "" {
			restacked = append(restacked, o)
		}
	}
	for _, layerID := range bottomToTop {
		for _, o := range s.objects {
			if o.LayerID == layerID {
				restacked = append(restacked, o)
			}
		}
	}
	// objects pointing at unknown layers render above everything
	known := make(map[string]bool, len(bottomToTop))
	for _, id := range bottomToTop {
		known[id] = true
	}
	for _, o := range s.objects {
		if o.LayerID != "" && !known[o.LayerID] {
			restacked = append(restacked, o)
		}
	}
	s.objects = restacked
}

// event plumbing

func (s *Surface) OnPointer(kind EventKind, fn func(PointerEvent)) HandlerID {
	return s.events.onPointer(kind, fn)
}

func (s *Surface) OnWheel(fn func(WheelEvent)) HandlerID {
	return s.events.onWheel(fn)
}

func (s *Surface) Off(id HandlerID) {
	s.events.off(id)
}

func (s *Surface) HandlerCount(kind EventKind) int {
	return s.events.count(kind)
}

func (s *Surface) PointerDown(ev PointerEvent) { s.events.dispatchPointer(EventPointerDown, ev) }
func (s *Surface) PointerMove(ev PointerEvent) { s.events.dispatchPointer(EventPointerMove, ev) }
func (s *Surface) PointerUp(ev PointerEvent)   { s.events.dispatchPointer(EventPointerUp, ev) }
func (s *Surface) Wheel(ev WheelEvent)         { s.events.dispatchWheel(ev) }
