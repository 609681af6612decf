package canvas

import "sync"

// PointerEvent carries a pointer position in logical canvas
// coordinates.
type PointerEvent struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WheelEvent carries scroll input. CtrlKey selects viewport zoom;
// plain wheel is left to the active mode (eraser sizing).
type WheelEvent struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	DeltaY  float64 `json:"deltaY"`
	CtrlKey bool    `json:"ctrlKey"`
}

type EventKind string

const (
	EventPointerDown EventKind = "pointerdown"
	EventPointerMove EventKind = "pointermove"
	EventPointerUp   EventKind = "pointerup"
	EventWheel       EventKind = "wheel"
)

type HandlerID int

type pointerHandler func(PointerEvent)
type wheelHandler func(WheelEvent)

// dispatcher is the surface's event fan-out. Handlers are invoked
// outside the registry lock so they may mutate the surface.
type dispatcher struct {
	mu       sync.Mutex
	nextID   HandlerID
	pointers map[EventKind]map[HandlerID]pointerHandler
	wheels   map[HandlerID]wheelHandler
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		pointers: map[EventKind]map[HandlerID]pointerHandler{
			EventPointerDown: {},
			EventPointerMove: {},
			EventPointerUp:   {},
		},
		wheels: map[HandlerID]wheelHandler{},
	}
}

func (d *dispatcher) onPointer(kind EventKind, fn pointerHandler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.pointers[kind][d.nextID] = fn
	return d.nextID
}

func (d *dispatcher) onWheel(fn wheelHandler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.wheels[d.nextID] = fn
	return d.nextID
}

func (d *dispatcher) off(id HandlerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.pointers {
		delete(m, id)
	}
	delete(d.wheels, id)
}

func (d *dispatcher) count(kind EventKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if kind == EventWheel {
		return len(d.wheels)
	}
	return len(d.pointers[kind])
}

func (d *dispatcher) dispatchPointer(kind EventKind, ev PointerEvent) {
	d.mu.Lock()
	fns := make([]pointerHandler, 0, len(d.pointers[kind]))
	for _, fn := range d.pointers[kind] {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (d *dispatcher) dispatchWheel(ev WheelEvent) {
	d.mu.Lock()
	fns := make([]wheelHandler, 0, len(d.wheels))
	for _, fn := range d.wheels {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
