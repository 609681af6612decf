// Package layers manages per-scene layer stacks: ordering, visibility,
// locking and the active-layer pointer. Layer structure is owned here;
// object membership lives on the objects themselves.
package layers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/platform/logger"
)

var (
	ErrLayerNotFound    = fmt.Errorf("layer not found")
	ErrBackgroundLocked = fmt.Errorf("background layer cannot be deleted")
)

// Registry holds the layer stacks of every scene the session has
// touched, keyed by scene id.
type Registry struct {
	mu     sync.Mutex
	log    *logger.Logger
	scenes map[string]*sceneLayers
}

type sceneLayers struct {
	layers   map[string]*domain.Layer
	activeID string
	counter  int
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		log:    log.With("component", "LayerRegistry"),
		scenes: make(map[string]*sceneLayers),
	}
}

func backgroundLayer() *domain.Layer {
	return &domain.Layer{
		ID:      domain.BackgroundLayerID,
		Name:    "Background",
		Visible: true,
		ZIndex:  0,
		Type:    domain.LayerTypeBackground,
	}
}

// scene returns the scene's layer stack. First touch seeds the
// background plus one drawing layer, with the drawing layer active.
func (r *Registry) scene(sceneID string) *sceneLayers {
	sc, ok := r.scenes[sceneID]
	if !ok {
		first := &domain.Layer{
			ID:      uuid.NewString(),
			Name:    "Layer 1",
			Visible: true,
			ZIndex:  1,
			Type:    domain.LayerTypeDrawing,
		}
		sc = &sceneLayers{
			layers: map[string]*domain.Layer{
				domain.BackgroundLayerID: backgroundLayer(),
				first.ID:                 first,
			},
			activeID: first.ID,
			counter:  1,
		}
		r.scenes[sceneID] = sc
	}
	return sc
}

// CreateLayer adds a drawing layer on top of the stack and makes it
// active. An empty name auto-generates "Layer N".
func (r *Registry) CreateLayer(sceneID, name string) *domain.Layer {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc := r.scene(sceneID)
	sc.counter++
	if name == "" {
		name = fmt.Sprintf("Layer %d", sc.counter)
	}
	top := 0
	for _, l := range sc.layers {
		if l.ZIndex > top {
			top = l.ZIndex
		}
	}
	layer := &domain.Layer{
		ID:      uuid.NewString(),
		Name:    name,
		Visible: true,
		ZIndex:  top + 1,
		Type:    domain.LayerTypeDrawing,
	}
	sc.layers[layer.ID] = layer
	sc.activeID = layer.ID
	r.log.Debug("layer created", "sceneId", sceneID, "layerId", layer.ID, "name", name)
	return layer
}

// DeleteLayer removes a drawing layer. The background layer is
// protected. If the deleted layer was active, the topmost remaining
// drawing layer takes over, falling back to the background only when
// none is left.
func (r *Registry) DeleteLayer(sceneID, layerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc := r.scene(sceneID)
	l, ok := sc.layers[layerID]
	if !ok {
		return ErrLayerNotFound
	}
	if l.Type == domain.LayerTypeBackground {
		return ErrBackgroundLocked
	}
	delete(sc.layers, layerID)
	if sc.activeID == layerID {
		sc.activeID = domain.BackgroundLayerID
		order := sortedLocked(sc)
		for i := len(order) - 1; i >= 0; i-- {
			if order[i].Type == domain.LayerTypeDrawing {
				sc.activeID = order[i].ID
				break
			}
		}
	}
	r.normalizeLocked(sc)
	return nil
}

func (r *Registry) SetActiveLayer(sceneID, layerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc := r.scene(sceneID)
	if _, ok := sc.layers[layerID]; !ok {
		return ErrLayerNotFound
	}
	sc.activeID = layerID
	return nil
}

func (r *Registry) ActiveLayer(sceneID string) *domain.Layer {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc := r.scene(sceneID)
	return sc.layers[sc.activeID]
}

func (r *Registry) Layer(sceneID, layerID string) (*domain.Layer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.scene(sceneID).layers[layerID]
	if !ok {
		return nil, ErrLayerNotFound
	}
	return l, nil
}

// ToggleVisibility flips a layer's visibility and returns the new
// value.
func (r *Registry) ToggleVisibility(sceneID, layerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.scene(sceneID).layers[layerID]
	if !ok {
		return false, ErrLayerNotFound
	}
	l.Visible = !l.Visible
	return l.Visible, nil
}

// ToggleLock flips a layer's lock and returns the new value.
func (r *Registry) ToggleLock(sceneID, layerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.scene(sceneID).layers[layerID]
	if !ok {
		return false, ErrLayerNotFound
	}
	l.Locked = !l.Locked
	return l.Locked, nil
}

func (r *Registry) Rename(sceneID, layerID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.scene(sceneID).layers[layerID]
	if !ok {
		return ErrLayerNotFound
	}
	l.Name = name
	return nil
}

// Reorder applies a full bottom-to-top ordering. Every existing layer
// must appear exactly once; z indexes are recomputed contiguously from
// zero.
func (r *Registry) Reorder(sceneID string, bottomToTop []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc := r.scene(sceneID)
	if len(bottomToTop) != len(sc.layers) {
		return fmt.Errorf("reorder expects %d layer ids, got %d", len(sc.layers), len(bottomToTop))
	}
	seen := make(map[string]bool, len(bottomToTop))
	for _, id := range bottomToTop {
		if _, ok := sc.layers[id]; !ok {
			return ErrLayerNotFound
		}
		if seen[id] {
			return fmt.Errorf("duplicate layer id %q in reorder", id)
		}
		seen[id] = true
	}
	for z, id := range bottomToTop {
		sc.layers[id].ZIndex = z
	}
	r.normalizeLocked(sc)
	return nil
}

// Move reorders by drag-and-drop semantics: the dragged layer takes
// the target layer's slot and everything between shifts. The
// background layer stays pinned at the bottom either way.
func (r *Registry) Move(sceneID, draggedID, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc := r.scene(sceneID)
	dragged, ok := sc.layers[draggedID]
	if !ok {
		return ErrLayerNotFound
	}
	if _, ok := sc.layers[targetID]; !ok {
		return ErrLayerNotFound
	}
	if dragged.Type == domain.LayerTypeBackground || draggedID == targetID {
		return nil
	}
	order := sortedLocked(sc)
	from, to := -1, -1
	for i, l := range order {
		if l.ID == draggedID {
			from = i
		}
		if l.ID == targetID {
			to = i
		}
	}
	order = append(order[:from], order[from+1:]...)
	if to > from {
		to--
	}
	order = append(order[:to], append([]*domain.Layer{dragged}, order[to:]...)...)
	for z, l := range order {
		l.ZIndex = z
	}
	r.normalizeLocked(sc)
	return nil
}

// BringToFront moves a layer above all others.
func (r *Registry) BringToFront(sceneID, layerID string) error {
	return r.moveToEnd(sceneID, layerID, true)
}

// SendToBack moves a layer below all others.
func (r *Registry) SendToBack(sceneID, layerID string) error {
	return r.moveToEnd(sceneID, layerID, false)
}

func (r *Registry) moveToEnd(sceneID, layerID string, front bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc := r.scene(sceneID)
	target, ok := sc.layers[layerID]
	if !ok {
		return ErrLayerNotFound
	}
	if target.Type == domain.LayerTypeBackground {
		return nil
	}
	order := sortedLocked(sc)
	rest := make([]*domain.Layer, 0, len(order)-1)
	for _, l := range order {
		if l != target {
			rest = append(rest, l)
		}
	}
	if front {
		order = append(rest, target)
	} else {
		order = append([]*domain.Layer{target}, rest...)
	}
	for z, l := range order {
		l.ZIndex = z
	}
	r.normalizeLocked(sc)
	return nil
}

// Sorted returns the scene's layers bottom to top.
func (r *Registry) Sorted(sceneID string) []*domain.Layer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedLocked(r.scene(sceneID))
}

// OrderedIDs returns layer ids bottom to top, for object restacking.
func (r *Registry) OrderedIDs(sceneID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	order := sortedLocked(r.scene(sceneID))
	ids := make([]string, len(order))
	for i, l := range order {
		ids[i] = l.ID
	}
	return ids
}

// Snapshot captures the scene's layer structure for embedding in a
// serialized document. Returned layers are copies.
func (r *Registry) Snapshot(sceneID string) *domain.LayerMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc := r.scene(sceneID)
	order := sortedLocked(sc)
	out := make([]*domain.Layer, len(order))
	for i, l := range order {
		c := *l
		out[i] = &c
	}
	return &domain.LayerMetadata{Layers: out, ActiveLayerID: sc.activeID}
}

// Restore replaces the scene's layer structure from persisted
// metadata. Nil metadata resets to the first-touch default. A missing
// background layer is recreated; a dangling active pointer falls back
// to the background.
func (r *Registry) Restore(sceneID string, meta *domain.LayerMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scenes, sceneID)
	if meta == nil {
		r.scene(sceneID)
		return
	}
	sc := &sceneLayers{
		layers:   map[string]*domain.Layer{},
		activeID: domain.BackgroundLayerID,
	}
	r.scenes[sceneID] = sc
	for _, l := range meta.Layers {
		c := *l
		sc.layers[c.ID] = &c
		if c.Type == domain.LayerTypeDrawing {
			sc.counter++
		}
	}
	if _, ok := sc.layers[domain.BackgroundLayerID]; !ok {
		sc.layers[domain.BackgroundLayerID] = backgroundLayer()
	}
	if _, ok := sc.layers[meta.ActiveLayerID]; ok {
		sc.activeID = meta.ActiveLayerID
	}
	r.normalizeLocked(sc)
}

// Forget drops a scene's layer state entirely.
func (r *Registry) Forget(sceneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scenes, sceneID)
}

// normalizeLocked recompacts z indexes to a contiguous 0..n-1 run with
// the background pinned at the bottom, preserving relative order of
// the drawing layers.
func (r *Registry) normalizeLocked(sc *sceneLayers) {
	order := sortedLocked(sc)
	z := 1
	for _, l := range order {
		if l.Type == domain.LayerTypeBackground {
			l.ZIndex = 0
			continue
		}
		l.ZIndex = z
		z++
	}
}

func sortedLocked(sc *sceneLayers) []*domain.Layer {
	out := make([]*domain.Layer, 0, len(sc.layers))
	for _, l := range sc.layers {
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ZIndex != out[j].ZIndex {
			return out[i].ZIndex < out[j].ZIndex
		}
		// background sorts below anything sharing its z
		return out[i].Type == domain.LayerTypeBackground && out[j].Type != domain.LayerTypeBackground
	})
	return out
}
