package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skysketch/editor-backend/internal/app"
	"github.com/skysketch/editor-backend/internal/autosave"
	"github.com/skysketch/editor-backend/internal/canvas"
	"github.com/skysketch/editor-backend/internal/clients/showapi"
	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/history"
	"github.com/skysketch/editor-backend/internal/layers"
	"github.com/skysketch/editor-backend/internal/modes"
	"github.com/skysketch/editor-backend/internal/platform/logger"
	"github.com/skysketch/editor-backend/internal/realtime"
	"github.com/skysketch/editor-backend/internal/store"
	"github.com/skysketch/editor-backend/internal/viewport"
)

// Session is one open editor: a project/scene pair with its surface,
// mode engine, layer registry, viewport, history and persistence
// pipeline. All entry points serialize on one mutex, the analog of a
// single UI event loop.
type Session struct {
	mu sync.Mutex

	ID        string
	ProjectID string

	log     *logger.Logger
	policy  app.Policy
	surface *canvas.Surface
	view    *viewport.Viewport
	layers  *layers.Registry
	engine  *modes.Engine
	hist    *history.Manager
	saver   *autosave.Pipeline
	local   store.Store
	remote  showapi.Client
	bus     realtime.Bus

	// sceneID has its own lock: the autosave pipeline's timer
	// goroutines read it via serializeCurrent while s.mu may be held by
	// the caller that scheduled them.
	sceneMu sync.Mutex
	sceneID string
}

func (s *Session) currentScene() string {
	s.sceneMu.Lock()
	defer s.sceneMu.Unlock()
	return s.sceneID
}

func (s *Session) setScene(sceneID string) {
	s.sceneMu.Lock()
	defer s.sceneMu.Unlock()
	s.sceneID = sceneID
}

func newSession(id, projectID string, baseLog *logger.Logger, policy app.Policy, local store.Store, remote showapi.Client, bus realtime.Bus) *Session {
	log := baseLog.With("service", "Session", "sessionId", id)
	s := &Session{
		ID:        id,
		ProjectID: projectID,
		log:       log,
		policy:    policy,
		view:      viewport.New(policy.LogicalWidth, policy.LogicalHeight),
		layers:    layers.NewRegistry(log),
		local:     local,
		remote:    remote,
		bus:       bus,
	}
	s.surface = canvas.New(log, policy.LogicalWidth, policy.LogicalHeight, canvas.NewHTTPDecoder(policy.ImageTimeout))
	s.hist = history.NewManager(log, local, history.Policy{
		MaxSceneHistories: policy.MaxSceneHistories,
		MaxDepth:          policy.MaxHistoryDepth,
		DedupWindow:       policy.HistoryDedup,
		CleanupDelay:      policy.CleanupDelay,
		CleanupItemPause:  policy.CleanupItemPause,
	})
	s.saver = autosave.NewPipeline(log, local, remote, s.serializeCurrent, policy.AutosaveDelay, policy.SyncInterval)

	enginePolicy := modes.DefaultPolicy()
	enginePolicy.DotRadius = policy.DotRadius
	enginePolicy.MaxBrushObjects = policy.MaxBrushObjects
	enginePolicy.EraserSize = policy.EraserSize
	enginePolicy.StrokeWidth = policy.StrokeWidth

	// post-mutation hooks run in this order on every commit
	s.engine = modes.NewEngine(log, s.surface, s.view, enginePolicy,
		modes.HookFunc(s.assignLayerHook),
		modes.HookFunc(s.autosaveHook),
		modes.HookFunc(s.historyHook),
		modes.HookFunc(s.previewHook),
	)
	return s
}

// serializeCurrent is handed to the autosave pipeline so debounced
// saves capture the surface at fire time. It takes the session lock:
// the pipeline's timer goroutines must never read object fields while
// a gesture is mutating them.
func (s *Session) serializeCurrent() *domain.CanvasDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serializeLocked()
}

func (s *Session) serializeLocked() *domain.CanvasDocument {
	sceneID := s.currentScene()
	if sceneID == "" {
		return nil
	}
	return s.surface.Serialize(s.layers.Snapshot(sceneID), s.view.State())
}

func (s *Session) assignLayerHook(c modes.Commit) {
	active := s.layers.ActiveLayer(s.currentScene())
	if active == nil {
		return
	}
	for _, o := range c.Objects {
		o.LayerID = active.ID
		o.LayerName = active.Name
		if active.Locked {
			o.Selectable = false
			o.Evented = false
		}
		if !active.Visible {
			o.Visible = false
		}
	}
}

func (s *Session) autosaveHook(c modes.Commit) {
	s.saver.TriggerAutoSave(map[string]any{"actionType": c.ActionType})
}

func (s *Session) historyHook(c modes.Commit) {
	sceneID := s.currentScene()
	doc := s.surface.Serialize(s.layers.Snapshot(sceneID), s.view.State())
	s.hist.SaveToHistory(context.Background(), sceneID, c.ActionType, doc)
}

func (s *Session) previewHook(c modes.Commit) {
	ev := realtime.Event{SceneID: s.currentScene(), ActionType: c.ActionType, Timestamp: time.Now().UnixMilli()}
	if err := s.bus.Publish(context.Background(), ev); err != nil {
		s.log.Warn("preview publish failed", "error", err)
	}
}

func (s *Session) SceneID() string {
	return s.currentScene()
}

// Serialize snapshots the current scene document.
func (s *Session) Serialize() *domain.CanvasDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Serialize(s.layers.Snapshot(s.currentScene()), s.view.State())
}

// LoadDocument replaces the surface, layer and viewport state from a
// document.
func (s *Session) LoadDocument(ctx context.Context, doc *domain.CanvasDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadDocumentLocked(ctx, doc)
}

// LoadDocumentFromURL fetches a serialized document from a direct
// asset link and loads it.
func (s *Session) LoadDocumentFromURL(ctx context.Context, url string) error {
	doc, err := s.remote.FetchDocument(ctx, url)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadDocumentLocked(ctx, doc)
}

func (s *Session) loadDocumentLocked(ctx context.Context, doc *domain.CanvasDocument) error {
	if err := s.surface.LoadDocument(ctx, doc); err != nil {
		return err
	}
	if doc == nil {
		s.layers.Restore(s.currentScene(), nil)
		s.view.Fit()
		return nil
	}
	s.layers.Restore(s.currentScene(), doc.LayerMetadata)
	s.surface.RestackByLayers(s.layers.OrderedIDs(s.currentScene()))
	if doc.Viewport != nil {
		s.view.RestoreTransform(doc.Viewport)
	} else {
		s.view.Fit()
	}
	return nil
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.Clear()
}

func (s *Session) HasDrawableContent() bool {
	return s.surface.HasDrawableContent()
}

func (s *Session) SetMode(mode modes.Mode, colorOverride string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetMode(mode, colorOverride)
}

func (s *Session) SetColor(hex string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetColor(hex)
}

func (s *Session) Mode() modes.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Mode()
}

// pointer/wheel ingestion

func (s *Session) PointerDown(ev canvas.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.PointerDown(ev)
}

func (s *Session) PointerMove(ev canvas.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.PointerMove(ev)
}

func (s *Session) PointerUp(ev canvas.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.PointerUp(ev)
}

func (s *Session) Wheel(ev canvas.WheelEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.Wheel(ev)
}

func (s *Session) Resize(w, h float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Resize(w, h)
}

// layer operations

func (s *Session) CreateLayer(name string) *domain.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.CreateLayer(s.currentScene(), name)
}

func (s *Session) DeleteLayer(layerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.layers.DeleteLayer(s.currentScene(), layerID); err != nil {
		return err
	}
	removed := s.surface.RemoveLayerObjects(layerID)
	s.log.Debug("layer deleted", "layerId", layerID, "objectsRemoved", removed)
	return nil
}

func (s *Session) SetActiveLayer(layerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.SetActiveLayer(s.currentScene(), layerID)
}

func (s *Session) ToggleLayerVisibility(layerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible, err := s.layers.ToggleVisibility(s.currentScene(), layerID)
	if err != nil {
		return false, err
	}
	s.surface.SetLayerVisibility(layerID, visible)
	return visible, nil
}

func (s *Session) ToggleLayerLock(layerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.layers.ToggleLock(s.currentScene(), layerID)
	if err != nil {
		return false, err
	}
	s.surface.SetLayerLock(layerID, locked)
	return locked, nil
}

func (s *Session) RenameLayer(layerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.Rename(s.currentScene(), layerID, name)
}

func (s *Session) ReorderLayers(draggedID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.layers.Move(s.currentScene(), draggedID, targetID); err != nil {
		return err
	}
	s.surface.RestackByLayers(s.layers.OrderedIDs(s.currentScene()))
	return nil
}

func (s *Session) Layers() []*domain.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.Sorted(s.currentScene())
}

// SaveCurrentSceneLayerState snapshots the layer structure so a later
// RestoreSceneLayerState puts it back without reloading the document.
func (s *Session) SaveCurrentSceneLayerState() *domain.LayerMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.Snapshot(s.currentScene())
}

func (s *Session) RestoreSceneLayerState(meta *domain.LayerMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers.Restore(s.currentScene(), meta)
	s.surface.RestackByLayers(s.layers.OrderedIDs(s.currentScene()))
}

// persistence operations

func (s *Session) ChangeSaveMode(mode domain.SaveMode) {
	s.saver.ChangeSaveMode(mode)
}

func (s *Session) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	doc := s.serializeLocked()
	s.mu.Unlock()
	return s.saver.SaveImmediately(ctx, doc, nil)
}

func (s *Session) SaveStatus() autosave.Status {
	return s.saver.Status()
}

// Undo steps the current scene back one snapshot and loads it.
func (s *Session) Undo(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.hist.Undo(ctx, s.currentScene())
	if !ok {
		return false
	}
	if err := s.loadDocumentLocked(ctx, doc); err != nil {
		s.log.Warn("undo load failed", "error", err)
		return false
	}
	s.saver.TriggerAutoSave(map[string]any{"actionType": "undo"})
	return true
}

func (s *Session) Redo(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.hist.Redo(ctx, s.currentScene())
	if !ok {
		return false
	}
	if err := s.loadDocumentLocked(ctx, doc); err != nil {
		s.log.Warn("redo load failed", "error", err)
		return false
	}
	s.saver.TriggerAutoSave(map[string]any{"actionType": "redo"})
	return true
}

func (s *Session) CanUndo() bool { return s.hist.CanUndo(s.SceneID()) }
func (s *Session) CanRedo() bool { return s.hist.CanRedo(s.SceneID()) }

func (s *Session) HistoryStats() history.Stats { return s.hist.Stats() }

// SwitchScene persists the outgoing scene synchronously before any of
// the incoming scene's state loads, so a crash mid-switch never loses
// the outgoing edits. Pending debounced work is cancelled.
func (s *Session) SwitchScene(ctx context.Context, sceneID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentScene() == sceneID {
		return nil
	}

	if s.currentScene() != "" {
		if err := s.saver.SaveImmediately(ctx, s.serializeLocked(), map[string]any{"actionType": "sceneSwitch"}); err != nil {
			s.log.Warn("outgoing scene save failed", "sceneId", s.currentScene(), "error", err)
		}
	}
	s.saver.Cancel()

	s.setScene(sceneID)
	s.saver.SetScene(sceneID)
	s.surface.Clear()

	doc, err := s.loadSceneDocumentLocked(ctx, sceneID)
	if err != nil {
		return err
	}
	if err := s.loadDocumentLocked(ctx, doc); err != nil {
		return err
	}
	s.log.Info("scene switched", "sceneId", sceneID)
	return nil
}

// loadSceneDocumentLocked prefers the local store (freshest autosave),
// falling back to the remote document under the scene's save mode.
func (s *Session) loadSceneDocumentLocked(ctx context.Context, sceneID string) (*domain.CanvasDocument, error) {
	doc, err := s.local.Get(ctx, sceneID)
	if err != nil {
		s.log.Warn("local scene load failed", "sceneId", sceneID, "error", err)
	}
	if doc != nil {
		return doc, nil
	}

	mode := domain.SaveModeOriginals
	if scene, err := s.remote.GetScene(ctx, sceneID); err == nil && scene != nil {
		mode = scene.SaveMode()
	}
	s.saver.ChangeSaveMode(mode)

	doc, err = s.remote.LoadDocument(ctx, sceneID, mode)
	if err != nil {
		return nil, fmt.Errorf("load scene %q: %w", sceneID, err)
	}
	return doc, nil
}

// Convert renders the drawn content, submits it to the conversion
// service and replaces the scene with the resulting dot cloud. The
// history baseline resets and the save mode flips to processed.
func (s *Session) Convert(ctx context.Context, targetDots int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.surface.HasDrawableContent() {
		return fmt.Errorf("nothing to convert")
	}
	if targetDots <= 0 {
		targetDots = s.policy.TargetDots
	}

	var payload []byte
	contentType := "image/png"
	if s.surface.DotsOnly() {
		// discrete content converts from exact dot geometry, not pixels
		payload = s.surface.ExportSVGDots()
		contentType = "image/svg+xml"
	} else {
		png, err := s.surface.ExportDrawnOnly(1)
		if err != nil {
			return fmt.Errorf("render conversion input: %w", err)
		}
		payload = png
	}
	doc, err := s.remote.Convert(ctx, s.currentScene(), targetDots, payload, contentType)
	if err != nil {
		return err
	}
	for _, o := range doc.Objects {
		if o.Type == domain.ObjectDot {
			o.Origin = domain.OriginConverted
		}
	}
	if err := s.loadDocumentLocked(ctx, doc); err != nil {
		return fmt.Errorf("load conversion result: %w", err)
	}

	final := s.surface.Serialize(s.layers.Snapshot(s.currentScene()), s.view.State())
	if err := s.hist.ClearHistoryAndSetNew(ctx, s.currentScene(), "converted", final); err != nil {
		s.log.Warn("history baseline reset failed", "error", err)
	}
	s.saver.ChangeSaveMode(domain.SaveModeProcessed)
	s.saver.TriggerAutoSave(map[string]any{"actionType": "converted"})
	return nil
}

// ExportPNG renders the full scene at identity viewport.
func (s *Session) ExportPNG() ([]byte, error) {
	return s.surface.ExportPNG(1)
}

// UploadThumbnail renders and pushes a scene thumbnail.
func (s *Session) UploadThumbnail(ctx context.Context, maxW, maxH int) error {
	png, err := s.surface.Thumbnail(maxW, maxH)
	if err != nil {
		return fmt.Errorf("render thumbnail: %w", err)
	}
	return s.remote.UploadThumbnail(ctx, s.SceneID(), png)
}

// Close cancels every pending timer and detaches all handlers.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saver.Cancel()
	s.hist.Close()
	s.engine.Detach()
}
