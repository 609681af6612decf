// Package history implements cross-scene undo/redo over persisted
// snapshots. Snapshot bodies live in the durable store under synthetic
// history keys; the manager keeps only ordered references plus a
// per-scene current pointer.
package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/platform/logger"
	"github.com/skysketch/editor-backend/internal/platform/sched"
)

// SnapshotStore is the slice of the durable store the manager needs.
type SnapshotStore interface {
	Put(ctx context.Context, key, sceneID string, doc *domain.CanvasDocument, metadata map[string]any, isHistory bool) error
	Get(ctx context.Context, key string) (*domain.CanvasDocument, error)
	DeleteMany(ctx context.Context, keys []string) error
}

type Policy struct {
	MaxSceneHistories int           // scenes retaining history before LRU eviction
	MaxDepth          int           // global undo depth
	DedupWindow       time.Duration // same scene+action within this window coalesces
	CleanupDelay      time.Duration // debounce before background deletion runs
	CleanupItemPause  time.Duration // pause between individual deletions
}

func DefaultPolicy() Policy {
	return Policy{
		MaxSceneHistories: 10,
		MaxDepth:          50,
		DedupWindow:       100 * time.Millisecond,
		CleanupDelay:      2 * time.Second,
		CleanupItemPause:  10 * time.Millisecond,
	}
}

type Stats struct {
	UndoDepth   int `json:"undoDepth"`
	RedoDepth   int `json:"redoDepth"`
	ScenesHeld  int `json:"scenesHeld"`
	PendingDrop int `json:"pendingDrop"`
}

// Manager owns undo/redo state for every scene in one session.
type Manager struct {
	mu    sync.Mutex
	log   *logger.Logger
	store SnapshotStore
	pol   Policy

	undo    []domain.SnapshotRef
	redo    map[string][]domain.SnapshotRef
	current map[string]domain.SnapshotRef

	// sceneOrder tracks least-recently-touched scenes for eviction
	sceneOrder []string

	lastSave map[string]time.Time // scene+actionType dedup stamps

	busy bool

	cleanup     *sched.Task
	pendingDrop []string
}

func NewManager(log *logger.Logger, store SnapshotStore, pol Policy) *Manager {
	return &Manager{
		log:      log.With("service", "HistoryManager"),
		store:    store,
		pol:      pol,
		redo:     make(map[string][]domain.SnapshotRef),
		current:  make(map[string]domain.SnapshotRef),
		lastSave: make(map[string]time.Time),
		cleanup:  sched.New(pol.CleanupDelay),
	}
}

// SaveToHistory records a committed mutation. Saves of the same
// (scene, actionType) inside the dedup window coalesce silently into
// the earlier save. Reports whether a snapshot was recorded.
func (m *Manager) SaveToHistory(ctx context.Context, sceneID, actionType string, doc *domain.CanvasDocument) bool {
	m.mu.Lock()
	dedupKey := sceneID + "\x00" + actionType
	now := time.Now()
	if last, ok := m.lastSave[dedupKey]; ok && now.Sub(last) < m.pol.DedupWindow {
		m.mu.Unlock()
		return false
	}
	m.lastSave[dedupKey] = now
	m.mu.Unlock()

	key := domain.NewHistoryKey(sceneID)
	if err := m.store.Put(ctx, key, sceneID, doc, map[string]any{"actionType": actionType}, true); err != nil {
		m.log.Warn("history snapshot persist failed", "sceneId", sceneID, "error", err)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ref := domain.SnapshotRef{HistoryKey: key, SceneID: sceneID, ActionType: actionType, Timestamp: now}
	if cur, ok := m.current[sceneID]; ok {
		m.undo = append(m.undo, cur)
	}
	m.current[sceneID] = ref
	// a fresh edit invalidates the redo branch for this scene
	if stale := m.redo[sceneID]; len(stale) > 0 {
		for _, r := range stale {
			m.pendingDrop = append(m.pendingDrop, r.HistoryKey)
		}
		delete(m.redo, sceneID)
	}
	m.touchSceneLocked(sceneID)
	m.evictScenesLocked()
	m.trimDepthLocked()
	m.scheduleCleanupLocked()
	return true
}

// Undo steps the scene back one snapshot and returns the document to
// load. Returns (nil, false) when nothing to undo or another
// undo/redo is still loading.
func (m *Manager) Undo(ctx context.Context, sceneID string) (*domain.CanvasDocument, bool) {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return nil, false
	}
	idx := m.lastUndoIndexLocked(sceneID)
	if idx < 0 {
		m.mu.Unlock()
		return nil, false
	}
	target := m.undo[idx]
	m.busy = true
	m.mu.Unlock()

	// load first; the stacks move only once the snapshot is in hand, so
	// a store failure leaves manager state matching the surface
	doc, err := m.store.Get(ctx, target.HistoryKey)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if err != nil || doc == nil {
		m.log.Warn("undo snapshot load failed", "key", target.HistoryKey, "error", err)
		return nil, false
	}
	for i := len(m.undo) - 1; i >= 0; i-- {
		if m.undo[i].HistoryKey != target.HistoryKey {
			continue
		}
		m.undo = append(m.undo[:i], m.undo[i+1:]...)
		if cur, ok := m.current[sceneID]; ok {
			m.redo[sceneID] = append(m.redo[sceneID], cur)
		}
		m.current[sceneID] = target
		return doc, true
	}
	// the entry was trimmed or evicted while the load ran
	return nil, false
}

// Redo steps the scene forward one snapshot. Same guard semantics as
// Undo.
func (m *Manager) Redo(ctx context.Context, sceneID string) (*domain.CanvasDocument, bool) {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return nil, false
	}
	stack := m.redo[sceneID]
	if len(stack) == 0 {
		m.mu.Unlock()
		return nil, false
	}
	target := stack[len(stack)-1]
	m.busy = true
	m.mu.Unlock()

	doc, err := m.store.Get(ctx, target.HistoryKey)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if err != nil || doc == nil {
		m.log.Warn("redo snapshot load failed", "key", target.HistoryKey, "error", err)
		return nil, false
	}
	stack = m.redo[sceneID]
	if len(stack) == 0 || stack[len(stack)-1].HistoryKey != target.HistoryKey {
		return nil, false
	}
	m.redo[sceneID] = stack[:len(stack)-1]
	if cur, ok := m.current[sceneID]; ok {
		m.undo = append(m.undo, cur)
	}
	m.current[sceneID] = target
	return doc, true
}

func (m *Manager) CanUndo(sceneID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUndoIndexLocked(sceneID) >= 0
}

func (m *Manager) CanRedo(sceneID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[sceneID]) > 0
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	redoDepth := 0
	for _, s := range m.redo {
		redoDepth += len(s)
	}
	return Stats{
		UndoDepth:   len(m.undo),
		RedoDepth:   redoDepth,
		ScenesHeld:  len(m.sceneOrder),
		PendingDrop: len(m.pendingDrop),
	}
}

// ClearHistoryAndSetNew wipes the scene's undo/redo state, records doc
// as the new baseline, and schedules the old snapshots for background
// deletion. Used after conversion replaces the scene wholesale.
func (m *Manager) ClearHistoryAndSetNew(ctx context.Context, sceneID, actionType string, doc *domain.CanvasDocument) error {
	key := domain.NewHistoryKey(sceneID)
	if err := m.store.Put(ctx, key, sceneID, doc, map[string]any{"actionType": actionType}, true); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropSceneRefsLocked(sceneID)
	m.current[sceneID] = domain.SnapshotRef{HistoryKey: key, SceneID: sceneID, ActionType: actionType, Timestamp: time.Now()}
	m.touchSceneLocked(sceneID)
	m.scheduleCleanupLocked()
	return nil
}

// ForgetScene drops all history for a scene, scheduling snapshot
// deletion. Called when a scene leaves the session entirely.
func (m *Manager) ForgetScene(sceneID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropSceneRefsLocked(sceneID)
	if cur, ok := m.current[sceneID]; ok {
		m.pendingDrop = append(m.pendingDrop, cur.HistoryKey)
		delete(m.current, sceneID)
	}
	for i, id := range m.sceneOrder {
		if id == sceneID {
			m.sceneOrder = append(m.sceneOrder[:i], m.sceneOrder[i+1:]...)
			break
		}
	}
	m.scheduleCleanupLocked()
}

// Close cancels pending cleanup work.
func (m *Manager) Close() {
	m.cleanup.Cancel()
}

func (m *Manager) lastUndoIndexLocked(sceneID string) int {
	for i := len(m.undo) - 1; i >= 0; i-- {
		if m.undo[i].SceneID == sceneID {
			return i
		}
	}
	return -1
}

// dropSceneRefsLocked moves every undo/redo ref of the scene onto the
// pending-drop list and clears its dedup stamps. The current pointer
// is left alone.
func (m *Manager) dropSceneRefsLocked(sceneID string) {
	kept := m.undo[:0]
	for _, r := range m.undo {
		if r.SceneID == sceneID {
			m.pendingDrop = append(m.pendingDrop, r.HistoryKey)
			continue
		}
		kept = append(kept, r)
	}
	m.undo = kept
	for _, r := range m.redo[sceneID] {
		m.pendingDrop = append(m.pendingDrop, r.HistoryKey)
	}
	delete(m.redo, sceneID)
	prefix := sceneID + "\x00"
	for k := range m.lastSave {
		if strings.HasPrefix(k, prefix) {
			delete(m.lastSave, k)
		}
	}
}

func (m *Manager) touchSceneLocked(sceneID string) {
	for i, id := range m.sceneOrder {
		if id == sceneID {
			m.sceneOrder = append(m.sceneOrder[:i], m.sceneOrder[i+1:]...)
			break
		}
	}
	m.sceneOrder = append(m.sceneOrder, sceneID)
}

// evictScenesLocked enforces the scene-count cap by evicting the least
// recently touched scene's entire history.
func (m *Manager) evictScenesLocked() {
	for len(m.sceneOrder) > m.pol.MaxSceneHistories {
		victim := m.sceneOrder[0]
		m.sceneOrder = m.sceneOrder[1:]
		m.dropSceneRefsLocked(victim)
		if cur, ok := m.current[victim]; ok {
			m.pendingDrop = append(m.pendingDrop, cur.HistoryKey)
			delete(m.current, victim)
		}
		m.log.Debug("scene history evicted", "sceneId", victim)
	}
}

// trimDepthLocked enforces the global undo depth by dropping the
// oldest entries.
func (m *Manager) trimDepthLocked() {
	for len(m.undo) > m.pol.MaxDepth {
		m.pendingDrop = append(m.pendingDrop, m.undo[0].HistoryKey)
		m.undo = m.undo[1:]
	}
}

// scheduleCleanupLocked (re-)debounces the background deletion pass.
// Bursts of edits collapse into one pass; deletions pause briefly
// between items so the store is never hammered.
func (m *Manager) scheduleCleanupLocked() {
	if len(m.pendingDrop) == 0 {
		return
	}
	m.cleanup.Schedule(m.runCleanup)
}

func (m *Manager) runCleanup() {
	m.mu.Lock()
	keys := m.pendingDrop
	m.pendingDrop = nil
	m.mu.Unlock()
	if len(keys) == 0 {
		return
	}
	ctx := context.Background()
	for _, key := range keys {
		if err := m.store.DeleteMany(ctx, []string{key}); err != nil {
			m.log.Warn("history cleanup delete failed", "key", key, "error", err)
		}
		time.Sleep(m.pol.CleanupItemPause)
	}
	m.log.Debug("history cleanup pass done", "removed", len(keys))
}
