package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/platform/logger"
)

type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]*domain.CanvasDocument
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*domain.CanvasDocument)}
}

func (f *fakeStore) Put(ctx context.Context, key, sceneID string, doc *domain.CanvasDocument, metadata map[string]any, isHistory bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[key] = doc
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (*domain.CanvasDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[key], nil
}

func (f *fakeStore) DeleteMany(ctx context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.docs, k)
		f.deleted = append(f.deleted, k)
	}
	return nil
}

func (f *fakeStore) deletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.CleanupDelay = 10 * time.Millisecond
	p.CleanupItemPause = time.Millisecond
	return p
}

func doc(ts int64) *domain.CanvasDocument {
	return &domain.CanvasDocument{Version: domain.DocumentVersion, Timestamp: ts}
}

func newTestManager(pol Policy) (*Manager, *fakeStore) {
	fs := newFakeStore()
	return NewManager(logger.NewNop(), fs, pol), fs
}

func TestDedupWindowCoalesces(t *testing.T) {
	m, _ := newTestManager(testPolicy())
	ctx := context.Background()
	if !m.SaveToHistory(ctx, "s1", "dotsPlaced", doc(1)) {
		t.Fatalf("first save should record")
	}
	if m.SaveToHistory(ctx, "s1", "dotsPlaced", doc(2)) {
		t.Fatalf("save inside the dedup window should coalesce")
	}
	// a different action type is not deduped
	if !m.SaveToHistory(ctx, "s1", "pathDrawn", doc(3)) {
		t.Fatalf("different action type should record")
	}
	// a different scene is not deduped
	if !m.SaveToHistory(ctx, "s2", "dotsPlaced", doc(4)) {
		t.Fatalf("different scene should record")
	}
}

func TestFailedUndoLeavesStacksIntact(t *testing.T) {
	pol := testPolicy()
	pol.DedupWindow = 0
	m, fs := newTestManager(pol)
	ctx := context.Background()
	m.SaveToHistory(ctx, "s1", "a", doc(1))
	m.SaveToHistory(ctx, "s1", "b", doc(2))

	// make the undo target unloadable
	fs.mu.Lock()
	for k := range fs.docs {
		delete(fs.docs, k)
	}
	fs.mu.Unlock()

	if _, ok := m.Undo(ctx, "s1"); ok {
		t.Fatalf("undo should fail when the snapshot cannot load")
	}
	if m.CanRedo("s1") {
		t.Fatalf("failed undo left a redo entry behind")
	}
	if !m.CanUndo("s1") {
		t.Fatalf("failed undo consumed the undo entry")
	}
}

func TestFailedRedoLeavesStacksIntact(t *testing.T) {
	pol := testPolicy()
	pol.DedupWindow = 0
	m, fs := newTestManager(pol)
	ctx := context.Background()
	m.SaveToHistory(ctx, "s1", "a", doc(1))
	m.SaveToHistory(ctx, "s1", "b", doc(2))
	if _, ok := m.Undo(ctx, "s1"); !ok {
		t.Fatalf("undo failed")
	}

	fs.mu.Lock()
	for k := range fs.docs {
		delete(fs.docs, k)
	}
	fs.mu.Unlock()

	if _, ok := m.Redo(ctx, "s1"); ok {
		t.Fatalf("redo should fail when the snapshot cannot load")
	}
	if !m.CanRedo("s1") {
		t.Fatalf("failed redo consumed the redo entry")
	}
}

func TestEvictionPrunesDedupStamps(t *testing.T) {
	m, _ := newTestManager(testPolicy())
	ctx := context.Background()
	m.SaveToHistory(ctx, "s1", "dotsPlaced", doc(1))
	m.ForgetScene("s1")
	// a fresh save right after the forget must not coalesce against a
	// stamp from the dropped scene
	if !m.SaveToHistory(ctx, "s1", "dotsPlaced", doc(2)) {
		t.Fatalf("dedup stamps should drop with the scene")
	}
	m.ForgetScene("s1")
	m.mu.Lock()
	n := len(m.lastSave)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("stamps should be pruned on forget, %d left", n)
	}
}

func TestUndoRedoInverse(t *testing.T) {
	pol := testPolicy()
	pol.DedupWindow = 0
	m, _ := newTestManager(pol)
	ctx := context.Background()

	m.SaveToHistory(ctx, "s1", "a", doc(1))
	m.SaveToHistory(ctx, "s1", "b", doc(2))
	m.SaveToHistory(ctx, "s1", "c", doc(3))

	got, ok := m.Undo(ctx, "s1")
	if !ok || got.Timestamp != 2 {
		t.Fatalf("first undo should yield state 2, got %+v ok=%v", got, ok)
	}
	got, ok = m.Undo(ctx, "s1")
	if !ok || got.Timestamp != 1 {
		t.Fatalf("second undo should yield state 1, got %+v ok=%v", got, ok)
	}
	if _, ok := m.Undo(ctx, "s1"); ok {
		t.Fatalf("undo past the oldest state should refuse")
	}

	got, ok = m.Redo(ctx, "s1")
	if !ok || got.Timestamp != 2 {
		t.Fatalf("redo should yield state 2, got %+v ok=%v", got, ok)
	}
	got, ok = m.Redo(ctx, "s1")
	if !ok || got.Timestamp != 3 {
		t.Fatalf("redo should yield state 3, got %+v ok=%v", got, ok)
	}
	if _, ok := m.Redo(ctx, "s1"); ok {
		t.Fatalf("redo past the newest state should refuse")
	}
}

func TestNewEditClearsRedo(t *testing.T) {
	pol := testPolicy()
	pol.DedupWindow = 0
	m, _ := newTestManager(pol)
	ctx := context.Background()

	m.SaveToHistory(ctx, "s1", "a", doc(1))
	m.SaveToHistory(ctx, "s1", "b", doc(2))
	if _, ok := m.Undo(ctx, "s1"); !ok {
		t.Fatalf("undo failed")
	}
	if !m.CanRedo("s1") {
		t.Fatalf("redo should be available after undo")
	}
	m.SaveToHistory(ctx, "s1", "c", doc(3))
	if m.CanRedo("s1") {
		t.Fatalf("a fresh edit must clear the redo branch")
	}
}

func TestUndoIsPerScene(t *testing.T) {
	pol := testPolicy()
	pol.DedupWindow = 0
	m, _ := newTestManager(pol)
	ctx := context.Background()

	m.SaveToHistory(ctx, "s1", "a", doc(11))
	m.SaveToHistory(ctx, "s2", "a", doc(21))
	m.SaveToHistory(ctx, "s1", "b", doc(12))
	m.SaveToHistory(ctx, "s2", "b", doc(22))

	got, ok := m.Undo(ctx, "s1")
	if !ok || got.Timestamp != 11 {
		t.Fatalf("scene 1 undo should yield its own state, got %+v", got)
	}
	got, ok = m.Undo(ctx, "s2")
	if !ok || got.Timestamp != 21 {
		t.Fatalf("scene 2 undo should yield its own state, got %+v", got)
	}
}

func TestSceneEvictionBound(t *testing.T) {
	pol := testPolicy()
	pol.DedupWindow = 0
	pol.MaxSceneHistories = 3
	m, fs := newTestManager(pol)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		scene := string(rune('a' + i))
		m.SaveToHistory(ctx, scene, "edit", doc(int64(i)))
	}
	st := m.Stats()
	if st.ScenesHeld != 3 {
		t.Fatalf("expected 3 scenes retained, got %d", st.ScenesHeld)
	}
	// the two oldest scenes were evicted and can no longer undo
	if m.CanUndo("a") || m.CanRedo("a") {
		t.Fatalf("evicted scene should have no history")
	}

	time.Sleep(100 * time.Millisecond)
	if fs.deletedCount() == 0 {
		t.Fatalf("evicted snapshots should be deleted in the background")
	}
}

func TestDepthTrim(t *testing.T) {
	pol := testPolicy()
	pol.DedupWindow = 0
	pol.MaxDepth = 5
	m, _ := newTestManager(pol)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		m.SaveToHistory(ctx, "s1", "edit", doc(int64(i)))
	}
	if st := m.Stats(); st.UndoDepth != 5 {
		t.Fatalf("undo depth should trim to 5, got %d", st.UndoDepth)
	}
}

func TestClearHistoryAndSetNew(t *testing.T) {
	pol := testPolicy()
	pol.DedupWindow = 0
	m, fs := newTestManager(pol)
	ctx := context.Background()

	m.SaveToHistory(ctx, "s1", "a", doc(1))
	m.SaveToHistory(ctx, "s1", "b", doc(2))
	if err := m.ClearHistoryAndSetNew(ctx, "s1", "converted", doc(99)); err != nil {
		t.Fatalf("baseline reset failed: %v", err)
	}
	if m.CanUndo("s1") || m.CanRedo("s1") {
		t.Fatalf("baseline reset should leave no undo/redo")
	}
	// the next edit undoes back to the baseline
	m.SaveToHistory(ctx, "s1", "c", doc(100))
	got, ok := m.Undo(ctx, "s1")
	if !ok || got.Timestamp != 99 {
		t.Fatalf("undo after reset should yield the baseline, got %+v", got)
	}

	time.Sleep(100 * time.Millisecond)
	if fs.deletedCount() == 0 {
		t.Fatalf("old snapshots should be deleted in the background")
	}
}

func TestCleanupDebounces(t *testing.T) {
	pol := testPolicy()
	pol.DedupWindow = 0
	pol.MaxDepth = 1
	pol.CleanupDelay = 50 * time.Millisecond
	m, fs := newTestManager(pol)
	ctx := context.Background()

	// burst of edits keeps re-arming the cleanup timer
	for i := 0; i < 5; i++ {
		m.SaveToHistory(ctx, "s1", "edit", doc(int64(i)))
		time.Sleep(5 * time.Millisecond)
	}
	if fs.deletedCount() != 0 {
		t.Fatalf("cleanup should not run during the burst")
	}
	time.Sleep(120 * time.Millisecond)
	if fs.deletedCount() == 0 {
		t.Fatalf("cleanup should run after the burst settles")
	}
}
