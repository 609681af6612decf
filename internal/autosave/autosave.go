// Package autosave implements the two-stage persistence pipeline: a
// debounced local store write, then a coarser debounced push to the
// remote show API. The two timers are independent and both cancel on
// save-mode change, scene switch and session close.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/platform/logger"
	"github.com/skysketch/editor-backend/internal/platform/sched"
)

// LocalStore is the slice of the durable store the pipeline writes to.
type LocalStore interface {
	Put(ctx context.Context, key, sceneID string, doc *domain.CanvasDocument, metadata map[string]any, isHistory bool) error
}

// RemoteSaver pushes a document to the show API under a save mode.
type RemoteSaver interface {
	SaveDocument(ctx context.Context, sceneID string, mode domain.SaveMode, doc *domain.CanvasDocument) error
}

// Serializer produces the current document on demand, so debounced
// runs capture the state at fire time rather than at schedule time.
type Serializer func() *domain.CanvasDocument

type Status struct {
	LocalPending  bool       `json:"localPending"`
	SyncPending   bool       `json:"syncPending"`
	SyncInFlight  bool       `json:"syncInFlight"`
	LastLocalSave *time.Time `json:"lastLocalSave,omitempty"`
	LastSync      *time.Time `json:"lastSync,omitempty"`
	LastSyncError string     `json:"lastSyncError,omitempty"`
	SaveMode      string     `json:"saveMode"`
}

type Pipeline struct {
	mu        sync.Mutex
	log       *logger.Logger
	store     LocalStore
	remote    RemoteSaver
	serialize Serializer

	sceneID  string
	saveMode domain.SaveMode

	localTask *sched.Task
	syncTask  *sched.Task

	syncInFlight  bool
	lastLocalSave *time.Time
	lastSync      *time.Time
	lastSyncErr   string
}

func NewPipeline(log *logger.Logger, store LocalStore, remote RemoteSaver, serialize Serializer, localDelay, syncDelay time.Duration) *Pipeline {
	return &Pipeline{
		log:       log.With("service", "AutosavePipeline"),
		store:     store,
		remote:    remote,
		serialize: serialize,
		saveMode:  domain.SaveModeOriginals,
		localTask: sched.New(localDelay),
		syncTask:  sched.New(syncDelay),
	}
}

// SetScene rebinds the pipeline to a scene, cancelling any pending
// work from the previous one.
func (p *Pipeline) SetScene(sceneID string) {
	p.localTask.Cancel()
	p.syncTask.Cancel()
	p.mu.Lock()
	p.sceneID = sceneID
	p.mu.Unlock()
}

func (p *Pipeline) SaveMode() domain.SaveMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saveMode
}

// ChangeSaveMode cancels both pending timers synchronously, then
// switches the mode. A stale timer must never fire with the old mode.
func (p *Pipeline) ChangeSaveMode(mode domain.SaveMode) {
	p.localTask.Cancel()
	p.syncTask.Cancel()
	p.mu.Lock()
	p.saveMode = mode
	p.mu.Unlock()
	p.log.Info("save mode changed", "mode", string(mode))
}

// TriggerAutoSave debounces a local save. Each call resets the timer;
// only the last burst state lands. Completion of the local save arms
// the remote sync with the save mode current at that moment.
func (p *Pipeline) TriggerAutoSave(metadata map[string]any) {
	p.localTask.Schedule(func() {
		p.runLocalSave(metadata)
	})
}

func (p *Pipeline) runLocalSave(metadata map[string]any) {
	p.mu.Lock()
	sceneID := p.sceneID
	mode := p.saveMode
	p.mu.Unlock()
	if sceneID == "" {
		return
	}
	doc := p.serialize()
	if doc == nil {
		return
	}
	if err := p.store.Put(context.Background(), sceneID, sceneID, doc, metadata, false); err != nil {
		p.log.Warn("local autosave failed", "sceneId", sceneID, "error", err)
		return
	}
	now := time.Now()
	p.mu.Lock()
	p.lastLocalSave = &now
	p.mu.Unlock()
	// mode is captured now; a mode change after this point cancels the
	// timer rather than redirecting it
	p.syncTask.Schedule(func() {
		p.runScheduledSync(mode)
	})
}

// runScheduledSync serializes at fire time and pushes under the scene
// the pipeline is bound to right now.
func (p *Pipeline) runScheduledSync(mode domain.SaveMode) {
	p.mu.Lock()
	sceneID := p.sceneID
	p.mu.Unlock()
	if sceneID == "" {
		return
	}
	doc := p.serialize()
	if doc == nil {
		return
	}
	p.runSync(sceneID, mode, doc)
}

// runSync pushes one document remotely. Overlapping runs drop rather
// than queue.
func (p *Pipeline) runSync(sceneID string, mode domain.SaveMode, doc *domain.CanvasDocument) {
	p.mu.Lock()
	if p.syncInFlight {
		p.mu.Unlock()
		p.log.Debug("sync already in flight, dropping")
		return
	}
	p.syncInFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.syncInFlight = false
		p.mu.Unlock()
	}()

	err := p.remote.SaveDocument(context.Background(), sceneID, mode, doc)
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		// retryable: the next autosave cycle will arm another sync
		p.lastSyncErr = err.Error()
		p.log.Warn("remote sync failed", "sceneId", sceneID, "mode", string(mode), "error", err)
		return
	}
	p.lastSync = &now
	p.lastSyncErr = ""
}

// SaveImmediately writes the given document synchronously and fires
// the remote push in the background without waiting. The caller hands
// in the document so this stays safe to invoke while it already holds
// the lock the pipeline's serializer would need. Pending debounced
// work is cancelled since this supersedes it.
func (p *Pipeline) SaveImmediately(ctx context.Context, doc *domain.CanvasDocument, metadata map[string]any) error {
	p.localTask.Cancel()
	p.syncTask.Cancel()

	p.mu.Lock()
	sceneID := p.sceneID
	mode := p.saveMode
	p.mu.Unlock()
	if sceneID == "" || doc == nil {
		return nil
	}
	if err := p.store.Put(ctx, sceneID, sceneID, doc, metadata, false); err != nil {
		return err
	}
	now := time.Now()
	p.mu.Lock()
	p.lastLocalSave = &now
	p.mu.Unlock()

	go p.runSync(sceneID, mode, doc)
	return nil
}

// Cancel stops both pending timers. Reports whether anything was
// actually pending.
func (p *Pipeline) Cancel() bool {
	local := p.localTask.Cancel()
	sync := p.syncTask.Cancel()
	return local || sync
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		LocalPending:  p.localTask.Pending(),
		SyncPending:   p.syncTask.Pending(),
		SyncInFlight:  p.syncInFlight,
		LastLocalSave: p.lastLocalSave,
		LastSync:      p.lastSync,
		LastSyncError: p.lastSyncErr,
		SaveMode:      string(p.saveMode),
	}
}
