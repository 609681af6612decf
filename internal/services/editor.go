// Package services composes the editor: the EditorService owns open
// sessions, each session being one scene's full editing state.
package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/skysketch/editor-backend/internal/app"
	"github.com/skysketch/editor-backend/internal/clients/showapi"
	"github.com/skysketch/editor-backend/internal/platform/logger"
	"github.com/skysketch/editor-backend/internal/realtime"
	"github.com/skysketch/editor-backend/internal/store"
)

var ErrSessionNotFound = fmt.Errorf("session not found")

type EditorService struct {
	mu       sync.Mutex
	log      *logger.Logger
	policy   app.Policy
	local    store.Store
	remote   showapi.Client
	bus      realtime.Bus
	sessions map[string]*Session
}

func NewEditorService(baseLog *logger.Logger, policy app.Policy, local store.Store, remote showapi.Client, bus realtime.Bus) *EditorService {
	return &EditorService{
		log:      baseLog.With("service", "EditorService"),
		policy:   policy,
		local:    local,
		remote:   remote,
		bus:      bus,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session and loads its initial scene.
func (e *EditorService) Open(ctx context.Context, projectID, sceneID string) (*Session, error) {
	s := newSession(uuid.NewString(), projectID, e.log, e.policy, e.local, e.remote, e.bus)
	if sceneID != "" {
		if err := s.SwitchScene(ctx, sceneID); err != nil {
			s.Close()
			return nil, err
		}
	}
	e.mu.Lock()
	e.sessions[s.ID] = s
	e.mu.Unlock()
	e.log.Info("session opened", "sessionId", s.ID, "projectId", projectID, "sceneId", sceneID)
	return s, nil
}

func (e *EditorService) Get(id string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close persists the session's scene and tears it down.
func (e *EditorService) Close(ctx context.Context, id string) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if s.SceneID() != "" {
		if err := s.SaveNow(ctx); err != nil {
			e.log.Warn("final session save failed", "sessionId", id, "error", err)
		}
	}
	s.Close()
	e.log.Info("session closed", "sessionId", id)
	return nil
}

// CloseAll tears down every open session, used on shutdown.
func (e *EditorService) CloseAll(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		_ = e.Close(ctx, id)
	}
}
