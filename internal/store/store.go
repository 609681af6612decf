// Package store is the durable local persistence tier: a gorm-backed
// key-value table of serialized canvas payloads fronted by a small
// in-memory LRU. Cache eviction never deletes durable rows.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/datatypes"

	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/platform/dbctx"
	"github.com/skysketch/editor-backend/internal/platform/logger"
)

const DefaultCacheSize = 5

// Store exposes the persistence operations the history manager and
// autosave pipeline need. Narrow on purpose so tests can fake it.
type Store interface {
	Put(ctx context.Context, key, sceneID string, doc *domain.CanvasDocument, metadata map[string]any, isHistory bool) error
	Get(ctx context.Context, key string) (*domain.CanvasDocument, error)
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
	HistoryKeys(ctx context.Context, sceneID string) ([]string, error)
	List(ctx context.Context) ([]*domain.CanvasState, error)
	CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

type localStore struct {
	repo  CanvasStateRepo
	cache *lru.Cache[string, *domain.CanvasDocument]
	log   *logger.Logger
}

func New(repo CanvasStateRepo, cacheSize int, baseLog *logger.Logger) (Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *domain.CanvasDocument](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("init store cache: %w", err)
	}
	return &localStore{
		repo:  repo,
		cache: cache,
		log:   baseLog.With("service", "CanvasStore"),
	}, nil
}

func (s *localStore) Put(ctx context.Context, key, sceneID string, doc *domain.CanvasDocument, metadata map[string]any, isHistory bool) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal canvas document: %w", err)
	}
	var meta datatypes.JSON
	if metadata != nil {
		meta, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}
	state := &domain.CanvasState{
		Key:         key,
		SceneID:     sceneID,
		Data:        data,
		Metadata:    meta,
		ObjectCount: len(doc.Objects),
		IsHistory:   isHistory,
		SavedAt:     time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.repo.Upsert(dbctx.New(ctx), state); err != nil {
		return fmt.Errorf("persist canvas state %q: %w", key, err)
	}
	s.cache.Add(key, doc)
	return nil
}

func (s *localStore) Get(ctx context.Context, key string) (*domain.CanvasDocument, error) {
	if doc, ok := s.cache.Get(key); ok {
		return doc, nil
	}
	state, err := s.repo.GetByKey(dbctx.New(ctx), key)
	if err != nil {
		return nil, fmt.Errorf("load canvas state %q: %w", key, err)
	}
	if state == nil {
		return nil, nil
	}
	var doc domain.CanvasDocument
	if err := json.Unmarshal(state.Data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal canvas state %q: %w", key, err)
	}
	s.cache.Add(key, &doc)
	return &doc, nil
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	s.cache.Remove(key)
	if err := s.repo.DeleteByKey(dbctx.New(ctx), key); err != nil {
		return fmt.Errorf("delete canvas state %q: %w", key, err)
	}
	return nil
}

func (s *localStore) DeleteMany(ctx context.Context, keys []string) error {
	for _, k := range keys {
		s.cache.Remove(k)
	}
	if err := s.repo.DeleteByKeys(dbctx.New(ctx), keys); err != nil {
		return fmt.Errorf("delete canvas states: %w", err)
	}
	return nil
}

func (s *localStore) HistoryKeys(ctx context.Context, sceneID string) ([]string, error) {
	keys, err := s.repo.ListHistoryKeys(dbctx.New(ctx), sceneID)
	if err != nil {
		return nil, fmt.Errorf("list history keys for %q: %w", sceneID, err)
	}
	return keys, nil
}

func (s *localStore) List(ctx context.Context) ([]*domain.CanvasState, error) {
	states, err := s.repo.ListMeta(dbctx.New(ctx))
	if err != nil {
		return nil, fmt.Errorf("list canvas states: %w", err)
	}
	return states, nil
}

// CleanupOlderThan drops every state saved more than age ago and
// returns the number of rows removed.
func (s *localStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	n, err := s.repo.DeleteOlderThan(dbctx.New(ctx), time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("cleanup old canvas states: %w", err)
	}
	if n > 0 {
		s.cache.Purge()
		s.log.Info("cleaned up old canvas states", "removed", n)
	}
	return n, nil
}
