package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/platform/dbctx"
	"github.com/skysketch/editor-backend/internal/platform/logger"
)

// CanvasStateRepo persists serialized canvas payloads. Writes are
// full-row replaces under unique keys; there is no read-modify-write.
type CanvasStateRepo interface {
	Upsert(dbc dbctx.Context, state *domain.CanvasState) error
	GetByKey(dbc dbctx.Context, key string) (*domain.CanvasState, error)
	DeleteByKey(dbc dbctx.Context, key string) error
	DeleteByKeys(dbc dbctx.Context, keys []string) error
	ListMeta(dbc dbctx.Context) ([]*domain.CanvasState, error)
	ListHistoryKeys(dbc dbctx.Context, sceneID string) ([]string, error)
	DeleteOlderThan(dbc dbctx.Context, before time.Time) (int64, error)
}

type canvasStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCanvasStateRepo(db *gorm.DB, baseLog *logger.Logger) CanvasStateRepo {
	repoLog := baseLog.With("repo", "CanvasStateRepo")
	return &canvasStateRepo{db: db, log: repoLog}
}

func (r *canvasStateRepo) Upsert(dbc dbctx.Context, state *domain.CanvasState) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		}).
		Create(state).Error
}

func (r *canvasStateRepo) GetByKey(dbc dbctx.Context, key string) (*domain.CanvasState, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var result domain.CanvasState
	err := txx.WithContext(dbc.Ctx).Where("key = ?", key).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *canvasStateRepo) DeleteByKey(dbc dbctx.Context, key string) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("key = ?", key).
		Delete(&domain.CanvasState{}).Error
}

func (r *canvasStateRepo) DeleteByKeys(dbc dbctx.Context, keys []string) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if len(keys) == 0 {
		return nil
	}
	return txx.WithContext(dbc.Ctx).
		Where("key IN ?", keys).
		Delete(&domain.CanvasState{}).Error
}

func (r *canvasStateRepo) ListMeta(dbc dbctx.Context) ([]*domain.CanvasState, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var results []*domain.CanvasState
	err := txx.WithContext(dbc.Ctx).
		Select("key", "scene_id", "object_count", "is_history", "saved_at", "updated_at").
		Order("saved_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *canvasStateRepo) ListHistoryKeys(dbc dbctx.Context, sceneID string) ([]string, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var keys []string
	err := txx.WithContext(dbc.Ctx).
		Model(&domain.CanvasState{}).
		Where("scene_id = ? AND is_history = ?", sceneID, true).
		Order("saved_at ASC").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *canvasStateRepo) DeleteOlderThan(dbc dbctx.Context, before time.Time) (int64, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Where("saved_at < ?", before).
		Delete(&domain.CanvasState{})
	return res.RowsAffected, res.Error
}
