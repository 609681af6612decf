package store

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/platform/envutil"
	"github.com/skysketch/editor-backend/internal/platform/logger"
)

// Open connects the durable canvas store and migrates its schema.
// CANVAS_STORE_DSN selects the backend: a postgres DSN for shared
// deployments, otherwise an embedded sqlite file (default
// canvas_store.db).
func Open(baseLog *logger.Logger) (*gorm.DB, error) {
	log := baseLog.With("service", "CanvasStoreDB")
	dsn := envutil.Str("CANVAS_STORE_DSN", "canvas_store.db")

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.Contains(dsn, "host=") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open canvas store: %w", err)
	}
	if err := db.AutoMigrate(&domain.CanvasState{}); err != nil {
		return nil, fmt.Errorf("migrate canvas store: %w", err)
	}
	log.Info("canvas store ready", "dialect", db.Dialector.Name())
	return db, nil
}
