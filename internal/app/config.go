// Package app holds process-level configuration: environment wiring
// plus the tunable editor policy, optionally overridden by a YAML
// policy file.
package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skysketch/editor-backend/internal/platform/envutil"
)

// Policy collects every tunable editing constant. Zero values mean
// "use the default"; Normalize fills them in.
type Policy struct {
	LogicalWidth  float64 `yaml:"logicalWidth"`
	LogicalHeight float64 `yaml:"logicalHeight"`

	MaxSceneHistories int           `yaml:"maxSceneHistories"`
	MaxHistoryDepth   int           `yaml:"maxHistoryDepth"`
	MemoryCacheSize   int           `yaml:"memoryCacheSize"`
	AutosaveDelay     time.Duration `yaml:"autosaveDelay"`
	SyncInterval      time.Duration `yaml:"syncInterval"`
	HistoryDedup      time.Duration `yaml:"historyDedupWindow"`
	CleanupDelay      time.Duration `yaml:"cleanupDelay"`
	CleanupItemPause  time.Duration `yaml:"cleanupItemPause"`

	MaxBrushObjects int     `yaml:"maxBrushObjects"`
	DotRadius       float64 `yaml:"dotRadius"`
	EraserSize      float64 `yaml:"eraserSize"`
	StrokeWidth     float64 `yaml:"strokeWidth"`

	TargetDots     int           `yaml:"targetDots"`
	StoreRetention time.Duration `yaml:"storeRetention"`
	ImageTimeout   time.Duration `yaml:"imageTimeout"`
}

func DefaultPolicy() Policy {
	return Policy{
		LogicalWidth:      800,
		LogicalHeight:     500,
		MaxSceneHistories: 10,
		MaxHistoryDepth:   50,
		MemoryCacheSize:   5,
		AutosaveDelay:     1500 * time.Millisecond,
		SyncInterval:      30 * time.Second,
		HistoryDedup:      100 * time.Millisecond,
		CleanupDelay:      2 * time.Second,
		CleanupItemPause:  10 * time.Millisecond,
		MaxBrushObjects:   2000,
		DotRadius:         2,
		EraserSize:        20,
		StrokeWidth:       2,
		TargetDots:        300,
		StoreRetention:    7 * 24 * time.Hour,
		ImageTimeout:      15 * time.Second,
	}
}

// Normalize replaces zero fields with their defaults so a sparse YAML
// override file only has to name what it changes.
func (p *Policy) Normalize() {
	d := DefaultPolicy()
	if p.LogicalWidth <= 0 {
		p.LogicalWidth = d.LogicalWidth
	}
	if p.LogicalHeight <= 0 {
		p.LogicalHeight = d.LogicalHeight
	}
	if p.MaxSceneHistories <= 0 {
		p.MaxSceneHistories = d.MaxSceneHistories
	}
	if p.MaxHistoryDepth <= 0 {
		p.MaxHistoryDepth = d.MaxHistoryDepth
	}
	if p.MemoryCacheSize <= 0 {
		p.MemoryCacheSize = d.MemoryCacheSize
	}
	if p.AutosaveDelay <= 0 {
		p.AutosaveDelay = d.AutosaveDelay
	}
	if p.SyncInterval <= 0 {
		p.SyncInterval = d.SyncInterval
	}
	if p.HistoryDedup <= 0 {
		p.HistoryDedup = d.HistoryDedup
	}
	if p.CleanupDelay <= 0 {
		p.CleanupDelay = d.CleanupDelay
	}
	if p.CleanupItemPause <= 0 {
		p.CleanupItemPause = d.CleanupItemPause
	}
	if p.MaxBrushObjects <= 0 {
		p.MaxBrushObjects = d.MaxBrushObjects
	}
	if p.DotRadius <= 0 {
		p.DotRadius = d.DotRadius
	}
	if p.EraserSize <= 0 {
		p.EraserSize = d.EraserSize
	}
	if p.StrokeWidth <= 0 {
		p.StrokeWidth = d.StrokeWidth
	}
	if p.TargetDots <= 0 {
		p.TargetDots = d.TargetDots
	}
	if p.StoreRetention <= 0 {
		p.StoreRetention = d.StoreRetention
	}
	if p.ImageTimeout <= 0 {
		p.ImageTimeout = d.ImageTimeout
	}
}

type Config struct {
	Mode   string
	Port   string
	Policy Policy
}

// LoadConfig reads environment configuration and, when
// EDITOR_POLICY_FILE is set, merges the YAML policy override.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Mode:   envutil.Str("APP_MODE", "dev"),
		Port:   envutil.Str("PORT", "8080"),
		Policy: DefaultPolicy(),
	}
	if path := envutil.Str("EDITOR_POLICY_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		var p Policy
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parse policy file: %w", err)
		}
		p.Normalize()
		cfg.Policy = p
	}
	return cfg, nil
}
