package domain

import (
	"time"

	"gorm.io/datatypes"
)

// CanvasState is the durable-store row for one serialized canvas
// payload: either a live scene state (Key == scene id) or a history
// snapshot (Key == synthetic history key).
type CanvasState struct {
	Key         string         `gorm:"primaryKey" json:"key"`
	SceneID     string         `gorm:"index" json:"sceneId"`
	Data        datatypes.JSON `json:"data"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	ObjectCount int            `json:"objectCount"`
	IsHistory   bool           `gorm:"index" json:"isHistory"`
	SavedAt     time.Time      `gorm:"index" json:"savedAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (CanvasState) TableName() string { return "canvas_states" }
