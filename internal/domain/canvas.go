package domain

import (
	"fmt"
	"image"
	"math/rand"
	"strings"
	"time"

	"github.com/skysketch/editor-backend/internal/geom"
)

// SaveMode says which remote asset is canonical for a scene: the
// pre-conversion drawing or the converted point cloud.
type SaveMode string

const (
	SaveModeOriginals SaveMode = "originals"
	SaveModeProcessed SaveMode = "processed"
)

// SaveModeFromAssetKey derives the save mode from a remote asset
// pointer. Keys under processed/ mean the point cloud is canonical;
// everything else falls back to originals.
func SaveModeFromAssetKey(key string) SaveMode {
	if strings.HasPrefix(strings.TrimPrefix(key, "/"), "processed/") {
		return SaveModeProcessed
	}
	return SaveModeOriginals
}

type ObjectType string

const (
	ObjectPath  ObjectType = "path"
	ObjectDot   ObjectType = "dot"
	ObjectImage ObjectType = "image"
)

// Origin distinguishes hand-placed dots from dots produced by the
// server-side conversion.
type Origin string

const (
	OriginDrawn     Origin = "drawn"
	OriginConverted Origin = "converted"
)

// BoundaryName marks the dashed frame decoration that outlines the
// drawable area. It is never serialized and survives Clear.
const BoundaryName = "canvasBoundary"

// Object is one drawable on a scene surface. The type field decides
// which geometry fields are meaningful. LayerID/LayerName are a
// non-owning back-reference: the layer registry owns ordering, the
// surface owns the object.
type Object struct {
	ID   string     `json:"id,omitempty"`
	Type ObjectType `json:"type"`

	// path
	Points      []geom.Point `json:"points,omitempty"`
	Stroke      string       `json:"stroke,omitempty"`
	StrokeWidth float64      `json:"strokeWidth,omitempty"`

	// dot
	CX     float64 `json:"cx,omitempty"`
	CY     float64 `json:"cy,omitempty"`
	Radius float64 `json:"radius,omitempty"`
	Fill   string  `json:"fill,omitempty"`
	Origin Origin  `json:"origin,omitempty"`

	// image
	Src    string  `json:"src,omitempty"`
	Left   float64 `json:"left,omitempty"`
	Top    float64 `json:"top,omitempty"`
	ScaleX float64 `json:"scaleX,omitempty"`
	ScaleY float64 `json:"scaleY,omitempty"`
	Angle  float64 `json:"angle,omitempty"`

	LayerID   string `json:"layerId,omitempty"`
	LayerName string `json:"layerName,omitempty"`

	Visible           bool   `json:"visible"`
	Selectable        bool   `json:"selectable"`
	Evented           bool   `json:"evented"`
	EraserPath        bool   `json:"eraserPath,omitempty"`
	ExcludeFromExport bool   `json:"excludeFromExport,omitempty"`
	Name              string `json:"name,omitempty"`

	// Decoded pixels for image objects; populated during load, never
	// serialized.
	Img image.Image `json:"-"`
}

// Bounds returns the object's axis-aligned bounds in logical canvas
// coordinates.
func (o *Object) Bounds() geom.Rect {
	switch o.Type {
	case ObjectDot:
		return geom.Rect{Left: o.CX - o.Radius, Top: o.CY - o.Radius, Width: 2 * o.Radius, Height: 2 * o.Radius}
	case ObjectImage:
		w, h := 0.0, 0.0
		if o.Img != nil {
			b := o.Img.Bounds()
			w = float64(b.Dx()) * o.ScaleX
			h = float64(b.Dy()) * o.ScaleY
		}
		return geom.Rect{Left: o.Left, Top: o.Top, Width: w, Height: h}
	default:
		return geom.Bounds(o.Points, o.StrokeWidth)
	}
}

// Translate shifts the object's geometry by (dx, dy).
func (o *Object) Translate(dx, dy float64) {
	switch o.Type {
	case ObjectDot:
		o.CX += dx
		o.CY += dy
	case ObjectImage:
		o.Left += dx
		o.Top += dy
	default:
		for i := range o.Points {
			o.Points[i].X += dx
			o.Points[i].Y += dy
		}
	}
}

type LayerType string

const (
	LayerTypeBackground LayerType = "background"
	LayerTypeDrawing    LayerType = "drawing"
)

const BackgroundLayerID = "background"

type Layer struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Visible bool      `json:"visible"`
	Locked  bool      `json:"locked"`
	ZIndex  int       `json:"zIndex"`
	Type    LayerType `json:"type"`
}

// LayerMetadata is the layer block embedded in a serialized canvas
// document so a reload restores layer structure without a server
// round trip.
type LayerMetadata struct {
	Layers        []*Layer `json:"layers"`
	ActiveLayerID string   `json:"activeLayerId"`
}

// ViewportState is persisted alongside a document so reloading a scene
// restores pan/zoom exactly instead of re-fitting.
type ViewportState struct {
	Zoom       float64 `json:"zoom"`
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
}

const DocumentVersion = "1.0"

// CanvasDocument is the portable serialized form of one scene surface.
type CanvasDocument struct {
	Version       string         `json:"version"`
	Background    string         `json:"background,omitempty"`
	Objects       []*Object      `json:"objects"`
	LayerMetadata *LayerMetadata `json:"layerMetadata,omitempty"`
	Viewport      *ViewportState `json:"viewport,omitempty"`
	Timestamp     int64          `json:"timestamp,omitempty"`
}

// SnapshotRef points at one persisted history snapshot. The snapshot
// body lives in the durable store under HistoryKey.
type SnapshotRef struct {
	HistoryKey string
	SceneID    string
	ActionType string
	Timestamp  time.Time
}

const historyKeyPrefix = "history_"

// NewHistoryKey builds a synthetic store key for a history snapshot.
// The prefix plus random suffix guarantees it can never collide with a
// bare scene id.
func NewHistoryKey(sceneID string) string {
	return fmt.Sprintf("%s%s_%d_%09d", historyKeyPrefix, sceneID, time.Now().UnixMilli(), rand.Intn(1_000_000_000))
}

func IsHistoryKey(key string) bool {
	return strings.HasPrefix(key, historyKeyPrefix)
}
