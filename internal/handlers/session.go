package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skysketch/editor-backend/internal/canvas"
	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/modes"
	"github.com/skysketch/editor-backend/internal/services"
)

type SessionHandler struct {
	editor *services.EditorService
}

func NewSessionHandler(editor *services.EditorService) *SessionHandler {
	return &SessionHandler{editor: editor}
}

func (h *SessionHandler) session(c *gin.Context) *services.Session {
	s, err := h.editor.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil
	}
	return s
}

type openSessionRequest struct {
	ProjectID string `json:"projectId"`
	SceneID   string `json:"sceneId"`
}

func (h *SessionHandler) Open(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.editor.Open(c.Request.Context(), req.ProjectID, req.SceneID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": s.ID, "sceneId": s.SceneID()})
}

func (h *SessionHandler) Close(c *gin.Context) {
	if err := h.editor.Close(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

type pointerRequest struct {
	Kind string  `json:"kind" binding:"required"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (h *SessionHandler) Pointer(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req pointerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev := canvas.PointerEvent{X: req.X, Y: req.Y}
	switch canvas.EventKind(req.Kind) {
	case canvas.EventPointerDown:
		s.PointerDown(ev)
	case canvas.EventPointerMove:
		s.PointerMove(ev)
	case canvas.EventPointerUp:
		s.PointerUp(ev)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown pointer kind"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": string(s.Mode())})
}

func (h *SessionHandler) Wheel(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var ev canvas.WheelEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Wheel(ev)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type resizeRequest struct {
	Width  float64 `json:"width" binding:"required"`
	Height float64 `json:"height" binding:"required"`
}

func (h *SessionHandler) Resize(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req resizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Resize(req.Width, req.Height)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type modeRequest struct {
	Mode  string `json:"mode" binding:"required"`
	Color string `json:"color"`
}

func (h *SessionHandler) SetMode(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.SetMode(modes.Mode(req.Mode), req.Color)
	c.JSON(http.StatusOK, gin.H{"mode": string(s.Mode())})
}

type colorRequest struct {
	Color string `json:"color" binding:"required"`
}

func (h *SessionHandler) SetColor(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req colorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.SetColor(req.Color)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *SessionHandler) Serialize(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	c.JSON(http.StatusOK, s.Serialize())
}

func (h *SessionHandler) Load(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	// accepts either {"url": "..."} or an inline document
	var req struct {
		URL string `json:"url"`
		domain.CanvasDocument
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var err error
	if req.URL != "" {
		err = s.LoadDocumentFromURL(c.Request.Context(), req.URL)
	} else {
		err = s.LoadDocument(c.Request.Context(), &req.CanvasDocument)
	}
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": true})
}

func (h *SessionHandler) Clear(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	s.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (h *SessionHandler) Undo(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	ok := s.Undo(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"applied": ok, "canUndo": s.CanUndo(), "canRedo": s.CanRedo()})
}

func (h *SessionHandler) Redo(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	ok := s.Redo(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"applied": ok, "canUndo": s.CanUndo(), "canRedo": s.CanRedo()})
}

func (h *SessionHandler) Save(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	if err := s.SaveNow(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

type saveModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *SessionHandler) ChangeSaveMode(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req saveModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode := domain.SaveMode(req.Mode)
	if mode != domain.SaveModeOriginals && mode != domain.SaveModeProcessed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown save mode"})
		return
	}
	s.ChangeSaveMode(mode)
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

type switchSceneRequest struct {
	SceneID string `json:"sceneId" binding:"required"`
}

func (h *SessionHandler) SwitchScene(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req switchSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.SwitchScene(c.Request.Context(), req.SceneID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sceneId": s.SceneID()})
}

type convertRequest struct {
	TargetDots int `json:"targetDots"`
}

func (h *SessionHandler) Convert(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Convert(c.Request.Context(), req.TargetDots); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"converted": true})
}

func (h *SessionHandler) Status(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sceneId": s.SceneID(),
		"mode":    string(s.Mode()),
		"save":    s.SaveStatus(),
		"history": s.HistoryStats(),
		"canUndo": s.CanUndo(),
		"canRedo": s.CanRedo(),
	})
}

func (h *SessionHandler) Export(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	png, err := s.ExportPNG()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *SessionHandler) Thumbnail(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	if err := s.UploadThumbnail(c.Request.Context(), 320, 200); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploaded": true})
}
