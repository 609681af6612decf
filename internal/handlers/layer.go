package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skysketch/editor-backend/internal/services"
)

type LayerHandler struct {
	editor *services.EditorService
}

func NewLayerHandler(editor *services.EditorService) *LayerHandler {
	return &LayerHandler{editor: editor}
}

func (h *LayerHandler) session(c *gin.Context) *services.Session {
	s, err := h.editor.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil
	}
	return s
}

func (h *LayerHandler) List(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"layers": s.Layers()})
}

type createLayerRequest struct {
	Name string `json:"name"`
}

func (h *LayerHandler) Create(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req createLayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	layer := s.CreateLayer(req.Name)
	c.JSON(http.StatusCreated, gin.H{"layer": layer})
}

func (h *LayerHandler) Delete(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	if err := s.DeleteLayer(c.Param("layerId")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *LayerHandler) Activate(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	if err := s.SetActiveLayer(c.Param("layerId")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": c.Param("layerId")})
}

func (h *LayerHandler) ToggleVisibility(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	visible, err := s.ToggleLayerVisibility(c.Param("layerId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"visible": visible})
}

func (h *LayerHandler) ToggleLock(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	locked, err := s.ToggleLayerLock(c.Param("layerId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": locked})
}

type renameLayerRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *LayerHandler) Rename(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req renameLayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.RenameLayer(c.Param("layerId"), req.Name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"renamed": true})
}

type reorderLayersRequest struct {
	TargetID string `json:"targetId" binding:"required"`
}

// Reorder drops the layer from the path onto the target layer's slot.
func (h *LayerHandler) Reorder(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	var req reorderLayersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ReorderLayers(c.Param("layerId"), req.TargetID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"layers": s.Layers()})
}
