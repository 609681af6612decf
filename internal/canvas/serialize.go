package canvas

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skysketch/editor-backend/internal/domain"
)

// Serialize produces the portable document for the current surface
// state. Export-excluded objects (the boundary decoration, transient
// previews) are dropped; layer assignments travel on each object so the
// document stands alone.
func (s *Surface) Serialize(layerMeta *domain.LayerMetadata, viewport *domain.ViewportState) *domain.CanvasDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := &domain.CanvasDocument{
		Version:       domain.DocumentVersion,
		Background:    s.background,
		Objects:       make([]*domain.Object, 0, len(s.objects)),
		LayerMetadata: layerMeta,
		Viewport:      viewport,
		Timestamp:     time.Now().UnixMilli(),
	}
	for _, o := range s.objects {
		if o.ExcludeFromExport || o.Name == domain.BoundaryName {
			continue
		}
		c := *o
		doc.Objects = append(doc.Objects, &c)
	}
	return doc
}

// LoadDocument replaces the surface contents with the document's
// objects. Image sources are decoded concurrently; if any image fails
// the whole load is aborted, the surface is left cleared, and the error
// names the failing object's index. A nil document just clears.
func (s *Surface) LoadDocument(ctx context.Context, doc *domain.CanvasDocument) error {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()
	if doc == nil {
		return nil
	}

	loaded := make([]*domain.Object, len(doc.Objects))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range doc.Objects {
		c := *src
		loaded[i] = &c
		if c.Type != domain.ObjectImage {
			continue
		}
		i := i
		g.Go(func() error {
			img, err := s.decoder.Decode(gctx, loaded[i].Src)
			if err != nil {
				return fmt.Errorf("image object %d: %w", i, err)
			}
			loaded[i].Img = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error("document load aborted", "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.Background != "" {
		s.background = doc.Background
	}
	s.objects = append(s.objects, loaded...)
	return nil
}
