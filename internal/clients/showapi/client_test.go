package showapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("SHOW_API_URL", srv.URL)
	return NewClient(logger.NewNop())
}

func TestGetSceneSaveMode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/scenes/s1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Scene{ID: "s1", Name: "Opening", AssetKey: "processed/s1.json"})
	}))
	scene, err := c.GetScene(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get scene failed: %v", err)
	}
	if scene.SaveMode() != domain.SaveModeProcessed {
		t.Fatalf("processed asset key should yield processed mode, got %q", scene.SaveMode())
	}
}

func TestSaveModeFromAssetKeyDefaultsToOriginals(t *testing.T) {
	s := &Scene{AssetKey: "originals/s1.json"}
	if s.SaveMode() != domain.SaveModeOriginals {
		t.Fatalf("originals prefix should yield originals mode")
	}
	s = &Scene{AssetKey: "somewhere/else.json"}
	if s.SaveMode() != domain.SaveModeOriginals {
		t.Fatalf("unknown prefix should fall back to originals")
	}
}

func TestSaveDocumentPutsUnderMode(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]*domain.CanvasDocument
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	doc := &domain.CanvasDocument{Version: domain.DocumentVersion, Timestamp: 42}
	if err := c.SaveDocument(context.Background(), "s1", domain.SaveModeProcessed, doc); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/api/canvas/processed/s1.json" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if gotBody["canvas_data"] == nil || gotBody["canvas_data"].Timestamp != 42 {
		t.Fatalf("document not wrapped in canvas_data: %+v", gotBody)
	}
}

func TestLoadDocument404ReturnsNil(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	doc, err := c.LoadDocument(context.Background(), "s1", domain.SaveModeOriginals)
	if err != nil {
		t.Fatalf("404 should not be an error: %v", err)
	}
	if doc != nil {
		t.Fatalf("404 should yield a nil document")
	}
}

func TestLoadDocumentUnwrapsEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"canvas_data": domain.CanvasDocument{Version: domain.DocumentVersion, Timestamp: 7},
		})
	}))
	doc, err := c.LoadDocument(context.Background(), "s1", domain.SaveModeOriginals)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if doc == nil || doc.Timestamp != 7 {
		t.Fatalf("envelope not unwrapped: %+v", doc)
	}
}

func TestLoadDocumentBarePayload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.CanvasDocument{Version: domain.DocumentVersion, Timestamp: 9})
	}))
	doc, err := c.LoadDocument(context.Background(), "s1", domain.SaveModeOriginals)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if doc == nil || doc.Timestamp != 9 {
		t.Fatalf("bare payload not decoded: %+v", doc)
	}
}

func TestFetchDocumentByURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assets/doc.json" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(domain.CanvasDocument{Version: domain.DocumentVersion, Timestamp: 11})
	}))
	t.Cleanup(srv.Close)
	t.Setenv("SHOW_API_URL", srv.URL)
	c := NewClient(logger.NewNop())

	doc, err := c.FetchDocument(context.Background(), srv.URL+"/assets/doc.json")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if doc == nil || doc.Timestamp != 11 {
		t.Fatalf("document not fetched: %+v", doc)
	}
}

func TestConvertPassesTargetDots(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/canvas/s1/convert" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("target_dots") != "250" {
			t.Fatalf("target_dots missing: %s", r.URL.RawQuery)
		}
		if ct := r.Header.Get("Content-Type"); ct != "image/png" {
			t.Fatalf("unexpected content type %q", ct)
		}
		json.NewEncoder(w).Encode(domain.CanvasDocument{
			Version: domain.DocumentVersion,
			Objects: []*domain.Object{{Type: domain.ObjectDot, CX: 1, CY: 2, Radius: 2}},
		})
	}))
	doc, err := c.Convert(context.Background(), "s1", 250, []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if len(doc.Objects) != 1 || doc.Objects[0].Type != domain.ObjectDot {
		t.Fatalf("conversion result malformed: %+v", doc)
	}
}

func TestConvertForwardsContentType(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "image/svg+xml" {
			t.Fatalf("unexpected content type %q", ct)
		}
		json.NewEncoder(w).Encode(domain.CanvasDocument{Version: domain.DocumentVersion})
	}))
	if _, err := c.Convert(context.Background(), "s1", 100, []byte("<svg/>"), "image/svg+xml"); err != nil {
		t.Fatalf("convert failed: %v", err)
	}
}

func TestUploadThumbnailMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("not multipart: %v", err)
		}
		f, hdr, err := r.FormFile("thumbnail")
		if err != nil {
			t.Fatalf("thumbnail part missing: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "s1.png" {
			t.Fatalf("unexpected filename %q", hdr.Filename)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	if err := c.UploadThumbnail(context.Background(), "s1", []byte("png-bytes")); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	if err := c.SaveDocument(context.Background(), "s1", domain.SaveModeOriginals, &domain.CanvasDocument{}); err == nil {
		t.Fatalf("500 should surface as an error")
	}
	if _, err := c.LoadDocument(context.Background(), "s1", domain.SaveModeOriginals); err == nil {
		t.Fatalf("500 on load should surface as an error")
	}
}
