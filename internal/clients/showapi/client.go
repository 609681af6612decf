// Package showapi is the HTTP client for the remote show service:
// scene descriptors, document save/load under originals/ and
// processed/ asset prefixes, the drawing-to-dots conversion endpoint,
// and thumbnail upload.
package showapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skysketch/editor-backend/internal/domain"
	"github.com/skysketch/editor-backend/internal/platform/envutil"
	"github.com/skysketch/editor-backend/internal/platform/logger"
)

// Scene is the remote scene descriptor. AssetKey points at the
// canonical serialized document and encodes the save mode in its
// prefix.
type Scene struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AssetKey string `json:"assetKey"`
	Duration int    `json:"duration"`
}

// SaveMode derives the scene's save mode from the asset pointer.
func (s *Scene) SaveMode() domain.SaveMode {
	return domain.SaveModeFromAssetKey(s.AssetKey)
}

type Client interface {
	GetScene(ctx context.Context, sceneID string) (*Scene, error)
	SaveDocument(ctx context.Context, sceneID string, mode domain.SaveMode, doc *domain.CanvasDocument) error
	LoadDocument(ctx context.Context, sceneID string, mode domain.SaveMode) (*domain.CanvasDocument, error)
	FetchDocument(ctx context.Context, url string) (*domain.CanvasDocument, error)
	Convert(ctx context.Context, sceneID string, targetDots int, payload []byte, contentType string) (*domain.CanvasDocument, error)
	UploadThumbnail(ctx context.Context, sceneID string, png []byte) error
}

type client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(baseLog *logger.Logger) Client {
	return &client{
		baseURL: strings.TrimRight(envutil.Str("SHOW_API_URL", "http://localhost:9000"), "/"),
		http:    &http.Client{Timeout: envutil.Duration("SHOW_API_TIMEOUT", 30*time.Second)},
		log:     baseLog.With("client", "ShowAPI"),
	}
}

func (c *client) GetScene(ctx context.Context, sceneID string) (*Scene, error) {
	var scene Scene
	if err := c.getJSON(ctx, fmt.Sprintf("/api/scenes/%s", sceneID), &scene); err != nil {
		return nil, fmt.Errorf("get scene %q: %w", sceneID, err)
	}
	return &scene, nil
}

func (c *client) SaveDocument(ctx context.Context, sceneID string, mode domain.SaveMode, doc *domain.CanvasDocument) error {
	body, err := json.Marshal(map[string]any{"canvas_data": doc})
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	url := fmt.Sprintf("%s/api/canvas/%s/%s.json", c.baseURL, mode, sceneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("save document %q: %w", sceneID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("save document %q: unexpected status %d", sceneID, resp.StatusCode)
	}
	return nil
}

// LoadDocument fetches a scene's serialized document. A missing
// document is not an error: a 404 returns (nil, nil) so the caller
// starts from a blank canvas.
func (c *client) LoadDocument(ctx context.Context, sceneID string, mode domain.SaveMode) (*domain.CanvasDocument, error) {
	url := fmt.Sprintf("%s/api/canvas/%s/%s.json", c.baseURL, mode, sceneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build load request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load document %q: %w", sceneID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load document %q: unexpected status %d", sceneID, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read document %q: %w", sceneID, err)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decode document %q: %w", sceneID, err)
	}
	return doc, nil
}

// FetchDocument loads a serialized document from an arbitrary URL, for
// callers handed a direct asset link rather than a scene id.
func (c *client) FetchDocument(ctx context.Context, url string) (*domain.CanvasDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document %q: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch document %q: unexpected status %d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read document %q: %w", url, err)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decode document %q: %w", url, err)
	}
	return doc, nil
}

// decodeDocument accepts either a bare document or one wrapped in a
// canvas_data envelope.
func decodeDocument(raw []byte) (*domain.CanvasDocument, error) {
	var wrapped struct {
		CanvasData *domain.CanvasDocument `json:"canvas_data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.CanvasData != nil {
		return wrapped.CanvasData, nil
	}
	var doc domain.CanvasDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Convert submits scene content and receives the dot-cloud document
// produced by the conversion service. The payload is either a rendered
// PNG or, for already-discrete content, the dots as SVG circles; the
// content type tells the service which.
func (c *client) Convert(ctx context.Context, sceneID string, targetDots int, payload []byte, contentType string) (*domain.CanvasDocument, error) {
	url := fmt.Sprintf("%s/api/canvas/%s/convert?target_dots=%d", c.baseURL, sceneID, targetDots)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build convert request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("convert scene %q: %w", sceneID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("convert scene %q: unexpected status %d", sceneID, resp.StatusCode)
	}
	var doc domain.CanvasDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode conversion result %q: %w", sceneID, err)
	}
	return &doc, nil
}

func (c *client) UploadThumbnail(ctx context.Context, sceneID string, png []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("thumbnail", sceneID+".png")
	if err != nil {
		return fmt.Errorf("build thumbnail form: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return fmt.Errorf("write thumbnail form: %w", err)
	}
	if err := mw.WriteField("size", strconv.Itoa(len(png))); err != nil {
		return fmt.Errorf("write thumbnail form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close thumbnail form: %w", err)
	}
	url := fmt.Sprintf("%s/api/scenes/%s/thumbnail", c.baseURL, sceneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("build thumbnail request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload thumbnail %q: %w", sceneID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upload thumbnail %q: unexpected status %d", sceneID, resp.StatusCode)
	}
	return nil
}

func (c *client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
