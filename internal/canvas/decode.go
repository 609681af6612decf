package canvas

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"
)

// ImageDecoder resolves an image source reference to decoded pixels.
// Sources are either data URIs or fetchable URLs.
type ImageDecoder interface {
	Decode(ctx context.Context, src string) (image.Image, error)
}

// HTTPDecoder fetches URL sources over HTTP and decodes data URIs
// inline.
type HTTPDecoder struct {
	client *http.Client
}

func NewHTTPDecoder(timeout time.Duration) *HTTPDecoder {
	return &HTTPDecoder{client: &http.Client{Timeout: timeout}}
}

func (d *HTTPDecoder) Decode(ctx context.Context, src string) (image.Image, error) {
	if strings.HasPrefix(src, "data:") {
		return decodeDataURI(src)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func decodeDataURI(src string) (image.Image, error) {
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data uri")
	}
	meta, payload := src[5:comma], src[comma+1:]
	var raw []byte
	if strings.HasSuffix(meta, ";base64") {
		var err error
		raw, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data uri: %w", err)
		}
	} else {
		raw = []byte(payload)
	}
	img, _, err := image.Decode(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
