package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/mitchellh/go-homedir"
	_ "golang.org/x/image/webp"

	"github.com/starford/questline/internal/models"
)

// maxFillBytes caps a single remote image fill.
const maxFillBytes = 32 << 20

// imageCache decodes each image fill source once.
type imageCache struct {
	baseDir string
	client  *retryablehttp.Client

	mu     sync.Mutex
	images map[string]image.Image
}

func newImageCache(baseDir string, client *retryablehttp.Client) *imageCache {
	return &imageCache{
		baseDir: baseDir,
		client:  client,
		images:  make(map[string]image.Image),
	}
}

func (c *imageCache) load(ctx context.Context, src string) (image.Image, error) {
	c.mu.Lock()
	img, ok := c.images[src]
	c.mu.Unlock()
	if ok {
		return img, nil
	}

	data, err := c.fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	img, _, err = image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", shortSrc(src), err)
	}

	c.mu.Lock()
	c.images[src] = img
	c.mu.Unlock()
	return img, nil
}

func (c *imageCache) fetch(ctx context.Context, src string) ([]byte, error) {
	switch {
	case src == "":
		return nil, fmt.Errorf("image fill has no source")
	case strings.HasPrefix(src, "data:"):
		return models.DecodeDataURL(src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return c.download(ctx, src)
	}

	p, err := homedir.Expand(src)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", src, err)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.baseDir, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

func (c *imageCache) download(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFillBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return data, nil
}

func shortSrc(src string) string {
	if len(src) > 48 {
		return src[:48] + "..."
	}
	return src
}
