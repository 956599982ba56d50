// Package media provides the network fetch and decode collaborators used by
// the media queue.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/patrickmn/go-cache"

	"tutti/logger"
)

// ErrUnexpectedStatus is returned when a server answers with a non-2xx status
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// DefaultTimeout bounds a single download
const DefaultTimeout = 30 * time.Second

// HTTPDownloader fetches http(s) URLs. file URLs and plain paths are read from
// the local filesystem.
type HTTPDownloader struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPDownloader creates a new HTTPDownloader
func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPDownloader{
		client: &http.Client{Timeout: timeout},
		logger: logger.WithComponent("downloader"),
	}
}

// Client returns the underlying HTTP client
func (d *HTTPDownloader) Client() *http.Client {
	return d.client
}

// Download returns the bytes behind sourceURL
func (d *HTTPDownloader) Download(ctx context.Context, sourceURL string) ([]byte, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source URL: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return d.fetch(ctx, sourceURL)
	case "file":
		return readFile(u.Path)
	case "":
		return readFile(sourceURL)
	default:
		return nil, fmt.Errorf("unsupported source URL scheme %q", u.Scheme)
	}
}

func (d *HTTPDownloader) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, sourceURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	d.logger.Debug("Downloaded media",
		slog.String("url", sourceURL),
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(start)))
	return data, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Downloader is satisfied by HTTPDownloader and CachingDownloader
type Downloader interface {
	Download(ctx context.Context, sourceURL string) ([]byte, error)
}

// CachingDownloader keeps downloaded bytes for a while so reloading a track
// does not hit the network again
type CachingDownloader struct {
	next  Downloader
	cache *cache.Cache
}

// NewCachingDownloader creates a new CachingDownloader in front of next
func NewCachingDownloader(next Downloader, ttl time.Duration) *CachingDownloader {
	return &CachingDownloader{
		next:  next,
		cache: cache.New(ttl, ttl*2),
	}
}

// Download returns cached bytes or fetches them through the wrapped downloader.
// Failures are never cached.
func (c *CachingDownloader) Download(ctx context.Context, sourceURL string) ([]byte, error) {
	if cached, found := c.cache.Get(sourceURL); found {
		return cached.([]byte), nil
	}

	data, err := c.next.Download(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	c.cache.Set(sourceURL, data, cache.DefaultExpiration)
	return data, nil
}

// Forget drops the cached bytes of sourceURL
func (c *CachingDownloader) Forget(sourceURL string) {
	c.cache.Delete(sourceURL)
}

// Len returns the number of cached sources
func (c *CachingDownloader) Len() int {
	return c.cache.ItemCount()
}
