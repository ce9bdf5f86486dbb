// Package fetch performs upstream tile provider requests: URL template
// expansion with subdomain rotation, the HTTP GET itself, and the status
// classification the prefetcher's retry policy depends on.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidecharts/tilecache/pkg/logger"
	"github.com/tidecharts/tilecache/pkg/metrics"
)

// ErrInvalidPayload marks a 2xx response whose body is not a usable
// tile image (empty, or not image-typed).
var ErrInvalidPayload = errors.New("upstream payload is not a tile image")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// IsClientError reports whether err is an upstream 4xx. These mean "no
// tile at this coordinate" and must never be retried.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// IsServerError reports whether err is an upstream 5xx.
func IsServerError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 500
}

// Result is a successfully fetched tile payload.
type Result struct {
	Data        []byte
	ContentType string
}

type Client struct {
	httpClient *http.Client
	userAgent  string
	logger     logger.Logger
	subIdx     atomic.Uint64
}

func NewClient(timeout time.Duration, userAgent string, l logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		logger:    l,
	}
}

// TileURL expands a provider template, substituting {z}/{x}/{y} and
// rotating {s} round-robin through the subdomain characters.
func (c *Client) TileURL(template, subdomains string, z, x, y int) string {
	sub := ""
	if subdomains != "" {
		i := c.subIdx.Add(1) - 1
		sub = string(subdomains[i%uint64(len(subdomains))])
	}

	r := strings.NewReplacer(
		"{s}", sub,
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	)
	return r.Replace(template)
}

// Tile fetches one tile. Non-2xx statuses come back as *StatusError,
// transport failures as the underlying error, and 2xx bodies that are
// not images as ErrInvalidPayload.
func (c *Client) Tile(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	metrics.UpstreamRequests.Inc()
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("upstream fetch failed", "url", url, "error", err)
		return nil, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()

	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("upstream returned non-2xx", "url", url, "status", resp.StatusCode)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}

	if !ValidTilePayload(data) {
		return nil, ErrInvalidPayload
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return &Result{Data: data, ContentType: contentType}, nil
}

// ValidTilePayload reports whether data looks like a non-empty raster
// image. Sniffed from the bytes, not trusted from headers.
func ValidTilePayload(data []byte) bool {
	return len(data) > 0 && strings.HasPrefix(http.DetectContentType(data), "image/")
}
