// Package prefetch bulk-downloads every tile covering an area and zoom
// range before a mission goes offline. Tiles already validly cached are
// skipped; transient upstream failures are retried and then skipped,
// never surfaced as hard errors.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/tidecharts/tilecache/internal/fetch"
	"github.com/tidecharts/tilecache/internal/geo"
	"github.com/tidecharts/tilecache/internal/tilecache"
	"github.com/tidecharts/tilecache/pkg/logger"
	"github.com/tidecharts/tilecache/pkg/metrics"
)

const (
	DefaultConcurrency = 4
	DefaultRetryCount  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

// Progress is the aggregate outcome of one prefetch run. When a run
// finishes undisturbed, Completed == Total and
// Completed == Downloaded + Skipped + Failed. A cancelled run reports
// Completed < Total.
type Progress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Options configures one prefetch run.
type Options struct {
	Provider    string
	URLTemplate string
	Subdomains  string
	BBox        geo.BBox
	ZoomMin     int
	ZoomMax     int
	Concurrency int
	RetryCount  int
	RetryDelay  time.Duration
}

// TileCache is the subset of the tile cache the prefetcher needs.
type TileCache interface {
	Get(tilecache.Key) (tilecache.Entry, bool)
	Put(tilecache.Key, []byte) error
}

// Fetcher is the network capability supplied by the caller.
type Fetcher interface {
	TileURL(template, subdomains string, z, x, y int) string
	Tile(ctx context.Context, url string) (*fetch.Result, error)
}

type runner struct {
	cache      TileCache
	fetcher    Fetcher
	opts       Options
	logger     logger.Logger
	completed  atomic.Int64
	downloaded atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
}

// Run executes a prefetch over the bbox and zoom range under bounded
// concurrency. It returns an error only for contract violations in the
// options themselves; per-tile outcomes land in Progress.
func Run(ctx context.Context, cache TileCache, fetcher Fetcher, opts Options, l logger.Logger) (Progress, error) {
	if cache == nil || fetcher == nil {
		return Progress{}, errors.New("prefetch: cache and fetcher are required")
	}
	if opts.Provider == "" {
		return Progress{}, errors.New("prefetch: provider key is required")
	}
	if !strings.Contains(opts.URLTemplate, "{z}") || !strings.Contains(opts.URLTemplate, "{x}") || !strings.Contains(opts.URLTemplate, "{y}") {
		return Progress{}, fmt.Errorf("prefetch: url template %q is missing {z}/{x}/{y} placeholders", opts.URLTemplate)
	}
	if opts.ZoomMin < 0 || opts.ZoomMax < opts.ZoomMin {
		return Progress{}, fmt.Errorf("prefetch: invalid zoom range [%d, %d]", opts.ZoomMin, opts.ZoomMax)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	// Negative means unset; zero is an explicit "no retries" or "no delay".
	if opts.RetryCount < 0 {
		opts.RetryCount = DefaultRetryCount
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	var worklist []geo.Tile
	for zoom := opts.ZoomMin; zoom <= opts.ZoomMax; zoom++ {
		worklist = append(worklist, geo.RangeForBBox(opts.BBox, zoom).Tiles()...)
	}

	r := &runner{
		cache:   cache,
		fetcher: fetcher,
		opts:    opts,
		logger:  l,
	}

	l.Info("prefetch starting",
		"provider", opts.Provider,
		"zoom_min", opts.ZoomMin,
		"zoom_max", opts.ZoomMax,
		"total", len(worklist),
		"concurrency", opts.Concurrency,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, tile := range worklist {
		if gctx.Err() != nil {
			// Stop admitting new tiles; in-flight ones drain below.
			break
		}
		g.Go(func() error {
			r.processTile(gctx, tile)
			return nil
		})
	}

	_ = g.Wait()

	progress := Progress{
		Total:      len(worklist),
		Completed:  int(r.completed.Load()),
		Downloaded: int(r.downloaded.Load()),
		Skipped:    int(r.skipped.Load()),
		Failed:     int(r.failed.Load()),
	}

	l.Info("prefetch finished",
		"total", progress.Total,
		"completed", progress.Completed,
		"downloaded", progress.Downloaded,
		"skipped", progress.Skipped,
		"failed", progress.Failed,
	)

	return progress, nil
}

// processTile settles exactly one worklist tile: completed increments
// once, into exactly one of downloaded, skipped or failed.
func (r *runner) processTile(ctx context.Context, tile geo.Tile) {
	defer r.completed.Add(1)

	key, ok := tilecache.NewKey(r.opts.Provider, tile.Z, tile.X, tile.Y)
	if !ok {
		// Enumeration never yields out-of-range tiles; this is a bug.
		r.failed.Add(1)
		metrics.PrefetchFailed.Inc()
		r.logger.Error("prefetch produced an impossible tile", "z", tile.Z, "x", tile.X, "y", tile.Y)
		return
	}

	if entry, cached := r.cache.Get(key); cached && fetch.ValidTilePayload(entry.Data) {
		r.skipped.Add(1)
		metrics.PrefetchSkipped.Inc()
		return
	}

	url := r.fetcher.TileURL(r.opts.URLTemplate, r.opts.Subdomains, tile.Z, tile.X, tile.Y)

	result, err := r.fetchWithRetry(ctx, url)
	if err != nil {
		// Sparse coverage (4xx) and outages (retries exhausted) are both
		// expected during a prefetch; neither is a hard failure.
		r.skipped.Add(1)
		metrics.PrefetchSkipped.Inc()
		r.logger.Debug("prefetch tile skipped", "key", key.String(), "error", err)
		return
	}

	if err := r.cache.Put(key, result.Data); err != nil {
		r.failed.Add(1)
		metrics.PrefetchFailed.Inc()
		r.logger.Error("prefetch cache write failed", "key", key.String(), "error", err)
		return
	}

	r.downloaded.Add(1)
	metrics.PrefetchDownloaded.Inc()
}

// fetchWithRetry retries 5xx and transport failures at a constant delay.
// 4xx responses are permanent: the provider has no tile there.
func (r *runner) fetchWithRetry(ctx context.Context, url string) (*fetch.Result, error) {
	operation := func() (*fetch.Result, error) {
		result, err := r.fetcher.Tile(ctx, url)
		if err != nil {
			if fetch.IsClientError(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return result, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.opts.RetryDelay)),
		backoff.WithMaxTries(uint(r.opts.RetryCount)+1),
	)
}
