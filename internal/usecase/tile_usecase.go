package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tidecharts/tilecache/internal/fetch"
	"github.com/tidecharts/tilecache/internal/overzoom"
	"github.com/tidecharts/tilecache/internal/prefetch"
	"github.com/tidecharts/tilecache/internal/resolve"
	"github.com/tidecharts/tilecache/internal/tilecache"
	"github.com/tidecharts/tilecache/pkg/logger"
)

// ProviderConfig describes one tile source.
type ProviderConfig struct {
	Key           string
	URLTemplate   string
	Subdomains    string
	MaxNativeZoom int
}

// PrefetchDefaults are the configured tuning knobs applied when a
// prefetch request leaves them unset.
type PrefetchDefaults struct {
	Concurrency int
	RetryCount  int
	RetryDelay  time.Duration
}

type TileUseCase struct {
	cache            *tilecache.Cache
	fetcher          *fetch.Client
	provider         ProviderConfig
	prefetchDefaults PrefetchDefaults
	online           atomic.Bool
	logger           logger.Logger
}

func NewTileUseCase(cache *tilecache.Cache, fetcher *fetch.Client, provider ProviderConfig, defaults PrefetchDefaults, l logger.Logger) *TileUseCase {
	uc := &TileUseCase{
		cache:            cache,
		fetcher:          fetcher,
		provider:         provider,
		prefetchDefaults: defaults,
		logger:           l,
	}
	uc.online.Store(true)
	return uc
}

// SetOnline records the connectivity state the resolution strategy uses.
// Connectivity is explicit state, never sniffed ambiently.
func (uc *TileUseCase) SetOnline(online bool) {
	uc.online.Store(online)
	uc.logger.Info("network state changed", "online", online)
}

func (uc *TileUseCase) Online() bool {
	return uc.online.Load()
}

// GetTile resolves one tile for the renderer: network first while
// online, cache hierarchy with overzoom synthesis otherwise or on any
// network failure.
func (uc *TileUseCase) GetTile(ctx context.Context, z, x, y int) (*resolve.Candidate, bool) {
	key, ok := tilecache.NewKey(uc.provider.Key, z, x, y)
	if !ok {
		uc.logger.Warn("tile out of range", "z", z, "x", x, "y", y)
		return nil, false
	}

	return resolve.Tile(ctx, resolve.Params{
		Online:      uc.online.Load(),
		FromCache:   uc.cacheLoader(key),
		FromNetwork: uc.networkLoader(key),
	})
}

// cacheLoader walks the cache hierarchy for key and synthesizes the
// requested tile from whatever ancestor it finds.
func (uc *TileUseCase) cacheLoader(key tilecache.Key) func() (*resolve.Candidate, bool) {
	return func() (*resolve.Candidate, bool) {
		candidate, ok := overzoom.ResolveAncestor(uc.cache, key.Provider, key.Z, key.X, key.Y, uc.provider.MaxNativeZoom, uc.logger)
		if !ok {
			return nil, false
		}
		data, contentType := overzoom.Synthesize(candidate, uc.logger)
		return &resolve.Candidate{Data: data, ContentType: contentType}, true
	}
}

// networkLoader fetches key from the provider and stores it into the
// cache before returning, so the renderer and a concurrent prefetch see
// the same bytes.
func (uc *TileUseCase) networkLoader(key tilecache.Key) func(ctx context.Context) (*resolve.Candidate, error) {
	return func(ctx context.Context) (*resolve.Candidate, error) {
		url := uc.fetcher.TileURL(uc.provider.URLTemplate, uc.provider.Subdomains, key.Z, key.X, key.Y)

		result, err := uc.fetcher.Tile(ctx, url)
		if err != nil {
			return nil, err
		}

		if err := uc.cache.Put(key, result.Data); err != nil {
			uc.logger.Error("failed to cache fetched tile", "key", key.String(), "error", err)
		}

		return &resolve.Candidate{Data: result.Data, ContentType: result.ContentType}, nil
	}
}

// Prefetch bulk-downloads an area and zoom range into the cache,
// falling back to the configured provider when the request does not
// name one.
func (uc *TileUseCase) Prefetch(ctx context.Context, opts prefetch.Options) (prefetch.Progress, error) {
	if opts.Provider == "" {
		opts.Provider = uc.provider.Key
	}
	if opts.URLTemplate == "" {
		opts.URLTemplate = uc.provider.URLTemplate
		opts.Subdomains = uc.provider.Subdomains
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = uc.prefetchDefaults.Concurrency
	}
	// Zero is a deliberate choice (no retries, no delay); only a
	// negative value means the caller left the knob unset.
	if opts.RetryCount < 0 {
		opts.RetryCount = uc.prefetchDefaults.RetryCount
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = uc.prefetchDefaults.RetryDelay
	}
	return prefetch.Run(ctx, uc.cache, uc.fetcher, opts, uc.logger)
}

func (uc *TileUseCase) Stats() tilecache.Stats {
	return uc.cache.Stats()
}

func (uc *TileUseCase) ClearCache() error {
	return uc.cache.Clear()
}

func (uc *TileUseCase) SetMaxBytes(n int64) {
	uc.cache.SetMaxBytes(n)
	uc.logger.Info("cache quota updated", "max_bytes", n)
}
