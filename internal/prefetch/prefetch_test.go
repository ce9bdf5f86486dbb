package prefetch

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tidecharts/tilecache/internal/fetch"
	"github.com/tidecharts/tilecache/internal/geo"
	"github.com/tidecharts/tilecache/internal/repository/store"
	"github.com/tidecharts/tilecache/internal/tilecache"
	"github.com/tidecharts/tilecache/pkg/logger"
)

var testBBox = geo.BBox{North: 10, South: -10, West: -10, East: 10}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestCache(t *testing.T) *tilecache.Cache {
	t.Helper()
	c, err := tilecache.New(store.NewMemoryStore(), 1<<24, logger.NewNoOp())
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}

// countingServer tracks how many requests each tile path received.
type countingServer struct {
	mu       sync.Mutex
	attempts map[string]int
	srv      *httptest.Server
}

func newCountingServer(handler func(attempt int, w http.ResponseWriter, r *http.Request)) *countingServer {
	cs := &countingServer{attempts: make(map[string]int)}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.attempts[r.URL.Path]++
		attempt := cs.attempts[r.URL.Path]
		cs.mu.Unlock()
		handler(attempt, w, r)
	}))
	return cs
}

func (cs *countingServer) total() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for _, a := range cs.attempts {
		n += a
	}
	return n
}

func (cs *countingServer) options(zoomMin, zoomMax int) Options {
	return Options{
		Provider:    "test",
		URLTemplate: cs.srv.URL + "/{z}/{x}/{y}.png",
		BBox:        testBBox,
		ZoomMin:     zoomMin,
		ZoomMax:     zoomMax,
		Concurrency: 2,
		RetryCount:  2,
		RetryDelay:  time.Millisecond,
	}
}

func newFetcher() *fetch.Client {
	return fetch.NewClient(5*time.Second, "test-agent", logger.NewNoOp())
}

func TestDownloadsAllTiles(t *testing.T) {
	data := tinyPNG(t)
	cs := newCountingServer(func(attempt int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	})
	defer cs.srv.Close()

	cache := newTestCache(t)
	progress, err := Run(context.Background(), cache, newFetcher(), cs.options(0, 1), logger.NewNoOp())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Zoom 0 covers the bbox with 1 tile, zoom 1 with 4.
	if progress.Total != 5 {
		t.Fatalf("expected total 5, got %+v", progress)
	}
	if progress.Downloaded != 5 || progress.Skipped != 0 || progress.Failed != 0 {
		t.Fatalf("expected 5 downloads, got %+v", progress)
	}
	if progress.Completed != progress.Downloaded+progress.Skipped+progress.Failed {
		t.Fatalf("completed accounting broken: %+v", progress)
	}

	key, _ := tilecache.NewKey("test", 0, 0, 0)
	if _, ok := cache.Get(key); !ok {
		t.Fatalf("downloaded tile missing from cache")
	}
}

func TestSecondRunSkipsEverything(t *testing.T) {
	data := tinyPNG(t)
	cs := newCountingServer(func(attempt int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	})
	defer cs.srv.Close()

	cache := newTestCache(t)
	first, err := Run(context.Background(), cache, newFetcher(), cs.options(0, 1), logger.NewNoOp())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	requestsAfterFirst := cs.total()

	second, err := Run(context.Background(), cache, newFetcher(), cs.options(0, 1), logger.NewNoOp())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if second.Downloaded != 0 || second.Skipped != first.Total {
		t.Fatalf("second run must skip everything: %+v", second)
	}
	if cs.total() != requestsAfterFirst {
		t.Fatalf("second run must not touch the network: %d extra requests", cs.total()-requestsAfterFirst)
	}
}

func TestClientErrorNeverRetried(t *testing.T) {
	cs := newCountingServer(func(attempt int, w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	defer cs.srv.Close()

	progress, err := Run(context.Background(), newTestCache(t), newFetcher(), cs.options(0, 0), logger.NewNoOp())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if progress.Skipped != 1 || progress.Failed != 0 {
		t.Fatalf("404 must count as skipped, got %+v", progress)
	}
	if cs.total() != 1 {
		t.Fatalf("404 must be attempted exactly once, got %d attempts", cs.total())
	}
}

func TestServerErrorRetriedThenSkipped(t *testing.T) {
	cs := newCountingServer(func(attempt int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer cs.srv.Close()

	opts := cs.options(0, 0) // RetryCount: 2
	progress, err := Run(context.Background(), newTestCache(t), newFetcher(), opts, logger.NewNoOp())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if progress.Skipped != 1 || progress.Failed != 0 {
		t.Fatalf("exhausted retries must count as skipped, got %+v", progress)
	}
	// 1 initial attempt + RetryCount retries.
	if cs.total() != opts.RetryCount+1 {
		t.Fatalf("expected %d attempts, got %d", opts.RetryCount+1, cs.total())
	}
}

func TestTransientFailureThenSuccess(t *testing.T) {
	data := tinyPNG(t)
	cs := newCountingServer(func(attempt int, w http.ResponseWriter, r *http.Request) {
		if attempt == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	})
	defer cs.srv.Close()

	progress, err := Run(context.Background(), newTestCache(t), newFetcher(), cs.options(0, 0), logger.NewNoOp())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if progress.Downloaded != 1 {
		t.Fatalf("retry then success must count as downloaded, got %+v", progress)
	}
	if cs.total() != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", cs.total())
	}
}

func TestRevalidatesCorruptCachedTile(t *testing.T) {
	data := tinyPNG(t)
	cs := newCountingServer(func(attempt int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	})
	defer cs.srv.Close()

	cache := newTestCache(t)
	key, _ := tilecache.NewKey("test", 0, 0, 0)
	if err := cache.Put(key, []byte("corrupt bytes")); err != nil {
		t.Fatalf("put: %v", err)
	}

	progress, err := Run(context.Background(), cache, newFetcher(), cs.options(0, 0), logger.NewNoOp())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if progress.Downloaded != 1 || progress.Skipped != 0 {
		t.Fatalf("corrupt cached tile must be re-fetched, got %+v", progress)
	}

	entry, ok := cache.Get(key)
	if !ok || !bytes.Equal(entry.Data, data) {
		t.Fatalf("cache must hold the fresh tile")
	}
}

func TestCancelledRunReportsIncomplete(t *testing.T) {
	data := tinyPNG(t)
	cs := newCountingServer(func(attempt int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	})
	defer cs.srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	progress, err := Run(ctx, newTestCache(t), newFetcher(), cs.options(0, 1), logger.NewNoOp())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if progress.Total != 5 {
		t.Fatalf("total must reflect the full worklist, got %+v", progress)
	}
	if progress.Completed >= progress.Total {
		t.Fatalf("cancelled run must report incomplete progress, got %+v", progress)
	}
}

func TestOptionValidation(t *testing.T) {
	cache := newTestCache(t)
	fetcher := newFetcher()
	l := logger.NewNoOp()

	if _, err := Run(context.Background(), nil, fetcher, Options{}, l); err == nil {
		t.Fatalf("nil cache must be rejected")
	}
	if _, err := Run(context.Background(), cache, fetcher, Options{Provider: "p", URLTemplate: "https://example.com/static.png"}, l); err == nil {
		t.Fatalf("template without placeholders must be rejected")
	}
	if _, err := Run(context.Background(), cache, fetcher, Options{Provider: "p", URLTemplate: "https://e/{z}/{x}/{y}", ZoomMin: 5, ZoomMax: 2}, l); err == nil {
		t.Fatalf("inverted zoom range must be rejected")
	}
	if _, err := Run(context.Background(), cache, fetcher, Options{URLTemplate: "https://e/{z}/{x}/{y}"}, l); err == nil {
		t.Fatalf("missing provider must be rejected")
	}
}
