// Package overzoom locates a cached ancestor for a tile requested beyond
// the provider's native zoom and synthesizes the requested tile by
// cropping and upscaling the ancestor image.
package overzoom

import (
	"bytes"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	"github.com/tidecharts/tilecache/internal/geo"
	"github.com/tidecharts/tilecache/internal/tilecache"
	"github.com/tidecharts/tilecache/pkg/logger"
	"github.com/tidecharts/tilecache/pkg/metrics"
)

// SourceRequest maps a requested tile onto the cached ancestor that
// supplies its pixels. Scale is 2^(requestedZ - sourceZ) and the child
// offsets select which scale-fraction of the ancestor to crop.
type SourceRequest struct {
	Z            int
	X            int
	Y            int
	Scale        int
	ChildOffsetX int
	ChildOffsetY int
}

// Candidate is a cached ancestor found by ResolveAncestor.
type Candidate struct {
	Request     SourceRequest
	Data        []byte
	ContentType string
}

// TileCache is the subset of the tile cache the resolver needs.
type TileCache interface {
	Get(tilecache.Key) (tilecache.Entry, bool)
	Remove(tilecache.Key) error
}

// ResolveAncestor walks cached zoom levels from min(z, maxNativeZoom)
// down to 0 looking for an ancestor of the requested tile. Corrupt
// entries found along the way are deleted and the walk continues, so a
// damaged cache heals itself instead of wedging a tile.
func ResolveAncestor(cache TileCache, provider string, z, x, y, maxNativeZoom int, l logger.Logger) (*Candidate, bool) {
	startZ := z
	if maxNativeZoom < startZ {
		startZ = maxNativeZoom
	}

	for sourceZ := startZ; sourceZ >= 0; sourceZ-- {
		shift := uint(z - sourceZ)
		scale := 1 << shift
		srcX := x >> shift
		srcY := y >> shift

		key, ok := tilecache.NewKey(provider, sourceZ, srcX, srcY)
		if !ok {
			continue
		}

		entry, found := cache.Get(key)
		if !found {
			continue
		}

		if !ValidTileImage(entry.Data) {
			l.Warn("corrupt cached tile, removing", "key", key.String())
			if err := cache.Remove(key); err != nil {
				l.Error("failed to remove corrupt tile", "key", key.String(), "error", err)
			}
			continue
		}

		return &Candidate{
			Request: SourceRequest{
				Z:            sourceZ,
				X:            key.X,
				Y:            key.Y,
				Scale:        scale,
				ChildOffsetX: x & (scale - 1),
				ChildOffsetY: y & (scale - 1),
			},
			Data:        entry.Data,
			ContentType: entry.ContentType,
		}, true
	}

	return nil, false
}

// Synthesize produces the requested tile from the candidate ancestor.
// For an exact match the ancestor bytes pass through verbatim. Otherwise
// the scale-fraction sub-rectangle is cropped and resampled up to the
// native tile size with nearest-neighbor, which keeps chart linework
// crisp. Any decode or encode failure degrades to the raw ancestor.
func Synthesize(c *Candidate, l logger.Logger) ([]byte, string) {
	if c.Request.Scale == 1 {
		return c.Data, c.ContentType
	}

	img, _, err := image.Decode(bytes.NewReader(c.Data))
	if err != nil {
		l.Warn("overzoom decode failed, serving ancestor unscaled", "error", err)
		return c.Data, c.ContentType
	}

	b := img.Bounds()
	cropW := b.Dx() / c.Request.Scale
	cropH := b.Dy() / c.Request.Scale
	if cropW < 1 || cropH < 1 {
		return c.Data, c.ContentType
	}

	x0 := b.Min.X + c.Request.ChildOffsetX*cropW
	y0 := b.Min.Y + c.Request.ChildOffsetY*cropH
	if x0+cropW > b.Max.X {
		x0 = b.Max.X - cropW
	}
	if y0+cropH > b.Max.Y {
		y0 = b.Max.Y - cropH
	}
	crop := image.Rect(x0, y0, x0+cropW, y0+cropH)

	dst := image.NewRGBA(image.Rect(0, 0, geo.TileSize, geo.TileSize))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		l.Warn("overzoom encode failed, serving ancestor unscaled", "error", err)
		return c.Data, c.ContentType
	}

	metrics.OverzoomSynthesized.Inc()

	return buf.Bytes(), "image/png"
}

// ValidTileImage reports whether data is a non-empty, decodable image.
func ValidTileImage(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil
}
