// Package geo holds the slippy-map tile arithmetic shared by the cache,
// the overzoom resolver and the prefetcher.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	// TileSize is the pixel edge of a standard raster map tile.
	TileSize = 256

	// MaxLatitude bounds the Web Mercator projection.
	MaxLatitude = 85.05112878
)

// BBox is a geographic bounding box in degrees.
type BBox struct {
	North float64
	South float64
	West  float64
	East  float64
}

// Tile identifies one cell of the zoom-level grid.
type Tile struct {
	Z int
	X int
	Y int
}

// TileRange is the inclusive rectangle of tile indices covering a bbox
// at a single zoom level.
type TileRange struct {
	Zoom int
	XMin int
	XMax int
	YMin int
	YMax int
}

// Count returns the number of tiles in the range.
func (r TileRange) Count() int {
	w := r.XMax - r.XMin + 1
	h := r.YMax - r.YMin + 1
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return w * h
}

// Tiles enumerates every tile index in the range, row by row.
func (r TileRange) Tiles() []Tile {
	tiles := make([]Tile, 0, r.Count())
	for y := r.YMin; y <= r.YMax; y++ {
		for x := r.XMin; x <= r.XMax; x++ {
			tiles = append(tiles, Tile{Z: r.Zoom, X: x, Y: y})
		}
	}
	return tiles
}

// RangeForBBox projects a bounding box to the tile indices covering it
// at the given zoom. Latitude is clamped to the Mercator bounds and
// longitude normalized into [-180, 180) before projecting.
func RangeForBBox(b BBox, zoom int) TileRange {
	north := ClampLatitude(b.North)
	south := ClampLatitude(b.South)
	west := NormalizeLongitude(b.West)
	east := NormalizeLongitude(b.East)

	nw := maptile.At(orb.Point{west, north}, maptile.Zoom(zoom))
	se := maptile.At(orb.Point{east, south}, maptile.Zoom(zoom))

	max := (1 << uint(zoom)) - 1

	xMax := clampIndex(int(se.X), max)
	// The east edge is a closed boundary: a box ending on the date line
	// reaches the last column, it does not wrap to column zero.
	if east == -180 && b.East > b.West {
		xMax = max
	}

	return TileRange{
		Zoom: zoom,
		XMin: clampIndex(int(nw.X), max),
		XMax: xMax,
		YMin: clampIndex(int(nw.Y), max),
		YMax: clampIndex(int(se.Y), max),
	}
}

// Normalize wraps x around the antimeridian and validates y for zoom z.
// The returned flag is false when the tile cannot exist at this zoom.
func Normalize(z, x, y int) (int, int, bool) {
	if z < 0 {
		return 0, 0, false
	}
	n := 1 << uint(z)
	x = ((x % n) + n) % n
	if y < 0 || y >= n {
		return x, y, false
	}
	return x, y, true
}

// ClampLatitude limits lat to the range where Web Mercator is defined.
func ClampLatitude(lat float64) float64 {
	return math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
}

// NormalizeLongitude wraps lon into [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func clampIndex(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}
