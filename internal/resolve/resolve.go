// Package resolve decides, per tile, whether to go to the network or
// serve from the cache hierarchy. Connectivity is an explicit parameter
// so the strategy stays a pure, testable function.
package resolve

import "context"

// Source tags where a candidate's bytes came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
)

// Candidate is a resolved tile image ready to hand to the renderer.
type Candidate struct {
	Data        []byte
	ContentType string
	Source      Source
}

// Params supplies the strategy's inputs. FromCache consults the cache
// hierarchy (including overzoom synthesis); FromNetwork performs a live
// fetch and is never called while offline.
type Params struct {
	Online      bool
	FromCache   func() (*Candidate, bool)
	FromNetwork func(ctx context.Context) (*Candidate, error)
}

// Tile resolves one tile. A candidate tagged SourceNetwork is guaranteed
// to carry bytes from the fetch just performed; every network failure
// falls back to the cache hierarchy.
func Tile(ctx context.Context, p Params) (*Candidate, bool) {
	if !p.Online {
		return fromCache(p)
	}

	candidate, err := p.FromNetwork(ctx)
	if err == nil && candidate != nil {
		candidate.Source = SourceNetwork
		return candidate, true
	}

	return fromCache(p)
}

func fromCache(p Params) (*Candidate, bool) {
	candidate, ok := p.FromCache()
	if !ok {
		return nil, false
	}
	candidate.Source = SourceCache
	return candidate, true
}
