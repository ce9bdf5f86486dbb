package resolve

import (
	"context"
	"errors"
	"testing"
)

func cacheCandidate() *Candidate {
	return &Candidate{Data: []byte("cached"), ContentType: "image/png"}
}

func networkCandidate() *Candidate {
	return &Candidate{Data: []byte("fresh"), ContentType: "image/png"}
}

func TestOfflineServesCache(t *testing.T) {
	networkCalled := false

	candidate, ok := Tile(context.Background(), Params{
		Online: false,
		FromCache: func() (*Candidate, bool) {
			return cacheCandidate(), true
		},
		FromNetwork: func(ctx context.Context) (*Candidate, error) {
			networkCalled = true
			return networkCandidate(), nil
		},
	})

	if !ok {
		t.Fatalf("expected candidate")
	}
	if candidate.Source != SourceCache {
		t.Fatalf("expected cache source, got %q", candidate.Source)
	}
	if networkCalled {
		t.Fatalf("offline resolution must never touch the network")
	}
}

func TestOfflineEmptyCacheYieldsNothing(t *testing.T) {
	_, ok := Tile(context.Background(), Params{
		Online: false,
		FromCache: func() (*Candidate, bool) {
			return nil, false
		},
		FromNetwork: func(ctx context.Context) (*Candidate, error) {
			t.Fatalf("network must not be consulted while offline")
			return nil, nil
		},
	})
	if ok {
		t.Fatalf("expected no candidate")
	}
}

func TestOnlinePrefersNetwork(t *testing.T) {
	candidate, ok := Tile(context.Background(), Params{
		Online: true,
		FromCache: func() (*Candidate, bool) {
			t.Fatalf("cache must not be consulted when the network succeeds")
			return nil, false
		},
		FromNetwork: func(ctx context.Context) (*Candidate, error) {
			return networkCandidate(), nil
		},
	})

	if !ok {
		t.Fatalf("expected candidate")
	}
	if candidate.Source != SourceNetwork {
		t.Fatalf("expected network source, got %q", candidate.Source)
	}
	if string(candidate.Data) != "fresh" {
		t.Fatalf("network candidate must carry the fetched bytes")
	}
}

func TestOnlineNetworkFailureFallsBackToCache(t *testing.T) {
	candidate, ok := Tile(context.Background(), Params{
		Online: true,
		FromCache: func() (*Candidate, bool) {
			return cacheCandidate(), true
		},
		FromNetwork: func(ctx context.Context) (*Candidate, error) {
			return nil, errors.New("connection reset")
		},
	})

	if !ok {
		t.Fatalf("expected fallback candidate")
	}
	if candidate.Source != SourceCache {
		t.Fatalf("fallback must be tagged cache, got %q", candidate.Source)
	}
}

func TestOnlineNetworkFailureEmptyCacheYieldsNothing(t *testing.T) {
	_, ok := Tile(context.Background(), Params{
		Online: true,
		FromCache: func() (*Candidate, bool) {
			return nil, false
		},
		FromNetwork: func(ctx context.Context) (*Candidate, error) {
			return nil, errors.New("dns failure")
		},
	})
	if ok {
		t.Fatalf("expected no candidate")
	}
}
