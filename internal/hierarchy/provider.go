package hierarchy

import (
	"context"
	"sync"
	"time"

	"github.com/gram-swasthya/platform/internal/scope"
)

// SnapshotLoader loads a fresh tree snapshot from persistence.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context) (*Store, error)
}

// Provider serves tree snapshots with a short TTL. Hierarchy reassignment is
// rare, so a few seconds of staleness is acceptable for reads; writes call
// Invalidate to force a reload on the next request.
type Provider struct {
	loader SnapshotLoader
	ttl    time.Duration

	mu       sync.RWMutex
	store    *Store
	loadedAt time.Time
}

// NewProvider creates a snapshot provider with the given TTL.
func NewProvider(loader SnapshotLoader, ttl time.Duration) *Provider {
	return &Provider{loader: loader, ttl: ttl}
}

// Snapshot returns the current tree snapshot, reloading if the cached one
// has expired.
func (p *Provider) Snapshot(ctx context.Context) (*Store, error) {
	p.mu.RLock()
	if p.store != nil && time.Since(p.loadedAt) < p.ttl {
		store := p.store
		p.mu.RUnlock()
		return store, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store != nil && time.Since(p.loadedAt) < p.ttl {
		return p.store, nil
	}

	store, err := p.loader.LoadSnapshot(ctx)
	if err != nil {
		// Serve the stale snapshot rather than failing reads outright.
		if p.store != nil {
			return p.store, nil
		}
		return nil, err
	}
	p.store = store
	p.loadedAt = time.Now()
	return store, nil
}

// Invalidate drops the cached snapshot.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.store = nil
	p.mu.Unlock()
}

// Trees adapts the provider to the scope resolver's tree source.
func (p *Provider) Trees() scope.TreeSource {
	return treeSource{p}
}

type treeSource struct {
	provider *Provider
}

func (t treeSource) Snapshot(ctx context.Context) (scope.Tree, error) {
	return t.provider.Snapshot(ctx)
}
