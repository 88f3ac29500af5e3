package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kursadbilgin/publish-engine/internal/domain"
)

// Registry maps platform types to their publisher adapters.
type Registry struct {
	mu         sync.RWMutex
	publishers map[domain.PlatformType]Publisher
}

func NewRegistry() *Registry {
	return &Registry{publishers: make(map[domain.PlatformType]Publisher)}
}

func (r *Registry) Register(platformType domain.PlatformType, publisher Publisher) error {
	if !platformType.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedPlatform, platformType)
	}
	if publisher == nil {
		return fmt.Errorf("publisher for platform %s is nil", platformType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.publishers[platformType]; exists {
		return fmt.Errorf("publisher for platform %s already registered", platformType)
	}
	r.publishers[platformType] = publisher
	return nil
}

func (r *Registry) Lookup(platformType domain.PlatformType) (Publisher, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, platformType)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	publisher, ok := r.publishers[platformType]
	if !ok {
		return nil, fmt.Errorf("%w: no publisher registered for %s", domain.ErrUnsupportedPlatform, platformType)
	}
	return publisher, nil
}

func (r *Registry) Types() []domain.PlatformType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.PlatformType, 0, len(r.publishers))
	for t := range r.publishers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, content FormattedContent) (*Result, error)

func (f PublisherFunc) Publish(ctx context.Context, content FormattedContent) (*Result, error) {
	return f(ctx, content)
}
