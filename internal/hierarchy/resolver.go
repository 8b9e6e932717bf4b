package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"iot-engine/internal/models"
)

var (
	// ErrNotFound is returned for unknown sites
	ErrNotFound = errors.New("site not found")
	// ErrInvalidScope is returned for scopes that cannot be resolved
	ErrInvalidScope = errors.New("invalid scope")
)

// Resolver answers which sites belong to a Holding, Brand or region
type Resolver interface {
	ResolveSites(ctx context.Context, scope models.Scope) ([]models.Site, error)
	GetSite(ctx context.Context, siteID string) (models.Site, error)
}

// ValidateScope checks that brand and holding scopes carry an id
func ValidateScope(scope models.Scope) error {
	switch scope.Kind {
	case models.ScopeAll:
		return nil
	case models.ScopeBrand, models.ScopeHolding:
		if scope.ID == "" {
			return fmt.Errorf("%w: %s scope needs an id", ErrInvalidScope, scope.Kind)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidScope, scope.Kind)
}

// Static is an in-memory resolver
type Static struct {
	mu    sync.RWMutex
	sites map[string]models.Site
}

var _ Resolver = (*Static)(nil)

// NewStatic creates a resolver over sites
func NewStatic(sites ...models.Site) *Static {
	s := &Static{sites: make(map[string]models.Site, len(sites))}
	for _, site := range sites {
		s.sites[site.ID] = site
	}
	return s
}

// Upsert adds or replaces a site
func (s *Static) Upsert(site models.Site) {
	s.mu.Lock()
	s.sites[site.ID] = site
	s.mu.Unlock()
}

// Discover registers siteID with every module enabled unless it is
// already known. It reports whether the site was new.
func (s *Static) Discover(siteID string) bool {
	if siteID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[siteID]; ok {
		return false
	}
	s.sites[siteID] = models.Site{
		ID:      siteID,
		Name:    siteID,
		Modules: models.EnabledModules{Energy: true, Air: true, Water: true},
	}
	return true
}

// ResolveSites returns the sites of scope ordered by id
func (s *Static) ResolveSites(_ context.Context, scope models.Scope) ([]models.Site, error) {
	if err := ValidateScope(scope); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Site, 0, len(s.sites))
	for _, site := range s.sites {
		if scope.Contains(site) {
			out = append(out, site)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Static) GetSite(_ context.Context, siteID string) (models.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return models.Site{}, fmt.Errorf("%w: %s", ErrNotFound, siteID)
	}
	return site, nil
}
