package schema

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yungbote/valence-backend/internal/platform/logger"
)

// CatalogLoader reads the schema catalog from the backing store. The graph
// layer provides the real implementation; tests supply fakes.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) (*Catalog, error)
	SchemaVersion(ctx context.Context) (string, error)
}

// Service is the process-wide catalog cache: an immutable snapshot behind an
// atomically swapped pointer. The snapshot is replaced only when an explicit
// version check against the store disagrees with the cached version — never on
// a timer.
type Service struct {
	loader CatalogLoader
	log    *logger.Logger

	cur      atomic.Pointer[Catalog]
	reloadMu sync.Mutex
}

func NewService(loader CatalogLoader, log *logger.Logger) *Service {
	return &Service{loader: loader, log: log.With("service", "SchemaService")}
}

// Current returns the cached snapshot, introspecting once on first use.
// Concurrent readers never block each other.
func (s *Service) Current(ctx context.Context) (*Catalog, error) {
	if cat := s.cur.Load(); cat != nil {
		return cat, nil
	}
	return s.reload(ctx, nil)
}

// EnsureFresh compares the cached version against the store and reloads on
// mismatch, so a schema change is visible to every caller after one
// introspection.
func (s *Service) EnsureFresh(ctx context.Context) (*Catalog, error) {
	cat := s.cur.Load()
	if cat == nil {
		return s.reload(ctx, nil)
	}
	version, err := s.loader.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	if version == cat.Version {
		return cat, nil
	}
	s.log.Info("Schema version changed, re-introspecting", "cached", cat.Version, "store", version)
	return s.reload(ctx, cat)
}

// Invalidate drops the snapshot; the next caller introspects.
func (s *Service) Invalidate() {
	s.cur.Store(nil)
}

// reload rebuilds the snapshot, single-flight: callers that queued behind the
// mutex while another rebuild replaced their stale snapshot reuse that result
// instead of introspecting again.
func (s *Service) reload(ctx context.Context, stale *Catalog) (*Catalog, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if cur := s.cur.Load(); cur != nil && cur != stale {
		return cur, nil
	}
	cat, err := s.loader.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	s.cur.Store(cat)
	s.log.Info("Schema catalog loaded",
		"version", cat.Version,
		"types", len(cat.Types),
		"questions", len(cat.Questions),
		"concept_types", len(cat.Concepts),
		"hierarchies", len(cat.Hierarchies),
		"patterns", len(cat.Patterns))
	return cat, nil
}
