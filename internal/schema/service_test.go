package schema

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/valence-backend/internal/platform/logger"
)

type fakeLoader struct {
	version   string
	loads     int
	versionQs int
}

func (f *fakeLoader) LoadCatalog(ctx context.Context) (*Catalog, error) {
	f.loads++
	cat := testCatalog()
	cat.Version = f.version
	return cat, nil
}

func (f *fakeLoader) SchemaVersion(ctx context.Context) (string, error) {
	f.versionQs++
	return f.version, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

func TestServiceCurrent_IntrospectsOnceAndCaches(t *testing.T) {
	loader := &fakeLoader{version: "v1"}
	svc := NewService(loader, testLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cat, err := svc.Current(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cat.Version != "v1" {
			t.Fatalf("expected v1, got %s", cat.Version)
		}
	}
	if loader.loads != 1 {
		t.Fatalf("expected one introspection, got %d", loader.loads)
	}
}

func TestServiceEnsureFresh_ReloadsOnlyOnVersionMismatch(t *testing.T) {
	loader := &fakeLoader{version: "v1"}
	svc := NewService(loader, testLogger(t))
	ctx := context.Background()

	if _, err := svc.EnsureFresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.EnsureFresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loader.loads != 1 {
		t.Fatalf("matching version must not reload; loads=%d", loader.loads)
	}

	loader.version = "v2"
	cat, err := svc.EnsureFresh(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cat.Version != "v2" {
		t.Fatalf("expected reloaded v2, got %s", cat.Version)
	}
	if loader.loads != 2 {
		t.Fatalf("version mismatch must reload exactly once; loads=%d", loader.loads)
	}
}

type slowLoader struct {
	loads atomic.Int32
}

func (l *slowLoader) LoadCatalog(ctx context.Context) (*Catalog, error) {
	l.loads.Add(1)
	time.Sleep(10 * time.Millisecond)
	cat := testCatalog()
	cat.Version = "v1"
	return cat, nil
}

func (l *slowLoader) SchemaVersion(ctx context.Context) (string, error) {
	return "v1", nil
}

func TestServiceCurrent_ConcurrentColdStartIntrospectsOnce(t *testing.T) {
	loader := &slowLoader{}
	svc := NewService(loader, testLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cat, err := svc.Current(context.Background())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if cat.Version != "v1" {
				t.Errorf("expected v1, got %s", cat.Version)
			}
		}()
	}
	wg.Wait()

	if n := loader.loads.Load(); n != 1 {
		t.Fatalf("concurrent cold start must introspect once, got %d", n)
	}
}

func TestServiceInvalidate_ForcesReintrospection(t *testing.T) {
	loader := &fakeLoader{version: "v1"}
	svc := NewService(loader, testLogger(t))
	ctx := context.Background()

	if _, err := svc.Current(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Invalidate()
	if _, err := svc.Current(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loader.loads != 2 {
		t.Fatalf("expected reload after invalidate, loads=%d", loader.loads)
	}
}
