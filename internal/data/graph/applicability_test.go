package graph

import (
	"testing"

	"github.com/yungbote/valence-backend/internal/platform/enginerr"
)

func TestApplicabilityOutcome_MissingAnchor(t *testing.T) {
	err := applicabilityOutcome("graph.StoreApplicability", 0, 0, 2, "deal-1:rp_provision")
	if err == nil {
		t.Fatalf("expected an error for a missing anchor")
	}
	if k := enginerr.KindOf(err); k != enginerr.KindAnchorNotFound {
		t.Fatalf("missing anchor must classify as anchor not found, got %s", k)
	}
}

func TestApplicabilityOutcome_MissingConcept(t *testing.T) {
	err := applicabilityOutcome("graph.StoreApplicability", 1, 1, 2, "deal-1:rp_provision")
	if err == nil {
		t.Fatalf("expected an error for an unmarked concept")
	}
	if k := enginerr.KindOf(err); k != enginerr.KindSchemaMismatch {
		t.Fatalf("missing concept must classify as schema mismatch, got %s", k)
	}
}

func TestApplicabilityOutcome_AllMarked(t *testing.T) {
	if err := applicabilityOutcome("graph.StoreApplicability", 1, 2, 2, "deal-1:rp_provision"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
