package routing

import (
	"testing"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
	"github.com/yungbote/valence-backend/internal/schema"
)

func TestRoute_ScalarKinds(t *testing.T) {
	for _, kind := range []domain.ValueKind{domain.KindBoolean, domain.KindString, domain.KindNumber, domain.KindInteger} {
		ch, err := Route(schema.FieldShape{FieldID: "f", ValueKind: kind})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", kind, err)
		}
		if ch != ChannelScalar {
			t.Fatalf("%s: expected scalar channel, got %s", kind, ch)
		}
	}
}

func TestRoute_OptionNeedsConceptType(t *testing.T) {
	ch, err := Route(schema.FieldShape{FieldID: "f", ValueKind: domain.KindOption, ConceptType: "exclusion_type"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch != ChannelMultiselect {
		t.Fatalf("expected multiselect, got %s", ch)
	}

	_, err = Route(schema.FieldShape{FieldID: "f", ValueKind: domain.KindOption})
	if enginerr.KindOf(err) != enginerr.KindSchemaMismatch {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestRoute_EntityNeedsHierarchyBase(t *testing.T) {
	ch, err := Route(schema.FieldShape{FieldID: "f", ValueKind: domain.KindEntity, EntityType: "basket"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch != ChannelEntity {
		t.Fatalf("expected entity channel, got %s", ch)
	}

	_, err = Route(schema.FieldShape{FieldID: "f", ValueKind: domain.KindEntity})
	if enginerr.KindOf(err) != enginerr.KindSchemaMismatch {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestRoute_UndeclaredKindFails(t *testing.T) {
	_, err := Route(schema.FieldShape{FieldID: "f", ValueKind: "timestamp"})
	if enginerr.KindOf(err) != enginerr.KindSchemaMismatch {
		t.Fatalf("expected schema mismatch for undeclared kind, got %v", err)
	}
}
