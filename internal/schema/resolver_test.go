package schema

import (
	"testing"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
)

func testCatalog() *Catalog {
	return &Catalog{
		Version: "test-1",
		Types: map[string]TypeDecl{
			"rp_provision": {
				Name: "rp_provision",
				Kind: KindAnchor,
				Attributes: []AttributeDecl{
					{Name: "restricts_ip_transfer", ValueKind: domain.KindBoolean, Cardinality: CardOptional},
					{Name: "lifetime_cap_usd", ValueKind: domain.KindNumber, Cardinality: CardOptional},
					{Name: "covered_entities", ValueKind: domain.KindOption, ConceptType: "covered_entity_type", Cardinality: CardMany},
					{Name: "blockers", ValueKind: domain.KindEntity, EntityType: "jcrew_blocker", Cardinality: CardMany},
				},
			},
			"basket": {
				Name: "basket",
				Kind: KindEntity,
				Attributes: []AttributeDecl{
					{Name: "basket_name", ValueKind: domain.KindString, Cardinality: CardOne, NaturalKey: true},
					{Name: "capacity_usd", ValueKind: domain.KindNumber, Cardinality: CardOptional},
				},
			},
			"ratio_basket": {
				Name:      "ratio_basket",
				Kind:      KindEntity,
				Supertype: "basket",
				Attributes: []AttributeDecl{
					{Name: "ratio_threshold", ValueKind: domain.KindNumber, Cardinality: CardOptional},
				},
			},
			"jcrew_blocker": {
				Name: "jcrew_blocker",
				Kind: KindEntity,
				Attributes: []AttributeDecl{
					{Name: "blocker_scope", ValueKind: domain.KindString, Cardinality: CardOptional},
					{Name: "exceptions", ValueKind: domain.KindEntity, EntityType: "blocker_exception", Cardinality: CardMany},
				},
			},
			"blocker_exception": {
				Name: "blocker_exception",
				Kind: KindEntity,
				Attributes: []AttributeDecl{
					{Name: "exception_label", ValueKind: domain.KindString, Cardinality: CardOne, NaturalKey: true},
				},
			},
		},
		Categories: []Category{
			{Name: "jcrew_protections", Order: 2, ProvisionType: "rp_provision"},
			{Name: "lifetime_carveouts", Order: 1, ProvisionType: "rp_provision"},
		},
		Questions: []QuestionShape{
			{QuestionID: "q_rp_020", Category: "jcrew_protections", CategoryOrder: 2, QuestionOrder: 1, TargetAttribute: "restricts_ip_transfer", AnswerType: domain.KindBoolean},
			{QuestionID: "q_rp_002", Category: "lifetime_carveouts", CategoryOrder: 1, QuestionOrder: 2, TargetAttribute: "lifetime_cap_usd", AnswerType: domain.KindNumber},
			{QuestionID: "q_rp_001", Category: "lifetime_carveouts", CategoryOrder: 1, QuestionOrder: 1, TargetAttribute: "restricts_ip_transfer", AnswerType: domain.KindBoolean},
		},
		Concepts: map[string][]ConceptOption{
			"covered_entity_type": {
				{ConceptID: "restricted_subsidiary", ConceptType: "covered_entity_type"},
				{ConceptID: "unrestricted_subsidiary", ConceptType: "covered_entity_type"},
			},
		},
		Hierarchies: map[string]Hierarchy{
			"basket":            {Name: "basket", BaseType: "basket", AttachmentRel: "has_basket", ParentType: "rp_provision"},
			"blocker":           {Name: "blocker", BaseType: "jcrew_blocker", AttachmentRel: "has_blocker", ParentType: "rp_provision"},
			"blocker_exception": {Name: "blocker_exception", BaseType: "blocker_exception", AttachmentRel: "has_exception", ParentType: "jcrew_blocker"},
		},
		PatternFlags: []PatternFlag{
			{Name: "jcrew_vulnerable", PatternID: "jcrew_vulnerable"},
		},
	}
}

func TestResolveQuestionSet_OrdersByCategoryThenQuestion(t *testing.T) {
	cat := testCatalog()
	questions, err := cat.ResolveQuestionSet("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
	want := []string{"q_rp_001", "q_rp_002", "q_rp_020"}
	for i, id := range want {
		if questions[i].QuestionID != id {
			t.Fatalf("position %d: expected %s got %s", i, id, questions[i].QuestionID)
		}
	}
}

func TestResolveQuestionSet_UnknownCategoryFails(t *testing.T) {
	cat := testCatalog()
	_, err := cat.ResolveQuestionSet("no_such_category")
	if err == nil {
		t.Fatalf("expected error for undeclared category")
	}
	if enginerr.KindOf(err) != enginerr.KindUnknownType {
		t.Fatalf("expected unknown type kind, got %v", enginerr.KindOf(err))
	}
}

func TestResolveQuestionSet_DeclaredEmptyCategoryIsNotAnError(t *testing.T) {
	cat := testCatalog()
	cat.Categories = append(cat.Categories, Category{Name: "empty_cat", Order: 9, ProvisionType: "rp_provision"})
	questions, err := cat.ResolveQuestionSet("empty_cat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(questions) != 0 {
		t.Fatalf("expected empty set, got %d", len(questions))
	}
}

func TestResolveEntityShape_InheritsAttributesAndHierarchy(t *testing.T) {
	cat := testCatalog()
	shape, err := cat.ResolveEntityShape("ratio_basket")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := shape.Attribute("basket_name"); !ok {
		t.Fatalf("expected inherited basket_name attribute")
	}
	if _, ok := shape.Attribute("ratio_threshold"); !ok {
		t.Fatalf("expected own ratio_threshold attribute")
	}
	if shape.AttachmentRel != "has_basket" {
		t.Fatalf("expected attachment rel has_basket, got %q", shape.AttachmentRel)
	}
	if shape.NaturalKey != "basket_name" {
		t.Fatalf("expected natural key basket_name, got %q", shape.NaturalKey)
	}
	if len(shape.Supertypes) != 1 || shape.Supertypes[0] != "basket" {
		t.Fatalf("unexpected supertype chain: %v", shape.Supertypes)
	}
}

func TestResolveEntityShape_UnknownTypeFails(t *testing.T) {
	cat := testCatalog()
	if _, err := cat.ResolveEntityShape("no_such_type"); err == nil {
		t.Fatalf("expected error for undeclared type")
	}
}

func TestResolveExtractionShape_DerivesFieldsFromCatalog(t *testing.T) {
	cat := testCatalog()
	shape, err := cat.ResolveExtractionShape("rp_provision")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	field, ok := shape.Field("q_rp_020")
	if !ok {
		t.Fatalf("expected question field q_rp_020")
	}
	if field.ValueKind != domain.KindBoolean {
		t.Fatalf("expected boolean kind from target attribute, got %s", field.ValueKind)
	}

	opt, ok := shape.Field("covered_entities")
	if !ok {
		t.Fatalf("expected option field covered_entities")
	}
	if opt.ConceptType != "covered_entity_type" || len(opt.Options) != 2 {
		t.Fatalf("unexpected option field: %+v", opt)
	}

	ent, ok := shape.Field("blockers")
	if !ok {
		t.Fatalf("expected entity field blockers")
	}
	if ent.EntityType != "jcrew_blocker" {
		t.Fatalf("unexpected entity base type %q", ent.EntityType)
	}
}

func TestResolveExtractionShape_RejectsNonAnchor(t *testing.T) {
	cat := testCatalog()
	if _, err := cat.ResolveExtractionShape("basket"); err == nil {
		t.Fatalf("expected error for non-anchor type")
	}
}

func TestIsSubtypeOf_WalksChain(t *testing.T) {
	cat := testCatalog()
	if !cat.IsSubtypeOf("ratio_basket", "basket") {
		t.Fatalf("ratio_basket should be a basket")
	}
	if cat.IsSubtypeOf("jcrew_blocker", "basket") {
		t.Fatalf("jcrew_blocker is not a basket")
	}
}

func TestAllowedAnchorFlag(t *testing.T) {
	cat := testCatalog()
	if !cat.AllowedAnchorFlag("jcrew_vulnerable") {
		t.Fatalf("declared flag should be allowed")
	}
	if cat.AllowedAnchorFlag("ad_hoc_note") {
		t.Fatalf("undeclared flag must not be allowed")
	}
}
