package engine

import (
	"context"
	"testing"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/patterns"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/schema"
)

func testCatalog() *schema.Catalog {
	return &schema.Catalog{
		Version: "v1",
		Types: map[string]schema.TypeDecl{
			"rp_provision": {
				Name: "rp_provision",
				Kind: schema.KindAnchor,
				Attributes: []schema.AttributeDecl{
					{Name: "restricts_ip_transfer", ValueKind: domain.KindBoolean, Cardinality: schema.CardOptional},
					{Name: "covered_entities", ValueKind: domain.KindOption, ConceptType: "covered_entity_type", Cardinality: schema.CardMany},
					{Name: "blockers", ValueKind: domain.KindEntity, EntityType: "jcrew_blocker", Cardinality: schema.CardMany},
				},
			},
			"jcrew_blocker": {
				Name: "jcrew_blocker",
				Kind: schema.KindEntity,
				Attributes: []schema.AttributeDecl{
					{Name: "blocker_scope", ValueKind: domain.KindString, Cardinality: schema.CardOptional},
				},
			},
		},
		Categories: []schema.Category{
			{Name: "jcrew_protections", Order: 1, ProvisionType: "rp_provision"},
		},
		Questions: []schema.QuestionShape{
			{
				QuestionID:      "restricts_ip_transfer",
				Text:            "Does the provision restrict transfers of material IP?",
				Category:        "jcrew_protections",
				CategoryOrder:   1,
				QuestionOrder:   1,
				TargetAttribute: "restricts_ip_transfer",
			},
		},
		Concepts: map[string][]schema.ConceptOption{
			"covered_entity_type": {
				{ConceptID: "restricted_subsidiary", ConceptType: "covered_entity_type"},
			},
		},
		Hierarchies: map[string]schema.Hierarchy{
			"blocker": {Name: "blocker", BaseType: "jcrew_blocker", AttachmentRel: "has_blocker", ParentType: "rp_provision"},
		},
		PatternFlags: []schema.PatternFlag{
			{Name: "jcrew_vulnerable", PatternID: "jcrew_vulnerable"},
		},
		Patterns: []schema.PatternDef{
			{PatternID: "jcrew_vulnerable", ConditionJSON: `{"fact": {"field": "restricts_ip_transfer", "equals": false}}`},
		},
	}
}

type fakeSchemas struct {
	cat *schema.Catalog
}

func (f *fakeSchemas) Current(ctx context.Context) (*schema.Catalog, error)    { return f.cat, nil }
func (f *fakeSchemas) EnsureFresh(ctx context.Context) (*schema.Catalog, error) { return f.cat, nil }

type fakeStore struct {
	anchors  map[string]domain.AnchorRef
	scalars  map[string]domain.FieldValue
	marks    map[string]domain.FieldValue
	entities []string
	flags    map[string]bool

	failScalarField string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		anchors: map[string]domain.AnchorRef{},
		scalars: map[string]domain.FieldValue{},
		marks:   map[string]domain.FieldValue{},
		flags:   map[string]bool{},
	}
}

func (f *fakeStore) EnsureAnchor(ctx context.Context, anchor domain.AnchorRef) error {
	f.anchors[anchor.Key] = anchor
	return nil
}

func (f *fakeStore) StoreScalar(ctx context.Context, anchorKey string, fv domain.FieldValue) error {
	if fv.FieldID == f.failScalarField {
		return enginerr.Newf(enginerr.KindStore, "fake.StoreScalar", "simulated failure")
	}
	f.scalars[fv.FieldID] = fv
	return nil
}

func (f *fakeStore) StoreApplicability(ctx context.Context, anchorKey string, fv domain.FieldValue) error {
	f.marks[fv.FieldID] = fv
	return nil
}

func (f *fakeStore) StoreEntity(ctx context.Context, cat *schema.Catalog, anchorKey, baseType string, rec *domain.EntityRecord) ([]string, error) {
	if !cat.IsSubtypeOf(rec.Subtype, baseType) {
		return nil, enginerr.Newf(enginerr.KindInvalidSubtype, "fake.StoreEntity", "subtype %q outside %s", rec.Subtype, baseType)
	}
	id := "ent-" + rec.Subtype
	f.entities = append(f.entities, id)
	return []string{id}, nil
}

func (f *fakeStore) StorePatternFlag(ctx context.Context, cat *schema.Catalog, anchorKey, flagName string, value bool) error {
	if !cat.AllowedAnchorFlag(flagName) {
		return enginerr.Newf(enginerr.KindAnchorPurity, "fake.StorePatternFlag", "flag %q not declared", flagName)
	}
	f.flags[flagName] = value
	return nil
}

// Reads come from what the store already holds, so flag recompute sees the
// facts the run just wrote.
func (f *fakeStore) ScalarBool(ctx context.Context, anchorKey, fieldID string) (bool, bool, error) {
	fv, ok := f.scalars[fieldID]
	if !ok || len(fv.Values) == 0 || fv.Values[0].Kind != domain.KindBoolean {
		return false, false, nil
	}
	return fv.Values[0].Bool, true, nil
}

func (f *fakeStore) ScalarNumber(ctx context.Context, anchorKey, fieldID string) (float64, bool, error) {
	fv, ok := f.scalars[fieldID]
	if !ok || len(fv.Values) == 0 || fv.Values[0].Kind != domain.KindNumber {
		return 0, false, nil
	}
	return fv.Values[0].Num, true, nil
}

func (f *fakeStore) ApplicabilityStatus(ctx context.Context, anchorKey, conceptID string) (domain.Applicability, bool, error) {
	for _, fv := range f.marks {
		for _, v := range fv.Values {
			if v.Option == conceptID {
				return v.Status, true, nil
			}
		}
	}
	return "", false, nil
}

func (f *fakeStore) EntityCount(ctx context.Context, anchorKey, entityType string) (int, error) {
	return len(f.entities), nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

func testEngine(t *testing.T, store *fakeStore) *Engine {
	t.Helper()
	log := testLogger(t)
	return New(&fakeSchemas{cat: testCatalog()}, store, store, patterns.NewRegistry(log), nil, log)
}

func prov() map[string]interface{} {
	return map[string]interface{}{
		"source_text":    "No Restricted Payment shall be made...",
		"source_section": "Section 4.07",
	}
}

func validRaw() domain.RawRecord {
	return domain.RawRecord{
		"restricts_ip_transfer": map[string]interface{}{"value": false, "provenance": prov()},
		"covered_entities": map[string]interface{}{
			"included":   []interface{}{"restricted_subsidiary"},
			"provenance": prov(),
		},
		"blockers": []interface{}{
			map[string]interface{}{
				"subtype":       "jcrew_blocker",
				"blocker_scope": "material IP",
				"provenance":    prov(),
			},
		},
	}
}

func TestRun_PersistsAllThreeChannelsAndRecomputesFlags(t *testing.T) {
	store := newFakeStore()
	eng := testEngine(t, store)

	report, err := eng.Run(context.Background(), Request{
		DealID:        "deal1",
		ProvisionType: "rp_provision",
		Raw:           validRaw(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.State != StatePersisted {
		t.Fatalf("expected persisted state, got %s", report.State)
	}
	if report.ScalarWrites != 1 || report.MultiWrites != 1 || report.EntityWrites != 1 {
		t.Fatalf("unexpected write counts: %+v", report)
	}
	if len(report.WriteErrors) != 0 {
		t.Fatalf("unexpected write errors: %v", report.WriteErrors)
	}
	if _, ok := store.anchors["deal1:rp_provision"]; !ok {
		t.Fatalf("anchor was not ensured")
	}
	// restricts_ip_transfer=false makes the anchor vulnerable.
	if !store.flags["jcrew_vulnerable"] {
		t.Fatalf("expected jcrew_vulnerable flag set, got %v", store.flags)
	}
	if report.Flags["jcrew_vulnerable"] != true {
		t.Fatalf("report must carry recomputed flags")
	}
}

func TestRun_ValidationFailureWritesNothing(t *testing.T) {
	store := newFakeStore()
	eng := testEngine(t, store)

	raw := validRaw()
	raw["covered_entities"] = true // bare boolean, tri-state violation
	raw["not_declared"] = map[string]interface{}{"value": 1, "provenance": prov()}

	report, err := eng.Run(context.Background(), Request{
		DealID:        "deal1",
		ProvisionType: "rp_provision",
		Raw:           raw,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.State != StateIntrospected {
		t.Fatalf("expected run to stop after introspection, got %s", report.State)
	}
	if len(report.ValidationErrors) < 2 {
		t.Fatalf("expected collected validation errors, got %v", report.ValidationErrors)
	}
	if len(store.anchors) != 0 || len(store.scalars) != 0 || len(store.marks) != 0 || len(store.entities) != 0 {
		t.Fatalf("validation failure must not touch the store")
	}
}

func TestRun_FieldWriteFailureDoesNotAbortSiblings(t *testing.T) {
	store := newFakeStore()
	store.failScalarField = "restricts_ip_transfer"
	eng := testEngine(t, store)

	report, err := eng.Run(context.Background(), Request{
		DealID:        "deal1",
		ProvisionType: "rp_provision",
		Raw:           validRaw(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.State != StatePersisted {
		t.Fatalf("expected persisted state, got %s", report.State)
	}
	if len(report.WriteErrors) != 1 || report.WriteErrors[0].FieldID != "restricts_ip_transfer" {
		t.Fatalf("expected one write error for the failing field, got %v", report.WriteErrors)
	}
	if report.MultiWrites != 1 || report.EntityWrites != 1 {
		t.Fatalf("sibling channels must still persist: %+v", report)
	}
}

func TestRun_UnknownAnchorTypeFails(t *testing.T) {
	store := newFakeStore()
	eng := testEngine(t, store)

	_, err := eng.Run(context.Background(), Request{
		DealID:        "deal1",
		ProvisionType: "no_such_provision",
		Raw:           validRaw(),
	})
	if enginerr.KindOf(err) != enginerr.KindUnknownType {
		t.Fatalf("expected unknown type, got %v", err)
	}
}

func TestRun_CancellationHonoredBeforeFirstWrite(t *testing.T) {
	store := newFakeStore()
	eng := testEngine(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Run(ctx, Request{
		DealID:        "deal1",
		ProvisionType: "rp_provision",
		Raw:           validRaw(),
	})
	if err == nil {
		t.Fatalf("expected context error")
	}
	if len(store.anchors) != 0 || len(store.scalars) != 0 {
		t.Fatalf("cancelled run must not write")
	}
}

func TestRun_IsIdempotentAcrossReruns(t *testing.T) {
	store := newFakeStore()
	eng := testEngine(t, store)
	req := Request{DealID: "deal1", ProvisionType: "rp_provision", Raw: validRaw()}

	for i := 0; i < 2; i++ {
		if _, err := eng.Run(context.Background(), req); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	// Keyed upserts converge: one anchor, one value per field.
	if len(store.anchors) != 1 {
		t.Fatalf("expected one anchor, got %d", len(store.anchors))
	}
	if len(store.scalars) != 1 || len(store.marks) != 1 {
		t.Fatalf("expected keyed upserts to converge, scalars=%d marks=%d", len(store.scalars), len(store.marks))
	}
}

func TestRecomputeFlags_OnlyDeclaredFlagsLand(t *testing.T) {
	store := newFakeStore()
	eng := testEngine(t, store)

	if _, err := eng.Run(context.Background(), Request{
		DealID:        "deal1",
		ProvisionType: "rp_provision",
		Raw:           validRaw(),
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	flags, err := eng.RecomputeFlags(context.Background(), "deal1:rp_provision")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if len(flags) != 1 {
		t.Fatalf("expected exactly the declared flags, got %v", flags)
	}
	if _, ok := flags["jcrew_vulnerable"]; !ok {
		t.Fatalf("declared flag missing from recompute: %v", flags)
	}
}

func TestRunBatch_ReportsLineUpWithRequests(t *testing.T) {
	store := newFakeStore()
	eng := testEngine(t, store)

	reqs := []Request{
		{DealID: "deal1", ProvisionType: "rp_provision", Raw: validRaw()},
		{DealID: "deal2", ProvisionType: "rp_provision", Raw: validRaw()},
	}
	reports, err := eng.RunBatch(context.Background(), reqs, 2)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].AnchorKey != "deal1:rp_provision" || reports[1].AnchorKey != "deal2:rp_provision" {
		t.Fatalf("reports out of order: %s, %s", reports[0].AnchorKey, reports[1].AnchorKey)
	}
}
