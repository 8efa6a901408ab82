package patterns

import (
	"context"
	"testing"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/schema"
)

type fakeReader struct {
	bools    map[string]bool
	numbers  map[string]float64
	concepts map[string]domain.Applicability
	entities map[string]int

	scalarReads int
}

func (f *fakeReader) ScalarBool(ctx context.Context, anchorKey, fieldID string) (bool, bool, error) {
	f.scalarReads++
	v, ok := f.bools[fieldID]
	return v, ok, nil
}

func (f *fakeReader) ScalarNumber(ctx context.Context, anchorKey, fieldID string) (float64, bool, error) {
	v, ok := f.numbers[fieldID]
	return v, ok, nil
}

func (f *fakeReader) ApplicabilityStatus(ctx context.Context, anchorKey, conceptID string) (domain.Applicability, bool, error) {
	v, ok := f.concepts[conceptID]
	return v, ok, nil
}

func (f *fakeReader) EntityCount(ctx context.Context, anchorKey, entityType string) (int, error) {
	return f.entities[entityType], nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

func mustParse(t *testing.T, raw string) Condition {
	t.Helper()
	cond, err := ParseCondition(raw)
	if err != nil {
		t.Fatalf("parse condition: %v", err)
	}
	return cond
}

func TestParseCondition_RejectsMultipleBranches(t *testing.T) {
	_, err := ParseCondition(`{"pattern": "a", "fact": {"field": "q1", "equals": true}}`)
	if err == nil {
		t.Fatalf("expected error for condition with two branches")
	}
}

func TestParseCondition_RejectsBinaryConceptStatus(t *testing.T) {
	_, err := ParseCondition(`{"concept": {"concept_id": "yield_exclusion", "status": "true"}}`)
	if err == nil {
		t.Fatalf("expected error for non tri-state status")
	}
}

func TestRegister_RejectsCycleAtRegistration(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	if err := reg.Register(Pattern{ID: "a", Condition: mustParse(t, `{"pattern": "b"}`)}); err != nil {
		t.Fatalf("a composing unknown b must register: %v", err)
	}
	err := reg.Register(Pattern{ID: "b", Condition: mustParse(t, `{"pattern": "a"}`)})
	if err == nil {
		t.Fatalf("expected cycle rejection")
	}
	if enginerr.KindOf(err) != enginerr.KindCyclicPattern {
		t.Fatalf("expected cyclic pattern kind, got %v", enginerr.KindOf(err))
	}
	// The rejected registration must not poison the registry.
	if _, ok := reg.Get("b"); ok {
		t.Fatalf("rejected pattern must not stay registered")
	}
}

func TestRegister_RejectsSelfCycle(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	if err := reg.Register(Pattern{ID: "a", Condition: mustParse(t, `{"pattern": "a"}`)}); err == nil {
		t.Fatalf("expected self-cycle rejection")
	}
}

func TestEvaluate_ComposedPattern(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	if err := reg.Register(Pattern{
		ID:        "jcrew_blocker_present",
		Condition: mustParse(t, `{"entity": {"type": "jcrew_blocker"}}`),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(Pattern{
		ID: "jcrew_vulnerable",
		Condition: mustParse(t, `{"all": [
			{"fact": {"field": "q_rp_020", "equals": false}},
			{"not": {"pattern": "jcrew_blocker_present"}}
		]}`),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	reader := &fakeReader{
		bools:    map[string]bool{"q_rp_020": false},
		entities: map[string]int{},
	}
	matched, err := reg.Evaluate(context.Background(), reader, "deal1:rp_provision", "jcrew_vulnerable")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !matched {
		t.Fatalf("no IP restriction and no blocker should be vulnerable")
	}

	reader.entities["jcrew_blocker"] = 1
	matched, err = reg.Evaluate(context.Background(), reader, "deal1:rp_provision", "jcrew_vulnerable")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if matched {
		t.Fatalf("a present blocker should negate vulnerability")
	}
}

func TestEvaluate_AbsentBooleanFactMatchesEqualsFalseOnly(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	if err := reg.Register(Pattern{ID: "p_false", Condition: mustParse(t, `{"fact": {"field": "q_x", "equals": false}}`)}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(Pattern{ID: "p_true", Condition: mustParse(t, `{"fact": {"field": "q_x", "equals": true}}`)}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reader := &fakeReader{bools: map[string]bool{}}

	matched, err := reg.Evaluate(context.Background(), reader, "a", "p_false")
	if err != nil || !matched {
		t.Fatalf("absent fact should satisfy equals false, got %v %v", matched, err)
	}
	matched, err = reg.Evaluate(context.Background(), reader, "a", "p_true")
	if err != nil || matched {
		t.Fatalf("absent fact must not satisfy equals true, got %v %v", matched, err)
	}
}

func TestEvaluate_NumericRange(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	if err := reg.Register(Pattern{
		ID:        "big_cap",
		Condition: mustParse(t, `{"fact": {"field": "q_rp_002", "at_least": 100000000}}`),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reader := &fakeReader{numbers: map[string]float64{"q_rp_002": 250000000}}
	matched, err := reg.Evaluate(context.Background(), reader, "a", "big_cap")
	if err != nil || !matched {
		t.Fatalf("250M should satisfy at_least 100M, got %v %v", matched, err)
	}

	reader.numbers["q_rp_002"] = 5
	matched, err = reg.Evaluate(context.Background(), reader, "a", "big_cap")
	if err != nil || matched {
		t.Fatalf("5 must not satisfy at_least 100M, got %v %v", matched, err)
	}
}

func TestEvaluate_ConceptStatus(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	if err := reg.Register(Pattern{
		ID:        "yield_exclusion",
		Condition: mustParse(t, `{"concept": {"concept_id": "yield_exclusion", "status": "INCLUDED"}}`),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reader := &fakeReader{concepts: map[string]domain.Applicability{"yield_exclusion": domain.Included}}
	matched, err := reg.Evaluate(context.Background(), reader, "a", "yield_exclusion")
	if err != nil || !matched {
		t.Fatalf("included concept should match, got %v %v", matched, err)
	}

	reader.concepts["yield_exclusion"] = domain.Excluded
	matched, err = reg.Evaluate(context.Background(), reader, "a", "yield_exclusion")
	if err != nil || matched {
		t.Fatalf("excluded concept must not match INCLUDED, got %v %v", matched, err)
	}
}

func TestEvaluate_UnknownPatternFails(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	_, err := reg.Evaluate(context.Background(), &fakeReader{}, "a", "ghost")
	if enginerr.KindOf(err) != enginerr.KindUnknownPattern {
		t.Fatalf("expected unknown pattern kind, got %v", err)
	}
}

func TestEvaluateAll_SharesMemoAcrossPatterns(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	if err := reg.Register(Pattern{ID: "base", Condition: mustParse(t, `{"fact": {"field": "q_x", "equals": true}}`)}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(Pattern{ID: "c1", Condition: mustParse(t, `{"pattern": "base"}`)}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(Pattern{ID: "c2", Condition: mustParse(t, `{"not": {"pattern": "base"}}`)}); err != nil {
		t.Fatalf("register: %v", err)
	}

	reader := &fakeReader{bools: map[string]bool{"q_x": true}}
	results, err := reg.EvaluateAll(context.Background(), reader, "a")
	if err != nil {
		t.Fatalf("evaluate all: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// base is consulted by itself plus two compositions but read once.
	if reader.scalarReads != 1 {
		t.Fatalf("expected memoized single fact read, got %d", reader.scalarReads)
	}
}

func TestLoadCatalog_CompilesAndRejectsCycles(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	cat := &schema.Catalog{
		Version: "v1",
		Patterns: []schema.PatternDef{
			{PatternID: "a", ConditionJSON: `{"pattern": "b"}`},
			{PatternID: "b", ConditionJSON: `{"pattern": "a"}`},
		},
	}
	if err := reg.LoadCatalog(cat); err == nil {
		t.Fatalf("expected cyclic catalog to fail loading")
	}

	cat.Patterns = []schema.PatternDef{
		{PatternID: "a", ConditionJSON: `{"pattern": "b"}`},
		{PatternID: "b", ConditionJSON: `{"fact": {"field": "q", "equals": true}}`},
	}
	if err := reg.LoadCatalog(cat); err != nil {
		t.Fatalf("acyclic catalog must load: %v", err)
	}
	if len(reg.IDs()) != 2 {
		t.Fatalf("expected 2 registered patterns, got %d", len(reg.IDs()))
	}
}
