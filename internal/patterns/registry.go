package patterns

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yungbote/valence-backend/internal/platform/enginerr"
	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/schema"
)

// Pattern is a compiled, registered inference rule.
type Pattern struct {
	ID        string
	Label     string
	Severity  string
	Condition Condition
}

// Registry holds the compiled pattern set for one catalog version. It is
// rebuilt whenever the catalog reloads and rejects cyclic compositions at
// registration time, so evaluation never has to guard against recursion.
type Registry struct {
	mu       sync.RWMutex
	patterns map[string]Pattern
	log      *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		patterns: map[string]Pattern{},
		log:      log.With("component", "patterns"),
	}
}

// Register compiles and adds one pattern. Composition of a pattern id that is
// not registered yet is allowed; the cycle check treats unknown ids as leaves
// and re-runs as later registrations close the graph.
func (r *Registry) Register(p Pattern) error {
	if p.ID == "" {
		return enginerr.Newf(enginerr.KindUnknownPattern, "patterns.Register", "pattern id is empty")
	}
	if err := p.Condition.validate(); err != nil {
		return enginerr.New(enginerr.KindValidation, "patterns.Register", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prev, existed := r.patterns[p.ID]
	r.patterns[p.ID] = p
	if err := r.checkAcyclicLocked(p.ID); err != nil {
		if existed {
			r.patterns[p.ID] = prev
		} else {
			delete(r.patterns, p.ID)
		}
		return err
	}
	return nil
}

// LoadCatalog replaces the registered set with the catalog's pattern
// definitions. A single bad definition fails the whole load; a half-loaded
// pattern set would flag anchors inconsistently.
func (r *Registry) LoadCatalog(cat *schema.Catalog) error {
	compiled := make(map[string]Pattern, len(cat.Patterns))
	for _, def := range cat.Patterns {
		cond, err := ParseCondition(def.ConditionJSON)
		if err != nil {
			return enginerr.Newf(enginerr.KindValidation, "patterns.LoadCatalog", "pattern %s: %v", def.PatternID, err)
		}
		compiled[def.PatternID] = Pattern{
			ID:        def.PatternID,
			Label:     def.Label,
			Severity:  def.Severity,
			Condition: cond,
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.patterns
	r.patterns = compiled
	for id := range compiled {
		if err := r.checkAcyclicLocked(id); err != nil {
			r.patterns = old
			return err
		}
	}
	r.log.Info("pattern registry loaded", "patterns", len(compiled), "schema_version", cat.Version)
	return nil
}

func (r *Registry) checkAcyclicLocked(start string) error {
	const (
		visiting = 1
		done     = 2
	)
	state := map[string]int{}
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		p, known := r.patterns[id]
		if !known {
			return nil
		}
		switch state[id] {
		case visiting:
			return enginerr.Newf(enginerr.KindCyclicPattern, "patterns.Register",
				"pattern %s participates in a dependency cycle via %v", id, append(stack, id))
		case done:
			return nil
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range p.Condition.deps() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}
	return visit(start)
}

// Get returns a registered pattern by id.
func (r *Registry) Get(id string) (Pattern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patterns[id]
	return p, ok
}

// IDs returns the registered pattern ids, sorted for stable iteration.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.patterns))
	for id := range r.patterns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// evaluation carries per-request state: the anchor under test and a memo of
// pattern results. The memo lives only for one Evaluate/EvaluateAll call, so
// results are never served stale across fact writes.
type evaluation struct {
	reader    FactReader
	anchorKey string
	registry  *Registry
	memo      map[string]bool
}

func (ev *evaluation) pattern(ctx context.Context, id string) (bool, error) {
	if res, ok := ev.memo[id]; ok {
		return res, nil
	}
	p, known := ev.registry.Get(id)
	if !known {
		return false, enginerr.Newf(enginerr.KindUnknownPattern, "patterns.Evaluate", "pattern %q is not registered", id)
	}
	res, err := p.Condition.eval(ctx, ev)
	if err != nil {
		return false, err
	}
	ev.memo[id] = res
	return res, nil
}

// Evaluate runs one pattern against one anchor's persisted facts.
func (r *Registry) Evaluate(ctx context.Context, reader FactReader, anchorKey, patternID string) (bool, error) {
	ev := &evaluation{reader: reader, anchorKey: anchorKey, registry: r, memo: map[string]bool{}}
	return ev.pattern(ctx, patternID)
}

// Result is one pattern outcome for an anchor.
type Result struct {
	PatternID string `json:"pattern_id"`
	Label     string `json:"label,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Matched   bool   `json:"matched"`
}

// EvaluateAll runs every registered pattern against one anchor, sharing a
// memo so composed sub-patterns evaluate once.
func (r *Registry) EvaluateAll(ctx context.Context, reader FactReader, anchorKey string) ([]Result, error) {
	ev := &evaluation{reader: reader, anchorKey: anchorKey, registry: r, memo: map[string]bool{}}
	var out []Result
	for _, id := range r.IDs() {
		matched, err := ev.pattern(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s for %s: %w", id, anchorKey, err)
		}
		p, _ := r.Get(id)
		out = append(out, Result{PatternID: id, Label: p.Label, Severity: p.Severity, Matched: matched})
	}
	return out, nil
}
