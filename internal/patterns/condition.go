package patterns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/valence-backend/internal/domain"
)

// FactReader is the read-only view of persisted facts a pattern may consult.
// Evaluation never writes.
type FactReader interface {
	ScalarBool(ctx context.Context, anchorKey, fieldID string) (val bool, found bool, err error)
	ScalarNumber(ctx context.Context, anchorKey, fieldID string) (val float64, found bool, err error)
	ApplicabilityStatus(ctx context.Context, anchorKey, conceptID string) (status domain.Applicability, found bool, err error)
	EntityCount(ctx context.Context, anchorKey, entityType string) (int, error)
}

// Condition is the declarative predicate stored on a pattern meta-node.
// Exactly one branch is set per node. Facts that were never extracted
// evaluate to false rather than erroring, since the ontology may be partially
// seeded.
type Condition struct {
	All     []Condition   `json:"all,omitempty"`
	Any     []Condition   `json:"any,omitempty"`
	Not     *Condition    `json:"not,omitempty"`
	Fact    *FactCheck    `json:"fact,omitempty"`
	Concept *ConceptCheck `json:"concept,omitempty"`
	Entity  *EntityCheck  `json:"entity,omitempty"`
	Pattern string        `json:"pattern,omitempty"`
}

type FactCheck struct {
	Field   string      `json:"field"`
	Equals  interface{} `json:"equals,omitempty"`
	AtLeast *float64    `json:"at_least,omitempty"`
	AtMost  *float64    `json:"at_most,omitempty"`
}

type ConceptCheck struct {
	ConceptID string               `json:"concept_id"`
	Status    domain.Applicability `json:"status"`
}

type EntityCheck struct {
	Type     string `json:"type"`
	MinCount int    `json:"min_count,omitempty"`
}

// ParseCondition decodes the JSON stored on a pattern meta-node and validates
// its structure.
func ParseCondition(raw string) (Condition, error) {
	var cond Condition
	if err := json.Unmarshal([]byte(raw), &cond); err != nil {
		return Condition{}, fmt.Errorf("patterns: parse condition: %w", err)
	}
	if err := cond.validate(); err != nil {
		return Condition{}, err
	}
	return cond, nil
}

func (c Condition) validate() error {
	branches := 0
	if len(c.All) > 0 {
		branches++
		for _, sub := range c.All {
			if err := sub.validate(); err != nil {
				return err
			}
		}
	}
	if len(c.Any) > 0 {
		branches++
		for _, sub := range c.Any {
			if err := sub.validate(); err != nil {
				return err
			}
		}
	}
	if c.Not != nil {
		branches++
		if err := c.Not.validate(); err != nil {
			return err
		}
	}
	if c.Fact != nil {
		branches++
		if c.Fact.Field == "" {
			return fmt.Errorf("patterns: fact check is missing a field id")
		}
	}
	if c.Concept != nil {
		branches++
		if c.Concept.ConceptID == "" || !c.Concept.Status.Valid() {
			return fmt.Errorf("patterns: concept check needs a concept id and a tri-state status")
		}
	}
	if c.Entity != nil {
		branches++
		if c.Entity.Type == "" {
			return fmt.Errorf("patterns: entity check is missing a type")
		}
	}
	if c.Pattern != "" {
		branches++
	}
	if branches != 1 {
		return fmt.Errorf("patterns: condition must set exactly one branch, got %d", branches)
	}
	return nil
}

// deps lists the pattern ids this condition composes, transitively through
// its own tree.
func (c Condition) deps() []string {
	var out []string
	seen := map[string]bool{}
	var walk func(Condition)
	walk = func(n Condition) {
		if n.Pattern != "" && !seen[n.Pattern] {
			seen[n.Pattern] = true
			out = append(out, n.Pattern)
		}
		for _, sub := range n.All {
			walk(sub)
		}
		for _, sub := range n.Any {
			walk(sub)
		}
		if n.Not != nil {
			walk(*n.Not)
		}
	}
	walk(c)
	return out
}

func (c Condition) eval(ctx context.Context, ev *evaluation) (bool, error) {
	switch {
	case len(c.All) > 0:
		for _, sub := range c.All {
			ok, err := sub.eval(ctx, ev)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case len(c.Any) > 0:
		for _, sub := range c.Any {
			ok, err := sub.eval(ctx, ev)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case c.Not != nil:
		ok, err := c.Not.eval(ctx, ev)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case c.Fact != nil:
		return c.Fact.eval(ctx, ev)
	case c.Concept != nil:
		status, found, err := ev.reader.ApplicabilityStatus(ctx, ev.anchorKey, c.Concept.ConceptID)
		if err != nil {
			return false, err
		}
		if !found {
			return c.Concept.Status == domain.Silent, nil
		}
		return status == c.Concept.Status, nil
	case c.Entity != nil:
		n, err := ev.reader.EntityCount(ctx, ev.anchorKey, c.Entity.Type)
		if err != nil {
			return false, err
		}
		min := c.Entity.MinCount
		if min <= 0 {
			min = 1
		}
		return n >= min, nil
	case c.Pattern != "":
		return ev.pattern(ctx, c.Pattern)
	default:
		return false, fmt.Errorf("patterns: empty condition")
	}
}

func (f FactCheck) eval(ctx context.Context, ev *evaluation) (bool, error) {
	switch want := f.Equals.(type) {
	case bool:
		got, found, err := ev.reader.ScalarBool(ctx, ev.anchorKey, f.Field)
		if err != nil {
			return false, err
		}
		if !found {
			// Absent boolean facts only satisfy an explicit equals:false.
			return want == false, nil
		}
		return got == want, nil
	case nil:
		// Range check on a numeric fact.
		got, found, err := ev.reader.ScalarNumber(ctx, ev.anchorKey, f.Field)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
		if f.AtLeast != nil && got < *f.AtLeast {
			return false, nil
		}
		if f.AtMost != nil && got > *f.AtMost {
			return false, nil
		}
		return f.AtLeast != nil || f.AtMost != nil, nil
	default:
		return false, fmt.Errorf("patterns: unsupported equals literal %v for field %s", f.Equals, f.Field)
	}
}
