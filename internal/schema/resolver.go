package schema

import (
	"sort"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
)

// FieldShape is the validation/routing view of a single field. It is derived
// from the catalog; nothing here is authored by hand.
type FieldShape struct {
	FieldID     string
	ValueKind   domain.ValueKind
	Cardinality Cardinality
	ConceptType string
	Options     []string
	EntityType  string
	Question    *QuestionShape
}

// RecordShape is the full extraction shape for one anchor type. It keeps a
// handle to the catalog snapshot it was resolved from so entity payloads can
// be validated against the same immutable view.
type RecordShape struct {
	AnchorType string
	Fields     []FieldShape
	index      map[string]int
	catalog    *Catalog
}

// EntityShapeFor resolves an entity subtype against the snapshot this shape
// came from.
func (s *RecordShape) EntityShapeFor(subtype string) (EntityShape, error) {
	if s.catalog == nil {
		return EntityShape{}, enginerr.Newf(enginerr.KindUnknownType, "schema.EntityShapeFor", "shape has no catalog snapshot")
	}
	return s.catalog.ResolveEntityShape(subtype)
}

// Catalog exposes the snapshot this shape was resolved from.
func (s *RecordShape) Catalog() *Catalog { return s.catalog }

func (s *RecordShape) Field(id string) (FieldShape, bool) {
	i, ok := s.index[id]
	if !ok {
		return FieldShape{}, false
	}
	return s.Fields[i], true
}

func (s *RecordShape) add(f FieldShape) {
	if s.index == nil {
		s.index = map[string]int{}
	}
	if _, dup := s.index[f.FieldID]; dup {
		return
	}
	s.index[f.FieldID] = len(s.Fields)
	s.Fields = append(s.Fields, f)
}

// ResolveQuestionSet returns questions ordered by (category order, question
// order). A non-empty filter must name a declared category; an empty category
// yields an empty set, not an error, since the ontology may be partially
// seeded.
func (c *Catalog) ResolveQuestionSet(categoryFilter string) ([]QuestionShape, error) {
	if categoryFilter != "" {
		found := false
		for _, cat := range c.Categories {
			if cat.Name == categoryFilter {
				found = true
				break
			}
		}
		if !found {
			return nil, enginerr.Newf(enginerr.KindUnknownType, "schema.ResolveQuestionSet", "category %q not in catalog", categoryFilter)
		}
	}
	out := make([]QuestionShape, 0, len(c.Questions))
	for _, q := range c.Questions {
		if categoryFilter != "" && q.Category != categoryFilter {
			continue
		}
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CategoryOrder != out[j].CategoryOrder {
			return out[i].CategoryOrder < out[j].CategoryOrder
		}
		return out[i].QuestionOrder < out[j].QuestionOrder
	})
	return out, nil
}

// ResolveConceptSet returns the closed option set for a concept type.
func (c *Catalog) ResolveConceptSet(conceptType string) ([]ConceptOption, error) {
	opts, ok := c.Concepts[conceptType]
	if !ok {
		return nil, enginerr.Newf(enginerr.KindUnknownType, "schema.ResolveConceptSet", "concept type %q not in catalog", conceptType)
	}
	out := make([]ConceptOption, len(opts))
	copy(out, opts)
	return out, nil
}

// ResolveEntityShape returns the typed shape of one entity subtype, including
// inherited attributes and its hierarchy attachment.
func (c *Catalog) ResolveEntityShape(typeName string) (EntityShape, error) {
	decl, ok := c.Types[typeName]
	if !ok || (decl.Kind != KindEntity && decl.Kind != KindAnchor) {
		return EntityShape{}, enginerr.Newf(enginerr.KindUnknownType, "schema.ResolveEntityShape", "entity type %q not in catalog", typeName)
	}
	shape := EntityShape{
		TypeName:   typeName,
		Attributes: c.ownAndInheritedAttrs(typeName),
	}
	for cur := decl.Supertype; cur != ""; {
		shape.Supertypes = append(shape.Supertypes, cur)
		next, ok := c.Types[cur]
		if !ok {
			break
		}
		cur = next.Supertype
	}
	if h, ok := c.HierarchyOf(typeName); ok {
		shape.Hierarchy = h.Name
		shape.AttachmentRel = h.AttachmentRel
	}
	for _, a := range shape.Attributes {
		if a.NaturalKey {
			shape.NaturalKey = a.Name
			break
		}
	}
	return shape, nil
}

type EntityShape struct {
	TypeName      string
	Supertypes    []string
	Attributes    []AttributeDecl
	Hierarchy     string
	AttachmentRel string
	NaturalKey    string
}

func (s EntityShape) Attribute(name string) (AttributeDecl, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeDecl{}, false
}

// ResolveExtractionShape builds the full record shape for one anchor type:
// one scalar field per ontology question in the anchor's categories, plus the
// anchor's declared option and entity fields. Adding a field to the backing
// schema changes this output with no code change.
func (c *Catalog) ResolveExtractionShape(anchorType string) (RecordShape, error) {
	decl, ok := c.Types[anchorType]
	if !ok || decl.Kind != KindAnchor {
		return RecordShape{}, enginerr.Newf(enginerr.KindUnknownType, "schema.ResolveExtractionShape", "anchor type %q not in catalog", anchorType)
	}
	shape := RecordShape{AnchorType: anchorType, catalog: c}

	questions, err := c.ResolveQuestionSet("")
	if err != nil {
		return RecordShape{}, err
	}
	categoryOf := map[string]Category{}
	for _, cat := range c.Categories {
		categoryOf[cat.Name] = cat
	}
	for i := range questions {
		q := questions[i]
		cat, ok := categoryOf[q.Category]
		if !ok || cat.ProvisionType != anchorType {
			continue
		}
		f := FieldShape{
			FieldID:     q.QuestionID,
			ValueKind:   q.AnswerType,
			Cardinality: CardOptional,
			Question:    &questions[i],
		}
		if attr, ok := c.AttributeOf(anchorType, q.TargetAttribute); ok {
			f.ValueKind = attr.ValueKind
			f.Cardinality = attr.Cardinality
			f.ConceptType = attr.ConceptType
		}
		if f.ValueKind == domain.KindOption && f.ConceptType != "" {
			f.Options = c.optionIDs(f.ConceptType)
		}
		shape.add(f)
	}

	for _, attr := range c.ownAndInheritedAttrs(anchorType) {
		switch attr.ValueKind {
		case domain.KindOption:
			shape.add(FieldShape{
				FieldID:     attr.Name,
				ValueKind:   attr.ValueKind,
				Cardinality: attr.Cardinality,
				ConceptType: attr.ConceptType,
				Options:     c.optionIDs(attr.ConceptType),
			})
		case domain.KindEntity:
			shape.add(FieldShape{
				FieldID:     attr.Name,
				ValueKind:   attr.ValueKind,
				Cardinality: attr.Cardinality,
				EntityType:  attr.EntityType,
			})
		}
	}
	return shape, nil
}

func (c *Catalog) optionIDs(conceptType string) []string {
	opts := c.Concepts[conceptType]
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.ConceptID)
	}
	return out
}
