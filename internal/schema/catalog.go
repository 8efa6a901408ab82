package schema

import (
	"github.com/yungbote/valence-backend/internal/domain"
)

// TypeKind distinguishes the four kinds of declarations the backing schema
// carries.
type TypeKind string

const (
	KindAnchor    TypeKind = "anchor"
	KindEntity    TypeKind = "entity"
	KindRelation  TypeKind = "relation"
	KindAttribute TypeKind = "attribute"
)

type Cardinality string

const (
	CardOptional Cardinality = "optional"
	CardOne      Cardinality = "one"
	CardMany     Cardinality = "many"
)

// AttributeDecl is an owned-attribute declaration on a type.
type AttributeDecl struct {
	Name        string
	ValueKind   domain.ValueKind
	Cardinality Cardinality
	// ConceptType names the closed enumeration for option-kind attributes.
	ConceptType string
	// EntityType names the hierarchy base for entity-kind attributes.
	EntityType string
	NaturalKey bool
}

// TypeDecl is one catalog entry: a type, its kind, supertype, and owned
// attributes. Entries are derived only from the backing schema.
type TypeDecl struct {
	Name       string
	Kind       TypeKind
	Supertype  string
	Attributes []AttributeDecl
}

type Category struct {
	Name          string
	Order         int
	ProvisionType string
}

// QuestionShape is a resolved ontology question. Category membership is
// resolved by following the category relation at introspection time, never by
// parsing the question id.
type QuestionShape struct {
	QuestionID      string
	Text            string
	Category        string
	CategoryOrder   int
	QuestionOrder   int
	TargetAttribute string
	AnswerType      domain.ValueKind
}

type ConceptOption struct {
	ConceptID   string
	Label       string
	ConceptType string
}

// Hierarchy describes a closed entity family: a base type, the relation that
// attaches its members, and the parent they attach to. Two hierarchies never
// share an attachment relation.
type Hierarchy struct {
	Name          string
	BaseType      string
	AttachmentRel string
	ParentType    string
}

// PatternFlag is a declared computed flag an anchor is allowed to carry. Flags
// are the only non-identity attributes permitted on anchors and are written
// exclusively from recomputed pattern results.
type PatternFlag struct {
	Name      string
	PatternID string
}

// PatternDef is a declarative pattern stored in the catalog. The condition is
// kept as JSON and compiled by the inference layer.
type PatternDef struct {
	PatternID     string
	Label         string
	Severity      string
	ConditionJSON string
}

// ExtractionSpec is an extraction instruction record for the external
// extraction source, seeded alongside the schema so prompts derive from the
// catalog too.
type ExtractionSpec struct {
	MetadataID       string
	TargetEntityType string
	TargetAttribute  string
	Prompt           string
	SectionHint      string
	Priority         int
	RequiresContext  bool
}

// Catalog is an immutable snapshot of the backing schema, tagged with the
// schema version it was read at.
type Catalog struct {
	Version         string
	Types           map[string]TypeDecl
	Questions       []QuestionShape
	Categories      []Category
	Concepts        map[string][]ConceptOption
	Hierarchies     map[string]Hierarchy
	PatternFlags    []PatternFlag
	Patterns        []PatternDef
	ExtractionSpecs []ExtractionSpec
}

// IsSubtypeOf walks the supertype chain from name up to base.
func (c *Catalog) IsSubtypeOf(name, base string) bool {
	for cur := name; cur != ""; {
		if cur == base {
			return true
		}
		decl, ok := c.Types[cur]
		if !ok {
			return false
		}
		cur = decl.Supertype
	}
	return false
}

// SubtypesOf returns every declared type whose chain reaches base, including
// base itself when declared.
func (c *Catalog) SubtypesOf(base string) []string {
	var out []string
	for name := range c.Types {
		if c.IsSubtypeOf(name, base) {
			out = append(out, name)
		}
	}
	return out
}

// HierarchyOf finds the hierarchy a subtype belongs to, if any.
func (c *Catalog) HierarchyOf(subtype string) (Hierarchy, bool) {
	for _, h := range c.Hierarchies {
		if c.IsSubtypeOf(subtype, h.BaseType) {
			return h, true
		}
	}
	return Hierarchy{}, false
}

// ownAndInheritedAttrs collects attribute declarations along the supertype
// chain, nearest declaration winning on name collisions.
func (c *Catalog) ownAndInheritedAttrs(typeName string) []AttributeDecl {
	var out []AttributeDecl
	seen := map[string]bool{}
	for cur := typeName; cur != ""; {
		decl, ok := c.Types[cur]
		if !ok {
			break
		}
		for _, a := range decl.Attributes {
			if seen[a.Name] {
				continue
			}
			seen[a.Name] = true
			out = append(out, a)
		}
		cur = decl.Supertype
	}
	return out
}

// AttributeOf resolves one attribute declaration on a type, searching the
// supertype chain.
func (c *Catalog) AttributeOf(typeName, attrName string) (AttributeDecl, bool) {
	for _, a := range c.ownAndInheritedAttrs(typeName) {
		if a.Name == attrName {
			return a, true
		}
	}
	return AttributeDecl{}, false
}

// AllowedAnchorFlag reports whether name is a declared computed pattern flag.
func (c *Catalog) AllowedAnchorFlag(name string) bool {
	for _, f := range c.PatternFlags {
		if f.Name == name {
			return true
		}
	}
	return false
}
