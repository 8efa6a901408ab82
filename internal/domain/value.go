package domain

import "strings"

// ValueKind is the declared kind of an attribute value in the schema catalog.
// Every extracted value is tagged with one of these before persistence.
type ValueKind string

const (
	KindBoolean ValueKind = "boolean"
	KindString  ValueKind = "string"
	KindNumber  ValueKind = "number"
	KindInteger ValueKind = "integer"
	KindOption  ValueKind = "option"
	KindEntity  ValueKind = "entity"
)

func (k ValueKind) Scalar() bool {
	switch k {
	case KindBoolean, KindString, KindNumber, KindInteger:
		return true
	default:
		return false
	}
}

// Applicability is the tri-state status of a concept on an anchor. A concept
// the document names is INCLUDED or EXCLUDED; one it never mentions is SILENT.
type Applicability string

const (
	Included Applicability = "INCLUDED"
	Excluded Applicability = "EXCLUDED"
	Silent   Applicability = "SILENT"
)

func (a Applicability) Valid() bool {
	switch a {
	case Included, Excluded, Silent:
		return true
	default:
		return false
	}
}

// Value is a tagged extracted value. Exactly one payload field is meaningful,
// selected by Kind.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Str    string
	Num    float64
	Int    int64
	Option string
	Status Applicability
	Entity *EntityRecord
}

func BoolValue(v bool) Value      { return Value{Kind: KindBoolean, Bool: v} }
func StringValue(v string) Value  { return Value{Kind: KindString, Str: v} }
func NumberValue(v float64) Value { return Value{Kind: KindNumber, Num: v} }
func IntValue(v int64) Value      { return Value{Kind: KindInteger, Int: v} }

func OptionValue(option string, status Applicability) Value {
	return Value{Kind: KindOption, Option: option, Status: status}
}

func EntityValue(rec *EntityRecord) Value {
	return Value{Kind: KindEntity, Entity: rec}
}

// Native returns the untagged Go value, mainly for serialization in the read
// API and logs.
func (v Value) Native() interface{} {
	switch v.Kind {
	case KindBoolean:
		return v.Bool
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindInteger:
		return v.Int
	case KindOption:
		return v.Option
	default:
		return nil
	}
}

// EntityRecord is a typed extracted object belonging to one subtype within a
// hierarchy, with its own attributes and mandatory provenance.
type EntityRecord struct {
	Subtype    string
	Attrs      map[string][]Value
	Provenance Provenance
}

// Provenance ties an extracted value back to the document. It is mandatory on
// every scalar fact, applicability mark, and entity record.
type Provenance struct {
	SourceText    string `json:"source_text"`
	SourceSection string `json:"source_section"`
	SourcePage    int    `json:"source_page"`
	Confidence    string `json:"confidence"`
}

// Complete reports whether the provenance carries a usable citation: verbatim
// text plus at least one location coordinate.
func (p Provenance) Complete() bool {
	if strings.TrimSpace(p.SourceText) == "" {
		return false
	}
	return strings.TrimSpace(p.SourceSection) != "" || p.SourcePage > 0
}

// RawRecord is the untrusted field-value map supplied by the extraction
// source, keyed by field id. It is validated against a schema-derived shape
// before anything touches storage.
type RawRecord map[string]interface{}

// FieldValue is a validated field: its typed values plus field-level
// provenance. Multi-valued fields carry several values.
type FieldValue struct {
	FieldID    string
	Values     []Value
	Provenance Provenance
}

// ValidRecord is the output of validation: only schema-declared fields with
// type-checked values remain.
type ValidRecord struct {
	AnchorKey string
	Fields    map[string]FieldValue
}

// AnchorRef identifies a provision anchor by natural key. Anchors are created
// once and never re-keyed.
type AnchorRef struct {
	Key    string
	Type   string
	DealID string
}
