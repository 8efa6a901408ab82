package extraction

import (
	"fmt"
	"math"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/schema"
)

// FieldError is one field-level validation failure. All errors for a record
// are collected in a single pass so a caller can fix everything at once.
type FieldError struct {
	FieldID string `json:"field_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	ErrUnrecognizedField = "unrecognized_field"
	ErrTypeMismatch      = "type_mismatch"
	ErrCardinality       = "cardinality"
	ErrMissingRequired   = "missing_required"
	ErrUnknownOption     = "unknown_option"
	ErrInvalidStatus     = "invalid_status"
	ErrMissingProvenance = "missing_provenance"
	ErrMalformed         = "malformed"
)

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.FieldID, e.Kind, e.Message)
}

// Validate checks a raw extracted record against a schema-derived shape and
// produces a typed record. Unknown fields are reported, not dropped — a silent
// drop would hide a schema drift upstream. Validation never touches storage.
func Validate(anchorKey string, raw domain.RawRecord, shape schema.RecordShape) (domain.ValidRecord, []FieldError) {
	rec := domain.ValidRecord{AnchorKey: anchorKey, Fields: map[string]domain.FieldValue{}}
	var errs []FieldError

	for fieldID := range raw {
		if _, ok := shape.Field(fieldID); !ok {
			errs = append(errs, FieldError{
				FieldID: fieldID,
				Kind:    ErrUnrecognizedField,
				Message: fmt.Sprintf("field %q is not declared in the %s shape", fieldID, shape.AnchorType),
			})
		}
	}

	for _, field := range shape.Fields {
		rawVal, present := raw[field.FieldID]
		if !present {
			if field.Cardinality == schema.CardOne {
				errs = append(errs, FieldError{
					FieldID: field.FieldID,
					Kind:    ErrMissingRequired,
					Message: "field is mandatory",
				})
			}
			continue
		}
		fv, ferrs := validateField(&shape, field, rawVal)
		if len(ferrs) > 0 {
			errs = append(errs, ferrs...)
			continue
		}
		rec.Fields[field.FieldID] = fv
	}

	if len(errs) > 0 {
		return domain.ValidRecord{AnchorKey: anchorKey, Fields: map[string]domain.FieldValue{}}, errs
	}
	return rec, nil
}

func validateField(shape *schema.RecordShape, field schema.FieldShape, rawVal interface{}) (domain.FieldValue, []FieldError) {
	switch {
	case field.ValueKind.Scalar():
		return validateScalarField(field, rawVal)
	case field.ValueKind == domain.KindOption:
		return validateOptionField(field, rawVal)
	case field.ValueKind == domain.KindEntity:
		return validateEntityFieldWith(shape, field, rawVal)
	default:
		return domain.FieldValue{}, []FieldError{{
			FieldID: field.FieldID,
			Kind:    ErrTypeMismatch,
			Message: fmt.Sprintf("unsupported declared value kind %q", field.ValueKind),
		}}
	}
}

// Scalar raw form: {"value": <v>, "provenance": {...}}.
func validateScalarField(field schema.FieldShape, rawVal interface{}) (domain.FieldValue, []FieldError) {
	obj, ok := rawVal.(map[string]interface{})
	if !ok {
		return domain.FieldValue{}, []FieldError{{
			FieldID: field.FieldID,
			Kind:    ErrMalformed,
			Message: "scalar field must be an object with value and provenance",
		}}
	}
	var errs []FieldError

	inner, hasValue := obj["value"]
	if !hasValue {
		errs = append(errs, FieldError{FieldID: field.FieldID, Kind: ErrMalformed, Message: "missing value"})
	}
	if _, isList := inner.([]interface{}); isList {
		errs = append(errs, FieldError{
			FieldID: field.FieldID,
			Kind:    ErrCardinality,
			Message: "multiple values supplied for a single-valued field",
		})
	}

	prov, provErr := parseProvenance(field.FieldID, obj["provenance"])
	if provErr != nil {
		errs = append(errs, *provErr)
	}
	if len(errs) > 0 {
		return domain.FieldValue{}, errs
	}

	val, verr := coerceScalar(field, inner)
	if verr != nil {
		return domain.FieldValue{}, []FieldError{*verr}
	}
	return domain.FieldValue{
		FieldID:    field.FieldID,
		Values:     []domain.Value{val},
		Provenance: prov,
	}, nil
}

func coerceScalar(field schema.FieldShape, v interface{}) (domain.Value, *FieldError) {
	mismatch := func() *FieldError {
		return &FieldError{
			FieldID: field.FieldID,
			Kind:    ErrTypeMismatch,
			Message: fmt.Sprintf("value %v does not match declared kind %s", v, field.ValueKind),
		}
	}
	switch field.ValueKind {
	case domain.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return domain.Value{}, mismatch()
		}
		return domain.BoolValue(b), nil
	case domain.KindString:
		s, ok := v.(string)
		if !ok {
			return domain.Value{}, mismatch()
		}
		return domain.StringValue(s), nil
	case domain.KindNumber:
		f, ok := asFloat(v)
		if !ok {
			return domain.Value{}, mismatch()
		}
		return domain.NumberValue(f), nil
	case domain.KindInteger:
		f, ok := asFloat(v)
		if !ok || f != math.Trunc(f) {
			return domain.Value{}, mismatch()
		}
		return domain.IntValue(int64(f)), nil
	default:
		return domain.Value{}, mismatch()
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Multiselect raw form:
// {"included": [...], "excluded": [...], "silent": [...], "provenance": {...}}.
// A bare boolean is rejected — applicability is tri-state, never binary.
func validateOptionField(field schema.FieldShape, rawVal interface{}) (domain.FieldValue, []FieldError) {
	if _, isBool := rawVal.(bool); isBool {
		return domain.FieldValue{}, []FieldError{{
			FieldID: field.FieldID,
			Kind:    ErrInvalidStatus,
			Message: "applicability is tri-state (INCLUDED/EXCLUDED/SILENT); a boolean is not accepted",
		}}
	}
	obj, ok := rawVal.(map[string]interface{})
	if !ok {
		return domain.FieldValue{}, []FieldError{{
			FieldID: field.FieldID,
			Kind:    ErrMalformed,
			Message: "multiselect field must be an object with included/excluded/silent lists",
		}}
	}
	var errs []FieldError

	prov, provErr := parseProvenance(field.FieldID, obj["provenance"])
	if provErr != nil {
		errs = append(errs, *provErr)
	}

	allowed := map[string]bool{}
	for _, opt := range field.Options {
		allowed[opt] = true
	}

	var values []domain.Value
	seen := map[string]bool{}
	for key, status := range map[string]domain.Applicability{
		"included": domain.Included,
		"excluded": domain.Excluded,
		"silent":   domain.Silent,
	} {
		list, present := obj[key]
		if !present {
			continue
		}
		ids, ok := asStringList(list)
		if !ok {
			errs = append(errs, FieldError{
				FieldID: field.FieldID,
				Kind:    ErrMalformed,
				Message: fmt.Sprintf("%s must be a list of concept ids", key),
			})
			continue
		}
		for _, id := range ids {
			if !allowed[id] {
				errs = append(errs, FieldError{
					FieldID: field.FieldID,
					Kind:    ErrUnknownOption,
					Message: fmt.Sprintf("concept %q is not an option of %s", id, field.ConceptType),
				})
				continue
			}
			if seen[id] {
				errs = append(errs, FieldError{
					FieldID: field.FieldID,
					Kind:    ErrCardinality,
					Message: fmt.Sprintf("concept %q listed with more than one status", id),
				})
				continue
			}
			seen[id] = true
			values = append(values, domain.OptionValue(id, status))
		}
	}

	if field.Cardinality == schema.CardOne && len(values) != 1 {
		errs = append(errs, FieldError{
			FieldID: field.FieldID,
			Kind:    ErrCardinality,
			Message: fmt.Sprintf("field requires exactly one marked concept, got %d", len(values)),
		})
	}
	if len(errs) > 0 {
		return domain.FieldValue{}, errs
	}
	return domain.FieldValue{FieldID: field.FieldID, Values: values, Provenance: prov}, nil
}

func asStringList(v interface{}) ([]string, bool) {
	switch list := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case []string:
		return list, true
	default:
		return nil, false
	}
}

func parseProvenance(fieldID string, v interface{}) (domain.Provenance, *FieldError) {
	missing := &FieldError{
		FieldID: fieldID,
		Kind:    ErrMissingProvenance,
		Message: "provenance (source text plus location) is mandatory",
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return domain.Provenance{}, missing
	}
	prov := domain.Provenance{
		SourceText:    asString(obj["source_text"]),
		SourceSection: asString(obj["source_section"]),
		Confidence:    asString(obj["confidence"]),
	}
	if page, ok := asFloat(obj["source_page"]); ok {
		prov.SourcePage = int(page)
	}
	if !prov.Complete() {
		return domain.Provenance{}, missing
	}
	return prov, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
