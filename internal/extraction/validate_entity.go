package extraction

import (
	"fmt"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/schema"
)

// Entity raw form: a single object or a list of objects. Each object carries
// a "subtype" discriminator, its attributes, and a "provenance" sub-object.
// Attributes are validated against the subtype's resolved shape; nested
// entity lists (e.g. blocker exceptions under a blocker) recurse.
func validateEntityFieldWith(shape *schema.RecordShape, field schema.FieldShape, rawVal interface{}) (domain.FieldValue, []FieldError) {
	var rawEntities []interface{}
	switch v := rawVal.(type) {
	case []interface{}:
		rawEntities = v
	case map[string]interface{}:
		rawEntities = []interface{}{v}
	default:
		return domain.FieldValue{}, []FieldError{{
			FieldID: field.FieldID,
			Kind:    ErrMalformed,
			Message: "entity field must be an object or a list of objects",
		}}
	}

	if field.Cardinality != schema.CardMany && len(rawEntities) > 1 {
		return domain.FieldValue{}, []FieldError{{
			FieldID: field.FieldID,
			Kind:    ErrCardinality,
			Message: fmt.Sprintf("field accepts one entity, got %d", len(rawEntities)),
		}}
	}

	var errs []FieldError
	var values []domain.Value
	for i, rawEnt := range rawEntities {
		rec, recErrs := validateEntityRecord(shape, field, fmt.Sprintf("%s[%d]", field.FieldID, i), rawEnt)
		if len(recErrs) > 0 {
			errs = append(errs, recErrs...)
			continue
		}
		values = append(values, domain.EntityValue(rec))
	}
	if len(errs) > 0 {
		return domain.FieldValue{}, errs
	}
	// Entity records carry their own provenance; the field-level provenance
	// mirrors the first record's so every channel write has one.
	fv := domain.FieldValue{FieldID: field.FieldID, Values: values}
	if len(values) > 0 {
		fv.Provenance = values[0].Entity.Provenance
	}
	return fv, nil
}

func validateEntityRecord(shape *schema.RecordShape, field schema.FieldShape, path string, rawEnt interface{}) (*domain.EntityRecord, []FieldError) {
	obj, ok := rawEnt.(map[string]interface{})
	if !ok {
		return nil, []FieldError{{FieldID: path, Kind: ErrMalformed, Message: "entity must be an object"}}
	}

	subtype := asString(obj["subtype"])
	if subtype == "" {
		subtype = field.EntityType
	}
	entShape, err := shape.EntityShapeFor(subtype)
	if err != nil {
		return nil, []FieldError{{
			FieldID: path,
			Kind:    ErrTypeMismatch,
			Message: fmt.Sprintf("subtype %q is not declared in the catalog", subtype),
		}}
	}
	if !shape.Catalog().IsSubtypeOf(subtype, field.EntityType) {
		return nil, []FieldError{{
			FieldID: path,
			Kind:    ErrTypeMismatch,
			Message: fmt.Sprintf("subtype %q does not belong to the %s hierarchy", subtype, field.EntityType),
		}}
	}

	var errs []FieldError
	prov, provErr := parseProvenance(path, obj["provenance"])
	if provErr != nil {
		errs = append(errs, *provErr)
	}

	rec := &domain.EntityRecord{Subtype: subtype, Attrs: map[string][]domain.Value{}, Provenance: prov}
	for name, rawAttr := range obj {
		if name == "subtype" || name == "provenance" {
			continue
		}
		attrPath := path + "." + name
		decl, ok := entShape.Attribute(name)
		if !ok {
			errs = append(errs, FieldError{
				FieldID: attrPath,
				Kind:    ErrUnrecognizedField,
				Message: fmt.Sprintf("attribute %q is not declared on %s", name, subtype),
			})
			continue
		}
		vals, aerrs := validateEntityAttr(shape, decl, attrPath, rawAttr)
		if len(aerrs) > 0 {
			errs = append(errs, aerrs...)
			continue
		}
		rec.Attrs[name] = vals
	}

	for _, decl := range entShape.Attributes {
		if decl.Cardinality != schema.CardOne {
			continue
		}
		if _, present := rec.Attrs[decl.Name]; !present {
			errs = append(errs, FieldError{
				FieldID: path + "." + decl.Name,
				Kind:    ErrMissingRequired,
				Message: "attribute is mandatory",
			})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return rec, nil
}

func validateEntityAttr(shape *schema.RecordShape, decl schema.AttributeDecl, path string, rawAttr interface{}) ([]domain.Value, []FieldError) {
	fieldShape := schema.FieldShape{
		FieldID:     path,
		ValueKind:   decl.ValueKind,
		Cardinality: decl.Cardinality,
		ConceptType: decl.ConceptType,
		EntityType:  decl.EntityType,
	}
	switch {
	case decl.ValueKind.Scalar():
		v, verr := coerceScalar(fieldShape, rawAttr)
		if verr != nil {
			return nil, []FieldError{*verr}
		}
		return []domain.Value{v}, nil
	case decl.ValueKind == domain.KindOption:
		opt, ok := rawAttr.(string)
		if !ok {
			return nil, []FieldError{{FieldID: path, Kind: ErrTypeMismatch, Message: "option attribute must be a concept id string"}}
		}
		opts, err := shape.Catalog().ResolveConceptSet(decl.ConceptType)
		if err != nil {
			return nil, []FieldError{{FieldID: path, Kind: ErrTypeMismatch, Message: err.Error()}}
		}
		for _, o := range opts {
			if o.ConceptID == opt {
				return []domain.Value{domain.OptionValue(opt, domain.Included)}, nil
			}
		}
		return nil, []FieldError{{
			FieldID: path,
			Kind:    ErrUnknownOption,
			Message: fmt.Sprintf("concept %q is not an option of %s", opt, decl.ConceptType),
		}}
	case decl.ValueKind == domain.KindEntity:
		childField := schema.FieldShape{
			FieldID:     path,
			ValueKind:   decl.ValueKind,
			Cardinality: decl.Cardinality,
			EntityType:  decl.EntityType,
		}
		fv, ferrs := validateEntityFieldWith(shape, childField, rawAttr)
		if len(ferrs) > 0 {
			return nil, ferrs
		}
		return fv.Values, nil
	default:
		return nil, []FieldError{{FieldID: path, Kind: ErrTypeMismatch, Message: fmt.Sprintf("unsupported value kind %q", decl.ValueKind)}}
	}
}
