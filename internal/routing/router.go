package routing

import (
	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
	"github.com/yungbote/valence-backend/internal/schema"
)

// Channel is one of the three fixed persistence paths every extracted value
// must take.
type Channel string

const (
	ChannelScalar      Channel = "scalar"
	ChannelMultiselect Channel = "multiselect"
	ChannelEntity      Channel = "entity"
)

// Route classifies a field into exactly one channel using only its shape.
// Because the decision is shape-driven, a field added to the backing schema
// routes correctly with no code change here.
func Route(field schema.FieldShape) (Channel, error) {
	switch {
	case field.ValueKind.Scalar():
		return ChannelScalar, nil
	case field.ValueKind == domain.KindOption:
		if field.ConceptType == "" {
			return "", enginerr.Newf(enginerr.KindSchemaMismatch, "routing.Route", "option field %q has no concept type", field.FieldID)
		}
		return ChannelMultiselect, nil
	case field.ValueKind == domain.KindEntity:
		if field.EntityType == "" {
			return "", enginerr.Newf(enginerr.KindSchemaMismatch, "routing.Route", "entity field %q has no hierarchy base type", field.FieldID)
		}
		return ChannelEntity, nil
	default:
		return "", enginerr.Newf(enginerr.KindSchemaMismatch, "routing.Route", "field %q has undeclared value kind %q", field.FieldID, field.ValueKind)
	}
}
