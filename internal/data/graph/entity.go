package graph

import (
	"context"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
	"github.com/yungbote/valence-backend/internal/schema"
)

// entityPlan is one validated node write, built entirely from the catalog
// before the transaction opens. Children (e.g. exceptions under a blocker) are
// written in the same transaction as their parent.
type entityPlan struct {
	label    string
	subtype  string
	rel      string
	nkProp   string
	nkValue  any
	entityID string
	props    map[string]any
	children []entityPlan
}

// StoreEntity persists one typed entity record under an anchor, attached via
// its hierarchy's relation. Records with a declared natural key merge on it,
// so re-extraction converges; records without one get a fresh id. The whole
// record, nested children included, lands in a single transaction.
func (s *Store) StoreEntity(ctx context.Context, cat *schema.Catalog, anchorKey, baseType string, rec *domain.EntityRecord) ([]string, error) {
	op := s.opName("StoreEntity")
	plan, err := s.planEntity(op, cat, baseType, rec)
	if err != nil {
		return nil, err
	}

	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var ids []string
		if err := s.writeEntityTx(ctx, tx, op, "Provision", "provision_id", anchorKey, plan, &ids); err != nil {
			return nil, err
		}
		return ids, nil
	})
	if err != nil {
		if k := enginerr.KindOf(err); k != "" && k != enginerr.KindStore {
			return nil, err
		}
		return nil, storeErr(op, err)
	}
	ids, _ := out.([]string)
	s.log.Debug("entity stored", "provision_id", anchorKey, "subtype", rec.Subtype, "nodes", len(ids))
	return ids, nil
}

// planEntity validates the record against the catalog and lowers it into
// label, relation, property, and child plans.
func (s *Store) planEntity(op string, cat *schema.Catalog, baseType string, rec *domain.EntityRecord) (entityPlan, error) {
	if rec == nil {
		return entityPlan{}, enginerr.Newf(enginerr.KindValidation, op, "entity record is nil")
	}
	shape, err := cat.ResolveEntityShape(rec.Subtype)
	if err != nil {
		return entityPlan{}, enginerr.Newf(enginerr.KindInvalidSubtype, op, "subtype %q is not declared in the catalog", rec.Subtype)
	}
	if !cat.IsSubtypeOf(rec.Subtype, baseType) {
		return entityPlan{}, enginerr.Newf(enginerr.KindInvalidSubtype, op, "subtype %q does not belong to the %s hierarchy", rec.Subtype, baseType)
	}
	if shape.AttachmentRel == "" {
		return entityPlan{}, enginerr.Newf(enginerr.KindSchemaMismatch, op, "subtype %q has no hierarchy attachment relation", rec.Subtype)
	}

	label, err := safeIdent(op, labelFor(rec.Subtype))
	if err != nil {
		return entityPlan{}, err
	}
	rel, err := safeIdent(op, relFor(shape.AttachmentRel))
	if err != nil {
		return entityPlan{}, err
	}

	plan := entityPlan{
		label:    label,
		subtype:  rec.Subtype,
		rel:      rel,
		entityID: uuid.NewString(),
		props:    map[string]any{},
	}
	provenanceProps("", plan.props, rec.Provenance.SourceText, rec.Provenance.SourceSection, rec.Provenance.SourcePage, rec.Provenance.Confidence)

	for name, vals := range rec.Attrs {
		decl, ok := cat.AttributeOf(rec.Subtype, name)
		if !ok {
			return entityPlan{}, enginerr.Newf(enginerr.KindSchemaMismatch, op, "attribute %q is not declared on %s", name, rec.Subtype)
		}
		switch decl.ValueKind {
		case domain.KindEntity:
			for _, v := range vals {
				if v.Kind != domain.KindEntity || v.Entity == nil {
					return entityPlan{}, enginerr.Newf(enginerr.KindSchemaMismatch, op, "attribute %q on %s must carry entity records", name, rec.Subtype)
				}
				child, err := s.planEntity(op, cat, decl.EntityType, v.Entity)
				if err != nil {
					return entityPlan{}, err
				}
				plan.children = append(plan.children, child)
			}
		case domain.KindOption:
			ids := make([]any, 0, len(vals))
			for _, v := range vals {
				ids = append(ids, v.Option)
			}
			if decl.Cardinality == schema.CardMany {
				plan.props[name] = ids
			} else if len(ids) > 0 {
				plan.props[name] = ids[0]
			}
		default:
			natives := make([]any, 0, len(vals))
			for _, v := range vals {
				natives = append(natives, v.Native())
			}
			var propVal any
			if decl.Cardinality == schema.CardMany {
				propVal = natives
			} else if len(natives) > 0 {
				propVal = natives[0]
			}
			plan.props[name] = propVal
			if decl.NaturalKey || decl.Name == shape.NaturalKey {
				plan.nkProp = decl.Name
				plan.nkValue = propVal
			}
		}
	}
	if plan.nkProp != "" {
		if plan.nkProp, err = safeIdent(op, plan.nkProp); err != nil {
			return entityPlan{}, err
		}
	}
	return plan, nil
}

func (s *Store) writeEntityTx(ctx context.Context, tx neo4j.ManagedTransaction, op, parentLabel, parentKeyProp, parentKey string, plan entityPlan, ids *[]string) error {
	params := map[string]any{
		"parent_key": parentKey,
		"entity_id":  plan.entityID,
		"subtype":    plan.subtype,
		"props":      plan.props,
	}

	var query string
	if plan.nkProp != "" && plan.nkValue != nil {
		params["nk"] = plan.nkValue
		query = `
			MATCH (parent:` + parentLabel + ` {` + parentKeyProp + `: $parent_key})
			MERGE (parent)-[:` + plan.rel + `]->(e:Entity:` + plan.label + ` {` + plan.nkProp + `: $nk})
			ON CREATE SET e.entity_id = $entity_id, e.created_at = timestamp()
			SET e.subtype = $subtype,
			    e += $props,
			    e.updated_at = timestamp()
			RETURN e.entity_id AS id
		`
	} else {
		query = `
			MATCH (parent:` + parentLabel + ` {` + parentKeyProp + `: $parent_key})
			CREATE (parent)-[:` + plan.rel + `]->(e:Entity:` + plan.label + ` {entity_id: $entity_id})
			SET e.subtype = $subtype,
			    e += $props,
			    e.created_at = timestamp(),
			    e.updated_at = timestamp()
			RETURN e.entity_id AS id
		`
	}

	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return enginerr.Newf(enginerr.KindAnchorNotFound, op, "attachment parent %q does not exist", parentKey)
	}
	id := recordString(rec, "id")
	*ids = append(*ids, id)

	for _, child := range plan.children {
		if err := s.writeEntityTx(ctx, tx, op, "Entity", "entity_id", id, child, ids); err != nil {
			return err
		}
	}
	return nil
}
