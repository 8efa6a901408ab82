package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
)

// The read side backs both the API handlers and pattern evaluation. Pattern
// reads are pure: they only look at persisted facts and never mutate.

// ScalarBool reads one boolean answer under an anchor.
func (s *Store) ScalarBool(ctx context.Context, anchorKey, fieldID string) (bool, bool, error) {
	v, found, err := s.scalarValue(ctx, anchorKey, fieldID)
	if err != nil || !found {
		return false, false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, enginerr.Newf(enginerr.KindSchemaMismatch, s.opName("ScalarBool"),
			"answer %s on %s is not boolean", fieldID, anchorKey)
	}
	return b, true, nil
}

// ScalarNumber reads one numeric answer under an anchor.
func (s *Store) ScalarNumber(ctx context.Context, anchorKey, fieldID string) (float64, bool, error) {
	v, found, err := s.scalarValue(ctx, anchorKey, fieldID)
	if err != nil || !found {
		return 0, false, err
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int64:
		return float64(n), true, nil
	default:
		return 0, false, enginerr.Newf(enginerr.KindSchemaMismatch, s.opName("ScalarNumber"),
			"answer %s on %s is not numeric", fieldID, anchorKey)
	}
}

func (s *Store) scalarValue(ctx context.Context, anchorKey, fieldID string) (any, bool, error) {
	op := s.opName("scalarValue")
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})-[:HAS_ANSWER]->(a:Answer {question_id: $question_id})
			RETURN a.value AS value
			LIMIT 1
		`, map[string]any{"provision_id": anchorKey, "question_id": fieldID})
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, nil
		}
		v, _ := recs[0].Get("value")
		return v, nil
	})
	if err != nil {
		return nil, false, storeErr(op, err)
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

// ApplicabilityStatus reads the tri-state mark between an anchor and a
// concept.
func (s *Store) ApplicabilityStatus(ctx context.Context, anchorKey, conceptID string) (domain.Applicability, bool, error) {
	op := s.opName("ApplicabilityStatus")
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})-[r:HAS_APPLICABILITY]->(c:Concept {concept_id: $concept_id})
			RETURN r.status AS status
			LIMIT 1
		`, map[string]any{"provision_id": anchorKey, "concept_id": conceptID})
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return "", nil
		}
		return recordString(recs[0], "status"), nil
	})
	if err != nil {
		return "", false, storeErr(op, err)
	}
	raw, _ := out.(string)
	if raw == "" {
		return "", false, nil
	}
	status := domain.Applicability(raw)
	if !status.Valid() {
		return "", false, enginerr.Newf(enginerr.KindSchemaMismatch, op, "stored status %q for %s on %s is not tri-state", raw, conceptID, anchorKey)
	}
	return status, true, nil
}

// EntityCount counts entities of a hierarchy type (any declared subtype)
// reachable from the anchor, nested records included.
func (s *Store) EntityCount(ctx context.Context, anchorKey, entityType string) (int, error) {
	op := s.opName("EntityCount")
	cat, err := s.schemas.Current(ctx)
	if err != nil {
		return 0, err
	}
	subtypes := cat.SubtypesOf(entityType)
	if len(subtypes) == 0 {
		subtypes = []string{entityType}
	}

	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})-[*1..3]->(e:Entity)
			WHERE e.subtype IN $subtypes
			RETURN count(DISTINCT e) AS n
		`, map[string]any{"provision_id": anchorKey, "subtypes": subtypes})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _ := rec.Get("n")
		return asInt64(n), nil
	})
	if err != nil {
		return 0, storeErr(op, err)
	}
	return int(out.(int64)), nil
}

// Answer is one persisted scalar fact.
type Answer struct {
	QuestionID    string `json:"question_id"`
	ValueKind     string `json:"value_kind"`
	Value         any    `json:"value"`
	SourceText    string `json:"source_text,omitempty"`
	SourceSection string `json:"source_section,omitempty"`
	SourcePage    int    `json:"source_page,omitempty"`
	Confidence    string `json:"confidence,omitempty"`
}

// AnchorAnswers lists every scalar answer under an anchor.
func (s *Store) AnchorAnswers(ctx context.Context, anchorKey string) ([]Answer, error) {
	op := s.opName("AnchorAnswers")
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})-[:HAS_ANSWER]->(a:Answer)
			RETURN a.question_id AS question_id, a.value_kind AS value_kind, a.value AS value,
			       a.source_text AS source_text, a.source_section AS source_section,
			       a.source_page AS source_page, a.confidence AS confidence
			ORDER BY question_id
		`, map[string]any{"provision_id": anchorKey})
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		answers := make([]Answer, 0, len(recs))
		for _, rec := range recs {
			value, _ := rec.Get("value")
			answers = append(answers, Answer{
				QuestionID:    recordString(rec, "question_id"),
				ValueKind:     recordString(rec, "value_kind"),
				Value:         value,
				SourceText:    recordString(rec, "source_text"),
				SourceSection: recordString(rec, "source_section"),
				SourcePage:    recordInt(rec, "source_page"),
				Confidence:    recordString(rec, "confidence"),
			})
		}
		return answers, nil
	})
	if err != nil {
		return nil, storeErr(op, err)
	}
	return out.([]Answer), nil
}

// ApplicabilityMark is one persisted concept status.
type ApplicabilityMark struct {
	ConceptID  string `json:"concept_id"`
	Status     string `json:"status"`
	QuestionID string `json:"question_id,omitempty"`
	SourceText string `json:"source_text,omitempty"`
}

// AnchorApplicability lists every concept mark under an anchor.
func (s *Store) AnchorApplicability(ctx context.Context, anchorKey string) ([]ApplicabilityMark, error) {
	op := s.opName("AnchorApplicability")
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})-[r:HAS_APPLICABILITY]->(c:Concept)
			RETURN c.concept_id AS concept_id, r.status AS status,
			       r.question_id AS question_id, r.source_text AS source_text
			ORDER BY concept_id
		`, map[string]any{"provision_id": anchorKey})
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		marks := make([]ApplicabilityMark, 0, len(recs))
		for _, rec := range recs {
			marks = append(marks, ApplicabilityMark{
				ConceptID:  recordString(rec, "concept_id"),
				Status:     recordString(rec, "status"),
				QuestionID: recordString(rec, "question_id"),
				SourceText: recordString(rec, "source_text"),
			})
		}
		return marks, nil
	})
	if err != nil {
		return nil, storeErr(op, err)
	}
	return out.([]ApplicabilityMark), nil
}

// EntityNode is one persisted entity record, properties included.
type EntityNode struct {
	EntityID string         `json:"entity_id"`
	Subtype  string         `json:"subtype"`
	Props    map[string]any `json:"props"`
}

// AnchorEntities lists entities reachable from an anchor, nested children
// included.
func (s *Store) AnchorEntities(ctx context.Context, anchorKey string) ([]EntityNode, error) {
	op := s.opName("AnchorEntities")
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})-[*1..3]->(e:Entity)
			RETURN DISTINCT e.entity_id AS entity_id, e.subtype AS subtype, properties(e) AS props
			ORDER BY subtype, entity_id
		`, map[string]any{"provision_id": anchorKey})
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		nodes := make([]EntityNode, 0, len(recs))
		for _, rec := range recs {
			rawProps, _ := rec.Get("props")
			props, _ := rawProps.(map[string]any)
			nodes = append(nodes, EntityNode{
				EntityID: recordString(rec, "entity_id"),
				Subtype:  recordString(rec, "subtype"),
				Props:    props,
			})
		}
		return nodes, nil
	})
	if err != nil {
		return nil, storeErr(op, err)
	}
	return out.([]EntityNode), nil
}

// AnchorFlags reads the declared computed flags currently set on an anchor.
func (s *Store) AnchorFlags(ctx context.Context, anchorKey string) (map[string]bool, error) {
	op := s.opName("AnchorFlags")
	cat, err := s.schemas.Current(ctx)
	if err != nil {
		return nil, err
	}

	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})
			RETURN properties(p) AS props
		`, map[string]any{"provision_id": anchorKey})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, enginerr.Newf(enginerr.KindAnchorNotFound, op, "anchor %q does not exist", anchorKey)
		}
		rawProps, _ := rec.Get("props")
		props, _ := rawProps.(map[string]any)
		flags := map[string]bool{}
		for name, v := range props {
			if !cat.AllowedAnchorFlag(name) {
				continue
			}
			if b, ok := v.(bool); ok {
				flags[name] = b
			}
		}
		return flags, nil
	})
	if err != nil {
		if enginerr.KindOf(err) == enginerr.KindAnchorNotFound {
			return nil, err
		}
		return nil, storeErr(op, err)
	}
	return out.(map[string]bool), nil
}

// AllAnchors lists every provision anchor in the graph. Backs cross-deal
// pattern summaries.
func (s *Store) AllAnchors(ctx context.Context) ([]domain.AnchorRef, error) {
	op := s.opName("AllAnchors")
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (d:Deal)-[:HAS_PROVISION]->(p:Provision)
			RETURN d.deal_id AS deal_id, p.provision_id AS provision_id, p.provision_type AS provision_type
			ORDER BY deal_id, provision_id
		`, nil)
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		refs := make([]domain.AnchorRef, 0, len(recs))
		for _, rec := range recs {
			refs = append(refs, domain.AnchorRef{
				Key:    recordString(rec, "provision_id"),
				Type:   recordString(rec, "provision_type"),
				DealID: recordString(rec, "deal_id"),
			})
		}
		return refs, nil
	})
	if err != nil {
		return nil, storeErr(op, err)
	}
	return out.([]domain.AnchorRef), nil
}

// DealProvisions lists the provision anchors attached to a deal.
func (s *Store) DealProvisions(ctx context.Context, dealID string) ([]domain.AnchorRef, error) {
	op := s.opName("DealProvisions")
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (d:Deal {deal_id: $deal_id})-[:HAS_PROVISION]->(p:Provision)
			RETURN p.provision_id AS provision_id, p.provision_type AS provision_type
			ORDER BY provision_id
		`, map[string]any{"deal_id": dealID})
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		refs := make([]domain.AnchorRef, 0, len(recs))
		for _, rec := range recs {
			refs = append(refs, domain.AnchorRef{
				Key:    recordString(rec, "provision_id"),
				Type:   recordString(rec, "provision_type"),
				DealID: dealID,
			})
		}
		return refs, nil
	})
	if err != nil {
		return nil, storeErr(op, err)
	}
	return out.([]domain.AnchorRef), nil
}
