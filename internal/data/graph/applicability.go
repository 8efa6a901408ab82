package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
)

// StoreApplicability marks concepts on an anchor with their tri-state status.
// The status lives on the relationship to the seeded concept node, one edge
// per concept, re-marking replaces the prior status. Concepts the catalog does
// not carry are refused rather than auto-created; the concept set is closed.
func (s *Store) StoreApplicability(ctx context.Context, anchorKey string, fv domain.FieldValue) error {
	op := s.opName("StoreApplicability")

	marks := make([]map[string]any, 0, len(fv.Values))
	for _, val := range fv.Values {
		if val.Kind != domain.KindOption {
			return enginerr.Newf(enginerr.KindSchemaMismatch, op, "field %q routed to the multiselect channel with kind %s", fv.FieldID, val.Kind)
		}
		if !val.Status.Valid() {
			return enginerr.Newf(enginerr.KindValidation, op, "concept %q has status %q; applicability is tri-state", val.Option, val.Status)
		}
		marks = append(marks, map[string]any{
			"concept_id": val.Option,
			"status":     string(val.Status),
		})
	}
	if len(marks) == 0 {
		return nil
	}

	props := map[string]any{"question_id": fv.FieldID}
	provenanceProps("", props, fv.Provenance.SourceText, fv.Provenance.SourceSection, fv.Provenance.SourcePage, fv.Provenance.Confidence)

	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})
			RETURN count(p) AS anchors
		`, map[string]any{"provision_id": anchorKey})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		anchors, _ := rec.Get("anchors")
		if asInt64(anchors) == 0 {
			return nil, applicabilityOutcome(op, 0, 0, len(marks), anchorKey)
		}

		res, err = tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})
			UNWIND $marks AS mark
			MATCH (c:Concept {concept_id: mark.concept_id})
			MERGE (p)-[r:HAS_APPLICABILITY]->(c)
			ON CREATE SET r.created_at = timestamp()
			SET r.status = mark.status,
			    r += $props,
			    r.updated_at = timestamp()
			RETURN count(r) AS n
		`, map[string]any{
			"provision_id": anchorKey,
			"marks":        marks,
			"props":        props,
		})
		if err != nil {
			return nil, err
		}
		rec, err = res.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _ := rec.Get("n")
		return nil, applicabilityOutcome(op, asInt64(anchors), asInt64(n), len(marks), anchorKey)
	})
	if err != nil {
		if k := enginerr.KindOf(err); k == enginerr.KindSchemaMismatch || k == enginerr.KindAnchorNotFound {
			return err
		}
		return storeErr(op, err)
	}
	return nil
}

// applicabilityOutcome classifies the write counts: a missing anchor is a
// different failure than a concept absent from the catalog.
func applicabilityOutcome(op string, anchors, marked int64, want int, anchorKey string) error {
	if anchors == 0 {
		return enginerr.Newf(enginerr.KindAnchorNotFound, op, "anchor %q does not exist", anchorKey)
	}
	if marked != int64(want) {
		return enginerr.Newf(enginerr.KindSchemaMismatch, op,
			"marked %d of %d concepts for %q; a catalog concept node is missing", marked, want, anchorKey)
	}
	return nil
}
