package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
)

// StoreScalar upserts one typed answer under an anchor. The answer node is
// keyed by (anchor, question id), so repeated extraction of the same field
// overwrites in place and carries the latest provenance.
func (s *Store) StoreScalar(ctx context.Context, anchorKey string, fv domain.FieldValue) error {
	op := s.opName("StoreScalar")
	if len(fv.Values) != 1 {
		return enginerr.Newf(enginerr.KindValidation, op, "scalar field %q must carry exactly one value", fv.FieldID)
	}
	val := fv.Values[0]
	if !val.Kind.Scalar() {
		return enginerr.Newf(enginerr.KindSchemaMismatch, op, "field %q routed to the scalar channel with kind %s", fv.FieldID, val.Kind)
	}

	props := map[string]any{
		"value_kind": string(val.Kind),
		"value":      val.Native(),
	}
	provenanceProps("", props, fv.Provenance.SourceText, fv.Provenance.SourceSection, fv.Provenance.SourcePage, fv.Provenance.Confidence)

	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})
			MERGE (p)-[:HAS_ANSWER]->(a:Answer {question_id: $question_id})
			ON CREATE SET a.created_at = timestamp()
			SET a += $props,
			    a.updated_at = timestamp()
			RETURN count(a) AS n
		`, map[string]any{
			"provision_id": anchorKey,
			"question_id":  fv.FieldID,
			"props":        props,
		})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		if n, _ := rec.Get("n"); asInt64(n) == 0 {
			return nil, enginerr.Newf(enginerr.KindAnchorNotFound, op, "anchor %q does not exist", anchorKey)
		}
		return nil, nil
	})
	if err != nil {
		if enginerr.KindOf(err) == enginerr.KindAnchorNotFound {
			return err
		}
		return storeErr(op, err)
	}
	return nil
}
