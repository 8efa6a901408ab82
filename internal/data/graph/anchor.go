package graph

import (
	"context"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
	"github.com/yungbote/valence-backend/internal/schema"
)

// identityProps are the only non-flag properties an anchor node may carry.
var identityProps = map[string]bool{
	"provision_id":   true,
	"provision_type": true,
	"deal_id":        true,
	"created_at":     true,
	"updated_at":     true,
}

// EnsureAnchor upserts the deal node and its provision anchor. The anchor
// carries identity only; all substance hangs off it as answers, applicability
// edges, and entity records.
func (s *Store) EnsureAnchor(ctx context.Context, anchor domain.AnchorRef) error {
	op := s.opName("EnsureAnchor")
	if anchor.Key == "" || anchor.Type == "" || anchor.DealID == "" {
		return enginerr.Newf(enginerr.KindValidation, op, "anchor ref needs key, type, and deal id")
	}

	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MERGE (d:Deal {deal_id: $deal_id})
			ON CREATE SET d.created_at = timestamp()
			MERGE (p:Provision {provision_id: $provision_id})
			ON CREATE SET p.created_at = timestamp()
			SET p.provision_type = $provision_type,
			    p.deal_id = $deal_id,
			    p.updated_at = timestamp()
			MERGE (d)-[:HAS_PROVISION]->(p)
		`, map[string]any{
			"deal_id":        anchor.DealID,
			"provision_id":   anchor.Key,
			"provision_type": anchor.Type,
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return storeErr(op, err)
	}
	s.log.Debug("anchor ensured", "provision_id", anchor.Key, "provision_type", anchor.Type)
	return nil
}

// DeleteDeal removes a deal, its provision anchors, and everything hanging
// off them: answers, applicability edges, and entity subtrees. Returns how
// many provisions went with it.
func (s *Store) DeleteDeal(ctx context.Context, dealID string) (int, error) {
	op := s.opName("DeleteDeal")
	if dealID == "" {
		return 0, enginerr.Newf(enginerr.KindValidation, op, "deal id is required")
	}

	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (d:Deal {deal_id: $deal_id})
			OPTIONAL MATCH (d)-[:HAS_PROVISION]->(p:Provision)
			OPTIONAL MATCH (p)-[:HAS_ANSWER]->(a:Answer)
			OPTIONAL MATCH (p)-[*1..3]->(e:Entity)
			WITH d, collect(DISTINCT p) AS provisions, collect(DISTINCT a) AS answers, collect(DISTINCT e) AS entities
			FOREACH (x IN answers | DETACH DELETE x)
			FOREACH (x IN entities | DETACH DELETE x)
			FOREACH (x IN provisions | DETACH DELETE x)
			DETACH DELETE d
			RETURN size(provisions) AS n
		`, map[string]any{"deal_id": dealID})
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return int64(0), nil
		}
		n, _ := recs[0].Get("n")
		return asInt64(n), nil
	})
	if err != nil {
		return 0, storeErr(op, err)
	}
	n := int(out.(int64))
	s.log.Info("deal removed from graph", "deal_id", dealID, "provisions", n)
	return n, nil
}

// StorePatternFlag writes one computed flag onto an anchor. Only flags the
// catalog declares may land there; anything else is an anchor purity
// violation regardless of where the value came from.
func (s *Store) StorePatternFlag(ctx context.Context, cat *schema.Catalog, anchorKey, flagName string, value bool) error {
	op := s.opName("StorePatternFlag")
	if !cat.AllowedAnchorFlag(flagName) {
		return enginerr.Newf(enginerr.KindAnchorPurity, op,
			"flag %q is not a declared computed pattern flag; anchors carry identity and declared flags only", flagName)
	}
	prop, err := safeIdent(op, flagName)
	if err != nil {
		return err
	}

	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})
			SET p.`+prop+` = $value,
			    p.updated_at = timestamp()
			RETURN count(p) AS n
		`, map[string]any{
			"provision_id": anchorKey,
			"value":        value,
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

// VerifyAnchorPurity audits an anchor node against the catalog and reports
// every property that is neither identity nor a declared pattern flag.
func (s *Store) VerifyAnchorPurity(ctx context.Context, cat *schema.Catalog, anchorKey string) ([]string, error) {
	op := s.opName("VerifyAnchorPurity")

	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provision {provision_id: $provision_id})
			RETURN keys(p) AS props
		`, map[string]any{"provision_id": anchorKey})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, enginerr.Newf(enginerr.KindAnchorNotFound, op, "anchor %q does not exist", anchorKey)
		}
		raw, _ := rec.Get("props")
		list, _ := raw.([]any)
		var stray []string
		for _, item := range list {
			name, _ := item.(string)
			if identityProps[name] || cat.AllowedAnchorFlag(name) {
				continue
			}
			stray = append(stray, name)
		}
		sort.Strings(stray)
		return stray, nil
	})
	if err != nil {
		if enginerr.KindOf(err) == enginerr.KindAnchorNotFound {
			return nil, err
		}
		return nil, storeErr(op, err)
	}
	stray, _ := out.([]string)
	if len(stray) > 0 {
		s.log.Warn("anchor carries undeclared properties", "provision_id", anchorKey, "properties", stray)
	}
	return stray, nil
}
