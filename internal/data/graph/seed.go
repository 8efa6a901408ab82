package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
	"github.com/yungbote/valence-backend/internal/schema"
)

var seedConstraints = []string{
	`CREATE CONSTRAINT deal_id IF NOT EXISTS FOR (d:Deal) REQUIRE d.deal_id IS UNIQUE`,
	`CREATE CONSTRAINT provision_id IF NOT EXISTS FOR (p:Provision) REQUIRE p.provision_id IS UNIQUE`,
	`CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.entity_id IS UNIQUE`,
	`CREATE CONSTRAINT concept_id IF NOT EXISTS FOR (c:Concept) REQUIRE c.concept_id IS UNIQUE`,
	`CREATE CONSTRAINT question_id IF NOT EXISTS FOR (q:Question) REQUIRE q.question_id IS UNIQUE`,
	`CREATE CONSTRAINT schema_type_name IF NOT EXISTS FOR (t:SchemaType) REQUIRE t.name IS UNIQUE`,
	`CREATE CONSTRAINT category_name IF NOT EXISTS FOR (c:Category) REQUIRE c.name IS UNIQUE`,
	`CREATE CONSTRAINT pattern_id IF NOT EXISTS FOR (p:PatternDef) REQUIRE p.pattern_id IS UNIQUE`,
}

// ApplySeed writes the catalog meta-nodes from a loaded seed. Seeding is
// idempotent: meta-nodes merge on their identity and re-declared pieces
// replace their prior state. The version stamp is written last, so a catalog
// reader never sees a new version with old contents.
func (s *Store) ApplySeed(ctx context.Context, seed *schema.Seed) error {
	op := s.opName("ApplySeed")
	if seed == nil || seed.Version == "" {
		return enginerr.Newf(enginerr.KindValidation, op, "seed is missing a version")
	}

	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	// Constraints auto-commit one at a time; schema commands cannot share a
	// transaction with data writes.
	for _, stmt := range seedConstraints {
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			return storeErr(op, err)
		} else if _, err := res.Consume(ctx); err != nil {
			return storeErr(op, err)
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := s.seedTypes(ctx, tx, seed); err != nil {
			return nil, err
		}
		if err := s.seedHierarchies(ctx, tx, seed); err != nil {
			return nil, err
		}
		if err := s.seedOntology(ctx, tx, seed); err != nil {
			return nil, err
		}
		if err := s.seedConcepts(ctx, tx, seed); err != nil {
			return nil, err
		}
		if err := s.seedPatterns(ctx, tx, seed); err != nil {
			return nil, err
		}
		if err := s.seedExtractionSpecs(ctx, tx, seed); err != nil {
			return nil, err
		}
		return nil, runConsume(ctx, tx, `
			MERGE (m:SchemaMeta {id: 'schema'})
			SET m.version = $version, m.seeded_at = timestamp()
		`, map[string]any{"version": seed.Version})
	})
	if err != nil {
		if enginerr.KindOf(err) == enginerr.KindValidation {
			return err
		}
		return storeErr(op, err)
	}
	s.log.Info("schema catalog seeded",
		"version", seed.Version,
		"types", len(seed.Types),
		"questions", len(seed.Questions),
		"patterns", len(seed.Patterns))
	return nil
}

func runConsume(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) error {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func (s *Store) seedTypes(ctx context.Context, tx neo4j.ManagedTransaction, seed *schema.Seed) error {
	types := make([]map[string]any, 0, len(seed.Types))
	for _, t := range seed.Types {
		attrs := make([]map[string]any, 0, len(t.Attributes))
		for _, a := range t.Attributes {
			card := a.Cardinality
			if card == "" {
				card = string(schema.CardOptional)
			}
			attrs = append(attrs, map[string]any{
				"name":         a.Name,
				"value_kind":   a.ValueKind,
				"cardinality":  card,
				"concept_type": a.ConceptType,
				"entity_type":  a.EntityType,
				"natural_key":  a.NaturalKey,
			})
		}
		types = append(types, map[string]any{
			"name":      t.Name,
			"kind":      string(t.Kind),
			"supertype": t.Supertype,
			"attrs":     attrs,
		})
	}
	// Re-seeding replaces a type's attribute declarations wholesale.
	return runConsume(ctx, tx, `
		UNWIND $types AS t
		MERGE (st:SchemaType {name: t.name})
		SET st.kind = t.kind, st.supertype = t.supertype
		WITH st, t
		OPTIONAL MATCH (st)-[:DECLARES]->(old:SchemaAttribute)
		DETACH DELETE old
		WITH DISTINCT st, t
		UNWIND t.attrs AS attr
		CREATE (st)-[:DECLARES]->(:SchemaAttribute {
			name: attr.name,
			value_kind: attr.value_kind,
			cardinality: attr.cardinality,
			concept_type: attr.concept_type,
			entity_type: attr.entity_type,
			natural_key: attr.natural_key
		})
	`, map[string]any{"types": types})
}

func (s *Store) seedHierarchies(ctx context.Context, tx neo4j.ManagedTransaction, seed *schema.Seed) error {
	rows := make([]map[string]any, 0, len(seed.Hierarchies))
	for _, h := range seed.Hierarchies {
		rows = append(rows, map[string]any{
			"name":           h.Name,
			"base_type":      h.BaseType,
			"attachment_rel": h.AttachmentRel,
			"parent_type":    h.ParentType,
		})
	}
	return runConsume(ctx, tx, `
		UNWIND $rows AS row
		MERGE (h:Hierarchy {name: row.name})
		SET h.base_type = row.base_type,
		    h.attachment_rel = row.attachment_rel,
		    h.parent_type = row.parent_type
	`, map[string]any{"rows": rows})
}

func (s *Store) seedOntology(ctx context.Context, tx neo4j.ManagedTransaction, seed *schema.Seed) error {
	cats := make([]map[string]any, 0, len(seed.Categories))
	for _, c := range seed.Categories {
		cats = append(cats, map[string]any{
			"name":           c.Name,
			"order":          c.Order,
			"provision_type": c.ProvisionType,
		})
	}
	if err := runConsume(ctx, tx, `
		UNWIND $cats AS cat
		MERGE (c:Category {name: cat.name})
		SET c.order = cat.order, c.provision_type = cat.provision_type
	`, map[string]any{"cats": cats}); err != nil {
		return err
	}

	// A question's answer kind comes from its target attribute declaration.
	kindOf := map[string]string{}
	for _, t := range seed.Types {
		for _, a := range t.Attributes {
			if _, dup := kindOf[a.Name]; !dup {
				kindOf[a.Name] = a.ValueKind
			}
		}
	}

	questions := make([]map[string]any, 0, len(seed.Questions))
	for _, q := range seed.Questions {
		answerType := kindOf[q.TargetAttribute]
		if answerType == "" {
			answerType = string(domain.KindString)
		}
		questions = append(questions, map[string]any{
			"question_id":      q.QuestionID,
			"text":             q.Text,
			"category":         q.Category,
			"question_order":   q.QuestionOrder,
			"target_attribute": q.TargetAttribute,
			"answer_type":      answerType,
		})
	}
	return runConsume(ctx, tx, `
		UNWIND $questions AS q
		MATCH (c:Category {name: q.category})
		MERGE (qn:Question {question_id: q.question_id})
		SET qn.text = q.text,
		    qn.question_order = q.question_order,
		    qn.target_attribute = q.target_attribute,
		    qn.answer_type = q.answer_type
		MERGE (qn)-[:IN_CATEGORY]->(c)
	`, map[string]any{"questions": questions})
}

func (s *Store) seedConcepts(ctx context.Context, tx neo4j.ManagedTransaction, seed *schema.Seed) error {
	rows := []map[string]any{}
	for _, ct := range seed.ConceptTypes {
		for _, c := range ct.Concepts {
			rows = append(rows, map[string]any{
				"concept_type": ct.Name,
				"concept_id":   c.ConceptID,
				"label":        c.Label,
			})
		}
	}
	return runConsume(ctx, tx, `
		UNWIND $rows AS row
		MERGE (t:ConceptType {name: row.concept_type})
		MERGE (c:Concept {concept_id: row.concept_id})
		SET c.label = row.label
		MERGE (t)-[:HAS_OPTION]->(c)
	`, map[string]any{"rows": rows})
}

func (s *Store) seedPatterns(ctx context.Context, tx neo4j.ManagedTransaction, seed *schema.Seed) error {
	flags := make([]map[string]any, 0, len(seed.PatternFlags))
	for _, f := range seed.PatternFlags {
		flags = append(flags, map[string]any{"name": f.Name, "pattern_id": f.PatternID})
	}
	if err := runConsume(ctx, tx, `
		UNWIND $flags AS flag
		MERGE (f:PatternFlag {name: flag.name})
		SET f.pattern_id = flag.pattern_id
	`, map[string]any{"flags": flags}); err != nil {
		return err
	}

	defs := make([]map[string]any, 0, len(seed.Patterns))
	for _, p := range seed.Patterns {
		condJSON, err := p.ConditionJSON()
		if err != nil {
			return enginerr.New(enginerr.KindValidation, s.opName("ApplySeed"), err)
		}
		defs = append(defs, map[string]any{
			"pattern_id":     p.PatternID,
			"label":          p.Label,
			"severity":       p.Severity,
			"condition_json": condJSON,
		})
	}
	return runConsume(ctx, tx, `
		UNWIND $defs AS def
		MERGE (p:PatternDef {pattern_id: def.pattern_id})
		SET p.label = def.label,
		    p.severity = def.severity,
		    p.condition_json = def.condition_json
	`, map[string]any{"defs": defs})
}

func (s *Store) seedExtractionSpecs(ctx context.Context, tx neo4j.ManagedTransaction, seed *schema.Seed) error {
	rows := make([]map[string]any, 0, len(seed.ExtractionSpecs))
	for _, spec := range seed.ExtractionSpecs {
		rows = append(rows, map[string]any{
			"metadata_id":        spec.MetadataID,
			"target_entity_type": spec.TargetEntityType,
			"target_attribute":   spec.TargetAttribute,
			"prompt":             spec.Prompt,
			"section_hint":       spec.SectionHint,
			"priority":           spec.Priority,
			"requires_context":   spec.RequiresContext,
		})
	}
	return runConsume(ctx, tx, `
		UNWIND $rows AS row
		MERGE (s:ExtractionSpec {metadata_id: row.metadata_id})
		SET s.target_entity_type = row.target_entity_type,
		    s.target_attribute = row.target_attribute,
		    s.prompt = row.prompt,
		    s.section_hint = row.section_hint,
		    s.priority = row.priority,
		    s.requires_context = row.requires_context
	`, map[string]any{"rows": rows})
}
