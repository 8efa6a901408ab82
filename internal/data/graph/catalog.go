package graph

import (
	"context"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/platform/enginerr"
	"github.com/yungbote/valence-backend/internal/platform/graphdb"
	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/schema"
)

// Loader introspects the schema catalog out of its meta-nodes. The graph is
// the single source of truth for every type, question, concept, hierarchy,
// flag, and pattern the engine works with; nothing here is hardcoded.
type Loader struct {
	client *graphdb.Client
	log    *logger.Logger
}

func NewLoader(client *graphdb.Client, log *logger.Logger) *Loader {
	return &Loader{client: client, log: log.With("loader", "SchemaCatalog")}
}

// SchemaVersion reads the catalog version stamp without loading the catalog.
func (l *Loader) SchemaVersion(ctx context.Context) (string, error) {
	op := "graph.SchemaVersion"
	session := l.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (m:SchemaMeta {id: 'schema'}) RETURN m.version AS version LIMIT 1`, nil)
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
		return recordString(recs[0], "version"), nil
	})
	if err != nil {
		return "", storeErr(op, err)
	}
	version, _ := out.(string)
	if version == "" {
		return "", enginerr.Newf(enginerr.KindSchemaUnavailable, op, "no schema meta-node; the catalog has not been seeded")
	}
	return version, nil
}

// LoadCatalog reads the full catalog snapshot in one read transaction, so
// every piece reflects the same version.
func (l *Loader) LoadCatalog(ctx context.Context) (*schema.Catalog, error) {
	op := "graph.LoadCatalog"
	session := l.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cat := &schema.Catalog{
			Types:       map[string]schema.TypeDecl{},
			Concepts:    map[string][]schema.ConceptOption{},
			Hierarchies: map[string]schema.Hierarchy{},
		}

		version, err := oneString(ctx, tx, `MATCH (m:SchemaMeta {id: 'schema'}) RETURN m.version AS v LIMIT 1`, "v")
		if err != nil {
			return nil, err
		}
		if version == "" {
			return nil, enginerr.Newf(enginerr.KindSchemaUnavailable, op, "no schema meta-node; the catalog has not been seeded")
		}
		cat.Version = version

		if err := l.loadTypes(ctx, tx, cat); err != nil {
			return nil, err
		}
		if err := l.loadCategoriesAndQuestions(ctx, tx, cat); err != nil {
			return nil, err
		}
		if err := l.loadConcepts(ctx, tx, cat); err != nil {
			return nil, err
		}
		if err := l.loadHierarchies(ctx, tx, cat); err != nil {
			return nil, err
		}
		if err := l.loadPatterns(ctx, tx, cat); err != nil {
			return nil, err
		}
		if err := l.loadExtractionSpecs(ctx, tx, cat); err != nil {
			return nil, err
		}
		return cat, nil
	})
	if err != nil {
		if enginerr.KindOf(err) == enginerr.KindSchemaUnavailable {
			return nil, err
		}
		return nil, storeErr(op, err)
	}
	return out.(*schema.Catalog), nil
}

func (l *Loader) loadTypes(ctx context.Context, tx neo4j.ManagedTransaction, cat *schema.Catalog) error {
	res, err := tx.Run(ctx, `
		MATCH (t:SchemaType)
		OPTIONAL MATCH (t)-[:DECLARES]->(a:SchemaAttribute)
		RETURN t.name AS name, t.kind AS kind, t.supertype AS supertype,
		       collect(a {.name, .value_kind, .cardinality, .concept_type, .entity_type, .natural_key}) AS attrs
		ORDER BY name
	`, nil)
	if err != nil {
		return err
	}
	recs, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		decl := schema.TypeDecl{
			Name:      recordString(rec, "name"),
			Kind:      schema.TypeKind(recordString(rec, "kind")),
			Supertype: recordString(rec, "supertype"),
		}
		rawAttrs, _ := rec.Get("attrs")
		list, _ := rawAttrs.([]any)
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok || m["name"] == nil {
				continue
			}
			attr := schema.AttributeDecl{
				Name:        stringOf(m["name"]),
				ValueKind:   domain.ValueKind(stringOf(m["value_kind"])),
				Cardinality: schema.Cardinality(stringOf(m["cardinality"])),
				ConceptType: stringOf(m["concept_type"]),
				EntityType:  stringOf(m["entity_type"]),
			}
			if nk, ok := m["natural_key"].(bool); ok {
				attr.NaturalKey = nk
			}
			decl.Attributes = append(decl.Attributes, attr)
		}
		sort.Slice(decl.Attributes, func(i, j int) bool { return decl.Attributes[i].Name < decl.Attributes[j].Name })
		cat.Types[decl.Name] = decl
	}
	return nil
}

func (l *Loader) loadCategoriesAndQuestions(ctx context.Context, tx neo4j.ManagedTransaction, cat *schema.Catalog) error {
	res, err := tx.Run(ctx, `
		MATCH (c:Category)
		RETURN c.name AS name, c.order AS ord, c.provision_type AS provision_type
		ORDER BY ord, name
	`, nil)
	if err != nil {
		return err
	}
	recs, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	orderOf := map[string]int{}
	for _, rec := range recs {
		c := schema.Category{
			Name:          recordString(rec, "name"),
			Order:         recordInt(rec, "ord"),
			ProvisionType: recordString(rec, "provision_type"),
		}
		cat.Categories = append(cat.Categories, c)
		orderOf[c.Name] = c.Order
	}

	// Category membership comes from the relation, never from question id
	// conventions.
	res, err = tx.Run(ctx, `
		MATCH (q:Question)-[:IN_CATEGORY]->(c:Category)
		RETURN q.question_id AS question_id, q.text AS text, q.question_order AS question_order,
		       q.target_attribute AS target_attribute, q.answer_type AS answer_type,
		       c.name AS category
		ORDER BY question_id
	`, nil)
	if err != nil {
		return err
	}
	recs, err = res.Collect(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		category := recordString(rec, "category")
		cat.Questions = append(cat.Questions, schema.QuestionShape{
			QuestionID:      recordString(rec, "question_id"),
			Text:            recordString(rec, "text"),
			Category:        category,
			CategoryOrder:   orderOf[category],
			QuestionOrder:   recordInt(rec, "question_order"),
			TargetAttribute: recordString(rec, "target_attribute"),
			AnswerType:      domain.ValueKind(recordString(rec, "answer_type")),
		})
	}
	return nil
}

func (l *Loader) loadConcepts(ctx context.Context, tx neo4j.ManagedTransaction, cat *schema.Catalog) error {
	res, err := tx.Run(ctx, `
		MATCH (t:ConceptType)-[:HAS_OPTION]->(c:Concept)
		RETURN t.name AS concept_type, c.concept_id AS concept_id, c.label AS label
		ORDER BY concept_type, concept_id
	`, nil)
	if err != nil {
		return err
	}
	recs, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		ct := recordString(rec, "concept_type")
		cat.Concepts[ct] = append(cat.Concepts[ct], schema.ConceptOption{
			ConceptID:   recordString(rec, "concept_id"),
			Label:       recordString(rec, "label"),
			ConceptType: ct,
		})
	}
	return nil
}

func (l *Loader) loadHierarchies(ctx context.Context, tx neo4j.ManagedTransaction, cat *schema.Catalog) error {
	res, err := tx.Run(ctx, `
		MATCH (h:Hierarchy)
		RETURN h.name AS name, h.base_type AS base_type, h.attachment_rel AS attachment_rel, h.parent_type AS parent_type
		ORDER BY name
	`, nil)
	if err != nil {
		return err
	}
	recs, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		h := schema.Hierarchy{
			Name:          recordString(rec, "name"),
			BaseType:      recordString(rec, "base_type"),
			AttachmentRel: recordString(rec, "attachment_rel"),
			ParentType:    recordString(rec, "parent_type"),
		}
		cat.Hierarchies[h.Name] = h
	}
	return nil
}

func (l *Loader) loadPatterns(ctx context.Context, tx neo4j.ManagedTransaction, cat *schema.Catalog) error {
	res, err := tx.Run(ctx, `
		MATCH (f:PatternFlag)
		RETURN f.name AS name, f.pattern_id AS pattern_id
		ORDER BY name
	`, nil)
	if err != nil {
		return err
	}
	recs, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		cat.PatternFlags = append(cat.PatternFlags, schema.PatternFlag{
			Name:      recordString(rec, "name"),
			PatternID: recordString(rec, "pattern_id"),
		})
	}

	res, err = tx.Run(ctx, `
		MATCH (p:PatternDef)
		RETURN p.pattern_id AS pattern_id, p.label AS label, p.severity AS severity, p.condition_json AS condition_json
		ORDER BY pattern_id
	`, nil)
	if err != nil {
		return err
	}
	recs, err = res.Collect(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		cat.Patterns = append(cat.Patterns, schema.PatternDef{
			PatternID:     recordString(rec, "pattern_id"),
			Label:         recordString(rec, "label"),
			Severity:      recordString(rec, "severity"),
			ConditionJSON: recordString(rec, "condition_json"),
		})
	}
	return nil
}

func (l *Loader) loadExtractionSpecs(ctx context.Context, tx neo4j.ManagedTransaction, cat *schema.Catalog) error {
	res, err := tx.Run(ctx, `
		MATCH (s:ExtractionSpec)
		RETURN s.metadata_id AS metadata_id, s.target_entity_type AS target_entity_type,
		       s.target_attribute AS target_attribute, s.prompt AS prompt,
		       s.section_hint AS section_hint, s.priority AS priority, s.requires_context AS requires_context
		ORDER BY priority, metadata_id
	`, nil)
	if err != nil {
		return err
	}
	recs, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		cat.ExtractionSpecs = append(cat.ExtractionSpecs, schema.ExtractionSpec{
			MetadataID:       recordString(rec, "metadata_id"),
			TargetEntityType: recordString(rec, "target_entity_type"),
			TargetAttribute:  recordString(rec, "target_attribute"),
			Prompt:           recordString(rec, "prompt"),
			SectionHint:      recordString(rec, "section_hint"),
			Priority:         recordInt(rec, "priority"),
			RequiresContext:  recordBool(rec, "requires_context"),
		})
	}
	return nil
}

func oneString(ctx context.Context, tx neo4j.ManagedTransaction, query, key string) (string, error) {
	res, err := tx.Run(ctx, query, nil)
	if err != nil {
		return "", err
	}
	recs, err := res.Collect(ctx)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "", nil
	}
	return recordString(recs[0], key), nil
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
