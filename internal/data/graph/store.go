package graph

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/valence-backend/internal/platform/enginerr"
	"github.com/yungbote/valence-backend/internal/platform/graphdb"
	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/schema"
)

// Store is the single write path into the graph. Every mutation is an
// idempotent MERGE keyed on stable identity, so re-running an extraction
// converges instead of duplicating.
type Store struct {
	client  *graphdb.Client
	schemas *schema.Service
	log     *logger.Logger
}

func NewStore(client *graphdb.Client, schemas *schema.Service, log *logger.Logger) *Store {
	return &Store{
		client:  client,
		schemas: schemas,
		log:     log.With("store", "Graph"),
	}
}

// storeErr wraps a driver failure as an engine store error, classifying it as
// transient (retryable connectivity trouble) or permanent.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) || neo4j.IsTransactionExecutionLimit(err) {
		return enginerr.Transient(op, err)
	}
	return enginerr.Permanent(op, err)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// safeIdent guards values that get spliced into Cypher as labels, relation
// types, or property names. Parameters cannot carry these positions, so the
// catalog-sourced value is whitelisted instead.
func safeIdent(op, v string) (string, error) {
	if !identRe.MatchString(v) {
		return "", enginerr.Newf(enginerr.KindSchemaMismatch, op, "identifier %q is not a safe graph token", v)
	}
	return v, nil
}

// labelFor converts a snake_case catalog type name into the PascalCase node
// label used in the graph.
func labelFor(typeName string) string {
	parts := strings.Split(typeName, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// relFor converts a catalog relation name into the SCREAMING_SNAKE relationship
// type used in the graph.
func relFor(relName string) string {
	return strings.ToUpper(relName)
}

func provenanceProps(prefix string, props map[string]any, sourceText, sourceSection string, sourcePage int, confidence string) {
	props[prefix+"source_text"] = sourceText
	props[prefix+"source_section"] = sourceSection
	if sourcePage > 0 {
		props[prefix+"source_page"] = sourcePage
	}
	if confidence != "" {
		props[prefix+"confidence"] = confidence
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func recordString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recordInt(rec *neo4j.Record, key string) int {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	return int(asInt64(v))
}

func recordBool(rec *neo4j.Record, key string) bool {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (s *Store) opName(op string) string {
	return fmt.Sprintf("graph.%s", op)
}
