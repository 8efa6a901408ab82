package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/schema"
)

type OntologyHandler struct {
	log     *logger.Logger
	schemas *schema.Service
}

func NewOntologyHandler(log *logger.Logger, schemas *schema.Service) *OntologyHandler {
	return &OntologyHandler{
		log:     log.With("handler", "OntologyHandler"),
		schemas: schemas,
	}
}

// GET /api/schema/version
func (h *OntologyHandler) GetVersion(c *gin.Context) {
	cat, err := h.schemas.Current(c.Request.Context())
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	RespondOK(c, gin.H{"version": cat.Version})
}

// POST /api/schema/refresh
// Re-checks the stored schema version and re-introspects on mismatch.
func (h *OntologyHandler) Refresh(c *gin.Context) {
	cat, err := h.schemas.EnsureFresh(c.Request.Context())
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"version":   cat.Version,
		"types":     len(cat.Types),
		"questions": len(cat.Questions),
		"patterns":  len(cat.Patterns),
	})
}

// GET /api/ontology/questions?category=
// Questions come back in (category order, question order).
func (h *OntologyHandler) ListQuestions(c *gin.Context) {
	cat, err := h.schemas.Current(c.Request.Context())
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	questions, err := cat.ResolveQuestionSet(c.Query("category"))
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	out := make([]gin.H, 0, len(questions))
	for _, q := range questions {
		out = append(out, gin.H{
			"question_id":      q.QuestionID,
			"text":             q.Text,
			"category":         q.Category,
			"question_order":   q.QuestionOrder,
			"target_attribute": q.TargetAttribute,
			"answer_type":      q.AnswerType,
		})
	}
	RespondOK(c, gin.H{"questions": out})
}

// GET /api/ontology/categories
func (h *OntologyHandler) ListCategories(c *gin.Context) {
	cat, err := h.schemas.Current(c.Request.Context())
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	RespondOK(c, gin.H{"categories": cat.Categories})
}

// GET /api/ontology/concepts/:type
func (h *OntologyHandler) ListConcepts(c *gin.Context) {
	cat, err := h.schemas.Current(c.Request.Context())
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	opts, err := cat.ResolveConceptSet(c.Param("type"))
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	RespondOK(c, gin.H{"concept_type": c.Param("type"), "options": opts})
}

// GET /api/ontology/shapes/:anchor_type
// The full extraction shape for one anchor type, derived from the catalog.
func (h *OntologyHandler) GetExtractionShape(c *gin.Context) {
	cat, err := h.schemas.Current(c.Request.Context())
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	shape, err := cat.ResolveExtractionShape(c.Param("anchor_type"))
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	fields := make([]gin.H, 0, len(shape.Fields))
	for _, f := range shape.Fields {
		field := gin.H{
			"field_id":    f.FieldID,
			"value_kind":  f.ValueKind,
			"cardinality": f.Cardinality,
		}
		if f.ConceptType != "" {
			field["concept_type"] = f.ConceptType
			field["options"] = f.Options
		}
		if f.EntityType != "" {
			field["entity_type"] = f.EntityType
		}
		fields = append(fields, field)
	}
	RespondOK(c, gin.H{"anchor_type": shape.AnchorType, "fields": fields})
}

// GET /api/ontology/entity-shapes/:type
func (h *OntologyHandler) GetEntityShape(c *gin.Context) {
	cat, err := h.schemas.Current(c.Request.Context())
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	shape, err := cat.ResolveEntityShape(c.Param("type"))
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, shape)
}
