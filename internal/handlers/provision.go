package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/valence-backend/internal/data/graph"
	"github.com/yungbote/valence-backend/internal/engine"
	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/schema"
)

type ProvisionHandler struct {
	log     *logger.Logger
	store   *graph.Store
	schemas *schema.Service
	engine  *engine.Engine
}

func NewProvisionHandler(log *logger.Logger, store *graph.Store, schemas *schema.Service, eng *engine.Engine) *ProvisionHandler {
	return &ProvisionHandler{
		log:     log.With("handler", "ProvisionHandler"),
		store:   store,
		schemas: schemas,
		engine:  eng,
	}
}

// GET /api/provisions/:anchor_key
// Everything persisted under one anchor: answers, concept marks, entities,
// and computed flags.
func (h *ProvisionHandler) GetProvision(c *gin.Context) {
	ctx := c.Request.Context()
	anchorKey := c.Param("anchor_key")

	flags, err := h.store.AnchorFlags(ctx, anchorKey)
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	answers, err := h.store.AnchorAnswers(ctx, anchorKey)
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	marks, err := h.store.AnchorApplicability(ctx, anchorKey)
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	entities, err := h.store.AnchorEntities(ctx, anchorKey)
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"anchor_key":    anchorKey,
		"flags":         flags,
		"answers":       answers,
		"applicability": marks,
		"entities":      entities,
	})
}

// GET /api/provisions/:anchor_key/patterns
// Evaluates the full pattern set against persisted facts, writing nothing.
func (h *ProvisionHandler) EvaluatePatterns(c *gin.Context) {
	results, err := h.engine.EvaluatePatterns(c.Request.Context(), c.Param("anchor_key"))
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	RespondOK(c, gin.H{"anchor_key": c.Param("anchor_key"), "patterns": results})
}

// GET /api/patterns/summary
// Evaluates every registered pattern against every anchor and aggregates
// match counts, with the matching anchors listed per pattern.
func (h *ProvisionHandler) PatternSummary(c *gin.Context) {
	ctx := c.Request.Context()

	anchors, err := h.store.AllAnchors(ctx)
	if err != nil {
		RespondEngineError(c, err)
		return
	}

	type patternTally struct {
		Label    string   `json:"label,omitempty"`
		Severity string   `json:"severity,omitempty"`
		Matches  int      `json:"matches"`
		Anchors  []string `json:"anchors,omitempty"`
	}
	summary := map[string]*patternTally{}
	for _, anchor := range anchors {
		results, err := h.engine.EvaluatePatterns(ctx, anchor.Key)
		if err != nil {
			RespondEngineError(c, err)
			return
		}
		for _, res := range results {
			tally, ok := summary[res.PatternID]
			if !ok {
				tally = &patternTally{Label: res.Label, Severity: res.Severity}
				summary[res.PatternID] = tally
			}
			if res.Matched {
				tally.Matches++
				tally.Anchors = append(tally.Anchors, anchor.Key)
			}
		}
	}
	RespondOK(c, gin.H{"anchors_evaluated": len(anchors), "patterns": summary})
}

// POST /api/provisions/:anchor_key/recompute-flags
func (h *ProvisionHandler) RecomputeFlags(c *gin.Context) {
	flags, err := h.engine.RecomputeFlags(c.Request.Context(), c.Param("anchor_key"))
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	RespondOK(c, gin.H{"anchor_key": c.Param("anchor_key"), "flags": flags})
}

// GET /api/provisions/:anchor_key/purity
// Audits the anchor node for properties that are neither identity nor
// declared flags.
func (h *ProvisionHandler) AuditPurity(c *gin.Context) {
	ctx := c.Request.Context()
	cat, err := h.schemas.Current(ctx)
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	stray, err := h.store.VerifyAnchorPurity(ctx, cat, c.Param("anchor_key"))
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"anchor_key":       c.Param("anchor_key"),
		"pure":             len(stray) == 0,
		"stray_properties": stray,
	})
}
