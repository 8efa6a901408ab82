package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/engine"
	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/repos"
	"github.com/yungbote/valence-backend/internal/types"
)

var errMissingAnchorKey = errors.New("anchor_key query parameter is required")

type ExtractionHandler struct {
	log    *logger.Logger
	engine *engine.Engine
	runs   repos.ExtractionRunRepo
	calls  repos.ModelCallLogRepo
}

func NewExtractionHandler(log *logger.Logger, eng *engine.Engine, runs repos.ExtractionRunRepo, calls repos.ModelCallLogRepo) *ExtractionHandler {
	return &ExtractionHandler{
		log:    log.With("handler", "ExtractionHandler"),
		engine: eng,
		runs:   runs,
		calls:  calls,
	}
}

type runRequest struct {
	DealID        string           `json:"deal_id" binding:"required"`
	ProvisionType string           `json:"provision_type" binding:"required"`
	DocumentText  string           `json:"document_text,omitempty"`
	Record        domain.RawRecord `json:"record,omitempty"`
}

// POST /api/extractions
// Runs one extraction end to end. A validation failure comes back 422 with
// every collected field error and nothing persisted.
func (h *ExtractionHandler) Run(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	started := time.Now().UTC()
	report, err := h.engine.Run(c.Request.Context(), engine.Request{
		DealID:        req.DealID,
		ProvisionType: req.ProvisionType,
		DocumentText:  req.DocumentText,
		Raw:           req.Record,
	})
	if err != nil {
		h.recordRun(c, req, report, started)
		RespondEngineError(c, err)
		return
	}
	h.recordRun(c, req, report, started)

	if len(report.ValidationErrors) > 0 {
		c.JSON(http.StatusUnprocessableEntity, report)
		return
	}
	RespondOK(c, report)
}

type batchRequest struct {
	Runs        []runRequest `json:"runs" binding:"required"`
	Concurrency int          `json:"concurrency,omitempty"`
}

// POST /api/extractions/batch
func (h *ExtractionHandler) RunBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	engineReqs := make([]engine.Request, 0, len(req.Runs))
	for _, r := range req.Runs {
		engineReqs = append(engineReqs, engine.Request{
			DealID:        r.DealID,
			ProvisionType: r.ProvisionType,
			DocumentText:  r.DocumentText,
			Raw:           r.Record,
		})
	}
	started := time.Now().UTC()
	reports, err := h.engine.RunBatch(c.Request.Context(), engineReqs, req.Concurrency)
	for i, report := range reports {
		h.recordRun(c, req.Runs[i], report, started)
	}
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	RespondOK(c, gin.H{"reports": reports})
}

// recordRun persists run bookkeeping; a bookkeeping failure is logged, never
// surfaced, since the graph is the source of truth for extracted facts.
func (h *ExtractionHandler) recordRun(c *gin.Context, req runRequest, report *engine.Report, started time.Time) {
	if h.runs == nil || report == nil {
		return
	}
	finished := time.Now().UTC()
	run := &types.ExtractionRun{
		DealID:            req.DealID,
		ProvisionType:     req.ProvisionType,
		AnchorKey:         report.AnchorKey,
		State:             string(report.State),
		SchemaVersion:     report.SchemaVersion,
		ScalarWrites:      report.ScalarWrites,
		MultiselectWrites: report.MultiWrites,
		EntityWrites:      report.EntityWrites,
		StartedAt:         started,
		FinishedAt:        &finished,
	}
	if len(report.ValidationErrors) > 0 {
		if raw, err := json.Marshal(report.ValidationErrors); err == nil {
			run.ValidationErrors = datatypes.JSON(raw)
		}
	}
	if len(report.WriteErrors) > 0 {
		if raw, err := json.Marshal(report.WriteErrors); err == nil {
			run.WriteErrors = datatypes.JSON(raw)
		}
	}
	if len(report.Flags) > 0 {
		if raw, err := json.Marshal(report.Flags); err == nil {
			run.Flags = datatypes.JSON(raw)
		}
	}
	if _, err := h.runs.Create(c.Request.Context(), nil, run); err != nil {
		h.log.Error("failed to record extraction run", "anchor_key", report.AnchorKey, "error", err)
	}
}

// GET /api/extractions/costs?anchor_key=
// Model-call spend for one anchor: the logged calls plus their summed cost.
func (h *ExtractionHandler) ListCosts(c *gin.Context) {
	anchorKey := c.Query("anchor_key")
	if anchorKey == "" {
		RespondError(c, http.StatusBadRequest, "bad_request", errMissingAnchorKey)
		return
	}
	ctx := c.Request.Context()
	calls, err := h.calls.GetByAnchorKey(ctx, nil, anchorKey, 20)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	total, err := h.calls.TotalCostForAnchor(ctx, nil, anchorKey)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"anchor_key": anchorKey, "total_cost_usd": total, "calls": calls})
}

// GET /api/extractions?anchor_key=
func (h *ExtractionHandler) ListRuns(c *gin.Context) {
	anchorKey := c.Query("anchor_key")
	if anchorKey == "" {
		RespondError(c, http.StatusBadRequest, "bad_request", errMissingAnchorKey)
		return
	}
	runs, err := h.runs.GetByAnchorKey(c.Request.Context(), nil, anchorKey, 20)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"runs": runs})
}
