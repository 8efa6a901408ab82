package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/valence-backend/internal/data/graph"
	"github.com/yungbote/valence-backend/internal/platform/logger"
	"github.com/yungbote/valence-backend/internal/repos"
	"github.com/yungbote/valence-backend/internal/types"
)

var errUnknownDealStatus = errors.New("status must be one of pending, extracting, extracted, failed")

type DealHandler struct {
	log   *logger.Logger
	deals repos.DealRepo
	store *graph.Store
}

func NewDealHandler(log *logger.Logger, deals repos.DealRepo, store *graph.Store) *DealHandler {
	return &DealHandler{
		log:   log.With("handler", "DealHandler"),
		deals: deals,
		store: store,
	}
}

type createDealRequest struct {
	DealID       string `json:"deal_id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Sponsor      string `json:"sponsor,omitempty"`
	DocumentPath string `json:"document_path,omitempty"`
}

// POST /api/deals
func (h *DealHandler) CreateDeal(c *gin.Context) {
	var req createDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	deal, err := h.deals.Create(c.Request.Context(), nil, &types.Deal{
		DealID:       req.DealID,
		Name:         req.Name,
		Sponsor:      req.Sponsor,
		DocumentPath: req.DocumentPath,
		Status:       "pending",
	})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, deal)
}

// GET /api/deals
func (h *DealHandler) ListDeals(c *gin.Context) {
	deals, err := h.deals.List(c.Request.Context(), nil, 50, 0)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"deals": deals})
}

// dealStatuses are the allowed registry states. A deal moves forward through
// them; "failed" is reachable from any state.
var dealStatuses = map[string]bool{
	"pending":    true,
	"extracting": true,
	"extracted":  true,
	"failed":     true,
}

type updateDealStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PATCH /api/deals/:deal_id/status
func (h *DealHandler) UpdateDealStatus(c *gin.Context) {
	ctx := c.Request.Context()
	dealID := c.Param("deal_id")

	var req updateDealStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if !dealStatuses[req.Status] {
		RespondError(c, http.StatusBadRequest, "bad_request",
			errUnknownDealStatus)
		return
	}
	if _, err := h.deals.GetByDealID(ctx, nil, dealID); err != nil {
		if err == gorm.ErrRecordNotFound {
			RespondError(c, http.StatusNotFound, "not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	if err := h.deals.UpdateFields(ctx, nil, dealID, map[string]interface{}{"status": req.Status}); err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"deal_id": dealID, "status": req.Status})
}

// DELETE /api/deals/:deal_id
// Removes the registry row and the deal's whole graph subtree.
func (h *DealHandler) DeleteDeal(c *gin.Context) {
	ctx := c.Request.Context()
	dealID := c.Param("deal_id")

	if _, err := h.deals.GetByDealID(ctx, nil, dealID); err != nil {
		if err == gorm.ErrRecordNotFound {
			RespondError(c, http.StatusNotFound, "not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	provisions, err := h.store.DeleteDeal(ctx, dealID)
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	if err := h.deals.Delete(ctx, nil, dealID); err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	h.log.Info("deal deleted", "deal_id", dealID, "provisions_removed", provisions)
	RespondOK(c, gin.H{"deal_id": dealID, "provisions_removed": provisions})
}

// GET /api/deals/:deal_id
// Registry row plus the provision anchors the graph holds for the deal.
func (h *DealHandler) GetDeal(c *gin.Context) {
	ctx := c.Request.Context()
	dealID := c.Param("deal_id")

	deal, err := h.deals.GetByDealID(ctx, nil, dealID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			RespondError(c, http.StatusNotFound, "not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	provisions, err := h.store.DealProvisions(ctx, dealID)
	if err != nil {
		RespondEngineError(c, err)
		return
	}
	RespondOK(c, gin.H{"deal": deal, "provisions": provisions})
}
