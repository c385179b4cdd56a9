package assessments

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bru-digital/qteria/internal/shared/server/middleware"
	"github.com/bru-digital/qteria/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the assessments service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches assessment routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/assessments", h.start)
	rg.GET("/assessments", h.list)
	rg.GET("/assessments/:id", h.status)
	rg.GET("/assessments/:id/result", h.result)
	rg.POST("/assessments/:id/cancel", h.cancel)
	rg.POST("/assessments/:id/rerun", h.rerun)
	rg.POST("/assessments/:id/needs-rerun", h.flagNeedsRerun)
}

// requestCtx carries the middleware request ID into the service layer so it
// reaches queue messages and worker logs.
func requestCtx(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

type startRequest struct {
	WorkflowID    string        `json:"workflowId"`
	Documents     []DocumentRef `json:"documents"`
	ReuseExisting bool          `json:"reuseExisting"`
}

func (h *Handler) start(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	var (
		a   Assessment
		err error
	)
	if req.ReuseExisting {
		a, err = h.Svc.StartOrReuse(requestCtx(c), tenantID, req.WorkflowID, req.Documents)
	} else {
		a, err = h.Svc.Start(requestCtx(c), tenantID, req.WorkflowID, req.Documents)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start assessment", nil)
		}
		return
	}
	respond.JSON(c, http.StatusAccepted, a)
}

func (h *Handler) list(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	workflowID := c.Query("workflowId")
	if workflowID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "workflowId query parameter is required", nil)
		return
	}
	items, err := h.Svc.List(requestCtx(c), tenantID, workflowID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list assessments", nil)
		return
	}
	if items == nil {
		items = []Assessment{}
	}
	respond.OK(c, gin.H{"assessments": items})
}

func (h *Handler) status(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	a, err := h.Svc.Status(requestCtx(c), tenantID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "assessment not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load assessment", nil)
		}
		return
	}
	respond.OK(c, a)
}

func (h *Handler) result(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	res, err := h.Svc.Result(requestCtx(c), tenantID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "assessment not found", nil)
		case errors.Is(err, ErrNotCompleted):
			respond.Error(c, http.StatusConflict, "not_completed", "assessment has no result yet", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load result", nil)
		}
		return
	}
	respond.OK(c, res)
}

func (h *Handler) cancel(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	err := h.Svc.Cancel(requestCtx(c), tenantID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "assessment not found or already terminal", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to cancel assessment", nil)
		}
		return
	}
	respond.OK(c, gin.H{"status": "cancel_requested"})
}

type rerunRequest struct {
	Documents []DocumentRef `json:"documents"`
}

func (h *Handler) rerun(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	var req rerunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	a, err := h.Svc.Rerun(requestCtx(c), tenantID, c.Param("id"), req.Documents)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "assessment not found", nil)
		case errors.Is(err, ErrNotTerminal):
			respond.Error(c, http.StatusConflict, "not_terminal", "assessment is still running", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to re-run assessment", nil)
		}
		return
	}
	respond.JSON(c, http.StatusAccepted, a)
}

func (h *Handler) flagNeedsRerun(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	err := h.Svc.FlagNeedsRerun(requestCtx(c), tenantID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "assessment not found", nil)
		case errors.Is(err, ErrNotTerminal):
			respond.Error(c, http.StatusConflict, "not_terminal", "assessment is still running", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to flag assessment", nil)
		}
		return
	}
	respond.OK(c, gin.H{"status": StatusNeedsRerun})
}
