package criteria

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bru-digital/qteria/internal/shared/server/middleware"
	"github.com/bru-digital/qteria/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the criteria repository.
type Handler struct {
	Repo Repo
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo) *Handler {
	return &Handler{Repo: repo}
}

// RegisterRoutes attaches criteria routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/criteria", h.create)
	rg.GET("/criteria", h.list)
}

type createRequest struct {
	WorkflowID   string   `json:"workflowId"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	AppliesToAll bool     `json:"appliesToAll"`
	BucketIDs    []string `json:"bucketIds"`
}

func (h *Handler) create(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.WorkflowID) == "" || strings.TrimSpace(req.Name) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "workflowId and name are required", nil)
		return
	}
	if !req.AppliesToAll && len(req.BucketIDs) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "bucketIds is required unless appliesToAll is set", nil)
		return
	}

	scope := Buckets(req.BucketIDs...)
	if req.AppliesToAll {
		scope = All()
	}
	spec := CriterionSpec{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		WorkflowID:  req.WorkflowID,
		Name:        req.Name,
		Description: req.Description,
		AppliesTo:   scope,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Repo.Create(c.Request.Context(), spec); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create criterion", nil)
		return
	}
	respond.JSON(c, http.StatusCreated, toResponse(spec))
}

func (h *Handler) list(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	workflowID := c.Query("workflowId")
	if workflowID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "workflowId query parameter is required", nil)
		return
	}
	specs, err := h.Repo.ListByWorkflow(c.Request.Context(), tenantID, workflowID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list criteria", nil)
		return
	}
	out := make([]criterionResponse, 0, len(specs))
	for _, spec := range specs {
		out = append(out, toResponse(spec))
	}
	respond.OK(c, gin.H{"criteria": out})
}

type criterionResponse struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflowId"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	AppliesToAll bool      `json:"appliesToAll"`
	BucketIDs    []string  `json:"bucketIds,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toResponse(spec CriterionSpec) criterionResponse {
	return criterionResponse{
		ID:           spec.ID,
		WorkflowID:   spec.WorkflowID,
		Name:         spec.Name,
		Description:  spec.Description,
		AppliesToAll: spec.AppliesTo.IsAll(),
		BucketIDs:    spec.AppliesTo.BucketIDs(),
		CreatedAt:    spec.CreatedAt,
	}
}
