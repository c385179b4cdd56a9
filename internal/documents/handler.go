package documents

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bru-digital/qteria/internal/shared/server/middleware"
	"github.com/bru-digital/qteria/internal/shared/server/respond"
)

const maxUploadSize = 25 << 20 // 25MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
}

func (h *Handler) upload(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	bucketID := strings.TrimSpace(c.PostForm("bucketId"))
	if bucketID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "bucketId is required", nil)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}

	doc, err := h.Svc.Upload(c.Request.Context(), tenantID, bucketID, fileHeader.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to upload document", nil)
		}
		return
	}
	c.Set("documentId", doc.ID)

	respond.JSON(c, http.StatusCreated, doc)
}

func (h *Handler) list(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	bucketID := c.Query("bucketId")
	if bucketID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "bucketId query parameter is required", nil)
		return
	}
	docs, err := h.Svc.Repo.ListByBucket(c.Request.Context(), tenantID, bucketID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list documents", nil)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	respond.OK(c, gin.H{"documents": docs})
}

func (h *Handler) get(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	doc, err := h.Svc.Get(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "document id is required", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load document", nil)
		}
		return
	}
	respond.OK(c, doc)
}
