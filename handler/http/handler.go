package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"knowgo/src/core/embedding"
	"knowgo/src/core/ingest"
	"knowgo/src/core/kerr"
	"knowgo/src/core/knowledge"
	"knowgo/src/core/retrieval"
	"knowgo/src/infrastructure/job"
	"knowgo/src/storage/postgres/documentctrl"
)

// ModelLister enumerates the embedding models a local provider serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]embedding.LocalModel, error)
}

type Handler struct {
	documents  *documentctrl.DocumentService
	pipeline   *ingest.Pipeline
	jobService *job.JobService
	engine     *retrieval.Engine
	provider   embedding.Provider
	models     ModelLister
}

func NewHandler(
	documents *documentctrl.DocumentService,
	pipeline *ingest.Pipeline,
	jobService *job.JobService,
	engine *retrieval.Engine,
	provider embedding.Provider,
	models ModelLister,
) *Handler {
	return &Handler{
		documents:  documents,
		pipeline:   pipeline,
		jobService: jobService,
		engine:     engine,
		provider:   provider,
		models:     models,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	// Document routes
	v1.POST("/documents", h.RegisterDocument)
	v1.GET("/documents", h.ListDocuments)
	v1.GET("/documents/:id", h.GetDocument)
	v1.POST("/documents/:id/reingest", h.ReingestDocument)
	v1.DELETE("/documents/:id", h.DeleteDocument)

	// Search routes
	v1.POST("/search", h.Search)

	// System routes
	v1.GET("/health", h.CheckHealth)
	v1.GET("/embedding/models", h.ListEmbeddingModels)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func sendError(c *gin.Context, status int, err error) {
	code := "INTERNAL_ERROR"

	switch kerr.KindOf(err) {
	case kerr.KindValidation:
		code = "INVALID_REQUEST"
		status = http.StatusBadRequest
	case kerr.KindNotFound:
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case kerr.KindPermission:
		code = "FORBIDDEN"
		status = http.StatusForbidden
	case kerr.KindUnavailable:
		code = "UNAVAILABLE"
		status = http.StatusServiceUnavailable
	case kerr.KindProvider, kerr.KindVectorStore:
		code = "UPSTREAM_ERROR"
		status = http.StatusBadGateway
	default:
		// unclassified errors keep the caller's status
		switch status {
		case http.StatusUnauthorized:
			code = "UNAUTHORIZED"
		case http.StatusBadRequest:
			code = "INVALID_REQUEST"
		default:
			code = "INTERNAL_ERROR"
			status = http.StatusInternalServerError
		}
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

var errMissingPrincipal = errors.New("missing X-User-ID header")

// principalFromHeaders trusts the identity headers set by the upstream
// gateway; this service performs no authentication of its own.
func principalFromHeaders(c *gin.Context) (knowledge.Principal, error) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		return knowledge.Principal{}, errMissingPrincipal
	}

	var entitlements []string
	if raw := c.GetHeader("X-Entitlements"); raw != "" {
		for _, e := range strings.Split(raw, ",") {
			if e = strings.TrimSpace(e); e != "" {
				entitlements = append(entitlements, e)
			}
		}
	}

	return knowledge.Principal{
		UserID:       userID,
		TenantID:     c.GetHeader("X-Tenant-ID"),
		Entitlements: entitlements,
	}, nil
}

// scopeForPrincipal resolves the owner scope a request addresses. Writes
// default to the caller's personal scope; system scope requires the
// matching entitlement.
func scopeForPrincipal(p knowledge.Principal, scope string) (knowledge.Scope, error) {
	const op = "http.scopeForPrincipal"

	var s knowledge.Scope
	switch scope {
	case "", "user":
		s = knowledge.UserScope(p.UserID)
	case "tenant":
		if p.TenantID == "" {
			return "", kerr.New(kerr.KindValidation, op, "tenant scope requires a tenant id")
		}
		s = knowledge.TenantScope(p.TenantID)
	case "system":
		s = knowledge.SystemScope
	default:
		return "", kerr.Newf(kerr.KindValidation, op, "unknown scope %q", scope)
	}

	if !p.Entitled(s.Namespace()) {
		return "", kerr.Newf(kerr.KindPermission, op, "principal %s is not entitled to %s", p, s.Namespace())
	}
	return s, nil
}
