package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type registerDocumentRequest struct {
	ContentRef  string `json:"contentRef" binding:"required"`
	SourceLabel string `json:"sourceLabel"`
	Scope       string `json:"scope" binding:"omitempty,oneof=user tenant system"`
}

// RegisterDocument handles POST /api/v1/documents. The content itself
// must already sit in object storage; this registers the reference and
// enqueues the ingestion job.
func (h *Handler) RegisterDocument(c *gin.Context) {
	principal, err := principalFromHeaders(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	var req registerDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	scope, err := scopeForPrincipal(principal, req.Scope)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	doc, err := h.documents.Create(c.Request.Context(), scope, req.ContentRef, req.SourceLabel)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	jobRecord, err := h.jobService.EnqueueIngest(c.Request.Context(), doc.ID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, gin.H{
		"document": doc,
		"jobId":    jobRecord.ID,
	})
}

// ListDocuments handles GET /api/v1/documents
func (h *Handler) ListDocuments(c *gin.Context) {
	principal, err := principalFromHeaders(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	scope, err := scopeForPrincipal(principal, c.Query("scope"))
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	docs, err := h.documents.ListByScope(c.Request.Context(), scope)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, gin.H{"documents": docs})
}

// GetDocument handles GET /api/v1/documents/:id
func (h *Handler) GetDocument(c *gin.Context) {
	principal, err := principalFromHeaders(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	doc, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if !principal.Entitled(doc.OwnerScope.Namespace()) {
		// hide existence from principals outside the owner scope
		sendJSON(c, http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "document not found",
		})
		return
	}

	sendJSON(c, http.StatusOK, doc)
}

// ReingestDocument handles POST /api/v1/documents/:id/reingest. A failed
// document resumes where it stopped; an indexed one is wiped and redone.
func (h *Handler) ReingestDocument(c *gin.Context) {
	principal, err := principalFromHeaders(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	doc, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if !principal.Entitled(doc.OwnerScope.Namespace()) {
		sendJSON(c, http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "document not found",
		})
		return
	}

	if err := h.pipeline.Reingest(c.Request.Context(), id); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	jobRecord, err := h.jobService.EnqueueIngest(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, gin.H{
		"documentId": id,
		"jobId":      jobRecord.ID,
	})
}

// DeleteDocument handles DELETE /api/v1/documents/:id. Vectors and chunk
// rows go first, then the document row; a half-finished delete can be
// retried safely.
func (h *Handler) DeleteDocument(c *gin.Context) {
	principal, err := principalFromHeaders(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	doc, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if !principal.Entitled(doc.OwnerScope.Namespace()) {
		sendJSON(c, http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "document not found",
		})
		return
	}

	if err := h.pipeline.Remove(c.Request.Context(), id); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	c.Status(http.StatusNoContent)
}
