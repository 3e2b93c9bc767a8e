package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"knowgo/src/core/knowledge"
	"knowgo/src/core/retrieval"
)

type searchRequest struct {
	Query      string `json:"query" binding:"required"`
	Mode       string `json:"mode" binding:"omitempty,oneof=system user hybrid"`
	TopK       int    `json:"topK" binding:"omitempty,min=1,max=50"`
	DocumentID int64  `json:"documentId,omitempty"`
}

type searchResponse struct {
	Results   []knowledge.RetrievalResult `json:"results"`
	NoContext bool                        `json:"noContext"`
}

// Search handles POST /api/v1/search. An empty result set is reported
// explicitly so the caller can answer "I don't know" instead of guessing.
func (h *Handler) Search(c *gin.Context) {
	principal, err := principalFromHeaders(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	mode := knowledge.SearchMode(req.Mode)
	if req.Mode == "" {
		mode = knowledge.ModeHybrid
	}

	results, err := h.engine.Retrieve(c.Request.Context(), principal, req.Query, retrieval.Options{
		Mode:       mode,
		TopK:       req.TopK,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrNoContext) {
			sendJSON(c, http.StatusOK, searchResponse{
				Results:   []knowledge.RetrievalResult{},
				NoContext: true,
			})
			return
		}
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, searchResponse{Results: results})
}
