package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowgo/src/core/embedding"
)

// CheckHealth handles GET /api/v1/health
func (h *Handler) CheckHealth(c *gin.Context) {
	info := h.provider.Describe(c.Request.Context())

	status := http.StatusOK
	if !info.Available {
		status = http.StatusServiceUnavailable
	}

	sendJSON(c, status, gin.H{
		"status": map[bool]string{true: "ok", false: "degraded"}[info.Available],
		"embedding": gin.H{
			"provider":       info.Name,
			"device":         info.Device,
			"available":      info.Available,
			"dimensionality": h.provider.Dimensionality(),
		},
	})
}

// ListEmbeddingModels handles GET /api/v1/embedding/models. Only a local
// provider can enumerate models; remote providers return an empty list.
func (h *Handler) ListEmbeddingModels(c *gin.Context) {
	if h.models == nil {
		sendJSON(c, http.StatusOK, gin.H{"models": []embedding.LocalModel{}})
		return
	}

	models, err := h.models.ListModels(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, gin.H{"models": models})
}
