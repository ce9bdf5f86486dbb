package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tidecharts/tilecache/internal/infrastructure/http/v1/dto"
)

func (h *Handler) CacheStats(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "cache stats", h.tileUseCase.Stats())
}

func (h *Handler) ClearCache(c *gin.Context) {
	if err := h.tileUseCase.ClearCache(); err != nil {
		h.RespondWithInternalServerError(c)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "cache cleared", nil)
}

func (h *Handler) SetQuota(c *gin.Context) {
	var req dto.QuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body",
		})
		return
	}

	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	h.tileUseCase.SetMaxBytes(req.MaxBytes)
	h.RespondWithJSON(c, http.StatusOK, "quota updated", h.tileUseCase.Stats())
}
