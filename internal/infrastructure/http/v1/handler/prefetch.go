package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tidecharts/tilecache/internal/geo"
	"github.com/tidecharts/tilecache/internal/infrastructure/http/v1/dto"
	"github.com/tidecharts/tilecache/internal/prefetch"
)

func (h *Handler) Prefetch(c *gin.Context) {
	var req dto.PrefetchRequest
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

	// Absent fields stay negative so the use case can fill in the
	// configured defaults; an explicit 0 passes through as zero.
	retryCount := -1
	if req.RetryCount != nil {
		retryCount = *req.RetryCount
	}
	retryDelay := -time.Millisecond
	if req.RetryDelayMs != nil {
		retryDelay = time.Duration(*req.RetryDelayMs) * time.Millisecond
	}

	opts := prefetch.Options{
		Provider:    req.Provider,
		URLTemplate: req.URLTemplate,
		Subdomains:  req.Subdomains,
		BBox: geo.BBox{
			North: req.North,
			South: req.South,
			West:  req.West,
			East:  req.East,
		},
		ZoomMin:     req.ZoomMin,
		ZoomMax:     req.ZoomMax,
		Concurrency: req.Concurrency,
		RetryCount:  retryCount,
		RetryDelay:  retryDelay,
	}

	progress, err := h.tileUseCase.Prefetch(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "prefetch finished", progress)
}
