package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tidecharts/tilecache/internal/infrastructure/http/v1/dto"
)

func (h *Handler) SetNetworkState(c *gin.Context) {
	var req dto.NetworkRequest
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

	h.tileUseCase.SetOnline(*req.Online)
	h.RespondWithJSON(c, http.StatusOK, "network state updated", gin.H{"online": h.tileUseCase.Online()})
}
