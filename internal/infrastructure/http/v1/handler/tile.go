package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Tile(c *gin.Context) {
	strZ := c.Param("z")
	strX := c.Param("x")
	strY := c.Param("y")

	z, err := strconv.Atoi(strZ)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "z should be integer",
		})
		return
	}

	x, err := strconv.Atoi(strX)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "x should be integer",
		})
		return
	}

	y, err := strconv.Atoi(strY)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "y should be integer",
		})
		return
	}

	candidate, ok := h.tileUseCase.GetTile(c.Request.Context(), z, x, y)
	if !ok {
		h.RespondWithJSON(c, http.StatusNotFound, "no tile candidate", nil)
		return
	}

	c.Header("X-Tile-Source", string(candidate.Source))
	c.Data(http.StatusOK, candidate.ContentType, candidate.Data)
}
