package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nestwatch/nestwatch/internal/core"
)

func (h *Handler) GetPointsConfig(c *gin.Context) {
	cfg, err := h.facade.PointsConfig(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) UpdatePointsConfig(c *gin.Context) {
	var cfg core.PointsConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.facade.UpdatePointsConfig(c.Request.Context(), &cfg, c.GetString("actor")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Points config updated"})
}

func (h *Handler) ResetPointsPeriod(c *gin.Context) {
	if err := h.facade.ResetPointsPeriod(c.Request.Context(), c.GetString("actor")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Points period reset"})
}

func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "25"), 10, 64)
	period := c.Query("scope") == "period"

	entries, err := h.facade.Leaderboard(c.Request.Context(), period, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func (h *Handler) GetWorkerStanding(c *gin.Context) {
	standing, err := h.facade.WorkerStanding(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, standing)
}
