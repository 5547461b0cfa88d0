package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ListBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"breakers": h.facade.Breakers()})
}

type breakerOverrideRequest struct {
	State  string `json:"state" binding:"required"`
	Reason string `json:"reason"`
}

func (h *Handler) ForceBreaker(c *gin.Context) {
	var req breakerOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.facade.ForceBreaker(c.Request.Context(), c.Param("name"), req.State, c.GetString("actor"), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"breaker": c.Param("name"), "state": req.State})
}

func (h *Handler) ResetBreaker(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.facade.ResetBreaker(c.Request.Context(), c.Param("name"), c.GetString("actor"), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"breaker": c.Param("name"), "state": "closed"})
}

func (h *Handler) ListDeadLetters(c *gin.Context) {
	count, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)

	letters, err := h.facade.DeadLetters(c.Request.Context(), count)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dead_letters": letters, "total": len(letters)})
}

func (h *Handler) ListAuditEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, err := h.facade.AuditEvents(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}
