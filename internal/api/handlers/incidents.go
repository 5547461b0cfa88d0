package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListIncidents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	incidents, err := h.facade.ListIncidents(c.Request.Context(), c.GetString("nest_id"), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents, "total": len(incidents)})
}

func (h *Handler) AcknowledgeIncident(c *gin.Context) {
	if err := h.facade.AcknowledgeIncident(c.Request.Context(), c.Param("incident_id"), c.GetString("actor")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incident_id": c.Param("incident_id"), "message": "Incident acknowledged"})
}
