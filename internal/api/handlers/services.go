package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nestwatch/nestwatch/internal/core"
)

// RequestMonitoring accepts the full check config. The caller's nest is
// authoritative regardless of what the body claims.
func (h *Handler) RequestMonitoring(c *gin.Context) {
	var cfg core.ServiceCheckConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg.NestID = c.GetString("nest_id")

	if err := h.facade.RequestMonitoring(c.Request.Context(), &cfg); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"service_id": cfg.ServiceID, "strategy": cfg.Strategy})
}

func (h *Handler) StopMonitoring(c *gin.Context) {
	if err := h.facade.StopMonitoring(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"service_id": c.Param("id"), "message": "Monitoring stopped"})
}

func (h *Handler) ListServices(c *gin.Context) {
	services, err := h.facade.ListServices(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	nestID := c.GetString("nest_id")
	own := make([]*core.ServiceCheckConfig, 0, len(services))
	for _, s := range services {
		if s.NestID == nestID {
			own = append(own, s)
		}
	}
	c.JSON(http.StatusOK, gin.H{"services": own, "total": len(own)})
}

func (h *Handler) GetServiceStatus(c *gin.Context) {
	status, err := h.facade.ServiceStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type maintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) SetMaintenance(c *gin.Context) {
	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.facade.SetMaintenance(c.Request.Context(), c.Param("id"), req.Enabled, c.GetString("actor")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"service_id": c.Param("id"), "maintenance": req.Enabled})
}
