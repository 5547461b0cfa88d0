package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/registry"
)

type registerWorkerRequest struct {
	WorkerID     string            `json:"worker_id" binding:"required"`
	OwnerEmail   string            `json:"owner_email" binding:"required"`
	Region       string            `json:"region" binding:"required"`
	Capabilities core.Capabilities `json:"capabilities"`
}

func (h *Handler) RegisterWorker(c *gin.Context) {
	var req registerWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.facade.RegisterWorker(c.Request.Context(), core.RegistrationRequest{
		WorkerID:   req.WorkerID,
		OwnerEmail: req.OwnerEmail,
		Region:     req.Region,
	}, req.Capabilities)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"worker_id": req.WorkerID, "state": core.WorkerPending})
}

func (h *Handler) ListWorkers(c *gin.Context) {
	filter := registry.ListFilter{
		Region: c.Query("region"),
		State:  core.WorkerState(c.Query("state")),
	}
	if v := c.Query("alive"); v != "" {
		alive := v == "true"
		filter.Alive = &alive
	}

	workers, err := h.facade.ListWorkers(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workers": workers, "total": len(workers)})
}

func (h *Handler) ListRegistrationRequests(c *gin.Context) {
	requests, err := h.facade.ListRegistrationRequests(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests, "total": len(requests)})
}

type approveWorkerRequest struct {
	Region string `json:"region"`
}

// ApproveWorker returns the provisioned credential exactly once; it is
// never readable again.
func (h *Handler) ApproveWorker(c *gin.Context) {
	var req approveWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	principal, err := h.facade.ApproveWorker(c.Request.Context(), c.Param("id"), req.Region, c.GetString("actor"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"worker_id":  c.Param("id"),
		"state":      core.WorkerApproved,
		"credential": principal,
	})
}

func (h *Handler) RejectWorker(c *gin.Context) {
	if err := h.facade.RejectWorker(c.Request.Context(), c.Param("id"), c.GetString("actor")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"worker_id": c.Param("id"), "message": "Worker rejected"})
}

type regionChangeRequest struct {
	NewRegion string `json:"new_region" binding:"required"`
}

func (h *Handler) RequestRegionChange(c *gin.Context) {
	var req regionChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	change, err := h.facade.RequestRegionChange(c.Request.Context(), c.Param("id"), req.NewRegion, c.GetString("actor"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"request": change})
}

func (h *Handler) ListRegionChangeRequests(c *gin.Context) {
	requests, err := h.facade.ListRegionChangeRequests(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests, "total": len(requests)})
}

func (h *Handler) ApproveRegionChange(c *gin.Context) {
	if err := h.facade.ApproveRegionChange(c.Request.Context(), c.Param("request_id"), c.GetString("actor")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": c.Param("request_id"), "message": "Region change approved"})
}

type rebuildWorkerRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RebuildWorker(c *gin.Context) {
	var req rebuildWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.facade.RebuildWorker(c.Request.Context(), c.Param("id"), req.Reason, c.GetString("actor")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"worker_id": c.Param("id"), "message": "Rebuild requested"})
}
