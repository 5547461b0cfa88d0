package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nestwatch/nestwatch/internal/controlplane"
	"github.com/nestwatch/nestwatch/internal/errs"
	"go.uber.org/zap"
)

type Handler struct {
	facade *controlplane.Facade
	logger *zap.Logger
}

func NewHandler(facade *controlplane.Facade, logger *zap.Logger) *Handler {
	return &Handler{
		facade: facade,
		logger: logger,
	}
}

// respondError translates the error taxonomy into HTTP. Codes are
// stable contract; messages are advisory.
func (h *Handler) respondError(c *gin.Context, err error) {
	code := errs.CodeOf(err)
	switch errs.KindOf(err) {
	case errs.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": code})
	case errs.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": code})
	case errs.KindDuplicate:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": code})
	case errs.KindTransient:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Dependency unavailable, retry later", "code": code})
	case errs.KindProvisioning:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "code": code})
	default:
		h.logger.Error("Internal error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": code})
	}
}
