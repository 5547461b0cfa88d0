// Package api is the admin HTTP surface over the control-plane facade.
// Handlers translate HTTP to facade calls and back; nothing here makes
// fleet decisions.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/nestwatch/nestwatch/internal/api/handlers"
	"github.com/nestwatch/nestwatch/internal/api/middleware"
	"github.com/nestwatch/nestwatch/internal/config"
	"github.com/nestwatch/nestwatch/internal/controlplane"
	"github.com/nestwatch/nestwatch/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	Config  *config.Config
	Router  *gin.Engine
	handler *handlers.Handler
	limiter *ratelimit.Limiter
}

func NewServer(cfg *config.Config, facade *controlplane.Facade, limiter *ratelimit.Limiter, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	server := &Server{
		Config:  cfg,
		Router:  router,
		handler: handlers.NewHandler(facade, logger),
		limiter: limiter,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	h := s.handler

	s.Router.GET("/health", h.HealthCheck)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Router.Group("/api/v1")
	api.Use(middleware.AuthRequired(s.Config.Auth.JWTSecret))
	api.Use(middleware.RateLimit(s.limiter))

	// Worker lifecycle. Registration is open to any authenticated
	// caller; approval and rejection are admin-only.
	workers := api.Group("/workers")
	{
		workers.POST("/register", h.RegisterWorker)
		workers.GET("", h.ListWorkers)
		workers.GET("/:id/standing", h.GetWorkerStanding)

		admin := workers.Group("")
		admin.Use(middleware.AdminRequired())
		{
			admin.GET("/requests", h.ListRegistrationRequests)
			admin.POST("/:id/approve", h.ApproveWorker)
			admin.POST("/:id/reject", h.RejectWorker)
			admin.POST("/:id/rebuild", h.RebuildWorker)
			admin.POST("/:id/region-change", h.RequestRegionChange)
			admin.GET("/region-changes", h.ListRegionChangeRequests)
			admin.POST("/region-changes/:request_id/approve", h.ApproveRegionChange)
		}
	}

	// Monitoring.
	services := api.Group("/services")
	{
		services.POST("", h.RequestMonitoring)
		services.GET("", h.ListServices)
		services.GET("/:id/status", h.GetServiceStatus)
		services.DELETE("/:id", h.StopMonitoring)
		services.PUT("/:id/maintenance", middleware.AdminRequired(), h.SetMaintenance)
	}

	// Points.
	points := api.Group("/points")
	{
		points.GET("/leaderboard", h.GetLeaderboard)
		points.GET("/config", h.GetPointsConfig)
		points.PUT("/config", middleware.AdminRequired(), h.UpdatePointsConfig)
		points.POST("/reset-period", middleware.AdminRequired(), h.ResetPointsPeriod)
	}

	// Incidents.
	incidents := api.Group("/incidents")
	{
		incidents.GET("", h.ListIncidents)
		incidents.POST("/:incident_id/acknowledge", h.AcknowledgeIncident)
	}

	// Operability: breakers, dead letters, audit trail. Admin-only.
	ops := api.Group("/ops")
	ops.Use(middleware.AdminRequired())
	{
		ops.GET("/breakers", h.ListBreakers)
		ops.PUT("/breakers/:name", h.ForceBreaker)
		ops.POST("/breakers/:name/reset", h.ResetBreaker)
		ops.GET("/dead-letters", h.ListDeadLetters)
		ops.GET("/audit", h.ListAuditEvents)
	}
}
