package server

import (
  "github.com/gin-gonic/gin"
  "github.com/gin-contrib/cors"
  "github.com/yungbote/valence-backend/internal/handlers"
  "github.com/yungbote/valence-backend/internal/platform/logger"
)

type RouterConfig struct {
  Log                 *logger.Logger
  OntologyHandler     *handlers.OntologyHandler
  ExtractionHandler   *handlers.ExtractionHandler
  ProvisionHandler    *handlers.ProvisionHandler
  DealHandler         *handlers.DealHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.New()
  router.Use(gin.Recovery())
  router.Use(AttachTraceContext())
  router.Use(RequestLogger(cfg.Log))

  // Cors
  router.Use(cors.New(cors.Config{
    AllowOrigins: []string{
      "http://localhost:80",
      "http://localhost:3000",
      "http://localhost:5174",
    },
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

// ===============
// || Public    ||
// ===============
  router.GET("/healthcheck", handlers.HealthCheck)

  api := router.Group("/api")
  {
    // Schema + ontology (read side of the catalog)
    api.GET("/schema/version", cfg.OntologyHandler.GetVersion)
    api.POST("/schema/refresh", cfg.OntologyHandler.Refresh)
    api.GET("/ontology/questions", cfg.OntologyHandler.ListQuestions)
    api.GET("/ontology/categories", cfg.OntologyHandler.ListCategories)
    api.GET("/ontology/concepts/:type", cfg.OntologyHandler.ListConcepts)
    api.GET("/ontology/shapes/:anchor_type", cfg.OntologyHandler.GetExtractionShape)
    api.GET("/ontology/entity-shapes/:type", cfg.OntologyHandler.GetEntityShape)

    // Extraction runs
    api.POST("/extractions", cfg.ExtractionHandler.Run)
    api.POST("/extractions/batch", cfg.ExtractionHandler.RunBatch)
    api.GET("/extractions", cfg.ExtractionHandler.ListRuns)
    api.GET("/extractions/costs", cfg.ExtractionHandler.ListCosts)

    // Provisions (persisted facts + patterns)
    api.GET("/provisions/:anchor_key", cfg.ProvisionHandler.GetProvision)
    api.GET("/provisions/:anchor_key/patterns", cfg.ProvisionHandler.EvaluatePatterns)
    api.POST("/provisions/:anchor_key/recompute-flags", cfg.ProvisionHandler.RecomputeFlags)
    api.GET("/provisions/:anchor_key/purity", cfg.ProvisionHandler.AuditPurity)
    api.GET("/patterns/summary", cfg.ProvisionHandler.PatternSummary)

    // Deals
    api.POST("/deals", cfg.DealHandler.CreateDeal)
    api.GET("/deals", cfg.DealHandler.ListDeals)
    api.GET("/deals/:deal_id", cfg.DealHandler.GetDeal)
    api.PATCH("/deals/:deal_id/status", cfg.DealHandler.UpdateDealStatus)
    api.DELETE("/deals/:deal_id", cfg.DealHandler.DeleteDeal)
  }

  return router
}
