package main

import (
  "context"
  "fmt"
  "os"
  "github.com/yungbote/valence-backend/internal/platform/logger"
  "github.com/yungbote/valence-backend/internal/platform/graphdb"
  "github.com/yungbote/valence-backend/internal/utils"
  "github.com/yungbote/valence-backend/internal/db"
  "github.com/yungbote/valence-backend/internal/data/graph"
  "github.com/yungbote/valence-backend/internal/engine"
  "github.com/yungbote/valence-backend/internal/extraction"
  "github.com/yungbote/valence-backend/internal/patterns"
  "github.com/yungbote/valence-backend/internal/repos"
  "github.com/yungbote/valence-backend/internal/schema"
  "github.com/yungbote/valence-backend/internal/services"
  "github.com/yungbote/valence-backend/internal/handlers"
  "github.com/yungbote/valence-backend/internal/server"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  ctx := context.Background()

  // Graph store (schema catalog + extracted facts)
  log.Info("Connecting to the graph store from main...")
  graphClient, err := graphdb.NewFromEnv(log)
  if err != nil {
    log.Error("Graph store init failed", "error", err)
    os.Exit(1)
  }
  defer graphClient.Close(ctx)

  // Schema catalog cache
  catalogLoader := graph.NewLoader(graphClient, log)
  schemaService := schema.NewService(catalogLoader, log)
  if _, err := schemaService.Current(ctx); err != nil {
    log.Warn("Schema catalog not loadable yet; seed it with the initschema command", "error", err)
  }

  graphStore := graph.NewStore(graphClient, schemaService, log)

  // Postgres (deal registry + run bookkeeping)
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  var thePG = postgresService.DB()
  if err := db.AutoMigrateAll(thePG); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }

  // Repos
  log.Info("Setting up Repos from main...")
  dealRepo := repos.NewDealRepo(thePG, log)
  runRepo := repos.NewExtractionRunRepo(thePG, log)
  callLogRepo := repos.NewModelCallLogRepo(thePG, log)

  // Extraction source (optional; raw records can also be posted directly)
  var source extraction.Source
  modelClient, err := services.NewModelClient(log)
  if err != nil {
    log.Warn("Model client unavailable; extraction runs must carry a record", "error", err)
  } else {
    source = services.NewModelExtractionSource(log, modelClient, callLogRepo)
  }

  // Engine
  log.Info("Setting up engine from main...")
  registry := patterns.NewRegistry(log)
  eng := engine.New(schemaService, graphStore, graphStore, registry, source, log)

  // Handlers
  log.Info("Setting up handlers from main...")
  ontologyHandler := handlers.NewOntologyHandler(log, schemaService)
  extractionHandler := handlers.NewExtractionHandler(log, eng, runRepo, callLogRepo)
  provisionHandler := handlers.NewProvisionHandler(log, graphStore, schemaService, eng)
  dealHandler := handlers.NewDealHandler(log, dealRepo, graphStore)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    Log:                 log,
    OntologyHandler:     ontologyHandler,
    ExtractionHandler:   extractionHandler,
    ProvisionHandler:    provisionHandler,
    DealHandler:         dealHandler,
  })

  port := utils.GetEnv("PORT", "8080", log)
  fmt.Printf("Server listening on :%s\n", port)
  if err := router.Run(":" + port); err != nil {
    log.Warn("Server failed", "error", err)
  }
}
