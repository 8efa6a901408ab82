package main

import (
  "context"
  "fmt"
  "os"
  "github.com/yungbote/valence-backend/internal/platform/logger"
  "github.com/yungbote/valence-backend/internal/platform/graphdb"
  "github.com/yungbote/valence-backend/internal/utils"
  "github.com/yungbote/valence-backend/internal/data/graph"
  "github.com/yungbote/valence-backend/internal/patterns"
  "github.com/yungbote/valence-backend/internal/schema"
)

// Seeds the schema catalog meta-nodes from the YAML files in the seed
// directory. Safe to re-run; re-declared pieces replace their prior state and
// the version stamp moves last.
func main() {
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

  seedDir := utils.GetEnv("SCHEMA_SEED_DIR", "data/seed", log)
  seed, err := schema.LoadSeedDir(seedDir)
  if err != nil {
    log.Error("Failed to load seed files", "dir", seedDir, "error", err)
    os.Exit(1)
  }

  // Compile every pattern before touching the store, so a cyclic or
  // malformed definition never lands in the catalog.
  registry := patterns.NewRegistry(log)
  for _, p := range seed.Patterns {
    condJSON, err := p.ConditionJSON()
    if err != nil {
      log.Error("Pattern condition does not parse", "pattern_id", p.PatternID, "error", err)
      os.Exit(1)
    }
    cond, err := patterns.ParseCondition(condJSON)
    if err != nil {
      log.Error("Pattern condition is invalid", "pattern_id", p.PatternID, "error", err)
      os.Exit(1)
    }
    if err := registry.Register(patterns.Pattern{ID: p.PatternID, Label: p.Label, Severity: p.Severity, Condition: cond}); err != nil {
      log.Error("Pattern rejected", "pattern_id", p.PatternID, "error", err)
      os.Exit(1)
    }
  }

  ctx := context.Background()
  graphClient, err := graphdb.NewFromEnv(log)
  if err != nil {
    log.Error("Graph store init failed", "error", err)
    os.Exit(1)
  }
  defer graphClient.Close(ctx)

  catalogLoader := graph.NewLoader(graphClient, log)
  schemaService := schema.NewService(catalogLoader, log)
  store := graph.NewStore(graphClient, schemaService, log)

  if err := store.ApplySeed(ctx, seed); err != nil {
    log.Error("Seeding failed", "error", err)
    os.Exit(1)
  }

  schemaService.Invalidate()
  cat, err := schemaService.Current(ctx)
  if err != nil {
    log.Error("Catalog re-introspection failed after seeding", "error", err)
    os.Exit(1)
  }
  log.Info("Schema seeded",
    "version", cat.Version,
    "types", len(cat.Types),
    "questions", len(cat.Questions),
    "concept_types", len(cat.Concepts),
    "patterns", len(cat.Patterns))
}
