package services

import (
  "context"
  "encoding/json"
  "fmt"
  "sort"
  "strings"

  "gorm.io/datatypes"

  "github.com/yungbote/valence-backend/internal/domain"
  "github.com/yungbote/valence-backend/internal/platform/logger"
  "github.com/yungbote/valence-backend/internal/repos"
  "github.com/yungbote/valence-backend/internal/schema"
  "github.com/yungbote/valence-backend/internal/types"
)

const extractionSystemPrompt = `You extract structured facts from credit agreement provisions.
Answer only from the supplied text. Every field must carry a provenance object
with source_text and source_section (or source_page). For applicability
questions respond with included/excluded/silent lists, never a boolean.
Respond with a single JSON object keyed by field id. Omit fields the text does
not address.`

// ModelExtractionSource turns provision text into a raw field-value record by
// prompting the configured model with the catalog's extraction specs. Every
// call is logged with token usage; the engine validates the output before
// anything is persisted.
type ModelExtractionSource struct {
  log    *logger.Logger
  client ModelClient
  calls  repos.ModelCallLogRepo
}

func NewModelExtractionSource(log *logger.Logger, client ModelClient, calls repos.ModelCallLogRepo) *ModelExtractionSource {
  return &ModelExtractionSource{
    log:    log.With("service", "ModelExtractionSource"),
    client: client,
    calls:  calls,
  }
}

func (s *ModelExtractionSource) Extract(ctx context.Context, anchorKey string, specs []schema.ExtractionSpec, documentText string) (domain.RawRecord, error) {
  user := buildExtractionPrompt(specs, documentText)

  raw, usage, callErr := s.client.GenerateJSON(ctx, extractionSystemPrompt, user)
  s.logCall(ctx, anchorKey, user, raw, usage, callErr)
  if callErr != nil {
    return nil, fmt.Errorf("model extraction for %s: %w", anchorKey, callErr)
  }
  return domain.RawRecord(raw), nil
}

func buildExtractionPrompt(specs []schema.ExtractionSpec, documentText string) string {
  ordered := make([]schema.ExtractionSpec, len(specs))
  copy(ordered, specs)
  sort.SliceStable(ordered, func(i, j int) bool {
    if ordered[i].Priority != ordered[j].Priority {
      return ordered[i].Priority < ordered[j].Priority
    }
    return ordered[i].MetadataID < ordered[j].MetadataID
  })

  var b strings.Builder
  b.WriteString("Extraction instructions:\n")
  for _, spec := range ordered {
    b.WriteString("- field ")
    b.WriteString(spec.MetadataID)
    if spec.TargetAttribute != "" {
      b.WriteString(" (attribute ")
      b.WriteString(spec.TargetAttribute)
      b.WriteString(")")
    }
    b.WriteString(": ")
    b.WriteString(spec.Prompt)
    if spec.SectionHint != "" {
      b.WriteString(" [look in: ")
      b.WriteString(spec.SectionHint)
      b.WriteString("]")
    }
    b.WriteString("\n")
  }
  b.WriteString("\nProvision text:\n")
  b.WriteString(documentText)
  return b.String()
}

func (s *ModelExtractionSource) logCall(ctx context.Context, anchorKey, prompt string, raw map[string]any, usage Usage, callErr error) {
  if s.calls == nil {
    return
  }
  entry := &types.ModelCallLog{
    AnchorKey: anchorKey,
    CallType:  "extraction",
    Model:     s.client.Model(),
    Prompt:    prompt,
    Success:   callErr == nil,
  }
  if callErr != nil {
    entry.Error = callErr.Error()
  }
  if raw != nil {
    if enc, err := json.Marshal(raw); err == nil {
      entry.Response = string(enc)
    }
  }
  if enc, err := json.Marshal(usage); err == nil {
    entry.Usage = datatypes.JSON(enc)
  }
  cost, priced := callCostUSD(entry.Model, usage)
  if !priced && usage.TotalTokens > 0 {
    s.log.Warn("model missing from pricing table, call cost recorded as zero", "model", entry.Model)
  }
  entry.CostUSD = cost
  if _, err := s.calls.Create(ctx, nil, entry); err != nil {
    s.log.Error("failed to log model call", "anchor_key", anchorKey, "error", err)
  }
}
