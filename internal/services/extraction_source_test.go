package services

import (
  "context"
  "testing"

  "gorm.io/gorm"

  "github.com/yungbote/valence-backend/internal/platform/logger"
  "github.com/yungbote/valence-backend/internal/schema"
  "github.com/yungbote/valence-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
  t.Helper()
  log, err := logger.New("development")
  if err != nil {
    t.Fatalf("logger init: %v", err)
  }
  return log
}

type stubModelClient struct {
  model string
  out   map[string]any
  usage Usage
  err   error
}

func (s *stubModelClient) GenerateJSON(ctx context.Context, system, user string) (map[string]any, Usage, error) {
  return s.out, s.usage, s.err
}

func (s *stubModelClient) Model() string { return s.model }

type memCallLog struct {
  entries []*types.ModelCallLog
}

func (m *memCallLog) Create(ctx context.Context, tx *gorm.DB, entry *types.ModelCallLog) (*types.ModelCallLog, error) {
  m.entries = append(m.entries, entry)
  return entry, nil
}

func (m *memCallLog) GetByAnchorKey(ctx context.Context, tx *gorm.DB, anchorKey string, limit int) ([]*types.ModelCallLog, error) {
  var out []*types.ModelCallLog
  for _, e := range m.entries {
    if e.AnchorKey == anchorKey {
      out = append(out, e)
    }
  }
  return out, nil
}

func (m *memCallLog) TotalCostForAnchor(ctx context.Context, tx *gorm.DB, anchorKey string) (float64, error) {
  var total float64
  for _, e := range m.entries {
    if e.AnchorKey == anchorKey {
      total += e.CostUSD
    }
  }
  return total, nil
}

func testSpecs() []schema.ExtractionSpec {
  return []schema.ExtractionSpec{
    {MetadataID: "q_rp_020", TargetAttribute: "restricts_ip_transfer", Prompt: "State whether IP transfers are restricted.", Priority: 1},
  }
}

func TestExtract_LogsCallWithComputedCost(t *testing.T) {
  client := &stubModelClient{
    model: "gpt-4o",
    out:   map[string]any{"q_rp_020": true},
    usage: Usage{PromptTokens: 2000, CompletionTokens: 500, TotalTokens: 2500},
  }
  calls := &memCallLog{}
  src := NewModelExtractionSource(testLogger(t), client, calls)
  ctx := context.Background()

  if _, err := src.Extract(ctx, "deal-1:rp_provision", testSpecs(), "provision text"); err != nil {
    t.Fatalf("unexpected error: %v", err)
  }
  if len(calls.entries) != 1 {
    t.Fatalf("expected one logged call, got %d", len(calls.entries))
  }

  // 2000 prompt tokens at 0.0025/1K plus 500 completion tokens at 0.01/1K.
  want := 0.01
  got := calls.entries[0].CostUSD
  if diff := got - want; diff > 1e-9 || diff < -1e-9 {
    t.Fatalf("expected cost %.6f, got %.6f", want, got)
  }

  total, err := calls.TotalCostForAnchor(ctx, nil, "deal-1:rp_provision")
  if err != nil {
    t.Fatalf("unexpected error: %v", err)
  }
  if total <= 0 {
    t.Fatalf("summed cost for the anchor must be non-zero, got %.6f", total)
  }
}

func TestExtract_UnknownModelPricesAtZero(t *testing.T) {
  client := &stubModelClient{
    model: "local-llama",
    out:   map[string]any{"q_rp_020": true},
    usage: Usage{PromptTokens: 1000, CompletionTokens: 100, TotalTokens: 1100},
  }
  calls := &memCallLog{}
  src := NewModelExtractionSource(testLogger(t), client, calls)

  if _, err := src.Extract(context.Background(), "deal-1:rp_provision", testSpecs(), "provision text"); err != nil {
    t.Fatalf("unexpected error: %v", err)
  }
  if len(calls.entries) != 1 {
    t.Fatalf("expected one logged call, got %d", len(calls.entries))
  }
  if calls.entries[0].CostUSD != 0 {
    t.Fatalf("unpriced model must record zero cost, got %.6f", calls.entries[0].CostUSD)
  }
  if !calls.entries[0].Success {
    t.Fatalf("call should still be logged as successful")
  }
}
