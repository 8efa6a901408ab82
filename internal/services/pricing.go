package services

type tokenRates struct {
  Input  float64
  Output float64
}

// Vendor pricing per 1K tokens. Kept in code rather than the catalog because
// it is external pricing that changes on the vendor's schedule, not ours.
var modelPricing = map[string]tokenRates{
  "gpt-4o":       {Input: 0.0025, Output: 0.01},
  "gpt-4o-mini":  {Input: 0.00015, Output: 0.0006},
  "gpt-4.1":      {Input: 0.002, Output: 0.008},
  "gpt-4.1-mini": {Input: 0.0004, Output: 0.0016},
  "gpt-4-turbo":  {Input: 0.01, Output: 0.03},
}

// callCostUSD prices one call from its token usage. Models missing from the
// pricing table cost zero; the second return tells the caller tracking is
// degraded so it can log it.
func callCostUSD(model string, usage Usage) (float64, bool) {
  rates, ok := modelPricing[model]
  if !ok {
    return 0, false
  }
  cost := float64(usage.PromptTokens)/1000*rates.Input +
    float64(usage.CompletionTokens)/1000*rates.Output
  return cost, true
}
