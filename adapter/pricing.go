package adapter

import "strings"

// pricePerMillion holds per-million-token USD prices for a model family.
type pricePerMillion struct {
	input  float64
	output float64
}

// pricingTable is immutable static data (§5 Shared resources). Prices are
// USD per million tokens. This is necessarily a point-in-time snapshot;
// unknown models fall back through modelAliases and finally return nil,
// never zero, per §9's resolution of the "unknown pricing" ambiguity.
var pricingTable = map[string]pricePerMillion{
	"claude-opus-4":        {input: 15, output: 75},
	"claude-sonnet-4":      {input: 3, output: 15},
	"claude-haiku-4":       {input: 0.8, output: 4},
	"claude-3-5-sonnet":    {input: 3, output: 15},
	"claude-3-5-haiku":     {input: 0.8, output: 4},
	"claude-3-opus":        {input: 15, output: 75},
	"gpt-4o":               {input: 2.5, output: 10},
	"gpt-4o-mini":          {input: 0.15, output: 0.6},
	"gpt-4-turbo":          {input: 10, output: 30},
	"gpt-4.1":              {input: 2, output: 8},
	"gpt-4.1-mini":         {input: 0.4, output: 1.6},
	"gpt-4.1-nano":         {input: 0.1, output: 0.4},
	"o3":                   {input: 2, output: 8},
	"o4-mini":              {input: 1.1, output: 4.4},
}

// modelAliases maps dated or otherwise decorated model identifiers (e.g.
// "claude-sonnet-4-20250514" or "gpt-4o-2024-08-06") to the pricingTable key
// that prices them. Aliases are looked up by exact match against the
// identifier with any trailing "-YYYYMMDD" date stripped.
var modelAliases = map[string]string{
	"claude-sonnet-4-5":   "claude-sonnet-4",
	"claude-3-5-sonnet-2": "claude-3-5-sonnet",
}

// EstimateCost is a pure function from (model, input tokens, output tokens)
// to a USD amount. Unknown models return nil, which callers must render as
// "n/a" and never sum as though it were zero (§9).
func EstimateCost(modelID string, inputTokens, outputTokens int) *float64 {
	price, ok := lookupPrice(modelID)
	if !ok {
		return nil
	}
	usd := float64(inputTokens)/1_000_000*price.input + float64(outputTokens)/1_000_000*price.output
	return &usd
}

func lookupPrice(modelID string) (pricePerMillion, bool) {
	normalized := stripDateSuffix(modelID)
	if price, ok := pricingTable[normalized]; ok {
		return price, true
	}
	if alias, ok := modelAliases[normalized]; ok {
		if price, ok := pricingTable[alias]; ok {
			return price, true
		}
	}
	// Fall back to longest matching prefix so "gpt-4o-mini-2024-07-18"
	// resolves to "gpt-4o-mini" even without an explicit alias entry.
	var best string
	for key := range pricingTable {
		if strings.HasPrefix(normalized, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return pricePerMillion{}, false
	}
	return pricingTable[best], true
}

// stripDateSuffix removes a trailing "-YYYYMMDD" segment, if present, so
// dated model snapshots match their undated pricing-table entry.
func stripDateSuffix(modelID string) string {
	idx := strings.LastIndex(modelID, "-")
	if idx < 0 || len(modelID)-idx-1 != 8 {
		return modelID
	}
	suffix := modelID[idx+1:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return modelID
		}
	}
	return modelID[:idx]
}
