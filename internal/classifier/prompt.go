package classifier

import (
	"fmt"
	"strings"

	"github.com/vantagegraph/vantage/internal/domain"
	"github.com/vantagegraph/vantage/internal/pricing"
)

// systemPrompt fixes the analyst's reasoning frame. The three numbered
// dimensions must be considered before the final classification is produced.
const systemPrompt = `You are a prediction-market relationship analyst. Given two markets, reason through three dimensions before classifying:

1. Temporal hierarchy: which market resolves first, and can the earlier one serve as a leading indicator for the later one?
2. Conditionality: does A resolving YES materially raise or lower the probability that B resolves YES, and what is the sign of that effect?
3. Synthetic arbitrage: is this pair part of a triangle constraint where a third market must close the probability sum?

Then respond with exactly one JSON object and nothing else:
{
  "relationship_type": "equivalent" | "implied" | "mutually_exclusive" | "correlated",
  "confidence_score": <fraction between 0.0 and 1.0>,
  "logic_justification": "<one or two sentences>",
  "impact_direction": "positive" | "negative" | "neutral",
  "correlation_strength": "low" | "medium" | "high" | "extreme",
  "logical_layer": "financial" | "political" | "statistical" | "direct",
  "vantage_insight": "<one sentence a trader could act on>"
}

Use "equivalent" only when the two markets settle on the same real-world outcome.`

// pairPrompt renders one market pair for classification.
func pairPrompt(a, b domain.Market, pa, pb *pricing.Price) string {
	var sb strings.Builder
	sb.WriteString("Classify the relationship between these two markets.\n\n")
	writeMarket(&sb, "Market A", a, pa)
	sb.WriteString("\n")
	writeMarket(&sb, "Market B", b, pb)
	return sb.String()
}

func writeMarket(sb *strings.Builder, label string, m domain.Market, p *pricing.Price) {
	fmt.Fprintf(sb, "%s:\n", label)
	fmt.Fprintf(sb, "  key: %s\n", m.MarketKey)
	fmt.Fprintf(sb, "  event: %s\n", m.EventName)
	fmt.Fprintf(sb, "  proposition: %s\n", m.PropositionText)
	if p != nil {
		fmt.Fprintf(sb, "  current probability: %.1f%%\n", float64(p.Prob.Pct()))
	} else {
		sb.WriteString("  current probability: unknown\n")
	}
}
