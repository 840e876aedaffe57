package scenario

import (
	"encoding/json"
	"fmt"

	"github.com/vantagegraph/vantage/internal/domain"
	"github.com/vantagegraph/vantage/internal/pricing"
)

// shockSystemPrompt forces the parse step to commit to one catalog market.
const shockSystemPrompt = `You are a prediction-market scenario analyst. The user describes a hypothetical shock. Identify the single catalog market the shock hits most directly and respond with exactly one JSON object and nothing else:
{
  "target_market": "<market_key from the catalog>",
  "assumed_change": "<what the shock assumes, 15 words or fewer>",
  "direction": "UP" | "DOWN"
}

Rules:
- target_market must always name a market_key from the catalog. Never answer "no match"; pick the closest market.
- For geopolitical shocks with no directly listed market, pick the most economically downstream catalog market.
- direction is the movement the shock implies for the target market's YES probability.`

// narrativeSystemPrompt frames the second analyst call over the propagated
// impact set.
const narrativeSystemPrompt = `You are a senior prediction-market analyst writing a causal impact briefing. You receive a scenario context describing a shocked market and the impacts propagated through the relationship graph. Respond with exactly one JSON object and nothing else:
{
  "executive_summary": "<two or three sentences>",
  "market_impacts": [
    {"market_key": "<key>", "order": <1 or 2>, "direction": "UP" | "DOWN", "confidence_pct": <0-100>, "statement": "<one sentence>"}
  ]
}

Each statement must follow the template "<order label>: If <origin event> moves <UP or DOWN>, then <market event> is <confidence>% likely to move <direction> because of their <relationship_type> link." Ground every statement in the justification and insight fields from the context; never invent relationships that are not listed.`

type catalogEntry struct {
	MarketKey          string   `json:"market_key"`
	EventName          string   `json:"event_name"`
	Proposition        string   `json:"proposition"`
	CurrentProbability *float64 `json:"current_probability_pct,omitempty"`
}

// shockUserPrompt renders the user query with the priced catalog so the model
// can only answer in catalog terms.
func shockUserPrompt(query string, markets []domain.Market, snap *pricing.Snapshot) string {
	entries := make([]catalogEntry, 0, len(markets))
	for _, m := range markets {
		e := catalogEntry{
			MarketKey:   m.MarketKey,
			EventName:   m.EventName,
			Proposition: m.PropositionText,
		}
		if p, ok := snap.Resolve(m); ok {
			pct := float64(p.Prob.Pct())
			e.CurrentProbability = &pct
		}
		entries = append(entries, e)
	}
	catalog, _ := json.MarshalIndent(entries, "", "  ")
	return fmt.Sprintf("Shock: %s\n\nCatalog:\n%s", query, catalog)
}

type ragScenario struct {
	TargetMarket       string   `json:"target_market"`
	EventName          string   `json:"event_name"`
	Proposition        string   `json:"proposition"`
	AssumedChange      string   `json:"assumed_change"`
	Direction          string   `json:"direction"`
	CurrentProbability *float64 `json:"current_probability_pct,omitempty"`
}

type ragImpact struct {
	MarketKey           string   `json:"market_key"`
	EventName           string   `json:"event_name"`
	Proposition         string   `json:"proposition"`
	OrderLabel          string   `json:"order_label"`
	Order               int      `json:"order"`
	RelationshipType    string   `json:"relationship_type"`
	Direction           string   `json:"direction"`
	ConfidencePct       float64  `json:"confidence_pct"`
	CurrentProbability  *float64 `json:"current_probability_pct,omitempty"`
	CausalPath          []string `json:"causal_path"`
	Justification       string   `json:"justification,omitempty"`
	Insight             string   `json:"insight,omitempty"`
	CorrelationStrength string   `json:"correlation_strength,omitempty"`
	LogicalLayer        string   `json:"logical_layer,omitempty"`
}

type ragContext struct {
	Scenario ragScenario `json:"scenario"`
	Impacts  []ragImpact `json:"impacted_markets"`
}

func narrativeUserPrompt(ctx ragContext) string {
	b, _ := json.MarshalIndent(ctx, "", "  ")
	return "Write the briefing for this scenario context:\n" + string(b)
}

// orderLabel names a propagation order for the narrative.
func orderLabel(order int) string {
	switch order {
	case 1:
		return "First-order"
	case 2:
		return "Second-order"
	default:
		return fmt.Sprintf("Order-%d", order)
	}
}
