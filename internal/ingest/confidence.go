package ingest

import (
	"math"

	"github.com/vantagegraph/vantage/internal/domain"
)

// scoreConfidence rates a quote's microstructure quality on a 0-100 scale.
// Depth contributes up to 60 points on a log10 scale; the bid/ask spread
// contributes up to 40, with 20 neutral points when no spread is known.
func scoreConfidence(depthUSD float64, spreadPct *float64) (score int, flag string) {
	var depthComponent float64
	if depthUSD > 0 {
		depthComponent = math.Min(math.Log10(depthUSD)*10, 60)
		if depthComponent < 0 {
			depthComponent = 0
		}
	}

	spreadComponent := 20.0
	if spreadPct != nil {
		spreadComponent = math.Max(0, 40-*spreadPct*2)
	}

	total := math.Round(depthComponent + spreadComponent)
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	score = int(total)
	if score < 50 {
		flag = domain.ConfidenceFlagLow
	}
	return score, flag
}
