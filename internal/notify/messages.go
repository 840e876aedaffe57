package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vantagegraph/vantage/internal/domain"
)

// Event types emitted by the vantage services.
const (
	EventArbDetected      = "arb_detected"
	EventScenarioComplete = "scenario_complete"
)

// ArbitrageMessage renders one emitted cross-venue alert.
func ArbitrageMessage(a domain.ArbitrageAlert) Message {
	title := "Arbitrage detected"
	if a.Status == domain.AlertStatusSimulated {
		title = "Arbitrage detected (simulated pricing)"
	}
	return Message{
		Event: EventArbDetected,
		Title: title,
		Body:  a.MarketPair,
		Fields: []Field{
			{Name: a.MarketKeyA, Value: fmt.Sprintf("%.1f%%", float64(a.ProbabilityA.Pct()))},
			{Name: a.MarketKeyB, Value: fmt.Sprintf("%.1f%%", float64(a.ProbabilityB.Pct()))},
			{Name: "Spread", Value: fmt.Sprintf("%.2f pp", a.SpreadPct)},
		},
	}
}

// ScenarioMessage announces one completed scenario analysis.
func ScenarioMessage(query, triggerMarket, direction string, affected []string) Message {
	fields := []Field{
		{Name: "Trigger", Value: strings.TrimSpace(triggerMarket + " " + direction)},
		{Name: "Affected markets", Value: strconv.Itoa(len(affected))},
	}
	if len(affected) > 0 {
		fields = append(fields, Field{Name: "Top impact", Value: affected[0]})
	}
	return Message{
		Event:  EventScenarioComplete,
		Title:  "Scenario analysis complete",
		Body:   query,
		Fields: fields,
	}
}
