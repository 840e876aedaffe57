package domain

import "time"

// AlertStatus distinguishes live alerts from ones priced off demo data.
type AlertStatus string

const (
	AlertStatusAlert     AlertStatus = "alert"
	AlertStatusSimulated AlertStatus = "simulated"
)

// ArbitrageAlert records one cross-venue price divergence detected on a pair
// of markets classified as the same real-world outcome.
type ArbitrageAlert struct {
	ID                 string
	Timestamp          time.Time
	MarketPair         string
	MarketKeyA         string
	MarketKeyB         string
	ProbabilityA       Prob
	ProbabilityB       Prob
	SpreadPct          float64
	PotentialProfitPct float64
	Status             AlertStatus
}
