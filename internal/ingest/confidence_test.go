package ingest

import (
	"testing"

	"github.com/vantagegraph/vantage/internal/domain"
)

func TestScoreConfidence(t *testing.T) {
	spread := func(v float64) *float64 { return &v }

	tests := []struct {
		name      string
		depth     float64
		spreadPct *float64
		want      int
		wantFlag  string
	}{
		{"no depth no spread", 0, nil, 20, domain.ConfidenceFlagLow},
		{"no depth tight spread", 0, spread(0), 40, domain.ConfidenceFlagLow},
		{"deep tight book", 1000, spread(0), 70, ""},
		{"deep book neutral spread", 10000, nil, 60, ""},
		{"modest depth", 128, spread(3.125), 55, ""},
		{"wide spread kills component", 500, spread(25), 27, domain.ConfidenceFlagLow},
		{"sub-dollar depth floors at zero", 0.5, nil, 20, domain.ConfidenceFlagLow},
		{"huge depth caps at sixty", 1e9, spread(0), 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, flag := scoreConfidence(tt.depth, tt.spreadPct)
			if got != tt.want {
				t.Errorf("score = %d, want %d", got, tt.want)
			}
			if flag != tt.wantFlag {
				t.Errorf("flag = %q, want %q", flag, tt.wantFlag)
			}
			if (got < 50) != (flag == domain.ConfidenceFlagLow) {
				t.Errorf("flag %q inconsistent with score %d", flag, got)
			}
		})
	}
}
