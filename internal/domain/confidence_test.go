package domain

import "testing"

func TestConfidenceFromRaw(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want Confidence
	}{
		{"fraction passes through", 0.85, 0.85},
		{"zero", 0, 0},
		{"one", 1, 1},
		{"negative clamps to zero", -0.2, 0},
		{"percent rescales", 85, 0.85},
		{"hundred becomes one", 100, 1},
		{"over hundred clamps", 140, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConfidenceFromRaw(tt.in); got != tt.want {
				t.Errorf("ConfidenceFromRaw(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfidencePct(t *testing.T) {
	if got := Confidence(0.85).Pct(); got < 84.999 || got > 85.001 {
		t.Errorf("Pct = %v, want 85", got)
	}
	if got := Confidence(0.85).Frac(); got != 0.85 {
		t.Errorf("Frac = %v, want 0.85", got)
	}
}
