package tts

import "testing"

func TestClampRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want float64
	}{
		{0, DefaultRate},
		{-1, DefaultRate},
		{0.1, MinRate},
		{0.5, 0.5},
		{1.25, 1.25},
		{2, 2},
		{9, MaxRate},
	}
	for _, tt := range tests {
		if got := ClampRate(tt.in); got != tt.want {
			t.Errorf("ClampRate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
