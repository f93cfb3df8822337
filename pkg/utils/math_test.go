package utils

import (
	"math"
	"testing"
)

// floatEquals сравнивает float64 с допуском на погрешность
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		step     float64
		expected float64
	}{
		// Базовые кейсы
		{"exact match", 0.123, 0.001, 0.123},
		{"round down", 0.123456, 0.001, 0.123},
		{"round down 2", 1.999, 0.01, 1.99},
		{"whole numbers", 100.5, 1.0, 100.0},

		// Граничные случаи
		{"zero value", 0, 0.001, 0},
		{"zero step", 0.123, 0, 0.123},
		{"negative step", 0.123, -0.001, 0.123},

		// BTC примеры
		{"BTC step 0.001", 0.5, 0.001, 0.5},
		{"BTC step 0.001 round", 0.1234, 0.001, 0.123},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundToStep(tt.value, tt.step)
			if !floatEquals(result, tt.expected) {
				t.Errorf("RoundToStep(%v, %v) = %v, want %v",
					tt.value, tt.step, result, tt.expected)
			}
		})
	}
}

func TestClampMin(t *testing.T) {
	// Floor убытка: PnL не глубже -IM
	if got := ClampMin(-150.0, -100.0); got != -100.0 {
		t.Errorf("ClampMin(-150,-100) = %v, want -100", got)
	}
	// Выплата не ниже нуля
	if got := ClampMin(-5.0, 0); got != 0 {
		t.Errorf("ClampMin(-5,0) = %v, want 0", got)
	}
	if got := ClampMin(25.0, 0); got != 25.0 {
		t.Errorf("ClampMin(25,0) = %v, want 25", got)
	}
}

func TestCrossed(t *testing.T) {
	if !CrossedUp(100.0, 100.0) {
		t.Error("CrossedUp at exact level must be true")
	}
	if CrossedUp(99.99, 100.0) {
		t.Error("CrossedUp below level must be false")
	}
	if !CrossedDown(95.0, 95.0) {
		t.Error("CrossedDown at exact level must be true")
	}
	if CrossedDown(95.01, 95.0) {
		t.Error("CrossedDown above level must be false")
	}
}
