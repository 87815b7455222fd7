package indicator

import (
	"math"
	"testing"
)

func TestRSIInsufficientData(t *testing.T) {
	closes := []float64{1, 2, 3}
	if _, ok := RSI(closes, 14); ok {
		t.Fatalf("expected no rsi for %d closes with period 14", len(closes))
	}
	if _, ok := RSI(nil, 14); ok {
		t.Fatalf("expected no rsi for empty input")
	}
}

func TestRSIMonotonicIncreasing(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi, ok := RSI(closes, 14)
	if !ok {
		t.Fatalf("expected rsi to be defined")
	}
	if rsi < 99.9 {
		t.Fatalf("expected rsi near 100 for rising series, got %f", rsi)
	}
}

func TestRSIMonotonicDecreasing(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	rsi, ok := RSI(closes, 14)
	if !ok {
		t.Fatalf("expected rsi to be defined")
	}
	if rsi > 0.1 {
		t.Fatalf("expected rsi near 0 for falling series, got %f", rsi)
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	// period 2 over [1,2,3,2]: seed avgGain=1 avgLoss=0, then the -1 delta
	// folds in as avgGain=0.5 avgLoss=0.5, so RS=1 and RSI=50.
	rsi, ok := RSI([]float64{1, 2, 3, 2}, 2)
	if !ok {
		t.Fatalf("expected rsi to be defined")
	}
	if math.Abs(rsi-50) > 1e-9 {
		t.Fatalf("expected rsi 50, got %f", rsi)
	}

	// period 2 over [2,1,1,2]: seed avgGain=0 avgLoss=0.5, then +1 gives
	// avgGain=0.5 avgLoss=0.25, RS=2, RSI=66.66...
	rsi, ok = RSI([]float64{2, 1, 1, 2}, 2)
	if !ok {
		t.Fatalf("expected rsi to be defined")
	}
	if math.Abs(rsi-100.0/1.5) > 1e-9 {
		t.Fatalf("expected rsi %f, got %f", 100.0/1.5, rsi)
	}
}

func TestRSIBounds(t *testing.T) {
	closes := []float64{10, 11, 9, 12, 8, 13, 7, 14, 6, 15, 5, 16, 4, 17, 3, 18, 2, 19}
	rsi, ok := RSI(closes, 14)
	if !ok {
		t.Fatalf("expected rsi to be defined")
	}
	if rsi < 0 || rsi > 100 {
		t.Fatalf("rsi out of bounds: %f", rsi)
	}
}

func TestRSIDeterministic(t *testing.T) {
	closes := []float64{5, 6, 7, 6, 8, 7, 9, 8, 10, 9, 11, 10, 12, 11, 13, 12}
	first, ok := RSI(closes, 14)
	if !ok {
		t.Fatalf("expected rsi to be defined")
	}
	second, _ := RSI(closes, 14)
	if first != second {
		t.Fatalf("expected deterministic rsi, got %f and %f", first, second)
	}
}
