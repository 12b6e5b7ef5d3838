package dice

import (
	"math"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct{ in, want int }{
		{-3, 1}, {0, 1}, {1, 1}, {2, 2}, {3, 4}, {64, 64}, {65, 128}, {1001, 1024},
	}
	for _, tt := range tests {
		if got := NextPowerOfTwo(tt.in); got != tt.want {
			t.Errorf("NextPowerOfTwo(%d): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func TestNormalizeSum(t *testing.T) {
	xs := []float64{1, 3}
	NormalizeSum(xs, 2)
	assertClose(t, "first", xs[0], 0.5, 1e-15)
	assertClose(t, "second", xs[1], 1.5, 1e-15)

	empty := []float64{0, 0, 0, 0}
	NormalizeSum(empty, 1)
	for _, v := range empty {
		assertClose(t, "even split", v, 0.25, 1e-15)
	}

	zeroed := []float64{0.2, 0.8}
	NormalizeSum(zeroed, 0)
	if zeroed[0] != 0 || zeroed[1] != 0 {
		t.Errorf("expected zeroed slice, got %v", zeroed)
	}

	NormalizeSum(nil, 1)
}

func TestClamp(t *testing.T) {
	if Clamp01(-0.5) != 0 || Clamp01(1.5) != 1 || Clamp01(0.25) != 0.25 {
		t.Error("unexpected Clamp01 result")
	}
	if v := Clamp01Exclusive(0); v <= 0 || v >= 1e-300 {
		t.Errorf("expected the smallest positive float, got %g", v)
	}
	if v := Clamp01Exclusive(1); v >= 1 || v < 1-1e-15 {
		t.Errorf("expected just below 1, got %g", v)
	}
	if v := Clamp01Exclusive(math.Inf(1)); v >= 1 {
		t.Errorf("expected below 1, got %g", v)
	}
}

func TestApproxEqualAndArgmax(t *testing.T) {
	if !ApproxEqual(1, 1.00005) || ApproxEqual(1, 1.001) {
		t.Error("unexpected ApproxEqual result")
	}
	if got := argmax([]float64{0.1, 0.4, 0.4, 0.1}); got != 1 {
		t.Errorf("expected first maximum at 1, got %d", got)
	}
}
