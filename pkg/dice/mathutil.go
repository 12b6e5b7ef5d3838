package dice

import "math"

// Tolerance is the absolute error accepted when comparing probability masses.
const Tolerance = 0.0001

// ApproxEqual reports whether a and b are within Tolerance of each other.
func ApproxEqual(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance
}

// Sum adds up values.
func Sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

// NormalizeSum rescales values in place so they add up to target.
// A non-positive target zeroes the slice; a slice with no mass is filled evenly.
func NormalizeSum(values []float64, target float64) {
	if len(values) == 0 {
		return
	}
	if target <= 0 {
		for i := range values {
			values[i] = 0
		}
		return
	}
	sum := Sum(values)
	if sum <= 0 {
		even := target / float64(len(values))
		for i := range values {
			values[i] = even
		}
		return
	}
	ratio := target / sum
	for i := range values {
		values[i] *= ratio
	}
}

// NextPowerOfTwo returns the smallest power of two >= v (1 for v <= 1).
func NextPowerOfTwo(v int) int {
	n := 1
	for n < v {
		n <<= 1
	}
	return n
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float64) float64 {
	switch {
	case v >= 1:
		return 1
	case v <= 0:
		return 0
	}
	return v
}

// Clamp01Exclusive limits v to the open interval (0, 1).
func Clamp01Exclusive(v float64) float64 {
	switch {
	case v >= 1:
		return math.Nextafter(1, 0)
	case v <= 0:
		return math.Nextafter(0, 1)
	}
	return v
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
