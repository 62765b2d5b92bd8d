package geo

import (
	"math"
	"testing"
)

func TestDistanceSamePointIsZero(t *testing.T) {
	p := Coordinate{Latitude: 60.4518, Longitude: 22.2666}
	if d := Distance(p, p); d != 0 {
		t.Errorf("Distance(p, p) = %f, expected 0", d)
	}
}

func TestDistanceKnownPairs(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Coordinate
		expected float64
		within   float64
	}{
		// one degree of latitude on a 6371 km sphere
		{"one degree latitude", Coordinate{60, 22}, Coordinate{61, 22}, 111194.93, 1},
		{"turku market square to cathedral", Coordinate{60.4515, 22.2673}, Coordinate{60.4524, 22.2781}, 601, 5},
		{"symmetric", Coordinate{60.46, 22.26}, Coordinate{60.45, 22.25}, 1240, 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Distance(tc.a, tc.b)
			if math.Abs(got-tc.expected) > tc.within {
				t.Errorf("Distance = %f, expected %f ± %f", got, tc.expected, tc.within)
			}
			if back := Distance(tc.b, tc.a); math.Abs(back-got) > 1e-6 {
				t.Errorf("Distance not symmetric: %f vs %f", got, back)
			}
		})
	}
}

func TestCoordinateValid(t *testing.T) {
	tests := []struct {
		c     Coordinate
		valid bool
	}{
		{Coordinate{60.45, 22.25}, true},
		{Coordinate{-90, -180}, true},
		{Coordinate{90.1, 0}, false},
		{Coordinate{0, 180.5}, false},
		{Coordinate{math.NaN(), 0}, false},
	}

	for _, tc := range tests {
		if got := tc.c.Valid(); got != tc.valid {
			t.Errorf("%v.Valid() = %v, expected %v", tc.c, got, tc.valid)
		}
	}
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		meters   float64
		expected string
	}{
		{0, "0 m"},
		{5, "5.0 m"},
		{12.4, "12 m"},
		{456, "460 m"},
		{999, "1000 m"},
		{1000, "1000 m"},
		{1234, "1.2 km"},
		{9960, "10 km"},
		{15500, "16 km"},
		{-1, "--"},
	}

	for _, tc := range tests {
		if got := FormatDistance(tc.meters); got != tc.expected {
			t.Errorf("FormatDistance(%v) = %q, expected %q", tc.meters, got, tc.expected)
		}
	}
}
