package geo

import (
	"fmt"
	"math"
	"strconv"
)

const earthRadiusMeters = 6371000

// Coordinate is a WGS 84 latitude/longitude pair in degrees
type Coordinate struct {
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether the coordinate lies within the latitude/longitude ranges
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Latitude, c.Longitude)
}

// Haversine calculates the distance between two points in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaPhi := (lat2 - lat1) * math.Pi / 180
	deltaLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Distance returns the great-circle distance between a and b in meters
func Distance(a, b Coordinate) float64 {
	return Haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// FormatDistance renders a distance with two significant digits.
// Distances over a kilometer are shown in km, shorter ones in meters.
func FormatDistance(meters float64) string {
	if math.IsNaN(meters) || meters < 0 {
		return "--"
	}
	if meters > 1000 {
		return formatSignificant(meters/1000) + " km"
	}
	return formatSignificant(meters) + " m"
}

func formatSignificant(v float64) string {
	if v == 0 {
		return "0"
	}
	exp := decimalExponent(v)
	scale := math.Pow(10, exp-1)
	rounded := math.Round(v/scale) * scale

	// rounding can carry into the next power of ten (9.96 -> 10)
	exp = decimalExponent(rounded)
	decimals := int(1 - exp)
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(rounded, 'f', decimals, 64)
}

// decimalExponent returns floor(log10(v)) for v > 0, corrected for
// floating point error at exact powers of ten.
func decimalExponent(v float64) float64 {
	exp := math.Floor(math.Log10(v))
	if math.Pow(10, exp+1) <= v {
		exp++
	} else if math.Pow(10, exp) > v {
		exp--
	}
	return exp
}
