package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	ErrNonFinite  = errors.New("coordinates must be finite numbers")
	ErrOutOfRange = errors.New("coordinates out of range")
)

// Point is a WGS84 position in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FromOrb converts an orb.Point ([lng, lat]) into a Point.
func FromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lng: p.Lon()}
}

// Orb returns the point in orb's [lng, lat] order.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Validate reports whether p is a usable coordinate.
func (p Point) Validate() error {
	return ValidateCoord(p.Lat, p.Lng)
}

func (p Point) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.Lat, p.Lng)
}

// ValidateCoord checks that lat/lng are finite and within WGS84 range.
func ValidateCoord(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return ErrNonFinite
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return ErrOutOfRange
	}
	return nil
}
