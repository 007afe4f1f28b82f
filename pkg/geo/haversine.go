package geo

import "math"

const earthRadiusMeters = 6_371_000.0

// Haversine returns the great-circle distance in meters between two points.
// The result is symmetric in its arguments and exactly 0 for identical points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push a just past 1 for antipodal points.
	a = math.Min(a, 1)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Distance is Haversine over two Points.
func Distance(a, b Point) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// degToMeters is the length of one degree of latitude.
const degToMeters = math.Pi / 180 * earthRadiusMeters

// DegreesForMeters returns the half-size, in degrees, of a box around lat that
// contains every point within meters of its center.
func DegreesForMeters(lat, meters float64) (dLat, dLng float64) {
	dLat = meters / degToMeters
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 1e-6 {
		return dLat, 180
	}
	dLng = dLat / cosLat
	if dLng > 180 {
		dLng = 180
	}
	return dLat, dLng
}
