package geo

import (
	"math"
	"math/rand"
	"testing"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name             string
		lat1, lon1       float64
		lat2, lon2       float64
		wantMeters       float64
		tolerancePercent float64
	}{
		{
			name: "Butuan city center to Libertad",
			lat1: 8.9475, lon1: 125.5406,
			lat2: 8.9440, lon2: 125.5020,
			wantMeters:       4_260, // ~4.3 km, mostly east-west
			tolerancePercent: 2,
		},
		{
			name: "Same point",
			lat1: 8.95, lon1: 125.54,
			lat2: 8.95, lon2: 125.54,
			wantMeters:       0,
			tolerancePercent: 0,
		},
		{
			name: "London to Paris",
			lat1: 51.5074, lon1: -0.1278,
			lat2: 48.8566, lon2: 2.3522,
			wantMeters:       343_500,
			tolerancePercent: 1,
		},
		{
			name: "One millidegree of latitude",
			lat1: 8.9500, lon1: 125.5400,
			lat2: 8.9510, lon2: 125.5400,
			wantMeters:       111.19,
			tolerancePercent: 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if tt.wantMeters == 0 {
				if got != 0 {
					t.Errorf("expected 0, got %f", got)
				}
				return
			}
			diff := math.Abs(got-tt.wantMeters) / tt.wantMeters * 100
			if diff > tt.tolerancePercent {
				t.Errorf("Haversine = %f m, want ~%f m (diff %.2f%%)", got, tt.wantMeters, diff)
			}
		})
	}
}

func TestHaversineSymmetricAndNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		a := Point{Lat: rng.Float64()*180 - 90, Lng: rng.Float64()*360 - 180}
		b := Point{Lat: rng.Float64()*180 - 90, Lng: rng.Float64()*360 - 180}

		ab := Distance(a, b)
		ba := Distance(b, a)
		if ab != ba {
			t.Fatalf("Distance(%v, %v) = %v, reverse = %v", a, b, ab, ba)
		}
		if ab < 0 || math.IsNaN(ab) || math.IsInf(ab, 0) {
			t.Fatalf("Distance(%v, %v) = %v, want finite non-negative", a, b, ab)
		}
		if d := Distance(a, a); d != 0 {
			t.Fatalf("Distance(%v, itself) = %v, want 0", a, d)
		}
	}
}

func TestHaversineAntipodal(t *testing.T) {
	halfCircumference := math.Pi * earthRadiusMeters

	tests := []struct {
		name string
		a, b Point
	}{
		{"rounding case", Point{Lat: -13.5653, Lng: 67.2563}, Point{Lat: 13.5653, Lng: -112.7437}},
		{"equator", Point{Lat: 0, Lng: 0}, Point{Lat: 0, Lng: 180}},
		{"poles", Point{Lat: 90, Lng: 0}, Point{Lat: -90, Lng: 0}},
		{"butuan", Point{Lat: 8.95, Lng: 125.54}, Point{Lat: -8.95, Lng: -54.46}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.IsNaN(got) || math.IsInf(got, 0) || got < 0 {
				t.Fatalf("Distance = %v, want finite non-negative", got)
			}
			if diff := math.Abs(got - halfCircumference); diff > 1 {
				t.Errorf("Distance = %f m, want ~%f m", got, halfCircumference)
			}
		})
	}

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200_000; i++ {
		lat := rng.Float64()*180 - 90
		lng := rng.Float64()*360 - 180
		other := lng + 180
		if other > 180 {
			other -= 360
		}
		d := Haversine(lat, lng, -lat, other)
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			t.Fatalf("Haversine(%v, %v, %v, %v) = %v, want finite non-negative", lat, lng, -lat, other, d)
		}
	}
}

func TestDegreesForMeters(t *testing.T) {
	lat := 8.95
	dLat, dLng := DegreesForMeters(lat, 300)

	// The box edges must lie at or beyond the radius.
	if d := Haversine(lat, 125.54, lat+dLat, 125.54); d < 299.9 {
		t.Errorf("north edge at %f m, want >= 300", d)
	}
	if d := Haversine(lat, 125.54, lat, 125.54+dLng); d < 299.9 {
		t.Errorf("east edge at %f m, want >= 300", d)
	}
	if dLng < dLat {
		t.Errorf("dLng = %f < dLat = %f away from the equator", dLng, dLat)
	}

	_, poleLng := DegreesForMeters(90, 300)
	if poleLng != 180 {
		t.Errorf("dLng at pole = %f, want 180", poleLng)
	}
}

func TestValidateCoord(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		wantErr  error
	}{
		{"valid", 8.95, 125.54, nil},
		{"nan lat", math.NaN(), 125.54, ErrNonFinite},
		{"inf lng", 8.95, math.Inf(1), ErrNonFinite},
		{"lat too large", 90.5, 0, ErrOutOfRange},
		{"lng too small", 0, -180.1, ErrOutOfRange},
		{"corner", -90, 180, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateCoord(tt.lat, tt.lng); err != tt.wantErr {
				t.Errorf("ValidateCoord(%v, %v) = %v, want %v", tt.lat, tt.lng, err, tt.wantErr)
			}
		})
	}
}

func TestPointOrbRoundTrip(t *testing.T) {
	p := Point{Lat: 8.95, Lng: 125.54}
	o := p.Orb()
	if o[0] != 125.54 || o[1] != 8.95 {
		t.Fatalf("Orb() = %v, want [lng lat]", o)
	}
	if got := FromOrb(o); got != p {
		t.Errorf("FromOrb(Orb()) = %v, want %v", got, p)
	}
}

func BenchmarkHaversine(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Haversine(8.9475, 125.5406, 8.9440, 125.5020)
	}
}
