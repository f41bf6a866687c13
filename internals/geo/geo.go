// Package geo provides the great-circle and interpolation math used by the
// delivery tracking engine. All functions are pure.
package geo

import (
	"math"

	"github.com/feastline/livetrack/internals/domain"
)

const earthRadiusKm = 6371.0

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// Haversine returns the great-circle distance between two points in kilometers.
func Haversine(a, b domain.LatLng) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// Bearing returns the initial forward azimuth from a to b in degrees [0, 360).
func Bearing(a, b domain.LatLng) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLng := toRad(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Interpolate returns the point a fraction t of the way from a to b along a
// straight line in coordinate space. t is expected in [0, 1].
func Interpolate(a, b domain.LatLng, t float64) domain.LatLng {
	return domain.LatLng{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// wobbleAmplitude is the lateral offset, in degrees, applied to the
// interpolated position so the simulated path does not render as a
// perfectly straight line.
const wobbleAmplitude = 0.02

// Wobble offsets p by a symmetric sinusoid over the route progress.
// The offset is zero at both endpoints.
func Wobble(p domain.LatLng, progress float64) domain.LatLng {
	off := math.Sin(progress*math.Pi) * wobbleAmplitude
	return domain.LatLng{Lat: p.Lat + off, Lng: p.Lng + off}
}
