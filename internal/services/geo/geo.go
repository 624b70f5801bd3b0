package geo

import "math"

const earthRadiusKm = 6371

// Distance returns the great-circle distance between two points in
// kilometers (haversine).
func Distance(startLat, startLng, endLat, endLng float64) float64 {
	dLat := toRadians(endLat - startLat)
	dLng := toRadians(endLng - startLng)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(startLat))*math.Cos(toRadians(endLat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
