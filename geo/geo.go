// Package geo scores guesses by great-circle distance.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for haversine distances.
const EarthRadiusKm = 6371.0

// DistanceKm returns the haversine distance between two WGS84 points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Pow(math.Sin(dLon/2), 2)

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// Meters converts kilometres to whole meters, truncating.
func Meters(km float64) int {
	return int(km * 1000)
}

// DistanceMeters is DistanceKm reported as truncated integer meters.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) int {
	return Meters(DistanceKm(lat1, lon1, lat2, lon2))
}

// ValidCoordinate reports whether lat/lon fall inside the WGS84 ranges.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
