package model

import "math"

const earthRadiusKm = 6371

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Great circle distance in km between two points.
func HaversineDistance(aLat, aLon, bLat, bLon float64) float64 {
	dLat := toRadians(bLat - aLat)
	dLon := toRadians(bLon - aLon)

	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRadians(aLat))*math.Cos(toRadians(bLat))*math.Pow(math.Sin(dLon/2), 2)

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Distance in km from the train to a point. Only meaningful when
// HasLocation() is true.
func (p TrainPosition) DistanceTo(lat, lon float64) float64 {
	if !p.HasLocation() {
		return math.Inf(1)
	}
	return HaversineDistance(*p.Latitude, *p.Longitude, lat, lon)
}
