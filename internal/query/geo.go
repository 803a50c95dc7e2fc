package query

import "math"

// earthRadiusKm is the mean Earth radius used for all distance maths.
const earthRadiusKm = 6371.0

// decimicro is the number of stored units per degree.
const decimicro = 1e7

// kmToDegrees converts a distance to the span of latitude (and, as an
// approximation, longitude) it covers.
func kmToDegrees(km float64) float64 {
	return km / earthRadiusKm * 180 / math.Pi
}

// haversineKm returns the great-circle distance between two points in degrees.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dlat := rad(lat2 - lat1)
	dlon := rad(lon2 - lon1)
	a := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Pow(math.Sin(dlon/2), 2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func toDecimicro(deg float64) int64 {
	return int64(deg * decimicro)
}

func fromDecimicro(v int64) float64 {
	return float64(v) / decimicro
}
