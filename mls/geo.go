package mls

import "math"

const earthRadiusMiles = 3958.8

// Haversine returns the great-circle distance in miles between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BoundingBoxAround approximates a radius in miles as a lat/lon box:
// one degree of latitude spans ~69 miles, one degree of longitude ~54.6 at
// mid-US latitudes. Candidates inside the box still get an exact haversine
// distance before ranking.
func BoundingBoxAround(lat, lon, radiusMiles float64) BoundingBox {
	dLat := radiusMiles / 69.0
	dLon := radiusMiles / 54.6
	return BoundingBox{
		MinLat: lat - dLat,
		MaxLat: lat + dLat,
		MinLon: lon - dLon,
		MaxLon: lon + dLon,
	}
}
