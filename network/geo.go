package network

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const earthRadiusM = orb.EarthRadius

// Distance returns the great-circle distance in meters between two lon/lat points.
func Distance(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// projection maps lon/lat onto a local equirectangular plane in meters, centred on the
// network's latitude. Distances reported to callers use haversine.
type projection struct {
	cosLat0 float64
}

func newProjection(centerLat float64) projection {
	c := math.Cos(centerLat * math.Pi / 180)
	if c < 1e-6 {
		c = 1e-6
	}
	return projection{cosLat0: c}
}

func (p projection) toPlane(pt orb.Point) orb.Point {
	return orb.Point{
		earthRadiusM * pt.Lon() * math.Pi / 180 * p.cosLat0,
		earthRadiusM * pt.Lat() * math.Pi / 180,
	}
}

func validLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
