package geo

import (
	"math"
	"strconv"
)

// EarthRadiusKm is the mean radius used by Distance.
const EarthRadiusKm = 6372.8

// Location is a point on Earth in decimal degrees. Coordinates are not
// range checked; whatever the input carries is used as-is.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func NewLocation(lat, lon float64) Location {
	return Location{Lat: lat, Lon: lon}
}

// DistanceTo returns the great-circle distance to o in kilometers.
func (l Location) DistanceTo(o Location) float64 {
	return Distance(l, o)
}

func (l Location) String() string {
	return FormatCoord(l.Lat) + "|" + FormatCoord(l.Lon)
}

// Distance is the haversine distance between a and b in kilometers.
func Distance(a, b Location) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Asin(math.Sqrt(h))
	return EarthRadiusKm * c
}

// FormatCoord renders a coordinate with the shortest representation that
// round-trips.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
