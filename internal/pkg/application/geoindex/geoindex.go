package geoindex

import (
	"math"

	"github.com/diwise/water-network/pkg/types"
)

// ConnectionThreshold is the proximity radius, in coordinate degrees, within
// which a drawn point links to a device or gate wall (roughly 50 m).
const ConnectionThreshold float64 = 0.0005

// Located is anything with an identity and a position on the map.
type Located interface {
	EntityID() string
	Position() types.Location
}

// Distance is the planar euclidean distance between two positions measured
// in degrees. It is not geodesic and its metric length varies with latitude.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return math.Sqrt(math.Pow(lat2-lat1, 2) + math.Pow(lon2-lon1, 2))
}

// Within reports whether p is strictly closer than threshold to loc.
func Within(loc types.Location, p types.Point, threshold float64) bool {
	return Distance(loc.Latitude, loc.Longitude, p.Lat(), p.Lon()) < threshold
}

// Nearby returns the ids of the entities within threshold of p, in input order.
func Nearby[T Located](entities []T, p types.Point, threshold float64) []string {
	ids := []string{}
	for _, e := range entities {
		if Within(e.Position(), p, threshold) {
			ids = append(ids, e.EntityID())
		}
	}
	return ids
}
