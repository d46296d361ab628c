package geo

import (
	"math"
	"sync"

	"github.com/example/rideflow/internal/models"
)

const earthRadiusKm = 6371.0

// DistanceKm is the haversine great-circle distance between two points in
// kilometers. Pure and total: any finite pair is accepted, callers validate
// ranges.
func DistanceKm(a, b models.Coord) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Tracker keeps each driver's last reported position. Matching treats it as a
// read input only; availability lives in the driver registry.
type Tracker interface {
	Record(hb models.Heartbeat)
	Last(driverID string) (models.Heartbeat, bool)
}

type MemoryTracker struct {
	mu   sync.RWMutex
	last map[string]models.Heartbeat
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{last: make(map[string]models.Heartbeat)}
}

func (t *MemoryTracker) Record(hb models.Heartbeat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[hb.DriverID] = hb
}

func (t *MemoryTracker) Last(driverID string) (models.Heartbeat, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hb, ok := t.last[driverID]
	return hb, ok
}
