package geo

import (
	"math"
	"testing"
	"time"

	"github.com/example/rideflow/internal/models"
)

func TestDistanceZero(t *testing.T) {
	p := models.Coord{Lat: 12.97, Lon: 77.59}
	if d := DistanceKm(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceKnownValues(t *testing.T) {
	// one degree of longitude on the equator is ~111.19 km
	a := models.Coord{Lat: 0, Lon: 0}
	b := models.Coord{Lat: 0, Lon: 1}
	if d := DistanceKm(a, b); math.Abs(d-111.19) > 0.05 {
		t.Fatalf("equator degree = %f km, want ~111.19", d)
	}

	// a short cross-town route in Bengaluru
	p := models.Coord{Lat: 12.97, Lon: 77.59}
	q := models.Coord{Lat: 12.93, Lon: 77.62}
	if d := DistanceKm(p, q); d < 5.3 || d > 5.6 {
		t.Fatalf("bengaluru route = %f km, outside expected band", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := models.Coord{Lat: 12.97, Lon: 77.59}
	b := models.Coord{Lat: 12.93, Lon: 77.62}
	if DistanceKm(a, b) != DistanceKm(b, a) {
		t.Fatal("distance must be symmetric")
	}
}

func TestMemoryTracker(t *testing.T) {
	tr := NewMemoryTracker()
	if _, ok := tr.Last("d1"); ok {
		t.Fatal("unknown driver should have no position")
	}
	hb := models.Heartbeat{DriverID: "d1", Loc: models.Coord{Lat: 1, Lon: 2}, Recorded: time.Now()}
	tr.Record(hb)
	got, ok := tr.Last("d1")
	if !ok || got.Loc != hb.Loc {
		t.Fatalf("Last = %+v, %v", got, ok)
	}
}
