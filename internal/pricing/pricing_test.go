package pricing

import (
	"testing"

	"github.com/example/rideflow/internal/models"
)

func TestEstimatePerClass(t *testing.T) {
	cases := []struct {
		class models.VehicleClass
		want  float64
	}{
		{models.ClassBike, 73.2},     // 30 + 5.4*8
		{models.ClassAuto, 94.8},     // 30 + 5.4*12
		{models.ClassCar, 127.2},     // 30 + 5.4*18
		{models.ClassPremier, 165.0}, // 30 + 5.4*25
	}
	for _, c := range cases {
		if got := Estimate(5.4, c.class); got != c.want {
			t.Errorf("Estimate(5.4, %s) = %v, want %v", c.class, got, c.want)
		}
	}
}

func TestUnknownClassFallsBackToCar(t *testing.T) {
	if got, want := Estimate(5.4, "RICKSHAW"), Estimate(5.4, models.ClassCar); got != want {
		t.Fatalf("unknown class fare = %v, want car fare %v", got, want)
	}
	if got, want := Estimate(5.4, ""), Estimate(5.4, models.ClassCar); got != want {
		t.Fatalf("empty class fare = %v, want car fare %v", got, want)
	}
}

func TestNormalizeAcceptsLowercase(t *testing.T) {
	if got := Estimate(2.0, "bike"); got != Estimate(2.0, models.ClassBike) {
		t.Fatalf("lowercase class should price as BIKE, got %v", got)
	}
}

func TestQuoteAgreesWithEstimate(t *testing.T) {
	q := Quote(5.4321)
	if q.DistanceKm != 5.4 {
		t.Fatalf("quote distance = %v, want 5.4", q.DistanceKm)
	}
	if q.CarFare != Estimate(q.DistanceKm, models.ClassCar) {
		t.Fatalf("quote car fare %v disagrees with estimate %v", q.CarFare, Estimate(q.DistanceKm, models.ClassCar))
	}
	if q.BikeFare >= q.AutoFare || q.AutoFare >= q.CarFare || q.CarFare >= q.PremierFare {
		t.Fatalf("fares not ordered by class rate: %+v", q)
	}
}

func TestRounding(t *testing.T) {
	// 0.125 is exactly representable, so this pins the half-up behavior.
	if got := Round2(0.125); got != 0.13 {
		t.Errorf("Round2(0.125) = %v, want 0.13", got)
	}
	if got := RoundDistance(5.45); got != 5.5 {
		t.Errorf("RoundDistance(5.45) = %v, want 5.5", got)
	}
	if got := RoundDistance(5.44); got != 5.4 {
		t.Errorf("RoundDistance(5.44) = %v, want 5.4", got)
	}
}
