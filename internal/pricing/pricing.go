package pricing

import (
	"math"
	"strings"

	"github.com/example/rideflow/internal/models"
)

// BaseFare applies to every vehicle class.
const BaseFare = 30.0

// ratePerKm maps each class to its per-km rate in currency units.
var ratePerKm = map[models.VehicleClass]float64{
	models.ClassBike:    8.0,
	models.ClassAuto:    12.0,
	models.ClassCar:     18.0,
	models.ClassPremier: 25.0,
}

// Rate returns the per-km rate for a class. Unrecognized input falls back to
// the CAR rate; this permissive behavior is deliberate and load-bearing, do
// not harden it.
func Rate(class models.VehicleClass) float64 {
	if r, ok := ratePerKm[Normalize(class)]; ok {
		return r
	}
	return ratePerKm[models.ClassCar]
}

// Normalize maps free-form input ("car", "Bike") onto the closed enum.
func Normalize(class models.VehicleClass) models.VehicleClass {
	return models.VehicleClass(strings.ToUpper(strings.TrimSpace(string(class))))
}

// Estimate prices a ride: base fare plus distance times the class rate,
// rounded half-up to two decimals. Callers pass the already-rounded route
// distance so a quote and the booked fare for the same route agree exactly.
func Estimate(distanceKm float64, class models.VehicleClass) float64 {
	return Round2(BaseFare + distanceKm*Rate(class))
}

// RoundDistance rounds a raw route distance to the single decimal the rest of
// the system carries.
func RoundDistance(km float64) float64 {
	return math.Round(km*10) / 10
}

// Round2 rounds half-up to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Quote prices every supported class for one route distance, using the same
// constants and rounding as Estimate.
func Quote(distanceKm float64) models.FareQuote {
	d := RoundDistance(distanceKm)
	return models.FareQuote{
		DistanceKm:  d,
		BikeFare:    Estimate(d, models.ClassBike),
		AutoFare:    Estimate(d, models.ClassAuto),
		CarFare:     Estimate(d, models.ClassCar),
		PremierFare: Estimate(d, models.ClassPremier),
	}
}
