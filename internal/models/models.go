package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is a coordinate pair plus an optional human-readable label,
// used for ride pickup and drop points.
type Location struct {
	Coord
	Label string `json:"label,omitempty"`
}

// VehicleClass selects the per-km pricing rate for a ride.
type VehicleClass string

const (
	ClassBike    VehicleClass = "BIKE"
	ClassAuto    VehicleClass = "AUTO"
	ClassCar     VehicleClass = "CAR"
	ClassPremier VehicleClass = "PREMIER"
)

// RideStatus is the lifecycle state of a ride. REQUESTED is initial;
// COMPLETED and CANCELLED are terminal.
type RideStatus string

const (
	StatusRequested RideStatus = "REQUESTED"
	StatusAccepted  RideStatus = "ACCEPTED"
	StatusStarted   RideStatus = "STARTED"
	StatusCompleted RideStatus = "COMPLETED"
	StatusCancelled RideStatus = "CANCELLED"
)

// validTransitions is the ride state machine. Transitions only move forward;
// CANCELLED is reachable from any non-terminal state.
var validTransitions = map[RideStatus][]RideStatus{
	StatusRequested: {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusStarted, StatusCancelled},
	StatusStarted:   {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Ride is the central record. Identity, rider, pickup/drop, distance, fare and
// OTP are fixed at creation; only status, driver binding and timestamps change
// afterwards, each exactly once per transition.
type Ride struct {
	ID           string       `json:"id"`
	RiderID      string       `json:"rider_id"`
	DriverID     string       `json:"driver_id,omitempty"`
	Status       RideStatus   `json:"status"`
	Pickup       Location     `json:"pickup"`
	Drop         Location     `json:"drop"`
	VehicleClass VehicleClass `json:"vehicle_class"`
	DistanceKm   float64      `json:"distance_km"`
	Fare         float64      `json:"fare"`

	// OTP is shared with the rider at creation and presented to the bound
	// driver to authorize ride start. Consumed exactly once.
	OTP           string     `json:"otp,omitempty"`
	OTPConsumedAt *time.Time `json:"otp_consumed_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Driver relates to rides by ID only; it carries no back-pointer to a
// specific ride. Available is the contended flag: false means the driver is
// bound to exactly one non-terminal ride.
type Driver struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	License     string       `json:"license,omitempty"`
	Vehicle     VehicleClass `json:"vehicle"`
	PlateNumber string       `json:"plate_number,omitempty"`
	Available   bool         `json:"available"`
	Rating      float64      `json:"rating"`
	Position    Coord        `json:"position"`
	PositionAt  time.Time    `json:"position_at,omitempty"`
}

// User is the minimal identity shape the core needs to resolve a rider.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Heartbeat is one driver position report, ingested over HTTP and relayed
// through Kafka to the position tracker.
type Heartbeat struct {
	DriverID string    `json:"driver_id"`
	Loc      Coord     `json:"loc"`
	Recorded time.Time `json:"recorded"`
}

// PaymentStatus tracks settlement progress only; the gateway does the rest.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
)

type Payment struct {
	RideID        string        `json:"ride_id"`
	TransactionID string        `json:"transaction_id"`
	Amount        float64       `json:"amount"`
	Method        string        `json:"method"`
	Status        PaymentStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// FareQuote is the pre-booking estimate across every vehicle class. It uses
// the same constants and rounding as booking, so a displayed quote and the
// fare locked into a ride for the same route always agree.
type FareQuote struct {
	DistanceKm  float64 `json:"distance_km"`
	BikeFare    float64 `json:"bike_fare"`
	AutoFare    float64 `json:"auto_fare"`
	CarFare     float64 `json:"car_fare"`
	PremierFare float64 `json:"premier_fare"`
}
