package storage

import (
	"context"
	"time"

	"github.com/example/rideflow/internal/models"
)

// RideStore persists rides and owns the linearization point for every status
// transition. Each mutating call is a single atomic unit: the guard on the
// current status (and, for AcceptRide, the driver's availability) either
// passes and the whole write lands, or fails and nothing changes.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)

	// ListRidesByStatus returns rides in the given status, newest first.
	ListRidesByStatus(ctx context.Context, status models.RideStatus) ([]*models.Ride, error)
	// ListRidesByDriver returns every ride bound to the driver, newest first.
	ListRidesByDriver(ctx context.Context, driverID string) ([]*models.Ride, error)

	// AcceptRide claims a REQUESTED ride for an available driver: binds the
	// driver, moves the ride to ACCEPTED and flips availability to false, all
	// atomically. Exactly one of N racing drivers wins; losers get
	// InvalidState (ride already claimed) or PermissionDenied (caller not
	// available) with their own availability untouched.
	AcceptRide(ctx context.Context, rideID, driverID string) (*models.Ride, error)

	// StartRide moves ACCEPTED to STARTED, stamping startedAt and recording
	// OTP consumption. The OTP itself is checked by the engine before this
	// call; a failed check never reaches the store.
	StartRide(ctx context.Context, rideID string, startedAt time.Time) (*models.Ride, error)

	// CloseRide moves a ride to COMPLETED (requires STARTED) or CANCELLED
	// (requires any non-terminal status), stamps endedAt and releases the
	// bound driver back to the pool in the same atomic unit. A missing
	// driver binding skips the release rather than failing.
	CloseRide(ctx context.Context, rideID string, status models.RideStatus, endedAt time.Time, zeroFare bool) (*models.Ride, error)
}

// DriverRegistry tracks driver records and the availability flag. Reads
// reflect the most recently committed write.
type DriverRegistry interface {
	CreateDriver(ctx context.Context, d *models.Driver) error
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	GetDriverByUserID(ctx context.Context, userID string) (*models.Driver, error)
	ListAvailableDrivers(ctx context.Context) ([]*models.Driver, error)
	SetDriverAvailability(ctx context.Context, id string, available bool) error
	UpdateDriverPosition(ctx context.Context, id string, loc models.Coord, at time.Time) error
}

// UserDirectory is the narrow identity-collaborator contract the core needs:
// resolve a rider by ID.
type UserDirectory interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// PaymentStore tracks settlement status per ride. At most one payment record
// exists for a ride.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPaymentByRide(ctx context.Context, rideID string) (*models.Payment, error)
	GetPaymentByTransaction(ctx context.Context, txnID string) (*models.Payment, error)
	MarkPaymentCompleted(ctx context.Context, txnID string, at time.Time) (*models.Payment, error)
}

// Store is the full persistence surface backing the service.
type Store interface {
	RideStore
	DriverRegistry
	UserDirectory
	PaymentStore
}
