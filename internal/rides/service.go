package rides

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/example/rideflow/internal/apperrors"
	"github.com/example/rideflow/internal/geo"
	"github.com/example/rideflow/internal/models"
	"github.com/example/rideflow/internal/observability"
	"github.com/example/rideflow/internal/otp"
	"github.com/example/rideflow/internal/payments"
	"github.com/example/rideflow/internal/pricing"
	"github.com/example/rideflow/internal/storage"
)

// Dispatcher pushes new pool entries to subscribed drivers. Best effort.
type Dispatcher interface {
	AnnounceRide(r *models.Ride) error
}

// Service owns the ride state machine. Every transition goes through the
// store's atomic guards; the service adds authorization, the OTP check, fare
// locking and the side effects (driver release, payment hook, dispatch).
type Service struct {
	Store    storage.RideStore
	Drivers  storage.DriverRegistry
	Users    storage.UserDirectory
	Payments payments.Hook
	Dispatch Dispatcher
	Logger   *slog.Logger

	OTPLength int
	// CancelRetainFare decides whether a mid-trip cancellation keeps the
	// locked fare on the record or zeroes it. Policy knob, default retain.
	CancelRetainFare bool
}

// RequestInput carries everything "request ride" needs. The rider identity is
// already authenticated upstream.
type RequestInput struct {
	RiderID      string
	Pickup       models.Location
	Drop         models.Location
	VehicleClass models.VehicleClass
}

// RequestRide validates the rider, locks distance and fare, binds a fresh
// single-use OTP and puts the ride into the REQUESTED pool. No driver is
// pre-assigned: assignment happens only through explicit acceptance, and a
// ride may wait in the pool indefinitely.
func (s *Service) RequestRide(ctx context.Context, in RequestInput) (*models.Ride, error) {
	if _, err := s.Users.GetUser(ctx, in.RiderID); err != nil {
		return nil, err
	}

	distance := pricing.RoundDistance(geo.DistanceKm(in.Pickup.Coord, in.Drop.Coord))
	class := pricing.Normalize(in.VehicleClass)
	fare := pricing.Estimate(distance, class)

	code, err := otp.Issue(s.OTPLength)
	if err != nil {
		return nil, err
	}

	ride := &models.Ride{
		ID:           newID(),
		RiderID:      in.RiderID,
		Status:       models.StatusRequested,
		Pickup:       in.Pickup,
		Drop:         in.Drop,
		VehicleClass: class,
		DistanceKm:   distance,
		Fare:         fare,
		OTP:          code,
		CreatedAt:    time.Now(),
	}
	if err := s.Store.CreateRide(ctx, ride); err != nil {
		return nil, err
	}

	observability.RidesRequested.Inc()
	if s.Dispatch != nil {
		_ = s.Dispatch.AnnounceRide(ride)
	}
	s.Logger.Info("ride requested", "ride_id", ride.ID, "rider_id", ride.RiderID,
		"distance_km", ride.DistanceKm, "fare", ride.Fare, "class", ride.VehicleClass)
	return ride, nil
}

// QuoteFare prices every vehicle class for a route, with the same constants
// and rounding RequestRide locks in.
func (s *Service) QuoteFare(pickup, drop models.Coord) models.FareQuote {
	return pricing.Quote(geo.DistanceKm(pickup, drop))
}

func (s *Service) GetRide(ctx context.Context, rideID string) (*models.Ride, error) {
	return s.Store.GetRide(ctx, rideID)
}

// ListAvailableRides is the dispatch pool: every REQUESTED ride, newest first.
func (s *Service) ListAvailableRides(ctx context.Context) ([]*models.Ride, error) {
	return s.Store.ListRidesByStatus(ctx, models.StatusRequested)
}

func (s *Service) GetRidesForDriver(ctx context.Context, driverID string) ([]*models.Ride, error) {
	if _, err := s.Drivers.GetDriver(ctx, driverID); err != nil {
		return nil, err
	}
	return s.Store.ListRidesByDriver(ctx, driverID)
}

// AcceptRide claims a REQUESTED ride for the calling driver. The store treats
// the status check, the driver binding and the availability flip as one
// atomic unit, so racing drivers get exactly one winner; losers see
// InvalidState and keep their availability.
func (s *Service) AcceptRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	ride, err := s.Store.AcceptRide(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	observability.RidesAccepted.Inc()
	s.Logger.Info("ride accepted", "ride_id", rideID, "driver_id", driverID)
	return ride, nil
}

// StartRide verifies the rider-presented OTP and moves ACCEPTED to STARTED.
// The check happens before any mutation: a wrong code leaves the ride
// untouched and the code unconsumed, so the rider can retry.
func (s *Service) StartRide(ctx context.Context, rideID, driverID, presented string) (*models.Ride, error) {
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.StatusAccepted {
		return nil, apperrors.InvalidState("start", string(ride.Status))
	}
	if ride.DriverID != driverID {
		return nil, apperrors.PermissionDenied("only the assigned driver can start the ride")
	}
	if !otp.Verify(ride.OTP, presented) {
		observability.OTPFailures.Inc()
		s.Logger.Warn("otp mismatch on ride start", "ride_id", rideID, "driver_id", driverID)
		return nil, apperrors.InvalidCredential("invalid OTP")
	}
	started, err := s.Store.StartRide(ctx, rideID, time.Now())
	if err != nil {
		return nil, err
	}
	s.Logger.Info("ride started", "ride_id", rideID, "driver_id", driverID)
	return started, nil
}

// CompleteRide closes a STARTED ride, releases the bound driver back to the
// pool and signals the payment hook with the locked fare. The hook is fire
// and forget: its failure is logged, never surfaced.
func (s *Service) CompleteRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, apperrors.PermissionDenied("only the assigned driver can complete the ride")
	}
	completed, err := s.Store.CloseRide(ctx, rideID, models.StatusCompleted, time.Now(), false)
	if err != nil {
		return nil, err
	}
	observability.RidesCompleted.Inc()
	s.Logger.Info("ride completed", "ride_id", rideID, "driver_id", driverID, "fare", completed.Fare)
	if s.Payments != nil {
		if err := s.Payments.OnRideCompleted(ctx, completed.ID, completed.Fare); err != nil {
			s.Logger.Warn("payment hook failed", "ride_id", rideID, "error", err)
		}
	}
	return completed, nil
}

// CancelRide closes any non-terminal ride. The rider or the bound driver may
// cancel; a bound driver is released back to the pool. Whether a mid-trip
// cancellation keeps the fare follows the CancelRetainFare policy.
func (s *Service) CancelRide(ctx context.Context, rideID, callerUserID string) (*models.Ride, error) {
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status.Terminal() {
		return nil, apperrors.InvalidState("cancel", string(ride.Status))
	}
	if !s.mayCancel(ctx, ride, callerUserID) {
		return nil, apperrors.PermissionDenied("only the rider or the assigned driver can cancel the ride")
	}
	zeroFare := ride.Status == models.StatusStarted && !s.CancelRetainFare
	cancelled, err := s.Store.CloseRide(ctx, rideID, models.StatusCancelled, time.Now(), zeroFare)
	if err != nil {
		return nil, err
	}
	observability.RidesCancelled.Inc()
	s.Logger.Info("ride cancelled", "ride_id", rideID, "by", callerUserID, "from_status", ride.Status)
	return cancelled, nil
}

func (s *Service) mayCancel(ctx context.Context, ride *models.Ride, callerUserID string) bool {
	if callerUserID == "" {
		return false
	}
	if ride.RiderID == callerUserID {
		return true
	}
	if ride.DriverID == "" {
		return false
	}
	d, err := s.Drivers.GetDriverByUserID(ctx, callerUserID)
	return err == nil && d.ID == ride.DriverID
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
