package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/example/rideflow/internal/apperrors"
	"github.com/example/rideflow/internal/models"
	"github.com/example/rideflow/internal/storage"
)

// Hook is the completion signal the lifecycle engine fires when a ride
// reaches COMPLETED. Fire and forget: the engine logs a failure and moves on.
type Hook interface {
	OnRideCompleted(ctx context.Context, rideID string, fare float64) error
}

// LogHook is the default Hook when no gateway is configured.
type LogHook struct {
	Logger *slog.Logger
}

func (h *LogHook) OnRideCompleted(ctx context.Context, rideID string, fare float64) error {
	h.Logger.Info("ride completed, settlement can begin", "ride_id", rideID, "fare", fare)
	return nil
}

// Ledger tracks settlement status per ride. It does not move money; the
// gateway owns that. A payment can be initiated only once, and only after the
// ride has completed.
type Ledger struct {
	Store storage.PaymentStore
	Rides storage.RideStore
}

func (l *Ledger) Initiate(ctx context.Context, rideID, method string) (*models.Payment, error) {
	ride, err := l.Rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.StatusCompleted {
		return nil, apperrors.InvalidState("initiate payment", string(ride.Status))
	}
	now := time.Now()
	p := &models.Payment{
		RideID:        rideID,
		TransactionID: newTransactionID(),
		Amount:        ride.Fare,
		Method:        method,
		Status:        models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.Store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (l *Ledger) Complete(ctx context.Context, txnID string) (*models.Payment, error) {
	return l.Store.MarkPaymentCompleted(ctx, txnID, time.Now())
}

func (l *Ledger) ByRide(ctx context.Context, rideID string) (*models.Payment, error) {
	return l.Store.GetPaymentByRide(ctx, rideID)
}

func (l *Ledger) ByTransaction(ctx context.Context, txnID string) (*models.Payment, error) {
	return l.Store.GetPaymentByTransaction(ctx, txnID)
}

func newTransactionID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return "PAY-" + strings.ToUpper(hex.EncodeToString(b))
}
