package payments

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/example/rideflow/internal/apperrors"
	"github.com/example/rideflow/internal/models"
	"github.com/example/rideflow/internal/storage"
)

func completedRide(t *testing.T, store *storage.MemoryStore, id string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	err := store.CreateRide(ctx, &models.Ride{
		ID: id, RiderID: "u1", DriverID: "d1", Status: models.StatusCompleted,
		Fare: 127.2, CreatedAt: now, EndedAt: &now,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestInitiateRequiresCompletedRide(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := &Ledger{Store: store, Rides: store}

	if _, err := l.Initiate(ctx, "missing", "CARD"); !apperrors.IsNotFound(err) {
		t.Fatalf("missing ride: want NotFound, got %v", err)
	}

	now := time.Now()
	_ = store.CreateRide(ctx, &models.Ride{ID: "r-open", RiderID: "u1", Status: models.StatusStarted, Fare: 50, CreatedAt: now})
	if _, err := l.Initiate(ctx, "r-open", "CARD"); !apperrors.IsInvalidState(err) {
		t.Fatalf("open ride: want InvalidState, got %v", err)
	}
}

func TestInitiateOncePerRide(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := &Ledger{Store: store, Rides: store}
	completedRide(t, store, "r1")

	p, err := l.Initiate(ctx, "r1", "UPI")
	if err != nil {
		t.Fatal(err)
	}
	if p.Amount != 127.2 || p.Status != models.PaymentPending {
		t.Fatalf("payment: %+v", p)
	}
	if !strings.HasPrefix(p.TransactionID, "PAY-") || len(p.TransactionID) != 16 {
		t.Fatalf("transaction id format: %q", p.TransactionID)
	}
	if _, err := l.Initiate(ctx, "r1", "UPI"); !apperrors.IsInvalidState(err) {
		t.Fatalf("duplicate initiate: want InvalidState, got %v", err)
	}
}

func TestCompleteByTransaction(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := &Ledger{Store: store, Rides: store}
	completedRide(t, store, "r1")

	p, err := l.Initiate(ctx, "r1", "CARD")
	if err != nil {
		t.Fatal(err)
	}
	done, err := l.Complete(ctx, p.TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != models.PaymentCompleted {
		t.Fatalf("status = %s", done.Status)
	}
	if _, err := l.Complete(ctx, p.TransactionID); !apperrors.IsInvalidState(err) {
		t.Fatalf("double complete: want InvalidState, got %v", err)
	}
	got, err := l.ByRide(ctx, "r1")
	if err != nil || got.TransactionID != p.TransactionID {
		t.Fatalf("ByRide: %+v, %v", got, err)
	}
}
