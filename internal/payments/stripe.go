package payments

import (
	"context"
	"math"
	"os"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeHook implements Hook against stripe-go: on completion it places a
// manual-capture hold for the locked fare so settlement can be captured
// later by the billing pipeline.
type StripeHook struct {
	Currency string
}

// NewStripeHook initializes the stripe client with the STRIPE_API_KEY env var.
func NewStripeHook(currency string) *StripeHook {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	if currency == "" {
		currency = "inr"
	}
	return &StripeHook{Currency: currency}
}

func (h *StripeHook) OnRideCompleted(ctx context.Context, rideID string, fare float64) error {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(math.Round(fare * 100))),
		Currency: stripe.String(h.Currency),
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	params.AddMetadata("ride_id", rideID)
	_, err := paymentintent.New(params)
	return err
}

// Capture finalizes a previously-held PaymentIntent.
func (h *StripeHook) Capture(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Capture(paymentIntentID, nil)
	return err
}

// Cancel releases the hold on a PaymentIntent.
func (h *StripeHook) Cancel(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}
