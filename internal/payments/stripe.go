package payments

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/farebid/dispatch/internal/domain/ride"
	"github.com/farebid/dispatch/pkg/logger"
	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeSettler drives fare settlement through Stripe PaymentIntents:
// a manual-capture hold when a match commits, capture on completion,
// cancel on ride cancellation. The dispatch core only triggers these;
// payment processing itself is Stripe's problem.
type StripeSettler struct {
	currency string
	logger   *logger.Logger

	mu      sync.Mutex
	intents map[uuid.UUID]string
}

// NewStripeSettler configures the stripe client with the given API key
func NewStripeSettler(apiKey, currency string, log *logger.Logger) *StripeSettler {
	stripe.Key = apiKey
	if currency == "" {
		currency = "usd"
	}
	return &StripeSettler{
		currency: currency,
		logger:   log,
		intents:  make(map[uuid.UUID]string),
	}
}

// Hold places a manual-capture hold for the ride's fare
func (s *StripeSettler) Hold(ctx context.Context, r *ride.Ride) error {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(math.Round(r.Fare * 100))),
		Currency:      stripe.String(s.currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.AddMetadata("ride_id", r.ID.String())
	params.AddMetadata("rider_id", r.RiderID.String())

	pi, err := paymentintent.New(params)
	if err != nil {
		return fmt.Errorf("hold for ride %s: %w", r.ID, err)
	}

	s.mu.Lock()
	s.intents[r.ID] = pi.ID
	s.mu.Unlock()

	s.logger.Info("Settlement hold placed",
		logger.String("ride_id", r.ID.String()),
		logger.String("payment_intent", pi.ID),
	)
	return nil
}

// Capture finalizes the hold after ride completion
func (s *StripeSettler) Capture(ctx context.Context, rideID uuid.UUID) error {
	intentID, err := s.intentFor(rideID)
	if err != nil {
		return err
	}
	if _, err := paymentintent.Capture(intentID, nil); err != nil {
		return fmt.Errorf("capture for ride %s: %w", rideID, err)
	}
	s.forget(rideID)
	return nil
}

// Release cancels the hold when the ride does not happen
func (s *StripeSettler) Release(ctx context.Context, rideID uuid.UUID) error {
	intentID, err := s.intentFor(rideID)
	if err != nil {
		return err
	}
	if _, err := paymentintent.Cancel(intentID, nil); err != nil {
		return fmt.Errorf("release for ride %s: %w", rideID, err)
	}
	s.forget(rideID)
	return nil
}

func (s *StripeSettler) intentFor(rideID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intentID, ok := s.intents[rideID]
	if !ok {
		return "", fmt.Errorf("no settlement hold recorded for ride %s", rideID)
	}
	return intentID, nil
}

func (s *StripeSettler) forget(rideID uuid.UUID) {
	s.mu.Lock()
	delete(s.intents, rideID)
	s.mu.Unlock()
}
