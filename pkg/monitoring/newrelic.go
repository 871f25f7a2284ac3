package monitoring

import (
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Config holds New Relic configuration
type Config struct {
	LicenseKey string
	AppName    string
	Enabled    bool
	LogLevel   string
}

// NewRelicApp wraps the New Relic application
type NewRelicApp struct {
	*newrelic.Application
	enabled bool
}

// New creates a new New Relic application
func New(cfg Config) (*NewRelicApp, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return &NewRelicApp{nil, false}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigDistributedTracerEnabled(true),
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	return &NewRelicApp{app, true}, nil
}

// RecordCustomEvent records a custom event. Safe on a nil receiver so
// callers never have to guard the disabled case.
func (nr *NewRelicApp) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if nr == nil || !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomEvent(eventType, params)
}

// RecordCustomMetric records a custom metric
func (nr *NewRelicApp) RecordCustomMetric(name string, value float64) {
	if nr == nil || !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomMetric(name, value)
}

// Shutdown gracefully shuts down the New Relic application
func (nr *NewRelicApp) Shutdown(timeout time.Duration) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.Shutdown(timeout)
}

// IsEnabled returns whether New Relic is enabled
func (nr *NewRelicApp) IsEnabled() bool {
	return nr.enabled
}

// Domain event helpers

// RecordRequestOpened records a new biddable ride request
func (nr *NewRelicApp) RecordRequestOpened(requestID string) {
	nr.RecordCustomEvent("RideRequestOpened", map[string]interface{}{
		"request_id": requestID,
		"timestamp":  time.Now().Unix(),
	})
}

// RecordMatchCommitted records one exclusive bid accept
func (nr *NewRelicApp) RecordMatchCommitted(rideID string, fare float64, bids int) {
	nr.RecordCustomEvent("MatchCommitted", map[string]interface{}{
		"ride_id":    rideID,
		"fare":       fare,
		"total_bids": bids,
	})
}

// RecordCodeFailure records a failed pickup-code verification
func (nr *NewRelicApp) RecordCodeFailure(rideID string, attempts int, escalated bool) {
	nr.RecordCustomEvent("PickupCodeFailure", map[string]interface{}{
		"ride_id":   rideID,
		"attempts":  attempts,
		"escalated": escalated,
	})
}

// RecordRideCompleted records ride completion
func (nr *NewRelicApp) RecordRideCompleted(rideID string, fare float64) {
	nr.RecordCustomEvent("RideCompleted", map[string]interface{}{
		"ride_id": rideID,
		"fare":    fare,
	})
}
