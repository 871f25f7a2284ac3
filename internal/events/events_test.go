package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEnvelope_RoundTrip tests that an envelope survives the wire
func TestEnvelope_RoundTrip(t *testing.T) {
	rideID := uuid.New()
	ev := New(TypeCompleted, Completed{RideID: rideID, Fare: 230.0})

	decoded, err := Decode(ev.Encode())
	require.NoError(t, err)
	assert.Equal(t, TypeCompleted, decoded.Type)

	var payload Completed
	require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
	assert.Equal(t, rideID, payload.RideID)
	assert.Equal(t, 230.0, payload.Fare)
}

// TestDecode_RejectsGarbage tests malformed wire data
func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)
}

// TestMatched_OmitsEmptyPickupCode tests that the driver-facing match
// payload carries no pickup_code key at all
func TestMatched_OmitsEmptyPickupCode(t *testing.T) {
	ev := New(TypeMatched, Matched{RideID: uuid.New()})
	assert.NotContains(t, string(ev.Payload), "pickup_code")

	withCode := New(TypeMatched, Matched{RideID: uuid.New(), PickupCode: "4821"})
	assert.Contains(t, string(withCode.Payload), "4821")
}
