package track

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enrichment/internal/config"
)

func TestEventName(t *testing.T) {
	assert.Equal(t, "Lead Enrichment Processed", EventName("LeadEnrichmentProcessed"))
	assert.Equal(t, "Lead Created", EventName("LeadCreated"))
	assert.Equal(t, "Lead Created", EventName("lead.created"))
	assert.Equal(t, "Lead Enriched Company", EventName("lead.enriched.company"))
	assert.Equal(t, "already spaced", EventName("already spaced"))
	assert.Equal(t, "", EventName(""))
}

func TestNew_NoWriteKeyIsNoop(t *testing.T) {
	tracker := New(config.SegmentConfig{})
	_, ok := tracker.(noopTracker)
	assert.True(t, ok)
	assert.NoError(t, tracker.Track(context.Background(), Event{Event: "Anything"}))
}

func TestTrack_SendsBasicAuthAndBody(t *testing.T) {
	var gotAuthUser string
	var gotBody Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		gotAuthUser = user
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tracker := New(config.SegmentConfig{
		WriteKey: "wk-123",
		Endpoint: srv.URL,
	})

	err := tracker.Track(context.Background(), Event{
		UserID:     "u-1",
		Event:      "LeadEnrichmentProcessed",
		Properties: map[string]any{"leadId": "L1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "wk-123", gotAuthUser, "write key rides as basic auth username")
	assert.Equal(t, "Lead Enrichment Processed", gotBody.Event)
	assert.Equal(t, "u-1", gotBody.UserID)
	assert.False(t, gotBody.Timestamp.IsZero())
}

func TestTrack_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tracker := New(config.SegmentConfig{WriteKey: "wk", Endpoint: srv.URL})
	err := tracker.Track(context.Background(), Event{Event: "X"})
	assert.Error(t, err)
}

func TestTrack_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tracker := New(config.SegmentConfig{WriteKey: "wk", Endpoint: srv.URL, RatePerSec: 1000})

	// Breaker default threshold is 5 consecutive failures.
	for range 8 {
		_ = tracker.Track(context.Background(), Event{Event: "X"})
	}
	assert.Equal(t, 5, calls, "calls after the circuit opens never reach the API")
}
