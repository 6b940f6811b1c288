// Package track sends product analytics events to Segment. Tracking is
// fire-and-forget: a failed call is logged and swallowed.
package track

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-enrichment/internal/config"
	"github.com/sells-group/lead-enrichment/internal/resilience"
)

// Event is a single track call.
type Event struct {
	UserID     string         `json:"userId"`
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitzero"`
}

// Tracker sends events to the analytics backend.
type Tracker interface {
	Track(ctx context.Context, evt Event) error
}

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// EventName turns an event identifier into the spaced display name Segment
// conventions use: "LeadEnrichedCompany" and "lead.enriched.company" both
// become "Lead Enriched Company".
func EventName(s string) string {
	s = camelBoundary.ReplaceAllString(s, "$1 $2")
	if !strings.Contains(s, ".") {
		return s
	}
	parts := strings.Split(s, ".")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// New creates a Segment tracker. An empty write key disables tracking and
// returns a no-op client, so callers never branch on configuration.
func New(cfg config.SegmentConfig) Tracker {
	if cfg.WriteKey == "" {
		zap.L().Info("segment write key not set, tracking disabled")
		return noopTracker{}
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}

	return &segmentClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		writeKey:   cfg.WriteKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), max(int(rps), 1)),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("segment circuit state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

type segmentClient struct {
	httpClient *http.Client
	endpoint   string
	writeKey   string
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
}

// Track posts one event. Rate limiting and the circuit breaker shield the
// Segment API from bursts and from hammering it while it is down.
func (c *segmentClient) Track(ctx context.Context, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Event = EventName(evt.Event)

	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "track: rate limiter")
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.post(ctx, evt)
	})
}

func (c *segmentClient) post(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return eris.Wrap(err, "track: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "track: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	// Segment HTTP API auth: write key as basic auth username, empty password.
	req.SetBasicAuth(c.writeKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "track: send request")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return eris.Errorf("track: segment returned %d", resp.StatusCode)
	}
	return nil
}

type noopTracker struct{}

func (noopTracker) Track(context.Context, Event) error { return nil }
