package main

import (
	"context"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/archive"
	"github.com/sells-group/lead-enrichment/internal/bus"
	"github.com/sells-group/lead-enrichment/internal/config"
	"github.com/sells-group/lead-enrichment/internal/enrich/cargo"
	"github.com/sells-group/lead-enrichment/internal/enrich/company"
	"github.com/sells-group/lead-enrichment/internal/enrich/lead"
	"github.com/sells-group/lead-enrichment/internal/pipeline"
	"github.com/sells-group/lead-enrichment/internal/resilience"
	"github.com/sells-group/lead-enrichment/internal/track"
	anthropicpkg "github.com/sells-group/lead-enrichment/pkg/anthropic"
	sfpkg "github.com/sells-group/lead-enrichment/pkg/salesforce"
)

// listenerEnv holds the initialized collaborators the listen command wires
// together.
type listenerEnv struct {
	Bus      *bus.Bus
	Sink     archive.Sink
	Buffer   *archive.Buffer
	Listener *bus.Listener
}

// Close releases broker and sink resources. The buffer must already be
// closed (it flushes into the sink).
func (e *listenerEnv) Close() {
	if e.Bus != nil {
		if err := e.Bus.Close(); err != nil {
			zap.L().Warn("bus close failed", zap.Error(err))
		}
	}
	if e.Sink != nil {
		if err := e.Sink.Close(); err != nil {
			zap.L().Warn("archive sink close failed", zap.Error(err))
		}
	}
}

// initListener sets up the bus, warehouse sink, enrichment stages, and the
// listener. Callers should defer env.Close().
func initListener(ctx context.Context) (*listenerEnv, error) {
	b, err := bus.Connect(ctx, cfg.Bus)
	if err != nil {
		return nil, err
	}

	sink, err := archive.OpenSink(ctx, cfg.Archive)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	buffer := archive.NewBuffer(sink, cfg.Archive.BatchSize, cfg.Archive.FlushInterval())

	if cfg.Anthropic.Key == "" {
		buffer.Close(ctx)
		_ = sink.Close()
		_ = b.Close()
		return nil, eris.New("anthropic API key is required (LEADENRICH_ANTHROPIC_KEY)")
	}
	llm := anthropicpkg.NewClient(cfg.Anthropic.Key)

	crm, err := initSalesforce()
	if err != nil {
		buffer.Close(ctx)
		_ = sink.Close()
		_ = b.Close()
		return nil, err
	}

	retry := retryFromConfig(cfg.Retry)
	orchestrator := pipeline.New(
		lead.NewEnricher(),
		company.NewEnricher(llm, crm, cfg.Anthropic.Model, retry),
		cargo.NewEnricher(llm, cfg.Anthropic.Model, retry),
	)

	tracker := track.New(cfg.Segment)

	listener := bus.NewListener(b, b, orchestrator, buffer, tracker, cfg.Bus, cfg.Listener)

	return &listenerEnv{Bus: b, Sink: sink, Buffer: buffer, Listener: listener}, nil
}

// initSalesforce builds the CRM client. Returns nil (no error) when the
// client ID is unset; company matching then runs research-only.
func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		zap.L().Info("salesforce not configured, CRM matching disabled")
		return nil, nil
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(5)), nil
}

func retryFromConfig(rc config.RetryConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:         rc.MaxAttempts,
		RateLimitBase:       time.Duration(rc.RateLimitBaseMs) * time.Millisecond,
		RateLimitMultiplier: rc.RateLimitMultiplier,
		JitterFraction:      rc.JitterFraction,
		MaxBackoff:          time.Duration(rc.MaxBackoffMs) * time.Millisecond,
	}
}
