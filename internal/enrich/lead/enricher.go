// Package lead computes lead-level features: route geography, lead type, and
// contact quality signals.
package lead

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/model"
)

// Enricher is the lead feature extraction stage.
type Enricher struct{}

// NewEnricher creates the lead stage.
func NewEnricher() *Enricher {
	return &Enricher{}
}

// Stage returns the stage name.
func (e *Enricher) Stage() model.StageName {
	return model.StageLead
}

// Enrich extracts computed features from the lead. Extraction is pure, so
// the only failure mode is a panic upstream in the orchestrator's recover.
func (e *Enricher) Enrich(_ context.Context, l *model.Lead) (*model.StageResult, error) {
	features := ExtractFeatures(l)

	zap.L().Debug("lead features extracted",
		zap.String("lead_id", l.ID),
		zap.String("route_type", string(features.RouteType)),
	)

	return &model.StageResult{
		Stage:   model.StageLead,
		Payload: features,
	}, nil
}
