// Package cargo extracts structured cargo attributes from the free-text
// quote details on a lead.
package cargo

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/enrich"
	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/resilience"
	"github.com/sells-group/lead-enrichment/pkg/anthropic"
)

const extractionSystemPrompt = `You extract cargo information from freight quote requests.
Given the quote details, respond with a single JSON object:
{"cargoType": string, "quantity": string, "weightKg": number, "hazardous": bool, "temperatureControlled": bool, "notes": string}
Use null for anything not stated. Do not guess. Respond with JSON only.`

// Extraction is the cargo stage payload. An empty quote still yields a
// well-formed (empty) extraction.
type Extraction struct {
	CargoType             string  `json:"cargoType,omitempty"`
	Quantity              string  `json:"quantity,omitempty"`
	WeightKg              float64 `json:"weightKg,omitempty"`
	Hazardous             bool    `json:"hazardous"`
	TemperatureControlled bool    `json:"temperatureControlled"`
	Notes                 string  `json:"notes,omitempty"`
}

// Enricher is the cargo extraction stage.
type Enricher struct {
	llm   anthropic.Client
	model string
	retry resilience.RetryConfig
}

// NewEnricher creates the cargo stage.
func NewEnricher(llm anthropic.Client, llmModel string, retry resilience.RetryConfig) *Enricher {
	return &Enricher{llm: llm, model: llmModel, retry: retry}
}

// Stage returns the stage name.
func (e *Enricher) Stage() model.StageName {
	return model.StageCargo
}

// Enrich runs the extraction agent. Leads with no cargo information at all
// short-circuit to an empty extraction without an LLM call.
func (e *Enricher) Enrich(ctx context.Context, l *model.Lead) (*model.StageResult, error) {
	prompt := buildPrompt(l)
	if prompt == "" {
		zap.L().Debug("no cargo information on lead", zap.String("lead_id", l.ID))
		return &model.StageResult{Stage: model.StageCargo, Payload: &Extraction{}}, nil
	}

	extraction, err := resilience.DoVal(ctx, e.retry, "cargo.extract", func(ctx context.Context) (*Extraction, error) {
		resp, err := e.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: 1024,
			System:    extractionSystemPrompt,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return nil, enrich.ClassifyLLMError(err)
		}

		var ex Extraction
		if err := enrich.DecodeModelJSON(resp.Text(), &ex); err != nil {
			return nil, err
		}
		return &ex, nil
	})
	if err != nil {
		return nil, err
	}

	return &model.StageResult{Stage: model.StageCargo, Payload: extraction}, nil
}

// buildPrompt assembles quote and route context. Returns "" when the lead
// carries nothing worth extracting.
func buildPrompt(l *model.Lead) string {
	var sections []string

	var quote []string
	if l.Quote.Description != "" {
		quote = append(quote, "- Cargo description: "+l.Quote.Description)
	}
	if l.Quote.CargoType != "" {
		quote = append(quote, "- Cargo type: "+l.Quote.CargoType)
	}
	if l.Quote.RequestType != "" {
		quote = append(quote, "- Request type: "+l.Quote.RequestType)
	}
	if l.Quote.Notes != "" {
		quote = append(quote, "- Notes: "+l.Quote.Notes)
	}
	if len(quote) > 0 {
		sections = append(sections, "<Quote>\n"+strings.Join(quote, "\n")+"\n</Quote>")
	}

	var route []string
	if origin := placeString(l.Collection); origin != "" {
		route = append(route, "- From: "+origin)
	}
	if dest := placeString(l.Delivery); dest != "" {
		route = append(route, "- To: "+dest)
	}
	if len(route) > 0 {
		sections = append(sections, "<Route>\n"+strings.Join(route, "\n")+"\n</Route>")
	}

	return strings.Join(sections, "\n\n")
}

func placeString(loc model.Location) string {
	parts := make([]string, 0, 2)
	if loc.City != "" {
		parts = append(parts, loc.City)
	}
	if loc.Country != "" {
		parts = append(parts, loc.Country)
	}
	return strings.Join(parts, ", ")
}
