package cargo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/resilience"
	"github.com/sells-group/lead-enrichment/pkg/anthropic"
)

type fakeLLM struct {
	responses []string
	calls     int
	prompts   []string
}

func (f *fakeLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	i := f.calls
	f.calls++
	if len(req.Messages) > 0 {
		f.prompts = append(f.prompts, req.Messages[0].Content)
	}
	text := ""
	if i < len(f.responses) {
		text = f.responses[i]
	}
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: text}}}, nil
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 2, RateLimitBase: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestEnrich_EmptyQuoteSkipsLLM(t *testing.T) {
	llm := &fakeLLM{}
	e := NewEnricher(llm, "test-model", fastRetry())

	res, err := e.Enrich(context.Background(), &model.Lead{ID: "L1"})
	require.NoError(t, err)
	assert.Zero(t, llm.calls, "nothing to extract, no LLM call")

	extraction, ok := res.Payload.(*Extraction)
	require.True(t, ok)
	assert.Equal(t, &Extraction{}, extraction)
}

func TestEnrich_ExtractsFromQuote(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"```json\n" + `{"cargoType": "palletized", "quantity": "12 pallets", "weightKg": 4800, "hazardous": false}` + "\n```",
	}}
	e := NewEnricher(llm, "test-model", fastRetry())

	l := &model.Lead{
		ID:         "L1",
		Quote:      model.Quote{Description: "12 pallets of machine parts", CargoType: "palletized"},
		Collection: model.Location{City: "Rotterdam", Country: "Netherlands"},
		Delivery:   model.Location{Country: "Germany"},
	}
	res, err := e.Enrich(context.Background(), l)
	require.NoError(t, err)

	extraction := res.Payload.(*Extraction)
	assert.Equal(t, "palletized", extraction.CargoType)
	assert.Equal(t, "12 pallets", extraction.Quantity)
	assert.InDelta(t, 4800, extraction.WeightKg, 0.01)

	require.Len(t, llm.prompts, 1)
	prompt := llm.prompts[0]
	assert.Contains(t, prompt, "<Quote>")
	assert.Contains(t, prompt, "12 pallets of machine parts")
	assert.Contains(t, prompt, "<Route>")
	assert.Contains(t, prompt, "Rotterdam, Netherlands")
	assert.Contains(t, prompt, "Germany")
}

func TestEnrich_RouteOnlyStillPrompts(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{}`}}
	e := NewEnricher(llm, "test-model", fastRetry())

	l := &model.Lead{
		ID:       "L1",
		Delivery: model.Location{Country: "Germany"},
	}
	_, err := e.Enrich(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, 1, llm.calls)
	assert.NotContains(t, llm.prompts[0], "<Quote>")
	assert.Contains(t, llm.prompts[0], "<Route>")
}

func TestEnrich_MalformedOutputRetried(t *testing.T) {
	llm := &fakeLLM{responses: []string{"nope", `{"cargoType": "bulk"}`}}
	e := NewEnricher(llm, "test-model", fastRetry())

	l := &model.Lead{ID: "L1", Quote: model.Quote{Description: "grain"}}
	res, err := e.Enrich(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, 2, llm.calls)
	assert.Equal(t, "bulk", res.Payload.(*Extraction).CargoType)
}
