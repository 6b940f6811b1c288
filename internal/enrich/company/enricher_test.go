package company

import (
	"context"
	"encoding/json"
	"errors"
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
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	i := f.calls
	f.calls++
	if len(req.Messages) > 0 {
		f.prompts = append(f.prompts, req.Messages[0].Content)
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	text := ""
	if i < len(f.responses) {
		text = f.responses[i]
	}
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: text}}}, nil
}

type fakeCRM struct {
	// results holds one row set per expected Query call.
	results   [][]map[string]any
	queryErr  error
	queries   []string
	updates   []map[string]any
	updateErr error
}

func (f *fakeCRM) Query(_ context.Context, soql string, out any) error {
	f.queries = append(f.queries, soql)
	if f.queryErr != nil {
		return f.queryErr
	}
	var rows []map[string]any
	if len(f.results) > 0 {
		rows = f.results[0]
		f.results = f.results[1:]
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (f *fakeCRM) UpdateOne(_ context.Context, _ string, _ string, fields map[string]any) error {
	f.updates = append(f.updates, fields)
	return f.updateErr
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 2, RateLimitBase: time.Millisecond, MaxBackoff: time.Millisecond}
}

func companyLead() *model.Lead {
	return &model.Lead{
		ID:      "L1",
		Company: model.Company{Name: "Acme BV", Domain: "acme.example"},
	}
}

const researchJSON = `{"name": "Acme BV", "industry": "Manufacturing", "shipsCargo": true}`

func TestEnrich_ResearchOnlyWithoutCRM(t *testing.T) {
	llm := &fakeLLM{responses: []string{researchJSON}}
	e := NewEnricher(llm, nil, "test-model", fastRetry())

	res, err := e.Enrich(context.Background(), companyLead())
	require.NoError(t, err)
	require.False(t, res.Failed())

	payload, ok := res.Payload.(*Enrichment)
	require.True(t, ok)
	require.NotNil(t, payload.Research)
	assert.Equal(t, "Acme BV", payload.Research.Name)
	assert.True(t, payload.Research.ShipsCargo)
	assert.Nil(t, payload.Match)
}

func TestEnrich_MatchByDomainAndWriteBack(t *testing.T) {
	llm := &fakeLLM{responses: []string{researchJSON}}
	crm := &fakeCRM{results: [][]map[string]any{
		{{"Id": "001A", "Name": "Acme BV", "Website": "https://acme.example"}},
	}}
	e := NewEnricher(llm, crm, "test-model", fastRetry())

	res, err := e.Enrich(context.Background(), companyLead())
	require.NoError(t, err)

	payload := res.Payload.(*Enrichment)
	require.NotNil(t, payload.Match)
	assert.Equal(t, "001A", payload.Match.AccountID)
	assert.Equal(t, "domain", payload.Match.MatchedBy)
	assert.Contains(t, crm.queries[0], "acme.example")

	require.Len(t, crm.updates, 1)
	assert.Equal(t, "001A", crm.updates[0]["Matched_Account__c"])
}

func TestEnrich_MatchFailureKeepsResearch(t *testing.T) {
	llm := &fakeLLM{responses: []string{researchJSON}}
	crm := &fakeCRM{queryErr: errors.New("INVALID_SESSION_ID")}
	e := NewEnricher(llm, crm, "test-model", fastRetry())

	res, err := e.Enrich(context.Background(), companyLead())
	require.NoError(t, err, "match failure is a partial result, not a stage error")

	assert.True(t, res.Failed())
	payload := res.Payload.(*Enrichment)
	require.NotNil(t, payload.Research, "research survives a failed match")
	assert.Nil(t, payload.Match)
	assert.Empty(t, crm.updates)
}

func TestEnrich_ResearchFailureFailsStage(t *testing.T) {
	llm := &fakeLLM{errs: []error{errors.New("authentication_error"), errors.New("authentication_error")}}
	e := NewEnricher(llm, nil, "test-model", fastRetry())

	_, err := e.Enrich(context.Background(), companyLead())
	require.Error(t, err)
	assert.Equal(t, 1, llm.calls, "permanent errors do not retry")
}

func TestEnrich_MalformedResearchRetried(t *testing.T) {
	llm := &fakeLLM{responses: []string{"Sorry, here you go:", researchJSON}}
	e := NewEnricher(llm, nil, "test-model", fastRetry())

	res, err := e.Enrich(context.Background(), companyLead())
	require.NoError(t, err)
	assert.Equal(t, 2, llm.calls, "malformed model output retries")
	assert.Equal(t, "Acme BV", res.Payload.(*Enrichment).Research.Name)
}

func TestSOQLEscape(t *testing.T) {
	assert.Equal(t, `O\'Brien`, soqlEscape(`O'Brien`))
	assert.Equal(t, `a\\b`, soqlEscape(`a\b`))
}
