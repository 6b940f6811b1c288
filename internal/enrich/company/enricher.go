// Package company researches the lead's company with an LLM agent and
// matches it against CRM account records.
package company

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/enrich"
	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/resilience"
	"github.com/sells-group/lead-enrichment/pkg/anthropic"
	"github.com/sells-group/lead-enrichment/pkg/salesforce"
)

const researchSystemPrompt = `You are a B2B company research assistant for a logistics provider.
Given the details captured on an inbound lead, describe the company: legal name,
industry, approximate size, and whether it plausibly ships cargo. Respond with a
single JSON object:
{"name": string, "industry": string, "size": string, "shipsCargo": bool, "summary": string}
Use null for anything you cannot determine. Respond with JSON only.`

// Research is the LLM research outcome. An empty Research is still a
// well-formed payload; absence of data is not an error.
type Research struct {
	Name       string `json:"name,omitempty"`
	Industry   string `json:"industry,omitempty"`
	Size       string `json:"size,omitempty"`
	ShipsCargo bool   `json:"shipsCargo"`
	Summary    string `json:"summary,omitempty"`
}

// Match is a CRM account matched to the lead's company.
type Match struct {
	AccountID   string `json:"accountId"`
	AccountName string `json:"accountName,omitempty"`
	MatchedBy   string `json:"matchedBy,omitempty"` // "domain" or "name"
}

// Enrichment is the company stage payload. Match failure does not discard
// the research half; partial results are expected.
type Enrichment struct {
	Research *Research `json:"research,omitempty"`
	Match    *Match    `json:"match,omitempty"`
}

// Enricher is the company enrichment stage.
type Enricher struct {
	llm   anthropic.Client
	crm   salesforce.Client
	model string
	retry resilience.RetryConfig
}

// NewEnricher creates the company stage. crm may be nil when CRM matching is
// not configured; the stage then returns research only.
func NewEnricher(llm anthropic.Client, crm salesforce.Client, llmModel string, retry resilience.RetryConfig) *Enricher {
	return &Enricher{llm: llm, crm: crm, model: llmModel, retry: retry}
}

// Stage returns the stage name.
func (e *Enricher) Stage() model.StageName {
	return model.StageCompany
}

// Enrich runs research then match. A failed match records an error string on
// the result but keeps the research payload.
func (e *Enricher) Enrich(ctx context.Context, l *model.Lead) (*model.StageResult, error) {
	log := zap.L().With(zap.String("lead_id", l.ID), zap.String("company", l.Company.Name))

	payload := &Enrichment{}
	result := &model.StageResult{Stage: model.StageCompany, Payload: payload}

	research, err := e.research(ctx, l)
	if err != nil {
		// The research call itself failed after retries; nothing to match on.
		return nil, err
	}
	payload.Research = research

	if e.crm == nil {
		return result, nil
	}

	match, err := e.match(ctx, l, research)
	if err != nil {
		// Partial result: research stands, the match call failed.
		log.Warn("company match failed", zap.Error(err))
		result.Error = err.Error()
		return result, nil
	}
	payload.Match = match

	if match != nil {
		e.writeBack(ctx, l, match)
	}

	return result, nil
}

// research runs the LLM research agent with classified retries wrapping the
// individual call.
func (e *Enricher) research(ctx context.Context, l *model.Lead) (*Research, error) {
	prompt := buildResearchPrompt(l)

	return resilience.DoVal(ctx, e.retry, "company.research", func(ctx context.Context) (*Research, error) {
		resp, err := e.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: 1024,
			System:    researchSystemPrompt,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return nil, enrich.ClassifyLLMError(err)
		}

		var research Research
		if err := enrich.DecodeModelJSON(resp.Text(), &research); err != nil {
			return nil, err
		}
		return &research, nil
	})
}

// match looks the company up in the CRM by domain first, then by name.
func (e *Enricher) match(ctx context.Context, l *model.Lead, research *Research) (*Match, error) {
	type account struct {
		ID      string `json:"Id"`
		Name    string `json:"Name"`
		Website string `json:"Website"`
	}

	if domain := l.Company.Domain; domain != "" {
		var accounts []account
		soql := fmt.Sprintf("SELECT Id, Name, Website FROM Account WHERE Website LIKE '%%%s%%' LIMIT 1", soqlEscape(domain))
		if err := e.crm.Query(ctx, soql, &accounts); err != nil {
			return nil, err
		}
		if len(accounts) > 0 {
			return &Match{AccountID: accounts[0].ID, AccountName: accounts[0].Name, MatchedBy: "domain"}, nil
		}
	}

	name := l.Company.Name
	if name == "" && research != nil {
		name = research.Name
	}
	if name == "" {
		return nil, nil
	}

	var accounts []account
	soql := fmt.Sprintf("SELECT Id, Name, Website FROM Account WHERE Name = '%s' LIMIT 1", soqlEscape(name))
	if err := e.crm.Query(ctx, soql, &accounts); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &Match{AccountID: accounts[0].ID, AccountName: accounts[0].Name, MatchedBy: "name"}, nil
}

// writeBack stamps the matched account on the CRM lead record. Best-effort.
func (e *Enricher) writeBack(ctx context.Context, l *model.Lead, match *Match) {
	err := e.crm.UpdateOne(ctx, "Lead", l.ID, map[string]any{
		"Matched_Account__c": match.AccountID,
	})
	if err != nil {
		zap.L().Warn("CRM write-back failed",
			zap.String("lead_id", l.ID),
			zap.String("account_id", match.AccountID),
			zap.Error(err),
		)
	}
}

func buildResearchPrompt(l *model.Lead) string {
	var sb strings.Builder
	sb.WriteString("<Company>\n")
	writeField(&sb, "Name", l.Company.Name)
	writeField(&sb, "Domain", l.Company.Domain)
	writeField(&sb, "City", l.Company.City)
	writeField(&sb, "Country", l.Company.Country)
	writeField(&sb, "Phone", l.Company.Phone)
	writeField(&sb, "Representative", l.User.FullName())
	sb.WriteString("</Company>")
	return sb.String()
}

func writeField(sb *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(sb, "- %s: %s\n", label, value)
}

func soqlEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
