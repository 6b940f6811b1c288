// Package enrich holds helpers shared by the stage enrichers.
package enrich

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment/internal/resilience"
	"github.com/sells-group/lead-enrichment/pkg/anthropic"
)

// ClassifyLLMError maps an Anthropic API failure onto the retry taxonomy.
// Rate limits and server-side failures are retryable; auth and permission
// errors propagate as permanent.
func ClassifyLLMError(err error) error {
	if err == nil {
		return nil
	}
	switch sc := anthropic.StatusCode(err); {
	case sc == 429 || sc == 408 || (sc >= 500 && sc < 600):
		return resilience.NewRateLimitError(err)
	default:
		return err
	}
}

// DecodeModelJSON parses a model completion into out. Markdown code fences
// are tolerated; anything that still fails to parse is reported as malformed
// output so the retry policy backs off linearly.
func DecodeModelJSON(text string, out any) error {
	cleaned := strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(cleaned, "```json"); ok {
		cleaned = after
	} else if after, ok := strings.CutPrefix(cleaned, "```"); ok {
		cleaned = after
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")

	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return resilience.NewMalformedOutputError(eris.Wrap(err, "enrich: invalid JSON from model"))
	}
	return nil
}
