// Package archive buffers enriched events and writes them to the analytics
// warehouse in batches.
package archive

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment/internal/model"
)

// Row is one archived event. Column names follow the warehouse table.
type Row struct {
	EventID         string
	EventType       string
	EventTimestamp  time.Time
	LeadID          string
	Email           string
	Status          string
	SourceName      string
	LeadSource      string
	Topic           string
	ReferenceNumber string
	Payload         []byte // JSON of the enriched event body
}

// BuildRow flattens an event plus its enriched body into a warehouse row.
// The body is archived verbatim as JSON so schema drift upstream never
// loses data.
func BuildRow(evt *model.IncomingEvent, body map[string]any) (Row, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Row{}, eris.Wrap(err, "archive: marshal event body")
	}

	ts := evt.EventTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return Row{
		EventID:         evt.EventID,
		EventType:       evt.EventType,
		EventTimestamp:  ts,
		LeadID:          str(body, "crmLeadId"),
		Email:           str(body, "leadEmail"),
		Status:          str(body, "leadStatus"),
		SourceName:      str(body, "sourceName"),
		LeadSource:      str(body, "leadSource"),
		Topic:           str(body, "leadTopic"),
		ReferenceNumber: str(body, "leadReferenceNumber"),
		Payload:         payload,
	}, nil
}

func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
