package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceSystem identifies events published by this service. The listener uses
// it to skip its own events when topic and subscription overlap.
const SourceSystem = "lead-enrichment"

// EventVersion is stamped on every outgoing envelope.
const EventVersion = "1.0"

// EventType enumerates the message types accepted from the bus plus the
// derived types this service publishes.
type EventType string

const (
	// Inbound types (the closed accepted set).
	EventLeadCreated   EventType = "lead.created"
	EventEnrichLead    EventType = "lead.enrich.lead"
	EventEnrichCompany EventType = "lead.enrich.company"
	EventEnrichCargo   EventType = "lead.enrich.cargo"

	// Outbound types.
	EventLeadEnriched      EventType = "lead.enriched.lead"
	EventCompanyEnriched   EventType = "lead.enriched.company"
	EventCargoEnriched     EventType = "lead.enriched.cargo"
	EventPipelineCompleted EventType = "lead.enriched.completed"
)

// ParseEventType maps an inbound eventType string onto the closed set of
// accepted types. ok is false for anything outside the contract; callers
// must dead-letter those messages rather than ignore them.
func ParseEventType(s string) (EventType, bool) {
	switch EventType(s) {
	case EventLeadCreated, EventEnrichLead, EventEnrichCompany, EventEnrichCargo:
		return EventType(s), true
	default:
		return "", false
	}
}

// Stages returns the pipeline stages implied by an inbound event type.
// The full "lead created" event runs everything; targeted types run one stage.
func (t EventType) Stages() []StageName {
	switch t {
	case EventLeadCreated:
		return []StageName{StageLead, StageCompany, StageCargo}
	case EventEnrichLead:
		return []StageName{StageLead}
	case EventEnrichCompany:
		return []StageName{StageCompany}
	case EventEnrichCargo:
		return []StageName{StageCargo}
	default:
		return nil
	}
}

// EnrichedEventType returns the outbound event type announcing a completed
// stage.
func EnrichedEventType(stage StageName) EventType {
	switch stage {
	case StageLead:
		return EventLeadEnriched
	case StageCompany:
		return EventCompanyEnriched
	case StageCargo:
		return EventCargoEnriched
	default:
		return ""
	}
}

// IncomingEvent is the wire envelope consumed from the subscription.
type IncomingEvent struct {
	EventID              string         `json:"eventId"`
	EventType            string         `json:"eventType"`
	EventVersion         string         `json:"eventVersion,omitempty"`
	EventTimestamp       time.Time      `json:"eventTimestamp,omitzero"`
	SourceSystem         string         `json:"sourceSystem"`
	SourceSystemRecordID string         `json:"sourceSystemRecordId,omitempty"`
	CorrelationID        string         `json:"correlationId,omitempty"`
	Data                 map[string]any `json:"data"`
}

// OutgoingEvent is the envelope this service publishes after enrichment.
type OutgoingEvent struct {
	EventID        string         `json:"eventId"`
	EventType      EventType      `json:"eventType"`
	EventVersion   string         `json:"eventVersion"`
	EventTimestamp time.Time      `json:"eventTimestamp"`
	SourceSystem   string         `json:"sourceSystem"`
	CorrelationID  string         `json:"correlationId,omitempty"`
	Data           map[string]any `json:"data"`
}

// NewOutgoingEvent builds an envelope with a freshly generated, globally
// unique event ID. Retried messages therefore publish under new IDs;
// downstream consumers de-duplicate by correlationId if they need to.
func NewOutgoingEvent(t EventType, correlationID string, data map[string]any) OutgoingEvent {
	return OutgoingEvent{
		EventID:        uuid.NewString(),
		EventType:      t,
		EventVersion:   EventVersion,
		EventTimestamp: time.Now().UTC(),
		SourceSystem:   SourceSystem,
		CorrelationID:  correlationID,
		Data:           data,
	}
}
