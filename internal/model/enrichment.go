package model

// StageName identifies one of the fixed enrichment pipeline stages.
type StageName string

const (
	StageLead    StageName = "lead"
	StageCompany StageName = "company"
	StageCargo   StageName = "cargo"
)

// AllStages returns the full stage set in canonical order.
func AllStages() []StageName {
	return []StageName{StageLead, StageCompany, StageCargo}
}

// StageResult is the outcome of a single enrichment stage. Payload and Error
// are independent: a stage that found nothing still returns a well-formed
// payload, and a partially failed stage may carry both a payload and an
// error string.
type StageResult struct {
	Stage   StageName `json:"stage"`
	Payload any       `json:"payload,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Failed reports whether the stage recorded an error.
func (r *StageResult) Failed() bool {
	return r != nil && r.Error != ""
}

// PipelineResult aggregates the per-stage outcomes for one lead. A nil stage
// field means the stage was not requested for this event type; a non-nil
// result with Error set means the stage ran and failed.
type PipelineResult struct {
	Lead    *StageResult `json:"lead,omitempty"`
	Company *StageResult `json:"company,omitempty"`
	Cargo   *StageResult `json:"cargo,omitempty"`
}

// Get returns the result for a stage by name, or nil.
func (r *PipelineResult) Get(name StageName) *StageResult {
	switch name {
	case StageLead:
		return r.Lead
	case StageCompany:
		return r.Company
	case StageCargo:
		return r.Cargo
	default:
		return nil
	}
}

// Set records a stage result by name. Unknown names are dropped.
func (r *PipelineResult) Set(name StageName, res *StageResult) {
	switch name {
	case StageLead:
		r.Lead = res
	case StageCompany:
		r.Company = res
	case StageCargo:
		r.Cargo = res
	}
}

// Completed reports whether every requested stage produced a result without
// an error. The terminal "pipeline completed" event is only published when
// this holds.
func (r *PipelineResult) Completed(requested []StageName) bool {
	if len(requested) == 0 {
		return false
	}
	for _, name := range requested {
		res := r.Get(name)
		if res == nil || res.Failed() {
			return false
		}
	}
	return true
}
