package model

import "time"

// Confidence is the classification tier of a detection.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high_confidence"
	ConfidenceLikely Confidence = "likely_transition"
)

// SignalEntry is one fired signal inside an evidence bundle, carrying the
// literal source values that made it fire.
type SignalEntry struct {
	Name   string  `json:"name"`
	Value  string  `json:"value"`
	Weight float64 `json:"weight"`
}

// EvidenceBundle is the immutable audit record backing a detection. Any
// change to the inputs or to scoring produces a new bundle with a new hash.
type EvidenceBundle struct {
	Reason      string        `json:"reason_string"`
	Signals     []SignalEntry `json:"signals"`
	Score       float64       `json:"score"`
	Confidence  Confidence    `json:"confidence"`
	ContentHash string        `json:"content_hash"`
}

// Detection links a research award to a later contract believed to be its
// Phase III transition. At most one Detection exists per
// (award id, contract id) pair per run; emission is an idempotent upsert
// keyed by that pair.
type Detection struct {
	AwardID    string         `json:"award_id"`
	ContractID string         `json:"contract_id"`
	Score      float64        `json:"likelihood_score"`
	Confidence Confidence     `json:"confidence"`
	Evidence   EvidenceBundle `json:"evidence_bundle"`
	DetectedAt time.Time      `json:"detection_date"`
	RunID      string         `json:"run_id,omitempty"`
}

// AwardState tracks an award through the detection pipeline. Transitions
// are one-directional; Skipped and Failed are terminal.
type AwardState string

const (
	AwardPending    AwardState = "pending_candidates"
	AwardScoring    AwardState = "scoring"
	AwardClassified AwardState = "classified"
	AwardEmitted    AwardState = "emitted"
	AwardSkipped    AwardState = "skipped"
	AwardFailed     AwardState = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s AwardState) Terminal() bool {
	return s == AwardEmitted || s == AwardSkipped || s == AwardFailed
}
