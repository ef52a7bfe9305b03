package model

import (
	"encoding/json"
	"time"
)

// Phase is the research program phase of an award.
type Phase string

const (
	PhaseI  Phase = "I"
	PhaseII Phase = "II"
)

// ResearchAward is a grant-phase award as supplied by upstream ingestion.
// Immutable once ingested; dates arrive already parsed.
type ResearchAward struct {
	AwardID        string          `json:"award_id"`
	VendorID       string          `json:"vendor_id"`
	Phase          Phase           `json:"phase"`
	Agency         string          `json:"agency"`
	Department     string          `json:"department"`
	TopicCode      string          `json:"topic_code"`
	NAICS          string          `json:"naics"`
	AwardDate      time.Time       `json:"award_date"`
	CompletionDate time.Time       `json:"completion_date"`
	RawPayload     json.RawMessage `json:"raw_payload,omitempty"`
}

// FiscalYear returns the US federal fiscal year of the award date
// (FY starts October 1 of the prior calendar year).
func FiscalYear(t time.Time) int {
	if t.Month() >= time.October {
		return t.Year() + 1
	}
	return t.Year()
}
