// Package signal extracts the discrete structural and textual signals
// that link a research award to a later contract, and calibrates them
// into a heuristic likelihood.
package signal

// Signal names, in evidence order (high weight class first).
const (
	SameAgency           = "same_agency"
	SoleSource           = "sole_source"
	DepartmentContinuity = "department_continuity"
	AuthorizedByStatute  = "authorized_by_statute"
	TopicReference       = "topic_reference"
	DescriptionMatch     = "description_match"
	NAICSPSCMatch        = "naics_psc_match"
)

// Names lists all signal names in canonical (weight class, name) order.
// The order fixes the feature vector shape consumed by scoring models and
// the ordering of evidence reason strings.
var Names = []string{
	SameAgency,
	SoleSource,
	DepartmentContinuity,
	AuthorizedByStatute,
	TopicReference,
	DescriptionMatch,
	NAICSPSCMatch,
}

// Class is a signal's weight class.
type Class int

const (
	ClassLow Class = iota
	ClassMedium
	ClassHigh
)

func (c Class) String() string {
	switch c {
	case ClassHigh:
		return "high"
	case ClassMedium:
		return "medium"
	default:
		return "low"
	}
}

// Classes maps each signal to its weight class. High-weight signals can
// carry a classification on their own in combination; low-weight signals
// are boosters only.
var Classes = map[string]Class{
	SameAgency:           ClassHigh,
	SoleSource:           ClassHigh,
	DepartmentContinuity: ClassMedium,
	AuthorizedByStatute:  ClassMedium,
	TopicReference:       ClassLow,
	DescriptionMatch:     ClassLow,
	NAICSPSCMatch:        ClassLow,
}

// Signal is one extracted signal with its fired flag, configured weight,
// partial score, and the literal source values that made it fire.
type Signal struct {
	Name    string  `json:"name"`
	Fired   bool    `json:"fired"`
	Weight  float64 `json:"weight"`
	Partial float64 `json:"partial"`
	Value   string  `json:"value,omitempty"`
}

// Vector is the full signal vector for one (award, contract) pair.
// Signals appear in the canonical Names order.
type Vector struct {
	Signals   []Signal `json:"signals"`
	Evidence  float64  `json:"evidence"`  // fired weight sum plus compounding
	Heuristic float64  `json:"heuristic"` // calibrated likelihood in [0,1]
}

// Fired returns the fired signals in canonical order.
func (v Vector) Fired() []Signal {
	var out []Signal
	for _, s := range v.Signals {
		if s.Fired {
			out = append(out, s)
		}
	}
	return out
}

// Get returns the named signal and whether it exists in the vector.
func (v Vector) Get(name string) (Signal, bool) {
	for _, s := range v.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return Signal{}, false
}

// FeatureLen is the fixed shape of the numeric feature vector handed to
// scoring models: one fired flag per signal, then the evidence sum, then
// the two chain features.
const FeatureLen = len(featureNames)

var featureNames = [...]string{
	SameAgency, SoleSource, DepartmentContinuity, AuthorizedByStatute,
	TopicReference, DescriptionMatch, NAICSPSCMatch,
	"evidence", "chain_child_count", "chain_value",
}

// FeatureNames returns the feature vector layout, index-aligned with
// Features output.
func FeatureNames() []string {
	return append([]string(nil), featureNames[:]...)
}
