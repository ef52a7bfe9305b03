package signal

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/transition-cli/internal/idv"
	"github.com/sells-group/transition-cli/internal/model"
)

// compoundBonus is added to the evidence sum when both high-weight
// signals fire together: a sole-source award from the funding agency is
// stronger than the two signals independently.
const compoundBonus = 0.10

// calibration maps the raw evidence sum to a likelihood. Anchors come
// from backtesting against administratively tagged transitions; the
// curve is monotonic, so more evidence never lowers the score.
var calibration = []struct{ evidence, score float64 }{
	{0.00, 0.00},
	{0.15, 0.45},
	{0.25, 0.68},
	{0.40, 0.76},
	{0.70, 0.90},
	{1.00, 1.00},
}

// Calibrate interpolates the calibration curve at the given evidence sum.
func Calibrate(evidence float64) float64 {
	if evidence <= 0 {
		return 0
	}
	for i := 1; i < len(calibration); i++ {
		lo, hi := calibration[i-1], calibration[i]
		if evidence <= hi.evidence {
			frac := (evidence - lo.evidence) / (hi.evidence - lo.evidence)
			return lo.score + frac*(hi.score-lo.score)
		}
	}
	return 1.0
}

// Scorer extracts signals for (award, contract) pairs using configured
// weights. It holds no per-pair state and is safe for concurrent use.
type Scorer struct {
	weights map[string]float64
}

// NewScorer returns a Scorer over the given signal weight map. Signals
// absent from the map score zero.
func NewScorer(weights map[string]float64) *Scorer {
	w := make(map[string]float64, len(weights))
	for name, v := range weights {
		w[name] = v
	}
	return &Scorer{weights: w}
}

// Score computes the signal vector for one candidate pair. The chain
// aggregate supplies vehicle-level context for the feature vector; a zero
// value is valid for contracts outside any IDV chain.
func (s *Scorer) Score(award model.ResearchAward, contract model.ContractVehicle, chain idv.ChainAggregate) Vector {
	desc := strings.ToLower(contract.Description)

	sameAgency := fire(
		award.Agency != "" && strings.EqualFold(award.Agency, contract.Agency),
		fmt.Sprintf("award_agency=%s contract_agency=%s", award.Agency, contract.Agency),
	)

	soleSource := fire(
		contract.SoleSource(),
		fmt.Sprintf("competition=%s", contract.Competition),
	)

	// Cross-service continuity: same parent department, different
	// sub-agency. Suppressed when same_agency already fired.
	deptContinuity := fire(
		!sameAgency.fired &&
			award.Department != "" &&
			strings.EqualFold(award.Department, contract.Department),
		fmt.Sprintf("award_department=%s contract_department=%s", award.Department, contract.Department),
	)

	topicRef := fire(
		award.TopicCode != "" && strings.Contains(desc, strings.ToLower(award.TopicCode)),
		fmt.Sprintf("topic_code=%s", award.TopicCode),
	)

	descMatch := fire(
		strings.Contains(desc, "sbir") || strings.Contains(desc, "sttr"),
		programMention(desc),
	)

	// The statute literal appears on many awards unrelated to research
	// follow-ons; require a textual tie to the award before crediting it.
	statute := fire(
		contract.AuthorizedByStatute() && (topicRef.fired || descMatch.fired),
		fmt.Sprintf("competition=%s", contract.Competition),
	)

	naicsPSC := fire(
		naicsAligned(award.NAICS, contract.NAICS) || researchPSC(contract.PSC),
		fmt.Sprintf("award_naics=%s contract_naics=%s psc=%s", award.NAICS, contract.NAICS, contract.PSC),
	)

	fires := map[string]firing{
		SameAgency:           sameAgency,
		SoleSource:           soleSource,
		DepartmentContinuity: deptContinuity,
		AuthorizedByStatute:  statute,
		TopicReference:       topicRef,
		DescriptionMatch:     descMatch,
		NAICSPSCMatch:        naicsPSC,
	}

	v := Vector{Signals: make([]Signal, 0, len(Names))}
	for _, name := range Names {
		f := fires[name]
		sig := Signal{Name: name, Fired: f.fired, Weight: s.weights[name]}
		if f.fired {
			sig.Partial = sig.Weight
			sig.Value = f.value
			v.Evidence += sig.Partial
		}
		v.Signals = append(v.Signals, sig)
	}

	if sameAgency.fired && soleSource.fired {
		v.Evidence += compoundBonus
	}
	v.Evidence = math.Min(v.Evidence, 1.0)
	v.Heuristic = Calibrate(v.Evidence)

	return v
}

// Features builds the fixed-shape numeric feature vector for a pair,
// index-aligned with FeatureNames.
func Features(v Vector, chain idv.ChainAggregate) []float64 {
	feats := make([]float64, 0, FeatureLen)
	for _, s := range v.Signals {
		if s.Fired {
			feats = append(feats, 1)
		} else {
			feats = append(feats, 0)
		}
	}
	feats = append(feats, v.Evidence)
	feats = append(feats, math.Min(float64(chain.ChildCount)/10.0, 1.0))
	feats = append(feats, valueFeature(chain.TotalValue))
	return feats
}

// valueFeature squashes chain dollar value into [0,1] on a log scale;
// $10M and above saturates.
func valueFeature(usd float64) float64 {
	if usd <= 0 {
		return 0
	}
	return math.Min(math.Log10(usd)/7.0, 1.0)
}

type firing struct {
	fired bool
	value string
}

func fire(cond bool, value string) firing {
	if !cond {
		return firing{}
	}
	return firing{fired: true, value: value}
}

func programMention(desc string) string {
	switch {
	case strings.Contains(desc, "sbir"):
		return "mention=SBIR"
	case strings.Contains(desc, "sttr"):
		return "mention=STTR"
	}
	return ""
}

// naicsAligned compares industry codes at the 4-digit industry-group
// level, where research domains remain comparable across revisions.
func naicsAligned(awardNAICS, contractNAICS string) bool {
	if len(awardNAICS) < 4 || len(contractNAICS) < 4 {
		return false
	}
	return awardNAICS[:4] == contractNAICS[:4]
}

// researchPSC reports whether the product/service code is in the R&D
// range (PSC codes beginning with "A").
func researchPSC(psc string) bool {
	return len(psc) > 0 && (psc[0] == 'A' || psc[0] == 'a')
}
