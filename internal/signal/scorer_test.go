package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/transition-cli/internal/config"
	"github.com/sells-group/transition-cli/internal/idv"
	"github.com/sells-group/transition-cli/internal/model"
)

func testScorer() *Scorer {
	return NewScorer(config.DefaultWeights())
}

func baseAward() model.ResearchAward {
	return model.ResearchAward{
		AwardID:    "A-1",
		VendorID:   "v1",
		Phase:      model.PhaseII,
		Agency:     "Air Force",
		Department: "DOD",
		TopicCode:  "AF221-0017",
		NAICS:      "541715",
	}
}

func fired(t *testing.T, v Vector, name string) bool {
	t.Helper()
	s, ok := v.Get(name)
	require.True(t, ok)
	return s.Fired
}

func TestScoreSoleSourceFromFundingAgency(t *testing.T) {
	// sole-source follow-on from the same agency: both high-weight
	// signals plus the compound bonus
	contract := model.ContractVehicle{
		PIID:        "C-1",
		VendorID:    "v1",
		Agency:      "Air Force",
		Department:  "DOD",
		Competition: "Not Competed / Sole Source",
	}

	v := testScorer().Score(baseAward(), contract, idv.ChainAggregate{})

	assert.True(t, fired(t, v, SameAgency))
	assert.True(t, fired(t, v, SoleSource))
	assert.False(t, fired(t, v, DepartmentContinuity), "suppressed when agency matches")
	assert.InDelta(t, 0.70, v.Evidence, 1e-9)
	assert.InDelta(t, 0.90, v.Heuristic, 1e-9)
	assert.GreaterOrEqual(t, v.Heuristic, 0.80)
}

func TestScoreCrossServiceContinuity(t *testing.T) {
	// different sub-agency within the same department, competed, but the
	// description names the topic and industry codes align
	award := baseAward()
	contract := model.ContractVehicle{
		PIID:        "C-2",
		VendorID:    "v1",
		Agency:      "Navy",
		Department:  "DOD",
		NAICS:       "541714",
		Description: "Follow-on production under topic AF221-0017",
		Competition: "Full and Open Competition",
	}

	v := testScorer().Score(award, contract, idv.ChainAggregate{})

	assert.False(t, fired(t, v, SameAgency))
	assert.True(t, fired(t, v, DepartmentContinuity))
	assert.True(t, fired(t, v, TopicReference))
	assert.True(t, fired(t, v, NAICSPSCMatch))
	assert.InDelta(t, 0.25, v.Evidence, 1e-9)
	assert.InDelta(t, 0.68, v.Heuristic, 1e-9)
	assert.GreaterOrEqual(t, v.Heuristic, 0.65)
	assert.Less(t, v.Heuristic, 0.80)
}

func TestScoreSingleSignalsStayLow(t *testing.T) {
	tests := []struct {
		name     string
		contract model.ContractVehicle
		signal   string
		maxScore float64
	}{
		{
			"agency match alone",
			model.ContractVehicle{Agency: "Air Force", Competition: "Full and Open Competition"},
			SameAgency,
			0.80,
		},
		{
			"sole source alone",
			model.ContractVehicle{Agency: "GSA", Competition: "Sole Source"},
			SoleSource,
			0.80,
		},
		{
			"naics alone",
			model.ContractVehicle{Agency: "GSA", NAICS: "541713", Competition: "Full and Open Competition"},
			NAICSPSCMatch,
			0.65,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testScorer().Score(baseAward(), tt.contract, idv.ChainAggregate{})
			assert.True(t, fired(t, v, tt.signal))
			assert.Len(t, v.Fired(), 1)
			assert.Less(t, v.Heuristic, tt.maxScore)
		})
	}
}

func TestHighSignalWithBoostersStaysBelowHighTier(t *testing.T) {
	// one high-weight signal plus a medium and a low booster must stay
	// under the high-confidence threshold; only combinations with both
	// high-weight signals (or equivalent evidence) may cross it
	contract := model.ContractVehicle{
		PIID:        "C-9",
		VendorID:    "v1",
		Agency:      "Air Force",
		Competition: "Authorized by Statute",
		Description: "Follow-on production under topic AF221-0017",
	}

	v := testScorer().Score(baseAward(), contract, idv.ChainAggregate{})

	assert.True(t, fired(t, v, SameAgency))
	assert.True(t, fired(t, v, AuthorizedByStatute))
	assert.True(t, fired(t, v, TopicReference))
	assert.Len(t, v.Fired(), 3)
	assert.InDelta(t, 0.45, v.Evidence, 1e-9)
	assert.Less(t, v.Heuristic, 0.80)
}

func TestStatuteRequiresTextualTie(t *testing.T) {
	s := testScorer()

	bare := model.ContractVehicle{
		Agency:      "GSA",
		Competition: "Not Competed - Authorized by Statute",
	}
	v := s.Score(baseAward(), bare, idv.ChainAggregate{})
	assert.False(t, fired(t, v, AuthorizedByStatute), "statute literal alone is not credited")

	tied := bare
	tied.Description = "SBIR Phase III production follow-on"
	v = s.Score(baseAward(), tied, idv.ChainAggregate{})
	assert.True(t, fired(t, v, AuthorizedByStatute))
	assert.True(t, fired(t, v, DescriptionMatch))
}

func TestDescriptionMatchMentions(t *testing.T) {
	s := testScorer()

	v := s.Score(baseAward(), model.ContractVehicle{Description: "Continuation of STTR effort"}, idv.ChainAggregate{})
	sig, ok := v.Get(DescriptionMatch)
	require.True(t, ok)
	assert.True(t, sig.Fired)
	assert.Equal(t, "mention=STTR", sig.Value)
}

func TestResearchPSCFires(t *testing.T) {
	v := testScorer().Score(baseAward(), model.ContractVehicle{PSC: "AC13"}, idv.ChainAggregate{})
	assert.True(t, fired(t, v, NAICSPSCMatch))
}

func TestEvidenceClampedAtOne(t *testing.T) {
	// every signal fires plus the compound bonus; evidence must not
	// exceed 1.0
	award := baseAward()
	contract := model.ContractVehicle{
		Agency:      "Air Force",
		Department:  "DOD",
		NAICS:       "541715",
		PSC:         "AC13",
		Description: "SBIR Phase III follow-on under topic AF221-0017",
		Competition: "Sole Source - Authorized by Statute",
	}

	v := testScorer().Score(award, contract, idv.ChainAggregate{})
	assert.LessOrEqual(t, v.Evidence, 1.0)
	assert.LessOrEqual(t, v.Heuristic, 1.0)
}

func TestCalibrateMonotonic(t *testing.T) {
	prev := Calibrate(0)
	for e := 0.01; e <= 1.0; e += 0.01 {
		cur := Calibrate(e)
		assert.GreaterOrEqual(t, cur, prev, "calibration must be monotonic at %f", e)
		prev = cur
	}
	assert.Equal(t, 0.0, Calibrate(0))
	assert.Equal(t, 0.0, Calibrate(-1))
	assert.Equal(t, 1.0, Calibrate(1))
	assert.Equal(t, 1.0, Calibrate(2))
}

func TestFeaturesShape(t *testing.T) {
	v := testScorer().Score(baseAward(), model.ContractVehicle{Agency: "Air Force"}, idv.ChainAggregate{})

	feats := Features(v, idv.ChainAggregate{ChildCount: 5, TotalValue: 1_000_000})
	require.Len(t, feats, FeatureLen)
	require.Len(t, FeatureNames(), FeatureLen)

	// FeatureLen must stay a constant; models size fixed buffers with it.
	var fixed [FeatureLen]float64
	require.Len(t, feats, len(fixed))

	// fired flags are 0/1 in canonical order; same_agency is index 0
	assert.Equal(t, 1.0, feats[0])
	assert.Equal(t, 0.0, feats[1])

	// evidence then chain features
	assert.Equal(t, v.Evidence, feats[7])
	assert.Equal(t, 0.5, feats[8])
	assert.InDelta(t, 6.0/7.0, feats[9], 1e-9)
}

func TestValueFeature(t *testing.T) {
	assert.Equal(t, 0.0, valueFeature(0))
	assert.Equal(t, 0.0, valueFeature(-5))
	assert.InDelta(t, 6.0/7.0, valueFeature(1_000_000), 1e-9)
	assert.Equal(t, 1.0, valueFeature(100_000_000))
}

func TestUnweightedSignalScoresZero(t *testing.T) {
	s := NewScorer(map[string]float64{SameAgency: 1.0})

	contract := model.ContractVehicle{Agency: "Air Force", Competition: "Sole Source"}
	v := s.Score(baseAward(), contract, idv.ChainAggregate{})

	sole, ok := v.Get(SoleSource)
	require.True(t, ok)
	assert.True(t, sole.Fired)
	assert.Equal(t, 0.0, sole.Weight)
	// evidence: 1.0 (same_agency) + 0.0 + compound 0.10, clamped to 1.0
	assert.Equal(t, 1.0, v.Evidence)
}
