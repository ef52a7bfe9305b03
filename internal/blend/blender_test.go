package blend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/transition-cli/internal/config"
	"github.com/sells-group/transition-cli/internal/idv"
	"github.com/sells-group/transition-cli/internal/model"
	"github.com/sells-group/transition-cli/internal/signal"
)

func ruleConfig() config.DetectConfig {
	return config.DetectConfig{
		HighConfidenceThreshold: 0.80,
		LikelyThreshold:         0.65,
		BlendAlpha:              0.35,
		Model:                   "rule",
		Weights:                 config.DefaultWeights(),
	}
}

func vectorWithEvidence(evidence float64) signal.Vector {
	v := signal.Vector{Evidence: evidence, Heuristic: signal.Calibrate(evidence)}
	for _, name := range signal.Names {
		v.Signals = append(v.Signals, signal.Signal{Name: name})
	}
	return v
}

func TestNewBlenderModels(t *testing.T) {
	b, err := NewBlender(ruleConfig())
	require.NoError(t, err)
	assert.Equal(t, "rule", b.ModelName())

	cfg := ruleConfig()
	cfg.Model = "nonsense"
	_, err = NewBlender(cfg)
	assert.Error(t, err)

	cfg.Model = "logistic"
	cfg.ModelCoefficients = "/does/not/exist.yaml"
	_, err = NewBlender(cfg)
	assert.Error(t, err)
}

func TestRuleModelBlendEqualsHeuristic(t *testing.T) {
	// the rule model reproduces the calibrated heuristic, so the blend is
	// independent of alpha
	for _, alpha := range []float64{0, 0.35, 1.0} {
		cfg := ruleConfig()
		cfg.BlendAlpha = alpha
		b, err := NewBlender(cfg)
		require.NoError(t, err)

		v := vectorWithEvidence(0.70)
		score := b.Blend(v, idv.ChainAggregate{})
		assert.InDelta(t, v.Heuristic, score, 1e-9, "alpha=%f", alpha)
	}
}

func TestClassify(t *testing.T) {
	b, err := NewBlender(ruleConfig())
	require.NoError(t, err)

	tests := []struct {
		name     string
		score    float64
		wantTier model.Confidence
		wantOK   bool
	}{
		{"high at threshold", 0.80, model.ConfidenceHigh, true},
		{"high above", 0.95, model.ConfidenceHigh, true},
		{"likely at threshold", 0.65, model.ConfidenceLikely, true},
		{"likely mid band", 0.72, model.ConfidenceLikely, true},
		{"below floor", 0.64, "", false},
		{"zero", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, ok := b.Classify(tt.score)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTier, tier)
		})
	}
}

func TestBlendClampsModelOutput(t *testing.T) {
	cfg := ruleConfig()
	cfg.BlendAlpha = 1.0
	b, err := NewBlender(cfg)
	require.NoError(t, err)
	b.model = wildModel{}

	v := vectorWithEvidence(0.70)
	score := b.Blend(v, idv.ChainAggregate{})
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

type wildModel struct{}

func (wildModel) Name() string { return "wild" }

func (wildModel) Score(_ []float64) float64 { return 7.5 }

func TestLoadLogistic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coefficients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  intercept: -2.0
  coefficients:
    same_agency: 1.5
    sole_source: 1.5
    evidence: 2.0
`), 0o644))

	m, err := LoadLogistic(path)
	require.NoError(t, err)
	assert.Equal(t, "logistic", m.Name())

	// all-zero features: sigmoid(intercept)
	feats := make([]float64, signal.FeatureLen)
	assert.InDelta(t, 0.1192, m.Score(feats), 0.001)

	// firing the weighted features pushes the score up
	feats[0] = 1 // same_agency
	feats[1] = 1 // sole_source
	feats[7] = 0.70
	high := m.Score(feats)
	assert.Greater(t, high, 0.9)
}

func TestLoadLogisticUnknownFeature(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  intercept: 0
  coefficients:
    not_a_feature: 1.0
`), 0o644))

	_, err := LoadLogistic(path)
	assert.Error(t, err)
}

func TestLogisticScoreShapeMismatch(t *testing.T) {
	m := &LogisticModel{coefs: make([]float64, signal.FeatureLen)}
	assert.Equal(t, 0.0, m.Score([]float64{1, 2}))
}
