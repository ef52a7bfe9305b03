package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDetect() DetectConfig {
	return DetectConfig{
		HighConfidenceThreshold: 0.80,
		LikelyThreshold:         0.65,
		WindowMinDays:           1,
		WindowMaxMonths:         24,
		BlendAlpha:              0.35,
		Workers:                 4,
		Model:                   "rule",
		Weights:                 DefaultWeights(),
	}
}

func TestValidateDetectOK(t *testing.T) {
	require.NoError(t, ValidateDetect(validDetect()))
}

func TestValidateDetect(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DetectConfig)
		wantKey string
	}{
		{
			"high threshold zero",
			func(c *DetectConfig) { c.HighConfidenceThreshold = 0 },
			"detect.high_confidence_threshold",
		},
		{
			"high threshold above one",
			func(c *DetectConfig) { c.HighConfidenceThreshold = 1.2 },
			"detect.high_confidence_threshold",
		},
		{
			"likely threshold negative",
			func(c *DetectConfig) { c.LikelyThreshold = -0.1 },
			"detect.likely_threshold",
		},
		{
			"likely not below high",
			func(c *DetectConfig) { c.LikelyThreshold = 0.80 },
			"detect.likely_threshold",
		},
		{
			"negative window min",
			func(c *DetectConfig) { c.WindowMinDays = -1 },
			"detect.window_min_days",
		},
		{
			"zero window max",
			func(c *DetectConfig) { c.WindowMaxMonths = 0 },
			"detect.window_max_months",
		},
		{
			"alpha above one",
			func(c *DetectConfig) { c.BlendAlpha = 1.5 },
			"detect.blend_alpha",
		},
		{
			"zero workers",
			func(c *DetectConfig) { c.Workers = 0 },
			"detect.workers",
		},
		{
			"unknown model",
			func(c *DetectConfig) { c.Model = "xgboost" },
			"detect.model",
		},
		{
			"logistic without coefficients",
			func(c *DetectConfig) { c.Model = "logistic" },
			"detect.model_coefficients",
		},
		{
			"empty weights",
			func(c *DetectConfig) { c.Weights = nil },
			"detect.weights",
		},
		{
			"negative weight",
			func(c *DetectConfig) { c.Weights["same_agency"] = -0.30 },
			"detect.weights.same_agency",
		},
		{
			"weights do not sum to one",
			func(c *DetectConfig) { c.Weights = map[string]float64{"same_agency": 0.5} },
			"detect.weights",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validDetect()
			tt.mutate(&c)

			err := ValidateDetect(c)
			require.Error(t, err)

			var cfgErr *InvalidConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestValidateDetectWeightTolerance(t *testing.T) {
	c := validDetect()
	c.Weights = map[string]float64{
		"same_agency": 0.5,
		"sole_source": 0.505,
	}
	// 1.005 is inside the ±0.01 tolerance
	assert.NoError(t, ValidateDetect(c))

	c.Weights["sole_source"] = 0.52
	assert.Error(t, ValidateDetect(c))
}
