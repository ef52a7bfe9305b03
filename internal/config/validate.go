package config

import (
	"fmt"
	"math"
	"sort"
)

// weightTolerance is how far the signal weight sum may drift from 1.0.
const weightTolerance = 0.01

// knownModels are the scoring model names the blender can construct.
var knownModels = map[string]bool{
	"rule":     true,
	"logistic": true,
}

// InvalidConfigurationError reports a threshold or weight outside its
// declared range. It is fatal at run start: the engine halts before
// processing any award.
type InvalidConfigurationError struct {
	Key    string
	Value  any
	Expect string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("config: %s = %v, expected %s", e.Key, e.Value, e.Expect)
}

// ValidateDetect checks a DetectConfig before a run. The first violation
// found is returned; keys are checked in a stable order so failures are
// reproducible.
func ValidateDetect(c DetectConfig) error {
	if c.HighConfidenceThreshold <= 0 || c.HighConfidenceThreshold > 1 {
		return &InvalidConfigurationError{
			Key: "detect.high_confidence_threshold", Value: c.HighConfidenceThreshold, Expect: "(0, 1]",
		}
	}
	if c.LikelyThreshold <= 0 || c.LikelyThreshold > 1 {
		return &InvalidConfigurationError{
			Key: "detect.likely_threshold", Value: c.LikelyThreshold, Expect: "(0, 1]",
		}
	}
	if c.LikelyThreshold >= c.HighConfidenceThreshold {
		return &InvalidConfigurationError{
			Key: "detect.likely_threshold", Value: c.LikelyThreshold,
			Expect: fmt.Sprintf("< high_confidence_threshold (%.2f)", c.HighConfidenceThreshold),
		}
	}
	if c.WindowMinDays < 0 {
		return &InvalidConfigurationError{
			Key: "detect.window_min_days", Value: c.WindowMinDays, Expect: ">= 0",
		}
	}
	if c.WindowMaxMonths <= 0 {
		return &InvalidConfigurationError{
			Key: "detect.window_max_months", Value: c.WindowMaxMonths, Expect: "> 0",
		}
	}
	if c.BlendAlpha < 0 || c.BlendAlpha > 1 {
		return &InvalidConfigurationError{
			Key: "detect.blend_alpha", Value: c.BlendAlpha, Expect: "[0, 1]",
		}
	}
	if c.Workers < 1 {
		return &InvalidConfigurationError{
			Key: "detect.workers", Value: c.Workers, Expect: ">= 1",
		}
	}
	if !knownModels[c.Model] {
		return &InvalidConfigurationError{
			Key: "detect.model", Value: c.Model, Expect: `one of "rule", "logistic"`,
		}
	}
	if c.Model == "logistic" && c.ModelCoefficients == "" {
		return &InvalidConfigurationError{
			Key: "detect.model_coefficients", Value: "", Expect: "path to coefficients file",
		}
	}

	if len(c.Weights) == 0 {
		return &InvalidConfigurationError{
			Key: "detect.weights", Value: nil, Expect: "non-empty signal weight map",
		}
	}

	names := make([]string, 0, len(c.Weights))
	for name := range c.Weights {
		names = append(names, name)
	}
	sort.Strings(names)

	var sum float64
	for _, name := range names {
		w := c.Weights[name]
		if w < 0 {
			return &InvalidConfigurationError{
				Key: "detect.weights." + name, Value: w, Expect: ">= 0",
			}
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return &InvalidConfigurationError{
			Key: "detect.weights", Value: sum, Expect: "weights summing to 1.0",
		}
	}

	return nil
}
