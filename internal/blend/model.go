// Package blend combines heuristic signal scores with a learned model
// into one calibrated likelihood and classifies it into confidence tiers.
package blend

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/transition-cli/internal/signal"
)

// Model is a pluggable scoring strategy. It accepts the fixed-shape
// feature vector described by signal.FeatureNames and returns a scalar
// in [0,1]. The blender depends only on this contract, never on a
// concrete model type.
type Model interface {
	Name() string
	Score(features []float64) float64
}

// RuleModel scores purely from the heuristic evidence already embedded in
// the feature vector. It is the default model and makes the blend reduce
// to the heuristic score.
type RuleModel struct{}

func (RuleModel) Name() string { return "rule" }

func (RuleModel) Score(features []float64) float64 {
	if len(features) != signal.FeatureLen {
		return 0
	}
	return signal.Calibrate(features[evidenceIndex])
}

// evidenceIndex is the position of the evidence sum in the feature vector.
var evidenceIndex = func() int {
	for i, name := range signal.FeatureNames() {
		if name == "evidence" {
			return i
		}
	}
	panic("blend: evidence feature missing from layout")
}()

// LogisticModel is a linear model over the feature vector squashed
// through a sigmoid. Coefficients are trained offline and loaded from a
// YAML file.
type LogisticModel struct {
	intercept float64
	coefs     []float64 // index-aligned with signal.FeatureNames
}

func (m *LogisticModel) Name() string { return "logistic" }

func (m *LogisticModel) Score(features []float64) float64 {
	if len(features) != len(m.coefs) {
		return 0
	}
	z := m.intercept
	for i, f := range features {
		z += m.coefs[i] * f
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

// coefficientsFile is the on-disk shape of a trained logistic model.
type coefficientsFile struct {
	Model struct {
		Intercept    float64            `yaml:"intercept"`
		Coefficients map[string]float64 `yaml:"coefficients"`
	} `yaml:"model"`
}

// LoadLogistic reads logistic model coefficients from a YAML file. Every
// coefficient name must be a known feature; missing features default to
// zero weight.
func LoadLogistic(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "blend: read coefficients %s", path)
	}

	var file coefficientsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "blend: parse coefficients")
	}

	names := signal.FeatureNames()
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}

	coefs := make([]float64, len(names))
	for name, c := range file.Model.Coefficients {
		i, ok := index[name]
		if !ok {
			return nil, eris.Errorf("blend: unknown feature %q in %s", name, path)
		}
		coefs[i] = c
	}

	return &LogisticModel{intercept: file.Model.Intercept, coefs: coefs}, nil
}
