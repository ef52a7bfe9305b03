package blend

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/transition-cli/internal/config"
	"github.com/sells-group/transition-cli/internal/idv"
	"github.com/sells-group/transition-cli/internal/model"
	"github.com/sells-group/transition-cli/internal/signal"
)

// Blender combines the heuristic signal score with the model's output and
// classifies the result. Thresholds and the blend weight come from the
// run's configuration snapshot.
type Blender struct {
	model        Model
	alpha        float64 // model share of the blend
	highThresh   float64
	likelyThresh float64
}

// NewBlender builds a Blender from the detect configuration, constructing
// the configured model. Configuration must already be validated.
func NewBlender(cfg config.DetectConfig) (*Blender, error) {
	var m Model
	switch cfg.Model {
	case "rule":
		m = RuleModel{}
	case "logistic":
		lm, err := LoadLogistic(cfg.ModelCoefficients)
		if err != nil {
			return nil, err
		}
		m = lm
	default:
		return nil, eris.Errorf("blend: unknown model %q", cfg.Model)
	}

	zap.L().Info("blend: model loaded",
		zap.String("model", m.Name()),
		zap.Float64("alpha", cfg.BlendAlpha),
	)

	return &Blender{
		model:        m,
		alpha:        cfg.BlendAlpha,
		highThresh:   cfg.HighConfidenceThreshold,
		likelyThresh: cfg.LikelyThreshold,
	}, nil
}

// ModelName returns the name of the active scoring model.
func (b *Blender) ModelName() string { return b.model.Name() }

// Blend produces the final likelihood for a pair: a convex combination of
// the heuristic score and the model output over the same features. Both
// inputs live in [0,1], so the result does too; it is clamped anyway
// against model implementations that drift out of range.
func (b *Blender) Blend(v signal.Vector, chain idv.ChainAggregate) float64 {
	features := signal.Features(v, chain)
	modelScore := clamp01(b.model.Score(features))
	score := (1-b.alpha)*v.Heuristic + b.alpha*modelScore
	return clamp01(score)
}

// Classify maps a score to its confidence tier. ok is false when the
// score is below the detection floor and no record should be emitted.
func (b *Blender) Classify(score float64) (tier model.Confidence, ok bool) {
	switch {
	case score >= b.highThresh:
		return model.ConfidenceHigh, true
	case score >= b.likelyThresh:
		return model.ConfidenceLikely, true
	}
	return "", false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
