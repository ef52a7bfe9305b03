package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Detect DetectConfig `yaml:"detect" mapstructure:"detect"`
	Report ReportConfig `yaml:"report" mapstructure:"report"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DetectConfig is the immutable configuration snapshot consumed by one
// detection run: classification thresholds, signal weights, the candidate
// window bounds, and the identity of the pluggable scoring model.
type DetectConfig struct {
	HighConfidenceThreshold float64            `yaml:"high_confidence_threshold" mapstructure:"high_confidence_threshold"`
	LikelyThreshold         float64            `yaml:"likely_threshold" mapstructure:"likely_threshold"`
	WindowMinDays           int                `yaml:"window_min_days" mapstructure:"window_min_days"`
	WindowMaxMonths         int                `yaml:"window_max_months" mapstructure:"window_max_months"`
	BlendAlpha              float64            `yaml:"blend_alpha" mapstructure:"blend_alpha"`
	Workers                 int                `yaml:"workers" mapstructure:"workers"`
	Model                   string             `yaml:"model" mapstructure:"model"`
	ModelCoefficients       string             `yaml:"model_coefficients" mapstructure:"model_coefficients"`
	Weights                 map[string]float64 `yaml:"weights" mapstructure:"weights"`
}

// ReportConfig configures summary export.
type ReportConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// DefaultWeights returns the signal weights used when the config file
// carries none. Weights sum to 1.0.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"same_agency":           0.30,
		"sole_source":           0.30,
		"department_continuity": 0.15,
		"authorized_by_statute": 0.10,
		"topic_reference":       0.05,
		"description_match":     0.05,
		"naics_psc_match":       0.05,
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRANSITION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("detect.high_confidence_threshold", 0.80)
	v.SetDefault("detect.likely_threshold", 0.65)
	v.SetDefault("detect.window_min_days", 1)
	v.SetDefault("detect.window_max_months", 24)
	v.SetDefault("detect.blend_alpha", 0.35)
	v.SetDefault("detect.workers", 4)
	v.SetDefault("detect.model", "rule")
	v.SetDefault("report.format", "csv")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Detect.Weights) == 0 {
		cfg.Detect.Weights = DefaultWeights()
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
