package config

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/service/rating"
	"github.com/secmon-lab/mnemosyne/pkg/usecase"
)

// Duration is a time.Duration written as a Go duration string, e.g. "90m"
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return goerr.Wrap(ErrInvalidConfig, "invalid duration", goerr.V("value", string(text)))
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// AppConfig holds the tunable constants loaded from the TOML file
type AppConfig struct {
	Scoring   ScoringSection   `toml:"scoring"`
	Retrieval RetrievalSection `toml:"retrieval"`
	Rating    RatingSection    `toml:"rating"`
}

// ScoringSection is the memory retrieval blend
type ScoringSection struct {
	RecencyWeight    float64  `toml:"recency_weight"`
	ImportanceWeight float64  `toml:"importance_weight"`
	RelevanceWeight  float64  `toml:"relevance_weight"`
	HalfLife         Duration `toml:"half_life"`
}

// RetrievalSection holds the retrieval orchestrator defaults
type RetrievalSection struct {
	TopKMemories        int      `toml:"top_k_memories"`
	TopKCases           int      `toml:"top_k_cases"`
	TopKRules           int      `toml:"top_k_rules"`
	MinConfidence       float64  `toml:"min_confidence"`
	Timeout             Duration `toml:"timeout"`
	RuleCandidateFactor int      `toml:"rule_candidate_factor"`
}

// RatingSection configures the importance rater
type RatingSection struct {
	Timeout  Duration `toml:"timeout"`
	Fallback float64  `toml:"fallback"`
}

// DefaultAppConfig returns the built-in defaults. Values missing from a TOML
// file keep these.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Scoring: ScoringSection{
			RecencyWeight:    model.DefaultRecencyWeight,
			ImportanceWeight: model.DefaultImportanceWeight,
			RelevanceWeight:  model.DefaultRelevanceWeight,
			HalfLife:         Duration(model.DefaultHalfLife),
		},
		Retrieval: RetrievalSection{
			TopKMemories:        usecase.DefaultTopKMemories,
			TopKCases:           usecase.DefaultTopKCases,
			TopKRules:           usecase.DefaultTopKRules,
			MinConfidence:       usecase.DefaultMinConfidence,
			Timeout:             Duration(usecase.DefaultRetrievalTimeout),
			RuleCandidateFactor: usecase.DefaultRuleCandidateFactor,
		},
		Rating: RatingSection{
			Timeout:  Duration(rating.DefaultTimeout),
			Fallback: rating.DefaultFallback,
		},
	}
}

// ScoringConfig converts the scoring section to the domain form
func (a *AppConfig) ScoringConfig() model.ScoringConfig {
	return model.ScoringConfig{
		RecencyWeight:    a.Scoring.RecencyWeight,
		ImportanceWeight: a.Scoring.ImportanceWeight,
		RelevanceWeight:  a.Scoring.RelevanceWeight,
		HalfLife:         time.Duration(a.Scoring.HalfLife),
	}
}

// RetrieveDefaults returns a retrieval request carrying the configured top-k
// values and minimum confidence
func (a *AppConfig) RetrieveDefaults() usecase.RetrieveContextInput {
	return usecase.RetrieveContextInput{
		TopKMemories:  a.Retrieval.TopKMemories,
		TopKCases:     a.Retrieval.TopKCases,
		TopKRules:     a.Retrieval.TopKRules,
		MinConfidence: a.Retrieval.MinConfidence,
	}
}

// UseCaseOptions returns the usecase options derived from the file
func (a *AppConfig) UseCaseOptions() []usecase.Option {
	return []usecase.Option{
		usecase.WithScoringConfig(a.ScoringConfig()),
		usecase.WithRetrievalTimeout(time.Duration(a.Retrieval.Timeout)),
		usecase.WithRuleCandidateFactor(a.Retrieval.RuleCandidateFactor),
	}
}

// RatingOptions returns the rater options derived from the file
func (a *AppConfig) RatingOptions() []rating.Option {
	return []rating.Option{
		rating.WithTimeout(time.Duration(a.Rating.Timeout)),
		rating.WithFallback(a.Rating.Fallback),
	}
}

// Validate checks if the AppConfig is valid
func (a *AppConfig) Validate() error {
	if err := a.ScoringConfig().Validate(); err != nil {
		return goerr.Wrap(ErrInvalidConfig, "invalid [scoring] section", goerr.V("reason", err.Error()))
	}

	r := a.Retrieval
	if r.TopKMemories < 0 || r.TopKCases < 0 || r.TopKRules < 0 {
		return goerr.Wrap(ErrInvalidConfig, "top-k values must not be negative",
			goerr.V("top_k_memories", r.TopKMemories),
			goerr.V("top_k_cases", r.TopKCases),
			goerr.V("top_k_rules", r.TopKRules))
	}
	if err := model.ValidateConfidence(r.MinConfidence); err != nil {
		return goerr.Wrap(ErrInvalidConfig, "invalid min_confidence", goerr.V("min_confidence", r.MinConfidence))
	}
	if r.Timeout <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "retrieval timeout must be positive", goerr.V("timeout", time.Duration(r.Timeout)))
	}
	if r.RuleCandidateFactor < 1 {
		return goerr.Wrap(ErrInvalidConfig, "rule_candidate_factor must be at least 1", goerr.V("rule_candidate_factor", r.RuleCandidateFactor))
	}

	if a.Rating.Timeout <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "rating timeout must be positive", goerr.V("timeout", time.Duration(a.Rating.Timeout)))
	}
	if a.Rating.Fallback < 0 || a.Rating.Fallback > 1 {
		return goerr.Wrap(ErrInvalidConfig, "rating fallback must be between 0 and 1", goerr.V("fallback", a.Rating.Fallback))
	}

	return nil
}

// LoadAppConfig loads the TOML file at path over the defaults. An empty path
// returns the defaults.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if path == "" {
		return cfg, nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML config", goerr.V(ConfigPathKey, path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, path))
	}

	return cfg, nil
}
