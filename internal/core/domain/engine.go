package domain

import (
	"fmt"
	"math"
)

// ConfidenceThresholds are lower bounds on the best dense similarity.
type ConfidenceThresholds struct {
	High   float64 `yaml:"high" json:"high"`
	Medium float64 `yaml:"medium" json:"medium"`
	Low    float64 `yaml:"low" json:"low"`
}

// EngineConfig enumerates every tunable of the answer pipeline. One shared
// engine is parameterized per knowledge domain with these values.
type EngineConfig struct {
	K1                 float64              `yaml:"k1" json:"k1"`
	B                  float64              `yaml:"b" json:"b"`
	RRFK               float64              `yaml:"rrf_k" json:"rrf_k"`
	DenseWeight        float64              `yaml:"dense_weight" json:"dense_weight"`
	SparseWeight       float64              `yaml:"sparse_weight" json:"sparse_weight"`
	Thresholds         ConfidenceThresholds `yaml:"confidence_thresholds" json:"confidence_thresholds"`
	GroundingThreshold float64              `yaml:"grounding_threshold" json:"grounding_threshold"`
	SupportThreshold   float64              `yaml:"support_threshold" json:"support_threshold"`
	MaxRetries         int                  `yaml:"max_retries" json:"max_retries"`
	MaxResponseLength  int                  `yaml:"max_response_length" json:"max_response_length"`
	MinResponseLength  int                  `yaml:"min_response_length" json:"min_response_length"`
	RequireCitations   bool                 `yaml:"require_citations" json:"require_citations"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		K1:           1.5,
		B:            0.75,
		RRFK:         60,
		DenseWeight:  0.5,
		SparseWeight: 0.5,
		Thresholds: ConfidenceThresholds{
			High:   0.75,
			Medium: 0.55,
			Low:    0.35,
		},
		GroundingThreshold: 0.3,
		SupportThreshold:   0.2,
		MaxRetries:         2,
		MaxResponseLength:  5000,
		MinResponseLength:  20,
		RequireCitations:   true,
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c EngineConfig) Validate() error {
	switch {
	case c.K1 < 0:
		return fmt.Errorf("%w: k1 must be >= 0", ErrInvalidInput)
	case c.B < 0 || c.B > 1:
		return fmt.Errorf("%w: b must be within [0,1]", ErrInvalidInput)
	case c.RRFK <= 0:
		return fmt.Errorf("%w: rrf_k must be > 0", ErrInvalidInput)
	case c.DenseWeight < 0 || c.SparseWeight < 0:
		return fmt.Errorf("%w: fusion weights must be >= 0", ErrInvalidInput)
	case math.Abs(c.DenseWeight+c.SparseWeight-1) > 1e-6:
		return fmt.Errorf("%w: fusion weights must sum to 1", ErrInvalidInput)
	case !(c.Thresholds.High >= c.Thresholds.Medium && c.Thresholds.Medium >= c.Thresholds.Low && c.Thresholds.Low >= 0):
		return fmt.Errorf("%w: confidence thresholds must satisfy high >= medium >= low >= 0", ErrInvalidInput)
	case c.GroundingThreshold < 0 || c.GroundingThreshold > 1:
		return fmt.Errorf("%w: grounding_threshold must be within [0,1]", ErrInvalidInput)
	case c.SupportThreshold < 0 || c.SupportThreshold > 1:
		return fmt.Errorf("%w: support_threshold must be within [0,1]", ErrInvalidInput)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must be >= 0", ErrInvalidInput)
	case c.MinResponseLength < 0 || c.MaxResponseLength <= c.MinResponseLength:
		return fmt.Errorf("%w: response length bounds are inconsistent", ErrInvalidInput)
	}
	return nil
}
