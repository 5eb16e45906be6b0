package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

// Profiles maps knowledge domains to engine configurations. A nil *Profiles
// resolves every domain to domain.DefaultEngineConfig.
type Profiles struct {
	defaults domain.EngineConfig
	domains  map[string]domain.EngineConfig
}

type profileFile struct {
	Defaults engineOverride            `yaml:"defaults"`
	Domains  map[string]engineOverride `yaml:"domains"`
}

// engineOverride is a partial EngineConfig. Unset fields inherit.
type engineOverride struct {
	K1                 *float64           `yaml:"k1"`
	B                  *float64           `yaml:"b"`
	RRFK               *float64           `yaml:"rrf_k"`
	DenseWeight        *float64           `yaml:"dense_weight"`
	SparseWeight       *float64           `yaml:"sparse_weight"`
	Thresholds         *thresholdOverride `yaml:"confidence_thresholds"`
	GroundingThreshold *float64           `yaml:"grounding_threshold"`
	SupportThreshold   *float64           `yaml:"support_threshold"`
	MaxRetries         *int               `yaml:"max_retries"`
	MaxResponseLength  *int               `yaml:"max_response_length"`
	MinResponseLength  *int               `yaml:"min_response_length"`
	RequireCitations   *bool              `yaml:"require_citations"`
}

type thresholdOverride struct {
	High   *float64 `yaml:"high"`
	Medium *float64 `yaml:"medium"`
	Low    *float64 `yaml:"low"`
}

func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domain profiles %s: %w", path, err)
	}
	profiles, err := ParseProfiles(data)
	if err != nil {
		return nil, fmt.Errorf("domain profiles %s: %w", path, err)
	}
	return profiles, nil
}

// ParseProfiles decodes a profile document. Unknown keys and configurations
// that fail EngineConfig.Validate are rejected.
func ParseProfiles(data []byte) (*Profiles, error) {
	var file profileFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse domain profiles", err)
	}

	defaults := file.Defaults.apply(domain.DefaultEngineConfig())
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}

	profiles := &Profiles{
		defaults: defaults,
		domains:  make(map[string]domain.EngineConfig, len(file.Domains)),
	}
	for name, override := range file.Domains {
		key := normalizeDomain(name)
		if key == "" {
			return nil, fmt.Errorf("%w: empty domain name", domain.ErrInvalidInput)
		}
		if _, dup := profiles.domains[key]; dup {
			return nil, fmt.Errorf("%w: duplicate domain %q", domain.ErrInvalidInput, key)
		}
		cfg := override.apply(defaults)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("domain %q: %w", key, err)
		}
		profiles.domains[key] = cfg
	}
	return profiles, nil
}

func (p *Profiles) Engine(domainName string) domain.EngineConfig {
	if p == nil {
		return domain.DefaultEngineConfig()
	}
	if cfg, ok := p.domains[normalizeDomain(domainName)]; ok {
		return cfg
	}
	return p.defaults
}

func (p *Profiles) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.domains))
	for name := range p.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o engineOverride) apply(base domain.EngineConfig) domain.EngineConfig {
	cfg := base
	setFloat(&cfg.K1, o.K1)
	setFloat(&cfg.B, o.B)
	setFloat(&cfg.RRFK, o.RRFK)
	setFloat(&cfg.DenseWeight, o.DenseWeight)
	setFloat(&cfg.SparseWeight, o.SparseWeight)
	if o.Thresholds != nil {
		setFloat(&cfg.Thresholds.High, o.Thresholds.High)
		setFloat(&cfg.Thresholds.Medium, o.Thresholds.Medium)
		setFloat(&cfg.Thresholds.Low, o.Thresholds.Low)
	}
	setFloat(&cfg.GroundingThreshold, o.GroundingThreshold)
	setFloat(&cfg.SupportThreshold, o.SupportThreshold)
	if o.MaxRetries != nil {
		cfg.MaxRetries = *o.MaxRetries
	}
	if o.MaxResponseLength != nil {
		cfg.MaxResponseLength = *o.MaxResponseLength
	}
	if o.MinResponseLength != nil {
		cfg.MinResponseLength = *o.MinResponseLength
	}
	if o.RequireCitations != nil {
		cfg.RequireCitations = *o.RequireCitations
	}
	return cfg
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func normalizeDomain(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
