package fixture

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jmcleod/certforge/pki"
)

// Config holds the run-level knobs for a generation run. Everything has
// a working default; a YAML file can override any subset.
type Config struct {
	// Out is the output root the fixture tree is published to.
	Out string `yaml:"out"`

	// ValidityDays applies to every certificate in the plan.
	ValidityDays int `yaml:"validity-days"`

	// Deterministic swaps the key and clock sources for seeded ones so
	// two runs produce byte-identical trees.
	Deterministic bool `yaml:"deterministic"`

	// Seed feeds the deterministic key stream. Ignored unless
	// Deterministic is set.
	Seed string `yaml:"seed"`

	// OCSPURL overrides the responder URL embedded in AIA extensions.
	OCSPURL string `yaml:"ocsp-url"`
}

// DefaultConfig returns the defaults used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Out:          "pki-fixtures",
		ValidityDays: 365,
		Seed:         "certforge",
		OCSPURL:      pki.DefaultOCSPURL,
	}
}

// LoadConfig reads a YAML config file over the defaults. Unknown fields
// are rejected so typos fail loudly instead of silently falling back.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for planning errors.
func (c *Config) Validate() error {
	if c.Out == "" {
		return fmt.Errorf("config: out must not be empty")
	}
	if c.ValidityDays <= 0 {
		return fmt.Errorf("config: validity-days must be positive, got %d", c.ValidityDays)
	}
	if c.OCSPURL == "" {
		return fmt.Errorf("config: ocsp-url must not be empty")
	}
	return nil
}
