// Package evaluator adapts external code-quality graders to the scoring
// engine's Evaluator interface. Two providers exist: a generic JSON service
// and an OpenAI-compatible chat completion endpoint.
package evaluator

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"codearena/internal/judge/scoring"
)

const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
)

// Config selects and points at the evaluation provider. For the openai
// provider URL optionally overrides the API base URL.
type Config struct {
	Enabled  bool          `yaml:"enabled"`
	Provider string        `yaml:"provider"`
	URL      string        `yaml:"url"`
	Path     string        `yaml:"path"`
	APIKey   string        `yaml:"apiKey"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (c Config) withDefaults() Config {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderHTTP
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	return c
}

// New builds the configured provider once at startup. It returns a nil
// Evaluator when evaluation is disabled, which the scoring engine treats as
// unavailable.
func New(cfg Config, hc *http.Client) (scoring.Evaluator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cfg = cfg.withDefaults()
	switch cfg.Provider {
	case ProviderHTTP:
		return NewHTTP(cfg, hc)
	case ProviderOpenAI:
		return NewOpenAI(cfg, hc)
	}
	return nil, fmt.Errorf("unknown evaluator provider %q", cfg.Provider)
}
