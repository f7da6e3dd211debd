package executor

import "time"

// Config selects and tunes the execution backend.
type Config struct {
	Backend         string        `yaml:"backend"`
	BaseURL         string        `yaml:"baseURL"`
	AuthHeader      string        `yaml:"authHeader"`
	AuthToken       string        `yaml:"authToken"`
	CPUTimeLimit    float64       `yaml:"cpuTimeLimit"`
	MemoryLimit     int           `yaml:"memoryLimit"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	PollInterval    time.Duration `yaml:"pollInterval"`
	MaxPollAttempts int           `yaml:"maxPollAttempts"`
}

// WithDefaults fills unset limits with the engine defaults.
func (c Config) WithDefaults() Config {
	if c.CPUTimeLimit <= 0 {
		c.CPUTimeLimit = 5
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 256000
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = 30
	}
	if c.AuthHeader == "" {
		c.AuthHeader = "X-Auth-Token"
	}
	return c
}
