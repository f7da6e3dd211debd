package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	commonmw "codearena/internal/common/http/middleware"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	"codearena/internal/evaluator"
	"codearena/internal/judge/executor"
	"codearena/internal/judge/runner"
	"codearena/internal/monitor"
	"codearena/internal/submit/service"
	"codearena/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	serviceName = "submit-service"

	defaultHTTPAddr        = "0.0.0.0:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 120 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	envProduction = "production"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	Env          string        `yaml:"env"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`

	CORS commonmw.CORSConfig `yaml:"cors"`
}

// AuthConfig holds access token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
}

// ArchiveConfig holds the audit archive location.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// SubmitConfig holds submission settings.
type SubmitConfig struct {
	MaxCodeBytes   int                     `yaml:"maxCodeBytes"`
	MaxCustomCases int                     `yaml:"maxCustomCases"`
	HistoryLimit   int                     `yaml:"historyLimit"`
	IdempotencyTTL time.Duration           `yaml:"idempotencyTTL"`
	LockTTL        time.Duration           `yaml:"lockTTL"`
	TaskCacheTTL   time.Duration           `yaml:"taskCacheTTL"`
	NotifyTopic    string                  `yaml:"notifyTopic"`
	ActivityLog    bool                    `yaml:"activityLog"`
	ScoringTimeout time.Duration           `yaml:"scoringTimeout"`
	RateLimit      service.RateLimitConfig `yaml:"rateLimit"`
	Timeouts       service.TimeoutConfig   `yaml:"timeouts"`
	Archive        ArchiveConfig           `yaml:"archive"`

	// SettingsCacheTTL bounds how stale the submission cap can be.
	// Negative disables settings caching.
	SettingsCacheTTL time.Duration `yaml:"settingsCacheTTL"`
}

// MonitorConfig holds the admin live feed settings.
type MonitorConfig struct {
	Enabled       bool           `yaml:"enabled"`
	ConsumerGroup string         `yaml:"consumerGroup"`
	Hub           monitor.Config `yaml:"hub"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AppConfig holds submit-service configuration.
type AppConfig struct {
	Server    ServerConfig        `yaml:"server"`
	Logger    logger.Config       `yaml:"logger"`
	Database  db.MySQLConfig      `yaml:"database"`
	Redis     cache.RedisConfig   `yaml:"redis"`
	Kafka     mq.KafkaConfig      `yaml:"kafka"`
	MinIO     storage.MinIOConfig `yaml:"minio"`
	Auth      AuthConfig          `yaml:"auth"`
	Executor  executor.Config     `yaml:"executor"`
	Runner    runner.Config       `yaml:"runner"`
	Evaluator evaluator.Config    `yaml:"evaluator"`
	Submit    SubmitConfig        `yaml:"submit"`
	Monitor   MonitorConfig       `yaml:"monitor"`
	Metrics   MetricsConfig       `yaml:"metrics"`
}

// AllowMockExecutor reports whether the simulated backend may be used.
func (c *AppConfig) AllowMockExecutor() bool {
	return !strings.EqualFold(c.Server.Env, envProduction)
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Logger.Service == "" {
		cfg.Logger.Service = serviceName
	}

	cfg.Executor = cfg.Executor.WithDefaults()
	if cfg.Executor.Backend == "" {
		cfg.Executor.Backend = executor.BackendJudge0
	}
	if cfg.Runner.Concurrency == 0 {
		cfg.Runner.Concurrency = 1
	}
	if cfg.Evaluator.Timeout == 0 {
		cfg.Evaluator.Timeout = 20 * time.Second
	}

	if cfg.Submit.MaxCodeBytes == 0 {
		cfg.Submit.MaxCodeBytes = 64 * 1024
	}
	if cfg.Submit.MaxCustomCases == 0 {
		cfg.Submit.MaxCustomCases = 10
	}
	if cfg.Submit.HistoryLimit == 0 {
		cfg.Submit.HistoryLimit = 50
	}
	if cfg.Submit.IdempotencyTTL == 0 {
		cfg.Submit.IdempotencyTTL = 10 * time.Minute
	}
	if cfg.Submit.LockTTL == 0 {
		cfg.Submit.LockTTL = 5 * time.Minute
	}
	if cfg.Submit.TaskCacheTTL == 0 {
		cfg.Submit.TaskCacheTTL = 5 * time.Minute
	}
	if cfg.Submit.ScoringTimeout == 0 {
		cfg.Submit.ScoringTimeout = cfg.Evaluator.Timeout
	}
	if cfg.Submit.NotifyTopic == "" {
		cfg.Submit.NotifyTopic = "contest.submissions"
	}
	if cfg.Submit.RateLimit.Window == 0 {
		cfg.Submit.RateLimit.Window = time.Minute
	}
	if cfg.Submit.Timeouts.DB == 0 {
		cfg.Submit.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Cache == 0 {
		cfg.Submit.Timeouts.Cache = time.Second
	}
	if cfg.Submit.Timeouts.Grading == 0 {
		cfg.Submit.Timeouts.Grading = 90 * time.Second
	}
	if cfg.Submit.Timeouts.Hooks == 0 {
		cfg.Submit.Timeouts.Hooks = 5 * time.Second
	}
	if cfg.Submit.Archive.Bucket == "" {
		cfg.Submit.Archive.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Submit.Archive.Prefix == "" {
		cfg.Submit.Archive.Prefix = "submissions"
	}

	if cfg.Monitor.ConsumerGroup == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "local"
		}
		cfg.Monitor.ConsumerGroup = "codearena-monitor-" + host
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret is required")
	}
	if cfg.Executor.Backend == executor.BackendMock && !cfg.AllowMockExecutor() {
		return fmt.Errorf("executor.backend mock is not allowed in %s", envProduction)
	}
	if cfg.Submit.Archive.Enabled && cfg.Submit.Archive.Bucket == "" {
		return fmt.Errorf("submit.archive.bucket is required when the archive is enabled")
	}
	return nil
}
