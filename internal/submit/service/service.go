package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/metrics"
	"codearena/internal/judge/runner"
	"codearena/internal/judge/scoring"
	"codearena/internal/submit/repository"
)

const defaultHistoryLimit = 50

// Transactor runs fn inside one database transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx db.Transaction) error) error
}

// RateLimitConfig holds throttling configuration.
type RateLimitConfig struct {
	UserMax int           `yaml:"userMax"`
	IPMax   int           `yaml:"ipMax"`
	Window  time.Duration `yaml:"window"`
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	Grading time.Duration `yaml:"grading"`
	Hooks   time.Duration `yaml:"hooks"`
}

// Config holds submit service dependencies and settings.
type Config struct {
	Tasks       repository.TaskRepository
	Submissions repository.SubmissionRepository
	Contests    repository.ContestRepository
	Progress    repository.ProgressRepository
	Transactor  Transactor
	Cache       cache.Cache
	Runner      *runner.Runner
	Scoring     *scoring.Engine
	Metrics     *metrics.Metrics
	Hooks       []PostCommitHook

	MaxCodeBytes   int
	IdempotencyTTL time.Duration
	LockTTL        time.Duration
	HistoryLimit   int
	MaxCustomCases int
	RateLimit      RateLimitConfig
	Timeouts       TimeoutConfig
}

// SubmitService grades runs and submissions and records the outcome.
type SubmitService struct {
	tasks       repository.TaskRepository
	submissions repository.SubmissionRepository
	contests    repository.ContestRepository
	progress    repository.ProgressRepository
	tx          Transactor
	cache       cache.Cache
	runner      *runner.Runner
	scoring     *scoring.Engine
	metrics     *metrics.Metrics
	hooks       []PostCommitHook

	maxCodeBytes   int
	idempotencyTTL time.Duration
	lockTTL        time.Duration
	historyLimit   int
	maxCustomCases int
	rateLimit      RateLimitConfig
	timeouts       TimeoutConfig

	hookWG sync.WaitGroup
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.Tasks == nil {
		return nil, fmt.Errorf("task repository is required")
	}
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Contests == nil {
		return nil, fmt.Errorf("contest repository is required")
	}
	if cfg.Progress == nil {
		return nil, fmt.Errorf("progress repository is required")
	}
	if cfg.Transactor == nil {
		return nil, fmt.Errorf("transactor is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Runner == nil || cfg.Scoring == nil {
		return nil, fmt.Errorf("runner and scoring engine are required")
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 10 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.MaxCustomCases <= 0 {
		cfg.MaxCustomCases = 10
	}
	if cfg.Timeouts.Hooks <= 0 {
		cfg.Timeouts.Hooks = 10 * time.Second
	}
	return &SubmitService{
		tasks:          cfg.Tasks,
		submissions:    cfg.Submissions,
		contests:       cfg.Contests,
		progress:       cfg.Progress,
		tx:             cfg.Transactor,
		cache:          cfg.Cache,
		runner:         cfg.Runner,
		scoring:        cfg.Scoring,
		metrics:        cfg.Metrics,
		hooks:          cfg.Hooks,
		maxCodeBytes:   cfg.MaxCodeBytes,
		idempotencyTTL: cfg.IdempotencyTTL,
		lockTTL:        cfg.LockTTL,
		historyLimit:   cfg.HistoryLimit,
		maxCustomCases: cfg.MaxCustomCases,
		rateLimit:      cfg.RateLimit,
		timeouts:       cfg.Timeouts,
	}, nil
}

// Wait blocks until in-flight post-commit hooks finish.
func (s *SubmitService) Wait() {
	s.hookWG.Wait()
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
