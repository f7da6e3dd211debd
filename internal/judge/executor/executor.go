// Package executor runs a single program against a single stdin on an
// execution backend and normalizes the outcome.
package executor

import (
	"context"
	"fmt"

	"codearena/internal/judge/model"
	pkgerrors "codearena/pkg/errors"
)

const (
	BackendJudge0 = "judge0"
	BackendMock   = "mock"
)

// Request is one execution.
type Request struct {
	LanguageID int
	Source     string
	Stdin      string
	// ExpectedOutput is a hint for engines that grade output themselves.
	ExpectedOutput string
}

// Outcome is a backend independent execution report.
type Outcome struct {
	StatusID      int
	Status        model.Status
	Description   string
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
	TimeMs        int64
	MemoryKB      int64
}

// Executor runs programs. Implementations make a single attempt per call.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Outcome, error)
	Name() string
}

// New returns the backend named in cfg. The mock backend is refused
// unless allowMock is set.
func New(cfg Config, allowMock bool) (Executor, error) {
	switch cfg.Backend {
	case "", BackendJudge0:
		client, err := NewJudge0Client(cfg, nil)
		if err != nil {
			return nil, err
		}
		return client, nil
	case BackendMock:
		if !allowMock {
			return nil, pkgerrors.Newf(pkgerrors.InvalidParams, "executor backend %q is disabled in this environment", cfg.Backend)
		}
		return NewMockExecutor(), nil
	default:
		return nil, fmt.Errorf("unknown executor backend %q", cfg.Backend)
	}
}
