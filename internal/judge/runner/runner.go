// Package runner grades one attempt: every test case is wrapped, executed and
// compared independently, and results come back in test case order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codearena/internal/judge/executor"
	"codearena/internal/judge/harness"
	"codearena/internal/judge/language"
	"codearena/internal/judge/model"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxErrorDetail = 1024

// Config tunes fan-out and retries. Retries apply to backend and timeout
// failures only; zero keeps the single attempt per case.
type Config struct {
	Concurrency int           `yaml:"concurrency"`
	Retries     int           `yaml:"retries"`
	RetryDelay  time.Duration `yaml:"retryDelay"`
}

// Job is one attempt to grade.
type Job struct {
	Source       string
	Language     string
	FunctionName string
	// Template is the task's custom harness for Language, if any.
	Template string
	Cases    []model.TestCase
}

// Runner drives the executor across a job's test cases.
type Runner struct {
	exec    executor.Executor
	wrapper *harness.Wrapper
	cfg     Config
}

func NewRunner(exec executor.Executor, wrapper *harness.Wrapper, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if wrapper == nil {
		wrapper = harness.NewWrapper(nil)
	}
	return &Runner{exec: exec, wrapper: wrapper, cfg: cfg}
}

// Run returns one result per case at the case's index. Only an unsupported
// language fails the call; execution failures become failed results.
func (r *Runner) Run(ctx context.Context, job Job) ([]model.ExecutionResult, error) {
	lang := language.Normalize(job.Language)
	langID, err := language.LanguageID(lang)
	if err != nil {
		return nil, err
	}

	results := make([]model.ExecutionResult, len(job.Cases))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i := range job.Cases {
		g.Go(func() error {
			results[i] = r.runCase(ctx, lang, langID, job, job.Cases[i])
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (r *Runner) runCase(ctx context.Context, lang string, langID int, job Job, tc model.TestCase) model.ExecutionResult {
	wrapped := r.wrapper.Wrap(ctx, harness.WrapRequest{
		Language:     lang,
		Source:       job.Source,
		FunctionName: job.FunctionName,
		TestInput:    tc.Input,
		Template:     job.Template,
	})

	out, err := r.execute(ctx, executor.Request{
		LanguageID:     langID,
		Source:         wrapped.Source,
		Stdin:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
	})
	if err != nil {
		logger.Warn(ctx, "test case execution failed",
			zap.Int64("test_case_id", tc.ID),
			zap.String("backend", r.exec.Name()),
			zap.Error(err),
		)
		return failedResult(err)
	}
	return Evaluate(out, tc.ExpectedOutput)
}

func (r *Runner) execute(ctx context.Context, req executor.Request) (*executor.Outcome, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, r.cfg.RetryDelay); err != nil {
				return nil, lastErr
			}
		}
		out, err := r.exec.Execute(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	return pkgerrors.Is(err, pkgerrors.ExecutionBackendError) || pkgerrors.Is(err, pkgerrors.ExecutionTimeout)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Evaluate turns an engine outcome into a test case result. A case passes
// only when the engine accepted it and the trimmed outputs are equal.
func Evaluate(out *executor.Outcome, expected string) model.ExecutionResult {
	actual := strings.TrimSpace(out.Stdout)
	res := model.ExecutionResult{
		ActualOutput:    actual,
		Status:          out.Status,
		ExecutionTimeMs: out.TimeMs,
		MemoryKB:        out.MemoryKB,
	}
	switch out.Status {
	case model.StatusAccepted:
		if actual == strings.TrimSpace(expected) {
			res.Passed = true
			return res
		}
		res.Status = model.StatusWrongAnswer
		res.Error = "Wrong Answer"
	case model.StatusWrongAnswer:
		res.Error = "Wrong Answer"
	case model.StatusCompilationError:
		res.Error = withDetail("Compilation Error", out.CompileOutput)
	case model.StatusTimeLimitExceeded:
		res.Error = "Time Limit Exceeded"
	case model.StatusRuntimeError:
		head := out.Description
		if !strings.HasPrefix(head, "Runtime Error") {
			head = "Runtime Error"
		}
		res.Error = withDetail(head, firstNonEmpty(out.Stderr, out.Message))
	default:
		res.Status = model.StatusInternalError
		res.Error = withDetail("Internal Error", firstNonEmpty(out.Message, out.Description))
	}
	return res
}

func failedResult(err error) model.ExecutionResult {
	res := model.ExecutionResult{Status: model.StatusInternalError}
	switch {
	case pkgerrors.Is(err, pkgerrors.ExecutionTimeout):
		res.Error = "Execution Timeout: the execution engine did not finish in time"
	case errors.Is(err, context.Canceled):
		res.Error = "Execution Canceled"
	case pkgerrors.Is(err, pkgerrors.ExecutionBackendError):
		res.Error = "Execution Backend Error: " + pkgerrors.GetError(err).Message
	default:
		res.Error = fmt.Sprintf("Execution Failed: %v", err)
	}
	return res
}

func withDetail(head, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return head
	}
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail] + "..."
	}
	return head + ": " + detail
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
