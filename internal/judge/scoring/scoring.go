// Package scoring turns test case results into a verdict and a point award,
// optionally blended with an external code-quality evaluation.
package scoring

import (
	"context"
	"math"
	"strings"
	"time"

	"codearena/internal/common/metrics"
	"codearena/internal/judge/model"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	// MaxAIWeight caps the share of points an evaluation can decide.
	MaxAIWeight = 50
	// FallbackFeedback is recorded when the evaluator could not be reached.
	FallbackFeedback = "AI evaluation unavailable"

	defaultEvaluationTimeout = 20 * time.Second
)

// EvaluationRequest is what the evaluator sees of a submission.
type EvaluationRequest struct {
	Code               string
	Language           string
	ExpectedConcepts   string
	ProblemDescription string
}

// Evaluation is the evaluator's verdict. Score is 0-100.
type Evaluation struct {
	Score    int
	Passed   bool
	Feedback string
}

// Evaluator grades code quality. Implementations may fail; the engine
// falls back to test case scoring.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (*Evaluation, error)
}

// Input is everything the engine needs for one attempt.
type Input struct {
	Results     []model.ExecutionResult
	MaxPoints   int
	AI          *model.AIEvaluationConfig
	Code        string
	Language    string
	Description string
}

// AIOutcome records the evaluation that took part in scoring.
type AIOutcome struct {
	Score            int
	Passed           bool
	Feedback         string
	ExpectedConcepts string
	Weight           int
	// Fallback is set when the evaluator failed and only test cases counted.
	Fallback bool
}

// Result is the engine's verdict.
type Result struct {
	Status        model.Status
	Passed        int
	Total         int
	TestCaseScore int
	Score         int
	AI            *AIOutcome
}

// Engine scores attempts. A nil evaluator makes every enabled evaluation
// fall back.
type Engine struct {
	evaluator Evaluator
	timeout   time.Duration
	metrics   *metrics.Metrics
}

func NewEngine(evaluator Evaluator, timeout time.Duration, m *metrics.Metrics) *Engine {
	if timeout <= 0 {
		timeout = defaultEvaluationTimeout
	}
	return &Engine{evaluator: evaluator, timeout: timeout, metrics: m}
}

// Score computes the verdict. It never fails; evaluator errors degrade to
// the test case score.
func (e *Engine) Score(ctx context.Context, in Input) Result {
	maxPoints := in.MaxPoints
	if maxPoints < 0 {
		maxPoints = 0
	}
	summary := model.Summarize(in.Results)
	res := Result{
		Status:        SelectStatus(in.Results),
		Passed:        summary.Passed,
		Total:         summary.Total,
		TestCaseScore: TestCaseScore(summary.Passed, summary.Total, maxPoints),
	}
	res.Score = res.TestCaseScore

	if !aiEnabled(in.AI) {
		return res
	}
	ai := e.evaluate(ctx, in)
	if !ai.Fallback {
		res.Score = Blend(res.TestCaseScore, ai.Score, ai.Weight, maxPoints)
	}
	res.AI = ai
	return res
}

func aiEnabled(cfg *model.AIEvaluationConfig) bool {
	return cfg != nil && cfg.Enabled && strings.TrimSpace(cfg.ExpectedConcepts) != ""
}

func (e *Engine) evaluate(ctx context.Context, in Input) *AIOutcome {
	out := &AIOutcome{
		ExpectedConcepts: in.AI.ExpectedConcepts,
		Weight:           ClampWeight(in.AI.Weight),
	}
	if e.evaluator == nil {
		out.Fallback = true
		out.Feedback = FallbackFeedback
		e.metrics.ObserveAIEvaluation("unconfigured")
		return out
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	eval, err := e.evaluator.Evaluate(evalCtx, EvaluationRequest{
		Code:               in.Code,
		Language:           in.Language,
		ExpectedConcepts:   in.AI.ExpectedConcepts,
		ProblemDescription: in.Description,
	})
	if err != nil || eval == nil {
		logger.Warn(ctx, "ai evaluation failed, using test case score",
			zap.Int("code", int(pkgerrors.EvaluationFailed)),
			zap.Error(err),
		)
		out.Fallback = true
		out.Feedback = FallbackFeedback
		e.metrics.ObserveAIEvaluation("fallback")
		return out
	}
	out.Score = clamp(eval.Score, 0, 100)
	out.Passed = eval.Passed
	out.Feedback = eval.Feedback
	e.metrics.ObserveAIEvaluation("ok")
	return out
}

// TestCaseScore awards full points when everything passed and the floored
// share otherwise.
func TestCaseScore(passed, total, maxPoints int) int {
	if total <= 0 || maxPoints <= 0 {
		return 0
	}
	if passed >= total {
		return maxPoints
	}
	return passed * maxPoints / total
}

// ClampWeight limits a configured evaluation weight to [0, MaxAIWeight].
func ClampWeight(weight int) int {
	return clamp(weight, 0, MaxAIWeight)
}

// Blend mixes the test case score with the evaluation score by weight percent.
func Blend(testCaseScore, aiScore, weight, maxPoints int) int {
	w := float64(ClampWeight(weight))
	aiPoints := float64(clamp(aiScore, 0, 100)) / 100 * float64(maxPoints)
	blended := math.Round((float64(testCaseScore)*(100-w) + aiPoints*w) / 100)
	return clamp(int(blended), 0, maxPoints)
}

// SelectStatus picks the submission verdict: accepted, then compilation
// error, time limit, runtime error, and wrong answer last.
func SelectStatus(results []model.ExecutionResult) model.Status {
	if model.Summarize(results).AllPassed() {
		return model.StatusAccepted
	}
	var compile, tle, runtime bool
	for _, r := range results {
		if r.Passed {
			continue
		}
		msg := strings.ToLower(r.Error)
		switch {
		case r.Status == model.StatusCompilationError || strings.Contains(msg, "compil"):
			compile = true
		case r.Status == model.StatusTimeLimitExceeded || strings.Contains(msg, "time limit"):
			tle = true
		case msg != "" && !strings.Contains(msg, "wrong answer"):
			runtime = true
		}
	}
	switch {
	case compile:
		return model.StatusCompilationError
	case tle:
		return model.StatusTimeLimitExceeded
	case runtime:
		return model.StatusRuntimeError
	default:
		return model.StatusWrongAnswer
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
