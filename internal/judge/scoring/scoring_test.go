package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"codearena/internal/judge/model"
)

func pass() model.ExecutionResult {
	return model.ExecutionResult{Passed: true, Status: model.StatusAccepted}
}

func fail(status model.Status, msg string) model.ExecutionResult {
	return model.ExecutionResult{Status: status, Error: msg}
}

type stubEvaluator struct {
	eval     *Evaluation
	err      error
	block    bool
	received EvaluationRequest
}

func (s *stubEvaluator) Evaluate(ctx context.Context, req EvaluationRequest) (*Evaluation, error) {
	s.received = req
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.eval, s.err
}

func TestTestCaseScore(t *testing.T) {
	tests := []struct {
		passed, total, max, want int
	}{
		{4, 4, 100, 100},
		{3, 4, 100, 75},
		{1, 3, 100, 33},
		{2, 3, 10, 6},
		{0, 5, 100, 0},
		{0, 0, 100, 0},
	}
	for _, tt := range tests {
		if got := TestCaseScore(tt.passed, tt.total, tt.max); got != tt.want {
			t.Fatalf("TestCaseScore(%d,%d,%d) = %d, want %d", tt.passed, tt.total, tt.max, got, tt.want)
		}
	}
}

func TestSelectStatusPriority(t *testing.T) {
	tests := []struct {
		name    string
		results []model.ExecutionResult
		want    model.Status
	}{
		{"all passed", []model.ExecutionResult{pass(), pass()}, model.StatusAccepted},
		{"compile beats tle", []model.ExecutionResult{fail(model.StatusTimeLimitExceeded, "Time Limit Exceeded"), fail(model.StatusCompilationError, "Compilation Error: x")}, model.StatusCompilationError},
		{"compile by message", []model.ExecutionResult{fail(model.StatusInternalError, "compilation failed")}, model.StatusCompilationError},
		{"tle beats runtime", []model.ExecutionResult{fail(model.StatusRuntimeError, "Runtime Error"), fail(model.StatusTimeLimitExceeded, "Time Limit Exceeded")}, model.StatusTimeLimitExceeded},
		{"runtime beats wrong answer", []model.ExecutionResult{fail(model.StatusWrongAnswer, "Wrong Answer"), fail(model.StatusRuntimeError, "Runtime Error (NZEC)")}, model.StatusRuntimeError},
		{"backend failure counts as runtime", []model.ExecutionResult{pass(), fail(model.StatusInternalError, "Execution Backend Error: down")}, model.StatusRuntimeError},
		{"wrong answer", []model.ExecutionResult{pass(), fail(model.StatusWrongAnswer, "Wrong Answer")}, model.StatusWrongAnswer},
		{"empty", nil, model.StatusWrongAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectStatus(tt.results); got != tt.want {
				t.Fatalf("SelectStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClampWeight(t *testing.T) {
	if ClampWeight(80) != 50 || ClampWeight(-5) != 0 || ClampWeight(30) != 30 {
		t.Fatalf("weight not clamped to [0,50]")
	}
}

func TestBlend(t *testing.T) {
	// 75*(100-50) + (80/100*100)*50 = 3750+4000 = 7750 / 100 = 77.5 -> 78
	if got := Blend(75, 80, 50, 100); got != 78 {
		t.Fatalf("Blend = %d, want 78", got)
	}
	// configured 80 behaves as 50
	if got := Blend(75, 80, 80, 100); got != 78 {
		t.Fatalf("Blend with over-weight = %d, want 78", got)
	}
	if got := Blend(100, 0, 0, 100); got != 100 {
		t.Fatalf("zero weight should keep test case score, got %d", got)
	}
	if got := Blend(10, 150, 50, 10); got != 10 {
		t.Fatalf("blend must stay within max points, got %d", got)
	}
}

func TestScoreWithoutAI(t *testing.T) {
	e := NewEngine(nil, time.Second, nil)
	res := e.Score(context.Background(), Input{
		Results:   []model.ExecutionResult{pass(), pass(), pass(), fail(model.StatusWrongAnswer, "Wrong Answer")},
		MaxPoints: 100,
	})
	if res.Score != 75 || res.TestCaseScore != 75 || res.Status != model.StatusWrongAnswer {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Passed != 3 || res.Total != 4 || res.AI != nil {
		t.Fatalf("unexpected counts: %+v", res)
	}
}

func TestScoreBlendsEvaluation(t *testing.T) {
	ev := &stubEvaluator{eval: &Evaluation{Score: 80, Passed: true, Feedback: "clean"}}
	e := NewEngine(ev, time.Second, nil)
	res := e.Score(context.Background(), Input{
		Results:     []model.ExecutionResult{pass(), pass(), pass(), fail(model.StatusWrongAnswer, "Wrong Answer")},
		MaxPoints:   100,
		AI:          &model.AIEvaluationConfig{Enabled: true, Weight: 80, ExpectedConcepts: "two pointers"},
		Code:        "code",
		Language:    "python",
		Description: "desc",
	})
	if res.Score != 78 || res.TestCaseScore != 75 {
		t.Fatalf("unexpected blend: %+v", res)
	}
	if res.AI == nil || res.AI.Weight != 50 || res.AI.Score != 80 || res.AI.Fallback || res.AI.Feedback != "clean" {
		t.Fatalf("unexpected ai outcome: %+v", res.AI)
	}
	if ev.received.ExpectedConcepts != "two pointers" || ev.received.ProblemDescription != "desc" {
		t.Fatalf("evaluator request incomplete: %+v", ev.received)
	}
}

func TestScoreFallsBackOnEvaluatorFailure(t *testing.T) {
	ev := &stubEvaluator{err: errors.New("provider down")}
	e := NewEngine(ev, time.Second, nil)
	res := e.Score(context.Background(), Input{
		Results:   []model.ExecutionResult{pass(), fail(model.StatusWrongAnswer, "Wrong Answer")},
		MaxPoints: 10,
		AI:        &model.AIEvaluationConfig{Enabled: true, Weight: 30, ExpectedConcepts: "recursion"},
	})
	if res.Score != 5 {
		t.Fatalf("expected test case score 5, got %d", res.Score)
	}
	if res.AI == nil || !res.AI.Fallback || res.AI.Feedback != FallbackFeedback {
		t.Fatalf("expected fallback outcome: %+v", res.AI)
	}
}

func TestScoreEvaluatorTimeout(t *testing.T) {
	ev := &stubEvaluator{block: true}
	e := NewEngine(ev, 10*time.Millisecond, nil)
	res := e.Score(context.Background(), Input{
		Results:   []model.ExecutionResult{pass()},
		MaxPoints: 100,
		AI:        &model.AIEvaluationConfig{Enabled: true, Weight: 50, ExpectedConcepts: "dp"},
	})
	if res.Score != 100 || !res.AI.Fallback {
		t.Fatalf("timeout should fall back: %+v", res)
	}
}

func TestScoreSkipsEvaluationWithoutConcepts(t *testing.T) {
	ev := &stubEvaluator{eval: &Evaluation{Score: 0}}
	e := NewEngine(ev, time.Second, nil)
	res := e.Score(context.Background(), Input{
		Results:   []model.ExecutionResult{pass()},
		MaxPoints: 100,
		AI:        &model.AIEvaluationConfig{Enabled: true, Weight: 50, ExpectedConcepts: "   "},
	})
	if res.AI != nil || res.Score != 100 {
		t.Fatalf("evaluation should be skipped: %+v", res)
	}
}
