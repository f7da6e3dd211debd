package runner

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codearena/internal/judge/executor"
	"codearena/internal/judge/model"
	pkgerrors "codearena/pkg/errors"
)

// scriptedExecutor answers by stdin. Unknown inputs echo the expected output.
type scriptedExecutor struct {
	mu       sync.Mutex
	calls    int32
	failures map[string]int
	outcomes map[string]executor.Outcome
	delays   map[string]time.Duration
	sources  []string
}

func (s *scriptedExecutor) Name() string { return "scripted" }

func (s *scriptedExecutor) Execute(ctx context.Context, req executor.Request) (*executor.Outcome, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	s.sources = append(s.sources, req.Source)
	remaining := s.failures[req.Stdin]
	if remaining > 0 {
		s.failures[req.Stdin] = remaining - 1
	}
	delay := s.delays[req.Stdin]
	out, scripted := s.outcomes[req.Stdin]
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if remaining > 0 {
		return nil, pkgerrors.New(pkgerrors.ExecutionBackendError).WithMessage("engine unavailable")
	}
	if scripted {
		return &out, nil
	}
	return &executor.Outcome{StatusID: 3, Status: model.StatusAccepted, Stdout: req.ExpectedOutput + "\n", TimeMs: 10, MemoryKB: 1000}, nil
}

func cases(inputs ...string) []model.TestCase {
	out := make([]model.TestCase, len(inputs))
	for i, in := range inputs {
		out[i] = model.TestCase{ID: int64(i + 1), Input: in, ExpectedOutput: "out-" + in, OrderIndex: i}
	}
	return out
}

func TestRunPreservesOrderUnderConcurrency(t *testing.T) {
	exec := &scriptedExecutor{delays: map[string]time.Duration{
		"a": 30 * time.Millisecond,
		"b": 10 * time.Millisecond,
		"c": 0,
		"d": 20 * time.Millisecond,
	}}
	r := NewRunner(exec, nil, Config{Concurrency: 4})
	results, err := r.Run(context.Background(), Job{Source: "print(1)", Language: "Python", Cases: cases("a", "b", "c", "d")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for i, in := range []string{"a", "b", "c", "d"} {
		if results[i].ActualOutput != "out-"+in || !results[i].Passed {
			t.Fatalf("result %d out of order: %+v", i, results[i])
		}
	}
}

func TestRunConvertsFailuresAndContinues(t *testing.T) {
	exec := &scriptedExecutor{failures: map[string]int{"b": 5}}
	r := NewRunner(exec, nil, Config{})
	results, err := r.Run(context.Background(), Job{Source: "x", Language: "python", Cases: cases("a", "b", "c")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !results[0].Passed || !results[2].Passed {
		t.Fatalf("neighbouring cases should pass: %+v", results)
	}
	if results[1].Passed || results[1].Status != model.StatusInternalError {
		t.Fatalf("failed case should be internal error: %+v", results[1])
	}
	if !strings.Contains(results[1].Error, "engine unavailable") {
		t.Fatalf("error message not carried: %q", results[1].Error)
	}
	if exec.calls != 3 {
		t.Fatalf("expected a single attempt per case, got %d calls", exec.calls)
	}
}

func TestRunRetriesBackendErrors(t *testing.T) {
	exec := &scriptedExecutor{failures: map[string]int{"a": 2}}
	r := NewRunner(exec, nil, Config{Retries: 2})
	results, err := r.Run(context.Background(), Job{Source: "x", Language: "python", Cases: cases("a")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !results[0].Passed {
		t.Fatalf("expected pass after retries: %+v", results[0])
	}
	if exec.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", exec.calls)
	}
}

func TestRunUnsupportedLanguage(t *testing.T) {
	r := NewRunner(&scriptedExecutor{}, nil, Config{})
	_, err := r.Run(context.Background(), Job{Source: "x", Language: "cobol", Cases: cases("a")})
	if !pkgerrors.Is(err, pkgerrors.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestRunWrapsWithFunctionCall(t *testing.T) {
	exec := &scriptedExecutor{}
	r := NewRunner(exec, nil, Config{})
	_, err := r.Run(context.Background(), Job{
		Source:       "def twoSum(nums, target):\n    return [0, 1]\n",
		Language:     "py",
		FunctionName: "twoSum",
		Cases:        []model.TestCase{{Input: "nums = [2,7,11,15], target = 9", ExpectedOutput: "[0,1]"}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(exec.sources) != 1 || !strings.Contains(exec.sources[0], "twoSum([2,7,11,15], 9)") {
		t.Fatalf("program was not wrapped: %v", exec.sources)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		out        executor.Outcome
		expected   string
		wantPassed bool
		wantStatus model.Status
		wantError  string
	}{
		{"exact", executor.Outcome{Status: model.StatusAccepted, Stdout: "42"}, "42", true, model.StatusAccepted, ""},
		{"whitespace", executor.Outcome{Status: model.StatusAccepted, Stdout: "  42\n\n"}, "42 ", true, model.StatusAccepted, ""},
		{"mismatch", executor.Outcome{Status: model.StatusAccepted, Stdout: "41"}, "42", false, model.StatusWrongAnswer, "Wrong Answer"},
		{"inner whitespace matters", executor.Outcome{Status: model.StatusAccepted, Stdout: "[0, 1]"}, "[0,1]", false, model.StatusWrongAnswer, "Wrong Answer"},
		{"compile", executor.Outcome{Status: model.StatusCompilationError, CompileOutput: "syntax error"}, "1", false, model.StatusCompilationError, "Compilation Error: syntax error"},
		{"tle", executor.Outcome{Status: model.StatusTimeLimitExceeded}, "1", false, model.StatusTimeLimitExceeded, "Time Limit Exceeded"},
		{"runtime", executor.Outcome{Status: model.StatusRuntimeError, Description: "Runtime Error (NZEC)", Stderr: "boom"}, "1", false, model.StatusRuntimeError, "Runtime Error (NZEC): boom"},
		{"accepted status but right output required", executor.Outcome{Status: model.StatusAccepted, Stdout: ""}, "1", false, model.StatusWrongAnswer, "Wrong Answer"},
		{"unknown", executor.Outcome{Status: model.StatusInternalError, Description: "Internal Error"}, "1", false, model.StatusInternalError, "Internal Error: Internal Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(&tt.out, tt.expected)
			if got.Passed != tt.wantPassed || got.Status != tt.wantStatus || got.Error != tt.wantError {
				t.Fatalf("Evaluate() = %+v", got)
			}
		})
	}
}
