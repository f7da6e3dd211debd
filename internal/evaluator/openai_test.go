package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codearena/internal/judge/scoring"

	"github.com/sashabaranov/go-openai"
)

func completionServer(t *testing.T, status int, content string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization %q", got)
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		body, _ := json.Marshal(openai.ChatCompletionResponse{
			ID:     "cmpl-1",
			Object: "chat.completion",
			Model:  "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
		})
		_, _ = w.Write(body)
	}))
}

func newOpenAITestEvaluator(t *testing.T, srv *httptest.Server) *OpenAIEvaluator {
	t.Helper()
	ev, err := NewOpenAI(Config{APIKey: "sk-test", URL: srv.URL + "/v1/", Model: "grader-1"}, srv.Client())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return ev
}

func TestOpenAIEvaluate(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := completionServer(t, http.StatusOK, `{"score": 72.6, "passed": true, "feedback": " uses a hash map "}`, &seen)
	defer srv.Close()

	res, err := newOpenAITestEvaluator(t, srv).Evaluate(context.Background(), scoring.EvaluationRequest{
		Code:               "def two_sum(nums, target): ...",
		Language:           "python",
		ExpectedConcepts:   "hash map",
		ProblemDescription: "find two indices",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Score != 73 || !res.Passed || res.Feedback != "uses a hash map" {
		t.Fatalf("unexpected evaluation: %+v", res)
	}
	if seen.Model != "grader-1" || len(seen.Messages) != 2 {
		t.Fatalf("unexpected request: %+v", seen)
	}
	if seen.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("first message should be the system prompt: %+v", seen.Messages[0])
	}
	var sent evaluateRequest
	if err := json.Unmarshal([]byte(seen.Messages[1].Content), &sent); err != nil {
		t.Fatalf("user message is not JSON: %v", err)
	}
	if sent.ExpectedConcepts != "hash map" || sent.Language != "python" || sent.ProblemDescription != "find two indices" {
		t.Fatalf("submission not forwarded: %+v", sent)
	}
	if seen.ResponseFormat == nil || seen.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Fatalf("expected JSON response format: %+v", seen.ResponseFormat)
	}
}

func TestOpenAIEvaluateFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{"api error", http.StatusInternalServerError, ""},
		{"prose answer", http.StatusOK, "The code looks fine."},
		{"missing score", http.StatusOK, `{"passed": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.status, tt.content, nil)
			defer srv.Close()
			if _, err := newOpenAITestEvaluator(t, srv).Evaluate(context.Background(), scoring.EvaluationRequest{}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		score   int
	}{
		{"plain", `{"score": 40, "passed": false, "feedback": "x"}`, 40},
		{"fenced", "```json\n{\"score\": 90, \"passed\": true}\n```", 90},
		{"clamped high", `{"score": 140}`, 100},
		{"clamped low", `{"score": -3}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseVerdict(tt.content)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if res.Score != tt.score {
				t.Fatalf("expected score %d, got %d", tt.score, res.Score)
			}
		})
	}
}

func TestNewSelectsProvider(t *testing.T) {
	ev, err := New(Config{Enabled: true, Provider: "OpenAI", APIKey: "sk-test"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := ev.(*OpenAIEvaluator); !ok {
		t.Fatalf("expected openai evaluator, got %T", ev)
	}
	ev, err = New(Config{Enabled: true, URL: "http://grader"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := ev.(*HTTPEvaluator); !ok {
		t.Fatalf("expected http evaluator by default, got %T", ev)
	}
	if _, err := New(Config{Enabled: true, Provider: "openai"}, nil); err == nil {
		t.Fatalf("expected error without apiKey")
	}
	if _, err := New(Config{Enabled: true, Provider: "carrier-pigeon"}, nil); err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}
