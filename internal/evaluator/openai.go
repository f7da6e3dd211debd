package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"codearena/internal/judge/scoring"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

const evaluateSystemPrompt = `You review solutions submitted to a programming contest.
You receive a JSON object with the fields code, language, expectedConcepts and problemDescription.
Judge only whether the code applies the expected concepts in a sound way. Test correctness is checked elsewhere.
Answer with a single JSON object and nothing else: {"score": <integer 0-100>, "passed": <true|false>, "feedback": "<at most three sentences>"}.`

var errNoChoices = errors.New("completion has no choices")

// OpenAIEvaluator asks a chat completion model for the concept score.
type OpenAIEvaluator struct {
	client *openai.Client
	model  string
}

func NewOpenAI(cfg Config, hc *http.Client) (*OpenAIEvaluator, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("openai evaluator requires apiKey")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.URL != "" {
		oc.BaseURL = strings.TrimRight(cfg.URL, "/")
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	oc.HTTPClient = hc
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	return &OpenAIEvaluator{client: openai.NewClientWithConfig(oc), model: cfg.Model}, nil
}

func (e *OpenAIEvaluator) Evaluate(ctx context.Context, req scoring.EvaluationRequest) (*scoring.Evaluation, error) {
	prompt, err := json.Marshal(evaluateRequest{
		Code:               req.Code,
		Language:           req.Language,
		ExpectedConcepts:   req.ExpectedConcepts,
		ProblemDescription: req.ProblemDescription,
	})
	if err != nil {
		return nil, err
	}
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: evaluateSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(prompt)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai evaluator: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai evaluator: %w", errNoChoices)
	}
	return parseVerdict(resp.Choices[0].Message.Content)
}

// parseVerdict reads the model's JSON answer. Models sometimes wrap it in a
// markdown code fence.
func parseVerdict(content string) (*scoring.Evaluation, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	var verdict evaluateResponse
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return nil, fmt.Errorf("openai evaluator: decode verdict: %w", err)
	}
	if verdict.Score == nil {
		return nil, errors.New("openai evaluator: verdict has no score")
	}
	score := math.Max(0, math.Min(100, math.Round(*verdict.Score)))
	return &scoring.Evaluation{
		Score:    int(score),
		Passed:   verdict.Passed,
		Feedback: strings.TrimSpace(verdict.Feedback),
	}, nil
}

var _ scoring.Evaluator = (*OpenAIEvaluator)(nil)
