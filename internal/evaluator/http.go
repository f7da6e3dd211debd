package evaluator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"codearena/internal/common/httpclient"
	"codearena/internal/judge/scoring"
)

type evaluateRequest struct {
	Code               string `json:"code"`
	Language           string `json:"language"`
	ExpectedConcepts   string `json:"expectedConcepts"`
	ProblemDescription string `json:"problemDescription"`
}

type evaluateResponse struct {
	Score    *float64 `json:"score"`
	Passed   bool     `json:"passed"`
	Feedback string   `json:"feedback"`
}

// HTTPEvaluator posts submissions to a generic evaluation service.
type HTTPEvaluator struct {
	client *httpclient.Client
	path   string
}

func NewHTTP(cfg Config, hc *http.Client) (*HTTPEvaluator, error) {
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, errors.New("evaluator url is required")
	}
	if cfg.Path == "" {
		cfg.Path = "/evaluate"
	}
	apiKey := cfg.APIKey
	client := httpclient.New(cfg.URL, cfg.Timeout,
		httpclient.WithHTTPClient(hc),
		httpclient.WithBearer(func() string { return apiKey }),
	)
	return &HTTPEvaluator{client: client, path: cfg.Path}, nil
}

func (e *HTTPEvaluator) Evaluate(ctx context.Context, req scoring.EvaluationRequest) (*scoring.Evaluation, error) {
	in := evaluateRequest{
		Code:               req.Code,
		Language:           req.Language,
		ExpectedConcepts:   req.ExpectedConcepts,
		ProblemDescription: req.ProblemDescription,
	}
	var resp evaluateResponse
	if _, err := e.client.DoJSON(ctx, http.MethodPost, e.path, in, &resp); err != nil {
		return nil, fmt.Errorf("evaluator: %w", err)
	}
	if resp.Score == nil {
		return nil, errors.New("evaluation response has no score")
	}
	return &scoring.Evaluation{
		Score:    int(*resp.Score + 0.5),
		Passed:   resp.Passed,
		Feedback: resp.Feedback,
	}, nil
}

var _ scoring.Evaluator = (*HTTPEvaluator)(nil)
