package service

import (
	"context"
	"strings"
	"time"

	"codearena/internal/judge/language"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/judge/runner"
	"codearena/internal/judge/scoring"
	appErr "codearena/pkg/errors"
)

// CustomCase is a caller supplied run case.
type CustomCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

// RunInput is an unsaved attempt. CustomCases, when present, replace the
// task's visible cases.
type RunInput struct {
	UserID      int64
	TaskID      int64
	Language    string
	Code        string
	CustomCases []CustomCase
	ClientIP    string
}

// Run grades the code without saving anything. Hidden cases are never used
// and nothing counts toward the submission limit.
func (s *SubmitService) Run(ctx context.Context, in RunInput) (*RunView, error) {
	if err := s.validateSource(in.UserID, in.TaskID, in.Language, in.Code); err != nil {
		return nil, err
	}
	if len(in.CustomCases) > s.maxCustomCases {
		return nil, appErr.ValidationError("testCases", "too many custom test cases").
			WithDetail("limit", s.maxCustomCases)
	}
	if err := s.checkRateLimit(ctx, "run", in.UserID, in.ClientIP); err != nil {
		return nil, err
	}
	lang, ok := language.Lookup(in.Language)
	if !ok {
		return nil, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", in.Language)
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	task, err := s.getTask(ctxDB.ctx, in.TaskID)
	ctxDB.cancel()
	if err != nil {
		return nil, err
	}

	var cases []judgemodel.TestCase
	if len(in.CustomCases) > 0 {
		cases = customCases(in.TaskID, in.CustomCases)
		if len(cases) == 0 {
			return nil, appErr.New(appErr.NoTestCases)
		}
	} else {
		cases, err = s.loadCases(ctx, in.TaskID, false)
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	gradeCtx := withTimeout(ctx, s.timeouts.Grading)
	results, err := s.runner.Run(gradeCtx.ctx, runner.Job{
		Source:       in.Code,
		Language:     lang.Name,
		FunctionName: task.FunctionName,
		Template:     task.HarnessFor(lang.Name),
		Cases:        cases,
	})
	gradeCtx.cancel()
	if err != nil {
		return nil, err
	}
	verdict := s.scoring.Score(ctx, scoring.Input{
		Results:   results,
		MaxPoints: task.MaxPoints,
	})
	s.metrics.ObserveGrading("run", lang.Name, string(verdict.Status), time.Since(start))

	view := ProjectRun(verdict.Status, verdict.Score, cases, results)
	return &view, nil
}

func customCases(taskID int64, in []CustomCase) []judgemodel.TestCase {
	out := make([]judgemodel.TestCase, 0, len(in))
	for i, c := range in {
		if strings.TrimSpace(c.Input) == "" && strings.TrimSpace(c.ExpectedOutput) == "" {
			continue
		}
		out = append(out, judgemodel.TestCase{
			TaskID:         taskID,
			Input:          c.Input,
			ExpectedOutput: c.ExpectedOutput,
			OrderIndex:     i,
		})
	}
	return out
}
