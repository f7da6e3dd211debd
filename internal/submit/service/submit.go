package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"codearena/internal/common/db"
	"codearena/internal/judge/language"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/judge/runner"
	"codearena/internal/judge/scoring"
	"codearena/internal/submit/model"
	"codearena/internal/submit/repository"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// SubmitInput is a graded, persisted attempt.
type SubmitInput struct {
	UserID         int64
	ContestID      int64
	TaskID         int64
	Language       string
	Code           string
	IdempotencyKey string
	ClientIP       string
	Viewer         Viewer
}

// Submit grades the code against every test case of the task, stores the
// submission and propagates the participant's contest score.
func (s *SubmitService) Submit(ctx context.Context, in SubmitInput) (*SubmissionView, error) {
	if err := s.validateSource(in.UserID, in.TaskID, in.Language, in.Code); err != nil {
		return nil, err
	}
	if in.ContestID <= 0 {
		return nil, appErr.ValidationError("contestId", "required")
	}
	if err := s.checkRateLimit(ctx, "submit", in.UserID, in.ClientIP); err != nil {
		return nil, err
	}
	lang, ok := language.Lookup(in.Language)
	if !ok {
		return nil, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", in.Language)
	}

	acquired, existingID, err := s.acquireIdempotency(ctx, in.UserID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !acquired {
		logger.Info(ctx, "idempotent submit replay", zap.Int64("submission_id", existingID))
		return s.loadView(ctx, in.Viewer, existingID)
	}
	succeeded := false
	defer func() {
		if !succeeded {
			s.releaseIdempotency(ctx, in.UserID, in.IdempotencyKey, acquired)
		}
	}()

	task, err := s.checkEligibility(ctx, in)
	if err != nil {
		return nil, err
	}

	release, err := s.acquireSubmitLock(ctx, in.ContestID, in.TaskID, in.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkSubmissionLimit(ctx, in); err != nil {
		return nil, err
	}

	cases, err := s.loadCases(ctx, in.TaskID, true)
	if err != nil {
		return nil, err
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
		Results:     results,
		MaxPoints:   task.MaxPoints,
		AI:          task.AIEvaluation,
		Code:        in.Code,
		Language:    lang.Name,
		Description: task.Description,
	})

	progress, err := s.progress.GetProgress(ctx, in.ContestID, in.TaskID, in.UserID)
	if err != nil {
		logger.Warn(ctx, "read task progress failed, storing empty snapshot", zap.Error(err))
		progress = model.Progress{}
	}

	sub := buildSubmission(in, lang, cases, results, verdict, progress, start)
	if err := s.persist(ctx, sub); err != nil {
		return nil, err
	}
	succeeded = true

	s.finalizeIdempotency(ctx, in.UserID, in.IdempotencyKey, sub.ID, acquired)
	s.metrics.ObserveGrading("submit", lang.Name, string(sub.Status), time.Since(start))
	logger.Info(ctx, "submission graded",
		zap.Int64("submission_id", sub.ID),
		zap.Int64("task_id", sub.TaskID),
		zap.String("status", string(sub.Status)),
		zap.Int("score", sub.Score),
		zap.Int("passed", sub.PassedCount),
		zap.Int("total", sub.TotalCount),
	)
	s.runHooks(ctx, CommitEvent{Kind: model.EventSubmissionGraded, Submission: sub, ActorID: in.UserID})

	view := Project(in.Viewer, sub, cases)
	return &view, nil
}

func (s *SubmitService) validateSource(userID, taskID int64, lang, code string) error {
	if userID <= 0 {
		return appErr.ValidationError("userId", "required")
	}
	if taskID <= 0 {
		return appErr.ValidationError("taskId", "required")
	}
	if strings.TrimSpace(lang) == "" {
		return appErr.ValidationError("language", "required")
	}
	if strings.TrimSpace(code) == "" {
		return appErr.ValidationError("code", "required")
	}
	if s.maxCodeBytes > 0 && len(code) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithDetail("limit", s.maxCodeBytes)
	}
	return nil
}

func (s *SubmitService) checkEligibility(ctx context.Context, in SubmitInput) (*judgemodel.Task, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()

	enrolled, err := s.contests.IsParticipant(ctxDB.ctx, in.ContestID, in.UserID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "check enrollment failed")
	}
	if !enrolled {
		return nil, appErr.New(appErr.NotRegistered)
	}
	task, err := s.getTask(ctxDB.ctx, in.TaskID)
	if err != nil {
		return nil, err
	}
	if task.ContestID != in.ContestID {
		return nil, appErr.New(appErr.TaskNotFound).WithMessage("task does not belong to this contest")
	}
	return task, nil
}

func (s *SubmitService) checkSubmissionLimit(ctx context.Context, in SubmitInput) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()

	settings, err := s.contests.GetSettings(ctxDB.ctx, in.ContestID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "load contest settings failed")
	}
	if settings.MaxSubmissionsAllowed <= 0 {
		return nil
	}
	count, err := s.submissions.CountByUserTask(ctxDB.ctx, in.UserID, in.TaskID, in.ContestID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "count submissions failed")
	}
	if count >= settings.MaxSubmissionsAllowed {
		return appErr.New(appErr.SubmissionLimitExceeded).
			WithDetail("limit", settings.MaxSubmissionsAllowed).
			WithDetail("used", count)
	}
	return nil
}

func (s *SubmitService) getTask(ctx context.Context, taskID int64) (*judgemodel.Task, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, appErr.New(appErr.TaskNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load task failed")
	}
	return task, nil
}

func (s *SubmitService) loadCases(ctx context.Context, taskID int64, includeHidden bool) ([]judgemodel.TestCase, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	cases, err := s.tasks.ListTestCases(ctxDB.ctx, taskID, includeHidden)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load test cases failed")
	}
	if len(cases) == 0 {
		return nil, appErr.New(appErr.NoTestCases)
	}
	return cases, nil
}

// persist inserts sub and raises the participant total in one transaction.
func (s *SubmitService) persist(ctx context.Context, sub *model.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	err := s.tx.Transaction(ctxDB.ctx, func(tx db.Transaction) error {
		id, err := s.submissions.Create(ctxDB.ctx, tx, sub)
		if err != nil {
			return err
		}
		sub.ID = id
		raised, err := s.contests.RecomputeScore(ctxDB.ctx, tx, sub.ContestID, sub.UserID, true)
		if err != nil {
			return err
		}
		if raised {
			logger.Info(ctx, "participant score raised",
				zap.Int64("contest_id", sub.ContestID),
				zap.Int64("user_id", sub.UserID),
			)
		}
		return nil
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "save submission failed")
	}
	return nil
}

func (s *SubmitService) loadView(ctx context.Context, viewer Viewer, submissionID int64) (*SubmissionView, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	sub, err := s.submissions.GetByID(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	cases, err := s.tasks.ListTestCases(ctxDB.ctx, sub.TaskID, true)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load test cases failed")
	}
	view := Project(viewer, sub, cases)
	return &view, nil
}

func buildSubmission(
	in SubmitInput,
	lang language.Language,
	cases []judgemodel.TestCase,
	results []judgemodel.ExecutionResult,
	verdict scoring.Result,
	progress model.Progress,
	submittedAt time.Time,
) *model.Submission {
	summary := judgemodel.Summarize(results)
	sub := &model.Submission{
		UserID:         in.UserID,
		TaskID:         in.TaskID,
		ContestID:      in.ContestID,
		Language:       lang.Name,
		LanguageID:     lang.ID,
		SourceCode:     in.Code,
		Status:         verdict.Status,
		Results:        make([]model.CaseResult, len(results)),
		PassedCount:    summary.Passed,
		TotalCount:     summary.Total,
		MaxExecutionMs: summary.MaxExecutionMs,
		MaxMemoryKB:    summary.MaxMemoryKB,
		Score:          verdict.Score,
		HintsUsed:      progress.HintsUsed,
		SolutionUsed:   progress.SolutionUsed,
		SubmittedAt:    submittedAt,
		ProcessedAt:    time.Now(),
	}
	for i, r := range results {
		sub.Results[i] = model.CaseResult{
			TestCaseID:      cases[i].ID,
			Hidden:          cases[i].Hidden,
			ExecutionResult: r,
		}
	}
	if ai := verdict.AI; ai != nil {
		sub.AIFeedback = ai.Feedback
		sub.AIExpectedConcepts = ai.ExpectedConcepts
		if !ai.Fallback {
			score, passed := ai.Score, ai.Passed
			sub.AIScore = &score
			sub.AIPassed = &passed
		}
	}
	return sub
}
