package service

import (
	"context"
	"errors"

	"codearena/internal/common/db"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/submit/model"
	"codearena/internal/submit/repository"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// HistoryInput selects the caller's submissions for one task.
type HistoryInput struct {
	UserID    int64
	TaskID    int64
	ContestID int64
	Limit     int
	Viewer    Viewer
}

// History lists the caller's submissions for a task, newest first.
func (s *SubmitService) History(ctx context.Context, in HistoryInput) ([]SubmissionView, error) {
	if in.UserID <= 0 {
		return nil, appErr.ValidationError("userId", "required")
	}
	if in.TaskID <= 0 {
		return nil, appErr.ValidationError("taskId", "required")
	}
	limit := in.Limit
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	subs, err := s.submissions.ListByUserTask(ctxDB.ctx, in.UserID, in.TaskID, in.ContestID, limit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	views := make([]SubmissionView, 0, len(subs))
	if len(subs) == 0 {
		return views, nil
	}
	cases, err := s.tasks.ListTestCases(ctxDB.ctx, in.TaskID, true)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load test cases failed")
	}
	for _, sub := range subs {
		views = append(views, Project(in.Viewer, sub, cases))
	}
	return views, nil
}

// OverrideInput is an administrator's manual score correction.
type OverrideInput struct {
	AdminID      int64
	SubmissionID int64
	Score        int
	Viewer       Viewer
}

// OverrideScore replaces a submission's score, clamped to the task's
// points, and recomputes the participant total without the never-decrease
// guard.
func (s *SubmitService) OverrideScore(ctx context.Context, in OverrideInput) (*SubmissionView, error) {
	if in.Viewer != ViewerAdmin {
		return nil, appErr.ForbiddenError("only administrators can override scores")
	}
	if in.SubmissionID <= 0 {
		return nil, appErr.ValidationError("submissionId", "required")
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()

	sub, err := s.submissions.GetByID(ctxDB.ctx, nil, in.SubmissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	task, err := s.getTask(ctxDB.ctx, sub.TaskID)
	if err != nil {
		return nil, err
	}

	score := clampScore(in.Score, task.MaxPoints)
	previous := sub.Score
	err = s.tx.Transaction(ctxDB.ctx, func(tx db.Transaction) error {
		if err := s.submissions.UpdateScore(ctxDB.ctx, tx, sub.ID, score); err != nil {
			return err
		}
		_, err := s.contests.RecomputeScore(ctxDB.ctx, tx, sub.ContestID, sub.UserID, false)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "override score failed")
	}
	sub.Score = score

	logger.Info(ctx, "submission score overridden",
		zap.Int64("submission_id", sub.ID),
		zap.Int64("admin_id", in.AdminID),
		zap.Int("previous_score", previous),
		zap.Int("score", score),
	)
	s.runHooks(ctx, CommitEvent{
		Kind:          model.EventScoreOverridden,
		Submission:    sub,
		PreviousScore: previous,
		ActorID:       in.AdminID,
	})

	cases, err := s.tasks.ListTestCases(ctxDB.ctx, sub.TaskID, true)
	if err != nil {
		logger.Warn(ctx, "load test cases for override response failed", zap.Error(err))
		cases = []judgemodel.TestCase{}
	}
	view := Project(ViewerAdmin, sub, cases)
	return &view, nil
}

func clampScore(score, maxPoints int) int {
	if score < 0 {
		return 0
	}
	if maxPoints >= 0 && score > maxPoints {
		return maxPoints
	}
	return score
}
