package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"codearena/internal/common/db"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/submit/model"
)

var ErrSubmissionNotFound = errors.New("submission not found")

// SubmissionRepository persists graded attempts. Rows are append-only apart
// from UpdateScore.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *model.Submission) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, submissionID int64) (*model.Submission, error)
	CountByUserTask(ctx context.Context, userID, taskID, contestID int64) (int, error)
	ListByUserTask(ctx context.Context, userID, taskID, contestID int64, limit int) ([]*model.Submission, error)
	UpdateScore(ctx context.Context, tx db.Transaction, submissionID int64, score int) error
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

func NewSubmissionRepository(database db.Database) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const submissionColumns = `id, user_id, task_id, contest_id, language, language_id, code, status,
	test_results, passed_tests, total_tests, execution_time, memory_used, score,
	hints_used, solution_used, ai_score, ai_passed, ai_feedback, ai_expected_concepts,
	submitted_at, processed_at`

// Create inserts a submission and returns its id.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *model.Submission) (int64, error) {
	if submission == nil {
		return 0, errors.New("submission is nil")
	}
	if submission.UserID <= 0 || submission.TaskID <= 0 || submission.ContestID <= 0 {
		return 0, errors.New("userID, taskID and contestID are required")
	}
	results, err := json.Marshal(submission.Results)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO submissions
		(user_id, task_id, contest_id, language, language_id, code, status,
		 test_results, passed_tests, total_tests, execution_time, memory_used, score,
		 hints_used, solution_used, ai_score, ai_passed, ai_feedback, ai_expected_concepts,
		 submitted_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.UserID,
		submission.TaskID,
		submission.ContestID,
		submission.Language,
		submission.LanguageID,
		submission.SourceCode,
		string(submission.Status),
		string(results),
		submission.PassedCount,
		submission.TotalCount,
		submission.MaxExecutionMs,
		submission.MaxMemoryKB,
		submission.Score,
		submission.HintsUsed,
		submission.SolutionUsed,
		nullableInt(submission.AIScore),
		nullableBool(submission.AIPassed),
		nullableString(submission.AIFeedback),
		nullableString(submission.AIExpectedConcepts),
		submission.SubmittedAt,
		submission.ProcessedAt,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	submission.ID = id
	return id, nil
}

func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID int64) (*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	sub, err := scanSubmission(db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (r *MySQLSubmissionRepository) CountByUserTask(ctx context.Context, userID, taskID, contestID int64) (int, error) {
	query := "SELECT COUNT(*) FROM submissions WHERE user_id = ? AND task_id = ? AND contest_id = ?"
	var count int
	if err := r.db.QueryRow(ctx, query, userID, taskID, contestID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListByUserTask returns the newest submissions first. A zero contestID
// lists the task's submissions across every contest.
func (r *MySQLSubmissionRepository) ListByUserTask(ctx context.Context, userID, taskID, contestID int64, limit int) ([]*model.Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + submissionColumns + ` FROM submissions
		WHERE user_id = ? AND task_id = ? AND (? = 0 OR contest_id = ?)
		ORDER BY submitted_at DESC, id DESC
		LIMIT ?`
	rows, err := r.db.Query(ctx, query, userID, taskID, contestID, contestID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MySQLSubmissionRepository) UpdateScore(ctx context.Context, tx db.Transaction, submissionID int64, score int) error {
	res, err := db.GetQuerier(r.db, tx).Exec(ctx, "UPDATE submissions SET score = ? WHERE id = ?", score, submissionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// MySQL reports zero when the value is unchanged, so confirm the row exists.
		if _, err := r.GetByID(ctx, tx, submissionID); err != nil {
			return err
		}
	}
	return nil
}

func scanSubmission(row db.Row) (*model.Submission, error) {
	var (
		sub        model.Submission
		status     string
		results    sql.NullString
		aiScore    sql.NullInt64
		aiPassed   sql.NullBool
		aiFeedback sql.NullString
		aiConcepts sql.NullString
		processed  sql.NullTime
	)
	if err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.TaskID,
		&sub.ContestID,
		&sub.Language,
		&sub.LanguageID,
		&sub.SourceCode,
		&status,
		&results,
		&sub.PassedCount,
		&sub.TotalCount,
		&sub.MaxExecutionMs,
		&sub.MaxMemoryKB,
		&sub.Score,
		&sub.HintsUsed,
		&sub.SolutionUsed,
		&aiScore,
		&aiPassed,
		&aiFeedback,
		&aiConcepts,
		&sub.SubmittedAt,
		&processed,
	); err != nil {
		return nil, err
	}
	sub.Status = judgemodel.Status(status)
	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &sub.Results); err != nil {
			return nil, err
		}
	}
	if aiScore.Valid {
		v := int(aiScore.Int64)
		sub.AIScore = &v
	}
	if aiPassed.Valid {
		v := aiPassed.Bool
		sub.AIPassed = &v
	}
	sub.AIFeedback = aiFeedback.String
	sub.AIExpectedConcepts = aiConcepts.String
	if processed.Valid {
		sub.ProcessedAt = processed.Time
	}
	return &sub, nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

