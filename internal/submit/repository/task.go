package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	judgemodel "codearena/internal/judge/model"
)

const (
	defaultTaskCacheTTL      = 10 * time.Minute
	defaultTaskCacheEmptyTTL = time.Minute
	taskCacheKeyPrefix       = "task:"
	testCaseCacheKeyPrefix   = "task:testcases:"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskRepository reads task definitions and their test cases.
type TaskRepository interface {
	GetTask(ctx context.Context, taskID int64) (*judgemodel.Task, error)
	// ListTestCases returns cases ordered by order index. Hidden cases are
	// included only when includeHidden is set.
	ListTestCases(ctx context.Context, taskID int64, includeHidden bool) ([]judgemodel.TestCase, error)
}

// MySQLTaskRepository implements TaskRepository with a cache-aside layer.
type MySQLTaskRepository struct {
	db    db.Database
	tasks cache.Loader[*judgemodel.Task]
	cases cache.Loader[[]judgemodel.TestCase]
}

func NewTaskRepository(database db.Database, cacheClient cache.Cache, ttl time.Duration) *MySQLTaskRepository {
	if ttl <= 0 {
		ttl = defaultTaskCacheTTL
	}
	return &MySQLTaskRepository{
		db: database,
		tasks: cache.Loader[*judgemodel.Task]{
			Cache:    cacheClient,
			TTL:      ttl,
			EmptyTTL: defaultTaskCacheEmptyTTL,
			IsEmpty:  func(t *judgemodel.Task) bool { return t == nil },
		},
		cases: cache.Loader[[]judgemodel.TestCase]{
			Cache:    cacheClient,
			TTL:      ttl,
			EmptyTTL: defaultTaskCacheEmptyTTL,
			IsEmpty:  func(cases []judgemodel.TestCase) bool { return len(cases) == 0 },
		},
	}
}

func (r *MySQLTaskRepository) GetTask(ctx context.Context, taskID int64) (*judgemodel.Task, error) {
	task, err := r.tasks.Load(ctx, taskCacheKeyPrefix+strconv.FormatInt(taskID, 10), func(ctx context.Context) (*judgemodel.Task, error) {
		task, err := r.getTaskFromDB(ctx, taskID)
		if errors.Is(err, ErrTaskNotFound) {
			return nil, nil
		}
		return task, err
	})
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (r *MySQLTaskRepository) ListTestCases(ctx context.Context, taskID int64, includeHidden bool) ([]judgemodel.TestCase, error) {
	all, err := r.cases.Load(ctx, testCaseCacheKeyPrefix+strconv.FormatInt(taskID, 10), func(ctx context.Context) ([]judgemodel.TestCase, error) {
		return r.listTestCasesFromDB(ctx, taskID)
	})
	if err != nil {
		return nil, err
	}
	if includeHidden {
		return all, nil
	}
	visible := make([]judgemodel.TestCase, 0, len(all))
	for _, tc := range all {
		if !tc.Hidden {
			visible = append(visible, tc)
		}
	}
	return visible, nil
}

func (r *MySQLTaskRepository) getTaskFromDB(ctx context.Context, taskID int64) (*judgemodel.Task, error) {
	query := `
		SELECT id, contest_id, title, description, function_name, max_points,
			boilerplate, harness_templates, ai_eval_enabled, ai_eval_weight, ai_expected_concepts
		FROM tasks
		WHERE id = ?
		LIMIT 1`
	var (
		task        judgemodel.Task
		boilerplate sql.NullString
		harness     sql.NullString
		aiEnabled   bool
		aiWeight    int
		aiConcepts  sql.NullString
	)
	err := r.db.QueryRow(ctx, query, taskID).Scan(
		&task.ID,
		&task.ContestID,
		&task.Title,
		&task.Description,
		&task.FunctionName,
		&task.MaxPoints,
		&boilerplate,
		&harness,
		&aiEnabled,
		&aiWeight,
		&aiConcepts,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if task.Boilerplate, err = decodeLanguageMap(boilerplate); err != nil {
		return nil, err
	}
	if task.Harness, err = decodeLanguageMap(harness); err != nil {
		return nil, err
	}
	if aiEnabled {
		task.AIEvaluation = &judgemodel.AIEvaluationConfig{
			Enabled:          true,
			Weight:           aiWeight,
			ExpectedConcepts: aiConcepts.String,
		}
	}
	return &task, nil
}

func (r *MySQLTaskRepository) listTestCasesFromDB(ctx context.Context, taskID int64) ([]judgemodel.TestCase, error) {
	query := `
		SELECT id, task_id, input, expected_output, is_hidden, order_index
		FROM test_cases
		WHERE task_id = ?
		ORDER BY order_index ASC, id ASC`
	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []judgemodel.TestCase
	for rows.Next() {
		var tc judgemodel.TestCase
		if err := rows.Scan(&tc.ID, &tc.TaskID, &tc.Input, &tc.ExpectedOutput, &tc.Hidden, &tc.OrderIndex); err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cases, nil
}

func decodeLanguageMap(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}
