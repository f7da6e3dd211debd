package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/submit/model"
)

const (
	settingsCacheKeyPrefix  = "contest:settings:"
	defaultSettingsCacheTTL = 30 * time.Second
)

// ContestRepository covers enrollment, settings and the denormalized
// participant total.
type ContestRepository interface {
	IsParticipant(ctx context.Context, contestID, userID int64) (bool, error)
	// GetSettings returns defaults when the contest has no settings row.
	GetSettings(ctx context.Context, contestID int64) (*model.ContestSettings, error)
	// RecomputeScore sets the participant total to the sum of the best
	// submission per task. With onlyIfHigher the total never decreases.
	RecomputeScore(ctx context.Context, tx db.Transaction, contestID, userID int64, onlyIfHigher bool) (bool, error)
}

// MySQLContestRepository implements ContestRepository with MySQL.
type MySQLContestRepository struct {
	db       db.Database
	settings cache.Loader[*model.ContestSettings]
}

// NewContestRepository caches settings for settingsTTL. The submission cap
// is read from these settings, so a lowered cap takes effect only once the
// entry expires. A negative settingsTTL reads MySQL on every call.
func NewContestRepository(database db.Database, cacheClient cache.Cache, settingsTTL time.Duration) *MySQLContestRepository {
	switch {
	case settingsTTL == 0:
		settingsTTL = defaultSettingsCacheTTL
	case settingsTTL < 0:
		cacheClient = nil
	}
	return &MySQLContestRepository{
		db:       database,
		settings: cache.Loader[*model.ContestSettings]{Cache: cacheClient, TTL: settingsTTL},
	}
}

func (r *MySQLContestRepository) IsParticipant(ctx context.Context, contestID, userID int64) (bool, error) {
	query := "SELECT 1 FROM contest_participants WHERE contest_id = ? AND user_id = ? LIMIT 1"
	var one int
	if err := r.db.QueryRow(ctx, query, contestID, userID).Scan(&one); err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *MySQLContestRepository) GetSettings(ctx context.Context, contestID int64) (*model.ContestSettings, error) {
	return r.settings.Load(ctx, settingsCacheKeyPrefix+strconv.FormatInt(contestID, 10), func(ctx context.Context) (*model.ContestSettings, error) {
		return r.getSettingsFromDB(ctx, contestID)
	})
}

func (r *MySQLContestRepository) getSettingsFromDB(ctx context.Context, contestID int64) (*model.ContestSettings, error) {
	query := `
		SELECT contest_id, max_submissions_allowed, ai_mode_enabled
		FROM contest_settings
		WHERE contest_id = ?
		LIMIT 1`
	settings := &model.ContestSettings{}
	err := r.db.QueryRow(ctx, query, contestID).Scan(
		&settings.ContestID,
		&settings.MaxSubmissionsAllowed,
		&settings.AIModeEnabled,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return &model.ContestSettings{ContestID: contestID}, nil
		}
		return nil, err
	}
	return settings, nil
}

func (r *MySQLContestRepository) RecomputeScore(ctx context.Context, tx db.Transaction, contestID, userID int64, onlyIfHigher bool) (bool, error) {
	query := `
		UPDATE contest_participants cp
		JOIN (
			SELECT COALESCE(SUM(best.score), 0) AS total
			FROM (
				SELECT MAX(score) AS score
				FROM submissions
				WHERE contest_id = ? AND user_id = ?
				GROUP BY task_id
			) best
		) agg
		SET cp.score = agg.total
		WHERE cp.contest_id = ? AND cp.user_id = ?`
	if onlyIfHigher {
		query += " AND agg.total > cp.score"
	}
	res, err := db.GetQuerier(r.db, tx).Exec(ctx, query, contestID, userID, contestID, userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ProgressRepository reads a participant's hint and solution usage.
type ProgressRepository interface {
	GetProgress(ctx context.Context, contestID, taskID, userID int64) (model.Progress, error)
}

// ActivityRepository appends to the contest audit trail.
type ActivityRepository interface {
	Append(ctx context.Context, entry *model.ActivityLog) error
}

// MySQLActivityRepository implements ProgressRepository and ActivityRepository.
type MySQLActivityRepository struct {
	db db.Database
}

func NewActivityRepository(database db.Database) *MySQLActivityRepository {
	return &MySQLActivityRepository{db: database}
}

func (r *MySQLActivityRepository) GetProgress(ctx context.Context, contestID, taskID, userID int64) (model.Progress, error) {
	query := `
		SELECT hints_used, solution_used
		FROM task_progress
		WHERE contest_id = ? AND task_id = ? AND user_id = ?
		LIMIT 1`
	var p model.Progress
	if err := r.db.QueryRow(ctx, query, contestID, taskID, userID).Scan(&p.HintsUsed, &p.SolutionUsed); err != nil {
		if db.IsNoRows(err) {
			return model.Progress{}, nil
		}
		return model.Progress{}, err
	}
	return p, nil
}

func (r *MySQLActivityRepository) Append(ctx context.Context, entry *model.ActivityLog) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `
		INSERT INTO activity_logs (contest_id, user_id, activity_type, severity, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err = r.db.Exec(ctx, query, entry.ContestID, entry.UserID, entry.Type, entry.Severity, string(details), createdAt)
	return err
}
