package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/submit/model"
	"codearena/internal/submit/repository"
	"codearena/pkg/utils/logger"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// CommitEvent describes a committed change to a submission.
type CommitEvent struct {
	Kind          string
	Submission    *model.Submission
	PreviousScore int
	ActorID       int64
}

// PostCommitHook is a best-effort side effect run after the transaction
// commits. Errors are logged and never reach the caller.
type PostCommitHook interface {
	Name() string
	AfterCommit(ctx context.Context, ev CommitEvent) error
}

func (s *SubmitService) runHooks(ctx context.Context, ev CommitEvent) {
	if len(s.hooks) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	s.hookWG.Add(1)
	go func() {
		defer s.hookWG.Done()
		for _, hook := range s.hooks {
			hookCtx := withTimeout(detached, s.timeouts.Hooks)
			err := hook.AfterCommit(hookCtx.ctx, ev)
			hookCtx.cancel()
			if err != nil {
				s.metrics.HookFailed(hook.Name())
				logger.Error(detached, "post-commit hook failed",
					zap.String("hook", hook.Name()),
					zap.Int64("submission_id", ev.Submission.ID),
					zap.Error(err),
				)
			}
		}
	}()
}

// ActivityHook appends the contest audit trail entry.
type ActivityHook struct {
	repo repository.ActivityRepository
}

func NewActivityHook(repo repository.ActivityRepository) *ActivityHook {
	return &ActivityHook{repo: repo}
}

func (h *ActivityHook) Name() string { return "activity_log" }

func (h *ActivityHook) AfterCommit(ctx context.Context, ev CommitEvent) error {
	sub := ev.Submission
	entry := &model.ActivityLog{
		ContestID: sub.ContestID,
		UserID:    sub.UserID,
		CreatedAt: time.Now(),
	}
	switch ev.Kind {
	case model.EventScoreOverridden:
		entry.Type = model.ActivityScoreOverride
		entry.Severity = model.SeverityInfo
		entry.Details = map[string]interface{}{
			"submissionId":  sub.ID,
			"taskId":        sub.TaskID,
			"previousScore": ev.PreviousScore,
			"score":         sub.Score,
			"adminId":       ev.ActorID,
		}
	default:
		entry.Type = model.ActivityTaskSubmitted
		entry.Severity = model.SeverityWarning
		if sub.Status == judgemodel.StatusAccepted {
			entry.Severity = model.SeverityInfo
		}
		entry.Details = map[string]interface{}{
			"submissionId": sub.ID,
			"taskId":       sub.TaskID,
			"language":     sub.Language,
			"status":       sub.Status,
			"score":        sub.Score,
			"passedTests":  sub.PassedCount,
			"totalTests":   sub.TotalCount,
		}
	}
	return h.repo.Append(ctx, entry)
}

// NotifyHook publishes submission events for the admin monitor. Messages are
// keyed by contest so one contest's events stay ordered.
type NotifyHook struct {
	producer mq.Producer
	topic    string
}

func NewNotifyHook(producer mq.Producer, topic string) *NotifyHook {
	return &NotifyHook{producer: producer, topic: topic}
}

func (h *NotifyHook) Name() string { return "notify" }

func (h *NotifyHook) AfterCommit(ctx context.Context, ev CommitEvent) error {
	sub := ev.Submission
	kind := ev.Kind
	if kind == "" {
		kind = model.EventSubmissionGraded
	}
	body, err := json.Marshal(model.SubmissionEvent{
		Type:         kind,
		SubmissionID: sub.ID,
		ContestID:    sub.ContestID,
		TaskID:       sub.TaskID,
		UserID:       sub.UserID,
		Language:     sub.Language,
		Status:       sub.Status,
		Score:        sub.Score,
		PassedTests:  sub.PassedCount,
		TotalTests:   sub.TotalCount,
		OccurredAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("encode submission event failed: %w", err)
	}
	msg := mq.NewMessage(body)
	msg.ID = strconv.FormatInt(sub.ID, 10)
	msg.Key = strconv.FormatInt(sub.ContestID, 10)
	msg.SetHeader("event_type", kind)
	return h.producer.Publish(ctx, h.topic, msg)
}

// ArchiveHook stores a zstd compressed JSON copy of every graded submission.
type ArchiveHook struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
}

func NewArchiveHook(objectStorage storage.ObjectStorage, bucket, prefix string) *ArchiveHook {
	if prefix == "" {
		prefix = "submissions"
	}
	return &ArchiveHook{storage: objectStorage, bucket: bucket, prefix: prefix}
}

func (h *ArchiveHook) Name() string { return "archive" }

// ArchiveKey is where a submission's audit copy lives.
func (h *ArchiveHook) ArchiveKey(sub *model.Submission) string {
	return fmt.Sprintf("%s/%d/%d/%d.json.zst", h.prefix, sub.ContestID, sub.TaskID, sub.ID)
}

func (h *ArchiveHook) AfterCommit(ctx context.Context, ev CommitEvent) error {
	if ev.Kind == model.EventScoreOverridden {
		return nil
	}
	payload, err := EncodeArchive(ev.Submission)
	if err != nil {
		return err
	}
	return h.storage.PutObject(ctx, h.bucket, h.ArchiveKey(ev.Submission), bytes.NewReader(payload), int64(len(payload)), "application/zstd")
}

// EncodeArchive returns the zstd compressed JSON of sub.
func EncodeArchive(sub *model.Submission) ([]byte, error) {
	raw, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode archive failed: %w", err)
	}
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer failed: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("compress archive failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("compress archive failed: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeArchive reverses EncodeArchive.
func DecodeArchive(data []byte) (*model.Submission, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create zstd reader failed: %w", err)
	}
	defer dec.Close()
	var sub model.Submission
	if err := json.NewDecoder(dec).Decode(&sub); err != nil {
		return nil, fmt.Errorf("decode archive failed: %w", err)
	}
	return &sub, nil
}
