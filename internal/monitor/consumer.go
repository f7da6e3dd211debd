package monitor

import (
	"context"
	"encoding/json"

	"codearena/internal/common/mq"
	"codearena/internal/submit/model"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// HandleMessage forwards one submission event to the contest's watchers.
// Malformed messages are dropped rather than retried.
func (h *Hub) HandleMessage(ctx context.Context, msg *mq.Message) error {
	var ev model.SubmissionEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil || ev.ContestID <= 0 {
		logger.Warn(ctx, "drop malformed submission event", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	delivered := h.Publish(ev.ContestID, msg.Body)
	logger.Debug(ctx, "submission event fanned out",
		zap.Int64("contest_id", ev.ContestID),
		zap.Int64("submission_id", ev.SubmissionID),
		zap.Int("watchers", delivered),
	)
	return nil
}

// Subscribe attaches the hub to topic. Every instance needs its own
// consumer group so each one sees every event.
func (h *Hub) Subscribe(ctx context.Context, consumer mq.Consumer, topic, group string) error {
	opts := &mq.SubscribeOptions{ConsumerGroup: group, MaxRetries: 1}
	return consumer.Subscribe(ctx, topic, h.HandleMessage, opts)
}
