package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix = "submit:idempotency:"
	rateUserKeyPrefix    = "submit:rate:user:"
	rateIPKeyPrefix      = "submit:rate:ip:"
	lockKeyPrefix        = "submit:lock:"
	processingMarker     = "processing"
)

func (s *SubmitService) checkRateLimit(ctx context.Context, scope string, userID int64, clientIP string) error {
	if s.rateLimit.Window <= 0 || (s.rateLimit.UserMax <= 0 && s.rateLimit.IPMax <= 0) {
		return nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	if s.rateLimit.UserMax > 0 && userID > 0 {
		key := rateUserKeyPrefix + scope + ":" + strconv.FormatInt(userID, 10)
		if err := s.checkRateCounter(ctxCache.ctx, key, s.rateLimit.UserMax); err != nil {
			return err
		}
	}
	if s.rateLimit.IPMax > 0 && clientIP != "" {
		if err := s.checkRateCounter(ctxCache.ctx, rateIPKeyPrefix+scope+":"+clientIP, s.rateLimit.IPMax); err != nil {
			return err
		}
	}
	return nil
}

func (s *SubmitService) checkRateCounter(ctx context.Context, key string, max int) error {
	count, err := s.cache.IncrWithin(ctx, key, s.rateLimit.Window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if int(count) > max {
		return appErr.New(appErr.SubmitTooFrequently).WithMessage("submit too frequently")
	}
	return nil
}

func idempotencyCacheKey(userID int64, key string) string {
	return fmt.Sprintf("%s%d:%s", idempotencyKeyPrefix, userID, strings.TrimSpace(key))
}

// acquireIdempotency reserves key for this request. A finished replay
// returns the stored submission id.
func (s *SubmitService) acquireIdempotency(ctx context.Context, userID int64, key string) (bool, int64, error) {
	if strings.TrimSpace(key) == "" {
		return true, 0, nil
	}
	cacheKey := idempotencyCacheKey(userID, key)
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	existing, err := s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, 0, appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if id, ok := parseSubmissionID(existing); ok {
		return false, id, nil
	}

	ok, err := s.cache.SetNX(ctxCache.ctx, cacheKey, processingMarker, s.idempotencyTTL)
	if err != nil {
		return false, 0, appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, 0, nil
	}
	existing, err = s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, 0, appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if id, ok := parseSubmissionID(existing); ok {
		return false, id, nil
	}
	return false, 0, appErr.New(appErr.TooManyRequests).WithMessage("request is processing")
}

func parseSubmissionID(v string) (int64, bool) {
	if v == "" || v == processingMarker {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *SubmitService) finalizeIdempotency(ctx context.Context, userID int64, key string, submissionID int64, acquired bool) {
	if !acquired || strings.TrimSpace(key) == "" {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, idempotencyCacheKey(userID, key), strconv.FormatInt(submissionID, 10), s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, userID int64, key string, acquired bool) {
	if !acquired || strings.TrimSpace(key) == "" {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, idempotencyCacheKey(userID, key)); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

// acquireSubmitLock serializes submits of one participant on one task so the
// submission count check cannot be raced.
func (s *SubmitService) acquireSubmitLock(ctx context.Context, contestID, taskID, userID int64) (func(), error) {
	key := fmt.Sprintf("%s%d:%d:%d", lockKeyPrefix, contestID, taskID, userID)
	token := uuid.NewString()
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	ok, err := s.cache.TryLock(ctxCache.ctx, key, token, s.lockTTL)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "acquire submit lock failed")
	}
	if !ok {
		return nil, appErr.New(appErr.SubmitTooFrequently).WithMessage("another submission for this task is being graded")
	}
	return func() {
		unlockCtx := withTimeout(context.WithoutCancel(ctx), s.timeouts.Cache)
		defer unlockCtx.cancel()
		if err := s.cache.Unlock(unlockCtx.ctx, key, token); err != nil {
			logger.Warn(ctx, "release submit lock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
