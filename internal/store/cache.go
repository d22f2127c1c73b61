package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/paulgasbarra/together-we-code/internal/models"
)

const (
	questionCacheKeyPrefix  = "question:fixtures:"
	defaultQuestionCacheTTL = 10 * time.Minute
)

// CachedQuestionStore is a read-through redis cache in front of a question
// store. Fixtures are immutable once a session is live, so a short TTL is
// enough to keep edits from going stale. Cache failures degrade to the
// inner store, never to an error.
type CachedQuestionStore struct {
	inner QuestionStore
	rdb   *redis.Client
	ttl   time.Duration
	log   *zap.SugaredLogger
}

func NewCachedQuestionStore(inner QuestionStore, rdb *redis.Client, ttl time.Duration, log *zap.SugaredLogger) *CachedQuestionStore {
	if ttl <= 0 {
		ttl = defaultQuestionCacheTTL
	}
	return &CachedQuestionStore{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func (c *CachedQuestionStore) GetQuestion(ctx context.Context, questionID string) (*models.Question, error) {
	key := questionCacheKeyPrefix + questionID

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var q models.Question
		if jsonErr := json.Unmarshal(data, &q); jsonErr == nil {
			return &q, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		c.rdb.Del(ctx, key)
	} else if err != redis.Nil {
		c.log.Warnw("question cache read failed", "questionId", questionID, "error", err)
	}

	q, err := c.inner.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(q); jsonErr == nil {
		if setErr := c.rdb.Set(ctx, key, data, c.ttl).Err(); setErr != nil {
			c.log.Warnw("question cache write failed", "questionId", questionID, "error", setErr)
		}
	}
	return q, nil
}
