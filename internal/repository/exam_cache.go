package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// examSource is the uncached catalog the cache reads through to.
type examSource interface {
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// examPayload is the cached form of an exam with its questions.
type examPayload struct {
	Exam      model.Exam       `json:"exam"`
	Questions []model.Question `json:"questions"`
}

// CachedExamCatalog serves exams and questions from Redis, loading them from
// the source on a miss. Redis errors fall back to the source.
type CachedExamCatalog struct {
	src examSource
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewCachedExamCatalog wraps src with a Redis read-through cache.
func NewCachedExamCatalog(src examSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedExamCatalog {
	return &CachedExamCatalog{
		src: src,
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "exam_cache").Logger(),
	}
}

func (c *CachedExamCatalog) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	p, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	e := p.Exam
	return &e, nil
}

func (c *CachedExamCatalog) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	p, err := c.load(ctx, examID)
	if err != nil {
		return nil, err
	}
	return p.Questions, nil
}

// Warm loads an exam into the cache ahead of traffic.
func (c *CachedExamCatalog) Warm(ctx context.Context, examID uuid.UUID) error {
	_, err := c.fill(ctx, examID)
	return err
}

// Invalidate drops the cached copy of an exam.
func (c *CachedExamCatalog) Invalidate(ctx context.Context, examID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Err()
}

func (c *CachedExamCatalog) load(ctx context.Context, examID uuid.UUID) (*examPayload, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p examPayload
		if jsonErr := json.Unmarshal(data, &p); jsonErr == nil {
			return &p, nil
		}
		c.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt exam payload in cache, reloading")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache read failed, using database")
	}

	return c.fill(ctx, examID)
}

func (c *CachedExamCatalog) fill(ctx context.Context, examID uuid.UUID) (*examPayload, error) {
	exam, err := c.src.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	questions, err := c.src.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	p := &examPayload{Exam: *exam, Questions: questions}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Set(ctx, config.CacheKey.ExamPayloadKey(examID.String()), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache write failed")
	}
	return p, nil
}
