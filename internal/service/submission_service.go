package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/event"
	"github.com/stemsi/exstem-proctor/internal/locker"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/scoring"
)

// errClaimLost means the claim lapsed and another submitter took the session
// over before this one could complete it.
var errClaimLost = errors.New("submission claim lost")

const (
	claimPollMin = 20 * time.Millisecond
	claimPollMax = 500 * time.Millisecond
	publishWait  = 2 * time.Second
)

// SubmissionService turns any number of concurrent submit triggers for one
// session into exactly one scoring. Callers for different sessions never
// contend; every caller for the same session gets the same result.
type SubmissionService struct {
	sessions    SessionStore
	catalog     ExamCatalog
	locks       locker.Locker
	queue       event.Queue
	clock       Clock
	waitTimeout time.Duration
	claimTTL    time.Duration
	log         zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	sessions SessionStore,
	catalog ExamCatalog,
	locks locker.Locker,
	queue event.Queue,
	clock Clock,
	cfg *config.Config,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		sessions:    sessions,
		catalog:     catalog,
		locks:       locks,
		queue:       queue,
		clock:       clock,
		waitTimeout: cfg.SubmitWaitTimeout,
		claimTTL:    cfg.ClaimTTL,
		log:         log.With().Str("component", "submission_service").Logger(),
	}
}

// SubmitForStudent submits the student's most recent session.
func (s *SubmissionService) SubmitForStudent(ctx context.Context, studentID uuid.UUID, answers map[string]string, reason model.SubmissionReason) (*model.SubmissionResult, error) {
	session, err := s.sessions.GetLatestForStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("get latest session: %w", err)
	}
	return s.Submit(ctx, session.ID, answers, reason)
}

// Submit scores and freezes a session. A nil answers map scores the autosaved
// drafts. Submitting an already SUBMITTED session returns the stored result.
// Late submissions are scored normally.
func (s *SubmissionService) Submit(ctx context.Context, sessionID uuid.UUID, answers map[string]string, reason model.SubmissionReason) (*model.SubmissionResult, error) {
	if reason == "" {
		reason = model.ReasonManual
	}
	if !reason.Valid() {
		return nil, ErrInvalidReason
	}

	session, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == model.SessionStateSubmitted {
		return session.Result(), nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	unlock, err := s.locks.Lock(waitCtx, config.CacheKey.SessionSubmitLockKey(sessionID.String()))
	if err != nil {
		if errors.Is(err, locker.ErrLockTimeout) {
			return s.timeout(ctx, sessionID, reason)
		}
		return nil, fmt.Errorf("acquire submit lock: %w", err)
	}
	defer unlock()

	delay := claimPollMin
	for {
		session, err = s.get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.State == model.SessionStateSubmitted {
			return session.Result(), nil
		}

		now := s.clock.Now()
		// Postgres keeps microseconds; the claim expiry doubles as the holder's token.
		until := now.Add(s.claimTTL).Truncate(time.Microsecond)
		won, err := s.sessions.Claim(ctx, sessionID, now, until)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrNoActiveSession
			}
			return nil, fmt.Errorf("claim session: %w", err)
		}
		if won {
			res, err := s.score(ctx, sessionID, until, answers, reason, now)
			if !errors.Is(err, errClaimLost) {
				return res, err
			}
			// The new holder's outcome is the one to report; loop to observe it.
			continue
		}

		// Another instance holds the claim. Wait for it to finish or lapse.
		select {
		case <-waitCtx.Done():
			return s.timeout(ctx, sessionID, reason)
		case <-time.After(delay):
		}
		if delay *= 2; delay > claimPollMax {
			delay = claimPollMax
		}
	}
}

// score runs as the claim holder. The session is read again after the claim
// so drafts saved up to that point are included. On failure the claim is
// released so a retried submit can still succeed.
func (s *SubmissionService) score(ctx context.Context, sessionID uuid.UUID, until time.Time, answers map[string]string, reason model.SubmissionReason, now time.Time) (*model.SubmissionResult, error) {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result, err := s.complete(ctx, session, until, answers, reason, now)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, errClaimLost):
		s.log.Warn().
			Str("session_id", sessionID.String()).
			Str("reason", string(reason)).
			Msg("Claim lapsed before completion, deferring to the new holder")
		return nil, err
	}

	releaseCtx, cancel := context.WithTimeout(context.Background(), publishWait)
	defer cancel()
	if relErr := s.sessions.ReleaseClaim(releaseCtx, sessionID, until); relErr != nil {
		s.log.Error().Err(relErr).Str("session_id", sessionID.String()).Msg("Claim release failed, waiting for claim expiry")
	}
	s.log.Error().Err(err).
		Str("session_id", sessionID.String()).
		Str("reason", string(reason)).
		Msg("Submission failed, claim released")
	return nil, err
}

func (s *SubmissionService) complete(ctx context.Context, session *model.ExamSession, until time.Time, answers map[string]string, reason model.SubmissionReason, now time.Time) (*model.SubmissionResult, error) {
	exam, err := s.catalog.GetExam(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	questions, err := s.catalog.ListQuestions(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	if answers == nil {
		answers = session.DraftAnswers
	}
	res := scoring.Score(exam.Marking, questions, answers)

	completion := &model.Completion{
		Answers:       res.Answers,
		Score:         res.Score,
		TotalPossible: res.TotalPossible,
		Attempted:     res.Attempted,
		NotAttempted:  res.NotAttempted,
		Correct:       res.Correct,
		Percentage:    res.Percentage,
		Reason:        reason,
		SubmittedAt:   now,
		ClaimedUntil:  until,
	}
	if err := s.sessions.Complete(ctx, session.ID, completion); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, errClaimLost
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("persist result: %w", err)
	}

	session.State = model.SessionStateSubmitted
	session.ClaimExpiresAt = nil
	session.SubmittedAt = &completion.SubmittedAt
	session.SubmissionReason = &completion.Reason
	session.Answers = completion.Answers
	session.Score = completion.Score
	session.TotalPossible = completion.TotalPossible
	session.Attempted = completion.Attempted
	session.NotAttempted = completion.NotAttempted
	session.Correct = completion.Correct
	session.Percentage = completion.Percentage

	late := now.After(session.EndsAt)
	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("student_id", session.StudentID.String()).
		Str("reason", string(reason)).
		Float64("score", res.Score).
		Float64("raw_score", res.RawScore).
		Float64("total_possible", res.TotalPossible).
		Int("attempted", res.Attempted).
		Bool("late", late).
		Msg("Session submitted")

	s.publish(session)
	return session.Result(), nil
}

// publish hands the submitted snapshot to the notification worker. It never
// fails the submission.
func (s *SubmissionService) publish(session *model.ExamSession) {
	payload, err := json.Marshal(event.NewSessionSubmitted(session))
	if err != nil {
		s.log.Error().Err(err).Msg("Encode submitted event failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishWait)
	defer cancel()
	if err := s.queue.Push(ctx, config.WorkerKey.SessionSubmittedQueue, payload); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Submitted event not queued")
	}
}

func (s *SubmissionService) get(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		// The id may belong to an attempt a later start replaced.
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// timeout runs when the wait bound elapsed. A submission that landed in the
// meantime is still returned; otherwise the caller gets a retryable error.
func (s *SubmissionService) timeout(ctx context.Context, sessionID uuid.UUID, reason model.SubmissionReason) (*model.SubmissionResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if session, err := s.get(ctx, sessionID); err == nil && session.State == model.SessionStateSubmitted {
		return session.Result(), nil
	}
	s.log.Warn().
		Str("session_id", sessionID.String()).
		Str("reason", string(reason)).
		Dur("waited", s.waitTimeout).
		Msg("Submit gave up waiting for competing submission")
	return nil, ErrClaimTimeout
}
