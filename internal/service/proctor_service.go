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
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// Submitter is the submission entry point shared by every trigger.
type Submitter interface {
	Submit(ctx context.Context, sessionID uuid.UUID, answers map[string]string, reason model.SubmissionReason) (*model.SubmissionResult, error)
}

// ProctorService records proctoring violations and, when configured, turns
// them into a submit with reason proctoring_violation. It is one more racing
// submitter with no special standing.
type ProctorService struct {
	sessions   SessionStore
	submitter  Submitter
	queue      event.Queue
	events     event.Broadcaster
	clock      Clock
	autoSubmit bool
	log        zerolog.Logger
}

// NewProctorService creates a new ProctorService.
func NewProctorService(
	sessions SessionStore,
	submitter Submitter,
	queue event.Queue,
	events event.Broadcaster,
	clock Clock,
	autoSubmit bool,
	log zerolog.Logger,
) *ProctorService {
	return &ProctorService{
		sessions:   sessions,
		submitter:  submitter,
		queue:      queue,
		events:     events,
		clock:      clock,
		autoSubmit: autoSubmit,
		log:        log.With().Str("component", "proctor_service").Logger(),
	}
}

// Report records a violation on the student's live session. With auto-submit
// on, a report against an already submitted session returns its stored result.
func (s *ProctorService) Report(ctx context.Context, studentID uuid.UUID, kind model.ViolationKind, detail string, answers map[string]string) (*model.ViolationOutcome, error) {
	session, err := s.sessions.GetLatestForStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("get latest session: %w", err)
	}
	if !session.State.IsLive() {
		if session.State != model.SessionStateSubmitted || !s.autoSubmit {
			return nil, ErrNoActiveSession
		}
		// A trigger that lost the race gets the frozen result. Nothing is
		// recorded against a finished attempt.
		res, err := s.submitter.Submit(ctx, session.ID, answers, model.ReasonProctoringViolation)
		if err != nil {
			return nil, err
		}
		return &model.ViolationOutcome{Submitted: true, Result: res}, nil
	}

	v := model.Violation{
		SessionID:  session.ID,
		StudentID:  studentID,
		ExamID:     session.ExamID,
		Kind:       kind,
		Detail:     detail,
		RecordedAt: s.clock.Now(),
	}
	s.record(ctx, &v)

	outcome := &model.ViolationOutcome{Recorded: true}
	if !s.autoSubmit {
		return outcome, nil
	}

	res, err := s.submitter.Submit(ctx, session.ID, answers, model.ReasonProctoringViolation)
	if err != nil {
		return nil, err
	}
	outcome.Submitted = true
	outcome.Result = res
	return outcome, nil
}

// record queues the violation for persistence and pushes it to the live
// monitor. Neither failure blocks the caller.
func (s *ProctorService) record(ctx context.Context, v *model.Violation) {
	log := s.log.With().
		Str("session_id", v.SessionID.String()).
		Str("kind", string(v.Kind)).
		Logger()

	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Encode violation failed")
		return
	}

	pushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.queue.Push(pushCtx, config.WorkerKey.PersistViolationsQueue, payload); err != nil {
		log.Error().Err(err).Msg("Violation not queued for persistence")
	}

	publishMonitor(s.events, s.log, v.ExamID, event.TypeViolation, v)
	log.Info().Msg("Violation recorded")
}

// publishMonitor writes a message to the exam's live monitor channel.
func publishMonitor(events event.Broadcaster, log zerolog.Logger, examID uuid.UUID, typ string, data any) {
	if events == nil {
		return
	}
	payload, err := json.Marshal(event.MonitorMessage{Type: typ, Data: data})
	if err != nil {
		log.Error().Err(err).Str("type", typ).Msg("Encode monitor message failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := events.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), payload); err != nil {
		log.Warn().Err(err).Str("type", typ).Msg("Monitor publish failed")
	}
}
