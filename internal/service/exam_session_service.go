package service

import (
	"context"
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
)

// startLockWait bounds how long a start call waits behind a concurrent start
// for the same student and exam.
const startLockWait = 5 * time.Second

// ExamSessionService owns the session lifecycle up to submission: starting an
// attempt, serving the paper, drafts and time left.
type ExamSessionService struct {
	sessions SessionStore
	accounts AccountDirectory
	catalog  ExamCatalog
	locks    locker.Locker
	events   event.Broadcaster
	clock    Clock
	log      zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	sessions SessionStore,
	accounts AccountDirectory,
	catalog ExamCatalog,
	locks locker.Locker,
	events event.Broadcaster,
	clock Clock,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		sessions: sessions,
		accounts: accounts,
		catalog:  catalog,
		locks:    locks,
		events:   events,
		clock:    clock,
		log:      log.With().Str("component", "session_service").Logger(),
	}
}

// Start begins an attempt at the student's assigned exam.
func (s *ExamSessionService) Start(ctx context.Context, studentID uuid.UUID) (*model.StartSessionResponse, error) {
	account, err := s.activeStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if account.AssignedExamID == nil {
		return nil, ErrNoExamAssigned
	}
	return s.StartExam(ctx, studentID, *account.AssignedExamID)
}

// StartExam begins an attempt at examID. Any earlier unsubmitted attempt for the
// pair is discarded, including its drafts.
func (s *ExamSessionService) StartExam(ctx context.Context, studentID, examID uuid.UUID) (*model.StartSessionResponse, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := checkWindow(exam, now); err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, startLockWait)
	defer cancel()
	unlock, err := s.locks.Lock(lockCtx, config.CacheKey.StudentExamStartLockKey(studentID.String(), examID.String()))
	if err != nil {
		if errors.Is(err, locker.ErrLockTimeout) {
			return nil, ErrSubmissionInProgress
		}
		return nil, fmt.Errorf("acquire start lock: %w", err)
	}
	defer unlock()

	existing, err := s.sessions.ListForStudentExam(ctx, studentID, examID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for i := range existing {
		switch prev := &existing[i]; {
		case prev.State == model.SessionStateSubmitted:
			return nil, ErrAlreadySubmitted
		case prev.State == model.SessionStateScoring && prev.ClaimExpiresAt != nil && !prev.ClaimExpiresAt.Before(now):
			return nil, ErrSubmissionInProgress
		}
	}

	session := &model.ExamSession{
		ID:           uuid.New(),
		StudentID:    studentID,
		ExamID:       examID,
		State:        model.SessionStateInProgress,
		StartedAt:    now,
		EndsAt:       now.Add(exam.Duration()),
		DraftAnswers: map[string]string{},
	}

	if err := s.sessions.ReplaceLive(ctx, session, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrSubmissionInProgress
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("student_id", studentID.String()).
		Str("exam_id", examID.String()).
		Time("ends_at", session.EndsAt).
		Int("discarded", len(existing)).
		Msg("Session started")

	publishMonitor(s.events, s.log, examID, event.TypeSessionStarted, map[string]any{
		"session_id": session.ID,
		"student_id": studentID,
		"started_at": session.StartedAt,
		"ends_at":    session.EndsAt,
	})

	return &model.StartSessionResponse{
		SessionID:       session.ID,
		StartedAt:       session.StartedAt,
		EndsAt:          session.EndsAt,
		DurationSeconds: int(exam.Duration() / time.Second),
	}, nil
}

// Questions returns the student's assigned exam without answer keys.
func (s *ExamSessionService) Questions(ctx context.Context, studentID uuid.UUID) (*model.ExamPaper, error) {
	account, err := s.activeStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if account.AssignedExamID == nil {
		return nil, ErrNoExamAssigned
	}

	exam, err := s.loadExam(ctx, *account.AssignedExamID)
	if err != nil {
		return nil, err
	}
	questions, err := s.catalog.ListQuestions(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	paper := &model.ExamPaper{
		ExamID:    exam.ID,
		Title:     exam.Title,
		Duration:  exam.DurationMinutes,
		Questions: make([]model.QuestionForStudent, 0, len(questions)),
	}
	for _, q := range questions {
		paper.Questions = append(paper.Questions, model.QuestionForStudent{
			ID:       q.ID,
			Prompt:   q.Prompt,
			OptionA:  q.Options[0],
			OptionB:  q.Options[1],
			OptionC:  q.Options[2],
			OptionD:  q.Options[3],
			OrderNum: q.OrderNum,
		})
	}
	return paper, nil
}

// TimeLeft reports the remaining time of the student's live session.
func (s *ExamSessionService) TimeLeft(ctx context.Context, studentID uuid.UUID) (*model.TimeLeftResponse, error) {
	session, err := s.liveSession(ctx, studentID)
	if err != nil {
		return nil, err
	}

	left := session.EndsAt.Sub(s.clock.Now())
	if left < 0 {
		left = 0
	}
	return &model.TimeLeftResponse{
		SessionID:   session.ID,
		SecondsLeft: int(left / time.Second),
		StartedAt:   session.StartedAt,
		EndsAt:      session.EndsAt,
	}, nil
}

// SaveDraftAnswer autosaves one raw answer on the student's live session.
func (s *ExamSessionService) SaveDraftAnswer(ctx context.Context, studentID, questionID uuid.UUID, raw string) error {
	session, err := s.liveSession(ctx, studentID)
	if err != nil {
		return err
	}
	if session.State != model.SessionStateInProgress {
		return ErrSessionNotActive
	}

	exam, err := s.loadExam(ctx, session.ExamID)
	if err != nil {
		return err
	}
	if !containsID(exam.QuestionIDs, questionID) {
		return ErrQuestionNotInExam
	}

	if err := s.sessions.SaveDraftAnswer(ctx, session.ID, questionID.String(), raw); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrNoActiveSession
		case errors.Is(err, repository.ErrConflict):
			return ErrSessionNotActive
		}
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// LatestResult returns the student's most recent session snapshot.
func (s *ExamSessionService) LatestResult(ctx context.Context, studentID uuid.UUID) (*model.ExamSession, error) {
	session, err := s.sessions.GetLatestForStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get latest session: %w", err)
	}
	return session, nil
}

// Result returns a session snapshot by ID.
func (s *ExamSessionService) Result(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// Reassign points a student at examID and deletes all of their sessions, which
// is the only way to retake a submitted exam.
func (s *ExamSessionService) Reassign(ctx context.Context, studentID, examID uuid.UUID) (int64, error) {
	if _, err := s.loadExam(ctx, examID); err != nil {
		return 0, err
	}
	if _, err := s.accounts.GetByID(ctx, studentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("get account: %w", err)
	}

	if err := s.accounts.SetAssignedExam(ctx, studentID, examID); err != nil {
		return 0, fmt.Errorf("assign exam: %w", err)
	}
	deleted, err := s.sessions.DeleteAllForStudent(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}

	s.log.Info().
		Str("student_id", studentID.String()).
		Str("exam_id", examID.String()).
		Int64("deleted_sessions", deleted).
		Msg("Student reassigned")
	return deleted, nil
}

// ListResults returns a page of an exam's sessions for the admin results view.
func (s *ExamSessionService) ListResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResultRow, int, error) {
	if _, err := s.loadExam(ctx, examID); err != nil {
		return nil, 0, err
	}
	return s.sessions.ListByExam(ctx, examID, page, perPage)
}

// ExamInfo returns an exam by ID, mapping a missing exam to ErrExamNotFound.
func (s *ExamSessionService) ExamInfo(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	return s.loadExam(ctx, examID)
}

// ─── helpers ─────────────────────────────────────────────────────────

func (s *ExamSessionService) activeStudent(ctx context.Context, studentID uuid.UUID) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}
	return account, nil
}

func (s *ExamSessionService) loadExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

func (s *ExamSessionService) liveSession(ctx context.Context, studentID uuid.UUID) (*model.ExamSession, error) {
	session, err := s.sessions.GetLatestForStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("get latest session: %w", err)
	}
	if !session.State.IsLive() {
		return nil, ErrNoActiveSession
	}
	return session, nil
}

// checkWindow validates the exam is active and now falls inside
// [availableFrom, availableTo]. A nil bound is open.
func checkWindow(exam *model.Exam, now time.Time) error {
	if !exam.IsActive {
		return ErrExamNotAvailable
	}
	if exam.AvailableFrom != nil && now.Before(*exam.AvailableFrom) {
		return ErrExamNotYetAvailable
	}
	if exam.AvailableTo != nil && now.After(*exam.AvailableTo) {
		return ErrExamWindowClosed
	}
	return nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
