package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// SessionStore persists exam sessions. Every write that touches a session's
// outcome is conditional on its current state, so a SUBMITTED session can
// never be written again.
type SessionStore interface {
	// ReplaceLive deletes the pair's CREATED/IN_PROGRESS sessions and any
	// SCORING session whose claim expired before now, then inserts s.
	// Returns repository.ErrConflict when a live claim still blocks the pair.
	ReplaceLive(ctx context.Context, s *model.ExamSession, now time.Time) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	// GetLatestForStudent returns the most recently started session of a student.
	GetLatestForStudent(ctx context.Context, studentID uuid.UUID) (*model.ExamSession, error)
	ListForStudentExam(ctx context.Context, studentID, examID uuid.UUID) ([]model.ExamSession, error)
	DeleteAllForStudent(ctx context.Context, studentID uuid.UUID) (int64, error)
	// SaveDraftAnswer stores a raw answer on an IN_PROGRESS session.
	SaveDraftAnswer(ctx context.Context, id uuid.UUID, questionID, raw string) error
	// Claim moves IN_PROGRESS (or SCORING with an expired claim) to SCORING
	// until the given time. It reports false when someone else holds the claim
	// or the session is already SUBMITTED.
	Claim(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error)
	// Complete writes the scored outcome and moves SCORING to SUBMITTED. It
	// applies only while the session still holds the claim that expires at
	// c.ClaimedUntil; otherwise it returns repository.ErrConflict.
	Complete(ctx context.Context, id uuid.UUID, c *model.Completion) error
	// ReleaseClaim puts a SCORING session back to IN_PROGRESS if it still
	// holds the claim that expires at claimedUntil.
	ReleaseClaim(ctx context.Context, id uuid.UUID, claimedUntil time.Time) error
	// ListExpired returns IN_PROGRESS sessions that ended before endsBefore and
	// SCORING sessions whose claim lapsed before now.
	ListExpired(ctx context.Context, endsBefore, now time.Time, limit int) ([]model.ExamSession, error)
	ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResultRow, int, error)
}

// AccountDirectory resolves accounts and their exam assignment.
type AccountDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	SetAssignedExam(ctx context.Context, accountID, examID uuid.UUID) error
}

// ExamCatalog is the read-only view of authored exams.
type ExamCatalog interface {
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	// ListQuestions returns the exam's questions ordered by order_num.
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ViolationStore persists proctoring violations.
type ViolationStore interface {
	InsertBatch(ctx context.Context, batch []model.Violation) error
	Insert(ctx context.Context, v *model.Violation) error
	CountBySession(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int, error)
}
