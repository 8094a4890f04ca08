package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, student_id, exam_id, state, started_at, ends_at, claim_expires_at,
	submitted_at, submission_reason, draft_answers, answers, score, total_possible,
	attempted, not_attempted, correct, percentage`

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	var (
		s       model.ExamSession
		reason  *string
		drafts  []byte
		answers []byte
	)
	err := row.Scan(&s.ID, &s.StudentID, &s.ExamID, &s.State, &s.StartedAt, &s.EndsAt,
		&s.ClaimExpiresAt, &s.SubmittedAt, &reason, &drafts, &answers, &s.Score,
		&s.TotalPossible, &s.Attempted, &s.NotAttempted, &s.Correct, &s.Percentage)
	if err != nil {
		return nil, translate(err)
	}
	if reason != nil {
		r := model.SubmissionReason(*reason)
		s.SubmissionReason = &r
	}
	if len(drafts) > 0 {
		if err := json.Unmarshal(drafts, &s.DraftAnswers); err != nil {
			return nil, fmt.Errorf("decode draft answers: %w", err)
		}
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &s.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return &s, nil
}

func (r *ExamSessionRepository) queryList(ctx context.Context, sql string, args ...any) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ReplaceLive retires the pair's unsubmitted sessions and inserts s in one transaction.
func (r *ExamSessionRepository) ReplaceLive(ctx context.Context, s *model.ExamSession, now time.Time) error {
	drafts, err := json.Marshal(nonNilDrafts(s.DraftAnswers))
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM exam_sessions
		 WHERE student_id = $1 AND exam_id = $2
		   AND (state IN ('CREATED', 'IN_PROGRESS')
		        OR (state = 'SCORING' AND (claim_expires_at IS NULL OR claim_expires_at < $3)))`,
		s.StudentID, s.ExamID, now,
	); err != nil {
		return fmt.Errorf("delete stale sessions: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO exam_sessions (id, student_id, exam_id, state, started_at, ends_at, draft_answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
		s.ID, s.StudentID, s.ExamID, s.State, s.StartedAt, s.EndsAt, drafts,
	); err != nil {
		return translate(err)
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a session by its UUID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetLatestForStudent retrieves the most recently started session of a student.
func (r *ExamSessionRepository) GetLatestForStudent(ctx context.Context, studentID uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE student_id = $1
		 ORDER BY started_at DESC, created_at DESC
		 LIMIT 1`, studentID))
}

// ListForStudentExam lists every session of a student for one exam.
func (r *ExamSessionRepository) ListForStudentExam(ctx context.Context, studentID, examID uuid.UUID) ([]model.ExamSession, error) {
	return r.queryList(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE student_id = $1 AND exam_id = $2
		 ORDER BY started_at DESC`, studentID, examID)
}

// DeleteAllForStudent removes every session of a student (admin reassignment).
func (r *ExamSessionRepository) DeleteAllForStudent(ctx context.Context, studentID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exam_sessions WHERE student_id = $1`, studentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SaveDraftAnswer merges one raw answer into the draft map of an IN_PROGRESS session.
func (r *ExamSessionRepository) SaveDraftAnswer(ctx context.Context, id uuid.UUID, questionID, raw string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET draft_answers = draft_answers || jsonb_build_object($2::text, $3::text)
		 WHERE id = $1 AND state = 'IN_PROGRESS'`,
		id, questionID, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

// Claim is the compare-and-set that elects the single submitter of a session.
func (r *ExamSessionRepository) Claim(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET state = 'SCORING', claim_expires_at = $3
		 WHERE id = $1
		   AND (state = 'IN_PROGRESS'
		        OR (state = 'SCORING' AND (claim_expires_at IS NULL OR claim_expires_at < $2)))`,
		id, now, until)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM exam_sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// Complete freezes the scored outcome. Only the current claim holder's row matches.
func (r *ExamSessionRepository) Complete(ctx context.Context, id uuid.UUID, c *model.Completion) error {
	answers, err := json.Marshal(c.Answers)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET state = 'SUBMITTED',
		     claim_expires_at = NULL,
		     submitted_at = $2,
		     submission_reason = $3,
		     answers = $4::jsonb,
		     score = $5,
		     total_possible = $6,
		     attempted = $7,
		     not_attempted = $8,
		     correct = $9,
		     percentage = $10,
		     draft_answers = '{}'::jsonb
		 WHERE id = $1 AND state = 'SCORING' AND claim_expires_at = $11`,
		id, c.SubmittedAt, string(c.Reason), answers, c.Score, c.TotalPossible,
		c.Attempted, c.NotAttempted, c.Correct, c.Percentage, c.ClaimedUntil)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

// ReleaseClaim hands a SCORING session back so a retried submit can win it.
// A claim taken over by another submitter is left alone.
func (r *ExamSessionRepository) ReleaseClaim(ctx context.Context, id uuid.UUID, claimedUntil time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET state = 'IN_PROGRESS', claim_expires_at = NULL
		 WHERE id = $1 AND state = 'SCORING' AND claim_expires_at = $2`, id, claimedUntil)
	return err
}

// ListExpired feeds the expiry sweeper.
func (r *ExamSessionRepository) ListExpired(ctx context.Context, endsBefore, now time.Time, limit int) ([]model.ExamSession, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryList(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE (state = 'IN_PROGRESS' AND ends_at < $1)
		    OR (state = 'SCORING' AND (claim_expires_at IS NULL OR claim_expires_at < $2))
		 ORDER BY ends_at ASC
		 LIMIT $3`, endsBefore, now, limit)
}

// ListByExam retrieves paginated results for an exam with student details.
func (r *ExamSessionRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResultRow, int, error) {
	page, perPage = normalizePage(page, perPage)
	offset := (page - 1) * perPage

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT es.id, es.student_id, a.name, a.email, es.state,
		        es.score, es.total_possible, es.percentage, es.submission_reason,
		        es.started_at, es.submitted_at, COALESCE(v.cnt, 0)
		 FROM exam_sessions es
		 JOIN accounts a ON a.id = es.student_id
		 LEFT JOIN (
		     SELECT session_id, COUNT(*) AS cnt
		     FROM exam_violations
		     WHERE exam_id = $1
		     GROUP BY session_id
		 ) v ON v.session_id = es.id
		 WHERE es.exam_id = $1
		 ORDER BY a.name ASC, es.started_at DESC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results := make([]model.ExamResultRow, 0, perPage)
	for rows.Next() {
		var (
			row               model.ExamResultRow
			score, total, pct float64
			reason            *string
		)
		if err := rows.Scan(&row.SessionID, &row.StudentID, &row.StudentName, &row.StudentEmail,
			&row.State, &score, &total, &pct, &reason, &row.StartedAt, &row.SubmittedAt,
			&row.ViolationCount); err != nil {
			return nil, 0, err
		}
		if reason != nil {
			r := model.SubmissionReason(*reason)
			row.SubmissionReason = &r
		}
		if row.State == model.SessionStateSubmitted {
			row.Score, row.TotalPossible, row.Percentage = &score, &total, &pct
		}
		results = append(results, row)
	}
	return results, total, rows.Err()
}

func (r *ExamSessionRepository) missingOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM exam_sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func nonNilDrafts(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
