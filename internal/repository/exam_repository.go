package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamRepository handles exam and question data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetExam retrieves an exam by its UUID, including its ordered question IDs.
func (r *ExamRepository) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, available_from, available_to,
		        marks_correct, marks_wrong, marks_not_attempted, is_active, created_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.AvailableFrom, &e.AvailableTo,
		&e.Marking.Correct, &e.Marking.Wrong, &e.Marking.NotAttempted, &e.IsActive, &e.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM questions WHERE exam_id = $1 ORDER BY order_num ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	e.QuestionIDs = make([]uuid.UUID, 0)
	for rows.Next() {
		var qid uuid.UUID
		if err := rows.Scan(&qid); err != nil {
			return nil, err
		}
		e.QuestionIDs = append(e.QuestionIDs, qid)
	}
	return e, rows.Err()
}

// ListQuestions retrieves all questions of an exam ordered by order_num.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, prompt, option_a, option_b, option_c, option_d, correct_option, order_num
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY order_num ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make([]model.Question, 0)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Prompt,
			&q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3],
			&q.CorrectOption, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreateExam inserts an exam and its questions in one transaction.
func (r *ExamRepository) CreateExam(ctx context.Context, e *model.Exam, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if err := tx.QueryRow(ctx,
		`INSERT INTO exams (id, title, duration_minutes, available_from, available_to,
		                    marks_correct, marks_wrong, marks_not_attempted, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		e.ID, e.Title, e.DurationMinutes, e.AvailableFrom, e.AvailableTo,
		e.Marking.Correct, e.Marking.Wrong, e.Marking.NotAttempted, e.IsActive,
	).Scan(&e.CreatedAt); err != nil {
		return translate(err)
	}

	e.QuestionIDs = make([]uuid.UUID, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		if q.OrderNum == 0 {
			q.OrderNum = i + 1
		}
		q.ExamID = e.ID
		if _, err := tx.Exec(ctx,
			`INSERT INTO questions (id, exam_id, order_num, prompt, option_a, option_b, option_c, option_d, correct_option)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			q.ID, q.ExamID, q.OrderNum, q.Prompt,
			q.Options[0], q.Options[1], q.Options[2], q.Options[3], q.CorrectOption,
		); err != nil {
			return fmt.Errorf("insert question %d: %w", q.OrderNum, translate(err))
		}
		e.QuestionIDs = append(e.QuestionIDs, q.ID)
	}

	return tx.Commit(ctx)
}

// SetExamActive toggles an exam.
func (r *ExamRepository) SetExamActive(ctx context.Context, examID uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE exams SET is_active = $2 WHERE id = $1`, examID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveIDs returns the IDs of every active exam. Used for cache prewarming.
func (r *ExamRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM exams WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
