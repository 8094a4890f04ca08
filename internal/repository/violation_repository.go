package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ViolationRepository persists proctoring violations.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// InsertBatch bulk-loads violations with COPY.
func (r *ViolationRepository) InsertBatch(ctx context.Context, batch []model.Violation) error {
	rows := make([][]any, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []any{v.SessionID, v.StudentID, v.ExamID, string(v.Kind), v.Detail, v.RecordedAt})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"exam_violations"},
		[]string{"session_id", "student_id", "exam_id", "kind", "detail", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert stores a single violation. Used when a bulk load fails.
func (r *ViolationRepository) Insert(ctx context.Context, v *model.Violation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_violations (session_id, student_id, exam_id, kind, detail, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		v.SessionID, v.StudentID, v.ExamID, string(v.Kind), v.Detail, v.RecordedAt)
	return err
}

// CountBySession returns violation counts per session for one exam.
func (r *ViolationRepository) CountBySession(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, COUNT(*) FROM exam_violations WHERE exam_id = $1 GROUP BY session_id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			id uuid.UUID
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
