package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AccountRepository handles account data access.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, name, email, password_hash, role, is_active, assigned_exam_id, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	a := &model.Account{}
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.IsActive, &a.AssignedExamID, &a.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// GetByID retrieves an account by its UUID.
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = $1`,
		strings.ToLower(strings.TrimSpace(email))))
}

// SetAssignedExam points a student at an exam.
func (r *AccountRepository) SetAssignedExam(ctx context.Context, accountID, examID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET assigned_exam_id = $2 WHERE id = $1`, accountID, examID)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAccountActive toggles an account.
func (r *AccountRepository) SetAccountActive(ctx context.Context, accountID uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET is_active = $2 WHERE id = $1`, accountID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAccount inserts an account. A duplicate email yields ErrConflict.
func (r *AccountRepository) CreateAccount(ctx context.Context, a *model.Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return translate(r.pool.QueryRow(ctx,
		`INSERT INTO accounts (id, name, email, password_hash, role, is_active, assigned_exam_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		a.ID, a.Name, strings.ToLower(strings.TrimSpace(a.Email)), a.PasswordHash, a.Role, a.IsActive, a.AssignedExamID,
	).Scan(&a.CreatedAt))
}
