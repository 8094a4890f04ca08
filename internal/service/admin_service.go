package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// StatusWriter flips the active flag of exams and accounts.
type StatusWriter interface {
	SetAccountActive(ctx context.Context, accountID uuid.UUID, active bool) error
	SetExamActive(ctx context.Context, examID uuid.UUID, active bool) error
}

// examInvalidator is implemented by catalogs that cache exam payloads.
type examInvalidator interface {
	Invalidate(ctx context.Context, examID uuid.UUID) error
}

// AdminService handles admin toggles that gate who may start an attempt.
type AdminService struct {
	status   StatusWriter
	catalog  ExamCatalog
	accounts AccountDirectory
	log      zerolog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(status StatusWriter, catalog ExamCatalog, accounts AccountDirectory, log zerolog.Logger) *AdminService {
	return &AdminService{
		status:   status,
		catalog:  catalog,
		accounts: accounts,
		log:      log.With().Str("component", "admin_service").Logger(),
	}
}

// SetExamActive opens or closes an exam for new attempts. Sessions already
// running are left alone.
func (s *AdminService) SetExamActive(ctx context.Context, examID uuid.UUID, active bool) (*model.Exam, error) {
	if err := s.status.SetExamActive(ctx, examID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("set exam active: %w", err)
	}

	// A stale cached payload would keep serving the old flag until its TTL.
	if inv, ok := s.catalog.(examInvalidator); ok {
		if err := inv.Invalidate(ctx, examID); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to invalidate exam cache")
		}
	}

	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Bool("is_active", active).
		Msg("Exam status changed")
	return exam, nil
}

// SetAccountActive enables or disables an account's login and starts.
func (s *AdminService) SetAccountActive(ctx context.Context, accountID uuid.UUID, active bool) (*model.Account, error) {
	if err := s.status.SetAccountActive(ctx, accountID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("set account active: %w", err)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	s.log.Info().
		Str("account_id", accountID.String()).
		Bool("is_active", active).
		Msg("Account status changed")
	return account, nil
}
