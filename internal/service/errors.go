package service

import "errors"

// Validation errors: reported to the caller, no state change.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountInactive     = errors.New("account is inactive")
	ErrNoExamAssigned      = errors.New("no exam assigned to account")
	ErrExamNotFound        = errors.New("exam not found")
	ErrExamNotAvailable    = errors.New("exam is not active")
	ErrExamNotYetAvailable = errors.New("exam is not yet available")
	ErrExamWindowClosed    = errors.New("exam availability window has closed")
	ErrQuestionNotInExam   = errors.New("question does not belong to the exam")
	ErrInvalidReason       = errors.New("unknown submission reason")
)

// Conflict errors: the session is missing, retired or in the wrong state.
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionNotActive     = errors.New("session is not in progress")
	ErrAlreadySubmitted     = errors.New("exam already submitted")
	ErrSubmissionInProgress = errors.New("submission in progress")
)

// ErrClaimTimeout means a competing submission did not finish within the wait
// bound. The caller may retry.
var ErrClaimTimeout = errors.New("timed out waiting for submission, retry")

// Auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
)
