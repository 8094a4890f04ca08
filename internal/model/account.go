package model

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes student and admin accounts.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Account is a user record as seen by the session core.
type Account struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           Role       `json:"role"`
	IsActive       bool       `json:"is_active"`
	AssignedExamID *uuid.UUID `json:"assigned_exam_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// LoginRequest is the payload for authentication.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Token   string  `json:"token"`
	Role    Role    `json:"role"`
	Account Account `json:"account"`
}

// ReassignExamRequest is the payload for an admin reassignment.
type ReassignExamRequest struct {
	ExamID string `json:"exam_id" binding:"required,uuid"`
}

// SetActiveRequest toggles an exam or account on or off.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}
