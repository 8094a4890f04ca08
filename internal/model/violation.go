package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind names the proctoring signal that fired on the client.
type ViolationKind string

const (
	ViolationTabSwitch      ViolationKind = "tab_switch"
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
	ViolationDevtools       ViolationKind = "devtools"
	ViolationOther          ViolationKind = "other"
)

// Valid reports whether k is a known kind.
func (k ViolationKind) Valid() bool {
	switch k {
	case ViolationTabSwitch, ViolationFullscreenExit, ViolationDevtools, ViolationOther:
		return true
	}
	return false
}

// Violation is one recorded proctoring event.
type Violation struct {
	SessionID  uuid.UUID     `json:"session_id"`
	StudentID  uuid.UUID     `json:"student_id"`
	ExamID     uuid.UUID     `json:"exam_id"`
	Kind       ViolationKind `json:"kind"`
	Detail     string        `json:"detail,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// ReportViolationRequest is sent by the proctoring monitor in the browser.
type ReportViolationRequest struct {
	Kind    ViolationKind        `json:"kind" binding:"required,violation_kind"`
	Detail  string               `json:"detail" binding:"omitempty,max=500"`
	Answers map[string]RawAnswer `json:"answers"`
}

// ViolationOutcome tells the client whether the violation ended the attempt.
type ViolationOutcome struct {
	Recorded  bool              `json:"recorded"`
	Submitted bool              `json:"submitted"`
	Result    *SubmissionResult `json:"result,omitempty"`
}
