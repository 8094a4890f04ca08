package model

import (
	"time"

	"github.com/google/uuid"
)

// MarkingPolicy is the per-question marking triple of an exam.
type MarkingPolicy struct {
	Correct      float64 `json:"marks_correct"`
	Wrong        float64 `json:"marks_wrong"`
	NotAttempted float64 `json:"marks_not_attempted"`
}

// Exam represents an exam as authored in the catalog. Read-only to the session core.
type Exam struct {
	ID              uuid.UUID     `json:"id"`
	Title           string        `json:"title"`
	DurationMinutes int           `json:"duration_minutes"`
	AvailableFrom   *time.Time    `json:"available_from,omitempty"`
	AvailableTo     *time.Time    `json:"available_to,omitempty"`
	Marking         MarkingPolicy `json:"marking"`
	IsActive        bool          `json:"is_active"`
	QuestionIDs     []uuid.UUID   `json:"question_ids"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Duration returns the exam duration as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// ExamPaper is the student-facing payload (no correct answers).
type ExamPaper struct {
	ExamID    uuid.UUID            `json:"exam_id"`
	Title     string               `json:"title"`
	Duration  int                  `json:"duration_minutes"`
	Questions []QuestionForStudent `json:"questions"`
}
