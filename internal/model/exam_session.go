package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionState enumerates exam session states.
type SessionState string

const (
	SessionStateCreated    SessionState = "CREATED"
	SessionStateInProgress SessionState = "IN_PROGRESS"
	SessionStateScoring    SessionState = "SCORING"
	SessionStateSubmitted  SessionState = "SUBMITTED"
)

// IsLive reports whether the session still counts as the active attempt.
func (s SessionState) IsLive() bool {
	return s == SessionStateCreated || s == SessionStateInProgress || s == SessionStateScoring
}

// SubmissionReason records which trigger won the submission race.
type SubmissionReason string

const (
	ReasonManual              SubmissionReason = "manual"
	ReasonTimerExpired        SubmissionReason = "timer_expired"
	ReasonProctoringViolation SubmissionReason = "proctoring_violation"
)

// Valid reports whether r is a known reason.
func (r SubmissionReason) Valid() bool {
	switch r {
	case ReasonManual, ReasonTimerExpired, ReasonProctoringViolation:
		return true
	}
	return false
}

// NotAttemptedText is shown in place of an option text for unattempted questions.
const NotAttemptedText = "Not Attempted"

// AnswerRecord is the per-question snapshot frozen at submission.
type AnswerRecord struct {
	QuestionID   uuid.UUID `json:"question_id"`
	Selected     OptionKey `json:"selected"`
	Correct      OptionKey `json:"correct"`
	SelectedText string    `json:"selected_text"`
	CorrectText  string    `json:"correct_text"`
	IsCorrect    bool      `json:"is_correct"`
	Marks        float64   `json:"marks"`
}

// ExamSession represents one student's attempt at one exam.
type ExamSession struct {
	ID               uuid.UUID         `json:"id"`
	StudentID        uuid.UUID         `json:"student_id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	State            SessionState      `json:"state"`
	StartedAt        time.Time         `json:"started_at"`
	EndsAt           time.Time         `json:"ends_at"`
	ClaimExpiresAt   *time.Time        `json:"-"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
	SubmissionReason *SubmissionReason `json:"submission_reason,omitempty"`
	DraftAnswers     map[string]string `json:"-"`
	Answers          []AnswerRecord    `json:"answers"`
	Score            float64           `json:"score"`
	TotalPossible    float64           `json:"total_possible"`
	Attempted        int               `json:"attempted"`
	NotAttempted     int               `json:"not_attempted"`
	Correct          int               `json:"correct"`
	Percentage       float64           `json:"percentage"`
}

// Result returns the submission summary of a submitted session.
func (s *ExamSession) Result() *SubmissionResult {
	r := &SubmissionResult{
		SessionID:     s.ID,
		Score:         s.Score,
		TotalPossible: s.TotalPossible,
		Attempted:     s.Attempted,
		NotAttempted:  s.NotAttempted,
		Correct:       s.Correct,
		Percentage:    s.Percentage,
	}
	if s.SubmissionReason != nil {
		r.Reason = *s.SubmissionReason
	}
	if s.SubmittedAt != nil {
		r.SubmittedAt = *s.SubmittedAt
	}
	return r
}

// SubmissionResult is returned to every submit caller, winner or not.
type SubmissionResult struct {
	SessionID     uuid.UUID        `json:"session_id"`
	Score         float64          `json:"score"`
	TotalPossible float64          `json:"total_possible"`
	Attempted     int              `json:"attempted"`
	NotAttempted  int              `json:"not_attempted"`
	Correct       int              `json:"correct"`
	Percentage    float64          `json:"percentage"`
	Reason        SubmissionReason `json:"reason"`
	SubmittedAt   time.Time        `json:"submitted_at"`
}

// Completion carries everything the winning submitter writes in one step.
type Completion struct {
	Answers       []AnswerRecord
	Score         float64
	TotalPossible float64
	Attempted     int
	NotAttempted  int
	Correct       int
	Percentage    float64
	Reason        SubmissionReason
	SubmittedAt   time.Time
	// ClaimedUntil is the claim expiry the submitter won with. Only that
	// claim may complete the session.
	ClaimedUntil time.Time
}

// StartSessionResponse is returned by the start operation.
type StartSessionResponse struct {
	SessionID       uuid.UUID `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	EndsAt          time.Time `json:"ends_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

// TimeLeftResponse reports the remaining time of the live session.
type TimeLeftResponse struct {
	SessionID   uuid.UUID `json:"session_id"`
	SecondsLeft int       `json:"seconds_left"`
	StartedAt   time.Time `json:"started_at"`
	EndsAt      time.Time `json:"ends_at"`
}

// RawAnswer is a submitted answer. Strings and numbers are kept as text; any
// other JSON value (null, bool, array, object) decodes to "", which normalizes
// to not attempted, so one odd value never rejects the rest of the answers.
type RawAnswer string

func (ra *RawAnswer) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*ra = ""
	if len(trimmed) == 0 {
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			*ra = RawAnswer(s)
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var num json.Number
		if err := json.Unmarshal(trimmed, &num); err == nil {
			*ra = RawAnswer(num.String())
		}
	}
	return nil
}

// AnswerMap converts raw answers to plain strings. A nil map stays nil.
func AnswerMap(raw map[string]RawAnswer) map[string]string {
	if raw == nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = string(v)
	}
	return out
}

// SubmitRequest is the payload for a submit call. A missing answers field
// means "score the autosaved drafts".
type SubmitRequest struct {
	Answers map[string]RawAnswer `json:"answers"`
	Reason  SubmissionReason     `json:"reason" binding:"omitempty,submission_reason"`
}

// SaveAnswerRequest is the payload for autosaving a single draft answer.
type SaveAnswerRequest struct {
	QuestionID string    `json:"question_id" binding:"required,uuid"`
	Answer     RawAnswer `json:"answer"`
}

// Clone returns a deep copy so callers cannot mutate a stored snapshot.
func (s *ExamSession) Clone() *ExamSession {
	c := *s
	if s.ClaimExpiresAt != nil {
		t := *s.ClaimExpiresAt
		c.ClaimExpiresAt = &t
	}
	if s.SubmittedAt != nil {
		t := *s.SubmittedAt
		c.SubmittedAt = &t
	}
	if s.SubmissionReason != nil {
		r := *s.SubmissionReason
		c.SubmissionReason = &r
	}
	if s.DraftAnswers != nil {
		c.DraftAnswers = make(map[string]string, len(s.DraftAnswers))
		for k, v := range s.DraftAnswers {
			c.DraftAnswers[k] = v
		}
	}
	if s.Answers != nil {
		c.Answers = append([]AnswerRecord(nil), s.Answers...)
	}
	return &c
}

// ExamResultRow is one line of the admin results listing.
type ExamResultRow struct {
	SessionID        uuid.UUID         `json:"session_id"`
	StudentID        uuid.UUID         `json:"student_id"`
	StudentName      string            `json:"student_name"`
	StudentEmail     string            `json:"student_email"`
	State            SessionState      `json:"state"`
	Score            *float64          `json:"score"`
	TotalPossible    *float64          `json:"total_possible"`
	Percentage       *float64          `json:"percentage"`
	SubmissionReason *SubmissionReason `json:"submission_reason,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
	ViolationCount   int               `json:"violation_count"`
}

// ResultsQuery is the query string of the admin results listing.
type ResultsQuery struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1,max=200"`
}
