// Package event carries fire-and-forget messages between the request path and
// background workers, plus the pub/sub feed behind the live exam monitor.
package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrEmpty is returned by Pop when nothing arrived before the poll timeout.
var ErrEmpty = errors.New("queue empty")

// Queue is a named FIFO list of opaque payloads.
type Queue interface {
	Push(ctx context.Context, queue string, payloads ...[]byte) error
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	// Len reports the current depth of queue.
	Len(ctx context.Context, queue string) (int64, error)
}

// Broadcaster fans a payload out to every current subscriber of a channel.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of payloads and a function that ends the subscription.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func())
}

// Monitor message types sent on the exam monitor channel.
const (
	TypeSessionStarted   = "session_started"
	TypeSessionSubmitted = "session_submitted"
	TypeViolation        = "violation"
	TypeSnapshot         = "snapshot"
	TypePing             = "ping"
)

// SessionSubmitted is emitted once per session, by the winning submitter only.
type SessionSubmitted struct {
	SessionID     uuid.UUID              `json:"session_id"`
	StudentID     uuid.UUID              `json:"student_id"`
	ExamID        uuid.UUID              `json:"exam_id"`
	Score         float64                `json:"score"`
	TotalPossible float64                `json:"total_possible"`
	Attempted     int                    `json:"attempted"`
	NotAttempted  int                    `json:"not_attempted"`
	Correct       int                    `json:"correct"`
	Percentage    float64                `json:"percentage"`
	Reason        model.SubmissionReason `json:"reason"`
	StartedAt     time.Time              `json:"started_at"`
	SubmittedAt   time.Time              `json:"submitted_at"`
}

// NewSessionSubmitted builds the event from a completed session snapshot.
func NewSessionSubmitted(s *model.ExamSession) SessionSubmitted {
	ev := SessionSubmitted{
		SessionID:     s.ID,
		StudentID:     s.StudentID,
		ExamID:        s.ExamID,
		Score:         s.Score,
		TotalPossible: s.TotalPossible,
		Attempted:     s.Attempted,
		NotAttempted:  s.NotAttempted,
		Correct:       s.Correct,
		Percentage:    s.Percentage,
		StartedAt:     s.StartedAt,
	}
	if s.SubmissionReason != nil {
		ev.Reason = *s.SubmissionReason
	}
	if s.SubmittedAt != nil {
		ev.SubmittedAt = *s.SubmittedAt
	}
	return ev
}

// MonitorMessage is the envelope written to the exam monitor channel.
type MonitorMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}
