package websocket

import "github.com/stemsi/exstem-proctor/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionSubmit    Action = "submit"
	ActionViolation Action = "violation"
	ActionPing      Action = "ping"
)

// RequestPayload is every client message. Fields not used by an action are ignored.
type RequestPayload struct {
	Action Action `json:"action"`

	// autosave
	QuestionID string          `json:"question_id,omitempty"`
	Answer     model.RawAnswer `json:"answer,omitempty"`

	// submit, violation. A missing answers object means "use the drafts".
	Answers map[string]model.RawAnswer `json:"answers,omitempty"`
	Reason  model.SubmissionReason     `json:"reason,omitempty"`

	// violation
	Kind   model.ViolationKind `json:"kind,omitempty"`
	Detail string              `json:"detail,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventSubmitted Event = "submitted"
	EventViolation Event = "violation_recorded"
	EventPong      Event = "pong"
)

// ResponsePayload is every server message.
type ResponsePayload struct {
	Event   Event  `json:"event"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
