package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the student WebSocket stream. Every action maps onto the
// same service call as its REST twin.
type WSHandler struct {
	sessionService    *service.ExamSessionService
	submissionService *service.SubmissionService
	proctorService    *service.ProctorService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	sessionService *service.ExamSessionService,
	submissionService *service.SubmissionService,
	proctorService *service.ProctorService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		sessionService:    sessionService,
		submissionService: submissionService,
		proctorService:    proctorService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// StudentStream godoc
// WS /ws/v1/student/stream?token=...
func (h *WSHandler) StudentStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID
	wsLog := h.log.With().Str("student_id", studentID.String()).Logger()
	wsLog.Info().Msg("Student connected")

	// Actions outlive a dropped connection; submits must still finish.
	ctx := context.WithoutCancel(c.Request.Context())

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, studentID, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, conn, studentID, &msg)
		case ws.ActionViolation:
			h.handleViolation(ctx, conn, studentID, &msg)
		case ws.ActionPing:
			_ = ws.WriteTyped(conn, ws.ResponsePayload{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}
}

func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, studentID uuid.UUID, msg *ws.RequestPayload) {
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil {
		_ = ws.WriteError(conn, string(response.ErrInvalidID), response.GetMessage(response.ErrInvalidID))
		return
	}

	if err := h.sessionService.SaveDraftAnswer(ctx, studentID, questionID, string(msg.Answer)); err != nil {
		h.writeServiceError(conn, err)
		return
	}
	_ = ws.WriteJSON(conn, ws.EventSaved, map[string]string{"question_id": questionID.String()})
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, studentID uuid.UUID, msg *ws.RequestPayload) {
	if msg.Reason != "" && !msg.Reason.Valid() {
		h.writeServiceError(conn, service.ErrInvalidReason)
		return
	}

	res, err := h.submissionService.SubmitForStudent(ctx, studentID, model.AnswerMap(msg.Answers), msg.Reason)
	if err != nil {
		h.writeServiceError(conn, err)
		return
	}
	_ = ws.WriteJSON(conn, ws.EventSubmitted, res)
}

func (h *WSHandler) handleViolation(ctx context.Context, conn *websocket.Conn, studentID uuid.UUID, msg *ws.RequestPayload) {
	if !msg.Kind.Valid() {
		_ = ws.WriteError(conn, string(response.ErrValidation), "kind must be one of tab_switch, fullscreen_exit, devtools, other")
		return
	}

	outcome, err := h.proctorService.Report(ctx, studentID, msg.Kind, msg.Detail, model.AnswerMap(msg.Answers))
	if err != nil {
		h.writeServiceError(conn, err)
		return
	}

	if outcome.Submitted {
		_ = ws.WriteJSON(conn, ws.EventSubmitted, outcome.Result)
		return
	}
	_ = ws.WriteJSON(conn, ws.EventViolation, outcome)
}

func (h *WSHandler) writeServiceError(conn *websocket.Conn, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("WebSocket action failed")
	}
	_ = ws.WriteError(conn, string(code), response.GetMessage(code))
}
