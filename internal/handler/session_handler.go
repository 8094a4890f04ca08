package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler serves session-addressed endpoints shared by students and admins.
type SessionHandler struct {
	sessionService    *service.ExamSessionService
	submissionService *service.SubmissionService
	log               zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	sessionService *service.ExamSessionService,
	submissionService *service.SubmissionService,
	log zerolog.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessionService:    sessionService,
		submissionService: submissionService,
		log:               log.With().Str("component", "session_handler").Logger(),
	}
}

// GetResult godoc
// GET /api/v1/sessions/:id/result
// Owner student or any admin.
func (h *SessionHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	session, ok := h.load(c, claims, service.ErrSessionNotFound)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, session)
}

// Submit godoc
// POST /api/v1/sessions/:id/submit
// Owner student only.
func (h *SessionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	if claims.TokenType != service.TokenTypeStudent {
		response.Fail(c, http.StatusForbidden, response.ErrStudentAccessOnly)
		return
	}

	var req model.SubmitRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	// A replaced or deleted attempt has nothing left to submit.
	session, ok := h.load(c, claims, service.ErrNoActiveSession)
	if !ok {
		return
	}

	res, err := h.submissionService.Submit(c.Request.Context(), session.ID, model.AnswerMap(req.Answers), req.Reason)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// load fetches the :id session and enforces ownership. A missing session is
// reported as missing. It writes the failure response itself.
func (h *SessionHandler) load(c *gin.Context, claims *service.Claims, missing error) (*model.ExamSession, bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	session, err := h.sessionService.Result(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			err = missing
		}
		failWithError(c, h.log, err)
		return nil, false
	}

	if claims.TokenType != service.TokenTypeAdmin && session.StudentID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return nil, false
	}
	return session, true
}
