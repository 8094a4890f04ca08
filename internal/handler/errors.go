package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// errorMapping pairs a domain error with its HTTP status and API code.
type errorMapping struct {
	err    error
	status int
	code   response.ErrCode
}

var errorMappings = []errorMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrAccountInactive, http.StatusForbidden, response.ErrAccountInactive},
	{service.ErrForbidden, http.StatusForbidden, response.ErrForbidden},

	{service.ErrAccountNotFound, http.StatusNotFound, response.ErrAccountNotFound},
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrNoActiveSession, http.StatusNotFound, response.ErrNoActiveSession},

	{service.ErrNoExamAssigned, http.StatusBadRequest, response.ErrNoExamAssigned},
	{service.ErrExamNotAvailable, http.StatusForbidden, response.ErrExamNotAvailable},
	{service.ErrExamNotYetAvailable, http.StatusForbidden, response.ErrExamNotYetAvailable},
	{service.ErrExamWindowClosed, http.StatusForbidden, response.ErrExamWindowClosed},
	{service.ErrQuestionNotInExam, http.StatusBadRequest, response.ErrQuestionNotInExam},
	{service.ErrInvalidReason, http.StatusBadRequest, response.ErrInvalidReason},

	{service.ErrSessionNotActive, http.StatusConflict, response.ErrSessionNotActive},
	{service.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
	{service.ErrSubmissionInProgress, http.StatusConflict, response.ErrSubmissionInProgress},
	{service.ErrClaimTimeout, http.StatusServiceUnavailable, response.ErrSubmitTimeout},
}

// mapError resolves a service error to its status and code. Unknown errors
// are internal.
func mapError(err error) (int, response.ErrCode) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failWithError writes the envelope for err. Internal errors are logged since
// the client only ever sees the generic code.
func failWithError(c *gin.Context, log zerolog.Logger, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		ev := log.Error()
		if response.IsRetryable(status) {
			ev = log.Warn()
			response.RetryAfter(c, time.Second)
		}
		ev.Err(err).
			Str("request_id", response.RequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
