package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

const defaultPerPage = 50

// AdminHandler handles admin endpoints over exams and students.
type AdminHandler struct {
	sessionService *service.ExamSessionService
	adminService   *service.AdminService
	log            zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(sessionService *service.ExamSessionService, adminService *service.AdminService, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		sessionService: sessionService,
		adminService:   adminService,
		log:            log.With().Str("component", "admin_handler").Logger(),
	}
}

// GetExamResults godoc
// GET /api/v1/admin/exams/:id/results?page=1&per_page=50
func (h *AdminHandler) GetExamResults(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var q model.ResultsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = defaultPerPage
	}

	rows, total, err := h.sessionService.ListResults(c.Request.Context(), examID, q.Page, q.PerPage)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}
	if rows == nil {
		rows = []model.ExamResultRow{}
	}

	response.SuccessWithPagination(c, http.StatusOK, rows, response.Paged(q.Page, q.PerPage, total))
}

// ReassignStudent godoc
// POST /api/v1/admin/students/:id/reassign
// Points the student at an exam and deletes all of their sessions.
func (h *AdminHandler) ReassignStudent(c *gin.Context) {
	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReassignExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	examID, err := uuid.Parse(req.ExamID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	deleted, err := h.sessionService.Reassign(c.Request.Context(), studentID, examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"student_id":       studentID,
		"exam_id":          examID,
		"deleted_sessions": deleted,
	})
}

// SetExamActive godoc
// PUT /api/v1/admin/exams/:id/active
func (h *AdminHandler) SetExamActive(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SetActiveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.adminService.SetExamActive(c.Request.Context(), examID, *req.IsActive)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, exam)
}

// SetAccountActive godoc
// PUT /api/v1/admin/accounts/:id/active
func (h *AdminHandler) SetAccountActive(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SetActiveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	account, err := h.adminService.SetAccountActive(c.Request.Context(), accountID, *req.IsActive)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, account)
}
