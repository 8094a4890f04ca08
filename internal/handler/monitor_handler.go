package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/event"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
	snapshotMaxRows   = 200
)

type MonitorHandler struct {
	events         event.Broadcaster
	sessionService *service.ExamSessionService
	violations     service.ViolationStore
	log            zerolog.Logger
}

func NewMonitorHandler(
	events event.Broadcaster,
	sessionService *service.ExamSessionService,
	violations service.ViolationStore,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		events:         events,
		sessionService: sessionService,
		violations:     violations,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

type monitorStats struct {
	TotalJoined     int `json:"total_joined"`
	TotalInProgress int `json:"total_in_progress"`
	TotalScoring    int `json:"total_scoring"`
	TotalSubmitted  int `json:"total_submitted"`
	TotalViolations int `json:"total_violations"`
}

type monitorSnapshot struct {
	Exam     *model.Exam           `json:"exam"`
	Stats    monitorStats          `json:"stats"`
	Students []model.ExamResultRow `json:"students"`
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:id/monitor
// Streams a snapshot, then every session_started, session_submitted and
// violation event of the exam.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.sessionService.ExamInfo(c.Request.Context(), examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	reqCtx := c.Request.Context()

	// Subscribe before the snapshot so nothing between the two is lost.
	ch, unsubscribe := h.events.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	h.sendSnapshot(c, reqCtx, exam)

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refreshes while nothing happens.
	dirty := false

	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor SSE")

	pingPayload, _ := json.Marshal(event.MonitorMessage{Type: event.TypePing})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payloads are already MonitorMessage JSON.
			writeSSEData(c, msg)
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			h.sendSnapshot(c, reqCtx, exam)
			dirty = false

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

// sendSnapshot writes the full exam state as one event.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parentCtx context.Context, exam *model.Exam) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	snap, err := h.buildSnapshot(ctx, exam)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to build monitor snapshot")
		return
	}

	payload, err := json.Marshal(event.MonitorMessage{Type: event.TypeSnapshot, Data: snap})
	if err != nil {
		return
	}
	writeSSEData(c, payload)
}

func (h *MonitorHandler) buildSnapshot(ctx context.Context, exam *model.Exam) (*monitorSnapshot, error) {
	rows, total, err := h.sessionService.ListResults(ctx, exam.ID, 1, snapshotMaxRows)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.ExamResultRow{}
	}

	snap := &monitorSnapshot{Exam: exam, Students: rows}
	snap.Stats.TotalJoined = total
	for _, r := range rows {
		switch r.State {
		case model.SessionStateCreated, model.SessionStateInProgress:
			snap.Stats.TotalInProgress++
		case model.SessionStateScoring:
			snap.Stats.TotalScoring++
		case model.SessionStateSubmitted:
			snap.Stats.TotalSubmitted++
		}
	}

	counts, err := h.violations.CountBySession(ctx, exam.ID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to count violations")
		return snap, nil
	}
	for _, n := range counts {
		snap.Stats.TotalViolations += n
	}
	return snap, nil
}

func writeSSEData(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
