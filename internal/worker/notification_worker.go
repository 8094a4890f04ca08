package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/event"
)

// NotificationWorker consumes session_submitted_queue and fans each event out
// to the exam's live monitor. Delivery is best effort; the session row is
// already the source of truth when an event is queued.
type NotificationWorker struct {
	queue  event.Queue
	events event.Broadcaster
	log    zerolog.Logger
}

func NewNotificationWorker(queue event.Queue, events event.Broadcaster, log zerolog.Logger) *NotificationWorker {
	return &NotificationWorker{
		queue:  queue,
		events: events,
		log:    log.With().Str("component", "notification_worker").Logger(),
	}
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("NotificationWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
		}

		raw, err := w.queue.Pop(ctx, config.WorkerKey.SessionSubmittedQueue, PollTimeout)
		if err != nil {
			if !errors.Is(err, event.ErrEmpty) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Queue error, sleeping 3s")
				sleepCtx(ctx, 3*time.Second)
			}
			continue
		}

		w.handle(ctx, raw)
	}
}

func (w *NotificationWorker) handle(ctx context.Context, raw []byte) {
	var ev event.SessionSubmitted
	if err := json.Unmarshal(raw, &ev); err != nil {
		w.log.Error().Err(err).Str("data", string(raw)).Msg("Discarding malformed JSON")
		return
	}

	w.log.Info().
		Str("session_id", ev.SessionID.String()).
		Str("student_id", ev.StudentID.String()).
		Str("exam_id", ev.ExamID.String()).
		Str("reason", string(ev.Reason)).
		Float64("score", ev.Score).
		Float64("percentage", ev.Percentage).
		Msg("Session submitted")

	msg, err := json.Marshal(event.MonitorMessage{Type: event.TypeSessionSubmitted, Data: ev})
	if err != nil {
		w.log.Error().Err(err).Msg("Encode monitor message failed")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := w.events.Publish(pubCtx, config.CacheKey.ExamMonitorChannel(ev.ExamID.String()), msg); err != nil {
		w.log.Warn().Err(err).Str("session_id", ev.SessionID.String()).Msg("Monitor publish failed")
	}
}
