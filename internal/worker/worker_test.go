package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/event"
	"github.com/stemsi/exstem-proctor/internal/locker"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type expiryFixture struct {
	store      *repository.MemoryStore
	submission *service.SubmissionService
	worker     *ExpiryWorker
	exam       *model.Exam
	questions  []model.Question
	now        time.Time
}

func newExpiryFixture(t *testing.T) *expiryFixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	f := &expiryFixture{store: repository.NewMemoryStore(), now: now}
	f.exam = &model.Exam{
		Title:           "Kimia",
		DurationMinutes: 30,
		Marking:         model.MarkingPolicy{Correct: 1, Wrong: -0.25},
		IsActive:        true,
	}
	f.questions = []model.Question{
		{Prompt: "Q1", Options: [4]string{"H", "He", "Li", "Be"}, CorrectOption: "A"},
		{Prompt: "Q2", Options: [4]string{"H", "He", "Li", "Be"}, CorrectOption: "B"},
	}
	if err := f.store.CreateExam(ctx, f.exam, f.questions); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{SubmitWaitTimeout: time.Second, ClaimTTL: 30 * time.Second}
	clock := fixedClock{now: now}
	sessions := f.store.Sessions()
	f.submission = service.NewSubmissionService(sessions, f.store, locker.NewKeyedMutex(), event.NewMemoryQueue(16), clock, cfg, zerolog.Nop())
	f.worker = NewExpiryWorker(sessions, f.submission, clock, 15*time.Second, time.Minute, zerolog.Nop())
	return f
}

// addSession inserts an IN_PROGRESS session that ends at endsAt.
func (f *expiryFixture) addSession(t *testing.T, endsAt time.Time, drafts map[string]string) uuid.UUID {
	t.Helper()
	s := &model.ExamSession{
		ID:           uuid.New(),
		StudentID:    uuid.New(),
		ExamID:       f.exam.ID,
		State:        model.SessionStateInProgress,
		StartedAt:    endsAt.Add(-30 * time.Minute),
		EndsAt:       endsAt,
		DraftAnswers: drafts,
	}
	if err := f.store.ReplaceLive(context.Background(), s, f.now); err != nil {
		t.Fatal(err)
	}
	return s.ID
}

func (f *expiryFixture) get(t *testing.T, id uuid.UUID) *model.ExamSession {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestExpiryWorker_SweepSubmitsOverdueSessions(t *testing.T) {
	f := newExpiryFixture(t)
	ctx := context.Background()

	overdue := f.addSession(t, f.now.Add(-time.Minute), map[string]string{f.questions[0].ID.String(): "a"})
	inGrace := f.addSession(t, f.now.Add(-5*time.Second), nil)
	running := f.addSession(t, f.now.Add(10*time.Minute), nil)

	if n := f.worker.Sweep(ctx); n != 1 {
		t.Fatalf("first sweep submitted %d, want 1", n)
	}

	s := f.get(t, overdue)
	if s.State != model.SessionStateSubmitted || *s.SubmissionReason != model.ReasonTimerExpired {
		t.Fatalf("overdue session = %s/%v", s.State, s.SubmissionReason)
	}
	if s.Score != 1 || s.Attempted != 1 {
		t.Fatalf("drafts not scored: score=%v attempted=%d", s.Score, s.Attempted)
	}
	for _, id := range []uuid.UUID{inGrace, running} {
		if st := f.get(t, id).State; st != model.SessionStateInProgress {
			t.Fatalf("session %s swept early: %s", id, st)
		}
	}

	if n := f.worker.Sweep(ctx); n != 0 {
		t.Fatalf("second sweep submitted %d, want 0", n)
	}
}

func TestExpiryWorker_ManualSubmitWins(t *testing.T) {
	f := newExpiryFixture(t)
	ctx := context.Background()

	id := f.addSession(t, f.now.Add(-time.Minute), nil)
	if _, err := f.submission.Submit(ctx, id, map[string]string{f.questions[1].ID.String(): "He"}, model.ReasonManual); err != nil {
		t.Fatal(err)
	}

	if n := f.worker.Sweep(ctx); n != 0 {
		t.Fatalf("sweep resubmitted %d sessions", n)
	}
	s := f.get(t, id)
	if *s.SubmissionReason != model.ReasonManual || s.Score != 1 {
		t.Fatalf("manual outcome overwritten: %v %v", *s.SubmissionReason, s.Score)
	}
}

func TestExpiryWorker_RecoversLapsedClaim(t *testing.T) {
	f := newExpiryFixture(t)
	ctx := context.Background()

	id := f.addSession(t, f.now.Add(time.Hour), nil)
	if won, _ := f.store.Claim(ctx, id, f.now.Add(-time.Hour), f.now.Add(-time.Minute)); !won {
		t.Fatal("could not plant claim")
	}

	if n := f.worker.Sweep(ctx); n != 1 {
		t.Fatalf("sweep submitted %d, want 1", n)
	}
	if st := f.get(t, id).State; st != model.SessionStateSubmitted {
		t.Fatalf("state = %s", st)
	}
}

// ─── Violation worker ──────────────────────────────────────────────────

type fakeViolationStore struct {
	mu        sync.Mutex
	batchErr  error
	rejectKey model.ViolationKind
	rows      []model.Violation
}

func (s *fakeViolationStore) InsertBatch(_ context.Context, batch []model.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchErr != nil {
		return s.batchErr
	}
	s.rows = append(s.rows, batch...)
	return nil
}

func (s *fakeViolationStore) Insert(_ context.Context, v *model.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Kind == s.rejectKey {
		return errors.New("rejected")
	}
	s.rows = append(s.rows, *v)
	return nil
}

func (s *fakeViolationStore) CountBySession(context.Context, uuid.UUID) (map[uuid.UUID]int, error) {
	return nil, nil
}

func (s *fakeViolationStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func violation(kind model.ViolationKind) model.Violation {
	return model.Violation{SessionID: uuid.New(), StudentID: uuid.New(), ExamID: uuid.New(), Kind: kind, RecordedAt: time.Now()}
}

func TestViolationWorker_FallbackAndRequeue(t *testing.T) {
	store := &fakeViolationStore{batchErr: errors.New("copy failed"), rejectKey: model.ViolationDevtools}
	queue := event.NewMemoryQueue(16)
	w := NewViolationWorker(store, queue, zerolog.Nop())
	w.retryPause = 0

	w.flushSafe(context.Background(), []model.Violation{
		violation(model.ViolationTabSwitch),
		violation(model.ViolationDevtools),
		violation(model.ViolationFullscreenExit),
	})

	if store.count() != 2 {
		t.Fatalf("stored %d rows, want 2", store.count())
	}
	raw, err := queue.Pop(context.Background(), config.WorkerKey.PersistViolationsQueue, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("requeued row missing: %v", err)
	}
	var v model.Violation
	if err := json.Unmarshal(raw, &v); err != nil || v.Kind != model.ViolationDevtools {
		t.Fatalf("requeued %s (%v)", raw, err)
	}
}

func TestViolationWorker_FlushesOnShutdown(t *testing.T) {
	store := &fakeViolationStore{}
	queue := event.NewMemoryQueue(16)
	w := NewViolationWorker(store, queue, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 3; i++ {
		payload, _ := json.Marshal(violation(model.ViolationTabSwitch))
		_ = queue.Push(ctx, config.WorkerKey.PersistViolationsQueue, payload)
	}
	_ = queue.Push(ctx, config.WorkerKey.PersistViolationsQueue, []byte("{not json"))

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for {
		n, _ := queue.Len(ctx, config.WorkerKey.PersistViolationsQueue)
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker did not drain the queue")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	if store.count() != 3 {
		t.Fatalf("stored %d rows, want 3", store.count())
	}
}

// ─── Notification worker ───────────────────────────────────────────────

func TestNotificationWorker_PublishesToExamChannel(t *testing.T) {
	queue := event.NewMemoryQueue(4)
	events := event.NewMemoryBroadcaster()
	w := NewNotificationWorker(queue, events, zerolog.Nop())
	ctx := context.Background()

	reason := model.ReasonTimerExpired
	submittedAt := time.Now().UTC()
	s := &model.ExamSession{
		ID: uuid.New(), StudentID: uuid.New(), ExamID: uuid.New(),
		State: model.SessionStateSubmitted, Score: 12, TotalPossible: 20, Percentage: 60,
		SubmissionReason: &reason, SubmittedAt: &submittedAt,
	}
	feed, stop := events.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(s.ExamID.String()))
	defer stop()

	w.handle(ctx, []byte("garbage"))
	raw, _ := json.Marshal(event.NewSessionSubmitted(s))
	w.handle(ctx, raw)

	select {
	case got := <-feed:
		var msg struct {
			Type string                 `json:"type"`
			Data event.SessionSubmitted `json:"data"`
		}
		if err := json.Unmarshal(got, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != event.TypeSessionSubmitted || msg.Data.SessionID != s.ID || msg.Data.Reason != reason || msg.Data.Score != 12 {
			t.Fatalf("message = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("nothing published")
	}

	select {
	case extra := <-feed:
		t.Fatalf("unexpected extra message %s", extra)
	default:
	}
}
