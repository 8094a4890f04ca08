package service

import (
	"context"
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
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// fixture wires the services over a MemoryStore with one exam of four
// questions (keys A, B, C, D) and one student assigned to it.
type fixture struct {
	cfg        *config.Config
	store      *repository.MemoryStore
	clock      *fakeClock
	locks      *locker.KeyedMutex
	queue      *event.MemoryQueue
	events     *event.MemoryBroadcaster
	catalog    *flakyCatalog
	sessions   *ExamSessionService
	submission *SubmissionService
	exam       *model.Exam
	questions  []model.Question
	student    *model.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		cfg: &config.Config{
			JWTSecret:         "test-secret",
			JWTExpiry:         time.Hour,
			BcryptCost:        bcrypt.MinCost,
			SubmitWaitTimeout: 2 * time.Second,
			ClaimTTL:          30 * time.Second,
		},
		store:  repository.NewMemoryStore(),
		clock:  newFakeClock(),
		locks:  locker.NewKeyedMutex(),
		queue:  event.NewMemoryQueue(256),
		events: event.NewMemoryBroadcaster(),
	}
	f.catalog = &flakyCatalog{ExamCatalog: f.store}

	from := f.clock.Now().Add(-time.Hour)
	to := f.clock.Now().Add(4 * time.Hour)
	f.exam = &model.Exam{
		Title:           "Fisika Dasar",
		DurationMinutes: 60,
		AvailableFrom:   &from,
		AvailableTo:     &to,
		Marking:         model.MarkingPolicy{Correct: 4, Wrong: -1, NotAttempted: 0},
		IsActive:        true,
	}
	f.questions = []model.Question{
		{Prompt: "Q1", Options: [4]string{"satu", "dua", "tiga", "empat"}, CorrectOption: "A"},
		{Prompt: "Q2", Options: [4]string{"satu", "dua", "tiga", "empat"}, CorrectOption: "B"},
		{Prompt: "Q3", Options: [4]string{"satu", "dua", "tiga", "empat"}, CorrectOption: "option c"},
		{Prompt: "Q4", Options: [4]string{"satu", "dua", "tiga", "empat"}, CorrectOption: "empat"},
	}
	ctx := context.Background()
	if err := f.store.CreateExam(ctx, f.exam, f.questions); err != nil {
		t.Fatal(err)
	}
	f.student = f.addStudent(t, "siti@example.com", true)

	f.rebuild(f.cfg)
	return f
}

// rebuild recreates the services, e.g. after changing cfg.
func (f *fixture) rebuild(cfg *config.Config) {
	log := zerolog.Nop()
	sessions := f.store.Sessions()
	f.sessions = NewExamSessionService(sessions, f.store, f.catalog, f.locks, f.events, f.clock, log)
	f.submission = NewSubmissionService(sessions, f.catalog, f.locks, f.queue, f.clock, cfg, log)
}

func (f *fixture) addStudent(t *testing.T, email string, active bool) *model.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	a := &model.Account{
		Name:         "Siswa " + email,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleStudent,
		IsActive:     active,
	}
	ctx := context.Background()
	if err := f.store.CreateAccount(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetAssignedExam(ctx, a.ID, f.exam.ID); err != nil {
		t.Fatal(err)
	}
	return a
}

func (f *fixture) start(t *testing.T) *model.StartSessionResponse {
	t.Helper()
	res, err := f.sessions.Start(context.Background(), f.student.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return res
}

func (f *fixture) session(t *testing.T, id uuid.UUID) *model.ExamSession {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	return s
}

func (f *fixture) answers(keys ...string) map[string]string {
	out := make(map[string]string, len(keys))
	for i, k := range keys {
		out[f.questions[i].ID.String()] = k
	}
	return out
}

func (f *fixture) queueLen(t *testing.T, name string) int64 {
	t.Helper()
	n, err := f.queue.Len(context.Background(), name)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// flakyCatalog fails ListQuestions while failing is set.
type flakyCatalog struct {
	ExamCatalog
	mu      sync.Mutex
	failing error
	hook    func()
}

func (c *flakyCatalog) fail(err error) {
	c.mu.Lock()
	c.failing = err
	c.mu.Unlock()
}

// onceOnList runs fn inside the next ListQuestions call, i.e. while a
// submitter holds its claim.
func (c *flakyCatalog) onceOnList(fn func()) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *flakyCatalog) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	c.mu.Lock()
	hook := c.hook
	c.hook = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	err := c.failing
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.ExamCatalog.ListQuestions(ctx, examID)
}
